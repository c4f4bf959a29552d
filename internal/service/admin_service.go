package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"histai-go/internal/model"
	"histai-go/internal/repository"
	"histai-go/pkg/hash"
	"histai-go/pkg/log"
	"histai-go/pkg/token"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// 统计窗口
const (
	defaultStatsDays    = 30
	defaultActivityDays = 7
	maxStatsDays        = 365
	topUsersLimit       = 10
	topActiveUsersLimit = 20
)

// Overview 是全局统计
type Overview struct {
	TotalUsers            int64   `json:"totalUsers"`
	SubscribedUsers       int64   `json:"subscribedUsers"`
	UnsubscribedUsers     int64   `json:"unsubscribedUsers"`
	SubscriptionRate      float64 `json:"subscriptionRate"`
	TotalGenerations      int64   `json:"totalGenerations"`
	SuccessfulGenerations int64   `json:"successfulGenerations"`
	FailedGenerations     int64   `json:"failedGenerations"`
	SuccessRate           float64 `json:"successRate"`
}

// Period 是统计窗口内的概况
type Period struct {
	Days              int       `json:"days"`
	StartDate         time.Time `json:"startDate"`
	RecentUsers       int64     `json:"recentUsers"`
	RecentGenerations int64     `json:"recentGenerations"`
}

// DailyStat 是单日统计
type DailyStat struct {
	Date                  string `json:"date"`
	Users                 int    `json:"users"`
	Generations           int    `json:"generations"`
	SuccessfulGenerations int    `json:"successfulGenerations"`
	FailedGenerations     int    `json:"failedGenerations"`
}

// TopUser 是按成功生成次数排名的用户
type TopUser struct {
	User            model.User `json:"user"`
	GenerationCount int64      `json:"generationCount"`
}

// TopPerson 是按生成次数排名的人物
type TopPerson struct {
	PersonName string `json:"personName"`
	Count      int64  `json:"count"`
}

// AdminStats 是管理后台的统计结果
type AdminStats struct {
	Overview   Overview    `json:"overview"`
	Period     Period      `json:"period"`
	DailyStats []DailyStat `json:"dailyStats"`
	TopUsers   []TopUser   `json:"topUsers"`
	TopPersons []TopPerson `json:"topPersons"`
}

// UserStats 是用户的生成统计
type UserStats struct {
	TotalGenerations      int              `json:"totalGenerations"`
	SuccessfulGenerations int              `json:"successfulGenerations"`
	FailedGenerations     int              `json:"failedGenerations"`
	TodayGenerations      int              `json:"todayGenerations"`
	LastGenerationAt      *model.LocalTime `json:"lastGenerationAt"`
}

// UserWithStats 是用户列表中的一行
type UserWithStats struct {
	model.User
	Stats UserStats `json:"stats"`
}

// UserListQuery 是用户列表的查询参数
type UserListQuery struct {
	Page       int
	Limit      int
	Search     string
	Subscribed *bool
	SortBy     string
	SortOrder  string
}

// Pagination 描述分页信息
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// UserListResult 是用户列表的结果
type UserListResult struct {
	Users      []UserWithStats `json:"users"`
	Pagination Pagination      `json:"pagination"`
}

// ActivityBucket 是一个时间桶内的活动
type ActivityBucket struct {
	Timestamp   string `json:"timestamp"`
	Total       int    `json:"total"`
	Successful  int    `json:"successful"`
	Failed      int    `json:"failed"`
	UniqueUsers int    `json:"uniqueUsers"`
}

// ActiveUser 是窗口内活跃用户
type ActiveUser struct {
	UserID                uint      `json:"userId"`
	TelegramID            int64     `json:"telegramId"`
	Username              string    `json:"username"`
	FirstName             string    `json:"firstName"`
	TotalGenerations      int       `json:"totalGenerations"`
	SuccessfulGenerations int       `json:"successfulGenerations"`
	LastActivityAt        time.Time `json:"lastActivityAt"`
}

// ActivityReport 是活动统计结果
type ActivityReport struct {
	Period struct {
		Days      int       `json:"days"`
		StartDate time.Time `json:"startDate"`
		GroupBy   string    `json:"groupBy"`
	} `json:"period"`
	Activity       []ActivityBucket `json:"activity"`
	TopActiveUsers []ActiveUser     `json:"topActiveUsers"`
}

// AccessToken 是一次性的管理后台访问链接
type AccessToken struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AdminService 接口定义了管理后台的业务操作。
type AdminService interface {
	Stats(days int) (*AdminStats, error)
	ListUsers(q UserListQuery) (*UserListResult, error)
	ExportUsers(q UserListQuery) ([]byte, error)
	Activity(days int, groupBy string) (*ActivityReport, error)
	ActivityChart(days int) ([]byte, error)
	IssueAccessToken(ctx context.Context, userID uint) (*AccessToken, error)
	VerifyAccessToken(ctx context.Context, tokenString string) (bool, error)
	MakeMeAdmin(user *model.User, secret string) error
	Providers() map[string]bool
}

type adminService struct {
	userRepo  repository.UserRepository
	genRepo   repository.GenerationRepository
	tokens    repository.AccessTokenStore
	secret    string
	tokenTTL  time.Duration
	publicURL string
	providers map[string]bool
	now       func() time.Time
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(userRepo repository.UserRepository, genRepo repository.GenerationRepository, tokens repository.AccessTokenStore,
	setupSecretHash string, tokenTTL time.Duration, publicURL string, providers map[string]bool) AdminService {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &adminService{
		userRepo:  userRepo,
		genRepo:   genRepo,
		tokens:    tokens,
		secret:    setupSecretHash,
		tokenTTL:  tokenTTL,
		publicURL: strings.TrimRight(publicURL, "/"),
		providers: providers,
		now:       time.Now,
	}
}

func clampDays(days, def int) int {
	if days <= 0 {
		return def
	}
	if days > maxStatsDays {
		return maxStatsDays
	}
	return days
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}

// Stats 汇总全局与窗口内统计
func (s *adminService) Stats(days int) (*AdminStats, error) {
	days = clampDays(days, defaultStatsDays)
	today := StartOfDay(s.now())
	start := today.AddDate(0, 0, -days)

	totalUsers, err := s.userRepo.Count()
	if err != nil {
		return nil, err
	}
	subscribed, err := s.userRepo.CountSubscribed()
	if err != nil {
		return nil, err
	}
	all, err := s.genRepo.CountByStatus(nil)
	if err != nil {
		return nil, err
	}
	userTimes, err := s.userRepo.CreatedSince(start)
	if err != nil {
		return nil, err
	}
	activity, err := s.genRepo.ActivitySince(start)
	if err != nil {
		return nil, err
	}

	stats := &AdminStats{
		Overview: Overview{
			TotalUsers:            totalUsers,
			SubscribedUsers:       subscribed,
			UnsubscribedUsers:     totalUsers - subscribed,
			SubscriptionRate:      percent(subscribed, totalUsers),
			TotalGenerations:      all.Total,
			SuccessfulGenerations: all.Completed,
			FailedGenerations:     all.Failed,
			SuccessRate:           percent(all.Completed, all.Total),
		},
		Period: Period{
			Days:              days,
			StartDate:         start,
			RecentUsers:       int64(len(userTimes)),
			RecentGenerations: int64(len(activity)),
		},
		DailyStats: dailyStats(today, days, userTimes, activity),
		TopUsers:   []TopUser{},
		TopPersons: []TopPerson{},
	}

	// 排名
	topUsers, err := s.genRepo.TopUsers(start, topUsersLimit)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(topUsers))
	for _, u := range topUsers {
		ids = append(ids, u.UserID)
	}
	users, err := s.userRepo.FindByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for _, tu := range topUsers {
		if u, ok := byID[tu.UserID]; ok {
			stats.TopUsers = append(stats.TopUsers, TopUser{User: u, GenerationCount: tu.Count})
		}
	}
	topPersons, err := s.genRepo.TopPersons(start, topUsersLimit)
	if err != nil {
		return nil, err
	}
	for _, p := range topPersons {
		stats.TopPersons = append(stats.TopPersons, TopPerson{PersonName: p.PersonName, Count: p.Count})
	}
	return stats, nil
}

// dailyStats 返回截止 today 的最近 days 天（含今天），按日期升序
func dailyStats(today time.Time, days int, userTimes []time.Time, activity []repository.ActivityRow) []DailyStat {
	out := make([]DailyStat, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		d := today.AddDate(0, 0, i-days+1).Format("2006-01-02")
		out[i].Date = d
		index[d] = i
	}
	for _, t := range userTimes {
		if i, ok := index[t.UTC().Format("2006-01-02")]; ok {
			out[i].Users++
		}
	}
	for _, a := range activity {
		i, ok := index[a.CreatedAt.UTC().Format("2006-01-02")]
		if !ok {
			continue
		}
		out[i].Generations++
		switch a.Status {
		case model.GenerationStatusCompleted:
			out[i].SuccessfulGenerations++
		case model.GenerationStatusFailed:
			out[i].FailedGenerations++
		}
	}
	return out
}

// ListUsers 分页返回用户及其生成统计
func (s *adminService) ListUsers(q UserListQuery) (*UserListResult, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}
	users, total, err := s.userRepo.List(repository.UserFilter{
		Search:     q.Search,
		Subscribed: q.Subscribed,
		SortBy:     q.SortBy,
		SortOrder:  q.SortOrder,
		Offset:     (q.Page - 1) * q.Limit,
		Limit:      q.Limit,
	})
	if err != nil {
		return nil, err
	}
	rows, err := s.withStats(users)
	if err != nil {
		return nil, err
	}
	if q.SortBy == "generations" {
		asc := strings.EqualFold(q.SortOrder, "asc")
		sort.SliceStable(rows, func(i, j int) bool {
			if asc {
				return rows[i].Stats.TotalGenerations < rows[j].Stats.TotalGenerations
			}
			return rows[i].Stats.TotalGenerations > rows[j].Stats.TotalGenerations
		})
	}
	return &UserListResult{
		Users: rows,
		Pagination: Pagination{
			Page:       q.Page,
			Limit:      q.Limit,
			Total:      total,
			TotalPages: int(math.Ceil(float64(total) / float64(q.Limit))),
		},
	}, nil
}

func (s *adminService) withStats(users []model.User) ([]UserWithStats, error) {
	ids := make([]uint, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	activity, err := s.genRepo.ActivityByUsers(ids)
	if err != nil {
		return nil, err
	}
	today := StartOfDay(s.now())
	stats := make(map[uint]*UserStats, len(users))
	last := make(map[uint]time.Time, len(users))
	for _, a := range activity {
		st, ok := stats[a.UserID]
		if !ok {
			st = &UserStats{}
			stats[a.UserID] = st
		}
		st.TotalGenerations++
		if a.Status == model.GenerationStatusCompleted {
			st.SuccessfulGenerations++
			if !a.CreatedAt.Before(today) {
				st.TodayGenerations++
			}
		}
		if a.CreatedAt.After(last[a.UserID]) {
			last[a.UserID] = a.CreatedAt
		}
	}
	rows := make([]UserWithStats, 0, len(users))
	for _, u := range users {
		row := UserWithStats{User: u}
		if st, ok := stats[u.ID]; ok {
			row.Stats = *st
			row.Stats.FailedGenerations = st.TotalGenerations - st.SuccessfulGenerations
			t := last[u.ID]
			row.Stats.LastGenerationAt = model.NewLocalTime(&t)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ExportUsers 将用户列表导出为 xlsx
func (s *adminService) ExportUsers(q UserListQuery) ([]byte, error) {
	q.Page = 1
	q.Limit = 200
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Warnf("[AdminService] 关闭 xlsx 失败: %v", err)
		}
	}()
	// 新建文件的默认工作表
	const sheet = "Sheet1"
	header := []interface{}{"ID", "Telegram ID", "Username", "First name", "Last name", "Subscribed", "Admin",
		"Total", "Successful", "Failed", "Today", "Last generation", "Created at"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}

	row := 2
	for {
		res, err := s.ListUsers(q)
		if err != nil {
			return nil, err
		}
		for _, u := range res.Users {
			lastGen := ""
			if u.Stats.LastGenerationAt != nil {
				lastGen = time.Time(*u.Stats.LastGenerationAt).UTC().Format(time.RFC3339)
			}
			values := []interface{}{u.ID, u.TelegramID, u.Username, u.FirstName, u.LastName, u.IsSubscribed, u.IsAdmin,
				u.Stats.TotalGenerations, u.Stats.SuccessfulGenerations, u.Stats.FailedGenerations, u.Stats.TodayGenerations,
				lastGen, u.CreatedAt.UTC().Format(time.RFC3339)}
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return nil, err
			}
			if err := f.SetSheetRow(sheet, cell, &values); err != nil {
				return nil, err
			}
			row++
		}
		if q.Page >= res.Pagination.TotalPages {
			break
		}
		q.Page++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("写入 xlsx 失败: %w", err)
	}
	return buf.Bytes(), nil
}

// Activity 按小时或天汇总窗口内的生成活动
func (s *adminService) Activity(days int, groupBy string) (*ActivityReport, error) {
	days = clampDays(days, defaultActivityDays)
	if groupBy != "day" {
		groupBy = "hour"
	}
	start := StartOfDay(s.now()).AddDate(0, 0, -days)
	activity, err := s.genRepo.ActivitySince(start)
	if err != nil {
		return nil, err
	}

	layout := "2006-01-02T15:00:00"
	if groupBy == "day" {
		layout = "2006-01-02"
	}
	buckets := make(map[string]*ActivityBucket)
	bucketUsers := make(map[string]map[uint]struct{})
	active := make(map[uint]*ActiveUser)
	for _, a := range activity {
		key := a.CreatedAt.UTC().Format(layout)
		b, ok := buckets[key]
		if !ok {
			b = &ActivityBucket{Timestamp: key}
			buckets[key] = b
			bucketUsers[key] = make(map[uint]struct{})
		}
		b.Total++
		if a.Status == model.GenerationStatusCompleted {
			b.Successful++
		} else {
			b.Failed++
		}
		bucketUsers[key][a.UserID] = struct{}{}

		au, ok := active[a.UserID]
		if !ok {
			au = &ActiveUser{UserID: a.UserID, LastActivityAt: a.CreatedAt}
			active[a.UserID] = au
		}
		au.TotalGenerations++
		if a.Status == model.GenerationStatusCompleted {
			au.SuccessfulGenerations++
		}
		if a.CreatedAt.After(au.LastActivityAt) {
			au.LastActivityAt = a.CreatedAt
		}
	}

	report := &ActivityReport{Activity: make([]ActivityBucket, 0, len(buckets)), TopActiveUsers: []ActiveUser{}}
	report.Period.Days = days
	report.Period.StartDate = start
	report.Period.GroupBy = groupBy
	for key, b := range buckets {
		b.UniqueUsers = len(bucketUsers[key])
		report.Activity = append(report.Activity, *b)
	}
	sort.Slice(report.Activity, func(i, j int) bool {
		return report.Activity[i].Timestamp < report.Activity[j].Timestamp
	})

	users := make([]ActiveUser, 0, len(active))
	for _, au := range active {
		users = append(users, *au)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].TotalGenerations != users[j].TotalGenerations {
			return users[i].TotalGenerations > users[j].TotalGenerations
		}
		return users[i].UserID < users[j].UserID
	})
	if len(users) > topActiveUsersLimit {
		users = users[:topActiveUsersLimit]
	}
	ids := make([]uint, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.UserID)
	}
	found, err := s.userRepo.FindByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]model.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	for i := range users {
		if u, ok := byID[users[i].UserID]; ok {
			users[i].TelegramID = u.TelegramID
			users[i].Username = u.Username
			users[i].FirstName = u.FirstName
		}
	}
	report.TopActiveUsers = users
	return report, nil
}

// ActivityChart 绘制每日生成数量的折线图
func (s *adminService) ActivityChart(days int) ([]byte, error) {
	days = clampDays(days, defaultStatsDays)
	if days < 2 {
		days = 2
	}
	today := StartOfDay(s.now())
	activity, err := s.genRepo.ActivitySince(today.AddDate(0, 0, -days+1))
	if err != nil {
		return nil, err
	}
	daily := dailyStats(today, days, nil, activity)

	xValues := make([]time.Time, 0, len(daily))
	total := make([]float64, 0, len(daily))
	successful := make([]float64, 0, len(daily))
	for i, d := range daily {
		xValues = append(xValues, today.AddDate(0, 0, i-days+1))
		total = append(total, float64(d.Generations))
		successful = append(successful, float64(d.SuccessfulGenerations))
	}

	graph := chart.Chart{
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 20, Right: 20, Bottom: 20}},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Generations",
				XValues: xValues,
				YValues: total,
				Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 3.0},
			},
			chart.TimeSeries{
				Name:    "Successful",
				XValues: xValues,
				YValues: successful,
				Style:   chart.Style{StrokeColor: chart.ColorGreen, StrokeWidth: 3.0},
			},
		},
		XAxis: chart.XAxis{Name: "Day", ValueFormatter: chart.TimeValueFormatterWithFormat("02 Jan")},
		YAxis: chart.YAxis{Name: "Generations", ValueFormatter: func(v interface{}) string { return fmt.Sprintf("%.0f", v.(float64)) }},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	buffer := bytes.NewBuffer(nil)
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("绘制图表失败: %w", err)
	}
	return buffer.Bytes(), nil
}

// IssueAccessToken 生成一小时有效的管理后台访问 token
func (s *adminService) IssueAccessToken(ctx context.Context, userID uint) (*AccessToken, error) {
	tok := token.GenerateRandomString(32)
	if err := s.tokens.Save(ctx, tok, userID, s.tokenTTL); err != nil {
		return nil, err
	}
	return &AccessToken{
		Token:     tok,
		URL:       fmt.Sprintf("%s/admin?token=%s", s.publicURL, tok),
		ExpiresAt: s.now().Add(s.tokenTTL).UTC(),
	}, nil
}

// VerifyAccessToken 判断 token 是否存在且签发者仍是管理员
func (s *adminService) VerifyAccessToken(ctx context.Context, tokenString string) (bool, error) {
	if tokenString == "" {
		return false, nil
	}
	issuerID, ok, err := s.tokens.Lookup(ctx, tokenString)
	if err != nil || !ok {
		return false, err
	}
	if issuerID == botIssuerID {
		return true, nil
	}
	issuer, err := s.userRepo.FindByID(issuerID)
	if repository.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return issuer.IsAdmin, nil
}

// MakeMeAdmin 校验初始化密钥后授予管理员权限
func (s *adminService) MakeMeAdmin(user *model.User, secret string) error {
	if s.secret == "" {
		return ErrAdminSetupDisabled
	}
	if !hash.CheckPasswordHash(secret, s.secret) {
		log.Warnf("[AdminService] 管理员初始化密钥错误, userID: %d", user.ID)
		return ErrInvalidAdminSecret
	}
	if err := s.userRepo.SetAdmin(user.ID, true); err != nil {
		return err
	}
	user.IsAdmin = true
	log.Infof("[AdminService] 用户已成为管理员, userID: %d, telegramID: %d", user.ID, user.TelegramID)
	return nil
}

// GrantAdminByTelegramID 按 Telegram ID 把已登录过的用户设为管理员，供运维命令使用。
func GrantAdminByTelegramID(userRepo repository.UserRepository, telegramID int64) (*model.User, error) {
	user, err := userRepo.FindByTelegramID(telegramID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if err := userRepo.SetAdmin(user.ID, true); err != nil {
		return nil, err
	}
	user.IsAdmin = true
	log.Infof("[AdminService] 用户已成为管理员, userID: %d, telegramID: %d", user.ID, user.TelegramID)
	return user, nil
}

func (s *adminService) Providers() map[string]bool {
	out := make(map[string]bool, len(s.providers))
	for k, v := range s.providers {
		out[k] = v
	}
	return out
}
