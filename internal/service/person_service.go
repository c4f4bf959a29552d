package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"histai-go/internal/model"
	"histai-go/internal/personinfo"
	"histai-go/internal/repository"
	"histai-go/pkg/llm"
	"histai-go/pkg/log"
	"histai-go/pkg/tasks"
)

const (
	autocompleteTTL     = 10 * time.Minute
	internetMinResults  = 3
	maxPersonsPageLimit = 50
)

// PersonSearchIndex 是人物全文检索的查询端。
type PersonSearchIndex interface {
	Available() bool
	SearchPersonIDs(ctx context.Context, query, era, category string, size int) ([]uint, error)
}

// TaskPublisher 投递人物索引任务。
type TaskPublisher interface {
	ProducePersonTask(ctx context.Context, task tasks.PersonIndexTask) error
}

// PersonQuery 是人物列表的查询参数
type PersonQuery struct {
	Q           string
	Era         string
	Category    string
	Limit       int
	Offset      int
	UseInternet bool
}

// PersonPage 是人物列表的一页
type PersonPage struct {
	Persons      []model.HistoricalPerson `json:"persons"`
	Total        int64                    `json:"total"`
	Limit        int                      `json:"limit"`
	Offset       int                      `json:"offset"`
	FromInternet bool                     `json:"fromInternet"`
}

// PersonService 负责历史人物的查找、检索与补全。
type PersonService interface {
	// FindOrCreate 先查数据库，未命中时通过联网检索并缓存
	FindOrCreate(ctx context.Context, name string) (*model.HistoricalPerson, personinfo.Info, error)
	GetByID(id uint) (*model.HistoricalPerson, error)
	Search(ctx context.Context, query string, useInternet bool, limit int) ([]model.HistoricalPerson, error)
	List(ctx context.Context, q PersonQuery) (*PersonPage, error)
	Autocomplete(ctx context.Context, query string, limit int) ([]personinfo.Suggestion, error)
}

type personService struct {
	personRepo repository.PersonRepository
	searcher   llm.Client
	index      PersonSearchIndex
	publisher  TaskPublisher
	cache      repository.Cache
}

// NewPersonService 创建一个新的 PersonService 实例；index、publisher、cache 均可为 nil。
func NewPersonService(personRepo repository.PersonRepository, searcher llm.Client, index PersonSearchIndex, publisher TaskPublisher, cache repository.Cache) PersonService {
	return &personService{
		personRepo: personRepo,
		searcher:   searcher,
		index:      index,
		publisher:  publisher,
		cache:      cache,
	}
}

// InfoFromPerson 由数据库记录构造人物信息
func InfoFromPerson(p *model.HistoricalPerson) personinfo.Info {
	era := p.Era
	if era == "" {
		era = personinfo.UnknownEra
	}
	return personinfo.Info{
		Name:        p.Name,
		Description: p.Description,
		Era:         era,
		Country:     p.Country,
		BirthYear:   p.BirthYear,
		DeathYear:   p.DeathYear,
	}
}

// searchVariants 单个词的名称补充上下文后依次尝试
func searchVariants(name string) []string {
	name = strings.TrimSpace(name)
	if len(strings.Fields(name)) != 1 {
		return []string{name}
	}
	return []string{
		name,
		name + " историческая личность",
		name + " политик",
		name + " лидер",
	}
}

func (s *personService) FindOrCreate(ctx context.Context, name string) (*model.HistoricalPerson, personinfo.Info, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, personinfo.Info{}, &ValidationError{Message: "person name is required"}
	}
	person, err := s.personRepo.FindByName(name)
	if err == nil {
		return person, InfoFromPerson(person), nil
	}
	if !repository.IsNotFound(err) {
		return nil, personinfo.Info{}, err
	}

	log.Infof("[PersonService] 数据库中未找到 %q, 开始联网检索", name)
	var info *personinfo.Info
	var lastErr error
	for _, variant := range searchVariants(name) {
		found, err := s.searchInternet(ctx, variant)
		if err != nil {
			log.Warnf("[PersonService] 检索变体 %q 失败: %v", variant, err)
			lastErr = err
			continue
		}
		if found != nil {
			info = found
			break
		}
	}
	if info == nil {
		return nil, personinfo.Info{}, &NotFoundError{Name: name, Cause: lastErr}
	}
	// 以用户输入的名称入库，而非检索变体
	info.Name = strings.TrimSpace(name)

	person, err = s.save(ctx, *info)
	if err != nil {
		return nil, personinfo.Info{}, err
	}
	log.Infof("[PersonService] 已缓存人物 %q (era: %s)", person.Name, person.Era)
	return person, *info, nil
}

func (s *personService) GetByID(id uint) (*model.HistoricalPerson, error) {
	p, err := s.personRepo.FindByID(id)
	if repository.IsNotFound(err) {
		return nil, &NotFoundError{Name: fmt.Sprintf("#%d", id)}
	}
	return p, err
}

// searchInternet 调用检索模型，返回 nil 表示模型认为人物不存在
func (s *personService) searchInternet(ctx context.Context, name string) (*personinfo.Info, error) {
	if s.searcher == nil || !s.searcher.Configured() {
		return nil, llm.ErrNotConfigured
	}
	content, err := s.searcher.ChatMessages(ctx, []llm.Message{
		{Role: "system", Content: personinfo.SearchSystem},
		{Role: "user", Content: personinfo.SearchPrompt(name)},
	}, &llm.GenerationParams{Temperature: llm.Float64(0.7), MaxTokens: llm.Int(1000)})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" || personinfo.IndicatesNotFound(content) {
		return nil, nil
	}
	info := personinfo.Parse(name, content)
	return &info, nil
}

func (s *personService) save(ctx context.Context, info personinfo.Info) (*model.HistoricalPerson, error) {
	person := &model.HistoricalPerson{
		Name:        info.Name,
		NameEn:      info.Name,
		Description: info.Description,
		Era:         info.Era,
		Category:    personinfo.Category(info),
		Country:     info.Country,
		BirthYear:   info.BirthYear,
		DeathYear:   info.DeathYear,
	}
	if err := s.personRepo.Create(person); err != nil {
		return nil, fmt.Errorf("保存人物失败: %w", err)
	}
	s.publishIndex(ctx, person)
	return person, nil
}

func (s *personService) publishIndex(ctx context.Context, p *model.HistoricalPerson) {
	if s.publisher == nil {
		return
	}
	task := tasks.PersonIndexTask{Action: tasks.ActionIndex, PersonID: p.ID, Name: p.Name}
	if err := s.publisher.ProducePersonTask(ctx, task); err != nil {
		// 索引失败不影响主流程
		log.Errorf("[PersonService] 投递索引任务失败, personID: %d, error: %v", p.ID, err)
	}
}

// localSearch 优先使用全文检索，失败或不可用时退回数据库模糊匹配
func (s *personService) localSearch(ctx context.Context, query string, limit int) ([]model.HistoricalPerson, error) {
	if s.index != nil && s.index.Available() {
		ids, err := s.index.SearchPersonIDs(ctx, query, "", "", limit)
		if err == nil && len(ids) > 0 {
			return s.personRepo.FindByIDs(ids)
		}
		if err != nil {
			log.Warnf("[PersonService] 全文检索失败, 退回数据库查询: %v", err)
		}
	}
	return s.personRepo.Search(query, limit)
}

func (s *personService) Search(ctx context.Context, query string, useInternet bool, limit int) ([]model.HistoricalPerson, error) {
	results, err := s.localSearch(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	if !useInternet || len(results) >= internetMinResults || len([]rune(query)) <= 3 {
		return results, nil
	}
	info, err := s.searchInternet(ctx, query)
	if err != nil {
		log.Warnf("[PersonService] 联网检索失败, 仅返回本地结果: %v", err)
		return results, nil
	}
	if info == nil {
		return results, nil
	}
	for _, p := range results {
		if strings.EqualFold(p.Name, info.Name) {
			return results, nil
		}
	}
	if existing, err := s.personRepo.FindByName(info.Name); err == nil {
		return append(results, *existing), nil
	}
	person, err := s.save(ctx, *info)
	if err != nil {
		log.Errorf("[PersonService] 保存联网检索结果失败: %v", err)
		return results, nil
	}
	return append(results, *person), nil
}

func (s *personService) List(ctx context.Context, q PersonQuery) (*PersonPage, error) {
	if q.Limit <= 0 || q.Limit > maxPersonsPageLimit {
		q.Limit = maxPersonsPageLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	if len([]rune(strings.TrimSpace(q.Q))) > 2 {
		persons, err := s.Search(ctx, q.Q, q.UseInternet, q.Limit+q.Offset)
		if err != nil {
			return nil, err
		}
		filtered := persons[:0]
		for _, p := range persons {
			if q.Era != "" && p.Era != q.Era {
				continue
			}
			if q.Category != "" && p.Category != q.Category {
				continue
			}
			filtered = append(filtered, p)
		}
		page := []model.HistoricalPerson{}
		if q.Offset < len(filtered) {
			end := q.Offset + q.Limit
			if end > len(filtered) {
				end = len(filtered)
			}
			page = filtered[q.Offset:end]
		}
		return &PersonPage{Persons: page, Total: int64(len(filtered)), Limit: q.Limit, Offset: q.Offset, FromInternet: q.UseInternet}, nil
	}

	persons, total, err := s.personRepo.List(repository.PersonFilter{Era: q.Era, Category: q.Category, Offset: q.Offset, Limit: q.Limit})
	if err != nil {
		return nil, err
	}
	if persons == nil {
		persons = []model.HistoricalPerson{}
	}
	return &PersonPage{Persons: persons, Total: total, Limit: q.Limit, Offset: q.Offset}, nil
}

func (s *personService) Autocomplete(ctx context.Context, query string, limit int) ([]personinfo.Suggestion, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < 2 {
		return []personinfo.Suggestion{}, nil
	}
	if limit <= 0 {
		limit = 5
	}

	cacheKey := fmt.Sprintf("autocomplete:%s:%d", strings.ToLower(query), limit)
	if s.cache != nil {
		var cached []personinfo.Suggestion
		if ok, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && ok {
			return cached, nil
		}
	}

	persons, err := s.personRepo.Autocomplete(query, limit)
	if err != nil {
		return nil, err
	}
	dbSuggestions := make([]personinfo.Suggestion, 0, len(persons))
	for _, p := range persons {
		dbSuggestions = append(dbSuggestions, personinfo.Suggestion{
			Name:        p.Name,
			DisplayName: personinfo.DisplayName(p.Name, p.Era),
			Era:         p.Era,
			Source:      personinfo.SourceDatabase,
		})
	}

	suggestions := dbSuggestions
	if len(dbSuggestions) < limit && s.searcher != nil && s.searcher.Configured() {
		content, err := s.searcher.ChatMessages(ctx, []llm.Message{
			{Role: "system", Content: personinfo.SuggestSystem},
			{Role: "user", Content: personinfo.SuggestPrompt(query, limit-len(dbSuggestions))},
		}, &llm.GenerationParams{Temperature: llm.Float64(0.7), MaxTokens: llm.Int(500)})
		if err != nil {
			log.Warnf("[PersonService] 联网补全失败, 仅返回数据库结果: %v", err)
		} else {
			suggestions = personinfo.MergeSuggestions(limit, dbSuggestions, personinfo.ParseSuggestions(content, query))
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, suggestions, autocompleteTTL); err != nil {
			log.Warnf("[PersonService] 写入补全缓存失败: %v", err)
		}
	}
	return suggestions, nil
}
