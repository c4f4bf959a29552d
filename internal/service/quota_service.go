package service

import (
	"context"
	"time"

	"histai-go/internal/model"
	"histai-go/internal/repository"
	"histai-go/pkg/log"
	"histai-go/pkg/metrics"
)

// ipWindow IP 限额的固定窗口
const ipWindow = 24 * time.Hour

// DailyLimitStatus 描述用户当日配额
type DailyLimitStatus struct {
	Limit          int  `json:"limit"`
	Used           int  `json:"used"`
	Remaining      int  `json:"remaining"`
	IsLimitReached bool `json:"isLimitReached"`
}

// QuotaService 负责用户日配额与 IP 限额。
type QuotaService interface {
	DailyStatus(userID uint) (*DailyLimitStatus, error)
	// CheckDaily 在达到日配额时返回 *LimitError
	CheckDaily(userID uint) (*DailyLimitStatus, error)
	// HitIP 记录一次来自 ip 的生成请求，超出限额时返回 *LimitError
	HitIP(ctx context.Context, ip string) error
}

type quotaService struct {
	genRepo      repository.GenerationRepository
	counter      repository.LimitCounter
	dailyLimit   int
	ipDailyLimit int
	now          func() time.Time
}

// NewQuotaService 创建一个新的 QuotaService 实例，counter 为 nil 时不做 IP 限制。
func NewQuotaService(genRepo repository.GenerationRepository, counter repository.LimitCounter, dailyLimit, ipDailyLimit int) QuotaService {
	return &quotaService{
		genRepo:      genRepo,
		counter:      counter,
		dailyLimit:   dailyLimit,
		ipDailyLimit: ipDailyLimit,
		now:          time.Now,
	}
}

// StartOfDay 返回 t 所在 UTC 日的零点
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *quotaService) DailyStatus(userID uint) (*DailyLimitStatus, error) {
	used, err := s.genRepo.CountByUserSince(userID, model.GenerationStatusCompleted, StartOfDay(s.now()))
	if err != nil {
		return nil, err
	}
	remaining := s.dailyLimit - int(used)
	if remaining < 0 {
		remaining = 0
	}
	return &DailyLimitStatus{
		Limit:          s.dailyLimit,
		Used:           int(used),
		Remaining:      remaining,
		IsLimitReached: int(used) >= s.dailyLimit,
	}, nil
}

func (s *quotaService) CheckDaily(userID uint) (*DailyLimitStatus, error) {
	status, err := s.DailyStatus(userID)
	if err != nil {
		return nil, err
	}
	if status.IsLimitReached {
		metrics.IncLimitRejection("daily")
		now := s.now()
		return status, &LimitError{
			Kind:       ErrDailyLimitReached,
			Limit:      status.Limit,
			Used:       status.Used,
			Remaining:  0,
			RetryAfter: StartOfDay(now).Add(24 * time.Hour).Sub(now),
		}
	}
	return status, nil
}

func (s *quotaService) HitIP(ctx context.Context, ip string) error {
	if s.counter == nil || s.ipDailyLimit <= 0 {
		return nil
	}
	count, ttl, err := s.counter.Hit(ctx, "ratelimit:ip:"+ip, ipWindow)
	if err != nil {
		// Redis 不可用时放行，日配额仍然生效
		log.Warnf("[QuotaService] IP 限额计数失败, ip: %s, error: %v", ip, err)
		return nil
	}
	if int(count) > s.ipDailyLimit {
		metrics.IncLimitRejection("ip")
		return &LimitError{
			Kind:       ErrIPLimitReached,
			Limit:      s.ipDailyLimit,
			Used:       int(count),
			Remaining:  0,
			RetryAfter: ttl,
		}
	}
	return nil
}
