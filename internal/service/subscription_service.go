package service

import (
	"context"
	"time"

	"histai-go/internal/model"
	"histai-go/internal/repository"
	"histai-go/pkg/log"
	"histai-go/pkg/metrics"
	"histai-go/pkg/telegram"
)

// MembershipChecker 查询用户在频道中的成员身份。
type MembershipChecker interface {
	IsSubscribed(channelID string, userID int64) (bool, error)
}

// SubscriptionStatus 是订阅检查的结果
type SubscriptionStatus struct {
	IsSubscribed bool       `json:"isSubscribed"`
	LastChecked  *time.Time `json:"lastChecked"`
	NeedsRecheck bool       `json:"needsRecheck"`
}

// SubscriptionService 负责频道订阅校验。
type SubscriptionService interface {
	// Check 实时查询 Telegram 并持久化结果
	Check(ctx context.Context, user *model.User) (*SubscriptionStatus, error)
	// Status 返回最近一次检查结果
	Status(user *model.User) (*SubscriptionStatus, error)
	ChannelLink() (string, error)
	// RecheckStale 重新检查结果已过期的已订阅用户，返回检查人数
	RecheckStale(ctx context.Context) (int, error)
}

type subscriptionService struct {
	checker   MembershipChecker
	subRepo   repository.SubscriptionRepository
	userRepo  repository.UserRepository
	channelID string
	now       func() time.Time
}

// NewSubscriptionService 创建一个新的 SubscriptionService 实例。
func NewSubscriptionService(checker MembershipChecker, subRepo repository.SubscriptionRepository, userRepo repository.UserRepository, channelID string) SubscriptionService {
	return &subscriptionService{
		checker:   checker,
		subRepo:   subRepo,
		userRepo:  userRepo,
		channelID: channelID,
		now:       time.Now,
	}
}

func (s *subscriptionService) Check(ctx context.Context, user *model.User) (*SubscriptionStatus, error) {
	if s.channelID == "" {
		return nil, ErrChannelNotConfigured
	}

	subscribed, err := s.checker.IsSubscribed(s.channelID, user.TelegramID)
	if err != nil {
		// Telegram 出错时视为未订阅
		log.Warnf("[SubscriptionService] 查询频道成员失败, telegramID: %d, error: %v", user.TelegramID, err)
		subscribed = false
	}
	metrics.IncSubscriptionCheck(subscribed)

	now := s.now().UTC()
	if err := s.subRepo.Upsert(user.ID, s.channelID, subscribed, now); err != nil {
		return nil, err
	}
	if user.IsSubscribed != subscribed {
		if err := s.userRepo.SetSubscribed(user.ID, subscribed); err != nil {
			return nil, err
		}
		user.IsSubscribed = subscribed
	}
	return &SubscriptionStatus{IsSubscribed: subscribed, LastChecked: &now, NeedsRecheck: false}, nil
}

func (s *subscriptionService) Status(user *model.User) (*SubscriptionStatus, error) {
	if s.channelID == "" {
		return nil, ErrChannelNotConfigured
	}
	check, err := s.subRepo.Latest(user.ID, s.channelID)
	if err != nil {
		return nil, err
	}
	if check == nil {
		return &SubscriptionStatus{IsSubscribed: false, NeedsRecheck: true}, nil
	}
	last := check.LastChecked
	return &SubscriptionStatus{
		IsSubscribed: check.IsSubscribed,
		LastChecked:  &last,
		NeedsRecheck: check.NeedsRecheck(s.now()),
	}, nil
}

func (s *subscriptionService) ChannelLink() (string, error) {
	if s.channelID == "" {
		return "", ErrChannelNotConfigured
	}
	return telegram.ChannelLink(s.channelID), nil
}

func (s *subscriptionService) RecheckStale(ctx context.Context) (int, error) {
	if s.channelID == "" {
		return 0, nil
	}
	users, err := s.userRepo.FindSubscribed()
	if err != nil {
		return 0, err
	}
	checked := 0
	for i := range users {
		if err := ctx.Err(); err != nil {
			return checked, err
		}
		latest, err := s.subRepo.Latest(users[i].ID, s.channelID)
		if err != nil {
			return checked, err
		}
		if !latest.NeedsRecheck(s.now()) {
			continue
		}
		if _, err := s.Check(ctx, &users[i]); err != nil {
			log.Errorf("[SubscriptionService] 重新检查订阅失败, userID: %d, error: %v", users[i].ID, err)
			continue
		}
		checked++
	}
	return checked, nil
}
