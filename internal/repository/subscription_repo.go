package repository

import (
	"time"

	"histai-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionRepository 保存每个用户对频道的最近一次检查结果。
type SubscriptionRepository interface {
	Upsert(userID uint, channelID string, subscribed bool, checkedAt time.Time) error
	// Latest 返回最近一次检查结果，不存在时返回 (nil, nil)
	Latest(userID uint, channelID string) (*model.SubscriptionCheck, error)
}

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository 创建一个新的 SubscriptionRepository 实例。
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Upsert(userID uint, channelID string, subscribed bool, checkedAt time.Time) error {
	check := model.SubscriptionCheck{
		UserID:       userID,
		ChannelID:    channelID,
		IsSubscribed: subscribed,
		LastChecked:  checkedAt,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_subscribed", "last_checked", "updated_at"}),
	}).Create(&check).Error
}

func (r *subscriptionRepository) Latest(userID uint, channelID string) (*model.SubscriptionCheck, error) {
	var check model.SubscriptionCheck
	err := r.db.Where("user_id = ? AND channel_id = ?", userID, channelID).
		Order("last_checked DESC").
		First(&check).Error
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &check, nil
}
