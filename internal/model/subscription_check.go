package model

import "time"

// SubscriptionStaleAfter 订阅检查结果超过该时长需要重新检查
const SubscriptionStaleAfter = 24 * time.Hour

// SubscriptionCheck 记录用户对某频道的最近一次订阅检查结果。
type SubscriptionCheck struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;uniqueIndex:idx_subscription_user_channel,priority:1" json:"userId"`
	ChannelID    string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_subscription_user_channel,priority:2" json:"channelId"`
	IsSubscribed bool      `gorm:"not null;default:false" json:"isSubscribed"`
	LastChecked  time.Time `gorm:"index" json:"lastChecked"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (SubscriptionCheck) TableName() string {
	return "subscription_checks"
}

// NeedsRecheck 判断检查结果是否已过期。
func (s *SubscriptionCheck) NeedsRecheck(now time.Time) bool {
	return s == nil || now.Sub(s.LastChecked) > SubscriptionStaleAfter
}
