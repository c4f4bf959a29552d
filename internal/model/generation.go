package model

import "time"

// 生成记录状态
const (
	GenerationStatusCompleted = "completed"
	GenerationStatusFailed    = "failed"
)

// 画像风格
const (
	StyleRealistic  = "realistic"
	StyleArtistic   = "artistic"
	StyleHistorical = "historical"
)

// Generation 表示一次画像生成尝试。
type Generation struct {
	ID                 string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID             uint              `gorm:"not null;index:idx_generation_user_status_created,priority:1" json:"userId"`
	HistoricalPersonID *uint             `gorm:"index" json:"historicalPersonId,omitempty"`
	HistoricalPerson   *HistoricalPerson `gorm:"foreignKey:HistoricalPersonID" json:"historicalPerson,omitempty"`
	PersonName         string            `gorm:"type:varchar(255);not null" json:"personName"`
	Prompt             string            `gorm:"type:text" json:"prompt"`
	ImageURL           string            `gorm:"type:mediumtext" json:"imageUrl"` // 未启用对象存储时为 data URL
	Style              string            `gorm:"type:varchar(32);not null;default:'realistic'" json:"style"`
	Status             string            `gorm:"type:varchar(16);not null;index:idx_generation_user_status_created,priority:2" json:"status"`
	Provider           string            `gorm:"type:varchar(64)" json:"provider,omitempty"`
	ErrorMessage       string            `gorm:"type:text" json:"errorMessage,omitempty"`
	CreatedAt          time.Time         `gorm:"index:idx_generation_user_status_created,priority:3" json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

func (Generation) TableName() string {
	return "generations"
}

// ValidStyle 判断风格是否受支持。
func ValidStyle(style string) bool {
	switch style {
	case StyleRealistic, StyleArtistic, StyleHistorical:
		return true
	}
	return false
}
