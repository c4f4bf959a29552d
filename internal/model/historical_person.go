package model

import "time"

// HistoricalPerson 是历史人物缓存，由外部检索按需填充。
type HistoricalPerson struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null;index" json:"name"`
	NameEn      string    `gorm:"type:varchar(255);index" json:"nameEn,omitempty"`
	Description string    `gorm:"type:text" json:"description"`
	Era         string    `gorm:"type:varchar(100);index" json:"era"`
	Category    string    `gorm:"type:varchar(100);index" json:"category,omitempty"`
	Country     string    `gorm:"type:varchar(100)" json:"country,omitempty"`
	BirthYear   *int      `json:"birthYear,omitempty"`
	DeathYear   *int      `json:"deathYear,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (HistoricalPerson) TableName() string {
	return "historical_persons"
}

// 人物分类
const (
	CategoryPolitician = "Politician"
	CategoryArtist     = "Artist"
	CategoryScientist  = "Scientist"
	CategoryMilitary   = "Military"
)
