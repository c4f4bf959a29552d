// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// User 对应通过 Telegram 登录的用户。
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TelegramID   int64     `gorm:"uniqueIndex;not null" json:"telegramId"`
	Username     string    `gorm:"type:varchar(255)" json:"username"`
	FirstName    string    `gorm:"type:varchar(255)" json:"firstName"`
	LastName     string    `gorm:"type:varchar(255)" json:"lastName"`
	PhotoURL     string    `gorm:"type:varchar(1024)" json:"photoUrl"`
	IsSubscribed bool      `gorm:"not null;default:false;index" json:"isSubscribed"`
	IsAdmin      bool      `gorm:"not null;default:false" json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

// DisplayName 返回用于展示的名称：优先 username，其次姓名。
func (u *User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}
