// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"
	"strings"
	"time"

	"histai-go/internal/model"

	"gorm.io/gorm"
)

// UserFilter 描述管理后台的用户列表查询条件。
type UserFilter struct {
	Search     string
	Subscribed *bool
	SortBy     string
	SortOrder  string
	Offset     int
	Limit      int
}

// 允许排序的列
var userSortColumns = map[string]string{
	"createdAt":  "created_at",
	"username":   "username",
	"telegramId": "telegram_id",
	"firstName":  "first_name",
}

// UserRepository 接口定义了用户数据的持久化操作。
type UserRepository interface {
	Create(user *model.User) error
	Update(user *model.User) error
	FindByID(userID uint) (*model.User, error)
	FindByTelegramID(telegramID int64) (*model.User, error)
	FindByIDs(ids []uint) ([]model.User, error)
	SetSubscribed(userID uint, subscribed bool) error
	SetAdmin(userID uint, admin bool) error
	List(filter UserFilter) ([]model.User, int64, error)
	FindSubscribed() ([]model.User, error)
	Count() (int64, error)
	CountSubscribed() (int64, error)
	CreatedSince(since time.Time) ([]time.Time, error)
}

// userRepository 是 UserRepository 接口的 GORM 实现。
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建一个新的 UserRepository 实例。
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create 在数据库中创建一个新的用户记录。
func (r *userRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

// Update 更新数据库中一个已存在的用户记录。
func (r *userRepository) Update(user *model.User) error {
	return r.db.Save(user).Error
}

// FindByID 根据用户 ID 从数据库中查找一个用户。
func (r *userRepository) FindByID(userID uint) (*model.User, error) {
	var user model.User
	if err := r.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByTelegramID 根据 Telegram ID 查找用户，不存在时返回 gorm.ErrRecordNotFound。
func (r *userRepository) FindByTelegramID(telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByIDs(ids []uint) ([]model.User, error) {
	var users []model.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *userRepository) SetSubscribed(userID uint, subscribed bool) error {
	return r.db.Model(&model.User{}).Where("id = ?", userID).Update("is_subscribed", subscribed).Error
}

func (r *userRepository) SetAdmin(userID uint, admin bool) error {
	res := r.db.Model(&model.User{}).Where("id = ?", userID).Update("is_admin", admin)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List 按条件分页检索用户，返回当前页和总记录数。
func (r *userRepository) List(filter UserFilter) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	db := r.db.Model(&model.User{})
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		db = db.Where("LOWER(username) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR CAST(telegram_id AS CHAR) LIKE ?",
			like, like, like, like)
	}
	if filter.Subscribed != nil {
		db = db.Where("is_subscribed = ?", *filter.Subscribed)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := userSortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	order := column + " DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		order = column + " ASC"
	}
	db = db.Order(order).Order("id")
	if filter.Limit > 0 {
		db = db.Offset(filter.Offset).Limit(filter.Limit)
	}
	if err := db.Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *userRepository) FindSubscribed() ([]model.User, error) {
	var users []model.User
	err := r.db.Where("is_subscribed = ?", true).Find(&users).Error
	return users, err
}

func (r *userRepository) Count() (int64, error) {
	var n int64
	err := r.db.Model(&model.User{}).Count(&n).Error
	return n, err
}

func (r *userRepository) CountSubscribed() (int64, error) {
	var n int64
	err := r.db.Model(&model.User{}).Where("is_subscribed = ?", true).Count(&n).Error
	return n, err
}

// CreatedSince 返回 since 之后注册用户的注册时间。
func (r *userRepository) CreatedSince(since time.Time) ([]time.Time, error) {
	var times []time.Time
	err := r.db.Model(&model.User{}).Where("created_at >= ?", since).Order("created_at").Pluck("created_at", &times).Error
	return times, err
}

// IsNotFound 判断是否为记录不存在错误
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
