package repository

import (
	"time"

	"histai-go/internal/model"

	"gorm.io/gorm"
)

// ActivityRow 是统计用的轻量生成记录。
type ActivityRow struct {
	UserID     uint
	PersonName string
	Status     string
	CreatedAt  time.Time
}

// UserCount 用户维度的计数。
type UserCount struct {
	UserID uint
	Count  int64
}

// PersonCount 人物维度的计数。
type PersonCount struct {
	PersonName string
	Count      int64
}

// StatusCounts 汇总生成记录数量。
type StatusCounts struct {
	Total     int64
	Completed int64
	Failed    int64
}

// GenerationRepository 定义了生成记录的持久化操作。
type GenerationRepository interface {
	Create(g *model.Generation) error
	FindByID(id string) (*model.Generation, error)
	Delete(id string) error
	CountByUserSince(userID uint, status string, since time.Time) (int64, error)
	ListCompletedByUser(userID uint, offset, limit int) ([]model.Generation, int64, error)
	ListPublic(limit int) ([]model.Generation, error)
	CountByStatus(since *time.Time) (StatusCounts, error)
	ActivitySince(since time.Time) ([]ActivityRow, error)
	ActivityByUsers(userIDs []uint) ([]ActivityRow, error)
	TopUsers(since time.Time, limit int) ([]UserCount, error)
	TopPersons(since time.Time, limit int) ([]PersonCount, error)
	DeleteFailedBefore(before time.Time) (int64, error)
}

type generationRepository struct {
	db *gorm.DB
}

// NewGenerationRepository 创建一个新的 GenerationRepository 实例。
func NewGenerationRepository(db *gorm.DB) GenerationRepository {
	return &generationRepository{db: db}
}

func (r *generationRepository) Create(g *model.Generation) error {
	return r.db.Create(g).Error
}

func (r *generationRepository) FindByID(id string) (*model.Generation, error) {
	var g model.Generation
	if err := r.db.Where("id = ?", id).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *generationRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.Generation{}).Error
}

// CountByUserSince 统计用户在 since 之后指定状态的生成次数。
func (r *generationRepository) CountByUserSince(userID uint, status string, since time.Time) (int64, error) {
	var n int64
	err := r.db.Model(&model.Generation{}).
		Where("user_id = ? AND status = ? AND created_at >= ?", userID, status, since).
		Count(&n).Error
	return n, err
}

// ListCompletedByUser 分页返回用户成功的生成记录（新的在前），附带人物信息。
func (r *generationRepository) ListCompletedByUser(userID uint, offset, limit int) ([]model.Generation, int64, error) {
	var gens []model.Generation
	var total int64

	db := r.db.Model(&model.Generation{}).Where("user_id = ? AND status = ?", userID, model.GenerationStatusCompleted)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := db.Preload("HistoricalPerson").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&gens).Error
	if err != nil {
		return nil, 0, err
	}
	return gens, total, nil
}

// ListPublic 返回最新的带图片的成功生成记录。
func (r *generationRepository) ListPublic(limit int) ([]model.Generation, error) {
	var gens []model.Generation
	err := r.db.
		Where("status = ? AND image_url <> ''", model.GenerationStatusCompleted).
		Order("created_at DESC").
		Limit(limit).
		Find(&gens).Error
	return gens, err
}

// CountByStatus 汇总各状态数量，since 为 nil 时统计全部。
func (r *generationRepository) CountByStatus(since *time.Time) (StatusCounts, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	db := r.db.Model(&model.Generation{}).Select("status, COUNT(*) AS count")
	if since != nil {
		db = db.Where("created_at >= ?", *since)
	}
	if err := db.Group("status").Scan(&rows).Error; err != nil {
		return StatusCounts{}, err
	}
	var out StatusCounts
	for _, row := range rows {
		out.Total += row.Count
		switch row.Status {
		case model.GenerationStatusCompleted:
			out.Completed = row.Count
		case model.GenerationStatusFailed:
			out.Failed = row.Count
		}
	}
	return out, nil
}

func (r *generationRepository) ActivitySince(since time.Time) ([]ActivityRow, error) {
	var rows []ActivityRow
	err := r.db.Model(&model.Generation{}).
		Select("user_id, person_name, status, created_at").
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *generationRepository) ActivityByUsers(userIDs []uint) ([]ActivityRow, error) {
	var rows []ActivityRow
	if len(userIDs) == 0 {
		return rows, nil
	}
	err := r.db.Model(&model.Generation{}).
		Select("user_id, person_name, status, created_at").
		Where("user_id IN ?", userIDs).
		Scan(&rows).Error
	return rows, err
}

// TopUsers 返回 since 之后成功生成次数最多的用户。
func (r *generationRepository) TopUsers(since time.Time, limit int) ([]UserCount, error) {
	var rows []UserCount
	err := r.db.Model(&model.Generation{}).
		Select("user_id, COUNT(*) AS count").
		Where("status = ? AND created_at >= ?", model.GenerationStatusCompleted, since).
		Group("user_id").
		Order("count DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// TopPersons 返回 since 之后被成功生成最多的人物。
func (r *generationRepository) TopPersons(since time.Time, limit int) ([]PersonCount, error) {
	var rows []PersonCount
	err := r.db.Model(&model.Generation{}).
		Select("person_name, COUNT(*) AS count").
		Where("status = ? AND created_at >= ?", model.GenerationStatusCompleted, since).
		Group("person_name").
		Order("count DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// DeleteFailedBefore 清理 before 之前的失败记录，返回删除条数。
func (r *generationRepository) DeleteFailedBefore(before time.Time) (int64, error) {
	res := r.db.Where("status = ? AND created_at < ?", model.GenerationStatusFailed, before).Delete(&model.Generation{})
	return res.RowsAffected, res.Error
}
