package repository

import (
	"strings"

	"histai-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PersonFilter 描述人物列表的过滤与分页条件。
type PersonFilter struct {
	Era      string
	Category string
	Offset   int
	Limit    int
}

// PersonRepository 定义了历史人物缓存的持久化操作。
type PersonRepository interface {
	Create(person *model.HistoricalPerson) error
	FindByID(id uint) (*model.HistoricalPerson, error)
	FindByIDs(ids []uint) ([]model.HistoricalPerson, error)
	FindByName(name string) (*model.HistoricalPerson, error)
	Search(query string, limit int) ([]model.HistoricalPerson, error)
	List(filter PersonFilter) ([]model.HistoricalPerson, int64, error)
	Autocomplete(query string, limit int) ([]model.HistoricalPerson, error)
}

type personRepository struct {
	db *gorm.DB
}

// NewPersonRepository 创建一个新的 PersonRepository 实例。
func NewPersonRepository(db *gorm.DB) PersonRepository {
	return &personRepository{db: db}
}

func (r *personRepository) Create(person *model.HistoricalPerson) error {
	return r.db.Create(person).Error
}

func (r *personRepository) FindByID(id uint) (*model.HistoricalPerson, error) {
	var p model.HistoricalPerson
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByIDs 按给定 ID 顺序返回人物，缺失的 ID 被跳过。
func (r *personRepository) FindByIDs(ids []uint) ([]model.HistoricalPerson, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []model.HistoricalPerson
	if err := r.db.Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]model.HistoricalPerson, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]model.HistoricalPerson, 0, len(found))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// FindByName 按名称或英文名不区分大小写查找，不存在时返回 gorm.ErrRecordNotFound。
func (r *personRepository) FindByName(name string) (*model.HistoricalPerson, error) {
	var p model.HistoricalPerson
	lower := strings.ToLower(strings.TrimSpace(name))
	err := r.db.Where("LOWER(name) = ? OR LOWER(name_en) = ?", lower, lower).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Search 在名称与描述中做模糊匹配，按名称排序。
func (r *personRepository) Search(query string, limit int) ([]model.HistoricalPerson, error) {
	var persons []model.HistoricalPerson
	like := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	err := r.db.
		Where("LOWER(name) LIKE ? OR LOWER(name_en) LIKE ? OR LOWER(description) LIKE ?", like, like, like).
		Order("name ASC").
		Limit(limit).
		Find(&persons).Error
	return persons, err
}

func (r *personRepository) List(filter PersonFilter) ([]model.HistoricalPerson, int64, error) {
	var persons []model.HistoricalPerson
	var total int64

	db := r.db.Model(&model.HistoricalPerson{})
	if filter.Era != "" {
		db = db.Where("era = ?", filter.Era)
	}
	if filter.Category != "" {
		db = db.Where("category = ?", filter.Category)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("name ASC").Offset(filter.Offset).Limit(filter.Limit).Find(&persons).Error; err != nil {
		return nil, 0, err
	}
	return persons, total, nil
}

// Autocomplete 返回名称包含 query 的人物，前缀匹配排在前面。
func (r *personRepository) Autocomplete(query string, limit int) ([]model.HistoricalPerson, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	var persons []model.HistoricalPerson
	err := r.db.
		Where("LOWER(name) LIKE ? OR LOWER(name_en) LIKE ?", "%"+q+"%", "%"+q+"%").
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                "CASE WHEN LOWER(name) LIKE ? THEN 0 ELSE 1 END, name ASC",
			Vars:               []interface{}{q + "%"},
			WithoutParentheses: true,
		}}).
		Limit(limit).
		Find(&persons).Error
	return persons, err
}
