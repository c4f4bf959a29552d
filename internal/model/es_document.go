package model

// PersonDocument 定义了存储在 Elasticsearch 中的历史人物文档结构。
type PersonDocument struct {
	PersonID    uint   `json:"person_id"`
	Name        string `json:"name"`
	NameEn      string `json:"name_en"`
	Description string `json:"description"`
	Era         string `json:"era"`
	Category    string `json:"category"`
	Country     string `json:"country"`
}

// NewPersonDocument 由数据库记录构造索引文档。
func NewPersonDocument(p *HistoricalPerson) PersonDocument {
	return PersonDocument{
		PersonID:    p.ID,
		Name:        p.Name,
		NameEn:      p.NameEn,
		Description: p.Description,
		Era:         p.Era,
		Category:    p.Category,
		Country:     p.Country,
	}
}
