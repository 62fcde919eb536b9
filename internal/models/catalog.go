package models

type Category struct {
	BaseModel
	Slug         string `gorm:"uniqueIndex" json:"slug"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	DisplayOrder int    `json:"display_order"`
	IsActive     bool   `json:"is_active"`
}
