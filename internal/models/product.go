package models

import (
	"github.com/google/uuid"
)

type Product struct {
	BaseModel
	Slug             string         `gorm:"uniqueIndex" json:"slug"`
	Name             string         `json:"name"`
	ShortDescription string         `json:"short_description"`
	LongDescription  string         `json:"long_description"`
	GenderAudience   string         `json:"gender_audience"`
	Price            int64          `json:"price"`
	Currency         string         `json:"currency"`
	Material         string         `json:"material"`
	Color            string         `json:"color"`
	HeroImage        string         `json:"hero_image"`
	IsActive         bool           `json:"is_active"`
	OutOfStock       bool           `json:"out_of_stock"`
	CategoryID       *uuid.UUID     `gorm:"type:uuid" json:"category_id"`
	Category         *Category      `json:"category,omitempty"`
	Sizes            []ProductSize  `json:"sizes,omitempty"`
	Media            []ProductMedia `json:"media,omitempty"`
}

// ProductSize is the per-size inventory row for a product. Quantity is
// mutated by admin edits and by order placement; InStock follows Quantity.
type ProductSize struct {
	BaseModel
	ProductID uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_product_sizes_product_size" json:"product_id"`
	Size      string    `gorm:"uniqueIndex:idx_product_sizes_product_size" json:"size"`
	Quantity  int       `json:"quantity"`
	InStock   bool      `json:"in_stock"`
}

type ProductMedia struct {
	BaseModel
	ProductID    uuid.UUID `gorm:"type:uuid;index" json:"product_id"`
	URL          string    `json:"url"`
	AltText      string    `json:"alt_text"`
	DisplayOrder int       `json:"display_order"`
}
