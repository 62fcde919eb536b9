package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/atlas/internal/models"
	"github.com/example/atlas/internal/utils"
)

// ProductHandler manages the product catalog.
type ProductHandler struct {
	db *gorm.DB
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(db *gorm.DB) *ProductHandler {
	return &ProductHandler{db: db}
}

// ListProducts returns paginated products with optional filters.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Product{}).Where("is_active = ?", true)

	if v := c.Query("category_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			query = query.Where("category_id = ?", id)
		}
	}

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		q := "%" + search + "%"
		query = query.Where("name ILIKE ? OR short_description ILIKE ?", q, q)
	}

	if minPrice := c.Query("min_price"); minPrice != "" {
		if val, err := strconv.ParseInt(minPrice, 10, 64); err == nil {
			query = query.Where("price >= ?", val)
		}
	}

	if maxPrice := c.Query("max_price"); maxPrice != "" {
		if val, err := strconv.ParseInt(maxPrice, 10, 64); err == nil {
			query = query.Where("price <= ?", val)
		}
	}

	if size := c.Query("size"); size != "" {
		query = query.Where(
			"id IN (SELECT product_id FROM product_sizes WHERE size = ? AND in_stock)", size)
	}

	if c.Query("in_stock") == "true" {
		query = query.Where("out_of_stock = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var products []models.Product
	if err := query.Preload("Category").Preload("Sizes").
		Limit(pg.Limit).Offset(pg.Offset).
		Order("created_at desc").
		Find(&products).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    products,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetProduct loads a product with its sizes and media.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var product models.Product
	if err := h.db.Preload("Category").
		Preload("Sizes").
		Preload("Media").
		First(&product, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": product})
}

type productSizeRequest struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

type productMediaRequest struct {
	URL          string `json:"url"`
	AltText      string `json:"alt_text"`
	DisplayOrder int    `json:"display_order"`
}

type productRequest struct {
	Slug             string                `json:"slug"`
	Name             string                `json:"name"`
	ShortDescription string                `json:"short_description"`
	LongDescription  string                `json:"long_description"`
	GenderAudience   string                `json:"gender_audience"`
	Price            int64                 `json:"price"`
	Currency         string                `json:"currency"`
	Material         string                `json:"material"`
	Color            string                `json:"color"`
	HeroImage        string                `json:"hero_image"`
	IsActive         *bool                 `json:"is_active"`
	CategoryID       string                `json:"category_id"`
	Sizes            []productSizeRequest  `json:"sizes"`
	Media            []productMediaRequest `json:"media"`
}

func (r *productRequest) apply(product *models.Product) error {
	if r.Name == "" || r.Slug == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name and slug are required")
	}
	if r.Price < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "price must not be negative")
	}

	product.Slug = r.Slug
	product.Name = r.Name
	product.ShortDescription = r.ShortDescription
	product.LongDescription = r.LongDescription
	product.GenderAudience = r.GenderAudience
	product.Price = r.Price
	product.Currency = r.Currency
	product.Material = r.Material
	product.Color = r.Color
	product.HeroImage = r.HeroImage
	if r.IsActive != nil {
		product.IsActive = *r.IsActive
	}

	product.CategoryID = nil
	if r.CategoryID != "" {
		id, err := uuid.Parse(r.CategoryID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid category_id")
		}
		product.CategoryID = &id
	}

	product.Sizes = nil
	allOut := true
	for _, s := range r.Sizes {
		if s.Size == "" || s.Quantity < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid size entry")
		}
		inStock := s.Quantity > 0
		if inStock {
			allOut = false
		}
		product.Sizes = append(product.Sizes, models.ProductSize{
			Size:     s.Size,
			Quantity: s.Quantity,
			InStock:  inStock,
		})
	}
	product.OutOfStock = allOut

	product.Media = nil
	for _, m := range r.Media {
		product.Media = append(product.Media, models.ProductMedia{
			URL:          m.URL,
			AltText:      m.AltText,
			DisplayOrder: m.DisplayOrder,
		})
	}

	return nil
}

// CreateProduct creates a product together with its size inventory.
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	product := models.Product{IsActive: true}
	if err := req.apply(&product); err != nil {
		return err
	}

	if err := h.db.Create(&product).Error; err != nil {
		if err == gorm.ErrDuplicatedKey {
			return fiber.NewError(fiber.StatusConflict, "slug already exists")
		}
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": product})
}

// UpdateProduct replaces a product's fields and its size/media rows.
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var product models.Product
	if err := h.db.First(&product, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.apply(&product); err != nil {
		return err
	}

	sizes := product.Sizes
	media := product.Media
	product.Sizes = nil
	product.Media = nil

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.ProductSize{}, "product_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.ProductMedia{}, "product_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Omit("Sizes", "Media").Save(&product).Error; err != nil {
			return err
		}
		for i := range sizes {
			sizes[i].ProductID = id
		}
		if len(sizes) > 0 {
			if err := tx.Create(&sizes).Error; err != nil {
				return err
			}
		}
		for i := range media {
			media[i].ProductID = id
		}
		if len(media) > 0 {
			if err := tx.Create(&media).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	product.Sizes = sizes
	product.Media = media
	return c.JSON(fiber.Map{"success": true, "data": product})
}

// DeleteProduct removes a product and its dependent rows.
func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.ProductSize{}, "product_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.ProductMedia{}, "product_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Product{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}
