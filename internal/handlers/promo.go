package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/example/atlas/internal/middleware"
	"github.com/example/atlas/internal/models"
	"github.com/example/atlas/internal/services"
	"github.com/example/atlas/internal/utils"
)

// PromoHandler manages promo evaluation and admin promo CRUD.
type PromoHandler struct {
	db       *gorm.DB
	discount *services.DiscountService
}

// NewPromoHandler constructs PromoHandler.
func NewPromoHandler(db *gorm.DB, discount *services.DiscountService) *PromoHandler {
	return &PromoHandler{db: db, discount: discount}
}

type evaluateRequest struct {
	Code     string              `json:"code"`
	Items    []services.CartItem `json:"items"`
	Subtotal int64               `json:"subtotal"`
}

var discountReasons = map[error]string{
	services.ErrCodeNotFound:        "promo code not found",
	services.ErrCodeInactive:        "promo code is not active",
	services.ErrCodeExpired:         "promo code has expired",
	services.ErrLoginRequired:       "sign in to use this promo code",
	services.ErrPerUserLimitReached: "you have already used this promo code",
	services.ErrGlobalLimitReached:  "promo code usage limit reached",
	services.ErrNotApplicable:       "promo code does not apply to this cart",
}

// Evaluate prices a promo code against the submitted cart. Business
// rejections come back inline with a reason; the preview never consumes
// a redemption.
func (h *PromoHandler) Evaluate(c *fiber.Ctx) error {
	var req evaluateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "code is required")
	}

	var userID *uuid.UUID
	if id, ok := middleware.GetCurrentUserID(c); ok {
		userID = &id
	}

	decision, err := h.discount.Evaluate(c.Context(), req.Code, req.Items, req.Subtotal, userID)
	if err != nil {
		if message, known := discountReasons[err]; known {
			return c.JSON(fiber.Map{
				"success": true,
				"data": fiber.Map{
					"valid":   false,
					"reason":  err.Error(),
					"message": message,
				},
			})
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"valid":           true,
			"discount_amount": decision.DiscountAmount,
			"eligible_amount": decision.EligibleAmount,
			"total":           req.Subtotal - decision.DiscountAmount,
			"promo": fiber.Map{
				"code":  decision.Promo.Code,
				"kind":  decision.Promo.Kind,
				"value": decision.Promo.Value,
			},
		},
	})
}

type promoRequest struct {
	Code             string     `json:"code"`
	Kind             string     `json:"kind"`
	Value            int64      `json:"value"`
	MaxAmount        *int64     `json:"max_amount"`
	IsActive         *bool      `json:"is_active"`
	ExpiresAt        *time.Time `json:"expires_at"`
	RequiresLogin    bool       `json:"requires_login"`
	PerUserLimit     int        `json:"per_user_limit"`
	TotalUsageLimit  *int       `json:"total_usage_limit"`
	Scope            string     `json:"scope"`
	SelectedProducts []string   `json:"selected_products"`
}

func (r *promoRequest) validate() error {
	if services.NormalizePromoCode(r.Code) == "" {
		return errors.New("code is required")
	}
	if r.Kind != models.PromoKindFixed && r.Kind != models.PromoKindPercentage {
		return errors.New("kind must be fixed or percentage")
	}
	if r.Value <= 0 {
		return errors.New("value must be positive")
	}
	if r.Kind == models.PromoKindPercentage && r.Value > 100 {
		return errors.New("percentage value must not exceed 100")
	}
	if r.Scope == "" {
		r.Scope = models.PromoScopeAll
	}
	if r.Scope != models.PromoScopeAll && r.Scope != models.PromoScopeSelectedProducts {
		return errors.New("invalid scope")
	}
	if r.Scope == models.PromoScopeSelectedProducts && len(r.SelectedProducts) == 0 {
		return errors.New("selected_products is required for a scoped code")
	}
	return nil
}

func (r *promoRequest) apply(promo *models.PromoCode) {
	promo.Code = services.NormalizePromoCode(r.Code)
	promo.Kind = r.Kind
	promo.Value = r.Value
	promo.MaxAmount = r.MaxAmount
	promo.ExpiresAt = r.ExpiresAt
	promo.RequiresLogin = r.RequiresLogin
	promo.PerUserLimit = r.PerUserLimit
	promo.TotalUsageLimit = r.TotalUsageLimit
	promo.Scope = r.Scope
	promo.SelectedProducts = pq.StringArray(r.SelectedProducts)
	if r.IsActive != nil {
		promo.IsActive = *r.IsActive
	}
}

// ListPromoCodes returns paginated promo codes for the admin panel.
func (h *PromoHandler) ListPromoCodes(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	var total int64
	if err := h.db.Model(&models.PromoCode{}).Count(&total).Error; err != nil {
		return err
	}

	var promos []models.PromoCode
	if err := h.db.Limit(pg.Limit).Offset(pg.Offset).
		Order("created_at desc").Find(&promos).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": promos, "pagination": fiber.Map{
		"current_page":   pg.Page,
		"items_per_page": pg.Limit,
		"total_items":    total,
	}})
}

// GetPromoCode returns one promo code with its redemptions.
func (h *PromoHandler) GetPromoCode(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var promo models.PromoCode
	if err := h.db.Preload("Redemptions").First(&promo, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "promo code not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": promo})
}

// CreatePromoCode creates a promo code.
func (h *PromoHandler) CreatePromoCode(c *fiber.Ctx) error {
	var req promoRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	promo := models.PromoCode{IsActive: true}
	req.apply(&promo)

	if err := h.db.Create(&promo).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fiber.NewError(fiber.StatusConflict, "promo code already exists")
		}
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": promo})
}

// UpdatePromoCode updates an existing promo code. Usage counters are not
// editable here; they only move at order confirmation.
func (h *PromoHandler) UpdatePromoCode(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var promo models.PromoCode
	if err := h.db.First(&promo, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "promo code not found")
		}
		return err
	}

	var req promoRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	req.apply(&promo)

	if err := h.db.Save(&promo).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fiber.NewError(fiber.StatusConflict, "promo code already exists")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": promo})
}

// DeletePromoCode removes a promo code.
func (h *PromoHandler) DeletePromoCode(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	if err := h.db.Delete(&models.PromoCode{}, "id = ?", id).Error; err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}
