package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/atlas/internal/middleware"
	"github.com/example/atlas/internal/models"
	"github.com/example/atlas/internal/services"
	"github.com/example/atlas/internal/utils"
)

// OrderHandler manages order endpoints.
type OrderHandler struct {
	db       *gorm.DB
	checkout *services.CheckoutService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(db *gorm.DB, checkout *services.CheckoutService) *OrderHandler {
	return &OrderHandler{db: db, checkout: checkout}
}

type createOrderRequest struct {
	Items         []services.OrderLine  `json:"items"`
	Shipping      services.ShippingInfo `json:"shipping"`
	PaymentMethod string                `json:"payment_method"`
	PromoCode     string                `json:"promo_code"`
	Notes         string                `json:"notes"`
}

// CreateOrder places an order for the authenticated user. Every failure
// reason is structured; nothing is persisted on failure.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.checkout.PlaceOrder(c.Context(), userID, services.PlaceOrderInput{
		Items:         req.Items,
		Shipping:      req.Shipping,
		PaymentMethod: req.PaymentMethod,
		PromoCode:     req.PromoCode,
		Notes:         req.Notes,
	})
	if err != nil {
		return orderFailure(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":              order.ID,
			"order_code":      order.OrderCode,
			"status":          order.Status,
			"payment_status":  order.PaymentStatus,
			"shipping_status": order.ShippingStatus,
			"placed_at":       order.PlacedAt,
			"subtotal":        order.Subtotal,
			"discount_amount": order.DiscountAmount,
			"total":           order.TotalAmount,
			"currency":        order.Currency,
		},
	})
}

func orderFailure(c *fiber.Ctx, err error) error {
	var stockErr *services.InsufficientStockError
	if errors.As(err, &stockErr) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success":    false,
			"reason":     "insufficient_stock",
			"message":    "not enough stock for the requested item",
			"product_id": stockErr.ProductID,
			"size":       stockErr.Size,
		})
	}

	switch {
	case errors.Is(err, services.ErrEmptyCart),
		errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrMissingShipping):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"reason":  err.Error(),
			"message": "order request is invalid",
		})
	case errors.Is(err, services.ErrProductNotFound):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"reason":  err.Error(),
			"message": "an item in the cart no longer exists",
		})
	}

	if message, known := discountReasons[err]; known {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"reason":  err.Error(),
			"message": message,
		})
	}

	return err
}

// ListOrders returns orders for the authenticated user.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	query := h.db.Where("user_id = ?", userID).Model(&models.Order{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.Preload("Items").
		Order("placed_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    orders,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetOrder returns a single order for the authenticated user.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var order models.Order
	if err := h.db.Preload("Items").
		First(&order, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

// ListAllOrders returns every order for the admin panel.
func (h *OrderHandler) ListAllOrders(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Order{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if status := c.Query("payment_status"); status != "" {
		query = query.Where("payment_status = ?", status)
	}
	if status := c.Query("shipping_status"); status != "" {
		query = query.Where("shipping_status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.Preload("Items").Preload("User").
		Order("placed_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    orders,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

type updateOrderStatusRequest struct {
	Status         string `json:"status"`
	PaymentStatus  string `json:"payment_status"`
	ShippingStatus string `json:"shipping_status"`
}

var (
	validOrderStatuses = map[string]bool{
		models.OrderStatusPending:    true,
		models.OrderStatusProcessing: true,
		models.OrderStatusCompleted:  true,
		models.OrderStatusCancelled:  true,
	}
	validPaymentStatuses = map[string]bool{
		models.PaymentStatusPending:  true,
		models.PaymentStatusPaid:     true,
		models.PaymentStatusFailed:   true,
		models.PaymentStatusRefunded: true,
	}
	validShippingStatuses = map[string]bool{
		models.ShippingStatusPending:   true,
		models.ShippingStatusShipped:   true,
		models.ShippingStatusDelivered: true,
		models.ShippingStatusReturned:  true,
	}
)

// UpdateOrderStatus lets an administrator move any of the three status
// fields. Items and amounts stay immutable.
func (h *OrderHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req updateOrderStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Status != "" {
		if !validOrderStatuses[req.Status] {
			return fiber.NewError(fiber.StatusBadRequest, "invalid status")
		}
		updates["status"] = req.Status
	}
	if req.PaymentStatus != "" {
		if !validPaymentStatuses[req.PaymentStatus] {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payment status")
		}
		updates["payment_status"] = req.PaymentStatus
	}
	if req.ShippingStatus != "" {
		if !validShippingStatuses[req.ShippingStatus] {
			return fiber.NewError(fiber.StatusBadRequest, "invalid shipping status")
		}
		updates["shipping_status"] = req.ShippingStatus
	}
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}
	updates["updated_at"] = time.Now()

	var order models.Order
	if err := h.db.First(&order, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	if err := h.db.Model(&order).Updates(updates).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}
