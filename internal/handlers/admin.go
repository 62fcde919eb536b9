package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/atlas/internal/models"
)

// AdminHandler manages admin-only endpoints.
type AdminHandler struct {
	db *gorm.DB
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{db: db}
}

// DashboardStats returns aggregate statistics for the admin dashboard.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	var totalUsers int64
	if err := h.db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		return err
	}

	var totalProducts int64
	if err := h.db.Model(&models.Product{}).Count(&totalProducts).Error; err != nil {
		return err
	}

	var totalOrders int64
	if err := h.db.Model(&models.Order{}).Count(&totalOrders).Error; err != nil {
		return err
	}

	var activePromos int64
	if err := h.db.Model(&models.PromoCode{}).Where("is_active = ?", true).Count(&activePromos).Error; err != nil {
		return err
	}

	type statusCount struct {
		Status string `json:"status"`
		Count  int64  `json:"count"`
	}
	var statusCounts []statusCount
	if err := h.db.Model(&models.Order{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return err
	}

	ordersByStatus := make(map[string]int64)
	for _, sc := range statusCounts {
		ordersByStatus[sc.Status] = sc.Count
	}

	var totalRevenue int64
	if err := h.db.Model(&models.Order{}).
		Where("status != ?", models.OrderStatusCancelled).
		Select("COALESCE(SUM(total_amount), 0)::bigint").
		Scan(&totalRevenue).Error; err != nil {
		return err
	}

	var totalDiscounts int64
	if err := h.db.Model(&models.Order{}).
		Where("status != ?", models.OrderStatusCancelled).
		Select("COALESCE(SUM(discount_amount), 0)::bigint").
		Scan(&totalDiscounts).Error; err != nil {
		return err
	}

	var todayRevenue int64
	if err := h.db.Model(&models.Order{}).
		Where("status != ? AND placed_at::date = CURRENT_DATE", models.OrderStatusCancelled).
		Select("COALESCE(SUM(total_amount), 0)::bigint").
		Scan(&todayRevenue).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"total_users":      totalUsers,
			"total_products":   totalProducts,
			"total_orders":     totalOrders,
			"active_promos":    activePromos,
			"orders_by_status": ordersByStatus,
			"total_revenue":    totalRevenue,
			"total_discounts":  totalDiscounts,
			"today_revenue":    todayRevenue,
		},
	})
}
