package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	PromoKindFixed      = "fixed"
	PromoKindPercentage = "percentage"

	PromoScopeAll              = "all"
	PromoScopeSelectedProducts = "selected_products"
)

// PromoCode is an admin-managed discount code. UsedCount and the
// redemption rows are only mutated when an order is confirmed.
type PromoCode struct {
	BaseModel
	Code             string            `gorm:"uniqueIndex" json:"code"`
	Kind             string            `json:"kind"`
	Value            int64             `json:"value"`
	MaxAmount        *int64            `json:"max_amount"`
	IsActive         bool              `json:"is_active"`
	ExpiresAt        *time.Time        `json:"expires_at"`
	RequiresLogin    bool              `json:"requires_login"`
	PerUserLimit     int               `json:"per_user_limit"`
	UsedCount        int               `json:"used_count"`
	TotalUsageLimit  *int              `json:"total_usage_limit"`
	Scope            string            `json:"scope"`
	SelectedProducts pq.StringArray    `gorm:"type:text[]" json:"selected_products"`
	Redemptions      []PromoRedemption `json:"redemptions,omitempty"`
}

// PromoRedemption tracks how many times one user has redeemed one code.
type PromoRedemption struct {
	BaseModel
	PromoCodeID uuid.UUID  `gorm:"type:uuid;uniqueIndex:idx_promo_redemptions_promo_user" json:"promo_code_id"`
	UserID      uuid.UUID  `gorm:"type:uuid;uniqueIndex:idx_promo_redemptions_promo_user" json:"user_id"`
	Uses        int        `json:"uses"`
	LastOrderID *uuid.UUID `gorm:"type:uuid" json:"last_order_id"`
}
