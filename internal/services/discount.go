package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/atlas/internal/models"
)

// Discount evaluation failure reasons. The first failing rule wins.
var (
	ErrCodeNotFound        = errors.New("code_not_found")
	ErrCodeInactive        = errors.New("code_inactive")
	ErrCodeExpired         = errors.New("code_expired")
	ErrLoginRequired       = errors.New("login_required")
	ErrPerUserLimitReached = errors.New("per_user_limit_reached")
	ErrGlobalLimitReached  = errors.New("global_limit_reached")
	ErrNotApplicable       = errors.New("not_applicable")
)

// CartItem is one line of a client-submitted cart.
type CartItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Size      string    `json:"size"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
}

// DiscountDecision is the priced outcome of a successful evaluation.
type DiscountDecision struct {
	Promo          *models.PromoCode
	EligibleAmount int64
	DiscountAmount int64
}

// PromoStore is the promo persistence surface the evaluator needs.
// Use interfaces to allow mocking.
type PromoStore interface {
	// FindByCode returns nil without error when no promo matches.
	FindByCode(ctx context.Context, code string) (*models.PromoCode, error)
	CountUserRedemptions(ctx context.Context, promoID, userID uuid.UUID) (int, error)
}

// DiscountService prices promo codes against carts. Evaluation never
// mutates usage counters; redemptions are recorded only when an order is
// confirmed, so previewing a code twice is idempotent.
type DiscountService struct {
	promos PromoStore
	now    func() time.Time
}

// NewDiscountService constructs a DiscountService.
func NewDiscountService(promos PromoStore) *DiscountService {
	return &DiscountService{promos: promos, now: time.Now}
}

// NormalizePromoCode trims and uppercases a client-submitted code.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Evaluate validates the code against the cart and computes the discount.
// userID is nil for anonymous callers. All amounts are integer minor
// currency units; the percentage division floors.
func (s *DiscountService) Evaluate(ctx context.Context, codeText string, items []CartItem, subtotal int64, userID *uuid.UUID) (*DiscountDecision, error) {
	promo, err := s.promos.FindByCode(ctx, NormalizePromoCode(codeText))
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return nil, ErrCodeNotFound
	}

	if !promo.IsActive {
		return nil, ErrCodeInactive
	}

	if promo.ExpiresAt != nil && promo.ExpiresAt.Before(s.now()) {
		return nil, ErrCodeExpired
	}

	if promo.RequiresLogin && userID == nil {
		return nil, ErrLoginRequired
	}

	if promo.PerUserLimit > 0 && userID != nil {
		used, err := s.promos.CountUserRedemptions(ctx, promo.ID, *userID)
		if err != nil {
			return nil, err
		}
		if used >= promo.PerUserLimit {
			return nil, ErrPerUserLimitReached
		}
	}

	if promo.TotalUsageLimit != nil && promo.UsedCount >= *promo.TotalUsageLimit {
		return nil, ErrGlobalLimitReached
	}

	eligible := subtotal
	if promo.Scope == models.PromoScopeSelectedProducts {
		eligible = eligibleAmount(promo, items)
		if eligible <= 0 {
			return nil, ErrNotApplicable
		}
	}

	discount := promo.Value
	if promo.Kind == models.PromoKindPercentage {
		discount = eligible * promo.Value / 100
		if promo.MaxAmount != nil && discount > *promo.MaxAmount {
			discount = *promo.MaxAmount
		}
	}

	if discount < 0 {
		discount = 0
	}
	if discount > eligible {
		discount = eligible
	}

	return &DiscountDecision{
		Promo:          promo,
		EligibleAmount: eligible,
		DiscountAmount: discount,
	}, nil
}

func eligibleAmount(promo *models.PromoCode, items []CartItem) int64 {
	selected := make(map[string]bool, len(promo.SelectedProducts))
	for _, id := range promo.SelectedProducts {
		selected[id] = true
	}

	var sum int64
	for _, item := range items {
		if selected[item.ProductID.String()] {
			sum += item.UnitPrice * int64(item.Quantity)
		}
	}
	return sum
}
