package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/atlas/internal/models"
)

type fakePromoStore struct {
	promos   map[string]*models.PromoCode
	userUses map[string]int
}

func newFakePromoStore(promos ...*models.PromoCode) *fakePromoStore {
	store := &fakePromoStore{
		promos:   make(map[string]*models.PromoCode),
		userUses: make(map[string]int),
	}
	for _, p := range promos {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		store.promos[p.Code] = p
	}
	return store
}

func (f *fakePromoStore) FindByCode(_ context.Context, code string) (*models.PromoCode, error) {
	return f.promos[code], nil
}

func (f *fakePromoStore) CountUserRedemptions(_ context.Context, promoID, userID uuid.UUID) (int, error) {
	return f.userUses[promoID.String()+"|"+userID.String()], nil
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func TestEvaluateFixedCode(t *testing.T) {
	store := newFakePromoStore(&models.PromoCode{
		Code:     "SAVE50000",
		Kind:     models.PromoKindFixed,
		Value:    50000,
		IsActive: true,
		Scope:    models.PromoScopeAll,
	})
	svc := NewDiscountService(store)

	decision, err := svc.Evaluate(context.Background(), "SAVE50000", nil, 200000, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), decision.DiscountAmount)
	assert.Equal(t, int64(200000), decision.EligibleAmount)
}

func TestEvaluateNormalizesCode(t *testing.T) {
	store := newFakePromoStore(&models.PromoCode{
		Code:     "SAVE50000",
		Kind:     models.PromoKindFixed,
		Value:    50000,
		IsActive: true,
		Scope:    models.PromoScopeAll,
	})
	svc := NewDiscountService(store)

	decision, err := svc.Evaluate(context.Background(), "  save50000 ", nil, 200000, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), decision.DiscountAmount)
}

func TestEvaluatePercentageClampedToMaxAmount(t *testing.T) {
	store := newFakePromoStore(&models.PromoCode{
		Code:      "SALE10",
		Kind:      models.PromoKindPercentage,
		Value:     10,
		MaxAmount: int64Ptr(20000),
		IsActive:  true,
		Scope:     models.PromoScopeAll,
	})
	svc := NewDiscountService(store)

	decision, err := svc.Evaluate(context.Background(), "SALE10", nil, 500000, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), decision.DiscountAmount)
}

func TestEvaluatePercentageFloors(t *testing.T) {
	store := newFakePromoStore(&models.PromoCode{
		Code:     "ODD3",
		Kind:     models.PromoKindPercentage,
		Value:    3,
		IsActive: true,
		Scope:    models.PromoScopeAll,
	})
	svc := NewDiscountService(store)

	// 3% of 101 is 3.03; the discount must round down.
	decision, err := svc.Evaluate(context.Background(), "ODD3", nil, 101, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), decision.DiscountAmount)
}

func TestEvaluateFixedClampedToEligible(t *testing.T) {
	store := newFakePromoStore(&models.PromoCode{
		Code:     "BIG",
		Kind:     models.PromoKindFixed,
		Value:    500000,
		IsActive: true,
		Scope:    models.PromoScopeAll,
	})
	svc := NewDiscountService(store)

	decision, err := svc.Evaluate(context.Background(), "BIG", nil, 120000, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(120000), decision.DiscountAmount)
}

func TestEvaluateScopedCode(t *testing.T) {
	p1 := uuid.New()
	p2 := uuid.New()
	store := newFakePromoStore(&models.PromoCode{
		Code:             "P1ONLY",
		Kind:             models.PromoKindPercentage,
		Value:            10,
		IsActive:         true,
		Scope:            models.PromoScopeSelectedProducts,
		SelectedProducts: pq.StringArray{p1.String()},
	})
	svc := NewDiscountService(store)

	items := []CartItem{
		{ProductID: p1, Quantity: 2, UnitPrice: 100000},
		{ProductID: p2, Quantity: 1, UnitPrice: 50000},
	}

	decision, err := svc.Evaluate(context.Background(), "P1ONLY", items, 250000, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(200000), decision.EligibleAmount)
	assert.Equal(t, int64(20000), decision.DiscountAmount)
}

func TestEvaluateScopedCodeNotApplicable(t *testing.T) {
	store := newFakePromoStore(&models.PromoCode{
		Code:             "P1ONLY",
		Kind:             models.PromoKindPercentage,
		Value:            10,
		IsActive:         true,
		Scope:            models.PromoScopeSelectedProducts,
		SelectedProducts: pq.StringArray{uuid.New().String()},
	})
	svc := NewDiscountService(store)

	items := []CartItem{{ProductID: uuid.New(), Quantity: 1, UnitPrice: 50000}}

	_, err := svc.Evaluate(context.Background(), "P1ONLY", items, 50000, nil)
	assert.ErrorIs(t, err, ErrNotApplicable)
}

func TestEvaluateRejections(t *testing.T) {
	userID := uuid.New()
	expired := time.Now().Add(-time.Hour)

	limitedPromo := &models.PromoCode{
		Code:         "ONEPER",
		Kind:         models.PromoKindFixed,
		Value:        1000,
		IsActive:     true,
		Scope:        models.PromoScopeAll,
		PerUserLimit: 1,
	}

	store := newFakePromoStore(
		&models.PromoCode{Code: "OFF", Kind: models.PromoKindFixed, Value: 1000, IsActive: false, Scope: models.PromoScopeAll},
		&models.PromoCode{Code: "OLD", Kind: models.PromoKindFixed, Value: 1000, IsActive: true, Scope: models.PromoScopeAll, ExpiresAt: &expired},
		&models.PromoCode{Code: "MEMBERS", Kind: models.PromoKindFixed, Value: 1000, IsActive: true, Scope: models.PromoScopeAll, RequiresLogin: true},
		&models.PromoCode{Code: "CAPPED", Kind: models.PromoKindFixed, Value: 1000, IsActive: true, Scope: models.PromoScopeAll, UsedCount: 5, TotalUsageLimit: intPtr(5)},
		limitedPromo,
	)
	store.userUses[limitedPromo.ID.String()+"|"+userID.String()] = 1
	svc := NewDiscountService(store)
	ctx := context.Background()

	tests := []struct {
		name string
		code string
		user *uuid.UUID
		want error
	}{
		{"unknown code", "NOPE", nil, ErrCodeNotFound},
		{"inactive", "OFF", nil, ErrCodeInactive},
		{"expired", "OLD", nil, ErrCodeExpired},
		{"login required", "MEMBERS", nil, ErrLoginRequired},
		{"per-user limit", "ONEPER", &userID, ErrPerUserLimitReached},
		{"global limit", "CAPPED", nil, ErrGlobalLimitReached},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Evaluate(ctx, tt.code, nil, 100000, tt.user)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	promo := &models.PromoCode{
		Code:     "SALE10",
		Kind:     models.PromoKindPercentage,
		Value:    10,
		IsActive: true,
		Scope:    models.PromoScopeAll,
	}
	store := newFakePromoStore(promo)
	svc := NewDiscountService(store)
	ctx := context.Background()

	first, err := svc.Evaluate(ctx, "SALE10", nil, 300000, nil)
	require.NoError(t, err)
	second, err := svc.Evaluate(ctx, "SALE10", nil, 300000, nil)
	require.NoError(t, err)

	assert.Equal(t, first.DiscountAmount, second.DiscountAmount)
	assert.Equal(t, 0, promo.UsedCount)
	assert.Empty(t, store.userUses)
}

func TestEvaluateDiscountBounds(t *testing.T) {
	subtotals := []int64{1, 99, 100, 12345, 999999}
	store := newFakePromoStore(&models.PromoCode{
		Code:      "SALE33",
		Kind:      models.PromoKindPercentage,
		Value:     33,
		MaxAmount: int64Ptr(50000),
		IsActive:  true,
		Scope:     models.PromoScopeAll,
	})
	svc := NewDiscountService(store)

	for _, subtotal := range subtotals {
		decision, err := svc.Evaluate(context.Background(), "SALE33", nil, subtotal, nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, decision.DiscountAmount, int64(0))
		assert.LessOrEqual(t, decision.DiscountAmount, decision.EligibleAmount)
		assert.LessOrEqual(t, decision.DiscountAmount, int64(50000))
	}
}
