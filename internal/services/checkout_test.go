package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/example/atlas/internal/models"
)

// fakeCheckoutStore keeps all placement state in memory. InTx serializes
// callbacks and rolls the state back when the callback fails, matching
// the all-or-nothing contract of the real store.
type fakeCheckoutStore struct {
	mu          sync.Mutex
	products    map[uuid.UUID]*models.Product
	stock       map[string]int
	outOfStock  map[uuid.UUID]bool
	orders      []*models.Order
	orderCodes  map[string]bool
	promoUsed   map[uuid.UUID]int
	redemptions map[string]int

	duplicateInserts int
}

func newFakeCheckoutStore() *fakeCheckoutStore {
	return &fakeCheckoutStore{
		products:    make(map[uuid.UUID]*models.Product),
		stock:       make(map[string]int),
		outOfStock:  make(map[uuid.UUID]bool),
		orderCodes:  make(map[string]bool),
		promoUsed:   make(map[uuid.UUID]int),
		redemptions: make(map[string]int),
	}
}

func (f *fakeCheckoutStore) addProduct(name string, price int64, sizes map[string]int) uuid.UUID {
	id := uuid.New()
	product := &models.Product{Name: name, Price: price, Currency: "UZS", IsActive: true}
	product.ID = id
	for size, qty := range sizes {
		product.Sizes = append(product.Sizes, models.ProductSize{ProductID: id, Size: size, Quantity: qty})
		f.stock[stockKey(id, size)] = qty
	}
	f.products[id] = product
	return id
}

func stockKey(productID uuid.UUID, size string) string {
	return productID.String() + "|" + size
}

type checkoutSnapshot struct {
	stock       map[string]int
	outOfStock  map[uuid.UUID]bool
	orderCount  int
	orderCodes  map[string]bool
	promoUsed   map[uuid.UUID]int
	redemptions map[string]int
}

func (f *fakeCheckoutStore) snapshot() checkoutSnapshot {
	snap := checkoutSnapshot{
		stock:       make(map[string]int, len(f.stock)),
		outOfStock:  make(map[uuid.UUID]bool, len(f.outOfStock)),
		orderCount:  len(f.orders),
		orderCodes:  make(map[string]bool, len(f.orderCodes)),
		promoUsed:   make(map[uuid.UUID]int, len(f.promoUsed)),
		redemptions: make(map[string]int, len(f.redemptions)),
	}
	for k, v := range f.stock {
		snap.stock[k] = v
	}
	for k, v := range f.outOfStock {
		snap.outOfStock[k] = v
	}
	for k, v := range f.orderCodes {
		snap.orderCodes[k] = v
	}
	for k, v := range f.promoUsed {
		snap.promoUsed[k] = v
	}
	for k, v := range f.redemptions {
		snap.redemptions[k] = v
	}
	return snap
}

func (f *fakeCheckoutStore) restore(snap checkoutSnapshot) {
	f.stock = snap.stock
	f.outOfStock = snap.outOfStock
	f.orders = f.orders[:snap.orderCount]
	f.orderCodes = snap.orderCodes
	f.promoUsed = snap.promoUsed
	f.redemptions = snap.redemptions
}

func (f *fakeCheckoutStore) InTx(_ context.Context, fn func(tx CheckoutTx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := f.snapshot()
	if err := fn(f); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

func (f *fakeCheckoutStore) GetProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	return f.products[id], nil
}

func (f *fakeCheckoutStore) DecrementStock(_ context.Context, productID uuid.UUID, size string, qty int) (bool, error) {
	key := stockKey(productID, size)
	if f.stock[key] < qty {
		return false, nil
	}
	f.stock[key] -= qty
	return true, nil
}

func (f *fakeCheckoutStore) RefreshStockFlags(_ context.Context, productID uuid.UUID) error {
	product := f.products[productID]
	if product == nil {
		return nil
	}
	allOut := true
	for _, s := range product.Sizes {
		if f.stock[stockKey(productID, s.Size)] > 0 {
			allOut = false
		}
	}
	f.outOfStock[productID] = allOut
	return nil
}

func (f *fakeCheckoutStore) InsertOrder(_ context.Context, order *models.Order) error {
	if f.duplicateInserts > 0 {
		f.duplicateInserts--
		return ErrDuplicateOrderCode
	}
	if f.orderCodes[order.OrderCode] {
		return ErrDuplicateOrderCode
	}
	order.ID = uuid.New()
	f.orderCodes[order.OrderCode] = true
	f.orders = append(f.orders, order)
	return nil
}

func (f *fakeCheckoutStore) ConsumePromo(_ context.Context, promo *models.PromoCode, userID, _ uuid.UUID) error {
	if promo.TotalUsageLimit != nil && f.promoUsed[promo.ID] >= *promo.TotalUsageLimit {
		return ErrGlobalLimitReached
	}
	f.promoUsed[promo.ID]++

	key := promo.ID.String() + "|" + userID.String()
	if promo.PerUserLimit > 0 && f.redemptions[key] >= promo.PerUserLimit {
		return ErrPerUserLimitReached
	}
	f.redemptions[key]++
	return nil
}

func validShipping() ShippingInfo {
	return ShippingInfo{
		CustomerName:  "Aziza Karimova",
		CustomerPhone: "+998901234567",
		AddressLine:   "Amir Temur 14",
		City:          "Tashkent",
	}
}

func newCheckout(store *fakeCheckoutStore, promos *fakePromoStore) *CheckoutService {
	return NewCheckoutService(store, NewDiscountService(promos), nil)
}

func TestPlaceOrderSuccess(t *testing.T) {
	store := newFakeCheckoutStore()
	productID := store.addProduct("Atlas Shirt", 150000, map[string]int{"M": 5, "L": 2})
	svc := newCheckout(store, newFakePromoStore())

	userID := uuid.New()
	order, err := svc.PlaceOrder(context.Background(), userID, PlaceOrderInput{
		Items:         []OrderLine{{ProductID: productID, Size: "M", Quantity: 2}},
		Shipping:      validShipping(),
		PaymentMethod: "cash",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, order.OrderCode)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, models.ShippingStatusPending, order.ShippingStatus)
	assert.Equal(t, int64(300000), order.Subtotal)
	assert.Equal(t, int64(0), order.DiscountAmount)
	assert.Equal(t, int64(300000), order.TotalAmount)
	assert.Equal(t, "UZS", order.Currency)
	assert.Equal(t, 3, store.stock[stockKey(productID, "M")])
	assert.Len(t, store.orders, 1)
}

func TestPlaceOrderValidation(t *testing.T) {
	store := newFakeCheckoutStore()
	productID := store.addProduct("Atlas Shirt", 150000, map[string]int{"M": 5})
	svc := newCheckout(store, newFakePromoStore())
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.PlaceOrder(ctx, userID, PlaceOrderInput{Shipping: validShipping()})
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = svc.PlaceOrder(ctx, userID, PlaceOrderInput{
		Items:    []OrderLine{{ProductID: productID, Size: "M", Quantity: 0}},
		Shipping: validShipping(),
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.PlaceOrder(ctx, userID, PlaceOrderInput{
		Items: []OrderLine{{ProductID: productID, Size: "M", Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrMissingShipping)

	_, err = svc.PlaceOrder(ctx, userID, PlaceOrderInput{
		Items:    []OrderLine{{ProductID: uuid.New(), Size: "M", Quantity: 1}},
		Shipping: validShipping(),
	})
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = svc.PlaceOrder(ctx, userID, PlaceOrderInput{
		Items:    []OrderLine{{ProductID: productID, Size: "XXL", Quantity: 1}},
		Shipping: validShipping(),
	})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestPlaceOrderAllOrNothing(t *testing.T) {
	store := newFakeCheckoutStore()
	shirtID := store.addProduct("Atlas Shirt", 150000, map[string]int{"M": 5})
	scarfID := store.addProduct("Silk Scarf", 80000, map[string]int{"M": 1})
	svc := newCheckout(store, newFakePromoStore())

	_, err := svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderInput{
		Items: []OrderLine{
			{ProductID: shirtID, Size: "M", Quantity: 2},
			{ProductID: scarfID, Size: "M", Quantity: 3},
		},
		Shipping: validShipping(),
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, scarfID, stockErr.ProductID)
	assert.Equal(t, "M", stockErr.Size)

	// The shirt decrement must have been rolled back with the rest.
	assert.Equal(t, 5, store.stock[stockKey(shirtID, "M")])
	assert.Equal(t, 1, store.stock[stockKey(scarfID, "M")])
	assert.Empty(t, store.orders)
}

func TestPlaceOrderMarksOutOfStock(t *testing.T) {
	store := newFakeCheckoutStore()
	productID := store.addProduct("Atlas Shirt", 150000, map[string]int{"M": 1})
	svc := newCheckout(store, newFakePromoStore())

	_, err := svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderInput{
		Items:    []OrderLine{{ProductID: productID, Size: "M", Quantity: 1}},
		Shipping: validShipping(),
	})
	require.NoError(t, err)
	assert.True(t, store.outOfStock[productID])
}

func TestPlaceOrderAppliesPromo(t *testing.T) {
	store := newFakeCheckoutStore()
	productID := store.addProduct("Atlas Shirt", 100000, map[string]int{"M": 5})

	promo := &models.PromoCode{
		Code:     "SALE10",
		Kind:     models.PromoKindPercentage,
		Value:    10,
		IsActive: true,
		Scope:    models.PromoScopeAll,
	}
	svc := newCheckout(store, newFakePromoStore(promo))

	userID := uuid.New()
	order, err := svc.PlaceOrder(context.Background(), userID, PlaceOrderInput{
		Items:     []OrderLine{{ProductID: productID, Size: "M", Quantity: 2}},
		Shipping:  validShipping(),
		PromoCode: "sale10",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(200000), order.Subtotal)
	assert.Equal(t, int64(20000), order.DiscountAmount)
	assert.Equal(t, int64(180000), order.TotalAmount)
	assert.Equal(t, "SALE10", order.PromoCode)
	assert.Equal(t, 1, store.promoUsed[promo.ID])
	assert.Equal(t, 1, store.redemptions[promo.ID.String()+"|"+userID.String()])
}

func TestPlaceOrderPromoGlobalLimitAbortsEverything(t *testing.T) {
	store := newFakeCheckoutStore()
	productID := store.addProduct("Atlas Shirt", 100000, map[string]int{"M": 5})

	promo := &models.PromoCode{
		Code:            "CAPPED",
		Kind:            models.PromoKindFixed,
		Value:           10000,
		IsActive:        true,
		Scope:           models.PromoScopeAll,
		TotalUsageLimit: intPtr(1),
	}
	svc := newCheckout(store, newFakePromoStore(promo))
	store.promoUsed[promo.ID] = 1

	_, err := svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderInput{
		Items:     []OrderLine{{ProductID: productID, Size: "M", Quantity: 1}},
		Shipping:  validShipping(),
		PromoCode: "CAPPED",
	})
	assert.ErrorIs(t, err, ErrGlobalLimitReached)

	// No order and no stock movement may survive the failed usage write.
	assert.Empty(t, store.orders)
	assert.Equal(t, 5, store.stock[stockKey(productID, "M")])
}

func TestPlaceOrderRetriesOrderCodeCollision(t *testing.T) {
	store := newFakeCheckoutStore()
	productID := store.addProduct("Atlas Shirt", 100000, map[string]int{"M": 5})
	svc := newCheckout(store, newFakePromoStore())
	store.duplicateInserts = 2

	var codes []string
	svc.newCode = func() (string, error) {
		code := "ATL-TEST-" + uuid.NewString()[:8]
		codes = append(codes, code)
		return code, nil
	}

	order, err := svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderInput{
		Items:    []OrderLine{{ProductID: productID, Size: "M", Quantity: 1}},
		Shipping: validShipping(),
	})
	require.NoError(t, err)
	assert.Len(t, codes, 3)
	assert.Equal(t, codes[2], order.OrderCode)
	assert.Len(t, store.orders, 1)
	assert.Equal(t, 4, store.stock[stockKey(productID, "M")])
}

func TestPlaceOrderConcurrentLastUnit(t *testing.T) {
	store := newFakeCheckoutStore()
	productID := store.addProduct("Atlas Shirt", 100000, map[string]int{"M": 1})
	svc := newCheckout(store, newFakePromoStore())

	const n = 6
	var mu sync.Mutex
	successes, shortfalls := 0, 0

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := svc.PlaceOrder(context.Background(), uuid.New(), PlaceOrderInput{
				Items:    []OrderLine{{ProductID: productID, Size: "M", Quantity: 1}},
				Shipping: validShipping(),
			})
			mu.Lock()
			defer mu.Unlock()
			var stockErr *InsufficientStockError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &stockErr):
				shortfalls++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, shortfalls)
	assert.Equal(t, 0, store.stock[stockKey(productID, "M")])
	assert.Len(t, store.orders, 1)
}

func TestPlaceOrderConcurrentPromoPerUserLimit(t *testing.T) {
	store := newFakeCheckoutStore()
	productID := store.addProduct("Atlas Shirt", 100000, map[string]int{"M": 10})

	promo := &models.PromoCode{
		Code:         "ONEPER",
		Kind:         models.PromoKindFixed,
		Value:        10000,
		IsActive:     true,
		Scope:        models.PromoScopeAll,
		PerUserLimit: 1,
	}
	svc := newCheckout(store, newFakePromoStore(promo))

	userID := uuid.New()
	var mu sync.Mutex
	successes, rejected := 0, 0

	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := svc.PlaceOrder(context.Background(), userID, PlaceOrderInput{
				Items:     []OrderLine{{ProductID: productID, Size: "M", Quantity: 1}},
				Shipping:  validShipping(),
				PromoCode: "ONEPER",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrPerUserLimitReached):
				rejected++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 1, store.redemptions[promo.ID.String()+"|"+userID.String()])
	assert.Len(t, store.orders, 1)
}
