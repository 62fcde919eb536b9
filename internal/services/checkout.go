package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/atlas/internal/models"
	"github.com/example/atlas/internal/utils"
)

// Order placement failure reasons.
var (
	ErrEmptyCart       = errors.New("empty_cart")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrMissingShipping = errors.New("missing_shipping_fields")
	ErrProductNotFound = errors.New("product_not_found")
)

// ErrDuplicateOrderCode is returned by stores on a unique-index collision.
// The workflow regenerates the code and retries; it never surfaces.
var ErrDuplicateOrderCode = errors.New("duplicate order code")

const orderCodeAttempts = 5

// InsufficientStockError names the exact line that could not be fulfilled.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Size      string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s size %s", e.ProductID, e.Size)
}

// OrderLine is one requested line of a checkout. Prices are resolved
// server-side; the client only names product, size and quantity.
type OrderLine struct {
	ProductID uuid.UUID `json:"product_id"`
	Size      string    `json:"size"`
	Quantity  int       `json:"quantity"`
}

type ShippingInfo struct {
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	CustomerEmail string `json:"customer_email"`
	AddressLine   string `json:"address_line"`
	Apartment     string `json:"apartment"`
	City          string `json:"city"`
	District      string `json:"district"`
	PostalCode    string `json:"postal_code"`
}

type PlaceOrderInput struct {
	Items         []OrderLine
	Shipping      ShippingInfo
	PaymentMethod string
	PromoCode     string
	Notes         string
}

// CheckoutStore runs placement callbacks atomically: when the callback
// returns an error, nothing it did may remain visible.
type CheckoutStore interface {
	InTx(ctx context.Context, fn func(tx CheckoutTx) error) error
}

// CheckoutTx is the set of operations available inside a placement
// transaction.
type CheckoutTx interface {
	// GetProduct returns nil without error when no product matches.
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	// DecrementStock performs a single conditional "decrement if
	// sufficient" update and reports whether a row matched.
	DecrementStock(ctx context.Context, productID uuid.UUID, size string, qty int) (bool, error)
	// RefreshStockFlags recomputes the product-level out-of-stock flag
	// from its size rows.
	RefreshStockFlags(ctx context.Context, productID uuid.UUID) error
	InsertOrder(ctx context.Context, order *models.Order) error
	// ConsumePromo increments the global usage counter and the per-user
	// redemption row, each guarded by its limit at write time. Returns
	// ErrGlobalLimitReached or ErrPerUserLimitReached when a guard fails.
	ConsumePromo(ctx context.Context, promo *models.PromoCode, userID, orderID uuid.UUID) error
}

// OrderNotifier is told about confirmed orders after commit.
type OrderNotifier interface {
	NotifyNewOrder(order *models.Order)
}

// CheckoutService turns a validated cart into an order. Stock decrements,
// the order insert and promo usage land in one transaction; any shortfall
// aborts the whole placement.
type CheckoutService struct {
	store    CheckoutStore
	discount *DiscountService
	notifier OrderNotifier
	newCode  func() (string, error)
}

// NewCheckoutService constructs a CheckoutService. notifier may be nil.
func NewCheckoutService(store CheckoutStore, discount *DiscountService, notifier OrderNotifier) *CheckoutService {
	return &CheckoutService{
		store:    store,
		discount: discount,
		notifier: notifier,
		newCode:  utils.GenerateOrderCode,
	}
}

// PlaceOrder validates the cart, prices it from the product store and
// persists the order all-or-nothing. Client-sent totals are never trusted.
func (s *CheckoutService) PlaceOrder(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*models.Order, error) {
	if len(input.Items) == 0 {
		return nil, ErrEmptyCart
	}
	for _, line := range input.Items {
		if line.Quantity <= 0 || line.Size == "" {
			return nil, ErrInvalidQuantity
		}
	}
	if err := validateShipping(input.Shipping); err != nil {
		return nil, err
	}

	var order *models.Order
	attempt := func(code string) error {
		return s.store.InTx(ctx, func(tx CheckoutTx) error {
			o := &models.Order{
				UserID:         userID,
				OrderCode:      code,
				Status:         models.OrderStatusPending,
				PaymentStatus:  models.PaymentStatusPending,
				ShippingStatus: models.ShippingStatusPending,
				PlacedAt:       time.Now(),
				CustomerName:   input.Shipping.CustomerName,
				CustomerPhone:  input.Shipping.CustomerPhone,
				CustomerEmail:  input.Shipping.CustomerEmail,
				AddressLine:    input.Shipping.AddressLine,
				Apartment:      input.Shipping.Apartment,
				City:           input.Shipping.City,
				District:       input.Shipping.District,
				PostalCode:     input.Shipping.PostalCode,
				PaymentMethod:  input.PaymentMethod,
				Notes:          input.Notes,
			}

			var subtotal int64
			cart := make([]CartItem, 0, len(input.Items))
			for _, line := range input.Items {
				product, err := tx.GetProduct(ctx, line.ProductID)
				if err != nil {
					return err
				}
				if product == nil || !product.IsActive {
					return ErrProductNotFound
				}
				if !hasSize(product, line.Size) {
					return ErrProductNotFound
				}

				lineTotal := product.Price * int64(line.Quantity)
				subtotal += lineTotal
				o.Items = append(o.Items, models.OrderItem{
					ProductID:   product.ID,
					ProductName: product.Name,
					Size:        line.Size,
					Quantity:    line.Quantity,
					UnitPrice:   product.Price,
					LineTotal:   lineTotal,
				})
				cart = append(cart, CartItem{
					ProductID: product.ID,
					Size:      line.Size,
					Quantity:  line.Quantity,
					UnitPrice: product.Price,
				})
				if o.Currency == "" {
					o.Currency = product.Currency
				}
			}

			for _, line := range input.Items {
				ok, err := tx.DecrementStock(ctx, line.ProductID, line.Size, line.Quantity)
				if err != nil {
					return err
				}
				if !ok {
					return &InsufficientStockError{ProductID: line.ProductID, Size: line.Size}
				}
				if err := tx.RefreshStockFlags(ctx, line.ProductID); err != nil {
					return err
				}
			}

			o.Subtotal = subtotal

			var promo *models.PromoCode
			if strings.TrimSpace(input.PromoCode) != "" {
				decision, err := s.discount.Evaluate(ctx, input.PromoCode, cart, subtotal, &userID)
				if err != nil {
					return err
				}
				promo = decision.Promo
				o.DiscountAmount = decision.DiscountAmount
				o.PromoCodeID = &promo.ID
				o.PromoCode = promo.Code
			}

			o.TotalAmount = o.Subtotal - o.DiscountAmount

			if err := tx.InsertOrder(ctx, o); err != nil {
				return err
			}

			if promo != nil {
				if err := tx.ConsumePromo(ctx, promo, userID, o.ID); err != nil {
					return err
				}
			}

			order = o
			return nil
		})
	}

	var err error
	for i := 0; i < orderCodeAttempts; i++ {
		code, codeErr := s.newCode()
		if codeErr != nil {
			return nil, codeErr
		}

		err = attempt(code)
		if err == nil {
			if s.notifier != nil {
				go s.notifier.NotifyNewOrder(order)
			}
			return order, nil
		}
		if !errors.Is(err, ErrDuplicateOrderCode) {
			return nil, err
		}
	}

	return nil, err
}

func validateShipping(info ShippingInfo) error {
	if strings.TrimSpace(info.CustomerName) == "" ||
		strings.TrimSpace(info.CustomerPhone) == "" ||
		strings.TrimSpace(info.AddressLine) == "" ||
		strings.TrimSpace(info.City) == "" {
		return ErrMissingShipping
	}
	return nil
}

func hasSize(product *models.Product, size string) bool {
	for _, s := range product.Sizes {
		if s.Size == size {
			return true
		}
	}
	return false
}
