package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/atlas/internal/models"
	"github.com/example/atlas/internal/services"
)

// CheckoutRepository implements the placement transaction over gorm.
type CheckoutRepository struct {
	db *gorm.DB
}

// NewCheckoutRepository constructs a CheckoutRepository.
func NewCheckoutRepository(db *gorm.DB) *CheckoutRepository {
	return &CheckoutRepository{db: db}
}

// InTx runs fn inside one database transaction.
func (r *CheckoutRepository) InTx(ctx context.Context, fn func(tx services.CheckoutTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&checkoutTx{db: tx})
	})
}

type checkoutTx struct {
	db *gorm.DB
}

func (t *checkoutTx) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := t.db.WithContext(ctx).Preload("Sizes").First(&product, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// DecrementStock is a single conditional update: the quantity check and
// the write happen in one statement, so two orders cannot both take the
// last unit.
func (t *checkoutTx) DecrementStock(ctx context.Context, productID uuid.UUID, size string, qty int) (bool, error) {
	res := t.db.WithContext(ctx).Exec(
		`UPDATE product_sizes
		 SET quantity = quantity - ?, in_stock = quantity - ? > 0, updated_at = now()
		 WHERE product_id = ? AND size = ? AND quantity >= ?`,
		qty, qty, productID, size, qty,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (t *checkoutTx) RefreshStockFlags(ctx context.Context, productID uuid.UUID) error {
	return t.db.WithContext(ctx).Exec(
		`UPDATE products
		 SET out_of_stock = NOT EXISTS (
		     SELECT 1 FROM product_sizes
		     WHERE product_sizes.product_id = products.id AND product_sizes.in_stock
		 ), updated_at = now()
		 WHERE id = ?`,
		productID,
	).Error
}

func (t *checkoutTx) InsertOrder(ctx context.Context, order *models.Order) error {
	err := t.db.WithContext(ctx).Create(order).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return services.ErrDuplicateOrderCode
	}
	return err
}

// ConsumePromo performs both usage writes conditionally so the limit
// checks hold at write time under concurrency.
func (t *checkoutTx) ConsumePromo(ctx context.Context, promo *models.PromoCode, userID, orderID uuid.UUID) error {
	res := t.db.WithContext(ctx).Exec(
		`UPDATE promo_codes
		 SET used_count = used_count + 1, updated_at = now()
		 WHERE id = ? AND (total_usage_limit IS NULL OR used_count < total_usage_limit)`,
		promo.ID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ErrGlobalLimitReached
	}

	res = t.db.WithContext(ctx).Exec(
		`INSERT INTO promo_redemptions (id, created_at, updated_at, promo_code_id, user_id, uses, last_order_id)
		 VALUES (?, now(), now(), ?, ?, 1, ?)
		 ON CONFLICT (promo_code_id, user_id) DO UPDATE
		 SET uses = promo_redemptions.uses + 1, last_order_id = EXCLUDED.last_order_id, updated_at = now()
		 WHERE ? <= 0 OR promo_redemptions.uses < ?`,
		uuid.New(), promo.ID, userID, orderID, promo.PerUserLimit, promo.PerUserLimit,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ErrPerUserLimitReached
	}
	return nil
}
