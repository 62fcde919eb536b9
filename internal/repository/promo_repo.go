package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/atlas/internal/models"
)

// PromoRepository backs the discount evaluator with gorm.
type PromoRepository struct {
	db *gorm.DB
}

// NewPromoRepository constructs a PromoRepository.
func NewPromoRepository(db *gorm.DB) *PromoRepository {
	return &PromoRepository{db: db}
}

// FindByCode looks a promo up by its normalized code. Returns nil when no
// promo matches.
func (r *PromoRepository) FindByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&promo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

// CountUserRedemptions reads the per-user usage counter for a promo.
func (r *PromoRepository) CountUserRedemptions(ctx context.Context, promoID, userID uuid.UUID) (int, error) {
	var redemption models.PromoRedemption
	err := r.db.WithContext(ctx).
		Where("promo_code_id = ? AND user_id = ?", promoID, userID).
		First(&redemption).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return redemption.Uses, nil
}
