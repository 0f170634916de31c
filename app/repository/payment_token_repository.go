package repository

import (
	"github.com/anthonyumpad/gobilling/app/models"
	"gorm.io/gorm"
)

// paymentTokenRepository implements the PaymentTokenRepository interface
type paymentTokenRepository struct {
	db *gorm.DB
}

// NewPaymentTokenRepository creates a new payment token repository instance
func NewPaymentTokenRepository(db *gorm.DB) PaymentTokenRepository {
	return &paymentTokenRepository{db: db}
}

// Create inserts a new payment token
func (r *paymentTokenRepository) Create(token *models.PaymentToken) error {
	return r.db.Create(token).Error
}

// Update saves an existing payment token
func (r *paymentTokenRepository) Update(token *models.PaymentToken) error {
	return r.db.Save(token).Error
}

// GetByID retrieves a payment token by its ID
func (r *paymentTokenRepository) GetByID(id uint) (*models.PaymentToken, error) {
	var token models.PaymentToken
	if err := r.db.First(&token, id).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

// GetByToken retrieves a payment token by its gateway card reference
func (r *paymentTokenRepository) GetByToken(token string) (*models.PaymentToken, error) {
	var pt models.PaymentToken
	if err := r.db.Where("token = ?", token).First(&pt).Error; err != nil {
		return nil, err
	}
	return &pt, nil
}

// GetByTokenAndBillable retrieves a payment token scoped to a billable entity
func (r *paymentTokenRepository) GetByTokenAndBillable(token string, billableID uint) (*models.PaymentToken, error) {
	var pt models.PaymentToken
	err := r.db.Preload("Customer").
		Where("token = ? AND billable_id = ?", token, billableID).
		First(&pt).Error
	if err != nil {
		return nil, err
	}
	return &pt, nil
}

// GetDefault retrieves the default payment token for a billable entity
func (r *paymentTokenRepository) GetDefault(billableID uint) (*models.PaymentToken, error) {
	var pt models.PaymentToken
	err := r.db.Where("billable_id = ? AND is_default = ?", billableID, true).
		First(&pt).Error
	if err != nil {
		return nil, err
	}
	return &pt, nil
}

// ListByBillable retrieves all payment tokens of a billable entity
func (r *paymentTokenRepository) ListByBillable(billableID uint) ([]models.PaymentToken, error) {
	var tokens []models.PaymentToken
	err := r.db.Where("billable_id = ?", billableID).
		Order("created_at ASC").Find(&tokens).Error
	return tokens, err
}

// CountByBillable counts the non-deleted payment tokens of a billable entity
func (r *paymentTokenRepository) CountByBillable(billableID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.PaymentToken{}).
		Where("billable_id = ?", billableID).Count(&count).Error
	return count, err
}

// SetDefault moves the default flag to the given token in one transaction,
// preserving the at-most-one-default invariant
func (r *paymentTokenRepository) SetDefault(billableID, tokenID uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PaymentToken{}).
			Where("billable_id = ?", billableID).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.PaymentToken{}).
			Where("id = ? AND billable_id = ?", tokenID, billableID).
			Update("is_default", true).Error
	})
}

// Delete soft-deletes a payment token
func (r *paymentTokenRepository) Delete(token *models.PaymentToken) error {
	return r.db.Delete(token).Error
}
