package repository

import (
	"time"

	"github.com/anthonyumpad/gobilling/app/models"
	"gorm.io/gorm"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// Create inserts a new subscription row
func (r *subscriptionRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

// Update saves an existing subscription row
func (r *subscriptionRepository) Update(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

// GetByID retrieves a subscription by its ID
func (r *subscriptionRepository) GetByID(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.First(&sub, id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetActiveByBillable retrieves the single ACTIVE subscription of a billable
// entity
func (r *subscriptionRepository) GetActiveByBillable(billableID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("billable_id = ? AND status = ?", billableID, models.SubscriptionStatusActive).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetActiveByPaymentToken retrieves the ACTIVE subscription backed by the
// given payment token, if any
func (r *subscriptionRepository) GetActiveByPaymentToken(tokenID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("payment_token_id = ? AND status = ?", tokenID, models.SubscriptionStatusActive).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// DueSubscriptions selects the subscriptions eligible for the autocharge
// sweep
func (r *subscriptionRepository) DueSubscriptions(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Preload("PaymentToken").
		Where("status = ? AND defaulted = ? AND next_attempt IS NOT NULL AND next_attempt <= ?",
			models.SubscriptionStatusActive, false, now).
		Find(&subs).Error
	return subs, err
}

// Claim takes ownership of a due subscription with a conditional update; a
// second sweep racing on the same row sees zero affected rows
func (r *subscriptionRepository) Claim(id uint, now time.Time) (bool, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("id = ? AND status = ? AND defaulted = ? AND next_attempt IS NOT NULL AND next_attempt <= ?",
			id, models.SubscriptionStatusActive, false, now).
		Update("next_attempt", nil)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
