package repository

import (
	"github.com/anthonyumpad/gobilling/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// topupAccountRepository implements the TopupAccountRepository interface
type topupAccountRepository struct {
	db *gorm.DB
}

// NewTopupAccountRepository creates a new top-up account repository instance
func NewTopupAccountRepository(db *gorm.DB) TopupAccountRepository {
	return &topupAccountRepository{db: db}
}

// Upsert creates or updates the top-up settings of a billable entity
func (r *topupAccountRepository) Upsert(account *models.TopupAccount) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "billable_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"autocharge",
			"minimum_balance",
			"autocharge_amount",
			"autocharge_plan_points",
			"autocharge_currency",
			"updated_at",
		}),
	}).Create(account).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("billable_id = ?", account.BillableID).First(account).Error
}

// Update saves an existing top-up account
func (r *topupAccountRepository) Update(account *models.TopupAccount) error {
	return r.db.Save(account).Error
}

// GetByBillable retrieves the top-up account of a billable entity
func (r *topupAccountRepository) GetByBillable(billableID uint) (*models.TopupAccount, error) {
	var account models.TopupAccount
	err := r.db.Where("billable_id = ?", billableID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// DueAccounts selects accounts qualifying for a balance top-up charge
func (r *topupAccountRepository) DueAccounts(maxRetries int) ([]models.TopupAccount, error) {
	var accounts []models.TopupAccount
	err := r.db.Where("autocharge = ? AND credit_balance < minimum_balance AND autocharge_retries < ?",
		true, maxRetries).
		Find(&accounts).Error
	return accounts, err
}
