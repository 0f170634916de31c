package repository

import (
	"github.com/anthonyumpad/gobilling/app/models"
	"gorm.io/gorm"
)

// customerRepository implements the CustomerRepository interface
type customerRepository struct {
	db *gorm.DB
}

// NewCustomerRepository creates a new customer repository instance
func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &customerRepository{db: db}
}

// Create inserts a new customer record. The unique index on
// (billable_id, gateway_id) rejects a concurrent duplicate.
func (r *customerRepository) Create(customer *models.Customer) error {
	return r.db.Create(customer).Error
}

// GetByID retrieves a customer by its ID
func (r *customerRepository) GetByID(id uint) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.First(&customer, id).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetByBillableAndGateway retrieves the customer for a billable entity on a
// specific gateway
func (r *customerRepository) GetByBillableAndGateway(billableID, gatewayID uint) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.Where("billable_id = ? AND gateway_id = ?", billableID, gatewayID).
		First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// Delete soft-deletes the customer together with its payment tokens
func (r *customerRepository) Delete(customer *models.Customer) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("customer_id = ?", customer.ID).
			Delete(&models.PaymentToken{}).Error; err != nil {
			return err
		}
		return tx.Delete(customer).Error
	})
}
