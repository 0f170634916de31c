package repository

import (
	"github.com/anthonyumpad/gobilling/app/models"
	"gorm.io/gorm"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// Create inserts a new payment row
func (r *paymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

// Update saves an existing payment row
func (r *paymentRepository) Update(payment *models.Payment) error {
	return r.db.Save(payment).Error
}

// GetByID retrieves a payment by its ID
func (r *paymentRepository) GetByID(id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.First(&payment, id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetByTransactionReference retrieves a payment by its gateway transaction
// reference, scoped to the gateway that issued it
func (r *paymentRepository) GetByTransactionReference(reference string, gatewayID uint) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.Where("transaction_reference = ? AND gateway_id = ?", reference, gatewayID).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// refundRepository implements the RefundRepository interface
type refundRepository struct {
	db *gorm.DB
}

// NewRefundRepository creates a new refund repository instance
func NewRefundRepository(db *gorm.DB) RefundRepository {
	return &refundRepository{db: db}
}

// Create inserts a new refund row
func (r *refundRepository) Create(refund *models.Refund) error {
	return r.db.Create(refund).Error
}

// Update saves an existing refund row
func (r *refundRepository) Update(refund *models.Refund) error {
	return r.db.Save(refund).Error
}

// GetByID retrieves a refund by its ID
func (r *refundRepository) GetByID(id uint) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.First(&refund, id).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}

// ListByPayment retrieves all refunds recorded against a payment
func (r *refundRepository) ListByPayment(paymentID uint) ([]models.Refund, error) {
	var refunds []models.Refund
	err := r.db.Where("payment_id = ?", paymentID).
		Order("created_at ASC").Find(&refunds).Error
	return refunds, err
}
