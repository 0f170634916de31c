package repository

import (
	"time"

	"github.com/anthonyumpad/gobilling/app/models"
)

// CustomerRepository defines the interface for customer ledger operations.
// The customer ledger maps a billable entity + gateway to a remote customer
// token, with at most one non-deleted record per (billable, gateway) pair.
type CustomerRepository interface {
	Create(customer *models.Customer) error
	GetByID(id uint) (*models.Customer, error)
	GetByBillableAndGateway(billableID, gatewayID uint) (*models.Customer, error)
	// Delete soft-deletes the customer and cascades to its payment tokens.
	Delete(customer *models.Customer) error
}

// PaymentTokenRepository defines the interface for the payment method vault.
type PaymentTokenRepository interface {
	Create(token *models.PaymentToken) error
	Update(token *models.PaymentToken) error
	GetByID(id uint) (*models.PaymentToken, error)
	GetByToken(token string) (*models.PaymentToken, error)
	GetByTokenAndBillable(token string, billableID uint) (*models.PaymentToken, error)
	GetDefault(billableID uint) (*models.PaymentToken, error)
	ListByBillable(billableID uint) ([]models.PaymentToken, error)
	CountByBillable(billableID uint) (int64, error)
	// SetDefault atomically clears the default flag across the billable
	// entity's tokens and sets it on the given token.
	SetDefault(billableID, tokenID uint) error
	Delete(token *models.PaymentToken) error
}

// PaymentRepository defines the interface for the purchase side of the
// transaction ledger. Payments are append-mostly and never physically
// deleted.
type PaymentRepository interface {
	Create(payment *models.Payment) error
	Update(payment *models.Payment) error
	GetByID(id uint) (*models.Payment, error)
	GetByTransactionReference(reference string, gatewayID uint) (*models.Payment, error)
}

// RefundRepository defines the interface for the refund side of the
// transaction ledger.
type RefundRepository interface {
	Create(refund *models.Refund) error
	Update(refund *models.Refund) error
	GetByID(id uint) (*models.Refund, error)
	ListByPayment(paymentID uint) ([]models.Refund, error)
}

// SubscriptionRepository defines the interface for recurring-billing records.
type SubscriptionRepository interface {
	Create(sub *models.Subscription) error
	Update(sub *models.Subscription) error
	GetByID(id uint) (*models.Subscription, error)
	GetActiveByBillable(billableID uint) (*models.Subscription, error)
	GetActiveByPaymentToken(tokenID uint) (*models.Subscription, error)
	// DueSubscriptions selects every subscription eligible for the
	// autocharge sweep: ACTIVE, not defaulted, with a real next_attempt
	// at or before now.
	DueSubscriptions(now time.Time) ([]models.Subscription, error)
	// Claim atomically takes ownership of a due subscription by clearing
	// its next_attempt, so overlapping sweeps never double-charge. It
	// returns false when another sweep already claimed the row.
	Claim(id uint, now time.Time) (bool, error)
}

// TopupAccountRepository defines the interface for balance-based autocharge
// accounts.
type TopupAccountRepository interface {
	Upsert(account *models.TopupAccount) error
	Update(account *models.TopupAccount) error
	GetByBillable(billableID uint) (*models.TopupAccount, error)
	// DueAccounts selects accounts with autocharge enabled, balance below
	// minimum and fewer retries than the configured limit.
	DueAccounts(maxRetries int) ([]models.TopupAccount, error)
}

// Repositories bundles every billing repository.
type Repositories struct {
	Customer     CustomerRepository
	PaymentToken PaymentTokenRepository
	Payment      PaymentRepository
	Refund       RefundRepository
	Subscription SubscriptionRepository
	TopupAccount TopupAccountRepository
}
