package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// NewRepositories creates GORM-backed instances of every repository
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Customer:     NewCustomerRepository(db),
		PaymentToken: NewPaymentTokenRepository(db),
		Payment:      NewPaymentRepository(db),
		Refund:       NewRefundRepository(db),
		Subscription: NewSubscriptionRepository(db),
		TopupAccount: NewTopupAccountRepository(db),
	}
}
