package repository

import (
	"sort"
	"sync"
	"time"

	"github.com/anthonyumpad/gobilling/app/models"
	"gorm.io/gorm"
)

// memoryStore is a mutex-guarded in-memory implementation of every billing
// repository. It backs tests and embedded deployments without a database.
// Not-found lookups return gorm.ErrRecordNotFound so callers handle both
// backends identically.
type memoryStore struct {
	mu sync.Mutex

	customers     map[uint]*models.Customer
	paymentTokens map[uint]*models.PaymentToken
	payments      map[uint]*models.Payment
	refunds       map[uint]*models.Refund
	subscriptions map[uint]*models.Subscription
	topupAccounts map[uint]*models.TopupAccount

	nextID uint
}

// NewMemoryRepositories creates a repository bundle backed by a single
// in-memory store.
func NewMemoryRepositories() *Repositories {
	s := &memoryStore{
		customers:     make(map[uint]*models.Customer),
		paymentTokens: make(map[uint]*models.PaymentToken),
		payments:      make(map[uint]*models.Payment),
		refunds:       make(map[uint]*models.Refund),
		subscriptions: make(map[uint]*models.Subscription),
		topupAccounts: make(map[uint]*models.TopupAccount),
	}
	return &Repositories{
		Customer:     (*memoryCustomerRepo)(s),
		PaymentToken: (*memoryPaymentTokenRepo)(s),
		Payment:      (*memoryPaymentRepo)(s),
		Refund:       (*memoryRefundRepo)(s),
		Subscription: (*memorySubscriptionRepo)(s),
		TopupAccount: (*memoryTopupAccountRepo)(s),
	}
}

func (s *memoryStore) id() uint {
	s.nextID++
	return s.nextID
}

type memoryCustomerRepo memoryStore

func (s *memoryCustomerRepo) Create(customer *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if c.BillableID == customer.BillableID && c.GatewayID == customer.GatewayID {
			return gorm.ErrDuplicatedKey
		}
	}
	customer.ID = (*memoryStore)(s).id()
	customer.CreatedAt = time.Now()
	cp := *customer
	s.customers[customer.ID] = &cp
	return nil
}

func (s *memoryCustomerRepo) GetByID(id uint) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.customers[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memoryCustomerRepo) GetByBillableAndGateway(billableID, gatewayID uint) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if c.BillableID == billableID && c.GatewayID == gatewayID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memoryCustomerRepo) Delete(customer *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, pt := range s.paymentTokens {
		if pt.CustomerID == customer.ID {
			delete(s.paymentTokens, id)
		}
	}
	delete(s.customers, customer.ID)
	return nil
}

type memoryPaymentTokenRepo memoryStore

func (s *memoryPaymentTokenRepo) Create(token *models.PaymentToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token.ID = (*memoryStore)(s).id()
	token.CreatedAt = time.Now()
	cp := *token
	s.paymentTokens[token.ID] = &cp
	return nil
}

func (s *memoryPaymentTokenRepo) Update(token *models.PaymentToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.paymentTokens[token.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *token
	s.paymentTokens[token.ID] = &cp
	return nil
}

func (s *memoryPaymentTokenRepo) GetByID(id uint) (*models.PaymentToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pt, ok := s.paymentTokens[id]; ok {
		cp := *pt
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memoryPaymentTokenRepo) GetByToken(token string) (*models.PaymentToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pt := range s.paymentTokens {
		if pt.Token == token {
			cp := *pt
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memoryPaymentTokenRepo) GetByTokenAndBillable(token string, billableID uint) (*models.PaymentToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pt := range s.paymentTokens {
		if pt.Token == token && pt.BillableID == billableID {
			cp := *pt
			if c, ok := s.customers[pt.CustomerID]; ok {
				ccp := *c
				cp.Customer = &ccp
			}
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memoryPaymentTokenRepo) GetDefault(billableID uint) (*models.PaymentToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pt := range s.paymentTokens {
		if pt.BillableID == billableID && pt.IsDefault {
			cp := *pt
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memoryPaymentTokenRepo) ListByBillable(billableID uint) ([]models.PaymentToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PaymentToken
	for _, pt := range s.paymentTokens {
		if pt.BillableID == billableID {
			out = append(out, *pt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryPaymentTokenRepo) CountByBillable(billableID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, pt := range s.paymentTokens {
		if pt.BillableID == billableID {
			count++
		}
	}
	return count, nil
}

func (s *memoryPaymentTokenRepo) SetDefault(billableID, tokenID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pt := range s.paymentTokens {
		if pt.BillableID == billableID {
			pt.IsDefault = pt.ID == tokenID
		}
	}
	return nil
}

func (s *memoryPaymentTokenRepo) Delete(token *models.PaymentToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paymentTokens, token.ID)
	return nil
}

type memoryPaymentRepo memoryStore

func (s *memoryPaymentRepo) Create(payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payment.ID = (*memoryStore)(s).id()
	payment.CreatedAt = time.Now()
	cp := *payment
	s.payments[payment.ID] = &cp
	return nil
}

func (s *memoryPaymentRepo) Update(payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[payment.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *payment
	s.payments[payment.ID] = &cp
	return nil
}

func (s *memoryPaymentRepo) GetByID(id uint) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.payments[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memoryPaymentRepo) GetByTransactionReference(reference string, gatewayID uint) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.TransactionReference == reference && p.GatewayID == gatewayID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type memoryRefundRepo memoryStore

func (s *memoryRefundRepo) Create(refund *models.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	refund.ID = (*memoryStore)(s).id()
	refund.CreatedAt = time.Now()
	cp := *refund
	s.refunds[refund.ID] = &cp
	return nil
}

func (s *memoryRefundRepo) Update(refund *models.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refunds[refund.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *refund
	s.refunds[refund.ID] = &cp
	return nil
}

func (s *memoryRefundRepo) GetByID(id uint) (*models.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.refunds[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memoryRefundRepo) ListByPayment(paymentID uint) ([]models.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Refund
	for _, r := range s.refunds {
		if r.PaymentID == paymentID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memorySubscriptionRepo memoryStore

func (s *memorySubscriptionRepo) Create(sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = (*memoryStore)(s).id()
	sub.CreatedAt = time.Now()
	cp := *sub
	s.subscriptions[sub.ID] = &cp
	return nil
}

func (s *memorySubscriptionRepo) Update(sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[sub.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *sub
	s.subscriptions[sub.ID] = &cp
	return nil
}

func (s *memorySubscriptionRepo) GetByID(id uint) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subscriptions[id]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memorySubscriptionRepo) GetActiveByBillable(billableID uint) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscriptions {
		if sub.BillableID == billableID && sub.Status == models.SubscriptionStatusActive {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memorySubscriptionRepo) GetActiveByPaymentToken(tokenID uint) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscriptions {
		if sub.PaymentTokenID == tokenID && sub.Status == models.SubscriptionStatusActive {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memorySubscriptionRepo) DueSubscriptions(now time.Time) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Subscription
	for _, sub := range s.subscriptions {
		if sub.Status == models.SubscriptionStatusActive && !sub.Defaulted &&
			sub.NextAttempt != nil && !sub.NextAttempt.After(now) {
			cp := *sub
			if pt, ok := s.paymentTokens[sub.PaymentTokenID]; ok {
				ptc := *pt
				cp.PaymentToken = &ptc
			}
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memorySubscriptionRepo) Claim(id uint, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[id]
	if !ok {
		return false, nil
	}
	if sub.Status != models.SubscriptionStatusActive || sub.Defaulted ||
		sub.NextAttempt == nil || sub.NextAttempt.After(now) {
		return false, nil
	}
	sub.NextAttempt = nil
	return true, nil
}

type memoryTopupAccountRepo memoryStore

func (s *memoryTopupAccountRepo) Upsert(account *models.TopupAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.topupAccounts {
		if a.BillableID == account.BillableID {
			a.Autocharge = account.Autocharge
			a.MinimumBalance = account.MinimumBalance
			a.AutochargeAmount = account.AutochargeAmount
			a.AutochargePlanPoints = account.AutochargePlanPoints
			a.AutochargeCurrency = account.AutochargeCurrency
			*account = *a
			return nil
		}
	}
	account.ID = (*memoryStore)(s).id()
	account.CreatedAt = time.Now()
	cp := *account
	s.topupAccounts[account.ID] = &cp
	return nil
}

func (s *memoryTopupAccountRepo) Update(account *models.TopupAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topupAccounts[account.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *account
	s.topupAccounts[account.ID] = &cp
	return nil
}

func (s *memoryTopupAccountRepo) GetByBillable(billableID uint) (*models.TopupAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.topupAccounts {
		if a.BillableID == billableID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memoryTopupAccountRepo) DueAccounts(maxRetries int) ([]models.TopupAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TopupAccount
	for _, a := range s.topupAccounts {
		if a.Autocharge && a.CreditBalance.LessThan(a.MinimumBalance) && a.AutochargeRetries < maxRetries {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
