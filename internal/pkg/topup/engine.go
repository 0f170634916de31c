package topup

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/anthonyumpad/gobilling/app/models"
	"github.com/anthonyumpad/gobilling/app/repository"
	"github.com/anthonyumpad/gobilling/internal/pkg/billing"
	"github.com/anthonyumpad/gobilling/internal/pkg/config"
	"github.com/anthonyumpad/gobilling/internal/pkg/events"
)

// Settings configures balance-based autocharge for a billable entity.
type Settings struct {
	Autocharge     bool
	MinimumBalance decimal.Decimal
	ChargeAmount   decimal.Decimal
	PlanPoints     decimal.Decimal
	Currency       string
}

// Engine keeps prepaid credit balances topped up. When a balance falls below
// its minimum it charges the default payment token and credits the balance,
// either with the charged amount or with the configured plan points.
type Engine struct {
	repos      *repository.Repositories
	billing    *billing.Service
	dispatcher events.Dispatcher
	cfg        config.Billing
}

// NewEngine creates a top-up engine.
func NewEngine(repos *repository.Repositories, svc *billing.Service, dispatcher events.Dispatcher, cfg config.Billing) *Engine {
	return &Engine{
		repos:      repos,
		billing:    svc,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// Configure creates or updates the top-up account for a billable entity.
// Enabling autocharge requires a positive charge amount and a default
// payment token to exist.
func (e *Engine) Configure(ctx context.Context, billableID uint, settings Settings) (*models.TopupAccount, error) {
	if billableID == 0 {
		return nil, billing.NewValidationError("billable id is required")
	}
	if settings.Autocharge {
		if !settings.ChargeAmount.IsPositive() {
			return nil, billing.NewValidationError("autocharge amount must be positive")
		}
		if _, err := e.repos.PaymentToken.GetDefault(billableID); err != nil {
			return nil, billing.NewValidationError("billable %d has no default payment token", billableID)
		}
	}
	if settings.Currency == "" {
		settings.Currency = "USD"
	}

	account := &models.TopupAccount{
		BillableID:           billableID,
		Autocharge:           settings.Autocharge,
		MinimumBalance:       settings.MinimumBalance,
		AutochargeAmount:     settings.ChargeAmount,
		AutochargePlanPoints: settings.PlanPoints,
		AutochargeCurrency:   settings.Currency,
	}
	if err := e.repos.TopupAccount.Upsert(account); err != nil {
		return nil, err
	}
	log.Infof("[Topup] Configured account for billable %d (autocharge=%t)", billableID, settings.Autocharge)
	return account, nil
}

// Account returns the top-up account for a billable entity.
func (e *Engine) Account(ctx context.Context, billableID uint) (*models.TopupAccount, error) {
	return e.repos.TopupAccount.GetByBillable(billableID)
}

// Credit adds to the billable entity's credit balance, resetting the retry
// counter so a manually funded account charges again on its next dip.
func (e *Engine) Credit(ctx context.Context, billableID uint, amount decimal.Decimal) (*models.TopupAccount, error) {
	if !amount.IsPositive() {
		return nil, billing.NewValidationError("credit amount must be positive")
	}
	account, err := e.repos.TopupAccount.GetByBillable(billableID)
	if err != nil {
		return nil, billing.NewValidationError("billable %d has no top-up account", billableID)
	}
	account.CreditBalance = account.CreditBalance.Add(amount)
	account.AutochargeRetries = 0
	if err := e.repos.TopupAccount.Update(account); err != nil {
		return nil, err
	}
	return account, nil
}

// Debit subtracts from the billable entity's credit balance. The balance may
// go below the minimum; the next sweep tops it up.
func (e *Engine) Debit(ctx context.Context, billableID uint, amount decimal.Decimal) (*models.TopupAccount, error) {
	if !amount.IsPositive() {
		return nil, billing.NewValidationError("debit amount must be positive")
	}
	account, err := e.repos.TopupAccount.GetByBillable(billableID)
	if err != nil {
		return nil, billing.NewValidationError("billable %d has no top-up account", billableID)
	}
	if account.CreditBalance.LessThan(amount) {
		return nil, billing.NewConflictError("billable %d has insufficient credit balance", billableID)
	}
	account.CreditBalance = account.CreditBalance.Sub(amount)
	if err := e.repos.TopupAccount.Update(account); err != nil {
		return nil, err
	}
	return account, nil
}

// RunAutoCharge sweeps every due top-up account once and charges it. Failing
// accounts back off on the retry table and stop being selected once the
// retry limit is reached; a later Credit resets them.
func (e *Engine) RunAutoCharge(ctx context.Context, now time.Time) {
	due, err := e.repos.TopupAccount.DueAccounts(e.cfg.RetryAttempts)
	if err != nil {
		log.Errorf("[Topup] Autocharge sweep query failed: %v", err)
		return
	}
	for i := range due {
		account := due[i]
		if !account.TopupDue() {
			continue
		}
		if !e.retryElapsed(&account, now) {
			continue
		}
		e.chargeOne(ctx, &account, now)
	}
}

// retryElapsed applies the backoff table between attempts: after a failure
// the account waits the configured day offset before it is charged again.
func (e *Engine) retryElapsed(account *models.TopupAccount, now time.Time) bool {
	if account.AutochargeRetries == 0 || account.LastAutochargeDate == nil {
		return true
	}
	days := e.cfg.RetryIntervalFor(account.AutochargeRetries - 1)
	return !now.Before(account.LastAutochargeDate.AddDate(0, 0, days))
}

// chargeOne charges a single due account and adjusts its balance. A panic
// inside the charge is contained to this account.
func (e *Engine) chargeOne(ctx context.Context, account *models.TopupAccount, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Topup] Panic while charging billable %d: %v", account.BillableID, r)
		}
	}()

	token, err := e.repos.PaymentToken.GetDefault(account.BillableID)
	if err != nil {
		log.Errorf("[Topup] Billable %d has no default payment token", account.BillableID)
		e.recordFailure(account, now, "no default payment token")
		return
	}
	if token.IsExpired(now) {
		log.Warnf("[Topup] Card for billable %d expired %s", account.BillableID, token.ExpiryDate.Format("2006-01"))
		e.dispatcher.Dispatch(events.New(events.AutochargeCardExpire, map[string]interface{}{
			"billable_id":      account.BillableID,
			"payment_token_id": token.ID,
			"expiry_date":      token.ExpiryDate,
		}))
		e.recordFailure(account, now, "card expired")
		return
	}

	payment, err := e.billing.Purchase(ctx, account.BillableID, billing.PurchaseInstructions{
		Amount:        account.AutochargeAmount,
		Currency:      account.AutochargeCurrency,
		Description:   "Balance top-up autocharge",
		CardReference: token.Token,
		Method:        models.PaymentMethodAutocharge,
	}, e.cfg.DefaultGateway)
	if err != nil {
		log.Warnf("[Topup] Autocharge of billable %d failed: %v", account.BillableID, err)
		e.recordFailure(account, now, err.Error())
		return
	}

	credit := account.AutochargeAmount
	if e.cfg.TopupPlanPoints && account.AutochargePlanPoints.IsPositive() {
		credit = account.AutochargePlanPoints
	}
	account.CreditBalance = account.CreditBalance.Add(credit)
	account.AutochargeRetries = 0
	account.LastAutochargeDate = &now
	if err := e.repos.TopupAccount.Update(account); err != nil {
		log.Errorf("[Topup] Failed to credit billable %d after charge: %v", account.BillableID, err)
		return
	}

	log.Infof("[Topup] Charged billable %d (payment %d), credited %s, balance %s",
		account.BillableID, payment.ID, credit.StringFixed(2), account.CreditBalance.StringFixed(2))
	e.dispatcher.Dispatch(events.New(events.AutochargeSuccess, map[string]interface{}{
		"billable_id": account.BillableID,
		"payment_id":  payment.ID,
		"amount":      account.AutochargeAmount.StringFixed(2),
		"credited":    credit.StringFixed(2),
		"balance":     account.CreditBalance.StringFixed(2),
	}))
}

// recordFailure advances the account's retry state after a failed attempt.
func (e *Engine) recordFailure(account *models.TopupAccount, now time.Time, reason string) {
	account.AutochargeRetries++
	account.LastAutochargeDate = &now
	if err := e.repos.TopupAccount.Update(account); err != nil {
		log.Errorf("[Topup] Failed to record failure for billable %d: %v", account.BillableID, err)
		return
	}
	e.dispatcher.Dispatch(events.New(events.AutochargeFailed, map[string]interface{}{
		"billable_id": account.BillableID,
		"attempt":     account.AutochargeRetries,
		"reason":      reason,
	}))
	if account.AutochargeRetries >= e.cfg.RetryAttempts {
		log.Warnf("[Topup] Billable %d suspended from autocharge after %d failed attempts",
			account.BillableID, account.AutochargeRetries)
		e.dispatcher.Dispatch(events.New(events.AutochargeDefaulted, map[string]interface{}{
			"billable_id":     account.BillableID,
			"failed_attempts": account.AutochargeRetries,
		}))
	}
}
