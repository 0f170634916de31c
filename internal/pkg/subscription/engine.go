package subscription

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

// Plan describes what a billable entity subscribes to.
type Plan struct {
	ChargeableID string
	Amount       decimal.Decimal
	Currency     string
	Interval     int
	IntervalType string
	Description  string
	Data         models.JSONMap
}

// Engine owns the recurring-billing lifecycle: it creates and cancels
// subscriptions and runs the autocharge sweep that charges due ones through
// the billing service.
type Engine struct {
	repos      *repository.Repositories
	billing    *billing.Service
	dispatcher events.Dispatcher
	cfg        config.Billing
}

// NewEngine creates a subscription engine.
func NewEngine(repos *repository.Repositories, svc *billing.Service, dispatcher events.Dispatcher, cfg config.Billing) *Engine {
	return &Engine{
		repos:      repos,
		billing:    svc,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// Subscribe creates a subscription for the billable entity, charging its
// default payment token on each interval. The entity must already hold a
// default token. If an ACTIVE subscription exists it is updated in place and
// its retry state reset, so re-subscribing after a default revives billing.
func (e *Engine) Subscribe(ctx context.Context, billableID uint, plan Plan) (*models.Subscription, error) {
	if billableID == 0 {
		return nil, billing.NewValidationError("billable id is required")
	}
	if !plan.Amount.IsPositive() {
		return nil, billing.NewValidationError("subscription amount must be positive")
	}
	if plan.Interval <= 0 {
		return nil, billing.NewValidationError("subscription interval must be positive")
	}
	if !models.ValidIntervalType(plan.IntervalType) {
		return nil, billing.NewValidationError("invalid interval type %q", plan.IntervalType)
	}
	if plan.Currency == "" {
		plan.Currency = "USD"
	}

	token, err := e.repos.PaymentToken.GetDefault(billableID)
	if err != nil {
		return nil, billing.NewValidationError("billable %d has no default payment token", billableID)
	}

	now := time.Now().UTC()
	next := models.AddInterval(now, plan.Interval, plan.IntervalType)

	sub, err := e.repos.Subscription.GetActiveByBillable(billableID)
	if err == nil {
		sub.ChargeableID = plan.ChargeableID
		sub.CustomerID = token.CustomerID
		sub.PaymentTokenID = token.ID
		sub.Amount = plan.Amount
		sub.Currency = plan.Currency
		sub.Interval = plan.Interval
		sub.IntervalType = plan.IntervalType
		sub.FailedAttempts = 0
		sub.Defaulted = false
		sub.NextAttempt = &next
		sub.Data = plan.Data
		if err := e.repos.Subscription.Update(sub); err != nil {
			return nil, err
		}
		log.Infof("[Subscription] Updated subscription %d for billable %d", sub.ID, billableID)
		return sub, nil
	}

	sub = &models.Subscription{
		BillableID:     billableID,
		ChargeableID:   plan.ChargeableID,
		CustomerID:     token.CustomerID,
		PaymentTokenID: token.ID,
		Amount:         plan.Amount,
		Currency:       plan.Currency,
		Interval:       plan.Interval,
		IntervalType:   plan.IntervalType,
		NextAttempt:    &next,
		Data:           plan.Data,
		Status:         models.SubscriptionStatusActive,
	}
	if err := e.repos.Subscription.Create(sub); err != nil {
		return nil, err
	}
	log.Infof("[Subscription] Created subscription %d for billable %d, first charge %s",
		sub.ID, billableID, next.Format(time.RFC3339))
	return sub, nil
}

// Unsubscribe cancels the billable entity's active subscription. Cancelling
// never refunds the charge already made for the current period.
func (e *Engine) Unsubscribe(ctx context.Context, billableID uint) error {
	sub, err := e.repos.Subscription.GetActiveByBillable(billableID)
	if err != nil {
		return billing.NewValidationError("billable %d has no active subscription", billableID)
	}
	sub.Status = models.SubscriptionStatusCancelled
	sub.NextAttempt = nil
	if err := e.repos.Subscription.Update(sub); err != nil {
		return err
	}
	log.Infof("[Subscription] Cancelled subscription %d for billable %d", sub.ID, billableID)
	return nil
}

// RunAutoCharge sweeps every due subscription once and charges it. Each row
// is claimed before charging, so two overlapping sweeps split the work
// instead of double-charging. A failing row never stops the sweep.
func (e *Engine) RunAutoCharge(ctx context.Context, now time.Time) {
	due, err := e.repos.Subscription.DueSubscriptions(now)
	if err != nil {
		log.Errorf("[Subscription] Autocharge sweep query failed: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}
	log.Infof("[Subscription] Autocharge sweep starting, %d due", len(due))

	for i := range due {
		sub := due[i]
		claimed, err := e.repos.Subscription.Claim(sub.ID, now)
		if err != nil {
			log.Errorf("[Subscription] Claim of subscription %d failed: %v", sub.ID, err)
			continue
		}
		if !claimed {
			continue
		}
		e.chargeOne(ctx, &sub, now)
	}
}

// chargeOne charges a single claimed subscription and records the outcome.
// A panic inside the charge is contained to this row.
func (e *Engine) chargeOne(ctx context.Context, sub *models.Subscription, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Subscription] Panic while charging subscription %d: %v", sub.ID, r)
		}
	}()

	token := sub.PaymentToken
	if token == nil {
		t, err := e.repos.PaymentToken.GetByID(sub.PaymentTokenID)
		if err != nil {
			log.Errorf("[Subscription] Subscription %d references missing payment token %d", sub.ID, sub.PaymentTokenID)
			e.recordFailure(sub, now, "payment token missing")
			return
		}
		token = t
	}

	if token.IsExpired(now) {
		log.Warnf("[Subscription] Card for subscription %d expired %s", sub.ID, token.ExpiryDate.Format("2006-01"))
		e.dispatcher.Dispatch(events.New(events.AutochargeCardExpire, map[string]interface{}{
			"billable_id":      sub.BillableID,
			"subscription_id":  sub.ID,
			"payment_token_id": token.ID,
			"expiry_date":      token.ExpiryDate,
		}))
		e.recordFailure(sub, now, "card expired")
		return
	}

	subID := sub.ID
	payment, err := e.billing.Purchase(ctx, sub.BillableID, billing.PurchaseInstructions{
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		Description:    "Subscription autocharge",
		PackageID:      sub.ChargeableID,
		CardReference:  token.Token,
		SubscriptionID: &subID,
		Method:         models.PaymentMethodAutocharge,
	}, e.cfg.DefaultGateway)
	if err != nil {
		log.Warnf("[Subscription] Autocharge of subscription %d failed: %v", sub.ID, err)
		e.recordFailure(sub, now, err.Error())
		return
	}

	next := models.AddInterval(now, sub.Interval, sub.IntervalType)
	sub.Ran++
	sub.FailedAttempts = 0
	sub.LastAttempt = &now
	sub.NextAttempt = &next
	if err := e.repos.Subscription.Update(sub); err != nil {
		log.Errorf("[Subscription] Failed to reschedule subscription %d: %v", sub.ID, err)
		return
	}

	log.Infof("[Subscription] Charged subscription %d (payment %d), next attempt %s",
		sub.ID, payment.ID, next.Format(time.RFC3339))
	e.dispatcher.Dispatch(events.New(events.AutochargeSuccess, map[string]interface{}{
		"billable_id":     sub.BillableID,
		"subscription_id": sub.ID,
		"payment_id":      payment.ID,
		"amount":          sub.Amount.StringFixed(2),
		"currency":        sub.Currency,
	}))
}

// recordFailure advances the subscription's retry state after a failed
// attempt. The subscription defaults once the failure count reaches the
// configured limit; until then the next attempt follows the backoff table.
func (e *Engine) recordFailure(sub *models.Subscription, now time.Time, reason string) {
	e.dispatcher.Dispatch(events.New(events.AutochargeFailed, map[string]interface{}{
		"billable_id":     sub.BillableID,
		"subscription_id": sub.ID,
		"attempt":         sub.FailedAttempts + 1,
		"reason":          reason,
	}))

	sub.LastAttempt = &now
	if sub.FailedAttempts+1 >= e.cfg.RetryAttempts {
		sub.FailedAttempts++
		sub.Defaulted = true
		sub.NextAttempt = nil
		if err := e.repos.Subscription.Update(sub); err != nil {
			log.Errorf("[Subscription] Failed to default subscription %d: %v", sub.ID, err)
			return
		}
		log.Warnf("[Subscription] Subscription %d defaulted after %d failed attempts", sub.ID, sub.FailedAttempts)
		e.dispatcher.Dispatch(events.New(events.AutochargeDefaulted, map[string]interface{}{
			"billable_id":     sub.BillableID,
			"subscription_id": sub.ID,
			"failed_attempts": sub.FailedAttempts,
		}))
		return
	}

	days := e.cfg.RetryIntervalFor(sub.FailedAttempts)
	sub.FailedAttempts++
	next := now.AddDate(0, 0, days)
	sub.NextAttempt = &next
	if err := e.repos.Subscription.Update(sub); err != nil {
		log.Errorf("[Subscription] Failed to schedule retry for subscription %d: %v", sub.ID, err)
		return
	}
	log.Infof("[Subscription] Subscription %d retry %d scheduled in %d days", sub.ID, sub.FailedAttempts, days)
	e.dispatcher.Dispatch(events.New(events.AutochargeRetry, map[string]interface{}{
		"billable_id":     sub.BillableID,
		"subscription_id": sub.ID,
		"failed_attempts": sub.FailedAttempts,
		"next_attempt":    next,
	}))
}
