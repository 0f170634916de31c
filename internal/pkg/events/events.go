package events

import (
	"time"

	"github.com/google/uuid"
)

// Name identifies a domain event consumed by notification and reporting
// systems outside this module.
type Name string

const (
	ChargeSuccess        Name = "Charge.Success"
	ChargeFailed         Name = "Charge.Failed"
	RefundSuccess        Name = "Refund.Success"
	RefundFailed         Name = "Refund.Failed"
	AutochargeSuccess    Name = "Autocharge.Success"
	AutochargeFailed     Name = "Autocharge.Failed"
	AutochargeRetry      Name = "Autocharge.Retry"
	AutochargeDefaulted  Name = "Autocharge.Defaulted"
	AutochargeCardExpire Name = "Autocharge.CardExpire"
	CustomerCreate       Name = "Customer.Create"
	CustomerDelete       Name = "Customer.Delete"
	CardCreate           Name = "Card.Create"
	CardDelete           Name = "Card.Delete"
)

// Event is a single fire-and-forget domain event.
type Event struct {
	ID         string                 `json:"id"`
	Name       Name                   `json:"name"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
}

// New builds an event with a fresh ID and timestamp.
func New(name Name, payload map[string]interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Name:       name,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Dispatcher delivers events to an external sink. Delivery is best-effort;
// a failed dispatch never fails the billing operation that emitted it.
type Dispatcher interface {
	Dispatch(event Event)
}
