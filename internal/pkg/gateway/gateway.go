package gateway

import "context"

// Card carries inline card data for purchases and card registration. Not all
// gateways consume every field; adapters pick what their API requires.
type Card struct {
	FirstName       string `json:"first_name" validate:"required"`
	LastName        string `json:"last_name" validate:"required"`
	Number          string `json:"number" validate:"required,credit_card"`
	ExpiryMonth     int    `json:"expiry_month" validate:"required,min=1,max=12"`
	ExpiryYear      int    `json:"expiry_year" validate:"required,min=2000"`
	CVV             string `json:"cvv" validate:"required,min=3,max=4"`
	Email           string `json:"email,omitempty" validate:"omitempty,email"`
	BillingAddress1 string `json:"billing_address1,omitempty"`
	BillingCity     string `json:"billing_city,omitempty"`
	BillingState    string `json:"billing_state,omitempty"`
	BillingPostcode string `json:"billing_postcode,omitempty"`
	BillingCountry  string `json:"billing_country,omitempty"`
	BillingPhone    string `json:"billing_phone,omitempty"`
}

// Name returns the cardholder name as a single string.
func (c Card) Name() string {
	if c.FirstName == "" {
		return c.LastName
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// LastFour returns the trailing digits of the PAN for vault metadata.
func (c Card) LastFour() string {
	if len(c.Number) < 4 {
		return c.Number
	}
	return c.Number[len(c.Number)-4:]
}

// CustomerResult is the gateway response to a customer registration.
type CustomerResult struct {
	CustomerReference string
	Data              map[string]interface{}
}

// CardResult is the gateway response to a card registration.
type CardResult struct {
	CardReference string
	Data          map[string]interface{}
}

// PurchaseRequest is the normalized outbound purchase call. Amount is a
// 2-decimal fixed-point string; exactly one of Card or CardReference is set.
type PurchaseRequest struct {
	Amount            string
	Currency          string
	Description       string
	AccountID         uint
	PackageID         string
	PackageName       string
	CustomerReference string
	CardReference     string
	Card              *Card
	PaymentSchema     string
	ReturnURL         string
	CancelURL         string
	NotifyURL         string
	Metadata          map[string]string
}

// PurchaseResult is the gateway response to a purchase call. Success=false
// with a nil transport error is a business decline; the Message and Code are
// the gateway's verbatim reason.
type PurchaseResult struct {
	Success              bool
	Redirect             bool
	RedirectURL          string
	TransactionReference string
	CardReference        string
	AmountUSD            string
	Message              string
	Code                 int
	Data                 map[string]interface{}
}

// RefundResult is the gateway response to a refund call.
type RefundResult struct {
	Success              bool
	TransactionReference string
	Message              string
	Data                 map[string]interface{}
}

// Adapter is the minimal surface every gateway adapter provides. Individual
// capabilities are separate interfaces so callers probe with a type
// assertion instead of runtime reflection; calling an unsupported
// capability is a configuration error, not a transient failure.
type Adapter interface {
	Name() string
}

// CustomerCreator registers a billable entity as a gateway-side customer.
type CustomerCreator interface {
	Adapter
	CreateCustomer(ctx context.Context, accountID uint, email string) (*CustomerResult, error)
}

// CustomerDeleter removes a gateway-side customer.
type CustomerDeleter interface {
	Adapter
	DeleteCustomer(ctx context.Context, customerReference string) error
}

// CardCreator vaults a card against a gateway-side customer.
type CardCreator interface {
	Adapter
	CreateCard(ctx context.Context, card Card, customerReference string) (*CardResult, error)
}

// CardDeleter removes a vaulted card from a gateway-side customer.
type CardDeleter interface {
	Adapter
	DeleteCard(ctx context.Context, cardReference, customerReference string) error
}

// Purchaser executes a purchase.
type Purchaser interface {
	Adapter
	Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error)
}

// Refunder refunds a prior purchase. Amount is a 2-decimal fixed-point
// string in the original transaction currency.
type Refunder interface {
	Adapter
	Refund(ctx context.Context, amount, transactionReference string) (*RefundResult, error)
}

// TransactionFetcher retrieves the gateway's view of a transaction, used by
// operators to reconcile payments whose outcome is unknown.
type TransactionFetcher interface {
	Adapter
	FetchTransaction(ctx context.Context, transactionReference string) (map[string]interface{}, error)
}
