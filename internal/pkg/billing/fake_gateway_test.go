package billing

import (
	"context"
	"fmt"
	"sync"

	"github.com/anthonyumpad/gobilling/app/models"
	"github.com/anthonyumpad/gobilling/app/repository"
	"github.com/anthonyumpad/gobilling/internal/pkg/events"
	"github.com/anthonyumpad/gobilling/internal/pkg/gateway"
)

// fakeAdapter implements every gateway capability with scripted responses.
type fakeAdapter struct {
	mu sync.Mutex

	purchaseResult *gateway.PurchaseResult
	purchaseErr    error
	refundResult   *gateway.RefundResult
	refundErr      error
	fetchData      map[string]interface{}

	customerCalls    int
	cardCalls        int
	purchaseCalls    int
	refundCalls      int
	deletedCards     []string
	deletedCustomers []string
}

func (f *fakeAdapter) Name() string { return "testgw" }

func (f *fakeAdapter) CreateCustomer(ctx context.Context, accountID uint, email string) (*gateway.CustomerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customerCalls++
	return &gateway.CustomerResult{CustomerReference: fmt.Sprintf("cus_%d", accountID)}, nil
}

func (f *fakeAdapter) DeleteCustomer(ctx context.Context, customerReference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedCustomers = append(f.deletedCustomers, customerReference)
	return nil
}

func (f *fakeAdapter) CreateCard(ctx context.Context, card gateway.Card, customerReference string) (*gateway.CardResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cardCalls++
	return &gateway.CardResult{CardReference: fmt.Sprintf("card_%d", f.cardCalls)}, nil
}

func (f *fakeAdapter) DeleteCard(ctx context.Context, cardReference, customerReference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedCards = append(f.deletedCards, cardReference)
	return nil
}

func (f *fakeAdapter) Purchase(ctx context.Context, req gateway.PurchaseRequest) (*gateway.PurchaseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchaseCalls++
	if f.purchaseErr != nil {
		return nil, f.purchaseErr
	}
	if f.purchaseResult != nil {
		cp := *f.purchaseResult
		return &cp, nil
	}
	return &gateway.PurchaseResult{
		Success:              true,
		TransactionReference: fmt.Sprintf("txn_%d", f.purchaseCalls),
	}, nil
}

func (f *fakeAdapter) Refund(ctx context.Context, amount, transactionReference string) (*gateway.RefundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundCalls++
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	if f.refundResult != nil {
		cp := *f.refundResult
		return &cp, nil
	}
	return &gateway.RefundResult{
		Success:              true,
		TransactionReference: fmt.Sprintf("re_%d", f.refundCalls),
	}, nil
}

func (f *fakeAdapter) FetchTransaction(ctx context.Context, transactionReference string) (map[string]interface{}, error) {
	if f.fetchData != nil {
		return f.fetchData, nil
	}
	return map[string]interface{}{"id": transactionReference}, nil
}

// newTestService wires a billing service against in-memory repositories, an
// in-memory dispatcher and a single fake gateway named "testgw".
func newTestService() (*Service, *repository.Repositories, *events.MemoryDispatcher, *fakeAdapter) {
	fake := &fakeAdapter{}
	registry, err := gateway.NewRegistry(gateway.Entry{
		Model:   models.Gateway{ID: 1, Name: "testgw", IsDefault: true, GatewayType: models.GatewayTypeStripe},
		Adapter: fake,
	})
	if err != nil {
		panic(err)
	}
	repos := repository.NewMemoryRepositories()
	dispatcher := events.NewMemoryDispatcher()
	return NewService(repos, registry, dispatcher), repos, dispatcher, fake
}

func testCard() gateway.Card {
	return gateway.Card{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Number:      "4242424242424242",
		ExpiryMonth: 12,
		ExpiryYear:  2030,
		CVV:         "123",
		Email:       "ada@example.com",
	}
}
