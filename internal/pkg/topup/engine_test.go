package topup

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthonyumpad/gobilling/app/models"
	"github.com/anthonyumpad/gobilling/app/repository"
	"github.com/anthonyumpad/gobilling/internal/pkg/billing"
	"github.com/anthonyumpad/gobilling/internal/pkg/config"
	"github.com/anthonyumpad/gobilling/internal/pkg/events"
	"github.com/anthonyumpad/gobilling/internal/pkg/gateway"
)

type scriptedGateway struct {
	mu            sync.Mutex
	decline       bool
	purchaseCalls int
}

func (g *scriptedGateway) Name() string { return "testgw" }

func (g *scriptedGateway) CreateCustomer(ctx context.Context, accountID uint, email string) (*gateway.CustomerResult, error) {
	return &gateway.CustomerResult{CustomerReference: fmt.Sprintf("cus_%d", accountID)}, nil
}

func (g *scriptedGateway) CreateCard(ctx context.Context, card gateway.Card, customerReference string) (*gateway.CardResult, error) {
	return &gateway.CardResult{CardReference: "card_1"}, nil
}

func (g *scriptedGateway) Purchase(ctx context.Context, req gateway.PurchaseRequest) (*gateway.PurchaseResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.purchaseCalls++
	if g.decline {
		return &gateway.PurchaseResult{Success: false, Message: "card declined"}, nil
	}
	return &gateway.PurchaseResult{
		Success:              true,
		TransactionReference: fmt.Sprintf("txn_%d", g.purchaseCalls),
	}, nil
}

func newTestEngine(t *testing.T, cfg config.Billing) (*Engine, *billing.Service, *repository.Repositories, *events.MemoryDispatcher, *scriptedGateway) {
	t.Helper()
	fake := &scriptedGateway{}
	registry, err := gateway.NewRegistry(gateway.Entry{
		Model:   models.Gateway{ID: 1, Name: "testgw", IsDefault: true, GatewayType: models.GatewayTypeStripe},
		Adapter: fake,
	})
	require.NoError(t, err)

	repos := repository.NewMemoryRepositories()
	dispatcher := events.NewMemoryDispatcher()
	svc := billing.NewService(repos, registry, dispatcher)
	return NewEngine(repos, svc, dispatcher, cfg), svc, repos, dispatcher, fake
}

func defaultConfig() config.Billing {
	return config.Billing{
		RetryAttempts:     3,
		RetryIntervalDays: []int{3, 7, 12},
	}
}

func testCard() gateway.Card {
	return gateway.Card{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Number:      "4242424242424242",
		ExpiryMonth: 12,
		ExpiryYear:  2030,
		CVV:         "123",
	}
}

// lowAccount configures an autocharge account whose balance already sits
// below the minimum.
func lowAccount(t *testing.T, engine *Engine, svc *billing.Service, settings Settings) *models.TopupAccount {
	t.Helper()
	ctx := context.Background()
	_, err := svc.CreateCard(ctx, 7, testCard(), "")
	require.NoError(t, err)

	account, err := engine.Configure(ctx, 7, settings)
	require.NoError(t, err)
	return account
}

func TestConfigureValidation(t *testing.T) {
	engine, _, _, _, _ := newTestEngine(t, defaultConfig())
	ctx := context.Background()

	tests := []struct {
		name       string
		billableID uint
		settings   Settings
	}{
		{"Zero billable id", 0, Settings{}},
		{"Autocharge without amount", 7, Settings{Autocharge: true}},
		{"Autocharge without default card", 7, Settings{Autocharge: true, ChargeAmount: decimal.NewFromInt(10)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Configure(ctx, tt.billableID, tt.settings)
			var verr *billing.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestCreditAndDebit(t *testing.T) {
	engine, _, _, _, _ := newTestEngine(t, defaultConfig())
	ctx := context.Background()

	_, err := engine.Configure(ctx, 7, Settings{MinimumBalance: decimal.NewFromInt(5)})
	require.NoError(t, err)

	account, err := engine.Credit(ctx, 7, decimal.NewFromInt(20))
	require.NoError(t, err)
	assert.True(t, account.CreditBalance.Equal(decimal.NewFromInt(20)))

	account, err = engine.Debit(ctx, 7, decimal.NewFromInt(8))
	require.NoError(t, err)
	assert.True(t, account.CreditBalance.Equal(decimal.NewFromInt(12)))

	_, err = engine.Debit(ctx, 7, decimal.NewFromInt(100))
	var conflict *billing.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestAutoChargeCreditsBalance(t *testing.T) {
	engine, svc, repos, dispatcher, _ := newTestEngine(t, defaultConfig())
	lowAccount(t, engine, svc, Settings{
		Autocharge:     true,
		MinimumBalance: decimal.NewFromInt(5),
		ChargeAmount:   decimal.NewFromInt(10),
	})

	engine.RunAutoCharge(context.Background(), time.Now().UTC())

	account, err := repos.TopupAccount.GetByBillable(7)
	require.NoError(t, err)
	assert.True(t, account.CreditBalance.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 0, account.AutochargeRetries)
	require.NotNil(t, account.LastAutochargeDate)
	assert.Len(t, dispatcher.Named(events.AutochargeSuccess), 1)
}

func TestAutoChargeCreditsPlanPoints(t *testing.T) {
	cfg := defaultConfig()
	cfg.TopupPlanPoints = true
	engine, svc, repos, _, _ := newTestEngine(t, cfg)
	lowAccount(t, engine, svc, Settings{
		Autocharge:     true,
		MinimumBalance: decimal.NewFromInt(5),
		ChargeAmount:   decimal.NewFromInt(10),
		PlanPoints:     decimal.NewFromInt(500),
	})

	engine.RunAutoCharge(context.Background(), time.Now().UTC())

	account, err := repos.TopupAccount.GetByBillable(7)
	require.NoError(t, err)
	assert.True(t, account.CreditBalance.Equal(decimal.NewFromInt(500)))
}

func TestAutoChargeSkipsHealthyBalance(t *testing.T) {
	engine, svc, _, _, fake := newTestEngine(t, defaultConfig())
	lowAccount(t, engine, svc, Settings{
		Autocharge:     true,
		MinimumBalance: decimal.NewFromInt(5),
		ChargeAmount:   decimal.NewFromInt(10),
	})

	_, err := engine.Credit(context.Background(), 7, decimal.NewFromInt(50))
	require.NoError(t, err)

	engine.RunAutoCharge(context.Background(), time.Now().UTC())
	assert.Equal(t, 0, fake.purchaseCalls)
}

func TestAutoChargeRetryPacingAndSuspension(t *testing.T) {
	engine, svc, repos, dispatcher, fake := newTestEngine(t, defaultConfig())
	lowAccount(t, engine, svc, Settings{
		Autocharge:     true,
		MinimumBalance: decimal.NewFromInt(5),
		ChargeAmount:   decimal.NewFromInt(10),
	})
	fake.decline = true

	now := time.Now().UTC()
	engine.RunAutoCharge(context.Background(), now)

	account, err := repos.TopupAccount.GetByBillable(7)
	require.NoError(t, err)
	assert.Equal(t, 1, account.AutochargeRetries)

	// Within the 3-day backoff window nothing is attempted.
	engine.RunAutoCharge(context.Background(), now.Add(time.Hour))
	assert.Equal(t, 1, fake.purchaseCalls)

	// After the backoff elapses the next attempt runs.
	engine.RunAutoCharge(context.Background(), now.AddDate(0, 0, 3))
	account, err = repos.TopupAccount.GetByBillable(7)
	require.NoError(t, err)
	assert.Equal(t, 2, account.AutochargeRetries)

	// Third failure reaches the limit and suspends the account.
	engine.RunAutoCharge(context.Background(), now.AddDate(0, 0, 11))
	account, err = repos.TopupAccount.GetByBillable(7)
	require.NoError(t, err)
	assert.Equal(t, 3, account.AutochargeRetries)
	assert.Len(t, dispatcher.Named(events.AutochargeDefaulted), 1)

	// Suspended accounts drop out of the sweep until funded again.
	engine.RunAutoCharge(context.Background(), now.AddDate(0, 1, 0))
	assert.Equal(t, 3, fake.purchaseCalls)

	_, err = engine.Credit(context.Background(), 7, decimal.NewFromInt(1))
	require.NoError(t, err)
	engine.RunAutoCharge(context.Background(), now.AddDate(0, 1, 0))
	assert.Equal(t, 4, fake.purchaseCalls)
}
