package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAddInterval(t *testing.T) {
	base := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		count        int
		intervalType string
		expected     time.Time
	}{
		{"One day", 1, IntervalTypeDay, time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)},
		{"Ten days", 10, IntervalTypeDays, time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)},
		{"Two weeks", 2, IntervalTypeWeek, time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)},
		{"One month normalizes", 1, IntervalTypeMonth, time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)},
		{"One year", 1, IntervalTypeYear, time.Date(2027, 1, 31, 12, 0, 0, 0, time.UTC)},
		{"Unknown type is identity", 1, "FORTNIGHT", base},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AddInterval(base, tt.count, tt.intervalType))
		})
	}
}

func TestValidIntervalType(t *testing.T) {
	for _, valid := range []string{IntervalTypeDay, IntervalTypeDays, IntervalTypeWeek, IntervalTypeMonth, IntervalTypeYear} {
		assert.True(t, ValidIntervalType(valid), valid)
	}
	assert.False(t, ValidIntervalType("FORTNIGHT"))
	assert.False(t, ValidIntervalType(""))
	assert.False(t, ValidIntervalType("day"))
}

func TestCardExpiry(t *testing.T) {
	// The card stays valid through the last second of its expiry month.
	expiry := CardExpiry(2, 2026)
	assert.Equal(t, time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC), expiry)

	expiry = CardExpiry(12, 2026)
	assert.Equal(t, time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC), expiry)
}

func TestPaymentTokenIsExpired(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	past := CardExpiry(8, 2026)
	future := CardExpiry(9, 2026)

	assert.True(t, (&PaymentToken{ExpiryDate: &past}).IsExpired(now))
	assert.False(t, (&PaymentToken{ExpiryDate: &future}).IsExpired(now))
	assert.False(t, (&PaymentToken{}).IsExpired(now))
}

func TestPaymentRefundable(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		remaining  decimal.Decimal
		refundable bool
	}{
		{"Fresh success", PaymentStatusSuccess, decimal.NewFromInt(100), true},
		{"Partially refunded", PaymentStatusPartiallyRefunded, decimal.NewFromInt(30), true},
		{"Fully refunded", PaymentStatusRefunded, decimal.Zero, false},
		{"Nothing left", PaymentStatusSuccess, decimal.Zero, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Payment{Status: tt.status, AmountNotRefunded: tt.remaining}
			assert.Equal(t, tt.refundable, p.Refundable())
		})
	}
}

func TestTopupDue(t *testing.T) {
	account := &TopupAccount{
		Autocharge:     true,
		CreditBalance:  decimal.NewFromInt(2),
		MinimumBalance: decimal.NewFromInt(5),
	}
	assert.True(t, account.TopupDue())

	account.CreditBalance = decimal.NewFromInt(5)
	assert.False(t, account.TopupDue())

	account.CreditBalance = decimal.NewFromInt(2)
	account.Autocharge = false
	assert.False(t, account.TopupDue())
}

func TestJSONMapRoundTrip(t *testing.T) {
	m := JSONMap{"card": map[string]interface{}{"number": "4242"}}

	value, err := m.Value()
	assert.NoError(t, err)

	var out JSONMap
	assert.NoError(t, out.Scan(value))
	assert.Equal(t, "4242", out["card"].(map[string]interface{})["number"])

	var nilMap JSONMap
	v, err := nilMap.Value()
	assert.NoError(t, err)
	assert.Nil(t, v)
	assert.Error(t, out.Scan(42))
}
