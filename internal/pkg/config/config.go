package config

import (
	"strconv"
	"strings"

	"github.com/anthonyumpad/gobilling/internal/pkg/env"
)

const (
	DefaultRetryAttempts = 3
)

// DefaultRetryIntervalDays is the retry backoff table used when none is
// configured: 3 days after the first failed attempt, 7 after the first
// retry, 12 after the second.
var DefaultRetryIntervalDays = []int{3, 7, 12}

// Billing holds the configuration surface consumed by the billing core.
// It is loaded once at startup and passed in explicitly; the core never
// reads the environment directly.
type Billing struct {
	// DefaultGateway names the gateway used when a caller does not pick one.
	// Empty means "use the registry's default resolution".
	DefaultGateway string

	// RetryAttempts is the number of failed autocharge attempts allowed
	// before a subscription defaults.
	RetryAttempts int

	// RetryIntervalDays is the ordered day-offset table used to schedule
	// autocharge retries, indexed by the failure count before the current
	// failure and clamped to the last entry.
	RetryIntervalDays []int

	// TopupPlanPoints selects whether top-up accrual credits the stored
	// plan points instead of the raw charged amount.
	TopupPlanPoints bool
}

// LoadBilling reads the billing configuration from the environment.
func LoadBilling() Billing {
	cfg := Billing{
		DefaultGateway:    env.GetEnv("BILLING_DEFAULT_GATEWAY", ""),
		RetryAttempts:     DefaultRetryAttempts,
		RetryIntervalDays: DefaultRetryIntervalDays,
		TopupPlanPoints:   env.GetEnv("BILLING_TOPUP_PLAN_POINTS", "false") == "true",
	}

	if raw := env.GetEnv("BILLING_RETRY_ATTEMPTS", ""); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.RetryAttempts = n
		}
	}

	if raw := env.GetEnv("BILLING_RETRY_INTERVAL_DAYS", ""); raw != "" {
		if days := parseIntervalDays(raw); len(days) > 0 {
			cfg.RetryIntervalDays = days
		}
	}

	return cfg
}

// parseIntervalDays parses a comma separated day-offset list like "3,7,12".
// Invalid entries invalidate the whole list so a typo cannot silently
// shorten the backoff table.
func parseIntervalDays(raw string) []int {
	parts := strings.Split(raw, ",")
	days := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return nil
		}
		days = append(days, n)
	}
	return days
}

// RetryIntervalFor returns the day offset for scheduling the next attempt
// after the given pre-increment failure count.
func (c Billing) RetryIntervalFor(failedAttempts int) int {
	if len(c.RetryIntervalDays) == 0 {
		return DefaultRetryIntervalDays[len(DefaultRetryIntervalDays)-1]
	}
	if failedAttempts < 0 {
		failedAttempts = 0
	}
	if failedAttempts >= len(c.RetryIntervalDays) {
		failedAttempts = len(c.RetryIntervalDays) - 1
	}
	return c.RetryIntervalDays[failedAttempts]
}
