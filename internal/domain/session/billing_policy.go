package session

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kiosk/backend/internal/domain/shared/valueobject"
)

// BillingPolicy controls how elapsed session time is turned into a charge.
// Policies are plain values so the engine can be reconfigured per venue
// without touching the cost computation.
type BillingPolicy struct {
	// RoundUpToHour bills any partial hour as a full hour. When false,
	// partial hours are billed as an exact fraction of the rate.
	RoundUpToHour bool

	// MinimumMinutes is the floor applied to elapsed time before billing.
	// Zero disables the floor.
	MinimumMinutes int
}

// DefaultBillingPolicy bills whole hours with no minimum
func DefaultBillingPolicy() BillingPolicy {
	return BillingPolicy{RoundUpToHour: true, MinimumMinutes: 0}
}

// Cost computes the charge for elapsed time at the given hourly rate.
// The result is monotone in elapsed: more time never costs less. Negative
// elapsed time is treated as zero.
func (p BillingPolicy) Cost(elapsed time.Duration, hourlyRate valueobject.Money) valueobject.Money {
	if elapsed < 0 {
		elapsed = 0
	}

	minutes := decimal.NewFromFloat(elapsed.Minutes())
	floor := decimal.NewFromInt(int64(p.MinimumMinutes))
	if minutes.LessThan(floor) {
		minutes = floor
	}

	sixty := decimal.NewFromInt(60)
	hours := minutes.Div(sixty)
	if p.RoundUpToHour {
		hours = hours.Ceil()
	}

	return hourlyRate.Multiply(hours).Round(2)
}
