package quota

import (
	"time"

	"workflowgate/internal/models"
)

// NextReset computes the next billing-cycle reset boundary for a user, or
// (zero, false) when the user never resets (free tier, or no cycle/start
// recorded). The boundary is last_reset_date advanced by one cycle unit, or
// subscription_starts_at advanced by one unit before any reset has run.
//
// Calendar arithmetic uses AddDate, which normalizes day overflow (Jan 31
// plus one month lands in early March). That behavior is pinned by tests.
func NextReset(user models.User) (time.Time, bool) {
	if user.SubscriptionStatus == models.TierFree || user.BillingCycle == nil || user.SubscriptionStartsAt == nil {
		return time.Time{}, false
	}

	base := *user.SubscriptionStartsAt
	if user.LastResetDate != nil {
		base = *user.LastResetDate
	}

	switch *user.BillingCycle {
	case models.CycleMonth:
		return base.AddDate(0, 1, 0), true
	case models.CycleYear:
		return base.AddDate(1, 0, 0), true
	default:
		return time.Time{}, false
	}
}

// ResetDue reports whether a cycle reset should run now. The check is always
// by date, never by flag, so a partially applied reset is retried on the
// next request.
func ResetDue(user models.User, now time.Time) bool {
	next, ok := NextReset(user)
	if !ok {
		return false
	}
	return !now.Before(next)
}

// ResetDateOf truncates a reset moment to the stored day granularity
// (last_reset_date is a date column).
func ResetDateOf(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
