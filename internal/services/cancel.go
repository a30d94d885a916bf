package services

import (
	"context"
	"fmt"
	"log"

	"workflowgate/internal/models"
)

// CancelSubscription cancels every active provider-side subscription for the
// user, then downgrades the local record to free. Provider cancels run first
// so a failure there leaves the entitlement untouched and the request can be
// retried. Returns the number of subscriptions cancelled.
func (s *Service) CancelSubscription(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return 0, ErrNoActiveSubscription
	}
	if user.SubscriptionStatus == models.TierFree {
		return 0, ErrNoActiveSubscription
	}

	subIDs, err := s.payments.ListActiveSubscriptions(ctx, *user.StripeCustomerID)
	if err != nil {
		return 0, fmt.Errorf("listing subscriptions for user %s: %w", userID, err)
	}

	if len(subIDs) == 0 {
		// Local record says paid but the provider has nothing active:
		// reconcile by downgrading, then report the mismatch.
		if err := s.store.DowngradeToFree(ctx, userID, s.config.FreeTierLimit); err != nil {
			return 0, fmt.Errorf("downgrading user %s: %w", userID, err)
		}
		log.Printf("[INFO] user %s had no active provider subscriptions, downgraded locally", userID)
		return 0, ErrNoActiveSubscription
	}

	for _, id := range subIDs {
		if err := s.payments.CancelSubscription(ctx, id); err != nil {
			return 0, fmt.Errorf("cancelling subscription %s: %w", id, err)
		}
		log.Printf("[INFO] cancelled subscription %s for user %s", id, userID)
	}

	// Downgrade also forfeits any remaining bonus balance.
	if err := s.store.DowngradeToFree(ctx, userID, s.config.FreeTierLimit); err != nil {
		return len(subIDs), fmt.Errorf("downgrading user %s: %w", userID, err)
	}

	return len(subIDs), nil
}
