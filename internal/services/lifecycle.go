package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v76"

	"workflowgate/internal/entitlement"
	"workflowgate/internal/models"
	"workflowgate/internal/quota"
)

// HandleCheckoutCompleted processes a checkout.session.completed event:
// either a one-time bonus top-up (additive) or a subscription purchase
// (absolute tier, limits and billing metadata, usage reset to zero).
//
// Every write is an upsert so a redelivered event converges, except the
// bonus credit, which is additive and double-credits on replay.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	userID := sess.ClientReferenceID
	if userID == "" {
		userID = sess.Metadata["user_id"]
	}
	if userID == "" {
		return fmt.Errorf("%w: no user id in checkout session", ErrInvalidRequest)
	}

	planType := sess.Metadata["plan_type"]
	planID := sess.Metadata["plan_id"]
	promptCount, _ := strconv.Atoi(sess.Metadata["prompt_count"])
	interval := sess.Metadata["interval"]
	if interval == "" {
		interval = models.CycleMonth
	}

	if planType == models.PlanTypeBonus && promptCount > 0 {
		if err := s.store.AddBonusLimit(ctx, userID, promptCount); err != nil {
			return fmt.Errorf("bonus credit for user %s: %w", userID, err)
		}
		log.Printf("[INFO] added %d bonus generations for user %s", promptCount, userID)
		return nil
	}

	// Subscription purchase: derive tier and limit from the plan metadata.
	tier := models.TierPro
	limit := s.config.ProTierLimit
	isCustomPremium := false
	switch {
	case (planType == models.PlanTypeCustom || planType == models.PlanTypeCustomPremium) && promptCount > 0:
		tier = models.TierPremium
		limit = promptCount
		isCustomPremium = true
	case strings.Contains(planID, "premium"):
		tier = models.TierPremium
	case strings.Contains(planID, "pro"):
		tier = models.TierPro
		limit = s.config.ProTierLimit
	}

	customerID := ""
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}

	now := s.now().UTC()
	endsAt := now.AddDate(0, 0, 30)
	if interval == models.CycleYear {
		endsAt = now.AddDate(0, 0, 365)
	}

	err := s.store.UpsertSubscribedUser(ctx, entitlement.SubscriptionUpdate{
		UserID: userID,
		// Payment-first flows can land before the identity sync; the
		// placeholder is only written on insert, never on conflict.
		Email:         userID + "@stripe-purchase.com",
		Tier:          tier,
		CustomerID:    customerID,
		Cycle:         interval,
		StartsAt:      now,
		EndsAt:        endsAt,
		LastResetDate: quota.ResetDateOf(now),
	})
	if err != nil {
		return fmt.Errorf("subscription upsert for user %s: %w", userID, err)
	}

	// Fresh quota for the new subscription: used counters go to zero and
	// any unused balance from the prior tier is discarded.
	workflowLimit := 0
	premiumLimit := 0
	switch {
	case isCustomPremium:
		premiumLimit = limit
	case tier == models.TierPremium:
		premiumLimit = models.PremiumUnlimited
	default:
		workflowLimit = limit
	}
	if err := s.store.ApplySubscriptionLimits(ctx, userID, workflowLimit, premiumLimit); err != nil {
		return fmt.Errorf("usage limits for user %s: %w", userID, err)
	}

	log.Printf("[INFO] subscription activated: user=%s tier=%s cycle=%s workflow_limit=%d premium_limit=%d",
		userID, tier, interval, workflowLimit, premiumLimit)
	return nil
}

// HandleSubscriptionChange processes customer.subscription.updated and deleted
// events: active maps to pro with the pro limit, anything else falls back to
// free. An unknown customer is logged and ignored so the webhook never
// fails on it.
func (s *Service) HandleSubscriptionChange(ctx context.Context, sub *stripe.Subscription) error {
	if sub.Customer == nil || sub.Customer.ID == "" {
		return fmt.Errorf("%w: no customer on subscription event", ErrInvalidRequest)
	}

	userID, err := s.store.FindUserIDByCustomer(ctx, sub.Customer.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("[INFO] subscription event for unknown customer %s, ignoring", sub.Customer.ID)
			return nil
		}
		return err
	}

	tier := models.TierFree
	limit := s.config.FreeTierLimit
	if sub.Status == stripe.SubscriptionStatusActive {
		tier = models.TierPro
		limit = s.config.ProTierLimit
	}

	if err := s.store.SetTierAndWorkflowLimit(ctx, userID, tier, limit); err != nil {
		return fmt.Errorf("tier update for user %s: %w", userID, err)
	}
	log.Printf("[INFO] subscription %s for user %s: tier=%s limit=%d", sub.Status, userID, tier, limit)
	return nil
}
