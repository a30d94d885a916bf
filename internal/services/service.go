// Package services orchestrates entitlement decisions: the generation
// gateway, the subscription lifecycle, cancellation and checkout creation.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"workflowgate/internal/config"
	"workflowgate/internal/entitlement"
	"workflowgate/internal/generator"
	"workflowgate/internal/models"
	"workflowgate/internal/payments"
)

var (
	ErrNotFound               = entitlement.ErrNotFound
	ErrInvalidRequest         = errors.New("invalid request")
	ErrNoActiveSubscription   = errors.New("no active subscription")
	ErrStripeNotConfigured    = payments.ErrNotConfigured
	ErrGeneratorNotConfigured = generator.ErrNotConfigured
	ErrUpstreamUnavailable    = generator.ErrUnavailable
)

// QuotaExceededError carries the usage snapshot so the client can branch to
// an upgrade flow.
type QuotaExceededError struct {
	Usage models.UsageSnapshot
}

func (e *QuotaExceededError) Error() string {
	return "generation limit exceeded, upgrade your plan or wait for your limit to reset"
}

// RateLimitError is a per-user request-throttle rejection, distinct from
// quota exhaustion.
type RateLimitError struct {
	RetryAfter int // seconds
}

func (e *RateLimitError) Error() string {
	return "too many requests, please try again later"
}

// Store is the entitlement persistence contract, implemented by
// entitlement.Store.
type Store interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	SyncUser(ctx context.Context, id, email string, firstName, lastName, imageURL *string, freeLimit int) (models.User, error)
	GetUsage(ctx context.Context, userID string) (models.Usage, error)
	ResetCycleUsage(ctx context.Context, userID string) error
	SetLastResetDate(ctx context.Context, userID string, date time.Time) error
	DebitPool(ctx context.Context, userID, pool string) (bool, error)
	AppendGenerationLog(ctx context.Context, entry models.GenerationLog) error
	AddBonusLimit(ctx context.Context, userID string, count int) error
	UpsertSubscribedUser(ctx context.Context, up entitlement.SubscriptionUpdate) error
	ApplySubscriptionLimits(ctx context.Context, userID string, workflowLimit, premiumLimit int) error
	FindUserIDByCustomer(ctx context.Context, customerID string) (string, error)
	SetTierAndWorkflowLimit(ctx context.Context, userID, tier string, workflowLimit int) error
	DowngradeToFree(ctx context.Context, userID string, freeLimit int) error
	IncrementRequestWindow(ctx context.Context, userID string, windowStart time.Time) (int, error)
}

// Generator is the workflow generation backend, implemented by
// generator.Client.
type Generator interface {
	IsConfigured() bool
	Generate(ctx context.Context, req generator.Request) (generator.Result, error)
}

// Payments is the payment provider, implemented by payments.Client.
type Payments interface {
	IsConfigured() bool
	CreateFixedSession(ctx context.Context, req payments.FixedPlanCheckout) (string, error)
	CreateCustomSession(ctx context.Context, req payments.CustomPlanCheckout) (string, error)
	CreateBonusSession(ctx context.Context, req payments.BonusCheckout) (string, error)
	ListActiveSubscriptions(ctx context.Context, customerID string) ([]string, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

type Service struct {
	store     Store
	generator Generator
	payments  Payments
	config    config.Config
	now       func() time.Time
}

func New(store Store, gen Generator, pay Payments, cfg config.Config) *Service {
	return &Service{
		store:     store,
		generator: gen,
		payments:  pay,
		config:    cfg,
		now:       time.Now,
	}
}

// SyncUser upserts the identity-provider profile and seeds the free-tier
// usage row on first sight.
func (s *Service) SyncUser(ctx context.Context, id, email string, firstName, lastName, imageURL *string) (models.User, error) {
	if id == "" || email == "" {
		return models.User{}, fmt.Errorf("%w: user id and email are required", ErrInvalidRequest)
	}
	return s.store.SyncUser(ctx, id, email, firstName, lastName, imageURL, s.config.FreeTierLimit)
}

// UserStats builds the read-only snapshot the chat UI renders. Premium users
// see the premium pool as their primary counter, everyone else the workflow
// pool.
func (s *Service) UserStats(ctx context.Context, userID string) (models.UserStats, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return models.UserStats{}, err
	}
	usage, err := s.store.GetUsage(ctx, userID)
	if err != nil {
		return models.UserStats{}, err
	}

	used, limit := usage.WorkflowUsed, usage.WorkflowLimit
	if user.SubscriptionStatus == models.TierPremium {
		used, limit = usage.PremiumUsed, usage.PremiumLimit
	}

	return models.UserStats{
		UsedCount:          used,
		TotalLimit:         limit,
		RemainingCount:     maxInt(0, limit-used),
		SubscriptionStatus: user.SubscriptionStatus,
		PremiumUsed:        usage.PremiumUsed,
		PremiumLimit:       usage.PremiumLimit,
		BonusUsed:          usage.BonusUsed,
		BonusLimit:         usage.BonusLimit,
		BonusRemaining:     maxInt(0, usage.BonusLimit-usage.BonusUsed),
	}, nil
}

func snapshotOf(tier string, u models.Usage) models.UsageSnapshot {
	return models.UsageSnapshot{
		WorkflowUsed:       u.WorkflowUsed,
		WorkflowLimit:      u.WorkflowLimit,
		PremiumUsed:        u.PremiumUsed,
		PremiumLimit:       u.PremiumLimit,
		BonusUsed:          u.BonusUsed,
		BonusLimit:         u.BonusLimit,
		SubscriptionStatus: tier,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
