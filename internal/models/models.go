package models

import "time"

// User is the identity and subscription record. Rows are created by the
// identity-sync endpoint or by a payment-first checkout, and are never
// hard-deleted.
type User struct {
	ID                   string     `json:"id"`
	Email                string     `json:"email"`
	FirstName            *string    `json:"first_name,omitempty"`
	LastName             *string    `json:"last_name,omitempty"`
	ImageURL             *string    `json:"image_url,omitempty"`
	SubscriptionStatus   string     `json:"subscription_status"`
	BillingCycle         *string    `json:"billing_cycle,omitempty"`
	SubscriptionStartsAt *time.Time `json:"subscription_starts_at,omitempty"`
	SubscriptionEndsAt   *time.Time `json:"subscription_ends_at,omitempty"`
	LastResetDate        *time.Time `json:"last_reset_date,omitempty"`
	StripeCustomerID     *string    `json:"-"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Usage holds the three (used, limit) counter pairs, one row per user.
// used <= limit is enforced by the arbiter before a debit, not by the store.
type Usage struct {
	UserID        string    `json:"user_id"`
	WorkflowUsed  int       `json:"workflow_generations_used"`
	WorkflowLimit int       `json:"workflow_generations_limit"`
	PremiumUsed   int       `json:"premium_generations_used"`
	PremiumLimit  int       `json:"premium_generations_limit"`
	BonusUsed     int       `json:"bonus_generations_used"`
	BonusLimit    int       `json:"bonus_generations_limit"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GenerationLog is the append-only audit record for a debited generation.
type GenerationLog struct {
	ID             int64     `json:"id"`
	UserID         string    `json:"user_id"`
	SessionID      string    `json:"session_id"`
	InputText      string    `json:"input_text"`
	Success        bool      `json:"success"`
	GenerationType string    `json:"generation_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserStats is the read-only snapshot the chat UI caches. It is stale
// immediately after any mutating call.
type UserStats struct {
	UsedCount          int    `json:"used_count"`
	TotalLimit         int    `json:"total_limit"`
	RemainingCount     int    `json:"remaining_count"`
	SubscriptionStatus string `json:"subscription_status"`
	PremiumUsed        int    `json:"premium_used"`
	PremiumLimit       int    `json:"premium_limit"`
	BonusUsed          int    `json:"bonus_used"`
	BonusLimit         int    `json:"bonus_limit"`
	BonusRemaining     int    `json:"bonus_remaining"`
}

// UsageSnapshot is attached to quota-denied responses so the client can
// branch to an upgrade flow.
type UsageSnapshot struct {
	WorkflowUsed       int    `json:"workflow_used"`
	WorkflowLimit      int    `json:"workflow_limit"`
	PremiumUsed        int    `json:"premium_used"`
	PremiumLimit       int    `json:"premium_limit"`
	BonusUsed          int    `json:"bonus_used"`
	BonusLimit         int    `json:"bonus_limit"`
	SubscriptionStatus string `json:"subscription_status"`
}

const (
	TierFree    = "free"
	TierPro     = "pro"
	TierPremium = "premium"
)

const (
	CycleMonth = "month"
	CycleYear  = "year"
)

// Pool names are user-visible in billing history; do not rename.
const (
	PoolWorkflow = "workflow"
	PoolPremium  = "premium"
	PoolBonus    = "bonus"
)

const (
	PlanTypeBonus         = "bonus"
	PlanTypeCustom        = "custom"
	PlanTypeCustomPremium = "custom_premium"
)

// PremiumUnlimited is the sentinel limit for fixed premium plans.
const PremiumUnlimited = 999999
