// Package entitlement is the persistence layer for users, usage counters,
// generation audit logs and request-rate windows. It is the sole source of
// truth; callers treat any snapshot as stale after a mutating call.
package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"workflowgate/internal/models"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `id, email, first_name, last_name, image_url, subscription_status,
	billing_cycle, subscription_starts_at, subscription_ends_at, last_reset_date,
	stripe_customer_id, created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.ImageURL,
		&u.SubscriptionStatus, &u.BillingCycle, &u.SubscriptionStartsAt,
		&u.SubscriptionEndsAt, &u.LastResetDate, &u.StripeCustomerID,
		&u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users WHERE id = $1`, id))
}

// SyncUser upserts the identity-provider profile and guarantees a free-tier
// usage row exists. Subscription fields are never touched here; only the
// webhook and cancellation paths mutate those.
func (s *Store) SyncUser(ctx context.Context, id, email string, firstName, lastName, imageURL *string, freeLimit int) (models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, first_name, last_name, image_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			image_url = EXCLUDED.image_url,
			updated_at = NOW()
		RETURNING `+userColumns, id, email, firstName, lastName, imageURL))
	if err != nil {
		return models.User{}, err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_usage (user_id, workflow_generations_limit)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`, id, freeLimit)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) GetUsage(ctx context.Context, userID string) (models.Usage, error) {
	var u models.Usage
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, workflow_generations_used, workflow_generations_limit,
			premium_generations_used, premium_generations_limit,
			bonus_generations_used, bonus_generations_limit, updated_at
		FROM user_usage WHERE user_id = $1`, userID,
	).Scan(&u.UserID, &u.WorkflowUsed, &u.WorkflowLimit, &u.PremiumUsed,
		&u.PremiumLimit, &u.BonusUsed, &u.BonusLimit, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Usage{}, ErrNotFound
	}
	return u, err
}

// ResetCycleUsage zeroes all three used counters. Limits are untouched; the
// bonus limit in particular survives a cycle reset.
func (s *Store) ResetCycleUsage(ctx context.Context, userID string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE user_usage
		SET workflow_generations_used = 0,
			premium_generations_used = 0,
			bonus_generations_used = 0,
			updated_at = NOW()
		WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetLastResetDate(ctx context.Context, userID string, date time.Time) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE users SET last_reset_date = $1, updated_at = NOW()
		WHERE id = $2`, date, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DebitPool increments one used counter with a single guarded statement so
// two concurrent generations cannot both slip under the limit. Returns false
// when the guard lost the race (or the row is gone).
func (s *Store) DebitPool(ctx context.Context, userID, pool string) (bool, error) {
	var query string
	switch pool {
	case models.PoolWorkflow:
		query = `UPDATE user_usage
			SET workflow_generations_used = workflow_generations_used + 1, updated_at = NOW()
			WHERE user_id = $1 AND workflow_generations_used < workflow_generations_limit`
	case models.PoolPremium:
		query = `UPDATE user_usage
			SET premium_generations_used = premium_generations_used + 1, updated_at = NOW()
			WHERE user_id = $1 AND premium_generations_used < premium_generations_limit`
	case models.PoolBonus:
		query = `UPDATE user_usage
			SET bonus_generations_used = bonus_generations_used + 1, updated_at = NOW()
			WHERE user_id = $1 AND bonus_generations_used < bonus_generations_limit`
	default:
		return false, errors.New("unknown pool: " + pool)
	}
	ct, err := s.pool.Exec(ctx, query, userID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) AppendGenerationLog(ctx context.Context, entry models.GenerationLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO generation_logs (user_id, session_id, input_text, success, generation_type)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.UserID, entry.SessionID, entry.InputText, entry.Success, entry.GenerationType)
	return err
}

// AddBonusLimit credits a bonus top-up. Additive: top-ups stack, and a
// redelivered webhook double-credits (no event-id dedup yet).
func (s *Store) AddBonusLimit(ctx context.Context, userID string, count int) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE user_usage
		SET bonus_generations_limit = bonus_generations_limit + $1, updated_at = NOW()
		WHERE user_id = $2`, count, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SubscriptionUpdate is the absolute state written when a checkout
// completes. Upsert, not insert: a payment-first flow can race ahead of the
// identity sync, and the webhook may be redelivered.
type SubscriptionUpdate struct {
	UserID        string
	Email         string
	Tier          string
	CustomerID    string
	Cycle         string
	StartsAt      time.Time
	EndsAt        time.Time
	LastResetDate time.Time
}

func (s *Store) UpsertSubscribedUser(ctx context.Context, up SubscriptionUpdate) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, subscription_status, stripe_customer_id,
			billing_cycle, subscription_starts_at, subscription_ends_at, last_reset_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id)
		DO UPDATE SET subscription_status = EXCLUDED.subscription_status,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			billing_cycle = EXCLUDED.billing_cycle,
			subscription_starts_at = EXCLUDED.subscription_starts_at,
			subscription_ends_at = EXCLUDED.subscription_ends_at,
			last_reset_date = EXCLUDED.last_reset_date,
			updated_at = NOW()`,
		up.UserID, up.Email, up.Tier, up.CustomerID, up.Cycle, up.StartsAt, up.EndsAt, up.LastResetDate)
	return err
}

// ApplySubscriptionLimits writes the tier limits and zeroes the tier used
// counters: a new subscription starts with a fresh quota, deliberately
// discarding any unused balance from the prior tier. Bonus columns are left
// alone.
func (s *Store) ApplySubscriptionLimits(ctx context.Context, userID string, workflowLimit, premiumLimit int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_usage (user_id, workflow_generations_used, workflow_generations_limit,
			premium_generations_used, premium_generations_limit)
		VALUES ($1, 0, $2, 0, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET workflow_generations_used = 0,
			workflow_generations_limit = EXCLUDED.workflow_generations_limit,
			premium_generations_used = 0,
			premium_generations_limit = EXCLUDED.premium_generations_limit,
			updated_at = NOW()`, userID, workflowLimit, premiumLimit)
	return err
}

func (s *Store) FindUserIDByCustomer(ctx context.Context, customerID string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM users WHERE stripe_customer_id = $1`, customerID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

// SetTierAndWorkflowLimit applies a provider-driven status change
// (subscription updated/deleted). Absolute assignment so redelivery
// converges.
func (s *Store) SetTierAndWorkflowLimit(ctx context.Context, userID, tier string, workflowLimit int) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE users SET subscription_status = $1, updated_at = NOW()
		WHERE id = $2`, tier, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE user_usage
		SET workflow_generations_limit = $1, updated_at = NOW()
		WHERE user_id = $2`, workflowLimit, userID)
	return err
}

// DowngradeToFree is the cancellation write: free tier, free workflow limit,
// premium limit zeroed, and the bonus pool forfeited entirely (limit and
// used). A cycle reset, in contrast, keeps the bonus limit.
func (s *Store) DowngradeToFree(ctx context.Context, userID string, freeLimit int) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE users SET subscription_status = 'free', updated_at = NOW()
		WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE user_usage
		SET workflow_generations_limit = $1,
			premium_generations_limit = 0,
			bonus_generations_limit = 0,
			bonus_generations_used = 0,
			updated_at = NOW()
		WHERE user_id = $2`, freeLimit, userID)
	return err
}

// IncrementRequestWindow bumps the fixed-window request counter and returns
// the new count. Single statement, safe under concurrent invocations.
func (s *Store) IncrementRequestWindow(ctx context.Context, userID string, windowStart time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO request_windows (user_id, window_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id, window_start)
		DO UPDATE SET count = request_windows.count + 1
		RETURNING count`, userID, windowStart).Scan(&count)
	return count, err
}

// CleanupRequestWindows prunes windows older than the given cutoff.
func (s *Store) CleanupRequestWindows(ctx context.Context, before time.Time) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM request_windows WHERE window_start < $1`, before)
	return err
}
