package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"workflowgate/internal/generator"
	"workflowgate/internal/models"
	"workflowgate/internal/quota"
)

const (
	// MaxInputLength bounds user_input in characters, not bytes; longer
	// requests are rejected before any external call.
	MaxInputLength = 2000
	// auditInputLength is how many characters of the input the audit log
	// keeps.
	auditInputLength = 500

	rateLimitRetryAfter = 60 // seconds, one fixed window
)

// Generate runs one metered generation request end to end: validation, rate
// limit, billing-cycle reset, quota arbitration, the backend call, then the
// debit and audit write only on backend-reported success. The backend
// response is returned verbatim.
//
// Retrying the same session id debits again; it is not an idempotency key.
func (s *Service) Generate(ctx context.Context, sessionID, userInput, userID string) (json.RawMessage, error) {
	if sessionID == "" || userID == "" {
		return nil, fmt.Errorf("%w: session_id and user_id are required", ErrInvalidRequest)
	}
	if userInput == "" {
		return nil, fmt.Errorf("%w: user_input is required", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(userInput) > MaxInputLength {
		return nil, fmt.Errorf("%w: input too long, maximum %d characters allowed", ErrInvalidRequest, MaxInputLength)
	}

	now := s.now().UTC()

	if s.config.RateLimitPerMinute > 0 {
		window := now.Truncate(time.Minute)
		count, err := s.store.IncrementRequestWindow(ctx, userID, window)
		if err != nil {
			// Throttle bookkeeping must not take the service down.
			log.Printf("[ERROR] request window increment failed for user %s: %v", userID, err)
		} else if count > s.config.RateLimitPerMinute {
			return nil, &RateLimitError{RetryAfter: rateLimitRetryAfter}
		}
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	usage, err := s.store.GetUsage(ctx, userID)
	if err != nil {
		return nil, err
	}

	if reset, err := s.maybeResetCycle(ctx, user, now); err != nil {
		log.Printf("[ERROR] billing cycle reset failed for user %s: %v", userID, err)
	} else if reset {
		// Counters changed under us; the pre-reset snapshot is stale.
		usage, err = s.store.GetUsage(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	decision := quota.Decide(user.SubscriptionStatus, usage)
	if !decision.Permitted {
		return nil, &QuotaExceededError{Usage: snapshotOf(user.SubscriptionStatus, usage)}
	}

	result, err := s.generator.Generate(ctx, generator.Request{
		SessionID: sessionID,
		UserInput: userInput,
		UserID:    userID,
	})
	if err != nil {
		// No debit and no audit row on transport failure: a generation the
		// user never received must not consume quota.
		return nil, err
	}

	if result.Success {
		s.commitDebit(ctx, userID, sessionID, userInput, decision.Pool)
	}

	return result.Body, nil
}

// maybeResetCycle applies a due billing-cycle reset. Counters are zeroed
// first, then last_reset_date is stamped; if the second write fails the
// by-date check simply fires again on the next request.
func (s *Service) maybeResetCycle(ctx context.Context, user models.User, now time.Time) (bool, error) {
	if !quota.ResetDue(user, now) {
		return false, nil
	}
	if err := s.store.ResetCycleUsage(ctx, user.ID); err != nil {
		return false, err
	}
	if err := s.store.SetLastResetDate(ctx, user.ID, quota.ResetDateOf(now)); err != nil {
		log.Printf("[ERROR] last_reset_date update failed for user %s: %v", user.ID, err)
	}
	return true, nil
}

// commitDebit increments the chosen pool and appends the audit row.
// Both writes are best-effort: the user already has their result, so
// bookkeeping failures are logged for reconciliation, never surfaced.
func (s *Service) commitDebit(ctx context.Context, userID, sessionID, userInput, pool string) {
	debited, err := s.store.DebitPool(ctx, userID, pool)
	if err != nil {
		log.Printf("[ERROR] usage debit failed: user=%s pool=%s: %v", userID, pool, err)
	} else if !debited {
		log.Printf("[ERROR] usage debit lost the limit race: user=%s pool=%s", userID, pool)
	}

	// Truncate on a rune boundary: a split multibyte character would make
	// the audit row invalid UTF-8 and the insert would fail.
	input := userInput
	if utf8.RuneCountInString(input) > auditInputLength {
		input = string([]rune(input)[:auditInputLength])
	}
	err = s.store.AppendGenerationLog(ctx, models.GenerationLog{
		UserID:         userID,
		SessionID:      sessionID,
		InputText:      input,
		Success:        true,
		GenerationType: pool,
	})
	if err != nil {
		log.Printf("[ERROR] generation log write failed: user=%s session=%s: %v", userID, sessionID, err)
	}
}
