package services

import (
	"context"
	"errors"
	"fmt"

	"workflowgate/internal/payments"
)

// CreateFixedCheckout starts a checkout session for a predefined plan and
// returns the session id the client redirects with.
func (s *Service) CreateFixedCheckout(ctx context.Context, req payments.FixedPlanCheckout) (string, error) {
	if err := req.Validate(); err != nil {
		return "", invalidCheckout(err)
	}
	return s.payments.CreateFixedSession(ctx, req)
}

// CreateCustomCheckout starts a checkout session for a user-sized recurring
// plan, creating the product and price on the fly.
func (s *Service) CreateCustomCheckout(ctx context.Context, req payments.CustomPlanCheckout) (string, error) {
	if err := req.Validate(); err != nil {
		return "", invalidCheckout(err)
	}
	return s.payments.CreateCustomSession(ctx, req)
}

// CreateBonusCheckout starts a one-time checkout session for a bonus
// generation pack.
func (s *Service) CreateBonusCheckout(ctx context.Context, req payments.BonusCheckout) (string, error) {
	if err := req.Validate(); err != nil {
		return "", invalidCheckout(err)
	}
	return s.payments.CreateBonusSession(ctx, req)
}

func invalidCheckout(err error) error {
	if errors.Is(err, payments.ErrInvalidCheckout) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return err
}
