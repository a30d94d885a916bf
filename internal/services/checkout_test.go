package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflowgate/internal/payments"
)

func TestCreateFixedCheckout(t *testing.T) {
	pay := &fakePayments{sessionID: "cs_test_123"}
	svc := newTestService(&fakeStore{}, &fakeGenerator{}, pay)

	sessionID, err := svc.CreateFixedCheckout(context.Background(), payments.FixedPlanCheckout{
		PriceID:    "price_123",
		PlanID:     "pro_monthly",
		UserID:     "u1",
		SuccessURL: "https://app.example.com/success",
		CancelURL:  "https://app.example.com/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, pay.sessionID, sessionID)
}

func TestCreateFixedCheckoutInvalid(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeGenerator{}, &fakePayments{})

	_, err := svc.CreateFixedCheckout(context.Background(), payments.FixedPlanCheckout{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCreateCustomCheckoutInvalidInterval(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeGenerator{}, &fakePayments{})

	_, err := svc.CreateCustomCheckout(context.Background(), payments.CustomPlanCheckout{
		Amount:      29,
		Currency:    "usd",
		PromptCount: 100,
		Interval:    "weekly",
		UserID:      "u1",
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCreateBonusCheckout(t *testing.T) {
	pay := &fakePayments{sessionID: "cs_test_456"}
	svc := newTestService(&fakeStore{}, &fakeGenerator{}, pay)

	sessionID, err := svc.CreateBonusCheckout(context.Background(), payments.BonusCheckout{
		AmountCents: 999,
		PromptCount: 50,
		UserID:      "u1",
		SuccessURL:  "https://app.example.com/success",
		CancelURL:   "https://app.example.com/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, pay.sessionID, sessionID)
}
