package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflowgate/internal/models"
)

func paidUser(tier string) models.User {
	return models.User{
		ID:                 "u1",
		SubscriptionStatus: tier,
		StripeCustomerID:   ptrStr("cus_123"),
	}
}

func TestCancelSubscription(t *testing.T) {
	store := &fakeStore{user: paidUser(models.TierPro)}
	pay := &fakePayments{subscriptions: []string{"sub_1", "sub_2"}}
	svc := newTestService(store, &fakeGenerator{}, pay)

	n, err := svc.CancelSubscription(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"sub_1", "sub_2"}, pay.cancelled)
	assert.Equal(t, 1, store.downgrades)
}

func TestCancelSubscriptionNoCustomer(t *testing.T) {
	user := paidUser(models.TierPro)
	user.StripeCustomerID = nil
	store := &fakeStore{user: user}
	pay := &fakePayments{}
	svc := newTestService(store, &fakeGenerator{}, pay)

	_, err := svc.CancelSubscription(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
	assert.Equal(t, 0, store.downgrades)
}

func TestCancelSubscriptionFreeTier(t *testing.T) {
	store := &fakeStore{user: paidUser(models.TierFree)}
	svc := newTestService(store, &fakeGenerator{}, &fakePayments{})

	_, err := svc.CancelSubscription(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
	assert.Equal(t, 0, store.downgrades)
}

func TestCancelSubscriptionReconcilesStaleRecord(t *testing.T) {
	// Paid locally, nothing active at the provider: downgrade anyway so the
	// record stops advertising a subscription that does not exist.
	store := &fakeStore{user: paidUser(models.TierPremium)}
	pay := &fakePayments{subscriptions: nil}
	svc := newTestService(store, &fakeGenerator{}, pay)

	n, err := svc.CancelSubscription(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, store.downgrades)
}

func TestCancelSubscriptionProviderFailureKeepsEntitlement(t *testing.T) {
	store := &fakeStore{user: paidUser(models.TierPro)}
	pay := &fakePayments{
		subscriptions: []string{"sub_1"},
		cancelErr:     errors.New("stripe 500"),
	}
	svc := newTestService(store, &fakeGenerator{}, pay)

	_, err := svc.CancelSubscription(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, 0, store.downgrades)
}

func TestCancelSubscriptionUnknownUser(t *testing.T) {
	store := &fakeStore{userErr: ErrNotFound}
	svc := newTestService(store, &fakeGenerator{}, &fakePayments{})

	_, err := svc.CancelSubscription(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
