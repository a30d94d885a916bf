// Package payments wraps the Stripe API for checkout session creation and
// subscription cancellation.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"workflowgate/internal/models"
)

var ErrNotConfigured = errors.New("stripe not configured")

type Client struct {
	api      *client.API
	currency string
}

// New builds a Stripe client with a bounded per-call timeout. Retries are
// left to the caller or to Stripe's own redelivery.
func New(secretKey, currency string, timeout time.Duration) *Client {
	if secretKey == "" {
		return &Client{currency: currency}
	}
	api := &client.API{}
	api.Init(secretKey, stripe.NewBackends(&http.Client{Timeout: timeout}))
	return &Client{api: api, currency: currency}
}

func (c *Client) IsConfigured() bool {
	return c.api != nil
}

// CreateFixedSession starts checkout for a pre-configured recurring price
// and returns the session id for the client-side redirect.
func (c *Client) CreateFixedSession(ctx context.Context, req FixedPlanCheckout) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())
	params.AddMetadata("user_id", req.UserID)
	params.AddMetadata("plan_id", req.PlanID)

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

// CreateCustomSession creates a product and recurring price on the fly for a
// dynamically sized premium plan, then starts checkout for it. The prompt
// count rides in the session metadata so the webhook can set the premium
// limit.
func (c *Client) CreateCustomSession(ctx context.Context, req CustomPlanCheckout) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	productName := req.ProductName
	if productName == "" {
		productName = fmt.Sprintf("%d Workflow Generations", req.PromptCount)
	}

	productParams := &stripe.ProductParams{
		Name:        stripe.String(productName),
		Description: stripe.String(fmt.Sprintf("Custom premium plan with %d workflow generations per %s", req.PromptCount, req.Interval)),
	}
	productParams.Context = ctx
	productParams.SetIdempotencyKey(uuid.NewString())
	productParams.AddMetadata("type", models.PlanTypeCustomPremium)
	productParams.AddMetadata("prompt_count", strconv.Itoa(req.PromptCount))
	productParams.AddMetadata("user_id", req.UserID)

	product, err := c.api.Products.New(productParams)
	if err != nil {
		return "", err
	}

	priceParams := &stripe.PriceParams{
		UnitAmount: stripe.Int64(req.Amount * 100),
		Currency:   stripe.String(req.Currency),
		Product:    stripe.String(product.ID),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(req.Interval),
		},
	}
	priceParams.Context = ctx
	priceParams.SetIdempotencyKey(uuid.NewString())

	price, err := c.api.Prices.New(priceParams)
	if err != nil {
		return "", err
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(price.ID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	sessionParams.Context = ctx
	sessionParams.SetIdempotencyKey(uuid.NewString())
	sessionParams.AddMetadata("user_id", req.UserID)
	sessionParams.AddMetadata("plan_type", models.PlanTypeCustomPremium)
	sessionParams.AddMetadata("prompt_count", strconv.Itoa(req.PromptCount))
	sessionParams.AddMetadata("interval", req.Interval)

	sess, err := c.api.CheckoutSessions.New(sessionParams)
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

// CreateBonusSession starts a one-time payment for bonus generations.
func (c *Client) CreateBonusSession(ctx context.Context, req BonusCheckout) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	productName := req.ProductName
	if productName == "" {
		productName = fmt.Sprintf("%d Bonus Generations", req.PromptCount)
	}
	currency := req.Currency
	if currency == "" {
		currency = c.currency
	}

	productParams := &stripe.ProductParams{
		Name:        stripe.String(productName),
		Description: stripe.String(fmt.Sprintf("One-time purchase of %d bonus workflow generations", req.PromptCount)),
	}
	productParams.Context = ctx
	productParams.SetIdempotencyKey(uuid.NewString())

	product, err := c.api.Products.New(productParams)
	if err != nil {
		return "", err
	}

	// No recurring block: one-time price.
	priceParams := &stripe.PriceParams{
		UnitAmount: stripe.Int64(req.AmountCents),
		Currency:   stripe.String(currency),
		Product:    stripe.String(product.ID),
	}
	priceParams.Context = ctx
	priceParams.SetIdempotencyKey(uuid.NewString())

	price, err := c.api.Prices.New(priceParams)
	if err != nil {
		return "", err
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(price.ID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	sessionParams.Context = ctx
	sessionParams.SetIdempotencyKey(uuid.NewString())
	sessionParams.AddMetadata("user_id", req.UserID)
	sessionParams.AddMetadata("prompt_count", strconv.Itoa(req.PromptCount))
	sessionParams.AddMetadata("plan_type", models.PlanTypeBonus)

	sess, err := c.api.CheckoutSessions.New(sessionParams)
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

// ListActiveSubscriptions returns the ids of the customer's active
// subscriptions.
func (c *Client) ListActiveSubscriptions(ctx context.Context, customerID string) ([]string, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx

	var ids []string
	iter := c.api.Subscriptions.List(params)
	for iter.Next() {
		ids = append(ids, iter.Subscription().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// CancelSubscription cancels one subscription immediately.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	_, err := c.api.Subscriptions.Cancel(subscriptionID, params)
	return err
}
