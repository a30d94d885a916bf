package services

import (
	"context"
	"time"

	"workflowgate/internal/entitlement"
	"workflowgate/internal/generator"
	"workflowgate/internal/models"
	"workflowgate/internal/payments"
)

// fakeStore records every write so tests can assert on exactly what was
// persisted. GetUsage serves the live struct, so ResetCycleUsage and
// DebitPool are visible to subsequent reads the way the real store is.
type fakeStore struct {
	user    models.User
	userErr error
	usage   models.Usage

	usageErr      error
	debitErr      error
	debitDenied   bool
	resetErr      error
	stampErr      error
	windowErr     error
	bonusErr      error
	upsertErr     error
	limitsErr     error
	tierErr       error
	downgradeErr  error
	customerErr   error
	customerIndex map[string]string

	debits       []string
	logs         []models.GenerationLog
	resetCalls   int
	stampedDates []time.Time
	windowCount  int
	bonusAdded   int
	upserts      []entitlement.SubscriptionUpdate
	limitCalls   [][2]int
	tierSets     []tierSet
	downgrades   int
	syncedUsers  []string
}

type tierSet struct {
	userID string
	tier   string
	limit  int
}

func (f *fakeStore) GetUser(ctx context.Context, id string) (models.User, error) {
	if f.userErr != nil {
		return models.User{}, f.userErr
	}
	return f.user, nil
}

func (f *fakeStore) SyncUser(ctx context.Context, id, email string, firstName, lastName, imageURL *string, freeLimit int) (models.User, error) {
	f.syncedUsers = append(f.syncedUsers, id)
	return f.user, nil
}

func (f *fakeStore) GetUsage(ctx context.Context, userID string) (models.Usage, error) {
	if f.usageErr != nil {
		return models.Usage{}, f.usageErr
	}
	return f.usage, nil
}

func (f *fakeStore) ResetCycleUsage(ctx context.Context, userID string) error {
	if f.resetErr != nil {
		return f.resetErr
	}
	f.resetCalls++
	f.usage.WorkflowUsed = 0
	f.usage.PremiumUsed = 0
	f.usage.BonusUsed = 0
	return nil
}

func (f *fakeStore) SetLastResetDate(ctx context.Context, userID string, date time.Time) error {
	if f.stampErr != nil {
		return f.stampErr
	}
	f.stampedDates = append(f.stampedDates, date)
	return nil
}

func (f *fakeStore) DebitPool(ctx context.Context, userID, pool string) (bool, error) {
	if f.debitErr != nil {
		return false, f.debitErr
	}
	if f.debitDenied {
		return false, nil
	}
	f.debits = append(f.debits, pool)
	switch pool {
	case models.PoolWorkflow:
		f.usage.WorkflowUsed++
	case models.PoolPremium:
		f.usage.PremiumUsed++
	case models.PoolBonus:
		f.usage.BonusUsed++
	}
	return true, nil
}

func (f *fakeStore) AppendGenerationLog(ctx context.Context, entry models.GenerationLog) error {
	f.logs = append(f.logs, entry)
	return nil
}

func (f *fakeStore) AddBonusLimit(ctx context.Context, userID string, count int) error {
	if f.bonusErr != nil {
		return f.bonusErr
	}
	f.bonusAdded += count
	f.usage.BonusLimit += count
	return nil
}

func (f *fakeStore) UpsertSubscribedUser(ctx context.Context, up entitlement.SubscriptionUpdate) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, up)
	return nil
}

func (f *fakeStore) ApplySubscriptionLimits(ctx context.Context, userID string, workflowLimit, premiumLimit int) error {
	if f.limitsErr != nil {
		return f.limitsErr
	}
	f.limitCalls = append(f.limitCalls, [2]int{workflowLimit, premiumLimit})
	return nil
}

func (f *fakeStore) FindUserIDByCustomer(ctx context.Context, customerID string) (string, error) {
	if f.customerErr != nil {
		return "", f.customerErr
	}
	id, ok := f.customerIndex[customerID]
	if !ok {
		return "", entitlement.ErrNotFound
	}
	return id, nil
}

func (f *fakeStore) SetTierAndWorkflowLimit(ctx context.Context, userID, tier string, workflowLimit int) error {
	if f.tierErr != nil {
		return f.tierErr
	}
	f.tierSets = append(f.tierSets, tierSet{userID: userID, tier: tier, limit: workflowLimit})
	return nil
}

func (f *fakeStore) DowngradeToFree(ctx context.Context, userID string, freeLimit int) error {
	if f.downgradeErr != nil {
		return f.downgradeErr
	}
	f.downgrades++
	return nil
}

func (f *fakeStore) IncrementRequestWindow(ctx context.Context, userID string, windowStart time.Time) (int, error) {
	if f.windowErr != nil {
		return 0, f.windowErr
	}
	f.windowCount++
	return f.windowCount, nil
}

type fakeGenerator struct {
	result       generator.Result
	err          error
	unconfigured bool
	requests     []generator.Request
}

func (f *fakeGenerator) IsConfigured() bool { return !f.unconfigured }

func (f *fakeGenerator) Generate(ctx context.Context, req generator.Request) (generator.Result, error) {
	if f.unconfigured {
		return generator.Result{}, generator.ErrNotConfigured
	}
	f.requests = append(f.requests, req)
	if f.err != nil {
		return generator.Result{}, f.err
	}
	return f.result, nil
}

type fakePayments struct {
	sessionID     string
	sessionErr    error
	subscriptions []string
	listErr       error
	cancelErr     error
	cancelled     []string
}

func (f *fakePayments) IsConfigured() bool { return true }

func (f *fakePayments) CreateFixedSession(ctx context.Context, req payments.FixedPlanCheckout) (string, error) {
	return f.sessionID, f.sessionErr
}

func (f *fakePayments) CreateCustomSession(ctx context.Context, req payments.CustomPlanCheckout) (string, error) {
	return f.sessionID, f.sessionErr
}

func (f *fakePayments) CreateBonusSession(ctx context.Context, req payments.BonusCheckout) (string, error) {
	return f.sessionID, f.sessionErr
}

func (f *fakePayments) ListActiveSubscriptions(ctx context.Context, customerID string) ([]string, error) {
	return f.subscriptions, f.listErr
}

func (f *fakePayments) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, subscriptionID)
	return nil
}
