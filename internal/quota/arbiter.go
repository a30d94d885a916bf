// Package quota holds the pure entitlement decisions: which pool a
// generation debits, and when a billing cycle resets.
package quota

import "workflowgate/internal/models"

// Decision is the arbiter output. Pool is empty when Permitted is false.
type Decision struct {
	Permitted bool
	Pool      string
}

type rule struct {
	match func(tier string, u models.Usage) bool
	pool  string
}

// Ordered, first match wins. Premium users draw down their named allotment
// before bonus top-ups; non-premium users draw down the workflow allotment
// first. Bonus is always the pool of last resort. The order determines which
// counter is incremented and is user-visible in billing history.
var rules = []rule{
	{
		match: func(tier string, u models.Usage) bool {
			return tier == models.TierPremium && u.PremiumUsed < u.PremiumLimit
		},
		pool: models.PoolPremium,
	},
	{
		match: func(tier string, u models.Usage) bool {
			return tier == models.TierPremium && u.BonusUsed < u.BonusLimit
		},
		pool: models.PoolBonus,
	},
	{
		match: func(tier string, u models.Usage) bool {
			return tier != models.TierPremium && u.WorkflowUsed < u.WorkflowLimit
		},
		pool: models.PoolWorkflow,
	},
	{
		match: func(tier string, u models.Usage) bool {
			return tier != models.TierPremium && u.BonusUsed < u.BonusLimit
		},
		pool: models.PoolBonus,
	},
}

// Decide picks the pool for one generation, or denies.
func Decide(tier string, u models.Usage) Decision {
	for _, r := range rules {
		if r.match(tier, u) {
			return Decision{Permitted: true, Pool: r.pool}
		}
	}
	return Decision{}
}
