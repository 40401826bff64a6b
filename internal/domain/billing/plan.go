package billing

import "strings"

// UnlimitedMinutes marks a plan without a minute allowance
const UnlimitedMinutes int64 = -1

// Plan is a catalogue entry a subscription resolves to
type Plan struct {
	Slug           string `json:"slug"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	MinutesAllowed int64  `json:"minutesAllowed"`
	PriceCents     int64  `json:"priceCents"`
	StripePriceID  string `json:"stripePriceId,omitempty"`
}

// IsUnlimited returns true when the plan has no minute allowance
func (p Plan) IsUnlimited() bool {
	return p.MinutesAllowed == UnlimitedMinutes
}

// DefaultPlans is the built-in catalogue
var DefaultPlans = []Plan{
	{
		Slug:           "starter",
		Name:           "Starter",
		Description:    "For small businesses getting started with AI phone agents",
		MinutesAllowed: 100,
		PriceCents:     4900,
	},
	{
		Slug:           "professional",
		Name:           "Professional",
		Description:    "For growing teams with steady call volume",
		MinutesAllowed: 500,
		PriceCents:     9900,
	},
	{
		Slug:           "enterprise",
		Name:           "Enterprise",
		Description:    "Custom volume and support",
		MinutesAllowed: UnlimitedMinutes,
	},
}

// PlanCatalog resolves subscriptions to plans
type PlanCatalog struct {
	plans []Plan
}

// NewPlanCatalog creates a catalog. priceIDs maps a plan slug to its Stripe price id.
func NewPlanCatalog(plans []Plan, priceIDs map[string]string) *PlanCatalog {
	out := make([]Plan, len(plans))
	copy(out, plans)
	for i := range out {
		if id, ok := priceIDs[out[i].Slug]; ok {
			out[i].StripePriceID = id
		}
	}
	return &PlanCatalog{plans: out}
}

// Plans returns a copy of all plans
func (c *PlanCatalog) Plans() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// ByName finds a plan by slug or display name, case-insensitively
func (c *PlanCatalog) ByName(name string) (Plan, bool) {
	name = strings.TrimSpace(name)
	for _, p := range c.plans {
		if strings.EqualFold(p.Slug, name) || strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Plan{}, false
}

// ByPriceID finds a plan by its Stripe price id
func (c *PlanCatalog) ByPriceID(priceID string) (Plan, bool) {
	if priceID == "" {
		return Plan{}, false
	}
	for _, p := range c.plans {
		if p.StripePriceID == priceID {
			return p, true
		}
	}
	return Plan{}, false
}

// Resolve prefers the subscription name and falls back to the price id
func (c *PlanCatalog) Resolve(sub *Subscription) (Plan, bool) {
	if sub == nil {
		return Plan{}, false
	}
	if sub.SubscriptionName != nil {
		if p, ok := c.ByName(*sub.SubscriptionName); ok {
			return p, true
		}
	}
	if sub.StripePriceID != nil {
		return c.ByPriceID(*sub.StripePriceID)
	}
	return Plan{}, false
}
