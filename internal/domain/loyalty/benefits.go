package loyalty

// Benefits describes the perks attached to a tier.
type Benefits struct {
	DiscountPercent int
	FreeShipping    bool
	PrioritySupport bool
	ExclusiveAccess bool
}

var benefits = map[Tier]Benefits{
	Bronze:   {DiscountPercent: 5},
	Silver:   {DiscountPercent: 10, FreeShipping: true},
	Gold:     {DiscountPercent: 15, FreeShipping: true, PrioritySupport: true},
	Platinum: {DiscountPercent: 20, FreeShipping: true, PrioritySupport: true, ExclusiveAccess: true},
}

// BenefitsOf returns the perks of t.
func BenefitsOf(t Tier) Benefits {
	return benefits[t]
}
