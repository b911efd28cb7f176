// Package loyalty implements the pure parts of the loyalty program: tier
// classification, tier benefits and order pricing with points redemption.
package loyalty

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Tier is a discrete reward level derived from cumulative spend.
type Tier uint8

const (
	Bronze Tier = iota
	Silver
	Gold
	Platinum
)

var tierNames = [...]string{
	Bronze:   "bronze",
	Silver:   "silver",
	Gold:     "gold",
	Platinum: "platinum",
}

// Tiers lists every tier from lowest to highest.
var Tiers = []Tier{Bronze, Silver, Gold, Platinum}

// Inclusive lower bounds of cumulative spend per tier.
var (
	silverThreshold   = decimal.NewFromInt(10_000)
	goldThreshold     = decimal.NewFromInt(25_000)
	platinumThreshold = decimal.NewFromInt(50_000)
)

func (t Tier) String() string {
	if t.Valid() {
		return tierNames[t]
	}
	return "unknown"
}

// Valid reports whether t is one of the declared tiers.
func (t Tier) Valid() bool {
	return int(t) < len(tierNames)
}

// ParseTier converts the stored name of a tier back into a Tier.
func ParseTier(s string) (Tier, error) {
	for t, name := range tierNames {
		if name == s {
			return Tier(t), nil
		}
	}
	return Bronze, errors.Errorf("unknown loyalty tier %q", s)
}

// Classify maps cumulative spend to a tier. Boundary values belong to the
// higher tier.
func Classify(spend decimal.Decimal) Tier {
	switch {
	case spend.GreaterThanOrEqual(platinumThreshold):
		return Platinum
	case spend.GreaterThanOrEqual(goldThreshold):
		return Gold
	case spend.GreaterThanOrEqual(silverThreshold):
		return Silver
	default:
		return Bronze
	}
}
