package executive_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/shawkridge/athena-sub007/internal/executive"
)

// TestSwitchCostBoundedProperty verifies spec §8's quantified invariant: for
// all task switches s, 5 <= s.cost_ms <= 50, regardless of the priority
// delta between the goals being switched between.
func TestSwitchCostBoundedProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("switch cost is always in [5, 50]", prop.ForAll(
		func(from, to int) bool {
			cost := executive.SwitchCost(from, to)
			return cost >= 5.0 && cost <= 50.0
		},
		gen.IntRange(1, 10),
		gen.IntRange(1, 10),
	))

	properties.Property("zero priority delta costs exactly the floor", prop.ForAll(
		func(p int) bool {
			return executive.SwitchCost(p, p) == 5.0
		},
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}
