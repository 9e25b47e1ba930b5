package offchain

import (
	"iter"
	"math/rand/v2"

	"kittycore/pkg/domain"
	"kittycore/pkg/pow"
)

// pairDraws yields up to budget uniformly drawn id pairs from [0, population)
// together with the 1-based draw count.
func pairDraws(rng *rand.Rand, population uint32, budget int) iter.Seq2[int, [2]domain.KittyID] {
	return func(yield func(int, [2]domain.KittyID) bool) {
		if population == 0 {
			return
		}
		for n := 1; n <= budget; n++ {
			pair := [2]domain.KittyID{
				domain.KittyID(rng.Uint32N(population)),
				domain.KittyID(rng.Uint32N(population)),
			}
			if !yield(n, pair) {
				return
			}
		}
	}
}

// solutions yields (prefix << 32) + i for i in [0, budget).
func solutions(prefix uint32, budget int) iter.Seq[pow.Uint128] {
	return func(yield func(pow.Uint128) bool) {
		for i := 0; i < budget; i++ {
			if !yield(pow.SolutionAt(prefix, uint32(i))) {
				return
			}
		}
	}
}
