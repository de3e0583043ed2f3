package stats

import (
	"math/rand"

	"sleepband/domain/core"
	domstats "sleepband/domain/stats"
)

// stream creates the deterministic random source for one permutation
// test on one (band, state-pair). Every stream's seed derives from the
// configured base seed and the test identity alone, so results are
// independent of band/pair execution order and pairs can be permuted in
// parallel without sharing state.
func stream(baseSeed int64, test domstats.TestName, bandName string, pair domstats.StatePair) (*rand.Rand, int64) {
	derived := core.DeriveSeed(baseSeed, string(test), bandName, pair.Key())
	return rand.New(rand.NewSource(derived)), derived
}
