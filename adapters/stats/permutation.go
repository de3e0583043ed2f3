package stats

import (
	"math"
	"math/rand"
	"sort"

	"sleepband/domain/core"
	domstats "sleepband/domain/stats"
)

// diffOfMeans is the permutation statistic: mean(a) - mean(b).
func diffOfMeans(a, b []float64) float64 {
	return mean(a) - mean(b)
}

// permutationPValue applies the +1 corrected two-sided rule: the fraction
// of permuted statistics at least as extreme as the observed one, with
// numerator and denominator each incremented so p can never be zero. The
// smallest achievable p is 1/(nPerm+1).
func permutationPValue(observed float64, permuted []float64) float64 {
	extreme := 0
	absObs := math.Abs(observed)
	for _, p := range permuted {
		if math.Abs(p) >= absObs {
			extreme++
		}
	}
	return float64(extreme+1) / float64(len(permuted)+1)
}

// permuteUnblocked reassigns all pooled observations at random into two
// groups of the original sizes, nPerm times. It ignores session grouping
// entirely; the within-block variant is the statistically appropriate
// test when sessions differ systematically.
func permuteUnblocked(a, b []domstats.Observation, nPerm int, rng *rand.Rand) (observed, pValue float64) {
	valsA := values(a)
	valsB := values(b)
	observed = diffOfMeans(valsA, valsB)

	pooled := make([]float64, 0, len(valsA)+len(valsB))
	pooled = append(pooled, valsA...)
	pooled = append(pooled, valsB...)
	nA := len(valsA)

	permuted := make([]float64, nPerm)
	for draw := 0; draw < nPerm; draw++ {
		rng.Shuffle(len(pooled), func(i, j int) {
			pooled[i], pooled[j] = pooled[j], pooled[i]
		})
		sumA := 0.0
		sumB := 0.0
		for i, v := range pooled {
			if i < nA {
				sumA += v
			} else {
				sumB += v
			}
		}
		permuted[draw] = sumA/float64(nA) - sumB/float64(len(pooled)-nA)
	}
	return observed, permutationPValue(observed, permuted)
}

// sessionBlock is one session's pooled observations for a state-pair.
type sessionBlock struct {
	session core.SessionID
	values  []float64
	// countA values at the front of the (unshuffled) slice belong to
	// state A; the shuffle reassigns values across the boundary while
	// the per-session count of A vs B labels stays fixed.
	countA int
}

// buildBlocks groups both samples by session in stable sorted order.
func buildBlocks(a, b []domstats.Observation) []sessionBlock {
	bySession := make(map[core.SessionID]*sessionBlock)
	var order []core.SessionID
	get := func(s core.SessionID) *sessionBlock {
		blk, ok := bySession[s]
		if !ok {
			blk = &sessionBlock{session: s}
			bySession[s] = blk
			order = append(order, s)
		}
		return blk
	}
	for _, obs := range a {
		blk := get(obs.SessionID)
		blk.values = append(blk.values, obs.Value)
		blk.countA++
	}
	for _, obs := range b {
		get(obs.SessionID).values = append(bySession[obs.SessionID].values, obs.Value)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	blocks := make([]sessionBlock, 0, len(order))
	for _, s := range order {
		blocks = append(blocks, *bySession[s])
	}
	return blocks
}

// permuteWithinBlock runs the same statistic and draw count as the
// unblocked test but confines every label reassignment to a single
// session's own observations, preserving each session's count of state_a
// vs state_b labels. Session-level baseline effects therefore survive
// every draw.
func permuteWithinBlock(a, b []domstats.Observation, nPerm int, rng *rand.Rand) (observed, pValue float64) {
	observed = diffOfMeans(values(a), values(b))

	blocks := buildBlocks(a, b)
	nA := len(a)
	nB := len(b)

	permuted := make([]float64, nPerm)
	for draw := 0; draw < nPerm; draw++ {
		sumA := 0.0
		sumB := 0.0
		for bi := range blocks {
			blk := &blocks[bi]
			rng.Shuffle(len(blk.values), func(i, j int) {
				blk.values[i], blk.values[j] = blk.values[j], blk.values[i]
			})
			for i, v := range blk.values {
				if i < blk.countA {
					sumA += v
				} else {
					sumB += v
				}
			}
		}
		permuted[draw] = sumA/float64(nA) - sumB/float64(nB)
	}
	return observed, permutationPValue(observed, permuted)
}

// shuffleableBlocks reports whether at least one session block contains
// observations of both states. With none, every within-block draw
// reproduces the observed assignment and the test carries no information.
func shuffleableBlocks(a, b []domstats.Observation) bool {
	for _, blk := range buildBlocks(a, b) {
		if blk.countA > 0 && blk.countA < len(blk.values) {
			return true
		}
	}
	return false
}

func values(obs []domstats.Observation) []float64 {
	vals := make([]float64, len(obs))
	for i, o := range obs {
		vals[i] = o.Value
	}
	return vals
}

// blockAssignment records which block each observation was shuffled
// within, in pooled stable order, for the permutation audit record.
func blockAssignment(a, b []domstats.Observation, pair domstats.StatePair, blocks domstats.BlockStructure) []domstats.BlockMember {
	members := make([]domstats.BlockMember, 0, len(a)+len(b))
	for _, o := range a {
		members = append(members, member(o, pair, blocks, true))
	}
	for _, o := range b {
		members = append(members, member(o, pair, blocks, false))
	}
	return members
}

func member(o domstats.Observation, pair domstats.StatePair, blocks domstats.BlockStructure, isA bool) domstats.BlockMember {
	block := "all"
	if blocks == domstats.BlockSession {
		block = o.SessionID.String()
	}
	label := pair.StateB
	if isA {
		label = pair.StateA
	}
	return domstats.BlockMember{
		SessionID:  o.SessionID,
		EpochIndex: o.EpochIndex,
		Block:      block,
		Label:      label,
	}
}
