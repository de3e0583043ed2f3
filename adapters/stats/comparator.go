package stats

import (
	"math"
	"sort"

	"sleepband/domain/core"
	"sleepband/domain/state"
	domstats "sleepband/domain/stats"
	"sleepband/internal/logging"
)

// Row is one epoch's power in one band, joined with its state labels.
// The comparator is the only consumer of the pooled multi-session table.
type Row struct {
	SessionID  core.SessionID
	EpochIndex int
	BandName   string
	Labels     []state.Label
	Value      float64
}

// Params configures one comparator invocation. There is no process-wide
// state: each invocation receives its own seed and emits its own audit
// records.
type Params struct {
	Tests         []domstats.TestName
	NPermutations int
	Seed          int64
	// MinSamples gates each test on min(n_a, n_b); tests absent from the
	// map use DefaultMinSamples.
	MinSamples map[domstats.TestName]int
	// Bands pins the result grid to the configured band list. A band with
	// no usable rows (for instance one entirely above Nyquist, whose dB
	// power is NaN everywhere) still appears in every result as a skipped
	// entry instead of vanishing from the table. Bands observed in the
	// rows but absent from the list are kept as well.
	Bands []string
}

// DefaultMinSamples applies when a test has no explicit gate configured.
const DefaultMinSamples = 5

func (p Params) minFor(t domstats.TestName) int {
	if n, ok := p.MinSamples[t]; ok && n > 0 {
		return n
	}
	return DefaultMinSamples
}

// Comparator runs the configured test battery over every
// (band, state-pair) combination of a pooled band-power table.
type Comparator struct {
	params Params
	log    *logging.Logger
}

func NewComparator(params Params, log *logging.Logger) (*Comparator, error) {
	if len(params.Tests) == 0 {
		return nil, core.NewConfigurationError("no tests enabled")
	}
	if params.NPermutations <= 0 {
		params.NPermutations = 1000
	}
	if log == nil {
		log = logging.DefaultLogger
	}
	return &Comparator{params: params, log: log}, nil
}

// Output bundles every test result with the audit records of the
// permutation-based ones.
type Output struct {
	Results []domstats.TestResult
	Audits  []domstats.PermutationRecord
}

// Run executes every enabled test for every (band, state-pair). The rows
// are sorted into a stable order first so seeded permutation draws are
// reproducible regardless of how upstream segmentation was parallelized.
// Test-level failures are recorded inline on their result; only an empty
// pair list is fatal.
func (c *Comparator) Run(rows []Row, pairs []domstats.StatePair) (*Output, error) {
	if len(pairs) == 0 {
		return nil, core.NewConfigurationError("no state-pairs resolved")
	}

	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.SessionID != b.SessionID {
			return a.SessionID < b.SessionID
		}
		if a.EpochIndex != b.EpochIndex {
			return a.EpochIndex < b.EpochIndex
		}
		return a.BandName < b.BandName
	})

	bands := bandGrid(c.params.Bands, sorted)
	out := &Output{}
	for _, bandName := range bands {
		for _, pair := range pairs {
			a := selectSample(sorted, bandName, pair.StateA)
			b := selectSample(sorted, bandName, pair.StateB)
			for _, test := range c.params.Tests {
				result, audit := c.runTest(test, bandName, pair, a, b)
				out.Results = append(out.Results, result)
				if audit != nil {
					out.Audits = append(out.Audits, *audit)
				}
			}
		}
	}
	return out, nil
}

// bandGrid merges the configured band list with the bands actually
// observed in the rows, deduplicated and sorted.
func bandGrid(configured []string, rows []Row) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, name := range configured {
		add(name)
	}
	for _, r := range rows {
		add(r.BandName)
	}
	sort.Strings(names)
	return names
}

func selectSample(rows []Row, bandName string, label state.Label) []domstats.Observation {
	var sample []domstats.Observation
	for _, r := range rows {
		if r.BandName != bandName {
			continue
		}
		for _, l := range r.Labels {
			if l == label {
				sample = append(sample, domstats.Observation{
					SessionID:  r.SessionID,
					EpochIndex: r.EpochIndex,
					Value:      r.Value,
				})
				break
			}
		}
	}
	return sample
}

// runTest executes one test for one (band, state-pair), applying the
// minimum-sample gate first. A failed gate for one test never blocks the
// others.
func (c *Comparator) runTest(test domstats.TestName, bandName string, pair domstats.StatePair, a, b []domstats.Observation) (domstats.TestResult, *domstats.PermutationRecord) {
	result := domstats.TestResult{
		Test:      test,
		BandName:  bandName,
		Pair:      pair,
		NA:        len(a),
		NB:        len(b),
		Statistic: math.NaN(),
		PValue:    math.NaN(),
		Blocks:    domstats.BlockNone,
	}
	if test == domstats.TestBlockedPermutation {
		result.Blocks = domstats.BlockSession
	}

	minN := len(a)
	if len(b) < minN {
		minN = len(b)
	}
	if minN < c.params.minFor(test) {
		result.Skipped = domstats.SkipInsufficientSamples
		c.log.Debug("skipping %s for %s %s: n_a=%d n_b=%d below minimum %d",
			test, bandName, pair.Key(), len(a), len(b), c.params.minFor(test))
		return result, nil
	}

	switch test {
	case domstats.TestTTest:
		result.Statistic, result.PValue, result.EffectSize = welchTTest(values(a), values(b))

	case domstats.TestWilcoxon:
		if pair.Paired {
			if len(a) != len(b) {
				result.Skipped = domstats.SkipAlignment
				c.log.Warn("wilcoxon skipped for %s: %v", bandName,
					core.NewAlignmentError(string(pair.StateA), string(pair.StateB), len(a), len(b)))
				return result, nil
			}
			result.Statistic, result.PValue, _ = signedRank(values(a), values(b))
		} else {
			result.Statistic, result.PValue, _ = rankSum(values(a), values(b))
		}

	case domstats.TestPermutation:
		rng, derived := stream(c.params.Seed, test, bandName, pair)
		result.Statistic, result.PValue = permuteUnblocked(a, b, c.params.NPermutations, rng)
		return result, &domstats.PermutationRecord{
			Test:            test,
			BandName:        bandName,
			Pair:            pair,
			BaseSeed:        c.params.Seed,
			DerivedSeed:     derived,
			NPermutations:   c.params.NPermutations,
			BlockAssignment: blockAssignment(a, b, pair, domstats.BlockNone),
		}

	case domstats.TestBlockedPermutation:
		if !shuffleableBlocks(a, b) {
			result.Skipped = domstats.SkipDegenerate
			c.log.Warn("within-block permutation skipped for %s %s: no session contains both states",
				bandName, pair.Key())
			return result, nil
		}
		rng, derived := stream(c.params.Seed, test, bandName, pair)
		result.Statistic, result.PValue = permuteWithinBlock(a, b, c.params.NPermutations, rng)
		return result, &domstats.PermutationRecord{
			Test:            test,
			BandName:        bandName,
			Pair:            pair,
			BaseSeed:        c.params.Seed,
			DerivedSeed:     derived,
			NPermutations:   c.params.NPermutations,
			BlockAssignment: blockAssignment(a, b, pair, domstats.BlockSession),
		}
	}
	return result, nil
}

// ResolvePairs derives the state-pairs to compare from the configured
// mode and the labels actually present in the table, then applies the
// explicit include override and exclude filter. Unknown basic states are
// never paired automatically; they must be asked for explicitly.
func ResolvePairs(rows []Row, basicOnly, combinedOnly bool, include, exclude []domstats.StatePair) []domstats.StatePair {
	if len(include) > 0 {
		return filterPairs(include, exclude)
	}

	present := make(map[state.Label]bool)
	for _, r := range rows {
		for _, l := range r.Labels {
			present[l] = true
		}
	}

	var pairs []domstats.StatePair
	if !combinedOnly && present[state.Label(state.State0)] && present[state.Label(state.State1)] {
		pairs = append(pairs, domstats.StatePair{
			StateA: state.Label(state.State0),
			StateB: state.Label(state.State1),
		})
	}
	if !basicOnly {
		for _, stage := range []state.CoarseStage{state.StageNREM, state.StageREM, state.StageWake} {
			a := state.Label(state.NewCombined(stage, state.State0))
			b := state.Label(state.NewCombined(stage, state.State1))
			if present[a] && present[b] {
				pairs = append(pairs, domstats.StatePair{StateA: a, StateB: b})
			}
		}
	}
	return filterPairs(pairs, exclude)
}

func filterPairs(pairs, exclude []domstats.StatePair) []domstats.StatePair {
	if len(exclude) == 0 {
		return pairs
	}
	excluded := func(p domstats.StatePair) bool {
		for _, e := range exclude {
			if (e.StateA == p.StateA && e.StateB == p.StateB) ||
				(e.StateA == p.StateB && e.StateB == p.StateA) {
				return true
			}
		}
		return false
	}
	var kept []domstats.StatePair
	for _, p := range pairs {
		if !excluded(p) {
			kept = append(kept, p)
		}
	}
	return kept
}
