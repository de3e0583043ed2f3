package stats

import (
	"fmt"

	"sleepband/domain/core"
	"sleepband/domain/state"
)

// TestName identifies one of the supported statistical tests.
type TestName string

const (
	TestTTest              TestName = "ttest"
	TestWilcoxon           TestName = "wilcoxon"
	TestPermutation        TestName = "unblocked_permutation"
	TestBlockedPermutation TestName = "within_block_permutation"
)

// AllTests in stable output order.
var AllTests = []TestName{TestTTest, TestWilcoxon, TestPermutation, TestBlockedPermutation}

// BlockStructure identifies which grouping a test respected when
// resampling. Parametric tests and the unblocked permutation ignore
// session structure ("none"); the within-block permutation confines
// shuffles to each session ("session").
type BlockStructure string

const (
	BlockNone    BlockStructure = "none"
	BlockSession BlockStructure = "session"
)

// StatePair names the two state labels a comparison contrasts. Paired is
// set for designs where the two samples are aligned one-to-one (e.g.
// before/after within the same session).
type StatePair struct {
	StateA state.Label `json:"state_a"`
	StateB state.Label `json:"state_b"`
	Paired bool        `json:"paired"`
}

func (p StatePair) Key() string {
	return fmt.Sprintf("%s_vs_%s", p.StateA, p.StateB)
}

// Observation is one epoch's band power tagged with the session it came
// from. The session tag is what within-block permutation preserves.
type Observation struct {
	SessionID  core.SessionID
	EpochIndex int
	Value      float64
}

// SkipReason explains why a test produced no statistic.
type SkipReason string

const (
	SkipInsufficientSamples SkipReason = "insufficient_samples"
	SkipAlignment           SkipReason = "alignment_error"
	SkipDegenerate          SkipReason = "degenerate_sample"
)

// TestResult is the output of one test applied to one (band, state-pair)
// comparison. Exactly one result exists per enabled test per pair per
// band, whether the test ran or was skipped. SkipReason and the
// statistic/p-value are mutually exclusive: a skipped result carries NaN
// for both numeric fields.
type TestResult struct {
	Test       TestName       `json:"test_name"`
	BandName   string         `json:"band_name"`
	Pair       StatePair      `json:"pair"`
	NA         int            `json:"n_a"`
	NB         int            `json:"n_b"`
	Statistic  float64        `json:"statistic"`
	PValue     float64        `json:"p_value"`
	EffectSize float64        `json:"effect_size,omitempty"`
	Blocks     BlockStructure `json:"block_structure"`
	Skipped    SkipReason     `json:"skipped_reason,omitempty"`
}

// Ran reports whether the test actually produced a statistic.
func (r TestResult) Ran() bool { return r.Skipped == "" }

// PermutationRecord is the audit trail for one permutation-based result.
// It pins down everything needed to reproduce the draws bit-for-bit: the
// derived seed, the permutation count, and the exact block each
// observation was shuffled within.
type PermutationRecord struct {
	Test          TestName  `json:"test_name"`
	BandName      string    `json:"band_name"`
	Pair          StatePair `json:"pair"`
	BaseSeed      int64     `json:"random_seed"`
	DerivedSeed   int64     `json:"derived_seed"`
	NPermutations int       `json:"n_permutations"`
	// BlockAssignment maps each observation (in pooled, stable order)
	// to the block it was permuted within. For the unblocked test every
	// observation maps to the single pooled block "all".
	BlockAssignment []BlockMember `json:"block_assignment"`
}

// BlockMember records one observation's block membership and original label.
type BlockMember struct {
	SessionID  core.SessionID `json:"session_id"`
	EpochIndex int            `json:"epoch_index"`
	Block      string         `json:"block"`
	Label      state.Label    `json:"label"`
}
