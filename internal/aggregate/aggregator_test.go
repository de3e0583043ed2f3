package aggregate

import (
	"math"
	"sort"
	"testing"

	statsadapter "sleepband/adapters/stats"
	"sleepband/domain/band"
	"sleepband/domain/core"
	"sleepband/domain/state"
	domstats "sleepband/domain/stats"
)

func record(session string, epoch int, bandName string, power float64) band.PowerRecord {
	db := math.NaN()
	if power > 0 {
		db = 10 * math.Log10(power)
	}
	return band.PowerRecord{
		SessionID:   core.SessionID(session),
		ChannelID:   core.ChannelID("ch0"),
		EpochIndex:  epoch,
		BandName:    bandName,
		PowerLinear: power,
		PowerDB:     db,
		Coverage:    band.CoverageFull,
	}
}

// TestBuildBandPowerOrdering tests the stable band-power row order
func TestBuildBandPowerOrdering(t *testing.T) {
	records := []band.PowerRecord{
		record("s2", 0, "delta", 1),
		record("s1", 1, "alpha", 2),
		record("s1", 0, "delta", 3),
		record("s1", 0, "alpha", 4),
	}
	tables := Build(records, nil, nil)

	if len(tables.BandPower) != 4 {
		t.Fatalf("Expected 4 rows, got %d", len(tables.BandPower))
	}
	got := make([]string, len(tables.BandPower))
	for i, r := range tables.BandPower {
		got[i] = r.SessionID + "/" + r.BandName
	}
	want := []string{"s1/alpha", "s1/delta", "s1/alpha", "s2/delta"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Row %d = %s, want %s (full order %v)", i, got[i], want[i], got)
		}
	}
	if tables.BandPower[0].EpochIndex != 0 || tables.BandPower[2].EpochIndex != 1 {
		t.Error("Rows should sort by session, then epoch, then channel, then band")
	}
}

// TestBuildStatsOrdering tests (band, pair, fixed test order) sorting
func TestBuildStatsOrdering(t *testing.T) {
	pair := domstats.StatePair{StateA: "state0", StateB: "state1"}
	out := &statsadapter.Output{
		Results: []domstats.TestResult{
			{Test: domstats.TestBlockedPermutation, BandName: "delta", Pair: pair},
			{Test: domstats.TestTTest, BandName: "delta", Pair: pair},
			{Test: domstats.TestWilcoxon, BandName: "alpha", Pair: pair},
			{Test: domstats.TestTTest, BandName: "alpha", Pair: pair},
		},
	}
	tables := Build(nil, nil, out)

	if len(tables.Stats) != 4 {
		t.Fatalf("Expected 4 stat rows, got %d", len(tables.Stats))
	}
	if tables.Stats[0].BandName != "alpha" || tables.Stats[0].Test != domstats.TestTTest {
		t.Errorf("First row should be alpha ttest, got %s %s", tables.Stats[0].BandName, tables.Stats[0].Test)
	}
	if tables.Stats[1].Test != domstats.TestWilcoxon {
		t.Errorf("Second row should be alpha wilcoxon, got %s", tables.Stats[1].Test)
	}
	if tables.Stats[3].Test != domstats.TestBlockedPermutation {
		t.Errorf("Last row should be delta blocked permutation, got %s", tables.Stats[3].Test)
	}
}

// TestBuildSummary tests descriptive statistics per (band, label) group
func TestBuildSummary(t *testing.T) {
	mkRow := func(v float64, labels ...state.Label) statsadapter.Row {
		return statsadapter.Row{BandName: "alpha", Labels: labels, Value: v}
	}
	rows := []statsadapter.Row{
		mkRow(1, "state0"),
		mkRow(2, "state0"),
		mkRow(3, "state0"),
		mkRow(10, "state1"),
		mkRow(20, "state1"),
	}
	tables := Build(nil, rows, nil)

	if len(tables.Summary) != 2 {
		t.Fatalf("Expected 2 summary rows, got %d", len(tables.Summary))
	}
	s0 := tables.Summary[0]
	if s0.Label != "state0" || s0.N != 3 {
		t.Errorf("First group should be state0 with n=3, got %s n=%d", s0.Label, s0.N)
	}
	if math.Abs(s0.Mean-2) > 1e-12 || math.Abs(s0.Median-2) > 1e-12 {
		t.Errorf("state0 mean/median = %g/%g, want 2/2", s0.Mean, s0.Median)
	}
	if math.Abs(s0.StdDev-1) > 1e-12 {
		t.Errorf("state0 sample stddev = %g, want 1", s0.StdDev)
	}
	s1 := tables.Summary[1]
	if s1.Label != "state1" || math.Abs(s1.Mean-15) > 1e-12 {
		t.Errorf("state1 mean = %g, want 15", s1.Mean)
	}
}

// TestBuildSummaryMultiLabel tests that an epoch counts once per label it carries
func TestBuildSummaryMultiLabel(t *testing.T) {
	rows := []statsadapter.Row{
		{BandName: "alpha", Labels: []state.Label{"state0", "NREM_state0"}, Value: 4},
		{BandName: "alpha", Labels: []state.Label{"state0"}, Value: 6},
	}
	tables := Build(nil, rows, nil)

	byLabel := make(map[string]SummaryRow)
	for _, s := range tables.Summary {
		byLabel[s.Label] = s
	}
	if byLabel["state0"].N != 2 {
		t.Errorf("state0 n = %d, want 2", byLabel["state0"].N)
	}
	if byLabel["NREM_state0"].N != 1 {
		t.Errorf("NREM_state0 n = %d, want 1", byLabel["NREM_state0"].N)
	}
}

// TestPSDAccumulator tests per-label spectrum averaging
func TestPSDAccumulator(t *testing.T) {
	acc := NewPSDAccumulator()
	spec1 := band.Spectrum{Freqs: []float64{0, 1, 2}, PSD: []float64{1, 2, 3}, FreqResolution: 1}
	spec2 := band.Spectrum{Freqs: []float64{0, 1, 2}, PSD: []float64{3, 4, 5}, FreqResolution: 1}

	acc.Add([]state.Label{"state0"}, spec1)
	acc.Add([]state.Label{"state0"}, spec2)
	acc.Add([]state.Label{"state1"}, spec1)

	rows := acc.Rows()
	if len(rows) != 6 {
		t.Fatalf("Expected 6 rows (2 labels x 3 bins), got %d", len(rows))
	}
	if !sort.SliceIsSorted(rows, func(i, j int) bool {
		if rows[i].Label != rows[j].Label {
			return rows[i].Label < rows[j].Label
		}
		return rows[i].FreqHz < rows[j].FreqHz
	}) {
		t.Error("Rows should be sorted by label then frequency")
	}
	// state0 at 1 Hz: mean of 2 and 4.
	if rows[1].Label != "state0" || rows[1].PSD != 3 {
		t.Errorf("state0 @1Hz = %g, want 3", rows[1].PSD)
	}
	// state1 saw only spec1.
	if rows[5].Label != "state1" || rows[5].PSD != 3 {
		t.Errorf("state1 @2Hz = %g, want 3", rows[5].PSD)
	}
}

// TestPSDAccumulatorMismatchedGrids tests that incompatible bin counts are dropped
func TestPSDAccumulatorMismatchedGrids(t *testing.T) {
	acc := NewPSDAccumulator()
	acc.Add([]state.Label{"state0"}, band.Spectrum{Freqs: []float64{0, 1}, PSD: []float64{2, 2}})
	acc.Add([]state.Label{"state0"}, band.Spectrum{Freqs: []float64{0, 1, 2}, PSD: []float64{9, 9, 9}})

	rows := acc.Rows()
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows from the first grid only, got %d", len(rows))
	}
	if rows[0].PSD != 2 {
		t.Errorf("Mismatched spectrum should not contaminate the average, got %g", rows[0].PSD)
	}
}
