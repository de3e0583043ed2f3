package aggregate

import (
	"sort"

	"github.com/montanaflynn/stats"

	statsadapter "sleepband/adapters/stats"
	"sleepband/domain/band"
	"sleepband/domain/state"
	domstats "sleepband/domain/stats"
)

// Tables is the final merged output of one pipeline run: the band-power
// table (linear and dB in one row), the statistical results table, the
// per-(band, state) descriptive summary, and the permutation audit
// records. Row and column order is stable across runs.
type Tables struct {
	BandPower []BandPowerRow
	Stats     []StatRow
	Summary   []SummaryRow
	Audits    []domstats.PermutationRecord
	// AvgPSD holds per-state averaged spectra; empty unless spectrum
	// retention was enabled.
	AvgPSD []PSDRow
}

// BandPowerRow is one (session, epoch, channel, band) measurement.
type BandPowerRow struct {
	SessionID   string
	EpochIndex  int
	ChannelID   string
	BandName    string
	PowerLinear float64
	PowerDB     float64
	Coverage    band.Coverage
}

// StatRow flattens one TestResult for tabular output.
type StatRow struct {
	BandName   string
	StateA     string
	StateB     string
	Test       domstats.TestName
	NA         int
	NB         int
	Statistic  float64
	PValue     float64
	EffectSize float64
	Blocks     domstats.BlockStructure
	Skipped    domstats.SkipReason
}

// SummaryRow carries descriptive statistics of linear power for one
// (band, state label) group.
type SummaryRow struct {
	BandName string
	Label    string
	N        int
	Mean     float64
	StdDev   float64
	Median   float64
	Q25      float64
	Q75      float64
}

// PSDRow is one frequency bin of a state-averaged spectrum.
type PSDRow struct {
	Label  string
	FreqHz float64
	PSD    float64
}

// PSDAccumulator averages epoch spectra per state label. Bin layouts
// must match across epochs, which holds whenever the sample rate and
// Welch segment length are constant.
type PSDAccumulator struct {
	freqs map[string][]float64
	sums  map[string][]float64
	count map[string]int
}

func NewPSDAccumulator() *PSDAccumulator {
	return &PSDAccumulator{
		freqs: make(map[string][]float64),
		sums:  make(map[string][]float64),
		count: make(map[string]int),
	}
}

// Add folds one epoch's spectrum into every label the epoch carries.
// Spectra whose bin count differs from the label's first epoch are
// dropped; mixing segment lengths would average incompatible grids.
func (a *PSDAccumulator) Add(labels []state.Label, spec band.Spectrum) {
	for _, l := range labels {
		key := string(l)
		sum, ok := a.sums[key]
		if !ok {
			sum = make([]float64, len(spec.PSD))
			a.sums[key] = sum
			a.freqs[key] = append([]float64(nil), spec.Freqs...)
		}
		if len(spec.PSD) != len(sum) {
			continue
		}
		for i, v := range spec.PSD {
			sum[i] += v
		}
		a.count[key]++
	}
}

// Rows renders the averaged spectra in stable (label, frequency) order.
func (a *PSDAccumulator) Rows() []PSDRow {
	labels := make([]string, 0, len(a.sums))
	for l := range a.sums {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	var rows []PSDRow
	for _, l := range labels {
		n := a.count[l]
		if n == 0 {
			continue
		}
		for i, f := range a.freqs[l] {
			rows = append(rows, PSDRow{Label: l, FreqHz: f, PSD: a.sums[l][i] / float64(n)})
		}
	}
	return rows
}

// Build merges records and comparator output into the final tables.
// Every configured (band x state-pair x enabled test) combination
// appears exactly once in Stats, including skipped results.
func Build(records []band.PowerRecord, labeled []statsadapter.Row, out *statsadapter.Output) *Tables {
	t := &Tables{}

	t.BandPower = make([]BandPowerRow, 0, len(records))
	for _, r := range records {
		t.BandPower = append(t.BandPower, BandPowerRow{
			SessionID:   r.SessionID.String(),
			EpochIndex:  r.EpochIndex,
			ChannelID:   r.ChannelID.String(),
			BandName:    r.BandName,
			PowerLinear: r.PowerLinear,
			PowerDB:     r.PowerDB,
			Coverage:    r.Coverage,
		})
	}
	sort.SliceStable(t.BandPower, func(i, j int) bool {
		a, b := t.BandPower[i], t.BandPower[j]
		if a.SessionID != b.SessionID {
			return a.SessionID < b.SessionID
		}
		if a.EpochIndex != b.EpochIndex {
			return a.EpochIndex < b.EpochIndex
		}
		if a.ChannelID != b.ChannelID {
			return a.ChannelID < b.ChannelID
		}
		return a.BandName < b.BandName
	})

	if out != nil {
		t.Stats = make([]StatRow, 0, len(out.Results))
		for _, r := range out.Results {
			t.Stats = append(t.Stats, StatRow{
				BandName:   r.BandName,
				StateA:     string(r.Pair.StateA),
				StateB:     string(r.Pair.StateB),
				Test:       r.Test,
				NA:         r.NA,
				NB:         r.NB,
				Statistic:  r.Statistic,
				PValue:     r.PValue,
				EffectSize: r.EffectSize,
				Blocks:     r.Blocks,
				Skipped:    r.Skipped,
			})
		}
		sort.SliceStable(t.Stats, func(i, j int) bool {
			a, b := t.Stats[i], t.Stats[j]
			if a.BandName != b.BandName {
				return a.BandName < b.BandName
			}
			if a.StateA != b.StateA {
				return a.StateA < b.StateA
			}
			if a.StateB != b.StateB {
				return a.StateB < b.StateB
			}
			return testOrder(a.Test) < testOrder(b.Test)
		})
		t.Audits = out.Audits
	}

	t.Summary = buildSummary(labeled)
	return t
}

func testOrder(t domstats.TestName) int {
	for i, name := range domstats.AllTests {
		if name == t {
			return i
		}
	}
	return len(domstats.AllTests)
}

func buildSummary(labeled []statsadapter.Row) []SummaryRow {
	type key struct {
		band  string
		label state.Label
	}
	groups := make(map[key][]float64)
	for _, r := range labeled {
		for _, l := range r.Labels {
			k := key{band: r.BandName, label: l}
			groups[k] = append(groups[k], r.Value)
		}
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].band != keys[j].band {
			return keys[i].band < keys[j].band
		}
		return keys[i].label < keys[j].label
	})

	rows := make([]SummaryRow, 0, len(keys))
	for _, k := range keys {
		vals := groups[k]
		mean, _ := stats.Mean(vals)
		stdDev, _ := stats.StandardDeviationSample(vals)
		median, _ := stats.Median(vals)
		q25, _ := stats.Percentile(vals, 25)
		q75, _ := stats.Percentile(vals, 75)
		rows = append(rows, SummaryRow{
			BandName: k.band,
			Label:    string(k.label),
			N:        len(vals),
			Mean:     mean,
			StdDev:   stdDev,
			Median:   median,
			Q25:      q25,
			Q75:      q75,
		})
	}
	return rows
}
