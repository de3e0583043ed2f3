package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// rankSum computes the Wilcoxon rank-sum (Mann-Whitney) test for two
// independent samples using the normal approximation with tie correction
// and continuity correction. Returns the standardized statistic and the
// two-sided p-value. A fully tied pooled sample is degenerate and
// reports z = 0, p = 1.
func rankSum(a, b []float64) (zStat, pValue float64, ok bool) {
	n1 := float64(len(a))
	n2 := float64(len(b))
	pooled := make([]float64, 0, len(a)+len(b))
	pooled = append(pooled, a...)
	pooled = append(pooled, b...)

	ranks, tieTerm := assignRanks(pooled)

	w := 0.0
	for i := range a {
		w += ranks[i]
	}

	n := n1 + n2
	muW := n1 * (n + 1) / 2
	sigmaW := math.Sqrt(n1 * n2 / 12 * ((n + 1) - tieTerm/(n*(n-1))))
	if sigmaW == 0 {
		return 0, 1, true
	}

	// Continuity correction toward the mean.
	d := w - muW
	switch {
	case d > 0.5:
		d -= 0.5
	case d < -0.5:
		d += 0.5
	default:
		d = 0
	}
	zStat = d / sigmaW
	norm := distuv.Normal{Mu: 0, Sigma: 1}
	pValue = 2 * (1 - norm.CDF(math.Abs(zStat)))
	if pValue > 1 {
		pValue = 1
	}
	return zStat, pValue, true
}

// signedRank computes the Wilcoxon signed-rank test for paired samples.
// Zero differences are dropped (the standard Wilcoxon treatment); ties
// among the remaining |differences| get averaged ranks with the usual
// variance correction. All-zero differences degenerate to z = 0, p = 1.
// The two slices must be the same length; the caller enforces alignment.
func signedRank(a, b []float64) (zStat, pValue float64, ok bool) {
	if len(a) != len(b) {
		return 0, 0, false
	}
	diffs := make([]float64, 0, len(a))
	for i := range a {
		d := a[i] - b[i]
		if d != 0 {
			diffs = append(diffs, d)
		}
	}
	n := float64(len(diffs))
	if n == 0 {
		return 0, 1, true
	}

	abs := make([]float64, len(diffs))
	for i, d := range diffs {
		abs[i] = math.Abs(d)
	}
	ranks, tieTerm := assignRanks(abs)

	wPlus := 0.0
	for i, d := range diffs {
		if d > 0 {
			wPlus += ranks[i]
		}
	}

	muW := n * (n + 1) / 4
	sigmaW := math.Sqrt(n*(n+1)*(2*n+1)/24 - tieTerm/48)
	if sigmaW == 0 {
		return 0, 1, true
	}

	d := wPlus - muW
	switch {
	case d > 0.5:
		d -= 0.5
	case d < -0.5:
		d += 0.5
	default:
		d = 0
	}
	zStat = d / sigmaW
	norm := distuv.Normal{Mu: 0, Sigma: 1}
	pValue = 2 * (1 - norm.CDF(math.Abs(zStat)))
	if pValue > 1 {
		pValue = 1
	}
	return zStat, pValue, true
}

// assignRanks returns average ranks (1-based) for data, plus the tie term
// sum(t^3 - t) over tie groups used by the variance corrections.
func assignRanks(data []float64) ([]float64, float64) {
	type indexed struct {
		value float64
		pos   int
	}
	order := make([]indexed, len(data))
	for i, v := range data {
		order[i] = indexed{value: v, pos: i}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].value < order[j].value })

	ranks := make([]float64, len(data))
	tieTerm := 0.0
	for i := 0; i < len(order); {
		j := i
		for j < len(order) && order[j].value == order[i].value {
			j++
		}
		// Average rank across the tie group [i, j).
		avg := (float64(i+1) + float64(j)) / 2
		for k := i; k < j; k++ {
			ranks[order[k].pos] = avg
		}
		t := float64(j - i)
		if t > 1 {
			tieTerm += t*t*t - t
		}
		i = j
	}
	return ranks, tieTerm
}
