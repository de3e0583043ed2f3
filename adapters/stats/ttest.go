package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// welchTTest computes Welch's two-sample t-test for unequal variances.
// Returns the t statistic, the two-sided p-value, and Cohen's d.
//
// Zero-variance samples never divide by zero: identical means report
// t = 0, p = 1; different means report an infinite statistic with p = 0,
// the most extreme result the test can express.
func welchTTest(a, b []float64) (tStat, pValue, effectSize float64) {
	n1 := float64(len(a))
	n2 := float64(len(b))

	mean1 := mean(a)
	mean2 := mean(b)
	var1 := variance(a, mean1)
	var2 := variance(b, mean2)

	se := math.Sqrt(var1/n1 + var2/n2)
	diff := mean1 - mean2

	pooledSD := math.Sqrt(((n1-1)*var1 + (n2-1)*var2) / (n1 + n2 - 2))
	if pooledSD > 0 {
		effectSize = diff / pooledSD
	}

	if se == 0 {
		if diff == 0 {
			return 0, 1, effectSize
		}
		return math.Inf(sign(diff)), 0, math.Inf(sign(diff))
	}

	tStat = diff / se

	// Welch-Satterthwaite degrees of freedom
	df := math.Pow(var1/n1+var2/n2, 2) /
		(math.Pow(var1/n1, 2)/(n1-1) + math.Pow(var2/n2, 2)/(n2-1))

	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	pValue = 2 * (1 - tDist.CDF(math.Abs(tStat)))
	return tStat, pValue, effectSize
}

func mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

func variance(data []float64, mean float64) float64 {
	if len(data) < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range data {
		diff := v - mean
		sumSq += diff * diff
	}
	return sumSq / float64(len(data)-1)
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
