package experiment

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// testResult is what either significance test produces.
type testResult struct {
	p      float64
	effect float64
	meanA  float64
	meanB  float64
}

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// mannWhitney runs a two-sided Mann-Whitney U test with the tie-corrected
// normal approximation and reports the rank-biserial correlation as effect
// size.
func mannWhitney(a, b []float64) testResult {
	nA, nB := float64(len(a)), float64(len(b))
	res := testResult{meanA: stat.Mean(a, nil), meanB: stat.Mean(b, nil)}

	type obs struct {
		v    float64
		armA bool
	}
	all := make([]obs, 0, len(a)+len(b))
	for _, v := range a {
		all = append(all, obs{v, true})
	}
	for _, v := range b {
		all = append(all, obs{v, false})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].v < all[j].v })

	// Midranks over tied runs, collecting tie group sizes for the variance
	// correction.
	ranks := make([]float64, len(all))
	var tieTerm float64
	for i := 0; i < len(all); {
		j := i
		for j < len(all) && all[j].v == all[i].v {
			j++
		}
		mid := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[k] = mid
		}
		if t := float64(j - i); t > 1 {
			tieTerm += t*t*t - t
		}
		i = j
	}

	var rankSumA float64
	for i, o := range all {
		if o.armA {
			rankSumA += ranks[i]
		}
	}
	u := rankSumA - nA*(nA+1)/2

	n := nA + nB
	mean := nA * nB / 2
	variance := nA * nB / 12 * ((n + 1) - tieTerm/(n*(n-1)))
	if variance <= 0 {
		// Every observation tied: no evidence either way.
		res.p = 1
		res.effect = 0
		return res
	}

	z := (u - mean) / math.Sqrt(variance)
	res.p = 2 * stdNormal.Survival(math.Abs(z))
	if res.p > 1 {
		res.p = 1
	}
	res.effect = 2*u/(nA*nB) - 1
	return res
}

// welch runs Welch's unequal-variance t-test, two-sided, with the
// Abramowitz-Stegun polynomial as the CDF so the result matches the
// historical scorer bit for bit.
func welch(a, b []float64) testResult {
	nA, nB := float64(len(a)), float64(len(b))
	meanA, varA := stat.MeanVariance(a, nil)
	meanB, varB := stat.MeanVariance(b, nil)
	res := testResult{meanA: meanA, meanB: meanB}

	se := math.Sqrt(varA/nA + varB/nB)
	if se == 0 {
		res.p = 1
		res.effect = 0
		return res
	}

	t := (meanA - meanB) / se
	res.p = 2 * (1 - asNormalCDF(math.Abs(t)))
	if res.p > 1 {
		res.p = 1
	}
	// Cohen's d on the pooled spread, sign from A's perspective.
	pooled := math.Sqrt((varA + varB) / 2)
	if pooled > 0 {
		res.effect = (meanA - meanB) / pooled
	}
	return res
}

// asNormalCDF is the Abramowitz-Stegun 26.2.17 polynomial approximation of
// the standard normal CDF, accurate to about 7.5e-8.
func asNormalCDF(x float64) float64 {
	if x < 0 {
		return 1 - asNormalCDF(-x)
	}
	t := 1 / (1 + 0.2316419*x)
	poly := t * (0.319381530 + t*(-0.356563782+t*(1.781477937+t*(-1.821255978+t*1.330274429))))
	return 1 - math.Exp(-x*x/2)/math.Sqrt(2*math.Pi)*poly
}
