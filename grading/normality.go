package grading

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// IsNormal combines three normality tests with a lenient OR: the data is
// accepted as normal when any single test fails to reject at level alpha.
// Borderline metrics therefore tend towards the simpler mean/std tiering.
// Samples too small for the moment tests are never accepted.
func IsNormal(data []float64, alpha float64) bool {
	if len(data) < 8 {
		return false
	}

	if p, ok := shapiroWilk(data); ok && p > alpha {
		return true
	}
	if p, ok := dagostinoK2(data); ok && p > alpha {
		return true
	}
	if statistic, critical, ok := andersonDarling(data); ok && statistic < critical {
		return true
	}
	return false
}

func polyval(coeffs []float64, x float64) float64 {
	sum := 0.0
	for i := len(coeffs) - 1; i >= 0; i-- {
		sum = sum*x + coeffs[i]
	}
	return sum
}

// shapiroWilk returns the p-value of the Shapiro-Wilk W test, following
// Royston's AS R94 approximation. ok is false for degenerate input.
func shapiroWilk(data []float64) (p float64, ok bool) {
	n := len(data)
	if n < 3 {
		return 0, false
	}

	x := append([]float64(nil), data...)
	sort.Float64s(x)
	if x[n-1]-x[0] < 1e-19 {
		return 0, false
	}

	// Expected normal order statistic weights
	n2 := n / 2
	a := make([]float64, n2)
	if n == 3 {
		a[0] = math.Sqrt(0.5)
	} else {
		an25 := float64(n) + 0.25
		summ2 := 0.0
		for i := 0; i < n2; i++ {
			a[i] = stdNormal.Quantile((float64(i+1) - 0.375) / an25)
			summ2 += a[i] * a[i]
		}
		summ2 *= 2
		ssumm2 := math.Sqrt(summ2)
		rsn := 1 / math.Sqrt(float64(n))

		c1 := []float64{0, 0.221157, -0.147981, -2.071190, 4.434685, -2.706056}
		c2 := []float64{0, 0.042981, -0.293762, -1.752461, 5.682633, -3.582633}

		a1 := polyval(c1, rsn) - a[0]/ssumm2
		i1 := 1
		var fac float64
		if n > 5 {
			i1 = 2
			a2 := -a[1]/ssumm2 + polyval(c2, rsn)
			fac = math.Sqrt((summ2 - 2*a[0]*a[0] - 2*a[1]*a[1]) /
				(1 - 2*a1*a1 - 2*a2*a2))
			a[1] = a2
		} else {
			fac = math.Sqrt((summ2 - 2*a[0]*a[0]) / (1 - 2*a1*a1))
		}
		a[0] = a1
		for i := i1; i < n2; i++ {
			a[i] = -a[i] / fac
		}
	}

	// W statistic as squared correlation between data and weights
	xRange := x[n-1] - x[0]
	sx, sa := 0.0, 0.0
	for i, j := 0, n-1; i < n; i, j = i+1, j-1 {
		sx += x[i] / xRange
		if i != j {
			sa += float64(sign(i-j)) * a[imin(i, j)]
		}
	}
	sx /= float64(n)
	sa /= float64(n)

	ssa, ssx, sax := 0.0, 0.0, 0.0
	for i, j := 0, n-1; i < n; i, j = i+1, j-1 {
		var asa float64
		if i != j {
			asa = float64(sign(i-j))*a[imin(i, j)] - sa
		} else {
			asa = -sa
		}
		xsx := x[i]/xRange - sx
		ssa += asa * asa
		ssx += xsx * xsx
		sax += asa * xsx
	}

	ssassx := math.Sqrt(ssa * ssx)
	w1 := (ssassx - sax) * (ssassx + sax) / (ssa * ssx)
	w := 1 - w1

	// Significance level of W
	if n == 3 {
		const pi6 = 1.909859
		const stqr = 1.047198
		p = pi6 * (math.Asin(math.Sqrt(w)) - stqr)
		return math.Min(math.Max(p, 0), 1), true
	}

	y := math.Log(w1)
	an := float64(n)
	var m, s float64
	if n <= 11 {
		gamma := polyval([]float64{-2.273, 0.459}, an)
		if y >= gamma {
			return 1e-19, true
		}
		y = -math.Log(gamma - y)
		m = polyval([]float64{0.544, -0.39978, 0.025054, -6.714e-4}, an)
		s = math.Exp(polyval([]float64{1.3822, -0.77857, 0.062767, -0.0020322}, an))
	} else {
		logn := math.Log(an)
		m = polyval([]float64{-1.5861, -0.31082, -0.083751, 0.0038915}, logn)
		s = math.Exp(polyval([]float64{-0.4803, -0.082676, 0.0030302}, logn))
	}

	return stdNormal.Survival((y - m) / s), true
}

func sign(v int) int {
	if v < 0 {
		return -1
	}
	if v > 0 {
		return 1
	}
	return 0
}

func imin(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// dagostinoK2 returns the p-value of D'Agostino's K^2 omnibus test, the
// combination of the skewness and kurtosis z-scores against a chi-square
// with two degrees of freedom. Requires at least 8 samples.
func dagostinoK2(data []float64) (p float64, ok bool) {
	n := len(data)
	if n < 8 {
		return 0, false
	}

	zs, ok := skewnessZ(data)
	if !ok {
		return 0, false
	}
	zk, ok := kurtosisZ(data)
	if !ok {
		return 0, false
	}

	k2 := zs*zs + zk*zk
	chi2 := distuv.ChiSquared{K: 2}
	return chi2.Survival(k2), true
}

func centralMoments(data []float64) (mean, m2, m3, m4 float64) {
	mean = stat.Mean(data, nil)
	n := float64(len(data))
	for _, v := range data {
		d := v - mean
		m2 += d * d
		m3 += d * d * d
		m4 += d * d * d * d
	}
	m2 /= n
	m3 /= n
	m4 /= n
	return mean, m2, m3, m4
}

func skewnessZ(data []float64) (float64, bool) {
	n := float64(len(data))
	_, m2, m3, _ := centralMoments(data)
	if m2 == 0 {
		return 0, false
	}
	b2 := m3 / math.Pow(m2, 1.5)

	y := b2 * math.Sqrt((n+1)*(n+3)/(6*(n-2)))
	beta2 := 3 * (n*n + 27*n - 70) * (n + 1) * (n + 3) /
		((n - 2) * (n + 5) * (n + 7) * (n + 9))
	w2 := -1 + math.Sqrt(2*(beta2-1))
	delta := 1 / math.Sqrt(0.5*math.Log(w2))
	alpha := math.Sqrt(2 / (w2 - 1))
	if y == 0 {
		y = 1
	}
	z := delta * math.Log(y/alpha+math.Sqrt((y/alpha)*(y/alpha)+1))
	return z, true
}

func kurtosisZ(data []float64) (float64, bool) {
	n := float64(len(data))
	_, m2, _, m4 := centralMoments(data)
	if m2 == 0 {
		return 0, false
	}
	b2 := m4 / (m2 * m2)

	e := 3 * (n - 1) / (n + 1)
	varB2 := 24 * n * (n - 2) * (n - 3) / ((n + 1) * (n + 1) * (n + 3) * (n + 5))
	x := (b2 - e) / math.Sqrt(varB2)

	sqrtBeta1 := 6 * (n*n - 5*n + 2) / ((n + 7) * (n + 9)) *
		math.Sqrt(6*(n+3)*(n+5)/(n*(n-2)*(n-3)))
	a := 6 + 8/sqrtBeta1*(2/sqrtBeta1+math.Sqrt(1+4/(sqrtBeta1*sqrtBeta1)))

	denom := 1 + x*math.Sqrt(2/(a-4))
	if denom == 0 {
		return 0, false
	}
	term1 := 1 - 2/(9*a)
	term2 := math.Copysign(math.Cbrt((1-2/a)/math.Abs(denom)), denom)
	z := (term1 - term2) / math.Sqrt(2/(9*a))
	return z, true
}

// andersonDarlingCriticals are the normal-case critical values at the
// 15, 10, 5, 2.5 and 1 percent significance levels before the small-sample
// correction. Index 2 is the conventional 5 percent slot.
var andersonDarlingCriticals = [5]float64{0.576, 0.656, 0.787, 0.918, 1.092}

const andersonDarlingSlot = 2

// andersonDarling returns the A^2 statistic and the sample-size corrected
// critical value at the 5 percent level.
func andersonDarling(data []float64) (statistic, critical float64, ok bool) {
	n := len(data)
	if n < 2 {
		return 0, 0, false
	}

	y := append([]float64(nil), data...)
	sort.Float64s(y)

	mean := stat.Mean(y, nil)
	sd := math.Sqrt(stat.Variance(y, nil))
	if sd == 0 {
		return 0, 0, false
	}

	nf := float64(n)
	a2 := -nf
	for i := 0; i < n; i++ {
		w := (y[i] - mean) / sd
		wRev := (y[n-1-i] - mean) / sd
		logCDF := math.Log(stdNormal.CDF(w))
		logSF := math.Log(stdNormal.Survival(wRev))
		a2 -= (2*float64(i) + 1) / nf * (logCDF + logSF)
	}

	correction := 1 + 4/nf - 25/(nf*nf)
	critical = andersonDarlingCriticals[andersonDarlingSlot] / correction
	return a2, critical, true
}
