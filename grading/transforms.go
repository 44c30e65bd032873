package grading

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// pointTransform maps a single metric value into the transformed space a
// reference column was normalized in, so test values stay comparable with
// transformed tier borders.
type pointTransform func(float64) float64

// boxCox applies the Box-Cox power function. Only defined for positive x.
func boxCox(x, lambda float64) float64 {
	if lambda == 0 {
		return math.Log(x)
	}
	return (math.Pow(x, lambda) - 1) / lambda
}

// yeoJohnson extends Box-Cox to the whole real line
func yeoJohnson(x, lambda float64) float64 {
	if x >= 0 {
		if lambda == 0 {
			return math.Log1p(x)
		}
		return (math.Pow(x+1, lambda) - 1) / lambda
	}
	if lambda == 2 {
		return -math.Log1p(-x)
	}
	return -(math.Pow(1-x, 2-lambda) - 1) / (2 - lambda)
}

func populationVariance(data []float64) float64 {
	mean := stat.Mean(data, nil)
	sum := 0.0
	for _, v := range data {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(data))
}

// logLikelihood of the power-transformed sample under a normal model
func powerLogLikelihood(data []float64, lambda float64, apply func(x, lambda float64) float64, jacobian func(x float64) float64) float64 {
	n := float64(len(data))
	transformed := make([]float64, len(data))
	for i, v := range data {
		transformed[i] = apply(v, lambda)
	}
	variance := populationVariance(transformed)
	if variance <= 0 {
		return math.Inf(-1)
	}

	sum := 0.0
	for _, v := range data {
		sum += jacobian(v)
	}
	return -n/2*math.Log(variance) + (lambda-1)*sum
}

// maximizeLambda finds the MLE power-transform exponent via golden-section
// search on the fixed interval [-5, 5].
func maximizeLambda(objective func(lambda float64) float64) float64 {
	const (
		lo        = -5.0
		hi        = 5.0
		tolerance = 1e-8
	)
	invPhi := (math.Sqrt(5) - 1) / 2

	a, b := lo, hi
	c := b - invPhi*(b-a)
	d := a + invPhi*(b-a)
	fc, fd := objective(c), objective(d)

	for b-a > tolerance {
		if fc > fd {
			b, d, fd = d, c, fc
			c = b - invPhi*(b-a)
			fc = objective(c)
		} else {
			a, c, fc = c, d, fd
			d = a + invPhi*(b-a)
			fd = objective(d)
		}
	}
	return (a + b) / 2
}

// powerTransform fits a Box-Cox or Yeo-Johnson transform by maximum
// likelihood and returns the standardized transformed column together with
// a point transform for test values.
func powerTransform(data []float64, method string) ([]float64, pointTransform) {
	var apply func(x, lambda float64) float64
	var jacobian func(x float64) float64

	switch method {
	case "box-cox":
		apply = boxCox
		jacobian = math.Log
	default: // yeo-johnson
		apply = yeoJohnson
		jacobian = func(x float64) float64 {
			return math.Copysign(math.Log1p(math.Abs(x)), x)
		}
	}

	lambda := maximizeLambda(func(l float64) float64 {
		return powerLogLikelihood(data, l, apply, jacobian)
	})

	transformed := make([]float64, len(data))
	for i, v := range data {
		transformed[i] = apply(v, lambda)
	}

	mean := stat.Mean(transformed, nil)
	sd := math.Sqrt(populationVariance(transformed))
	if sd == 0 {
		sd = 1
	}
	for i := range transformed {
		transformed[i] = (transformed[i] - mean) / sd
	}

	point := func(v float64) float64 {
		return (apply(v, lambda) - mean) / sd
	}
	return transformed, point
}

// quantileBound keeps mapped probabilities away from 0 and 1 so the normal
// quantile stays finite.
const quantileBound = 1e-7

// quantileTransform maps the column onto a standard normal through its own
// empirical quantile function, using at most min(100, n) quantiles.
func quantileTransform(data []float64) ([]float64, pointTransform) {
	n := len(data)
	nq := imin(100, n)

	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)

	quantiles := make([]float64, nq)
	references := make([]float64, nq)
	for i := 0; i < nq; i++ {
		var p float64
		if nq == 1 {
			p = 0.5
		} else {
			p = float64(i) / float64(nq-1)
		}
		references[i] = p
		quantiles[i] = interpolatedQuantile(sorted, p)
	}

	point := func(v float64) float64 {
		// Average of the forward and reverse interpolations keeps tied
		// values centered within their quantile plateau.
		forward := interpolate(v, quantiles, references)
		reverse := -interpolate(-v, negateReversed(quantiles), negateReversed(references))
		p := (forward + reverse) / 2
		p = math.Min(math.Max(p, quantileBound), 1-quantileBound)
		return stdNormal.Quantile(p)
	}

	transformed := make([]float64, n)
	for i, v := range data {
		transformed[i] = point(v)
	}
	return transformed, point
}

// interpolatedQuantile evaluates the linear-interpolation quantile of a
// sorted sample at probability p.
func interpolatedQuantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// interpolate is piecewise-linear interpolation with flat extrapolation,
// xs ascending.
func interpolate(v float64, xs, ys []float64) float64 {
	if v <= xs[0] {
		return ys[0]
	}
	if v >= xs[len(xs)-1] {
		return ys[len(ys)-1]
	}
	i := sort.SearchFloat64s(xs, v)
	if xs[i] == v {
		return ys[i]
	}
	frac := (v - xs[i-1]) / (xs[i] - xs[i-1])
	return ys[i-1] + frac*(ys[i]-ys[i-1])
}

func negateReversed(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, v := range xs {
		out[len(xs)-1-i] = -v
	}
	return out
}
