package evaluation

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// meanSpectralPower returns the mean power spectral density of a signal,
// mean over the full spectrum of |F_k|^2 / n. A roughness indicator for
// joystick activity; NaN for an empty window.
func meanSpectralPower(signal []float64) float64 {
	n := len(signal)
	if n == 0 {
		return math.NaN()
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, signal)

	// Coefficients returns the half spectrum of a real input. The full
	// spectrum mirrors the interior bins, so those count twice; DC and,
	// for even n, the Nyquist bin appear once.
	sum := magnitudeSquared(coeffs[0])
	last := len(coeffs) - 1
	for k := 1; k < last; k++ {
		sum += 2 * magnitudeSquared(coeffs[k])
	}
	if last > 0 {
		if n%2 == 0 {
			sum += magnitudeSquared(coeffs[last])
		} else {
			sum += 2 * magnitudeSquared(coeffs[last])
		}
	}

	return sum / float64(n*n)
}

func magnitudeSquared(c complex128) float64 {
	m := cmplx.Abs(c)
	return m * m
}
