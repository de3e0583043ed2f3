package spectral

import (
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"sleepband/domain/band"
	"sleepband/domain/core"
)

// Config controls the Welch PSD estimate.
type Config struct {
	// SegmentLength is the Welch sub-window length in samples; 0 uses the
	// full epoch as a single segment.
	SegmentLength int
	// OverlapFraction between consecutive sub-windows. 0.5 matches the
	// conventional Welch overlap.
	OverlapFraction float64
}

// Estimator computes one-sided power spectral densities using Welch's
// method with a Hann window. Sub-window means are removed before
// windowing. Density normalization is 1/(fs * sum(w^2)) with non-DC,
// non-Nyquist bins doubled, matching the usual one-sided convention.
type Estimator struct {
	cfg Config
}

func NewEstimator(cfg Config) *Estimator {
	if cfg.OverlapFraction <= 0 || cfg.OverlapFraction >= 1 {
		cfg.OverlapFraction = 0.5
	}
	return &Estimator{cfg: cfg}
}

// Spectrum estimates the PSD of one epoch's samples.
func (e *Estimator) Spectrum(epoch band.Epoch) (band.Spectrum, error) {
	n := len(epoch.Samples)
	if n == 0 || epoch.SampleRate <= 0 {
		return band.Spectrum{}, core.NewInsufficientDataError(epoch.SessionID, n, 1)
	}

	nperseg := e.cfg.SegmentLength
	if nperseg <= 0 || nperseg > n {
		nperseg = n
	}
	noverlap := int(float64(nperseg) * e.cfg.OverlapFraction)
	step := nperseg - noverlap
	if step <= 0 {
		step = 1
	}

	win := hannCoefficients(nperseg)
	winPower := 0.0
	for _, w := range win {
		winPower += w * w
	}
	scale := 1.0 / (epoch.SampleRate * winPower)

	fft := fourier.NewFFT(nperseg)
	nfreq := nperseg/2 + 1
	psd := make([]float64, nfreq)
	segment := make([]float64, nperseg)
	coeffs := make([]complex128, nfreq)

	nSegments := 0
	for start := 0; start+nperseg <= n; start += step {
		copy(segment, epoch.Samples[start:start+nperseg])
		removeMean(segment)
		for i := range segment {
			segment[i] *= win[i]
		}
		coeffs = fft.Coefficients(coeffs, segment)
		for k, c := range coeffs {
			p := (real(c)*real(c) + imag(c)*imag(c)) * scale
			// One-sided: double everything except DC and (for even
			// nperseg) the Nyquist bin.
			if k != 0 && !(nperseg%2 == 0 && k == nfreq-1) {
				p *= 2
			}
			psd[k] += p
		}
		nSegments++
	}
	for k := range psd {
		psd[k] /= float64(nSegments)
	}

	df := epoch.SampleRate / float64(nperseg)
	freqs := make([]float64, nfreq)
	for k := range freqs {
		freqs[k] = float64(k) * df
	}

	return band.Spectrum{Freqs: freqs, PSD: psd, FreqResolution: df}, nil
}

func hannCoefficients(n int) []float64 {
	coeffs := make([]float64, n)
	for i := range coeffs {
		coeffs[i] = 1
	}
	return window.Hann(coeffs)
}

func removeMean(seq []float64) {
	mean := 0.0
	for _, v := range seq {
		mean += v
	}
	mean /= float64(len(seq))
	for i := range seq {
		seq[i] -= mean
	}
}

// Nyquist returns the highest representable frequency for a sample rate.
func Nyquist(sampleRate float64) float64 {
	return sampleRate / 2
}
