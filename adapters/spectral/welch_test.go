package spectral

import (
	"math"
	"testing"

	"sleepband/domain/band"
	"sleepband/domain/core"
)

func sineEpoch(freq, rate float64, n int, amplitude float64) band.Epoch {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/rate)
	}
	return band.Epoch{
		SessionID:  core.SessionID("s1"),
		ChannelID:  core.ChannelID("ch0"),
		Samples:    samples,
		SampleRate: rate,
	}
}

// TestSpectrumPeakLocation tests that a pure sine's power concentrates at its frequency
func TestSpectrumPeakLocation(t *testing.T) {
	e := NewEstimator(Config{})
	epoch := sineEpoch(10, 100, 1000, 1)

	spec, err := e.Spectrum(epoch)
	if err != nil {
		t.Fatalf("Spectrum failed: %v", err)
	}

	peak := 0
	for i, p := range spec.PSD {
		if p > spec.PSD[peak] {
			peak = i
		}
	}
	if got := spec.Freqs[peak]; math.Abs(got-10) > spec.FreqResolution {
		t.Errorf("Peak at %g Hz, want 10 Hz (df=%g)", got, spec.FreqResolution)
	}
}

// TestSpectrumTotalPower tests that integrated PSD approximates the signal variance
func TestSpectrumTotalPower(t *testing.T) {
	e := NewEstimator(Config{})
	// Unit-amplitude sine: variance 0.5.
	epoch := sineEpoch(10, 100, 1000, 1)

	spec, err := e.Spectrum(epoch)
	if err != nil {
		t.Fatalf("Spectrum failed: %v", err)
	}

	total := 0.0
	for _, p := range spec.PSD {
		total += p * spec.FreqResolution
	}
	if math.Abs(total-0.5) > 0.05 {
		t.Errorf("Total power %g, want ~0.5", total)
	}
}

// TestSpectrumBinLayout tests the frequency grid from DC to Nyquist
func TestSpectrumBinLayout(t *testing.T) {
	e := NewEstimator(Config{})
	epoch := sineEpoch(10, 250, 750, 1)

	spec, err := e.Spectrum(epoch)
	if err != nil {
		t.Fatalf("Spectrum failed: %v", err)
	}
	wantDF := 250.0 / 750.0
	if math.Abs(spec.FreqResolution-wantDF) > 1e-12 {
		t.Errorf("df = %g, want %g", spec.FreqResolution, wantDF)
	}
	if len(spec.Freqs) != 376 {
		t.Errorf("Expected 376 bins for 750 samples, got %d", len(spec.Freqs))
	}
	if spec.Freqs[0] != 0 {
		t.Errorf("First bin should be DC, got %g", spec.Freqs[0])
	}
	last := spec.Freqs[len(spec.Freqs)-1]
	if math.Abs(last-125) > 1e-9 {
		t.Errorf("Last bin %g Hz, want Nyquist 125 Hz", last)
	}
}

// TestSpectrumSegmentedWelch tests averaging over overlapping sub-windows
func TestSpectrumSegmentedWelch(t *testing.T) {
	e := NewEstimator(Config{SegmentLength: 256, OverlapFraction: 0.5})
	epoch := sineEpoch(10, 100, 1024, 2)

	spec, err := e.Spectrum(epoch)
	if err != nil {
		t.Fatalf("Spectrum failed: %v", err)
	}
	if len(spec.PSD) != 129 {
		t.Errorf("Expected 129 bins for nperseg 256, got %d", len(spec.PSD))
	}

	// Amplitude-2 sine: variance 2.
	total := 0.0
	for _, p := range spec.PSD {
		total += p * spec.FreqResolution
	}
	if math.Abs(total-2) > 0.2 {
		t.Errorf("Total power %g, want ~2", total)
	}
}

// TestSpectrumEmptyEpoch tests the zero-sample failure mode
func TestSpectrumEmptyEpoch(t *testing.T) {
	e := NewEstimator(Config{})
	_, err := e.Spectrum(band.Epoch{SessionID: "s1", SampleRate: 100})
	if err == nil {
		t.Fatal("Expected error for empty epoch")
	}
	if !core.IsInsufficientData(err) {
		t.Errorf("Expected insufficient-data error, got %v", err)
	}
}

// TestSpectrumDCRemoval tests that a constant offset contributes no band power
func TestSpectrumDCRemoval(t *testing.T) {
	e := NewEstimator(Config{})
	epoch := sineEpoch(10, 100, 1000, 1)
	for i := range epoch.Samples {
		epoch.Samples[i] += 100
	}

	spec, err := e.Spectrum(epoch)
	if err != nil {
		t.Fatalf("Spectrum failed: %v", err)
	}
	total := 0.0
	for _, p := range spec.PSD {
		total += p * spec.FreqResolution
	}
	if math.Abs(total-0.5) > 0.05 {
		t.Errorf("Total power %g after offset, want ~0.5 (mean removal failed?)", total)
	}
}
