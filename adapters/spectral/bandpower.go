package spectral

import (
	"math"

	"sleepband/domain/band"
)

// PowerDB converts linear band power to decibels. Zero or negative power
// has no dB representation and maps to NaN rather than -Inf so downstream
// tables can round-trip it.
func PowerDB(linear float64) float64 {
	if linear <= 0 {
		return math.NaN()
	}
	return 10 * math.Log10(linear)
}

// IntegrateBand sums psd*df over the spectral bins falling inside the
// band's half-open [low, high) range and reports how much of the band the
// spectrum could cover relative to Nyquist.
func IntegrateBand(spec band.Spectrum, def band.Definition, nyquist float64) (float64, band.Coverage) {
	if def.LowHz >= nyquist {
		return 0, band.CoverageOutOfRange
	}
	coverage := band.CoverageFull
	if def.HighHz > nyquist {
		coverage = band.CoveragePartial
	}

	power := 0.0
	for i, f := range spec.Freqs {
		if f >= def.LowHz && f < def.HighHz {
			power += spec.PSD[i] * spec.FreqResolution
		}
	}
	return power, coverage
}

// Records computes one PowerRecord per band definition for one epoch.
// Band definitions are assumed validated up front; a malformed definition
// here still fails rather than producing a silent record.
func (e *Estimator) Records(epoch band.Epoch, defs []band.Definition) ([]band.PowerRecord, *band.Spectrum, error) {
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, nil, err
		}
	}
	spec, err := e.Spectrum(epoch)
	if err != nil {
		return nil, nil, err
	}

	nyquist := Nyquist(epoch.SampleRate)
	records := make([]band.PowerRecord, 0, len(defs))
	for _, d := range defs {
		linear, coverage := IntegrateBand(spec, d, nyquist)
		records = append(records, band.PowerRecord{
			SessionID:   epoch.SessionID,
			ChannelID:   epoch.ChannelID,
			EpochIndex:  epoch.EpochIndex,
			BandName:    d.Name,
			PowerLinear: linear,
			PowerDB:     PowerDB(linear),
			Coverage:    coverage,
		})
	}
	return records, &spec, nil
}
