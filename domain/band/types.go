package band

import (
	"fmt"

	"sleepband/domain/core"
)

// Definition names one frequency band. Edges follow the half-open
// [LowHz, HighHz) convention: a spectral bin whose center frequency
// equals HighHz belongs to the next band up, never to both.
type Definition struct {
	Name   string  `json:"name" yaml:"name"`
	LowHz  float64 `json:"low_hz" yaml:"low_hz"`
	HighHz float64 `json:"high_hz" yaml:"high_hz"`
}

func (d Definition) Validate() error {
	if d.Name == "" {
		return core.NewConfigurationError("band with empty name")
	}
	if d.LowHz < 0 || d.LowHz >= d.HighHz {
		return core.NewInvalidBandError(d.Name, d.LowHz, d.HighHz)
	}
	return nil
}

func (d Definition) String() string {
	return fmt.Sprintf("%s [%g, %g) Hz", d.Name, d.LowHz, d.HighHz)
}

// ValidateDefinitions checks a full band configuration. Band names must
// be unique; ranges may overlap by configuration.
func ValidateDefinitions(defs []Definition) error {
	if len(defs) == 0 {
		return core.NewConfigurationError("no frequency bands configured")
	}
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return err
		}
		if seen[d.Name] {
			return core.NewConfigurationError("duplicate band name " + d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// Epoch is one fixed-length window of one channel's signal within one
// session. Created by the segmenter, immutable thereafter.
type Epoch struct {
	SessionID  core.SessionID `json:"session_id"`
	ChannelID  core.ChannelID `json:"channel_id"`
	EpochIndex int            `json:"epoch_index"`
	StartTime  core.Timestamp `json:"start_time"`
	EndTime    core.Timestamp `json:"end_time"`
	Samples    []float64      `json:"-"`
	// SampleRate is the session's constant sampling rate in Hz.
	SampleRate float64 `json:"sample_rate"`
}

// Coverage describes how much of a band the spectrum could actually cover.
type Coverage string

const (
	// CoverageFull: the whole band sits below Nyquist.
	CoverageFull Coverage = "full"
	// CoveragePartial: the band straddles Nyquist; power was integrated
	// over the available overlap only.
	CoveragePartial Coverage = "partial"
	// CoverageOutOfRange: the band lies entirely above Nyquist. Power is
	// reported as zero, distinguishable from true zero power by this flag.
	CoverageOutOfRange Coverage = "out_of_range"
)

// PowerRecord is one (epoch, band) pair's computed power.
type PowerRecord struct {
	SessionID  core.SessionID `json:"session_id"`
	ChannelID  core.ChannelID `json:"channel_id"`
	EpochIndex int            `json:"epoch_index"`
	BandName   string         `json:"band_name"`
	// PowerLinear is the PSD integrated over the band, in signal units
	// squared. Non-negative.
	PowerLinear float64 `json:"power_linear"`
	// PowerDB is 10*log10(PowerLinear); NaN when PowerLinear <= 0.
	PowerDB  float64  `json:"power_db"`
	Coverage Coverage `json:"coverage"`
}

// Spectrum is a one-sided power spectral density estimate for one epoch.
type Spectrum struct {
	// Freqs holds bin center frequencies in Hz, from DC to Nyquist.
	Freqs []float64
	// PSD holds density values (units^2/Hz), one per frequency bin.
	PSD []float64
	// FreqResolution is the bin width df in Hz.
	FreqResolution float64
}
