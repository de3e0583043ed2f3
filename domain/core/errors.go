package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// ErrInsufficientData means a session produced no complete epochs.
	// The session is excluded and logged; other sessions proceed.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidBand means a band definition is malformed (low >= high,
	// negative edges). Fatal before any computation.
	ErrInvalidBand = errors.New("invalid frequency band")

	// ErrAlignment means a paired test could not align its two samples.
	// Recorded on that result only, never fatal to the run.
	ErrAlignment = errors.New("sample alignment failed")

	// ErrConfiguration means no usable tests or state-pairs resolved.
	// Fatal, surfaced before any computation.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrUnknownState means a state label fell outside the closed
	// enumeration at a boundary that requires a known value.
	ErrUnknownState = errors.New("unknown state label")
)

// Error constructors with context

func NewInsufficientDataError(session SessionID, samples, epochSamples int) error {
	return fmt.Errorf("%w: session %s has %d samples, fewer than one epoch of %d",
		ErrInsufficientData, session, samples, epochSamples)
}

func NewInvalidBandError(name string, low, high float64) error {
	return fmt.Errorf("%w: %s [%g, %g) Hz", ErrInvalidBand, name, low, high)
}

func NewAlignmentError(stateA, stateB string, nA, nB int) error {
	return fmt.Errorf("%w: paired comparison %s vs %s has %d vs %d samples",
		ErrAlignment, stateA, stateB, nA, nB)
}

func NewConfigurationError(reason string) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, reason)
}

// Error checking helpers

func IsInsufficientData(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}

func IsFatalConfigError(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrInvalidBand)
}
