package state

import "fmt"

// Basic is the binary device/behavioral condition of an epoch. The
// enumeration is closed: values outside the configured mapping become
// BasicUnknown so they can be excluded explicitly downstream instead of
// vanishing silently.
type Basic string

const (
	State0       Basic = "state0"
	State1       Basic = "state1"
	BasicUnknown Basic = "unknown"
)

// Valid reports whether the basic state is a known condition.
func (b Basic) Valid() bool {
	return b == State0 || b == State1
}

// CoarseStage is a collapsed sleep stage. Raw stage vocabularies (N1, N2,
// N3, REM, Wake and their numeric encodings) are mapped to this coarse
// set before being crossed with the basic state.
type CoarseStage string

const (
	StageNREM CoarseStage = "NREM"
	StageREM  CoarseStage = "REM"
	StageWake CoarseStage = "Wake"
	// StageUnmapped marks a raw value with no coarse category. Epochs
	// carrying it yield no combined state but keep their basic state.
	StageUnmapped CoarseStage = ""
)

func (s CoarseStage) Valid() bool {
	return s == StageNREM || s == StageREM || s == StageWake
}

// Combined is a basic state crossed with a coarse stage, e.g. "NREM_state0".
type Combined string

// NewCombined crosses a coarse stage with a basic state. Both sides must
// be valid members of their enumerations; otherwise no combined state
// exists and the empty Combined is returned.
func NewCombined(stage CoarseStage, basic Basic) Combined {
	if !stage.Valid() || !basic.Valid() {
		return ""
	}
	return Combined(fmt.Sprintf("%s_%s", stage, basic))
}

// IsZero reports whether no combined state was assignable.
func (c Combined) IsZero() bool { return c == "" }

// Assignment attaches state labels to one epoch. Combined is present iff
// the epoch had a valid sleep-stage value that mapped to a coarse stage.
type Assignment struct {
	Basic    Basic    `json:"basic_state"`
	Combined Combined `json:"combined_state,omitempty"`
}

// Label is any comparable state label a statistical comparison can group
// by: either a Basic or a Combined state rendered as a string.
type Label string

// Labels for an assignment, in the order basic then combined.
func (a Assignment) Labels() []Label {
	labels := []Label{Label(a.Basic)}
	if !a.Combined.IsZero() {
		labels = append(labels, Label(a.Combined))
	}
	return labels
}
