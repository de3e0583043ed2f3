package labeling

import (
	"strings"

	"sleepband/domain/state"
)

// Labeler maps raw annotation values onto the closed state enumerations.
// It is a pure lookup: out-of-vocabulary basic values become
// state.BasicUnknown, out-of-vocabulary stages simply yield no combined
// state. Nothing here can fail at runtime.
type Labeler struct {
	basicMap map[string]state.Basic
	stageMap map[string]state.CoarseStage
}

// New builds a labeler from raw-value mappings. Mapping targets outside
// the enumerations are dropped at construction so the closed vocabulary
// is enforced at a single boundary.
func New(basicMap, stageMap map[string]string) *Labeler {
	l := &Labeler{
		basicMap: make(map[string]state.Basic, len(basicMap)),
		stageMap: make(map[string]state.CoarseStage, len(stageMap)),
	}
	for raw, target := range basicMap {
		b := state.Basic(target)
		if b.Valid() {
			l.basicMap[normalize(raw)] = b
		}
	}
	for raw, target := range stageMap {
		s := state.CoarseStage(target)
		if s.Valid() {
			l.stageMap[normalize(raw)] = s
		}
	}
	return l
}

func normalize(raw string) string {
	return strings.TrimSpace(raw)
}

// Basic maps a raw device-column value to a basic state.
func (l *Labeler) Basic(raw string) state.Basic {
	if b, ok := l.basicMap[normalize(raw)]; ok {
		return b
	}
	return state.BasicUnknown
}

// Stage maps a raw sleep-stage value to a coarse stage. Missing or
// unmapped values return StageUnmapped.
func (l *Labeler) Stage(raw string) state.CoarseStage {
	if raw == "" {
		return state.StageUnmapped
	}
	if s, ok := l.stageMap[normalize(raw)]; ok {
		return s
	}
	return state.StageUnmapped
}

// Assign produces the full state assignment for one epoch's raw
// annotation values. The combined state exists only when both the basic
// state and the coarse stage are valid enumeration members.
func (l *Labeler) Assign(rawBasic, rawStage string) state.Assignment {
	basic := l.Basic(rawBasic)
	return state.Assignment{
		Basic:    basic,
		Combined: state.NewCombined(l.Stage(rawStage), basic),
	}
}
