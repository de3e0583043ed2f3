package segment

import (
	"math"
	"time"

	"sleepband/domain/band"
	"sleepband/domain/core"
)

// SessionTable is one session's uniformly sampled signal with its
// per-sample annotation columns. Annotation slices are parallel to
// Samples; RawStage may be nil when the session carries no sleep scoring.
type SessionTable struct {
	SessionID  core.SessionID
	ChannelID  core.ChannelID
	SampleRate float64
	StartTime  time.Time
	Samples    []float64
	// RawBasic holds the device/annotation column value per sample.
	RawBasic []string
	// RawStage holds the sleep-stage column value per sample; empty
	// strings mark missing values.
	RawStage []string
}

// Options control epoching.
type Options struct {
	EpochSeconds float64
	StepSeconds  float64
	// DropTransitionEpochs discards windows whose RawBasic value changes
	// mid-window, so every kept epoch belongs to exactly one state.
	DropTransitionEpochs bool
}

// Window is one complete epoch together with the raw annotation values
// that held over it. RawStage is empty when the stage was missing or not
// uniform across the window.
type Window struct {
	Epoch    band.Epoch
	RawBasic string
	RawStage string
}

// Segmenter splits continuous signal tables into fixed-length epochs.
type Segmenter struct {
	opts Options
}

func New(opts Options) *Segmenter {
	if opts.StepSeconds <= 0 {
		opts.StepSeconds = opts.EpochSeconds
	}
	return &Segmenter{opts: opts}
}

// Segment produces the ordered sequence of complete epochs covering one
// session. The trailing partial window is always discarded. Returns
// InsufficientDataError when the session yields zero complete epochs.
func (s *Segmenter) Segment(table SessionTable) ([]Window, error) {
	epochSamples := int(math.Round(s.opts.EpochSeconds * table.SampleRate))
	stepSamples := int(math.Round(s.opts.StepSeconds * table.SampleRate))
	if epochSamples <= 0 || stepSamples <= 0 {
		return nil, core.NewConfigurationError("epoch length and step must be positive")
	}
	if len(table.Samples) < epochSamples {
		return nil, core.NewInsufficientDataError(table.SessionID, len(table.Samples), epochSamples)
	}

	sampleDur := time.Duration(float64(time.Second) / table.SampleRate)
	var windows []Window
	index := 0
	for start := 0; start+epochSamples <= len(table.Samples); start += stepSamples {
		end := start + epochSamples
		w, ok := s.buildWindow(table, start, end, index, sampleDur)
		index++
		if !ok {
			continue
		}
		windows = append(windows, w)
	}
	if len(windows) == 0 {
		return nil, core.NewInsufficientDataError(table.SessionID, len(table.Samples), epochSamples)
	}
	return windows, nil
}

func (s *Segmenter) buildWindow(table SessionTable, start, end, index int, sampleDur time.Duration) (Window, bool) {
	samples := table.Samples[start:end]
	for _, v := range samples {
		if math.IsNaN(v) {
			return Window{}, false
		}
	}

	rawBasic := ""
	if len(table.RawBasic) >= end {
		rawBasic = table.RawBasic[start]
		for _, v := range table.RawBasic[start:end] {
			if v != rawBasic {
				if s.opts.DropTransitionEpochs {
					return Window{}, false
				}
				// Without transition dropping the first value wins.
				break
			}
		}
	}

	rawStage := ""
	if len(table.RawStage) >= end {
		rawStage = table.RawStage[start]
		for _, v := range table.RawStage[start:end] {
			if v != rawStage {
				// A stage change mid-epoch means no single stage holds;
				// the epoch keeps its basic state only.
				rawStage = ""
				break
			}
		}
	}

	copied := make([]float64, len(samples))
	copy(copied, samples)

	startTime := table.StartTime.Add(time.Duration(start) * sampleDur)
	endTime := table.StartTime.Add(time.Duration(end) * sampleDur)
	return Window{
		Epoch: band.Epoch{
			SessionID:  table.SessionID,
			ChannelID:  table.ChannelID,
			EpochIndex: index,
			StartTime:  core.NewTimestamp(startTime),
			EndTime:    core.NewTimestamp(endTime),
			Samples:    copied,
			SampleRate: table.SampleRate,
		},
		RawBasic: rawBasic,
		RawStage: rawStage,
	}, true
}
