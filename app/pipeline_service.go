package app

import (
	"context"
	"math"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	"sleepband/adapters/labeling"
	"sleepband/adapters/segment"
	"sleepband/adapters/spectral"
	statsadapter "sleepband/adapters/stats"
	"sleepband/domain/band"
	"sleepband/domain/core"
	"sleepband/domain/state"
	domstats "sleepband/domain/stats"
	"sleepband/internal/aggregate"
	"sleepband/internal/config"
	"sleepband/internal/errors"
	"sleepband/internal/logging"
	"sleepband/ports"
)

// PipelineService orchestrates one full run: segment each session,
// estimate band power per epoch, label states, run the comparison
// battery, and fan the merged tables out to every configured sink.
type PipelineService struct {
	cfg       *config.Config
	segmenter *segment.Segmenter
	estimator *spectral.Estimator
	labeler   *labeling.Labeler
	sinks     []ports.ResultSink
	log       *logging.Logger
}

func NewPipelineService(cfg *config.Config, sinks []ports.ResultSink, log *logging.Logger) *PipelineService {
	if log == nil {
		log = logging.DefaultLogger
	}
	return &PipelineService{
		cfg: cfg,
		segmenter: segment.New(segment.Options{
			EpochSeconds:         cfg.Epoch.LengthSeconds,
			StepSeconds:          cfg.Epoch.StepSeconds,
			DropTransitionEpochs: cfg.Epoch.DropTransitions(),
		}),
		estimator: spectral.NewEstimator(spectral.Config{
			SegmentLength:   cfg.Spectral.SegmentLength,
			OverlapFraction: cfg.Spectral.OverlapFraction,
		}),
		labeler: labeling.New(cfg.States.BasicMap, cfg.States.StageMap),
		sinks:   sinks,
		log:     log,
	}
}

// RunResult reports what one invocation produced.
type RunResult struct {
	RunID            core.RunID
	Tables           *aggregate.Tables
	SessionsIncluded int
	SessionsSkipped  int
}

// sessionOutput is one session's contribution to the pooled tables.
// Collected per-index so merge order never depends on goroutine timing.
type sessionOutput struct {
	records []band.PowerRecord
	rows    []statsadapter.Row
	spectra []labeledSpectrum
	err     error
}

type labeledSpectrum struct {
	labels []state.Label
	spec   band.Spectrum
}

// Run executes the pipeline over the given session tables. Sessions too
// short to yield a single epoch are logged and excluded; any other
// per-session failure aborts the run, because it indicates a
// configuration problem that would silently bias every result.
func (s *PipelineService) Run(ctx context.Context, tables []segment.SessionTable) (*RunResult, error) {
	outputs := make([]sessionOutput, len(tables))
	sem := semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0)))
	var wg sync.WaitGroup

	for i := range tables {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, errors.Wrap(err, "pipeline cancelled")
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			outputs[i] = s.processSession(tables[i])
		}(i)
	}
	wg.Wait()

	var (
		records  []band.PowerRecord
		rows     []statsadapter.Row
		included int
		skipped  int
		psdAccum *aggregate.PSDAccumulator
	)
	if s.cfg.Spectral.KeepPSD {
		psdAccum = aggregate.NewPSDAccumulator()
	}
	for i, out := range outputs {
		if out.err != nil {
			if core.IsInsufficientData(out.err) {
				s.log.Warn("excluding session %s: %v", tables[i].SessionID, out.err)
				skipped++
				continue
			}
			return nil, out.err
		}
		included++
		records = append(records, out.records...)
		rows = append(rows, out.rows...)
		if psdAccum != nil {
			for _, ls := range out.spectra {
				psdAccum.Add(ls.labels, ls.spec)
			}
		}
	}
	if included == 0 {
		return nil, errors.New(errors.CodeInsufficientData, "no session yielded any complete epoch")
	}

	pairs := statsadapter.ResolvePairs(rows,
		s.cfg.States.Mode == config.ModeBasicOnly,
		s.cfg.States.Mode == config.ModeCombinedOnly,
		toStatePairs(s.cfg.States.Include),
		toStatePairs(s.cfg.States.Exclude))

	bandNames := make([]string, 0, len(s.cfg.Bands))
	for _, def := range s.cfg.Bands {
		bandNames = append(bandNames, def.Name)
	}
	comparator, err := statsadapter.NewComparator(statsadapter.Params{
		Tests:         s.cfg.Tests.Enabled,
		NPermutations: s.cfg.Tests.NPermutations,
		Seed:          s.cfg.Tests.RandomSeed,
		MinSamples:    s.cfg.Tests.MinSamples,
		Bands:         bandNames,
	}, s.log)
	if err != nil {
		return nil, err
	}
	compared, err := comparator.Run(rows, pairs)
	if err != nil {
		return nil, err
	}

	merged := aggregate.Build(records, rows, compared)
	if psdAccum != nil {
		merged.AvgPSD = psdAccum.Rows()
	}

	runID := core.RunID(core.NewID())
	for _, sink := range s.sinks {
		if err := sink.WriteTables(ctx, runID, merged); err != nil {
			return nil, err
		}
	}

	s.log.Info("run %s complete: %d sessions pooled, %d skipped, %d band-power rows, %d test results",
		runID, included, skipped, len(merged.BandPower), len(merged.Stats))
	return &RunResult{
		RunID:            runID,
		Tables:           merged,
		SessionsIncluded: included,
		SessionsSkipped:  skipped,
	}, nil
}

func (s *PipelineService) processSession(table segment.SessionTable) sessionOutput {
	if table.SampleRate <= 0 {
		table.SampleRate = s.cfg.Epoch.SampleRate
	}
	windows, err := s.segmenter.Segment(table)
	if err != nil {
		return sessionOutput{err: err}
	}

	var out sessionOutput
	for _, w := range windows {
		records, spec, err := s.estimator.Records(w.Epoch, s.cfg.Bands)
		if err != nil {
			return sessionOutput{err: err}
		}
		assignment := s.labeler.Assign(w.RawBasic, w.RawStage)
		labels := assignment.Labels()

		out.records = append(out.records, records...)
		for _, r := range records {
			value := r.PowerLinear
			if s.cfg.Tests.Metric == "db" {
				value = r.PowerDB
			}
			// dB of zero power is NaN; such epochs cannot feed the tests.
			if math.IsNaN(value) {
				continue
			}
			out.rows = append(out.rows, statsadapter.Row{
				SessionID:  r.SessionID,
				EpochIndex: r.EpochIndex,
				BandName:   r.BandName,
				Labels:     labels,
				Value:      value,
			})
		}
		if s.cfg.Spectral.KeepPSD && spec != nil {
			out.spectra = append(out.spectra, labeledSpectrum{labels: labels, spec: *spec})
		}
	}
	return out
}

func toStatePairs(specs []config.PairSpec) []domstats.StatePair {
	pairs := make([]domstats.StatePair, 0, len(specs))
	for _, p := range specs {
		pairs = append(pairs, domstats.StatePair{
			StateA: state.Label(p.StateA),
			StateB: state.Label(p.StateB),
			Paired: p.Paired,
		})
	}
	return pairs
}
