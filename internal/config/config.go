package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"sleepband/domain/band"
	"sleepband/domain/core"
	"sleepband/domain/state"
	"sleepband/domain/stats"
	"sleepband/internal/errors"
)

// Config represents the complete pipeline configuration
type Config struct {
	Epoch    EpochConfig       `yaml:"epoch"`
	Spectral SpectralConfig    `yaml:"spectral"`
	Bands    []band.Definition `yaml:"bands"`
	States   StateConfig       `yaml:"states"`
	Tests    TestConfig        `yaml:"tests"`
	Output   OutputConfig      `yaml:"output"`
	Database DatabaseConfig    `yaml:"database"`
}

// EpochConfig holds segmentation settings
type EpochConfig struct {
	// LengthSeconds is the fixed epoch duration. Default 3.0.
	LengthSeconds float64 `yaml:"length_seconds"`
	// StepSeconds is the hop between epoch starts. 0 means non-overlapping
	// (step = length).
	StepSeconds float64 `yaml:"step_seconds"`
	// SampleRate in Hz when the input table carries no rate metadata.
	SampleRate float64 `yaml:"sample_rate"`
	// DropTransitionEpochs discards epochs whose state annotation changes
	// mid-window. Default true.
	DropTransitionEpochs *bool `yaml:"drop_transition_epochs"`
}

func (c EpochConfig) DropTransitions() bool {
	if c.DropTransitionEpochs == nil {
		return true
	}
	return *c.DropTransitionEpochs
}

// SpectralConfig holds Welch PSD settings
type SpectralConfig struct {
	// SegmentLength is nperseg in samples; 0 means the full epoch.
	SegmentLength int `yaml:"segment_length"`
	// OverlapFraction between Welch sub-windows. Default 0.5.
	OverlapFraction float64 `yaml:"overlap_fraction"`
	// KeepPSD retains each epoch's full spectrum so averaged per-state
	// PSDs can be exported.
	KeepPSD bool `yaml:"keep_psd"`
}

// StateMode selects which state labels produce comparison pairs.
type StateMode string

const (
	ModeAll          StateMode = "all"
	ModeBasicOnly    StateMode = "basic_only"
	ModeCombinedOnly StateMode = "combined_only"
)

// PairSpec is an explicit state-pair selection.
type PairSpec struct {
	StateA string `yaml:"state_a"`
	StateB string `yaml:"state_b"`
	Paired bool   `yaml:"paired"`
}

// StateConfig holds state labeling and pair selection settings
type StateConfig struct {
	Mode StateMode `yaml:"mode"`
	// BasicMap maps raw device-column values to "state0"/"state1".
	// Unmapped values label the epoch Unknown.
	BasicMap map[string]string `yaml:"basic_map"`
	// StageMap maps raw sleep-stage values to coarse categories
	// NREM/REM/Wake. Unmapped values yield no combined state.
	StageMap map[string]string `yaml:"stage_map"`
	// Include, when non-empty, overrides mode-derived pairs.
	Include []PairSpec `yaml:"include"`
	// Exclude filters pairs (by state_a/state_b, order-insensitive)
	// after include/mode resolution.
	Exclude []PairSpec `yaml:"exclude"`
}

// TestConfig enumerates enabled tests and their parameters
type TestConfig struct {
	Enabled       []stats.TestName `yaml:"enabled"`
	NPermutations int              `yaml:"n_permutations"`
	RandomSeed    int64            `yaml:"random_seed"`
	// MinSamples gates each test on min(n_a, n_b). Default 5 per test.
	MinSamples map[stats.TestName]int `yaml:"min_samples"`
	// Metric selects which scale feeds the tests: "linear" or "db".
	Metric string `yaml:"metric"`
}

// MinFor returns the effective minimum sample size for a test.
func (c TestConfig) MinFor(t stats.TestName) int {
	if n, ok := c.MinSamples[t]; ok && n > 0 {
		return n
	}
	return 5
}

// OutputConfig holds result file destinations
type OutputConfig struct {
	Dir       string `yaml:"dir"`
	ExcelFile string `yaml:"excel_file"`
	WriteCSV  *bool  `yaml:"write_csv"`
}

func (c OutputConfig) CSV() bool {
	if c.WriteCSV == nil {
		return true
	}
	return *c.WriteCSV
}

// DatabaseConfig holds optional PostgreSQL persistence settings
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// Default sleep-stage vocabulary: numeric encodings collapse to coarse
// categories (N1/N2/N3 are all NREM).
func defaultStageMap() map[string]string {
	return map[string]string{
		"2": "NREM", "3": "NREM", "4": "NREM",
		"5": "REM", "6": "Wake",
		"N1": "NREM", "N2": "NREM", "N3": "NREM",
		"REM": "REM", "Wake": "Wake",
	}
}

func defaultBasicMap() map[string]string {
	return map[string]string{
		"0": "state0",
		"1": "state1",
	}
}

// LoadFile reads a YAML config file, applies environment overrides, fills
// defaults, and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid,
			errors.Wrapf(err, "failed to parse config file %s", path))
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a validated configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SLEEPBAND_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Epoch.SampleRate = f
		}
	}
	if v := os.Getenv("SLEEPBAND_EPOCH_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Epoch.LengthSeconds = f
		}
	}
	if v := os.Getenv("SLEEPBAND_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Tests.RandomSeed = n
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("SLEEPBAND_OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
}

func (c *Config) applyDefaults() {
	if c.Epoch.LengthSeconds <= 0 {
		c.Epoch.LengthSeconds = 3.0
	}
	if c.Epoch.StepSeconds <= 0 {
		c.Epoch.StepSeconds = c.Epoch.LengthSeconds
	}
	if c.Epoch.SampleRate <= 0 {
		c.Epoch.SampleRate = 250.0
	}
	if c.Spectral.OverlapFraction <= 0 || c.Spectral.OverlapFraction >= 1 {
		c.Spectral.OverlapFraction = 0.5
	}
	if len(c.Bands) == 0 {
		c.Bands = []band.Definition{
			{Name: "delta", LowHz: 0.5, HighHz: 4},
			{Name: "theta", LowHz: 4, HighHz: 8},
			{Name: "alpha", LowHz: 8, HighHz: 13},
			{Name: "beta", LowHz: 13, HighHz: 30},
			{Name: "gamma", LowHz: 30, HighHz: 100},
		}
	}
	if c.States.Mode == "" {
		c.States.Mode = ModeBasicOnly
	}
	if len(c.States.BasicMap) == 0 {
		c.States.BasicMap = defaultBasicMap()
	}
	if len(c.States.StageMap) == 0 {
		c.States.StageMap = defaultStageMap()
	}
	if len(c.Tests.Enabled) == 0 {
		c.Tests.Enabled = append([]stats.TestName(nil), stats.AllTests...)
	}
	if c.Tests.NPermutations <= 0 {
		c.Tests.NPermutations = 1000
	}
	if c.Tests.RandomSeed == 0 {
		c.Tests.RandomSeed = 42
	}
	if c.Tests.Metric == "" {
		c.Tests.Metric = "linear"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "results"
	}
	if c.Output.ExcelFile == "" {
		c.Output.ExcelFile = "frequency_bands_analysis.xlsx"
	}
}

// Validate fails fast on configuration-level errors, before any
// computation starts.
func (c *Config) Validate() error {
	if err := band.ValidateDefinitions(c.Bands); err != nil {
		return errors.WithCode(errors.CodeInvalidBand, err)
	}
	if len(c.Tests.Enabled) == 0 {
		return errors.WithCode(errors.CodeConfigInvalid,
			core.NewConfigurationError("no tests enabled"))
	}
	seen := make(map[stats.TestName]bool)
	for _, t := range c.Tests.Enabled {
		switch t {
		case stats.TestTTest, stats.TestWilcoxon, stats.TestPermutation, stats.TestBlockedPermutation:
		default:
			return errors.WithCode(errors.CodeConfigInvalid,
				core.NewConfigurationError("unknown test "+string(t)))
		}
		if seen[t] {
			return errors.WithCode(errors.CodeConfigInvalid,
				core.NewConfigurationError("test enabled twice: "+string(t)))
		}
		seen[t] = true
	}
	switch c.States.Mode {
	case ModeAll, ModeBasicOnly, ModeCombinedOnly:
	default:
		return errors.WithCode(errors.CodeConfigInvalid,
			core.NewConfigurationError("unknown state mode "+string(c.States.Mode)))
	}
	switch c.Tests.Metric {
	case "linear", "db":
	default:
		return errors.WithCode(errors.CodeConfigInvalid,
			core.NewConfigurationError("metric must be linear or db, got "+c.Tests.Metric))
	}
	for _, p := range c.States.Include {
		if err := validatePairSpec(p); err != nil {
			return err
		}
	}
	for _, p := range c.States.Exclude {
		if err := validatePairSpec(p); err != nil {
			return err
		}
	}
	return nil
}

func validatePairSpec(p PairSpec) error {
	for _, s := range []string{p.StateA, p.StateB} {
		if !knownLabel(s) {
			return errors.WithCode(errors.CodeConfigInvalid,
				fmt.Errorf("%w: pair %s vs %s: %w: %q",
					core.ErrConfiguration, p.StateA, p.StateB, core.ErrUnknownState, s))
		}
	}
	return nil
}

// knownLabel reports whether s belongs to the closed state vocabulary:
// the basic states (unknown included, since it may be compared when
// asked for explicitly) and every coarse-stage crossing.
func knownLabel(s string) bool {
	switch state.Basic(s) {
	case state.State0, state.State1, state.BasicUnknown:
		return true
	}
	for _, stage := range []state.CoarseStage{state.StageNREM, state.StageREM, state.StageWake} {
		for _, basic := range []state.Basic{state.State0, state.State1} {
			if s == string(state.NewCombined(stage, basic)) {
				return true
			}
		}
	}
	return false
}
