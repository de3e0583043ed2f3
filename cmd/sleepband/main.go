package main

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"sleepband/adapters/excel"
	"sleepband/adapters/input"
	"sleepband/adapters/postgres"
	"sleepband/app"
	"sleepband/internal/config"
	apperrors "sleepband/internal/errors"
	"sleepband/internal/logging"
	"sleepband/ports"
)

func main() {
	// Missing .env is fine; environment overrides are optional.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "sleepband",
		Short: "Band-power extraction and state-conditioned statistics for long neural recordings",
	}
	rootCmd.AddCommand(newRunCmd(), newCheckCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var (
		configPath string
		outputDir  string
		sampleRate float64
		epochSec   float64
		seed       int64
	)

	cmd := &cobra.Command{
		Use:   "run [input]",
		Short: "Run the full pipeline over a CSV file or a directory of CSVs",
		Long: `Segment each session into fixed-length epochs, estimate per-epoch band
power with Welch's method, label epochs by state, run the comparison
battery, and write the result tables.

Example: sleepband run recordings/ --config sleepband.yaml --seed 12345`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if outputDir != "" {
				cfg.Output.Dir = outputDir
			}
			if sampleRate > 0 {
				cfg.Epoch.SampleRate = sampleRate
			}
			if epochSec > 0 {
				cfg.Epoch.LengthSeconds = epochSec
				if cfg.Epoch.StepSeconds > epochSec {
					cfg.Epoch.StepSeconds = epochSec
				}
			}
			if cmd.Flags().Changed("seed") {
				cfg.Tests.RandomSeed = seed
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runPipeline(cmd, cfg, args[0])
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML configuration")
	cmd.Flags().StringVar(&outputDir, "output", "", "Output directory (overrides config)")
	cmd.Flags().Float64Var(&sampleRate, "fs", 0, "Sample rate in Hz (overrides config)")
	cmd.Flags().Float64Var(&epochSec, "epoch-sec", 0, "Epoch length in seconds (overrides config)")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for permutation tests")

	return cmd
}

func newCheckCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print the resolved settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("epoch: %gs step %gs at %g Hz\n",
				cfg.Epoch.LengthSeconds, cfg.Epoch.StepSeconds, cfg.Epoch.SampleRate)
			fmt.Printf("bands:")
			for _, b := range cfg.Bands {
				fmt.Printf(" %s", b)
			}
			fmt.Println()
			fmt.Printf("tests: %v (seed %d, %d permutations, metric %s)\n",
				cfg.Tests.Enabled, cfg.Tests.RandomSeed, cfg.Tests.NPermutations, cfg.Tests.Metric)
			for _, test := range cfg.Tests.Enabled {
				fmt.Printf("  %s: min %d samples per group\n", test, cfg.Tests.MinFor(test))
			}
			fmt.Printf("output: %s\n", cfg.Output.Dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML configuration")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFile(path)
}

func runPipeline(cmd *cobra.Command, cfg *config.Config, inputPath string) error {
	log := logging.DefaultLogger
	ctx := cmd.Context()

	tables, err := input.Read(inputPath, input.Defaults{SampleRate: cfg.Epoch.SampleRate})
	if err != nil {
		return err
	}
	log.Info("loaded %d session(s) from %s", len(tables), inputPath)

	sinks := []ports.ResultSink{
		excel.NewWriter(cfg.Output.Dir, cfg.Output.ExcelFile, log),
	}
	if cfg.Output.CSV() {
		sinks = append(sinks, excel.NewCSVWriter(cfg.Output.Dir, log))
	}
	if cfg.Database.URL != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		repo := postgres.NewResultsRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, repo)
	}

	service := app.NewPipelineService(cfg, sinks, log)
	result, err := service.Run(ctx, tables)
	if err != nil {
		return fmt.Errorf("%s: %w", apperrors.GetCode(err), err)
	}

	fmt.Printf("run %s: %d sessions pooled, %d skipped, %d band-power rows, %d test results\n",
		result.RunID, result.SessionsIncluded, result.SessionsSkipped,
		len(result.Tables.BandPower), len(result.Tables.Stats))
	return nil
}
