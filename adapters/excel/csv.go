package excel

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"sleepband/domain/core"
	"sleepband/internal/aggregate"
	"sleepband/internal/errors"
	"sleepband/internal/logging"
)

// CSVWriter emits the same tables as the workbook as separate CSV files,
// the format plotting scripts actually consume. Floats use the shortest
// lossless representation so power and p-values round-trip exactly.
type CSVWriter struct {
	dir string
	log *logging.Logger
}

func NewCSVWriter(dir string, log *logging.Logger) *CSVWriter {
	if log == nil {
		log = logging.DefaultLogger
	}
	return &CSVWriter{dir: dir, log: log}
}

// WriteTables writes the linear and dB band-power tables, the statistics
// table, and the permutation block table.
func (w *CSVWriter) WriteTables(ctx context.Context, runID core.RunID, tables *aggregate.Tables) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return errors.WithCode(errors.CodeOutputError, errors.Wrap(err, "failed to create output directory"))
	}

	linear := [][]string{{"session_id", "epoch_index", "channel_id", "band_name", "power_linear", "coverage"}}
	db := [][]string{{"session_id", "epoch_index", "channel_id", "band_name", "power_db", "coverage"}}
	for _, r := range tables.BandPower {
		idx := strconv.Itoa(r.EpochIndex)
		linear = append(linear, []string{r.SessionID, idx, r.ChannelID, r.BandName, formatFloat(r.PowerLinear), string(r.Coverage)})
		db = append(db, []string{r.SessionID, idx, r.ChannelID, r.BandName, formatFloat(r.PowerDB), string(r.Coverage)})
	}
	if err := w.writeFile("frequency_bands_analysis_linear.csv", linear); err != nil {
		return err
	}
	if err := w.writeFile("frequency_bands_analysis_db.csv", db); err != nil {
		return err
	}

	statsRows := [][]string{{"band_name", "state_a", "state_b", "test_name", "n_a", "n_b", "statistic", "p_value", "effect_size", "block_structure", "skipped_reason"}}
	for _, r := range tables.Stats {
		statsRows = append(statsRows, []string{
			r.BandName, r.StateA, r.StateB, string(r.Test),
			strconv.Itoa(r.NA), strconv.Itoa(r.NB),
			formatFloat(r.Statistic), formatFloat(r.PValue), formatFloat(r.EffectSize),
			string(r.Blocks), string(r.Skipped),
		})
	}
	if err := w.writeFile("statistical_results.csv", statsRows); err != nil {
		return err
	}

	auditRows := [][]string{{"test_name", "band_name", "state_a", "state_b", "random_seed", "derived_seed", "n_permutations", "session_id", "epoch_index", "block", "label"}}
	for _, audit := range tables.Audits {
		for _, m := range audit.BlockAssignment {
			auditRows = append(auditRows, []string{
				string(audit.Test), audit.BandName, string(audit.Pair.StateA), string(audit.Pair.StateB),
				strconv.FormatInt(audit.BaseSeed, 10), strconv.FormatInt(audit.DerivedSeed, 10),
				strconv.Itoa(audit.NPermutations),
				m.SessionID.String(), strconv.Itoa(m.EpochIndex), m.Block, string(m.Label),
			})
		}
	}
	if err := w.writeFile("permutation_blocks.csv", auditRows); err != nil {
		return err
	}

	if len(tables.AvgPSD) > 0 {
		psdRows := [][]string{{"state", "frequency_hz", "psd"}}
		for _, r := range tables.AvgPSD {
			psdRows = append(psdRows, []string{r.Label, formatFloat(r.FreqHz), formatFloat(r.PSD)})
		}
		if err := w.writeFile("average_psd.csv", psdRows); err != nil {
			return err
		}
	}

	w.log.Info("wrote CSV tables to %s (run %s)", w.dir, runID)
	return nil
}

func (w *CSVWriter) writeFile(name string, rows [][]string) error {
	path := filepath.Join(w.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return errors.WithCode(errors.CodeOutputError, errors.Wrapf(err, "failed to create %s", path))
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.WriteAll(rows); err != nil {
		return errors.WithCode(errors.CodeOutputError, errors.Wrapf(err, "failed to write %s", path))
	}
	writer.Flush()
	return writer.Error()
}

// formatFloat renders the shortest string that parses back to the exact
// same float64. NaN renders as "NaN".
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
