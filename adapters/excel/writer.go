package excel

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"sleepband/domain/core"
	"sleepband/internal/aggregate"
	"sleepband/internal/errors"
	"sleepband/internal/logging"
)

// Writer produces the analysis workbook: one sheet per output table.
// Column order is fixed so downstream plotting can rely on it.
type Writer struct {
	dir      string
	fileName string
	log      *logging.Logger
}

func NewWriter(dir, fileName string, log *logging.Logger) *Writer {
	if log == nil {
		log = logging.DefaultLogger
	}
	return &Writer{dir: dir, fileName: fileName, log: log}
}

var bandPowerHeader = []string{"session_id", "epoch_index", "channel_id", "band_name", "power_linear", "power_db", "coverage"}
var statsHeader = []string{"band_name", "state_a", "state_b", "test_name", "n_a", "n_b", "statistic", "p_value", "effect_size", "block_structure", "skipped_reason"}
var summaryHeader = []string{"band_name", "state", "n", "mean", "std_dev", "median", "q25", "q75"}
var auditHeader = []string{"test_name", "band_name", "state_a", "state_b", "random_seed", "derived_seed", "n_permutations", "session_id", "epoch_index", "block", "label"}
var avgPSDHeader = []string{"state", "frequency_hz", "psd"}

// WriteTables writes the workbook to dir/fileName.
func (w *Writer) WriteTables(ctx context.Context, runID core.RunID, tables *aggregate.Tables) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return errors.WithCode(errors.CodeOutputError, errors.Wrap(err, "failed to create output directory"))
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := w.writeBandPower(f, tables); err != nil {
		return err
	}
	if err := w.writeStats(f, tables); err != nil {
		return err
	}
	if err := w.writeSummary(f, tables); err != nil {
		return err
	}
	if err := w.writeAudits(f, tables); err != nil {
		return err
	}
	if err := w.writeAvgPSD(f, tables); err != nil {
		return err
	}

	path := filepath.Join(w.dir, w.fileName)
	if err := f.SaveAs(path); err != nil {
		return errors.WithCode(errors.CodeOutputError, errors.Wrapf(err, "failed to save workbook %s", path))
	}
	w.log.Info("wrote workbook %s (run %s)", path, runID)
	return nil
}

func (w *Writer) writeBandPower(f *excelize.File, tables *aggregate.Tables) error {
	sheet := "Band Power"
	if err := renameDefault(f, sheet); err != nil {
		return err
	}
	if err := writeHeader(f, sheet, bandPowerHeader); err != nil {
		return err
	}
	for i, r := range tables.BandPower {
		row := i + 2
		cells := []interface{}{r.SessionID, r.EpochIndex, r.ChannelID, r.BandName, r.PowerLinear, cellValue(r.PowerDB), string(r.Coverage)}
		if err := setRow(f, sheet, row, cells); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeStats(f *excelize.File, tables *aggregate.Tables) error {
	sheet := "Statistics"
	if _, err := f.NewSheet(sheet); err != nil {
		return wrapSheet(err, sheet)
	}
	if err := writeHeader(f, sheet, statsHeader); err != nil {
		return err
	}
	for i, r := range tables.Stats {
		row := i + 2
		cells := []interface{}{
			r.BandName, r.StateA, r.StateB, string(r.Test), r.NA, r.NB,
			cellValue(r.Statistic), cellValue(r.PValue), cellValue(r.EffectSize),
			string(r.Blocks), string(r.Skipped),
		}
		if err := setRow(f, sheet, row, cells); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeSummary(f *excelize.File, tables *aggregate.Tables) error {
	sheet := "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return wrapSheet(err, sheet)
	}
	if err := writeHeader(f, sheet, summaryHeader); err != nil {
		return err
	}
	for i, r := range tables.Summary {
		row := i + 2
		cells := []interface{}{r.BandName, r.Label, r.N, cellValue(r.Mean), cellValue(r.StdDev), cellValue(r.Median), cellValue(r.Q25), cellValue(r.Q75)}
		if err := setRow(f, sheet, row, cells); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeAudits(f *excelize.File, tables *aggregate.Tables) error {
	sheet := "Permutation Audit"
	if _, err := f.NewSheet(sheet); err != nil {
		return wrapSheet(err, sheet)
	}
	if err := writeHeader(f, sheet, auditHeader); err != nil {
		return err
	}
	row := 2
	for _, audit := range tables.Audits {
		for _, m := range audit.BlockAssignment {
			cells := []interface{}{
				string(audit.Test), audit.BandName, string(audit.Pair.StateA), string(audit.Pair.StateB),
				audit.BaseSeed, audit.DerivedSeed, audit.NPermutations,
				m.SessionID.String(), m.EpochIndex, m.Block, string(m.Label),
			}
			if err := setRow(f, sheet, row, cells); err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

// writeAvgPSD adds the averaged-spectrum sheet only when spectra were
// retained; an empty sheet would just confuse plotting scripts.
func (w *Writer) writeAvgPSD(f *excelize.File, tables *aggregate.Tables) error {
	if len(tables.AvgPSD) == 0 {
		return nil
	}
	sheet := "Average PSD"
	if _, err := f.NewSheet(sheet); err != nil {
		return wrapSheet(err, sheet)
	}
	if err := writeHeader(f, sheet, avgPSDHeader); err != nil {
		return err
	}
	for i, r := range tables.AvgPSD {
		cells := []interface{}{r.Label, r.FreqHz, cellValue(r.PSD)}
		if err := setRow(f, sheet, i+2, cells); err != nil {
			return err
		}
	}
	return nil
}

func renameDefault(f *excelize.File, name string) error {
	if err := f.SetSheetName("Sheet1", name); err != nil {
		return wrapSheet(err, name)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, header []string) error {
	for col, name := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return wrapSheet(err, sheet)
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return wrapSheet(err, sheet)
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	for col, v := range cells {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return wrapSheet(err, sheet)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return wrapSheet(err, sheet)
		}
	}
	return nil
}

// cellValue keeps non-finite floats out of numeric cells; excelize cannot
// store NaN/Inf, so they are written as their string forms.
func cellValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprintf("%v", v)
	}
	return v
}

func wrapSheet(err error, sheet string) error {
	return errors.WithCode(errors.CodeOutputError, errors.Wrapf(err, "failed writing sheet %s", sheet))
}
