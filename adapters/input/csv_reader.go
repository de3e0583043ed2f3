package input

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"sleepband/adapters/segment"
	"sleepband/domain/core"
	"sleepband/internal/errors"
	"sleepband/internal/logging"
)

// Defaults fill in session metadata the CSV itself does not carry.
type Defaults struct {
	SampleRate float64
	StartTime  time.Time
}

// Column aliases accepted in the header, case-insensitive. Exported
// recordings name these columns inconsistently across acquisition
// systems, so the reader is liberal about the vocabulary.
var (
	valueColumns   = []string{"value", "signal", "amplitude"}
	basicColumns   = []string{"state", "basic", "condition"}
	stageColumns   = []string{"stage", "sleep_stage", "hypnogram"}
	sessionColumns = []string{"session", "session_id"}
	channelColumns = []string{"channel", "channel_id"}
)

// ReadFile parses one CSV of sampled signal into session tables. A
// session column splits the file into multiple sessions; without one the
// whole file is a single session named after the file. Sample order
// within a session follows row order. Only the first column matching a
// signal alias is read; further matches are ignored with a warning, so a
// multi-channel export must be split into one file per channel.
func ReadFile(path string, d Defaults) ([]segment.SessionTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open input %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid,
			errors.Wrapf(err, "failed to read header of %s", path))
	}
	cols, err := resolveColumns(header, path)
	if err != nil {
		return nil, err
	}

	fallback := sessionName(path)
	tables := make(map[string]*segment.SessionTable)
	var order []string

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s line %d", path, line)
		}

		session := fallback
		if cols.session >= 0 {
			// An empty session cell keeps the file-derived name.
			if id, err := core.ParseSessionID(record[cols.session]); err == nil {
				session = string(id)
			}
		}
		t, ok := tables[session]
		if !ok {
			channel := core.ChannelID("channel-0")
			if cols.channel >= 0 {
				if id, err := core.ParseChannelID(record[cols.channel]); err == nil {
					channel = id
				}
			}
			t = &segment.SessionTable{
				SessionID:  core.SessionID(session),
				ChannelID:  channel,
				SampleRate: d.SampleRate,
				StartTime:  d.StartTime,
			}
			tables[session] = t
			order = append(order, session)
		}

		t.Samples = append(t.Samples, parseSample(record[cols.value]))
		if cols.basic >= 0 {
			t.RawBasic = append(t.RawBasic, strings.TrimSpace(record[cols.basic]))
		}
		if cols.stage >= 0 {
			t.RawStage = append(t.RawStage, strings.TrimSpace(record[cols.stage]))
		}
	}

	out := make([]segment.SessionTable, 0, len(order))
	for _, session := range order {
		out = append(out, *tables[session])
	}
	return out, nil
}

// ReadDir loads every *.csv in a directory, sorted by name so pooling
// order is stable.
func ReadDir(dir string, d Defaults) ([]segment.SessionTable, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", dir)
	}
	if len(matches) == 0 {
		return nil, errors.WithCode(errors.CodeConfigInvalid,
			errors.New(errors.CodeConfigInvalid, "no CSV files in "+dir))
	}
	sort.Strings(matches)

	var tables []segment.SessionTable
	for _, path := range matches {
		t, err := ReadFile(path, d)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t...)
	}
	return tables, nil
}

// Read dispatches on whether path is a file or a directory.
func Read(path string, d Defaults) ([]segment.SessionTable, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat input %s", path)
	}
	if info.IsDir() {
		return ReadDir(path, d)
	}
	return ReadFile(path, d)
}

type columnIndex struct {
	value   int
	basic   int
	stage   int
	session int
	channel int
}

func resolveColumns(header []string, path string) (columnIndex, error) {
	findAll := func(aliases []string) []int {
		var matches []int
		for i, name := range header {
			for _, alias := range aliases {
				if strings.EqualFold(strings.TrimSpace(name), alias) {
					matches = append(matches, i)
					break
				}
			}
		}
		return matches
	}
	find := func(aliases []string) int {
		if matches := findAll(aliases); len(matches) > 0 {
			return matches[0]
		}
		return -1
	}
	valueMatches := findAll(valueColumns)
	cols := columnIndex{
		value:   -1,
		basic:   find(basicColumns),
		stage:   find(stageColumns),
		session: find(sessionColumns),
		channel: find(channelColumns),
	}
	if len(valueMatches) == 0 {
		return cols, errors.WithCode(errors.CodeConfigInvalid,
			errors.New(errors.CodeConfigInvalid, "no value column in "+path))
	}
	cols.value = valueMatches[0]
	if len(valueMatches) > 1 {
		extra := make([]string, 0, len(valueMatches)-1)
		for _, i := range valueMatches[1:] {
			extra = append(extra, strings.TrimSpace(header[i]))
		}
		logging.DefaultLogger.Warn("%s: multiple signal columns, reading %q and ignoring %v",
			path, strings.TrimSpace(header[cols.value]), extra)
	}
	return cols, nil
}

// parseSample treats empty or unparseable cells as NaN, which the
// segmenter later discards at epoch granularity.
func parseSample(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func sessionName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
