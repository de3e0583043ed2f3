package input

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestReadFileSingleSession tests a file without a session column
func TestReadFileSingleSession(t *testing.T) {
	path := writeCSV(t, "night01.csv", `value,state,stage
0.5,0,2
0.6,0,2
0.7,1,5
`)
	tables, err := ReadFile(path, Defaults{SampleRate: 250})
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(tables))
	}

	tab := tables[0]
	if tab.SessionID.String() != "night01" {
		t.Errorf("Session should be named after the file, got %q", tab.SessionID)
	}
	if tab.SampleRate != 250 {
		t.Errorf("Sample rate = %g, want the default 250", tab.SampleRate)
	}
	if len(tab.Samples) != 3 || tab.Samples[1] != 0.6 {
		t.Errorf("Unexpected samples %v", tab.Samples)
	}
	if len(tab.RawBasic) != 3 || tab.RawBasic[2] != "1" {
		t.Errorf("Unexpected basic column %v", tab.RawBasic)
	}
	if len(tab.RawStage) != 3 || tab.RawStage[2] != "5" {
		t.Errorf("Unexpected stage column %v", tab.RawStage)
	}
}

// TestReadFileMultiSession tests splitting on the session column
func TestReadFileMultiSession(t *testing.T) {
	path := writeCSV(t, "pooled.csv", `session,channel,value,state
s1,ch0,1.0,0
s1,ch0,1.1,0
s2,ch1,2.0,1
s1,ch0,1.2,1
`)
	tables, err := ReadFile(path, Defaults{SampleRate: 100})
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(tables))
	}
	if tables[0].SessionID.String() != "s1" || tables[1].SessionID.String() != "s2" {
		t.Errorf("Sessions should keep first-seen order, got %s, %s",
			tables[0].SessionID, tables[1].SessionID)
	}
	if len(tables[0].Samples) != 3 {
		t.Errorf("s1 should have 3 samples across interleaved rows, got %d", len(tables[0].Samples))
	}
	if tables[1].ChannelID.String() != "ch1" {
		t.Errorf("s2 channel = %s, want ch1", tables[1].ChannelID)
	}
}

// TestReadFileMultipleSignalColumns tests that only the first matching
// signal column is read
func TestReadFileMultipleSignalColumns(t *testing.T) {
	path := writeCSV(t, "twochan.csv", `value,signal,state
1.0,9.0,0
2.0,8.0,0
`)
	tables, err := ReadFile(path, Defaults{SampleRate: 100})
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	s := tables[0].Samples
	if len(s) != 2 || s[0] != 1.0 || s[1] != 2.0 {
		t.Errorf("Expected the first signal column only, got %v", s)
	}
}

// TestReadFileEmptySessionCell tests falling back to the file-derived name
func TestReadFileEmptySessionCell(t *testing.T) {
	path := writeCSV(t, "night02.csv", `session,value
s1,1.0
,2.0
s1,3.0
`)
	tables, err := ReadFile(path, Defaults{SampleRate: 100})
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(tables))
	}
	if tables[0].SessionID.String() != "s1" || len(tables[0].Samples) != 2 {
		t.Errorf("s1 = %v with %d samples", tables[0].SessionID, len(tables[0].Samples))
	}
	if tables[1].SessionID.String() != "night02" {
		t.Errorf("Empty session cells should fall back to the file name, got %q", tables[1].SessionID)
	}
}

// TestReadFileColumnAliases tests the liberal header vocabulary
func TestReadFileColumnAliases(t *testing.T) {
	path := writeCSV(t, "aliased.csv", `Signal,Condition,Hypnogram
0.1,1,REM
0.2,1,REM
`)
	tables, err := ReadFile(path, Defaults{SampleRate: 100})
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	tab := tables[0]
	if tab.Samples[0] != 0.1 || tab.RawBasic[0] != "1" || tab.RawStage[0] != "REM" {
		t.Errorf("Aliased columns misparsed: %v %v %v", tab.Samples, tab.RawBasic, tab.RawStage)
	}
}

// TestReadFileBadCells tests that unparseable sample cells become NaN
func TestReadFileBadCells(t *testing.T) {
	path := writeCSV(t, "gaps.csv", `value
1.5
""
nan
2.5
`)
	tables, err := ReadFile(path, Defaults{SampleRate: 100})
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	s := tables[0].Samples
	if len(s) != 4 {
		t.Fatalf("Expected 4 samples, got %d", len(s))
	}
	if !math.IsNaN(s[1]) {
		t.Errorf("Empty cell should parse as NaN, got %g", s[1])
	}
	if !math.IsNaN(s[2]) {
		t.Errorf("nan cell should parse as NaN, got %g", s[2])
	}
}

// TestReadFileMissingValueColumn tests the header validation failure
func TestReadFileMissingValueColumn(t *testing.T) {
	path := writeCSV(t, "bad.csv", `time,state
1,0
`)
	_, err := ReadFile(path, Defaults{})
	if err == nil {
		t.Fatal("Expected error for a file without a value column")
	}
}

// TestReadDir tests loading a directory of per-session files in sorted order
func TestReadDir(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"b.csv", "a.csv"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("value\n1\n2\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	tables, err := ReadDir(dir, Defaults{SampleRate: 100})
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(tables))
	}
	if tables[0].SessionID.String() != "a" || tables[1].SessionID.String() != "b" {
		t.Errorf("Sessions should load in sorted file order, got %s, %s",
			tables[0].SessionID, tables[1].SessionID)
	}
}

// TestReadDirEmpty tests the no-input failure
func TestReadDirEmpty(t *testing.T) {
	if _, err := ReadDir(t.TempDir(), Defaults{}); err == nil {
		t.Error("Expected error for a directory without CSV files")
	}
}
