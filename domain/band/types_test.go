package band

import (
	"testing"

	"sleepband/domain/core"
)

// TestDefinitionValidate tests band edge validation
func TestDefinitionValidate(t *testing.T) {
	cases := []struct {
		name    string
		def     Definition
		wantErr bool
	}{
		{"valid band", Definition{Name: "alpha", LowHz: 8, HighHz: 13}, false},
		{"zero low edge", Definition{Name: "delta", LowHz: 0, HighHz: 4}, false},
		{"empty name", Definition{LowHz: 1, HighHz: 2}, true},
		{"inverted edges", Definition{Name: "bad", LowHz: 13, HighHz: 8}, true},
		{"equal edges", Definition{Name: "bad", LowHz: 8, HighHz: 8}, true},
		{"negative low", Definition{Name: "bad", LowHz: -1, HighHz: 4}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.def.Validate()
			if tc.wantErr && err == nil {
				t.Errorf("Expected error for %+v", tc.def)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Unexpected error for %+v: %v", tc.def, err)
			}
		})
	}
}

// TestValidateDefinitions tests configuration-level band checks
func TestValidateDefinitions(t *testing.T) {
	if err := ValidateDefinitions(nil); err == nil {
		t.Error("Empty band list should be rejected")
	}

	dup := []Definition{
		{Name: "alpha", LowHz: 8, HighHz: 13},
		{Name: "alpha", LowHz: 13, HighHz: 30},
	}
	if err := ValidateDefinitions(dup); err == nil {
		t.Error("Duplicate band names should be rejected")
	}

	// Overlapping ranges with distinct names are a legitimate configuration.
	overlap := []Definition{
		{Name: "broad", LowHz: 1, HighHz: 40},
		{Name: "alpha", LowHz: 8, HighHz: 13},
	}
	if err := ValidateDefinitions(overlap); err != nil {
		t.Errorf("Overlapping ranges should be allowed: %v", err)
	}

	bad := []Definition{{Name: "bad", LowHz: 5, HighHz: 2}}
	err := ValidateDefinitions(bad)
	if err == nil {
		t.Fatal("Malformed band should be rejected")
	}
	if !core.IsFatalConfigError(err) {
		t.Errorf("Band validation failure should be a fatal config error, got %v", err)
	}
}
