package version

import (
	"testing"

	"github.com/fatih/color"
)

func TestColoredWithoutColorIsPlain(t *testing.T) {
	orig := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = orig }()

	if got := Colored(); got != Version {
		t.Fatalf("Colored() = %q, want %q", got, Version)
	}
}

func TestBanner(t *testing.T) {
	origNoColor, origVersion, origCommit, origDate := color.NoColor, Version, GitCommit, BuildDate
	defer func() {
		color.NoColor, Version, GitCommit, BuildDate = origNoColor, origVersion, origCommit, origDate
	}()
	color.NoColor = true

	tests := []struct {
		version, commit, date string
		want                  string
	}{
		{"1.2.3", "", "", "fyrc 1.2.3"},
		{"1.2.3-rc.1", "abc123", "", "fyrc 1.2.3-rc.1 (abc123)"},
		{"0.1.0", "abc123", "2024-01-15", "fyrc 0.1.0 (abc123) built 2024-01-15"},
		{"dev", "", "", "fyrc dev"},
	}
	for _, tt := range tests {
		Version, GitCommit, BuildDate = tt.version, tt.commit, tt.date
		if got := Banner(); got != tt.want {
			t.Errorf("Banner() = %q, want %q", got, tt.want)
		}
	}
}
