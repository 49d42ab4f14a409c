package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
)

func writeTuningFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.properties")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadWithNoPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != logic.DefaultConfig() {
		t.Errorf("expected default config, got %+v", cfg)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeTuningFile(t, `
# tuning overrides
sampling_period_s = 5
tol_f=10
allow_main_without_preheat = false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SamplingPeriod != 5*time.Second {
		t.Errorf("SamplingPeriod = %v, want 5s", cfg.SamplingPeriod)
	}
	if cfg.TolF != 10 {
		t.Errorf("TolF = %v, want 10", cfg.TolF)
	}
	if cfg.AllowMainWithoutPreheat {
		t.Error("AllowMainWithoutPreheat should be false")
	}
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := writeTuningFile(t, "not-a-key-value-line\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed tuning line")
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeTuningFile(t, "bogus_key=1\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown tuning key")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/tuning.properties"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadValidatesResult(t *testing.T) {
	path := writeTuningFile(t, "max_stage_s=1\nmax_ramp_s=900\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error: max_stage_s must exceed max_ramp_s")
	} else if _, ok := err.(*logic.ConfigInvalid); !ok {
		t.Errorf("expected *logic.ConfigInvalid, got %T", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeTuningFile(t, "tol_f=10\n")
	t.Setenv("SENTINEL_TOL_F", "15")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TolF != 15 {
		t.Errorf("TolF = %v, want 15 (env should win over file)", cfg.TolF)
	}
}

func TestReloadBumpsVersion(t *testing.T) {
	path := writeTuningFile(t, "tol_f=10\n")
	base := logic.DefaultConfig()
	base.Version = 3

	reloaded, err := Reload(path, base)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if reloaded.Version != 4 {
		t.Errorf("Version = %d, want 4", reloaded.Version)
	}
	if reloaded.TolF != 10 {
		t.Errorf("TolF = %v, want 10", reloaded.TolF)
	}
}

func TestParseZonesEmptyYieldsCanonicalOrder(t *testing.T) {
	zones, err := ParseZones("")
	if err != nil {
		t.Fatalf("ParseZones: %v", err)
	}
	if len(zones) != len(logic.CanonicalOrder) {
		t.Fatalf("expected %d zones, got %d", len(logic.CanonicalOrder), len(zones))
	}
}

func TestParseZonesFiltersAndPreservesOrder(t *testing.T) {
	zones, err := ParseZones("rib, preheat")
	if err != nil {
		t.Fatalf("ParseZones: %v", err)
	}
	want := []logic.Zone{logic.ZoneRib, logic.ZonePreheat}
	if len(zones) != len(want) {
		t.Fatalf("got %v, want %v", zones, want)
	}
	for i := range want {
		if zones[i] != want[i] {
			t.Errorf("zones[%d] = %q, want %q", i, zones[i], want[i])
		}
	}
}

func TestParseZonesRejectsUnknownZone(t *testing.T) {
	if _, err := ParseZones("furnace"); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}

func TestParseZonesRejectsEmptyList(t *testing.T) {
	if _, err := ParseZones(" , ,"); err == nil {
		t.Fatal("expected error for effectively empty zone list")
	}
}
