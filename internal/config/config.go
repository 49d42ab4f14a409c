// Package config loads and validates the FSM tuning table of spec.md §3,
// grounded on GVCUTV-NRG-CHAMP's services/mape/internal/config
// (key=value properties file plus environment-variable overrides), scaled
// down from that package's per-zone property map to the single flat
// tuning table every sentinel line shares.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
)

// envPrefix namespaces every tuning override so it can't collide with an
// unrelated environment variable on the host.
const envPrefix = "SENTINEL_"

// Load builds a logic.Config starting from spec.md §3's defaults,
// overridden first by the key=value tuning file at path (skipped
// entirely if path is empty) and then by SENTINEL_-prefixed environment
// variables, and returns a *logic.ConfigInvalid if the result fails
// validation.
func Load(path string) (logic.Config, error) {
	cfg := logic.DefaultConfig()
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return logic.Config{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return logic.Config{}, err
	}
	return cfg, nil
}

// Reload re-reads the tuning file and environment, bumping Version by one
// over base so the FSM Worker can tell a reloaded config apart from the
// one it's running, per spec.md's hot-reload-at-next-tick contract.
func Reload(path string, base logic.Config) (logic.Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return logic.Config{}, err
	}
	cfg.Version = base.Version + 1
	return cfg, nil
}

func applyFile(cfg *logic.Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: cannot open tuning file %s: %w", path, err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("config: %s:%d: expected key=value, got %q", path, lineNo, line)
		}
		if err := setField(cfg, strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("config: %s:%d: %w", path, lineNo, err)
		}
	}
	return s.Err()
}

func applyEnv(cfg *logic.Config) {
	for _, key := range tuningKeys {
		v := os.Getenv(envPrefix + strings.ToUpper(key))
		if v == "" {
			continue
		}
		// Environment overrides are best-effort: setField's error for an
		// unparseable value is discarded here, and nothing logs it.
		_ = setField(cfg, key, v)
	}
}

// tuningKeys lists every key setField understands, in spec.md §3's
// table order, and is the source of truth for which SENTINEL_ env vars
// are recognized.
var tuningKeys = []string{
	"sampling_period_s",
	"tol_f",
	"delta_ramp_f",
	"dt_min_f_per_min",
	"t_stable_s",
	"delta_off_f",
	"t_off_sustain_s",
	"s_min_f",
	"t_sp_sustain_s",
	"max_ramp_s",
	"max_stage_s",
	"quiet_window_s",
	"dt_quiet_f_per_min",
	"allow_main_without_preheat",
	"continue_after_fault_if_next_stage_ramps",
}

func setField(cfg *logic.Config, key, value string) error {
	switch key {
	case "sampling_period_s":
		d, err := parseSeconds(value)
		if err != nil {
			return err
		}
		cfg.SamplingPeriod = d
	case "tol_f":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		cfg.TolF = f
	case "delta_ramp_f":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		cfg.DeltaRampF = f
	case "dt_min_f_per_min":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		cfg.DTMinFPerMin = f
	case "t_stable_s":
		d, err := parseSeconds(value)
		if err != nil {
			return err
		}
		cfg.TStable = d
	case "delta_off_f":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		cfg.DeltaOffF = f
	case "t_off_sustain_s":
		d, err := parseSeconds(value)
		if err != nil {
			return err
		}
		cfg.TOffSustain = d
	case "s_min_f":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		cfg.SMinF = f
	case "t_sp_sustain_s":
		d, err := parseSeconds(value)
		if err != nil {
			return err
		}
		cfg.TSpSustain = d
	case "max_ramp_s":
		d, err := parseSeconds(value)
		if err != nil {
			return err
		}
		cfg.MaxRamp = d
	case "max_stage_s":
		d, err := parseSeconds(value)
		if err != nil {
			return err
		}
		cfg.MaxStage = d
	case "quiet_window_s":
		d, err := parseSeconds(value)
		if err != nil {
			return err
		}
		cfg.QuietWindow = d
	case "dt_quiet_f_per_min":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		cfg.DTQuietFPerMin = f
	case "allow_main_without_preheat":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		cfg.AllowMainWithoutPreheat = b
	case "continue_after_fault_if_next_stage_ramps":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		cfg.ContinueAfterFaultIfNextStageRamps = b
	default:
		return fmt.Errorf("unknown tuning key %q", key)
	}
	return nil
}

func parseSeconds(value string) (time.Duration, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}

// ParseZones splits a comma-separated zone list from a CLI flag into
// logic.Zone values, in the order given. An empty string yields
// logic.CanonicalOrder (every zone enabled).
func ParseZones(raw string) ([]logic.Zone, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return append([]logic.Zone(nil), logic.CanonicalOrder...), nil
	}
	known := make(map[logic.Zone]bool, len(logic.CanonicalOrder))
	for _, z := range logic.CanonicalOrder {
		known[z] = true
	}
	var zones []logic.Zone
	for _, part := range strings.Split(raw, ",") {
		z := logic.Zone(strings.TrimSpace(part))
		if z == "" {
			continue
		}
		if !known[z] {
			return nil, fmt.Errorf("config: unknown zone %q", z)
		}
		zones = append(zones, z)
	}
	if len(zones) == 0 {
		return nil, fmt.Errorf("config: zone list must not be empty")
	}
	return zones, nil
}
