package main

import (
	"testing"

	"github.com/vulcan-sentinel/sentinel-core/internal/config"
	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
	"github.com/vulcan-sentinel/sentinel-core/internal/source"
)

func TestBuildSourceFake(t *testing.T) {
	src, err := buildSource(runParams{sourceKind: "fake"})
	if err != nil {
		t.Fatalf("buildSource: %v", err)
	}
	if _, ok := src.(*source.Fake); !ok {
		t.Errorf("expected *source.Fake, got %T", src)
	}
}

func TestBuildSourceModbus(t *testing.T) {
	src, err := buildSource(runParams{
		sourceKind: "modbus", modbusAddr: "127.0.0.1:502", modbusUnit: 1,
		preheatTemp: 0, preheatSP: 2, mainTemp: 4, mainSP: 6, ribTemp: 8, ribSP: 10,
	})
	if err != nil {
		t.Fatalf("buildSource: %v", err)
	}
	if _, ok := src.(*source.Modbus); !ok {
		t.Errorf("expected *source.Modbus, got %T", src)
	}
}

func TestBuildSourceUnknownKind(t *testing.T) {
	if _, err := buildSource(runParams{sourceKind: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown source kind")
	}
}

func TestRunRejectsUnknownZone(t *testing.T) {
	err := run(runParams{
		lineID: "line-1", zones: "boiler-room", sourceKind: "fake", httpAddr: "",
		broker: "tcp://unreachable-host-for-test:1883",
	})
	if err == nil {
		t.Fatal("expected error for unknown zone before any network dial is attempted")
	}
}

func TestRunRejectsInvalidTuningFile(t *testing.T) {
	err := run(runParams{
		lineID: "line-1", zones: "", sourceKind: "fake",
		tuningPath: "/nonexistent/tuning.properties",
	})
	if err == nil {
		t.Fatal("expected error for a missing tuning file")
	}
}

func TestRunParamsZonesDefaultToCanonicalOrder(t *testing.T) {
	// run() hands the --zones value to config.ParseZones; this confirms
	// that the flag's empty value (the runParams zero value) yields every
	// zone in canonical order rather than failing closed.
	if len(logic.CanonicalOrder) == 0 {
		t.Fatal("canonical order must not be empty")
	}
	zones, err := config.ParseZones(runParams{}.zones)
	if err != nil {
		t.Fatalf("ParseZones: %v", err)
	}
	if len(zones) != len(logic.CanonicalOrder) {
		t.Fatalf("zones = %v, want %v", zones, logic.CanonicalOrder)
	}
	for i, z := range logic.CanonicalOrder {
		if zones[i] != z {
			t.Errorf("zones[%d] = %v, want %v", i, zones[i], z)
		}
	}
}
