// Command sentinel-worker monitors one production line's heating cycle
// and publishes stage/run events to MQTT. Grounded on
// sweeney-boiler-sensor's cmd/boiler-sensor/main.go: flag-based CLI,
// signal handling, startup/shutdown system events, an optional HTTP
// status server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/vulcan-sentinel/sentinel-core/internal/api"
	"github.com/vulcan-sentinel/sentinel-core/internal/config"
	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
	"github.com/vulcan-sentinel/sentinel-core/internal/mqtt"
	"github.com/vulcan-sentinel/sentinel-core/internal/sink"
	"github.com/vulcan-sentinel/sentinel-core/internal/source"
	"github.com/vulcan-sentinel/sentinel-core/internal/worker"
)

func main() {
	lineID := flag.String("line-id", "line-1", "production line identifier")
	zonesFlag := flag.String("zones", "", "comma-separated enabled zones (default: all of preheat,main,rib)")
	tuningPath := flag.String("tuning", "", "path to a key=value FSM tuning file (default: built-in defaults)")
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker address")
	httpAddr := flag.String("http", ":8090", "HTTP status address (empty to disable)")
	stateDir := flag.String("state-dir", "", "directory for durable runtime-state checkpoints (empty for in-memory only)")
	logDir := flag.String("log-dir", "", "directory for the per-line structured log file (empty for stdout only)")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "liveness heartbeat interval (0 to disable)")

	sourceKind := flag.String("source", "modbus", `sample source: "modbus" or "fake"`)
	modbusAddr := flag.String("modbus-addr", "127.0.0.1:502", "Modbus TCP address (source=modbus)")
	modbusUnit := flag.Int("modbus-unit", 1, "Modbus unit id (source=modbus)")
	preheatTemp := flag.Int("modbus-reg-preheat-temp", 0, "holding register address for preheat temperature")
	preheatSP := flag.Int("modbus-reg-preheat-setpoint", 2, "holding register address for preheat setpoint")
	mainTemp := flag.Int("modbus-reg-main-temp", 4, "holding register address for main temperature")
	mainSP := flag.Int("modbus-reg-main-setpoint", 6, "holding register address for main setpoint")
	ribTemp := flag.Int("modbus-reg-rib-temp", 8, "holding register address for rib temperature")
	ribSP := flag.Int("modbus-reg-rib-setpoint", 10, "holding register address for rib setpoint")

	flag.Parse()

	if err := run(runParams{
		lineID: *lineID, zones: *zonesFlag, tuningPath: *tuningPath,
		broker: *broker, httpAddr: *httpAddr, stateDir: *stateDir, logDir: *logDir,
		heartbeat: *heartbeat,
		sourceKind: *sourceKind, modbusAddr: *modbusAddr, modbusUnit: byte(*modbusUnit),
		preheatTemp: uint16(*preheatTemp), preheatSP: uint16(*preheatSP),
		mainTemp: uint16(*mainTemp), mainSP: uint16(*mainSP),
		ribTemp: uint16(*ribTemp), ribSP: uint16(*ribSP),
	}); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

type runParams struct {
	lineID, zones, tuningPath   string
	broker, httpAddr            string
	stateDir, logDir            string
	heartbeat                   time.Duration
	sourceKind, modbusAddr      string
	modbusUnit                  byte
	preheatTemp, preheatSP      uint16
	mainTemp, mainSP            uint16
	ribTemp, ribSP              uint16
}

func run(p runParams) error {
	zones, err := config.ParseZones(p.zones)
	if err != nil {
		return fmt.Errorf("parse zones: %w", err)
	}
	cfg, err := config.Load(p.tuningPath)
	if err != nil {
		return fmt.Errorf("load tuning config: %w", err)
	}

	logger, logFile, err := worker.InitLogging(p.logDir, p.lineID)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	src, err := buildSource(p)
	if err != nil {
		return fmt.Errorf("init sample source: %w", err)
	}

	var snk sink.Sink
	if p.stateDir != "" {
		f, err := sink.NewFile(p.stateDir)
		if err != nil {
			return fmt.Errorf("init state sink: %w", err)
		}
		snk = f
	}

	publisher, err := mqtt.NewRealPublisher(p.broker, "sentinel-worker-"+p.lineID)
	if err != nil {
		return fmt.Errorf("connect mqtt: %w", err)
	}
	defer publisher.Close()

	w, err := worker.New(worker.Params{
		LineID: p.lineID, Zones: zones, Config: cfg,
		Source: src, Sink: snk, Publisher: publisher, Logger: logger,
		HeartbeatInterval: p.heartbeat,
	})
	if err != nil {
		return fmt.Errorf("init worker: %w", err)
	}

	if err := publisher.PublishSystem(p.lineID, mqtt.SystemEvent{
		Timestamp: time.Now(), Event: "STARTUP", Retained: true,
	}); err != nil {
		logger.Warn("failed to publish startup event", "error", err)
	} else {
		logger.Info("published startup event")
	}

	var httpServer *api.Server
	if p.httpAddr != "" {
		api.SetLogger(logger)
		httpServer = api.New(p.httpAddr, map[string]api.LineController{p.lineID: w})
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", "error", err)
			}
		}()
		defer httpServer.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", p.httpAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("worker started", "line_id", p.lineID, "zones", zones, "broker", p.broker)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildSource(p runParams) (source.Source, error) {
	switch p.sourceKind {
	case "fake":
		return source.NewFake(nil), nil
	case "modbus":
		registers := map[logic.Zone]source.ZoneRegister{
			logic.ZonePreheat: {TemperatureAddr: p.preheatTemp, SetpointAddr: p.preheatSP},
			logic.ZoneMain:    {TemperatureAddr: p.mainTemp, SetpointAddr: p.mainSP},
			logic.ZoneRib:     {TemperatureAddr: p.ribTemp, SetpointAddr: p.ribSP},
		}
		return source.NewModbus(p.modbusAddr, p.modbusUnit, registers), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", p.sourceKind)
	}
}
