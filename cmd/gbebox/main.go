// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gbebox/internal/actuator"
	"gbebox/internal/backlog"
	"gbebox/internal/box"
	"gbebox/internal/broker"
	"gbebox/internal/clock"
	"gbebox/internal/config"
	"gbebox/internal/hardware"
	"gbebox/internal/hardware/raspi"
	"gbebox/internal/hardware/sim"
	"gbebox/internal/history"
	"gbebox/internal/indicator"
	"gbebox/internal/metrics"
	"gbebox/internal/pipeline"
	"gbebox/internal/sensors"
	"gbebox/internal/status"
	"gbebox/internal/telemetry"
	"gbebox/internal/watchdog"
	"gbebox/pkg/appctx"
	"gbebox/pkg/eventbus"
	"gbebox/pkg/logger"
	"gbebox/pkg/rootserv"
	"gbebox/pkg/service"
	"gbebox/pkg/sysmon"
)

// per-step budgets; a step running longer stops the watchdog feed
const (
	actuatorBudget  = 2 * time.Second
	sensorsBudget   = 5 * time.Second
	indicatorBudget = 10 * time.Second
	brokerBudget    = 30 * time.Second
	clockBudget     = 30 * time.Second
	pipelineBudget  = time.Minute
)

var log = logger.New("Main")

// fatal stops the process before anything is actuated.
func fatal(err error) {
	log.Error("startup: %v", err)
	logger.Close()
	os.Exit(1)
}

func must[T any](v T, err error) T {
	if err != nil {
		fatal(err)
	}
	return v
}

func openWatchdog(conf *config.Service) watchdog.Device {
	if conf.Board == "sim" {
		return watchdog.Nop{}
	}
	dev, err := watchdog.Open(conf.Watchdog.Device, conf.Watchdog.TimeoutSeconds)
	if err != nil {
		log.Warn("hardware watchdog unavailable, running without: %v", err)
		return watchdog.Nop{}
	}
	return dev
}

func main() {

	rootdir := os.Getenv("PROJECT_ROOT")
	if rootdir == "" {
		rootdir = "."
	}

	logPath := filepath.Join(rootdir, "var/logs/gbebox.log")
	if err := logger.Init(logPath); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
	}

	settingsPath := filepath.Join(rootdir, "var/config/gbe_settings.json")
	servicePath := filepath.Join(rootdir, "var/config/gbebox.yml")
	hardwarePath := filepath.Join(rootdir, "var/config/hardware.yml")
	log.Info("log: %s", logPath)
	log.Info("settings: %s", settingsPath)
	log.Info("service config: %s", servicePath)
	log.Info("hardware map: %s", hardwarePath)

	conf := &config.Config{
		Settings: must(config.LoadSettings(settingsPath)),
		Service:  must(config.LoadService(servicePath)),
		RootDir:  rootdir,
		DataDir:  filepath.Join(rootdir, "var/cache"),
	}
	hw := must(hardware.LoadMap(hardwarePath))
	boardID := must(box.BoardID(conf.DataDir))
	log.Info("board id: %s", boardID)

	store := must(backlog.Open(filepath.Join(conf.DataDir, "backlog")))
	journal := must(telemetry.NewJournal(filepath.Join(rootdir, "var/logs/telemetry")))
	hist := must(history.Open(filepath.Join(conf.DataDir, "history.db")))

	ctx, ctxCancel := appctx.New()

	var board hardware.Board
	switch conf.Service.Board {
	case "sim":
		board = sim.New()
	default:
		board = raspi.New(hw)
	}
	if err := board.Connect(); err != nil {
		fatal(fmt.Errorf("connect %s board: %w", board.Name(), err))
	}

	// time
	ck := conf.Service.Clock
	clk := clock.New(conf.Settings.UTCOffset)
	ntp := clock.NTP{Host: ck.NTPHost, Timeout: 5 * time.Second}
	var rtc clock.RTC
	if ck.RTCDevice != "" {
		rtc = clock.DeviceRTC{Path: ck.RTCDevice}
	}
	clk.Init(ctx, ntp, rtc)

	// shared box
	bus := eventbus.New()
	ind := indicator.New(board.Pixel(), bus, config.Millis(conf.Service.Loops.IndicatorStepMillis))
	b := &box.Box{
		Conf:    conf,
		Bus:     bus,
		Clock:   clk,
		Status:  ind,
		Metrics: metrics.New(),
		Board:   board,
	}

	// chamber
	actuatorService := actuator.New(b)
	sensorService := sensors.New(b)
	sensorService.Start()

	// delivery
	clientID := conf.Service.Broker.ClientID
	if clientID == "" {
		clientID = "gbe-" + boardID
	}
	availTopic := broker.AvailabilityTopic(conf.Service.Broker, boardID)
	connService := broker.New(b, broker.NewPahoClient(conf.Service.Broker, clientID, availTopic), boardID)
	heartbeatService := broker.NewHeartbeat(connService, config.Seconds(conf.Service.Broker.HeartbeatSeconds))

	pipelineService := pipeline.New(b, boardID, pipeline.Deps{
		Outputs: actuatorService,
		Sensors: sensorService,
		Link:    connService,
		Backlog: store,
		Journal: journal,
		History: hist,
	})

	syncService := clock.NewSyncer(clk, ntp, rtc, config.Seconds(ck.SyncIntervalSeconds), b.Metrics)

	sched := service.New()

	// web
	server := rootserv.New(conf.Service.HTTPAddr)
	statusService := status.New(b, boardID, status.Sources{
		Outputs: actuatorService,
		Sensors: sensorService,
		Link:    connService,
		Backlog: store,
		Tasks:   sched,
	})
	server.Attach("/status", "Live chamber status", statusService)
	server.Attach("/telemetry", "Telemetry history", hist)
	server.Attach("/metrics", "Prometheus metrics", b.Metrics.Handler())
	server.Attach("/monitor", "System Monitor", sysmon.New(conf.DataDir))
	server.Attach("/logger", "Logger", logger.WebService())

	// armed last: nothing feeds it until the scheduler runs
	watchdogService := watchdog.New(openWatchdog(conf.Service), sched,
		config.Millis(conf.Service.Watchdog.FeedMillis), b.Metrics)

	sched.Add("indicator", ind, indicatorBudget)
	sched.Add("actuator", actuatorService, actuatorBudget)
	sched.Add("sensors", sensorService, sensorsBudget)
	sched.Add("connectivity", connService, brokerBudget)
	sched.Add("heartbeat", heartbeatService, brokerBudget)
	sched.Add("pipeline", pipelineService, pipelineBudget)
	sched.Add("clock", syncService, clockBudget)
	sched.Add("status", statusService, 0)
	sched.Add("http", server, 0)
	sched.Add("watchdog", watchdogService, 0)

	// waits for all services to stop
	code := <-sched.Start(ctx, ctxCancel)
	if name := sched.Failed(); name != "" {
		log.Error("exiting after %s failed", name)
	}
	hist.Close()
	board.Close()
	logger.Close()
	os.Exit(code)
}
