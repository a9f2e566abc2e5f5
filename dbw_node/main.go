package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dbw-core/utils"
)

func main() {
	var (
		iface       = flag.String("iface", "vcan0", "SocketCAN interface name")
		mapPath     = flag.String("map", "config/can/dbw_map.csv", "Path to the CAN map CSV")
		vehiclePath = flag.String("vehicle", "config/vehicle.json", "Vehicle parameters JSON file")
		frameName   = flag.String("frame", "DBW_CMD", "Frame name to transmit")
		staleAfter  = flag.Duration("stale-after", 500*time.Millisecond, "Release actuators when inputs are older than this")
		logPath     = flag.String("logfile", "dbw_node.log", "Log file")
		logLevel    = flag.String("log", "info", "trace|debug|info|warn|error|critical")
	)
	flag.Parse()

	log, err := utils.NewFileLogger(*logPath, utils.ParseLevel(*logLevel), true)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open " + *logPath + ": " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	cfg := RunnerConfig{
		Interface:   *iface,
		MapPath:     *mapPath,
		VehiclePath: *vehiclePath,
		FrameName:   *frameName,
		StaleAfter:  *staleAfter,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := NewRunner(ctx, cfg, log)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		os.Exit(1)
	}
	defer runner.Close()

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Critical("Run failed: %v", err)
		os.Exit(1)
	}
}
