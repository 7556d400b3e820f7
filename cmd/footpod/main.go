// footpod advertises a constant-pace Running Speed and Cadence sensor over
// BlueZ so watches and apps can pair with it as a footpod.
//
// Usage:
//
//	footpod [flags]
//
// Flags:
//
//	--speed-kmh         Simulated speed in km/h (default 10)
//	--cadence           Simulated cadence in steps per minute (default 85)
//	--local-name        Advertised name (default "Footpod")
//	--tick-interval     Notification interval (default 1s)
//	--config            Configuration file
//	--log-file          Rotating log file
//	--log-max-age-days  Days to keep rotated log files (default 28)
//
// Every flag can also be set through a FOOTPOD_ environment variable, for
// example FOOTPOD_SPEED_KMH=12.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/lowaak/smart-trainer/pace-bridge/internal/bluez"
	"github.com/lowaak/smart-trainer/pace-bridge/internal/config"
	"github.com/lowaak/smart-trainer/pace-bridge/internal/logging"
	"github.com/lowaak/smart-trainer/pace-bridge/internal/peripheral"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.LoadPeripheral(args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "footpod: %v\n", err)
		return 1
	}

	logger, logCloser := logging.New(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	logger.Println("BLE Running Speed and Cadence Footpod")
	logger.Println("=====================================")

	host, err := bluez.Connect(logger)
	if err != nil {
		logger.Printf("Fatal: %v", err)
		return 1
	}
	defer func() {
		if err := host.Close(); err != nil {
			logger.Printf("Error closing BlueZ host: %v", err)
		}
	}()

	svc, err := peripheral.NewService(peripheral.Config{
		SpeedKmh:     cfg.SpeedKmh,
		CadenceRPM:   cfg.CadenceRPM,
		LocalName:    cfg.LocalName,
		TickInterval: cfg.TickInterval,
	}, host, logger, nil)
	if err != nil {
		logger.Printf("Fatal: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		logger.Printf("Fatal: %v", err)
		return 1
	}
	logger.Println("Footpod running, press Ctrl+C to stop")

	<-ctx.Done()
	logger.Println("Shutting down")
	svc.Stop()
	return 0
}
