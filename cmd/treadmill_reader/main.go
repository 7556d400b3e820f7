// treadmill_reader connects to an FTMS treadmill and logs speed, pace,
// incline and distance as they are reported.
//
// Usage:
//
//	treadmill_reader [flags]
//
// Flags:
//
//	--address           Treadmill address; scan by name when empty
//	--scan-timeout      How long to scan (default 10s)
//	--name-keywords     Name fragments that identify a treadmill
//	--tui               Show a terminal dashboard
//	--config            Configuration file
//	--log-file          Rotating log file
//	--log-max-age-days  Days to keep rotated log files (default 28)
//
// Every flag can also be set through a TREADMILL_ environment variable.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rivo/tview"
	"github.com/spf13/pflag"
	"tinygo.org/x/bluetooth"

	"github.com/lowaak/smart-trainer/pace-bridge/internal/bt"
	"github.com/lowaak/smart-trainer/pace-bridge/internal/config"
	"github.com/lowaak/smart-trainer/pace-bridge/internal/ftms"
	"github.com/lowaak/smart-trainer/pace-bridge/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/pace-bridge/internal/logging"
	"github.com/lowaak/smart-trainer/pace-bridge/internal/treadmill"
	"github.com/lowaak/smart-trainer/pace-bridge/internal/ui"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.LoadCentral(args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "treadmill_reader: %v\n", err)
		return 1
	}

	var logs *ui.LogBuffer
	var console io.Writer = os.Stderr
	if cfg.TUI {
		logs = ui.NewLogBuffer()
		console = logs
	}
	logger, logCloser := logging.New(logging.Options{
		Console:    console,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	logger.Println("Treadmill Bluetooth Reader")
	logger.Println("==========================")

	manager := bt.NewBTManager(bluetooth.DefaultAdapter, logger, cfg.ScanTimeout)
	if err := manager.Enable(); err != nil {
		logger.Printf("Fatal: %v", err)
		return 1
	}
	defer manager.Shutdown()

	client := treadmill.NewClient(treadmill.Config{
		Address:      cfg.Address,
		NameKeywords: cfg.NameKeywords,
	}, manager, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TUI {
		err = runDashboard(ctx, stop, client, logs, logger)
	} else {
		logger.Println("Receiving treadmill data, press Ctrl+C to stop")
		err = client.Run(ctx)
	}

	stats := client.Stats()
	logger.Printf("Session ended: %d notifications, %d too short", stats.Packets, stats.TooShort)
	if err != nil {
		logger.Printf("Fatal: %v", err)
		logTroubleshooting(logger, err)
		if cfg.TUI {
			fmt.Fprintf(os.Stderr, "treadmill_reader: %v\n", err)
		}
		return 1
	}
	return 0
}

// runDashboard runs the session in the background and the dashboard in the
// foreground. Either side finishing stops the other.
func runDashboard(ctx context.Context, stop context.CancelFunc, client *treadmill.Client, logs *ui.LogBuffer, logger *log.Logger) error {
	app := tview.NewApplication()
	dash := ui.NewDashboard(logger, app, logs, stop)

	readings := make(chan ftms.TreadmillReading, 8)
	unregister := client.ListenToReadings(readings)
	defer unregister()
	dash.Watch(readings)

	sessionErr := make(chan error, 1)
	go_func_utils.SafeGo(logger, nil, "treadmill session", func() {
		sessionErr <- client.Run(ctx)
		// queued so it also takes effect if the dashboard has not started yet
		app.QueueUpdate(func() { go dash.Stop() })
	})

	if err := dash.Run(); err != nil {
		logger.Printf("Dashboard error: %v", err)
	}
	stop()
	dash.Shutdown()
	return <-sessionErr
}

func logTroubleshooting(logger *log.Logger, err error) {
	var connErr *bt.ConnectError
	if !errors.Is(err, treadmill.ErrNoDevice) && !errors.As(err, &connErr) {
		return
	}
	logger.Println("Troubleshooting:")
	logger.Println("  1. Make sure the treadmill's Bluetooth is enabled")
	logger.Println("  2. Check that no other device is already connected to it")
	logger.Println("  3. Try power cycling the treadmill")
	logger.Println("  4. Move closer to the treadmill")
}
