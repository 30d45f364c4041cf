package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"mdbot/internal/app"
)

func main() {
	// A .env next to the binary is the smallest possible deployment; a
	// missing file is fine.
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		_ = a.Stop(context.Background(), app.StopFatalError)
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	// Keep the systemd watchdog fed while the app runs. Outside systemd the
	// interval is zero and no ticker starts.
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		go func() {
			t := time.NewTicker(interval / 2)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-a.Done():
					return
				case <-t.C:
					_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
				}
			}
		}()
	}

	// Run until a signal arrives or the app dies on its own.
	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	reason := app.StopSignal
	if err := a.Err(); err != nil {
		reason = app.StopFatalError
		fmt.Println("fatal:", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	_ = a.Stop(stopCtx, reason)
	stopCancel()

	if a.Err() != nil {
		os.Exit(1)
	}
}
