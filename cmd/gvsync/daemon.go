package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/amparachrist-beep/gestion-ventes-sync/internal/config"
	"github.com/amparachrist-beep/gestion-ventes-sync/internal/dashboard"
	"github.com/amparachrist-beep/gestion-ventes-sync/internal/netmon"
	gvsync "github.com/amparachrist-beep/gestion-ventes-sync/internal/sync"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync daemon (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon:
  1. Probes backend reachability on an interval
  2. Triggers a sync pass immediately when connectivity returns
  3. Runs periodic sync passes while online
  4. Serves the live dashboard (WebSocket + /metrics) if enabled

Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := log.New(os.Stderr, "[daemon] ", log.LstdFlags)

		loader, cfg, err := loadConfig(logger)
		if err != nil {
			fatalf("%v", err)
		}

		if cfg.Log.File != "" {
			rotated := &lumberjack.Logger{
				Filename:   cfg.Log.File,
				MaxSize:    cfg.Log.MaxSizeMB,
				MaxBackups: 3,
				Compress:   true,
			}
			logger.SetOutput(io.MultiWriter(os.Stderr, rotated))
		}

		s, err := openStore(cfg, logger)
		if err != nil {
			fatalf("opening store: %v", err)
		}
		defer s.Close()

		if !s.Persistent() {
			logger.Printf("WARNING: running on in-memory store, queued work will not survive restart")
		}

		engine, client := buildEngine(cfg, s, logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Triggered passes are tracked so shutdown waits for them
		// before the store closes underneath a live drain.
		var passWg sync.WaitGroup
		defer passWg.Wait()

		runPass := func() {
			passWg.Add(1)
			go func() {
				defer passWg.Done()
				if _, err := engine.SyncFull(ctx); err != nil && !errors.Is(err, gvsync.ErrSyncInFlight) {
					logger.Printf("Sync pass error: %v", err)
				}
			}()
		}

		monitor := netmon.New(client, &netmon.Config{
			Interval: cfg.ProbeInterval(),
			OnOnline: func() {
				logger.Printf("Back online, starting sync pass")
				runPass()
			},
			OnOffline: func() {
				logger.Printf("Backend unreachable, queueing locally")
			},
			Logger: logger,
		})
		monitor.Start(ctx)
		defer monitor.Stop()

		var dash *dashboard.Server
		if cfg.Dashboard.Enabled {
			dash = dashboard.NewServer(engine.Notifier(), &dashboard.Config{
				Port:   cfg.Dashboard.Port,
				Logger: logger,
			})
			if err := dash.Start(); err != nil {
				fatalf("starting dashboard: %v", err)
			}
			defer func() {
				if err := dash.Stop(); err != nil {
					logger.Printf("Dashboard shutdown: %v", err)
				}
			}()
			fmt.Printf("Dashboard: http://%s\n", dash.Addr())
		}

		loader.Watch(func(newCfg *config.Config) {
			logger.Printf("Applying new sync interval: %v", newCfg.SyncInterval())
			engine.StartAutoSync(ctx, newCfg.SyncInterval())
		})

		engine.StartAutoSync(ctx, cfg.SyncInterval())
		defer engine.StopAutoSync()

		fmt.Printf("Sync daemon running (interval %v, store %s)\n", cfg.SyncInterval(), s.Path())
		if monitor.Online() {
			runPass()
		} else {
			logger.Printf("Starting offline; will sync when the backend becomes reachable")
		}

		<-ctx.Done()
		logger.Printf("Shutting down")
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
