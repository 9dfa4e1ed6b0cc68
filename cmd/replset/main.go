// Package main runs the replica-set engine daemon for one content node.
//
// The daemon wires the peer-set view, the two sync queues, the
// reconfiguration planner and the state-machine loop, and serves a small
// status API:
//
//	/health_check     - liveness for peer probes
//	/replset/status   - current slice, last iteration summary, queue depths
//
// Configuration comes from an optional YAML file (--config) overridden by
// REPLSET_* environment variables; see internal/config.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/replset/internal/cluster"
	"github.com/dreamware/replset/internal/clockstore"
	"github.com/dreamware/replset/internal/config"
	"github.com/dreamware/replset/internal/peerset"
	"github.com/dreamware/replset/internal/reconfig"
	"github.com/dreamware/replset/internal/statemachine"
	"github.com/dreamware/replset/internal/syncjob"
	"github.com/dreamware/replset/internal/telemetry"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("replset exited", "err", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "replset",
		Short:         "Replica-set state machine for a content node",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	log := newLogger(cfg)
	slog.SetDefault(log)

	if cfg.MetadataNode {
		log.Info("metadata node: replica-set engine disabled")
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing {
		shutdown, err := telemetry.Init("replset")
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				log.Warn("trace flush failed", "err", err)
			}
		}()
	}

	store, err := clockstore.Open(cfg.ClockDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	view := &peerset.View{
		Self:      cfg.SelfEndpoint,
		Discovery: &peerset.HTTPDiscovery{Endpoint: cfg.DiscoveryEndpoint},
		Log:       log.With("component", "peerset"),
	}

	dedup := syncjob.NewDedup()
	dispatcher := &syncjob.Dispatcher{
		Store:               store,
		MaxExportClockRange: cfg.MaxExportClockRange,
		Log:                 log.With("component", "syncjob"),
	}
	manual := syncjob.NewQueue(cluster.SyncManual, dedup, dispatcher, cfg.ManualConcurrency, log)
	recurring := syncjob.NewQueue(cluster.SyncRecurring, dedup, dispatcher, cfg.RecurringConcurrency, log)
	manual.Start(ctx)
	recurring.Start(ctx)

	planner := &reconfig.Planner{
		Sel:    &reconfig.StaticSelection{Pool: cfg.Endpoints()},
		Reg:    &reconfig.HTTPRegistry{Endpoint: cfg.RegistryEndpoint},
		IDs:    cluster.NewIDMap(cfg.IDEntries()),
		Manual: manual,
		Log:    log.With("component", "reconfig"),
	}

	engine := statemachine.New(
		cfg.SelfEndpoint, view, store, recurring, planner, cfg.ScanInterval(), log)
	go engine.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/health_check", handleHealth)
	mux.HandleFunc("/replset/status", handleStatus(engine, manual, recurring))

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("status server listening", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("status server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	manual.Close()
	recurring.Close()
	manual.Wait()
	recurring.Wait()
	log.Info("replset stopped")
	return nil
}

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.DevMode {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"healthy": true})
}

type queueStatus struct {
	Depth  int `json:"depth"`
	Active int `json:"active"`
}

type statusResponse struct {
	Slice     int                  `json:"slice"`
	Last      statemachine.Summary `json:"last_iteration"`
	Manual    queueStatus          `json:"manual_queue"`
	Recurring queueStatus          `json:"recurring_queue"`
}

func handleStatus(engine *statemachine.Engine, manual, recurring *syncjob.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := statusResponse{
			Slice:     engine.Slice(),
			Last:      engine.Last(),
			Manual:    queueStatus{Depth: manual.Depth(), Active: manual.Active()},
			Recurring: queueStatus{Depth: recurring.Depth(), Active: recurring.Active()},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
