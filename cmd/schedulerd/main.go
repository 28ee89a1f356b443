// Command schedulerd runs the federated FaaS placement scheduler: it
// loads a node's topology from architecture.yaml and serves the
// placement HTTP API described in internal/api (§6, §10).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgefaas/scheduler/internal/api"
	"github.com/edgefaas/scheduler/internal/config"
	"github.com/edgefaas/scheduler/internal/forecast"
	"github.com/edgefaas/scheduler/internal/infra/execclient"
	"github.com/edgefaas/scheduler/internal/infra/loadprobe"
	"github.com/edgefaas/scheduler/internal/infra/store"
	"github.com/edgefaas/scheduler/internal/router"
	"github.com/edgefaas/scheduler/internal/scheduler"
	"github.com/edgefaas/scheduler/internal/selector"
	"github.com/edgefaas/scheduler/internal/trust"
	"github.com/edgefaas/scheduler/internal/zonepolicy"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	var port int
	var metrics bool

	root := &cobra.Command{
		Use:   "schedulerd",
		Short: "Federated FaaS placement scheduler daemon",
		// serve is the implicit default: running schedulerd with no
		// subcommand starts the HTTP server, the same as `schedulerd serve`.
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, port, metrics)
		},
	}
	addServeFlags(root, &configPath, &port, &metrics)
	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())
	return root
}

func addServeFlags(cmd *cobra.Command, configPath *string, port *int, metrics *bool) {
	cmd.Flags().StringVar(configPath, "config", "arch/architecture.yaml", "path to the topology configuration file")
	cmd.Flags().IntVar(port, "port", 31113, "HTTP listen port")
	cmd.Flags().BoolVar(metrics, "metrics", true, "expose Prometheus metrics on /metrics")
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the scheduler version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var configPath string
	var port int
	var metrics bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler's HTTP server (the default if no subcommand is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, port, metrics)
		},
	}
	addServeFlags(cmd, &configPath, &port, &metrics)
	return cmd
}

func serve(configPath string, port int, metrics bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	responseLog := store.New(store.TimeWindow, nil)
	totalTimeLog := store.New(store.TimeWindow, nil)
	sel := selector.New(responseLog, nil)
	sched := scheduler.New(scheduler.DefaultConfig(), nil)
	exec := execclient.New()
	load := loadprobe.New()

	rtr := router.New(cfg, sched, sel, responseLog, totalTimeLog, exec, load, nil, nil)

	fc := forecast.New(forecast.DefaultConfig())
	rtr.SetDemandHook(fc.Observe)

	tr := trust.NewTracker(nil)
	rtr.SetOutcomeHook(func(nodeID string, d time.Duration) {
		tr.GetOrRegister(nodeID)
		_ = tr.RecordOutcome(nodeID, trust.Outcome{Successful: true, ExpectedTime: d, ActualTime: d})
	})

	// Every zone starts unrestricted; an operator registers data-
	// sovereignty/allow-list policies by name once a real deployment
	// needs them (§12). Nothing in architecture.yaml configures this
	// yet, so the zero-value registry is equivalent to not wiring a
	// ZonePolicy at all.
	zp := zonepolicy.NewRegistry()
	rtr.SetZonePolicy(zp)

	srv := api.NewServer(cfg, rtr, load, metrics)
	srv.SetForecaster(fc)
	srv.SetTrustScorer(tr)
	srv.SetZonePolicyStore(zp)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      srv.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	// SIGHUP triggers a full config reload from disk (§10.3), distinct
	// from POST /reload which only swaps the architecture in place.
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			if err := cfg.Reload(); err != nil {
				fmt.Fprintf(os.Stderr, "schedulerd: reload failed: %v\n", err)
			}
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(ctx)
	}()

	fmt.Printf("schedulerd: listening on %s (node=%s, arch=%s)\n",
		httpServer.Addr, cfg.Topology().Self().ID, cfg.Architecture())

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
