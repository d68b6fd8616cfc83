// cmd/template-publisher/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"template-publisher/internal/api"
	"template-publisher/internal/common/config"
	templatepublish "template-publisher/internal/workers/layer/template-publish"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// push
	singleRecord bool

	// serve
	interval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "template-publisher",
	Short: "Publish Airtable template records as Layer projects",
	Long: `template-publisher reads template records with Status "Push" from Airtable,
creates the matching Layer project, categories and fields, and marks each
record Published.

Run "push" once, "validate" to compare published records against Layer, or
"serve" to expose the HTTP trigger and the Zeebe job workers.`,
	SilenceUsage: true,
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Publish every record with Status Push",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), templatepublish.ModePush)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Compare schema categories of selected records against Layer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), templatepublish.ModeValidate)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP trigger and the Zeebe workers",
	Long: `Starts the HTTP trigger (POST /api/v1/templates/push, /validate) with
/health, /ready and /metrics, and registers the Zeebe job workers when
camunda.enabled is set. With --interval, push also runs on a ticker. Runs
from the ticker, HTTP and Zeebe are serialized within the process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: configs/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	pushCmd.Flags().BoolVar(&singleRecord, "single", false, "publish at most one record")
	serveCmd.Flags().DurationVar(&interval, "interval", 0, "run push periodically (0 disables; overrides publisher.interval)")

	rootCmd.AddCommand(pushCmd, validateCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// runOnce invokes a single mode, prints the Response and fails the process
// on a status of 400 or above.
func runOnce(ctx context.Context, mode string) error {
	a, err := newApp(ctx, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer a.Close()

	resp := a.handler.Invoke(ctx, mode, templatepublish.Input{})

	out, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(out))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s failed with status %d", mode, resp.StatusCode)
	}
	return nil
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer a.Close()

	if a.cfg.Camunda.Enabled {
		if err := a.handler.Register(); err != nil {
			a.zapLog.Error("worker registration failed", zap.Error(err))
			return err
		}
	}

	server := &http.Server{
		Addr:              a.cfg.Server.Address,
		Handler:           api.SetupRouter(a.handler, a.log, a.checks),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.zapLog.Info("HTTP server listening", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	every := interval
	if every == 0 {
		every = config.GetDuration(a.cfg.Publisher.Interval)
	}
	if every > 0 {
		go schedulePush(ctx, a, every)
	}

	select {
	case <-ctx.Done():
		a.zapLog.Info("Shutdown signal received, stopping server...")
	case err := <-serverErr:
		a.zapLog.Error("HTTP server failed", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	a.zapLog.Info("Template publisher stopped gracefully")
	return nil
}

// schedulePush runs push on every tick. A run is synchronous, so a slow run
// delays the next tick instead of overlapping it.
func schedulePush(ctx context.Context, a *app, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	a.zapLog.Info("Scheduled push enabled", zap.Duration("interval", every))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resp := a.handler.Invoke(ctx, templatepublish.ModePush, templatepublish.Input{})
			a.zapLog.Info("Scheduled push finished",
				zap.Int("statusCode", resp.StatusCode),
				zap.String("message", resp.Body.Message),
				zap.String("error", resp.Body.Error),
			)
		}
	}
}
