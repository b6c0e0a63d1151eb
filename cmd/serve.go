package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/prarena/internal/api"
	"github.com/joescharf/prarena/internal/daemon"
	"github.com/joescharf/prarena/internal/eval"
	"github.com/joescharf/prarena/internal/github"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the evaluation API daemon",
	Long: `Start the HTTP API daemon. Clients start evaluations with POST
requests and poll status endpoints for progress.

By default it listens on port 8080. Use --port to change it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running API daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopRun()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	viper.SetDefault("port", 8080)
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}

func serveRun(ctx context.Context) error {
	pf, err := daemon.Acquire(viper.GetString("pid_file"))
	if err != nil {
		return err
	}
	defer func() { _ = pf.Release() }()

	s, err := getStore()
	if err != nil {
		return err
	}

	sysPrompts, err := loadPrompts()
	if err != nil {
		return err
	}

	// A nil *llm.Client must stay a nil interface, so convert explicitly.
	var backend eval.Backend
	if c := newLLMClient(); c != nil {
		backend = c
	} else {
		ui.Warning("No Anthropic API key configured; eval endpoints will return 503")
	}

	srv := api.NewServer(s, github.NewRealClient(), backend,
		viper.GetStringSlice("models"), sysPrompts, evalConfig())

	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API daemon listening", "addr", addr, "pid_file", pf.Path())
		ui.Info("Serving API at http://localhost%s", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func stopRun() error {
	pidPath := viper.GetString("pid_file")
	pid, running := daemon.Running(pidPath)
	if !running {
		ui.Info("No daemon running")
		return nil
	}
	if dryRun {
		ui.DryRunMsg("Would stop daemon (pid %d)", pid)
		return nil
	}
	if err := daemon.Stop(pidPath); err != nil {
		return fmt.Errorf("stop daemon: %w", err)
	}
	ui.Success("Stopped daemon (pid %d)", pid)
	return nil
}
