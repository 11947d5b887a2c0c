package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/seca-gap/internal/api"
)

func newServeCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run seca-gap as a REST API service",
		Long: `Serve exposes the assessment pipeline over HTTP. Submitted assessments
run as background jobs; their results land in the same results directory
the CLI uses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, app)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", defaultServeAddr, "Address for the API server")
	flags.String("auth-token", "", "Optional bearer token required on API requests")
	flags.Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	flags.StringSlice("cors-origins", []string{}, "Allowed CORS origins (empty = allow all)")
	flags.Int("rate-limit", 10, "Rate limit per client (requests/second, 0 = disabled)")
	flags.Int("rate-burst", 20, "Rate limit burst size")
	flags.Int("max-jobs", 1000, "Jobs retained in memory")
	bindFlags(app.viper, flags, map[string]string{
		"addr":             "serve.addr",
		"auth-token":       "serve.auth_token",
		"shutdown-timeout": "serve.shutdown_timeout",
		"cors-origins":     "serve.cors_origins",
		"rate-limit":       "serve.rate_limit",
		"rate-burst":       "serve.rate_burst",
		"max-jobs":         "serve.max_jobs",
	})
	return cmd
}

func runServe(cmd *cobra.Command, app *AppContext) error {
	cfg := app.Config.Serve
	logger := app.Logger

	container, err := app.container()
	if err != nil {
		return err
	}

	// Cancelled after the listener stops so running jobs wind down.
	jobsCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	server := api.NewServer(api.Config{
		Assessments: container.Assessments,
		Modules:     container.Registry,
		Jobs:        api.NewJobManager(cfg.MaxJobs),
		Defaults:    app.Config.orchestratorOptions(),
		BaseContext: jobsCtx,
		AuthToken:   cfg.AuthToken,
		Logger:      logger.Named("api"),
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.RateLimit,
		RateBurst:   cfg.RateBurst,
	})

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	out := cmd.OutOrStdout()
	serverErrors := make(chan error, 1)
	go func() {
		fmt.Fprintf(out, "%s API server listening on %s (results dir: %s)\n", colorInfo("→"), cfg.Addr, app.ResultsDir)
		fmt.Fprintf(out, "%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-shutdown:
		fmt.Fprintf(out, "\n%s Received signal %v, initiating graceful shutdown...\n", colorInfo("→"), sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		if closeErr := httpServer.Close(); closeErr != nil {
			return fmt.Errorf("failed to gracefully shutdown server: %w (close error: %v)", err, closeErr)
		}
		return fmt.Errorf("failed to gracefully shutdown server: %w", err)
	}

	// Running jobs still persist whatever they finished.
	cancelJobs()
	done := make(chan struct{})
	go func() {
		server.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("jobs still running at shutdown deadline")
	}

	fmt.Fprintf(out, "%s Server shutdown complete\n", colorInfo("✓"))
	return nil
}
