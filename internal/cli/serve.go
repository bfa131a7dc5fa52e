package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"thumbnail-engine/internal/cache"
	"thumbnail-engine/internal/engine"
	"thumbnail-engine/internal/events"
	"thumbnail-engine/internal/handlers"
	"thumbnail-engine/internal/logging"
	"thumbnail-engine/internal/memory"
	"thumbnail-engine/internal/metrics"
	"thumbnail-engine/internal/middleware"
	"thumbnail-engine/internal/startup"
)

const (
	shutdownTimeout  = 30 * time.Second
	collectorPeriod  = time.Minute
	eventBufferDepth = 512
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Starts the HTTP API. Clients request a directory with
POST /api/thumbnails/request and receive thumbnails on the
/api/thumbnails/events stream as they are generated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := serveOptions{}
			opts.logHealthChecks, _ = cmd.Flags().GetBool("log-health-checks")
			opts.logThumbnailFetches, _ = cmd.Flags().GetBool("log-thumbnail-fetches")

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return a.serve(ctx, opts, nil)
		},
	}

	cmd.Flags().String("listen", "", "listen address (default 127.0.0.1:8089)")
	cmd.Flags().Bool("metrics", true, "expose Prometheus metrics")
	cmd.Flags().Bool("log-health-checks", false, "log probe requests")
	cmd.Flags().Bool("log-thumbnail-fetches", false, "log thumbnail image requests at info level")
	a.bind("listen", cmd.Flags().Lookup("listen"))
	a.bind("metrics_enabled", cmd.Flags().Lookup("metrics"))

	return cmd
}

type serveOptions struct {
	logHealthChecks     bool
	logThumbnailFetches bool
}

// signalContext is cancelled on SIGINT or SIGTERM with the signal as cause.
func signalContext(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			cancel(errors.New(sig.String()))
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel(nil)
	}
}

// serve runs until ctx is cancelled. When ready is non-nil the bound
// address is sent on it once the listener is open.
func (a *app) serve(ctx context.Context, opts serveOptions, ready chan<- string) error {
	startTime := time.Now()
	cfg := a.cfg

	startup.LogStart()
	startup.LogConfig(cfg, a.v.ConfigFileUsed())
	if err := startup.PrepareStorage(cfg); err != nil {
		return err
	}
	startup.LogMemoryConfig(memory.Configure(cfg.MemoryLimit, cfg.MemoryRatio))

	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	broadcaster := events.NewBroadcaster(eventBufferDepth)

	engineStart := time.Now()
	eng, err := engine.New(ctx, cfg, engine.Deps{Sink: handlers.DeliverySink(broadcaster)})
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	startup.LogEngineInit(time.Since(engineStart))

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector(cache.StatsAdapter{Store: eng.Store()}, collectorPeriod)
		collector.Start()
	}

	// Background cleans outlive the request that started them but not the server.
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()

	h := handlers.New(baseCtx, eng, broadcaster)
	router := mux.NewRouter()
	if cfg.MetricsEnabled {
		router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	}
	h.RegisterRoutes(router)

	logCfg := middleware.DefaultLoggingConfig()
	logCfg.LogHealthChecks = opts.logHealthChecks
	logCfg.LogThumbnailFetches = opts.logThumbnailFetches
	startup.LogHTTPRoutes(router, logCfg.LogHealthChecks, logCfg.LogThumbnailFetches)

	srv := &http.Server{
		Handler:           middleware.Logger(logCfg)(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Event streams stay open; thumbnail responses are small.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		a.shutdown(context.Background(), nil, eng, collector, cancelBase)
		return fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Listen:          ln.Addr().String(),
		MetricsEnabled:  cfg.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case <-ctx.Done():
		startup.LogShutdownInitiated(context.Cause(ctx).Error())
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Server error: %v", err)
		}
		a.shutdown(context.Background(), nil, eng, collector, cancelBase)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.shutdown(shutdownCtx, srv, eng, collector, cancelBase)
	return nil
}

func (a *app) shutdown(ctx context.Context, srv *http.Server, eng *engine.Engine, collector *metrics.Collector, cancelBase context.CancelFunc) {
	startup.LogShutdownStep("Interrupting thumbnail generation")
	eng.Interrupt()
	startup.LogShutdownStepComplete("Thumbnail generation interrupted")

	if srv != nil {
		startup.LogShutdownStep("Shutting down HTTP server")
		// Event streams end when the base context goes
		cancelBase()
		if err := srv.Shutdown(ctx); err != nil {
			logging.Warn("Server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("HTTP server stopped")
		}
	}

	if collector != nil {
		collector.Stop()
	}

	startup.LogShutdownStep("Closing engine")
	if err := eng.Close(); err != nil {
		logging.Warn("Engine close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Engine closed")
	}

	startup.LogShutdownComplete()
	_ = logging.Sync()
}
