package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abhisek/mathdrill/internal/app"
	"github.com/abhisek/mathdrill/internal/config"
	"github.com/abhisek/mathdrill/internal/delivery"
	"github.com/abhisek/mathdrill/internal/logging"
	"github.com/abhisek/mathdrill/internal/metrics"
	"github.com/abhisek/mathdrill/internal/screens/practice"
	"github.com/abhisek/mathdrill/internal/session"
	"github.com/abhisek/mathdrill/internal/store"
)

// runtime bundles the dependencies shared by the commands.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *store.Store
	metrics *metrics.Metrics
	client  delivery.Client

	closers []func() error
}

// setup loads config, opens the log, the journal and the delivery client.
// console mirrors log output to w; the TUI passes nil.
func setup(ctx context.Context, console io.Writer) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, metrics: metrics.New()}

	logger, closeLog, err := logging.New(cfg.Log, logging.Options{Console: console})
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	rt.logger = logger
	rt.closers = append(rt.closers, closeLog)

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("resolve DB path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	rt.store = st
	rt.closers = append(rt.closers, st.Close)

	hc, err := delivery.NewHTTPClient(cfg.DeliveryConfig(),
		delivery.WithLogger(logger),
		delivery.WithMetrics(rt.metrics),
	)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("create delivery client: %w", err)
	}
	rt.client = delivery.WithJournal(hc, st.EventRepo(), logger)

	if cfg.MetricsAddr != "" {
		rt.serveMetrics(ctx, cfg.MetricsAddr)
	}
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
	rt.closers = nil
}

// practice runs the TUI for sessionID starting at page.
func (rt *runtime) practice(ctx context.Context, sessionID string, page int) error {
	ctrl := session.New(rt.client, sessionID,
		session.WithLogger(rt.logger),
		session.WithMetrics(rt.metrics),
		session.WithJournal(rt.store.EventRepo()),
		session.WithSnapshots(rt.store.SnapshotRepo()),
		session.WithAutosaveDelay(rt.cfg.Autosave.Delay),
		session.WithRetry(rt.cfg.RetryConfig()),
	)

	scr := practice.New(practice.Deps{
		Controller: ctrl,
		Client:     rt.client,
		StartPage:  page,
		IdleAfter:  rt.cfg.Inactivity.IdleAfter,
		Logger:     rt.logger,
	})

	rt.logger.Info("practice started", zap.String("session_id", sessionID), zap.Int("page", page))
	return app.Run(ctx, scr)
}

// serveMetrics exposes the Prometheus registry until ctx ends.
func (rt *runtime) serveMetrics(ctx context.Context, addr string) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(rt.metrics.Handler()))

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	rt.closers = append(rt.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}
