// Command broker runs the IoT message broker routing core: it wires the
// data-model, routing cache, connection pool, manager lifecycle supervisor,
// routing engine and control plane together, serves an ambient health/status
// HTTP surface, and shuts everything down in order on SIGINT/SIGTERM.
//
// Wiring here is hand-written constructor injection rather than a
// generated-provider-set DI container (google/wire is dropped, see
// DESIGN.md).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sylvia-iot/broker-core/internal/cache"
	"github.com/sylvia-iot/broker-core/internal/config"
	"github.com/sylvia-iot/broker-core/internal/control"
	"github.com/sylvia-iot/broker-core/internal/logger"
	"github.com/sylvia-iot/broker-core/internal/model/sqlite"
	"github.com/sylvia-iot/broker-core/internal/mq"
	"github.com/sylvia-iot/broker-core/internal/routing"
	"github.com/sylvia-iot/broker-core/internal/supervisor"
)

// defaultExpiresInMillis is the downlink expiry used when a submission
// omits expiresIn or sets it to zero (Open Question decision #2).
const defaultExpiresInMillis = 86_400_000

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		panic(err)
	}
	if configPath := os.Getenv("BROKER_CONFIG_FILE"); configPath != "" {
		if err := config.LoadFile(cfg, configPath); err != nil {
			panic(err)
		}
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logCfg.Development = cfg.LogDevelopment
	logCfg.JSONOutput = !cfg.LogDevelopment
	logger.Init(logCfg)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx, cfg)
	if err != nil {
		logger.Fatal("broker bootstrap failed", zap.Error(err))
	}

	app.run(ctx)
}

// application bundles every long-lived component started by main, so
// shutdown can tear them down in a fixed, documented order.
type application struct {
	cfg *config.Settings

	db     *sqlite.DB
	pool   *mq.Pool
	engine *routing.Engine
	sup    *supervisor.Supervisor
	plane  *control.Plane
	http   *echo.Echo

	reaperDone chan struct{}
}

func bootstrap(ctx context.Context, cfg *config.Settings) (*application, error) {
	db, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	m := sqlite.NewModel(db)

	rc := cache.NewRouting(cfg.CacheEngine, cfg.CacheMemory)

	pool := mq.NewPool(mq.NewDialer(cfg.MQSharedPrefix))

	// Two-phase construction: the supervisor must exist before the routing
	// engine (which needs it as AppManagerLookup/NetManagerLookup), and the
	// engine must exist before the supervisor can dispatch manager handlers.
	sup := supervisor.New(pool, cfg.MQPrefetch, cfg.QueueConnectTimeout, cfg.ManagerCloseGrace)
	eng := routing.New(m, rc, sup, sup, defaultExpiresInMillis)
	sup.SetEngine(eng)

	plane := control.New(cfg.MQChannels, cfg.MQPrefetch, pool, rc, sup)

	e := newHealthServer(cfg, sup, plane)

	return &application{
		cfg:        cfg,
		db:         db,
		pool:       pool,
		engine:     eng,
		sup:        sup,
		plane:      plane,
		http:       e,
		reaperDone: make(chan struct{}),
	}, nil
}

func (a *application) run(ctx context.Context) {
	if err := a.plane.Start(ctx); err != nil {
		logger.Fatal("control plane failed to start", zap.Error(err))
	}
	logger.Info("control plane started")

	go a.runReaper(ctx)

	go func() {
		logger.Info("health server listening", zap.String("addr", a.cfg.HealthAddr))
		if err := a.http.Start(a.cfg.HealthAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("health server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	a.shutdown()
}

// runReaper periodically sweeps the downlink correlation buffer for expired
// entries until ctx is cancelled.
func (a *application) runReaper(ctx context.Context) {
	defer close(a.reaperDone)

	ticker := time.NewTicker(a.cfg.DlDataReaperInterval)
	defer ticker.Stop()

	const reapBatchLimit = 500

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.engine.Reap(ctx, reapBatchLimit)
			if err != nil {
				logger.WarnCtx(ctx, "dldata reaper sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.InfoCtx(ctx, "dldata reaper swept expired entries", zap.Int("count", n))
			}
		}
	}
}

// shutdown tears components down in dependency order: stop accepting new
// control-plane mutations and health traffic first, then close every live
// manager, then the connection pool, then the database: dependents before
// their dependencies, the same ordering a ShutdownCoordinator enforces for
// schedulers before event bus before database.
func (a *application) shutdown() {
	logger.Info("broker shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown error", zap.Error(err))
	}

	<-a.reaperDone

	a.plane.Close(shutdownCtx)
	logger.Info("control plane closed")

	a.sup.CloseAll(shutdownCtx)
	logger.Info("manager supervisor drained")

	a.pool.CloseAll(shutdownCtx)
	logger.Info("connection pool closed")

	if err := a.db.Close(); err != nil {
		logger.Warn("database close error", zap.Error(err))
	}

	logger.Info("broker shutdown complete")
}
