package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Skufu/cardioscore/internal/api"
	"github.com/Skufu/cardioscore/internal/classifier"
	"github.com/Skufu/cardioscore/internal/config"
	"github.com/Skufu/cardioscore/internal/events"
	"github.com/Skufu/cardioscore/internal/features"
	"github.com/Skufu/cardioscore/internal/logging"
	"github.com/Skufu/cardioscore/internal/metrics"
	"github.com/Skufu/cardioscore/internal/predlog"
	"github.com/Skufu/cardioscore/internal/report"
	"github.com/Skufu/cardioscore/internal/risk"
	"github.com/Skufu/cardioscore/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}
	gin.SetMode(cfg.GinMode)
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	app, err := build(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	defer app.close()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(app.deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	log.WithFields(logrus.Fields{
		"port":          cfg.Port,
		"model":         cfg.ModelPath,
		"thal_encoding": cfg.ThalEncoding,
		"db":            cfg.EnableDB,
		"redis":         cfg.RedisEnabled(),
		"kafka":         cfg.KafkaEnabled(),
	}).Info("server listening")
	waitForShutdown(server, log)
}

type app struct {
	deps    api.Deps
	log     logrus.FieldLogger
	closers []namedCloser
}

type namedCloser struct {
	name string
	io.Closer
}

// close releases resources in reverse order of acquisition and reports
// every failure.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.Close(); err != nil {
			a.log.WithError(err).WithField("resource", c.name).Error("close failed")
		}
	}
	a.closers = nil
}

func (a *app) onClose(name string, c io.Closer) {
	a.closers = append(a.closers, namedCloser{name: name, Closer: c})
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// build wires every component from config. A missing or unreadable model is
// fatal; optional stores are only connected when configured.
func build(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*app, error) {
	a := &app{log: log}

	schema, err := features.NewSchema(cfg.ThalEncoding)
	if err != nil {
		return nil, err
	}
	art, err := classifier.Load(cfg.ModelPath, schema.Names())
	if err != nil {
		return nil, err
	}
	policy, err := risk.LoadPolicy(cfg.PolicyPath, schema)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	checks := map[string]api.HealthChecker{}
	var stats predlog.Store = predlog.NewMemoryStore()
	if cfg.EnableDB {
		pool, err := connectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		a.onClose("postgres", closerFunc(func() error { pool.Close(); return nil }))
		pg := predlog.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			a.close()
			return nil, err
		}
		stats = pg
		checks["db"] = pool
	}

	var sessions session.Store = session.NewMemoryStore(cfg.HistoryLimit)
	if cfg.RedisEnabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.onClose("redis", client)
		store := session.NewRedisStore(client, cfg.HistoryLimit, cfg.SessionTTL)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := store.Ping(pingCtx); err != nil {
			log.WithError(err).Error("failed to connect to Redis")
		} else {
			log.Info("connected to Redis")
		}
		cancel()
		sessions = store
		checks["redis"] = store
	}

	loggers := []report.PredictionLogger{stats}
	if cfg.KafkaEnabled() {
		pub := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		a.onClose("kafka", pub)
		loggers = append(loggers, pub)
	}

	adapter := classifier.NewAdapter(art.Model(), log.WithField("component", "classifier"))
	builder := report.NewBuilder(schema, adapter, policy,
		report.WithPredictionLoggers(loggers...),
		report.WithLogger(log.WithField("component", "report")),
	)

	log.WithFields(logrus.Fields{
		"name":    art.Metadata.Name,
		"version": art.Metadata.Version,
		"type":    art.Type,
	}).Info("model loaded")

	a.deps = api.Deps{
		Builder:      builder,
		Adapter:      adapter,
		Artifact:     art,
		Sessions:     sessions,
		Stats:        stats,
		Checks:       checks,
		Gatherer:     prometheus.DefaultGatherer,
		Log:          log,
		MaxBodyBytes: cfg.MaxBodyBytes,
	}
	return a, nil
}

func connectDB(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

func waitForShutdown(server *http.Server, log logrus.FieldLogger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
