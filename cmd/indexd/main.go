package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/consumer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/controller"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/meta"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg); err != nil {
		slog.Error("indexd failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting indexd", "data_dir", cfg.Indexer.DataDir)
	m := metrics.New(prometheus.DefaultRegisterer)
	checker := health.NewChecker()
	opts := []controller.Option{controller.WithMetrics(m)}

	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		store := meta.NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating metadata schema: %w", err)
		}
		opts = append(opts, controller.WithMetaStore(store))
		checker.Register("postgres", health.PingCheck(db.Ping))
	}

	var notifiers notify.Fanout
	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rc.Close()
		notifiers = append(notifiers, guard("redis-status", notify.NewRedisNotifier(rc, cfg.Redis.StatusTTL), m))
		checker.Register("redis", health.PingCheck(rc.Ping))
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.UpdateStatus)
		defer producer.Close()
		notifiers = append(notifiers, guard("kafka-status", notify.NewKafkaNotifier(producer), m))
	}
	if len(notifiers) > 0 {
		opts = append(opts, controller.WithNotifier(notifiers))
	}

	ctrl, err := controller.NewLocal(ctx, cfg.Indexer, opts...)
	if err != nil {
		return fmt.Errorf("opening index controller: %w", err)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			slog.Error("closing index controller", "error", err)
		}
	}()
	checker.Register("controller", health.PingCheck(ctrl.Ping))

	if cfg.Metrics.Enabled {
		routes := map[string]http.Handler{
			"/health/live":  checker.LiveHandler(),
			"/health/ready": checker.ReadyHandler(),
			"/indexes":      statsHandler(ctrl),

			"GET /indexes/{name}/updates":        updatesHandler(ctrl),
			"GET /indexes/{name}/documents/{id}": documentHandler(ctrl),
		}
		for path, h := range routes {
			routes[path] = middleware.Chain(h,
				middleware.Metrics(m, path),
				middleware.Timeout(cfg.Server.WriteTimeout),
			)
		}
		shutdown := metrics.StartServer(cfg.Metrics.Port, routes)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				slog.Error("metrics server shutdown", "error", err)
			}
		}()
	}

	if !cfg.Kafka.Enabled {
		slog.Info("indexd ready, kafka disabled; waiting for shutdown")
		<-ctx.Done()
		slog.Info("indexd stopping")
		return nil
	}

	kc := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.UpdateRequests, consumer.HandleMessage(ctrl))
	defer kc.Close()
	slog.Info("indexd ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.UpdateRequests,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := consumer.New(kc).Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}
	slog.Info("indexd stopping")
	return nil
}

func guard(name string, n controller.Notifier, m *metrics.Metrics) *notify.Guarded {
	return notify.NewGuarded(name, n,
		resilience.CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second},
		resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond},
		m,
	)
}

func statsHandler(ctrl *controller.LocalController) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(ctrl.Stats()); err != nil {
			slog.Error("failed to write index stats", "error", err)
		}
	})
}

func updatesHandler(ctrl *controller.LocalController) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		statuses, err := indexUpdates(ctrl, name)
		if err != nil {
			http.Error(w, err.Error(), apperrors.HTTPStatusCode(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(statuses); err != nil {
			slog.Error("failed to write update statuses", "index", name, "error", err)
		}
	})
}

func indexUpdates(ctrl *controller.LocalController, name string) ([]controller.UpdateStatus, error) {
	h, found, err := ctrl.Index(name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.Newf(apperrors.ErrIndexNotFound, http.StatusNotFound, "index %q not found", name)
	}
	h.Release()
	statuses, err := ctrl.AllUpdateStatus(name)
	if err != nil {
		return nil, err
	}
	if statuses == nil {
		statuses = []controller.UpdateStatus{}
	}
	return statuses, nil
}

func documentHandler(ctrl *controller.LocalController) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, id := r.PathValue("name"), r.PathValue("id")
		h, found, err := ctrl.Index(name)
		if err != nil {
			http.Error(w, err.Error(), apperrors.HTTPStatusCode(err))
			return
		}
		if !found {
			http.Error(w, fmt.Sprintf("index %q not found", name), http.StatusNotFound)
			return
		}
		defer h.Release()
		doc, ok := h.DisplayedDocument(id)
		if !ok {
			http.Error(w, fmt.Sprintf("document %q not found", id), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(doc); err != nil {
			slog.Error("failed to write document", "index", name, "id", id, "error", err)
		}
	})
}
