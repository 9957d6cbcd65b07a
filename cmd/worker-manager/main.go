// cmd/worker-manager/main.go
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"permit-workers/internal/common/auth"
	"permit-workers/internal/common/aws"
	"permit-workers/internal/common/camunda"
	"permit-workers/internal/common/config"
	"permit-workers/internal/common/database"
	"permit-workers/internal/common/lock"
	"permit-workers/internal/common/logger"
	"permit-workers/internal/common/observability"
	"permit-workers/internal/common/validation"
	"permit-workers/internal/store"
	"permit-workers/internal/workflow/access"
	"permit-workers/internal/workflow/audit"
	"permit-workers/internal/workflow/catalog"
	"permit-workers/internal/workflow/directory"
	"permit-workers/internal/workflow/inspection"
	"permit-workers/internal/workflow/notify"
	"permit-workers/internal/workflow/progression"
	"permit-workers/internal/workflow/requirements"
	"permit-workers/pkg/registry"

	// Stage workers (4)
	adv "permit-workers/internal/workers/stages/advance-stage"
	chk "permit-workers/internal/workers/stages/check-access"
	gap "permit-workers/internal/workers/stages/get-application-progress"
	ls "permit-workers/internal/workers/stages/list-stages"

	// Requirement workers (1)
	mr "permit-workers/internal/workers/requirements/mark-requirement"

	// Inspection workers (5)
	api "permit-workers/internal/workers/inspections/assign-pending-inspection"
	cis "permit-workers/internal/workers/inspections/cancel-inspection-schedule"
	cmi "permit-workers/internal/workers/inspections/complete-inspection-schedule"
	cri "permit-workers/internal/workers/inspections/create-inspection-schedule"
	fi "permit-workers/internal/workers/inspections/find-inspector"

	// Application workers (3)
	ca "permit-workers/internal/workers/applications/cancel-application"
	da "permit-workers/internal/workers/applications/decide-application"
	oa "permit-workers/internal/workers/applications/open-application"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: cfg.Camunda.UsePlaintext,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         time.Duration(cfg.Camunda.RequestTimeout) * time.Millisecond,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if cfg.Database.Postgres.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			zapLog.Fatal("schema migration failed", zap.Error(err))
		}
		zapLog.Info("schema migrations applied")
	}
	st := store.NewPostgres(pg.DB)

	// --- Booking lock: Redis when configured, in-process otherwise ---
	var locker lock.Locker = lock.NewMemory()
	if cfg.Database.Redis.Enabled {
		var rdb *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rdb.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		locker = lock.NewRedis(rdb.Client)
		zapLog.Info("Redis connected successfully")
	} else {
		zapLog.Warn("redis disabled, booking locks are local to this process")
	}

	// --- Requirement audit sink ---
	var sink requirements.AuditSink
	if cfg.Database.Elasticsearch.Enabled() {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		sink = audit.NewElasticsearchSink(esClient.Client, cfg.Database.Elasticsearch.AuditIndex, log)
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Event publishers ---
	var publishers notify.Multi
	if cfg.Notifications.SNS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		publishers = append(publishers, notify.NewSNSPublisher(snsClient, cfg.Notifications.SNS.TopicARN))
	}
	if cfg.Notifications.SES.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client failed", zap.Error(err))
		}
		publishers = append(publishers, notify.NewSESMailer(sesClient, cfg.Notifications.SES.FromEmail, cfg.Notifications.SES.OpsEmail))
	}
	var publisher notify.Publisher = notify.Nop{}
	if len(publishers) > 0 {
		publisher = publishers
	}

	// --- Actor directory ---
	var (
		dir      directory.Directory
		keycloak *auth.KeycloakClient
	)
	switch cfg.Auth.Directory {
	case "keycloak":
		keycloak = auth.NewKeycloakClient(
			cfg.Auth.Keycloak.URL,
			cfg.Auth.Keycloak.Realm,
			cfg.Auth.Keycloak.ClientID,
			cfg.Auth.Keycloak.ClientSecret,
		)
		dir = directory.NewKeycloak(keycloak)
	default:
		dir = directory.NewStore(st)
	}
	zapLog.Info("actor directory selected", zap.String("directory", cfg.Auth.Directory))

	// --- Workflow services ---
	cat, err := catalog.Load(cfg.Workflow.CatalogPath)
	if err != nil {
		zapLog.Fatal("stage catalog failed", zap.Error(err))
	}
	tracker := requirements.NewTracker(cat, st, sink, log)
	guard := access.NewGuard(cat, tracker, st, dir, log)
	engine := progression.NewEngine(cat, tracker, st, dir, publisher,
		progression.Options{AutoApproveFinalStage: cfg.Workflow.AutoApproveFinalStage}, log)
	matcher := inspection.NewMatcher(st, log)
	scheduler := inspection.NewScheduler(cat, tracker, st, matcher, locker, dir, publisher,
		inspection.SchedulerOptions{LockTTL: time.Duration(cfg.Workflow.LockTTL) * time.Millisecond}, log)

	reg, err := registry.Default()
	if err != nil {
		zapLog.Fatal("activity registry failed", zap.Error(err))
	}
	validator, err := validation.NewValidator(reg)
	if err != nil {
		zapLog.Fatal("input schemas failed to compile", zap.Error(err))
	}
	runner := camunda.NewRunner(validator, obs, zeebe, log)

	// --- Register workers ---
	timeout := func(taskType string) time.Duration {
		return config.HandlerTimeout(cfg, taskType)
	}
	handlers := map[string]camunda.JobHandler{
		ls.TaskType: ls.NewHandler(
			&ls.Config{Timeout: timeout(ls.TaskType)},
			cat, runner, log),
		gap.TaskType: gap.NewHandler(
			&gap.Config{Timeout: timeout(gap.TaskType)},
			guard, engine, tracker, runner, log),
		adv.TaskType: adv.NewHandler(
			&adv.Config{Timeout: timeout(adv.TaskType)},
			guard, engine, runner, log),
		chk.TaskType: chk.NewHandler(
			&chk.Config{Timeout: timeout(chk.TaskType)},
			guard, runner, log),
		mr.TaskType: mr.NewHandler(
			&mr.Config{Timeout: timeout(mr.TaskType)},
			cat, guard, tracker, runner, log),
		fi.TaskType: fi.NewHandler(
			&fi.Config{Timeout: timeout(fi.TaskType)},
			matcher, runner, log),
		cri.TaskType: cri.NewHandler(
			&cri.Config{Timeout: timeout(cri.TaskType)},
			cat, guard, scheduler, runner, log),
		cmi.TaskType: cmi.NewHandler(
			&cmi.Config{Timeout: timeout(cmi.TaskType)},
			cat, guard, scheduler, runner, log),
		cis.TaskType: cis.NewHandler(
			&cis.Config{Timeout: timeout(cis.TaskType)},
			guard, scheduler, runner, log),
		api.TaskType: api.NewHandler(
			&api.Config{Timeout: timeout(api.TaskType)},
			guard, scheduler, runner, log),
		oa.TaskType: oa.NewHandler(
			&oa.Config{Timeout: timeout(oa.TaskType)},
			guard, engine, runner, log),
		ca.TaskType: ca.NewHandler(
			&ca.Config{Timeout: timeout(ca.TaskType)},
			guard, engine, scheduler, runner, log),
		da.TaskType: da.NewHandler(
			&da.Config{Timeout: timeout(da.TaskType)},
			guard, engine, scheduler, runner, log),
	}

	var workers []*camunda.CamundaWorker
	for _, taskType := range reg.TaskTypes() {
		handler, ok := handlers[taskType]
		if !ok {
			zapLog.Warn("registry activity has no handler", zap.String("taskType", taskType))
			continue
		}
		if w := camunda.StartWorker(zeebe.GetClient(), taskType, config.GetWorkerConfig(cfg, taskType), handler, log); w != nil {
			workers = append(workers, w)
		}
	}
	zapLog.Info("workers registered", zap.Int("started", len(workers)), zap.Int("known", len(handlers)))

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		checks := map[string]string{"zeebe": "ok", "store": "ok"}
		code := http.StatusOK
		if err := zeebe.HealthCheck(checkCtx); err != nil {
			checks["zeebe"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		if err := st.Ping(checkCtx); err != nil {
			checks["store"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		if keycloak != nil {
			checks["keycloak"] = "ok"
			if err := keycloak.HealthCheck(checkCtx); err != nil {
				checks["keycloak"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		writeStatus(w, code, checks)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.App.HTTPAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.App.HTTPAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped")
}

func writeStatus(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
