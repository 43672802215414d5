package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"crosslink/internal/audit"
	auditworker "crosslink/internal/audit/worker"
	"crosslink/internal/authz"
	identityhandler "crosslink/internal/identity/handler"
	identityservice "crosslink/internal/identity/service"
	identitystore "crosslink/internal/identity/store"
	attributestore "crosslink/internal/identity/store/attribute"
	identitycontext "crosslink/internal/identity/store/context"
	historystore "crosslink/internal/identity/store/history"
	integrationhandler "crosslink/internal/integration/handler"
	integrationservice "crosslink/internal/integration/service"
	integrationstore "crosslink/internal/integration/store"
	integrationstores "crosslink/internal/integration/store/integration"
	mappingstore "crosslink/internal/integration/store/mapping"
	"crosslink/internal/jwttoken"
	"crosslink/internal/platform/config"
	"crosslink/internal/platform/httpserver"
	"crosslink/internal/platform/logger"
	"crosslink/internal/platform/postgres"
	platformredis "crosslink/internal/platform/redis"
	synchandler "crosslink/internal/sync/handler"
	"crosslink/internal/sync/lock"
	syncmetrics "crosslink/internal/sync/metrics"
	syncservice "crosslink/internal/sync/service"
	syncstore "crosslink/internal/sync/store"
	ledgerstore "crosslink/internal/sync/store/ledger"
	trusthandler "crosslink/internal/trust/handler"
	trustmetrics "crosslink/internal/trust/metrics"
	"crosslink/internal/trust/provider"
	trustservice "crosslink/internal/trust/service"
	truststore "crosslink/internal/trust/store"
	verificationstore "crosslink/internal/trust/store/verification"
	httptransport "crosslink/internal/transport/http"
)

const outboxDrainInterval = 2 * time.Second

type stores struct {
	contexts     identitystore.ContextStore
	attributes   identitystore.AttributeStore
	history      identitystore.HistoryStore
	integrations integrationstore.IntegrationStore
	mappings     integrationstore.MappingStore
	ledger       syncstore.LedgerStore
	trail        truststore.VerificationLogStore
	audit        audit.Store
}

func main() {
	log := logger.New()
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.Postgres.DSN != "" {
		var err error
		db, err = postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			log.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db, "migrations"); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	}
	st := buildStores(db)

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	var locker lock.Locker = lock.NewMemory()
	if redisClient != nil {
		defer redisClient.Close()
		locker = lock.NewRedis(redisClient.Client)
	}

	permissions := authz.NewStaticPermissions()
	if cfg.Authz.AllowAll {
		permissions.AllowAll = true
		log.Warn("authorization checks are bypassed, do not run this in production",
			"flag", "CROSSLINK_AUTHZ_ALLOW_ALL",
		)
	}
	gate := authz.NewGate(permissions)

	auditPublisher := audit.NewPublisher(st.audit, log)

	identitySvc := identityservice.New(st.contexts, st.attributes, st.history, gate, auditPublisher, log)
	integrationSvc := integrationservice.New(st.integrations, st.mappings, st.contexts, st.history, gate, auditPublisher, log)
	syncSvc := syncservice.New(
		st.integrations, st.mappings, st.attributes, st.history, st.ledger,
		locker, gate, auditPublisher, log,
		syncservice.WithLockTTL(cfg.Sync.LockTTL),
		syncservice.WithTimeout(cfg.Sync.CallTimeout),
		syncservice.WithMetrics(syncmetrics.New()),
	)
	trustSvc := trustservice.New(
		st.contexts, st.attributes, st.history, st.trail,
		provider.MockClient{Latency: 50 * time.Millisecond},
		gate, auditPublisher, trustmetrics.New(), log,
	)

	tokens := jwttoken.NewService(cfg.Server.JWTSigningKey, "crosslink", "crosslink-api")
	router := httptransport.NewRouter(httptransport.Handlers{
		Identity:    identityhandler.New(identitySvc, log),
		Integration: integrationhandler.New(integrationSvc, log),
		Sync:        synchandler.New(syncSvc, log),
		Trust:       trusthandler.New(trustSvc, log),
	}, tokens, log, func(r *http.Request) error {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				return err
			}
		}
		if redisClient != nil {
			return redisClient.Health(r.Context())
		}
		return nil
	})

	server := httpserver.New(cfg.Server.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if db != nil && len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers...),
			kgo.DefaultProduceTopic(cfg.Kafka.AuditTopic),
		)
		if err != nil {
			log.Error("kafka unavailable", "error", err)
			os.Exit(1)
		}
		defer kafkaClient.Close()
		if err := auditworker.EnsureTopic(ctx, kafkaClient, cfg.Kafka.AuditTopic, 3); err != nil {
			log.Error("audit topic setup failed", "error", err)
			os.Exit(1)
		}
		worker := auditworker.New(db, kafkaClient, cfg.Kafka.AuditTopic, outboxDrainInterval, log)
		group.Go(func() error {
			if err := worker.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// buildStores selects PostgreSQL persistence when a database is configured
// and falls back to in-memory stores for local development.
func buildStores(db *sql.DB) stores {
	if db == nil {
		return stores{
			contexts:     identitycontext.NewMemory(),
			attributes:   attributestore.NewMemory(),
			history:      historystore.NewMemory(),
			integrations: integrationstores.NewMemory(),
			mappings:     mappingstore.NewMemory(),
			ledger:       ledgerstore.NewMemory(),
			trail:        verificationstore.NewMemory(),
			audit:        audit.NewMemoryStore(),
		}
	}
	return stores{
		contexts:     identitycontext.NewPostgres(db),
		attributes:   attributestore.NewPostgres(db),
		history:      historystore.NewPostgres(db),
		integrations: integrationstores.NewPostgres(db),
		mappings:     mappingstore.NewPostgres(db),
		ledger:       ledgerstore.NewPostgres(db),
		trail:        verificationstore.NewPostgres(db),
		audit:        audit.NewPostgres(db),
	}
}
