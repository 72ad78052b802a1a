// Command server wires the lifecycle engine: postgres-backed stores, the
// claim/policy orchestrators, the lookup read side, and the HTTP surface.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"claimstack/internal/audit"
	"claimstack/internal/authz"
	claimhandler "claimstack/internal/claim/handler"
	claimservice "claimstack/internal/claim/service"
	claimstore "claimstack/internal/claim/store"
	dirstore "claimstack/internal/directory/store"
	httpapi "claimstack/internal/http"
	lookuphandler "claimstack/internal/lookup/handler"
	lookupservice "claimstack/internal/lookup/service"
	"claimstack/internal/platform/config"
	"claimstack/internal/platform/httpserver"
	"claimstack/internal/platform/logger"
	"claimstack/internal/platform/metrics"
	"claimstack/internal/platform/middleware"
	"claimstack/internal/platform/postgres"
	"claimstack/internal/platform/redis"
	policyhandler "claimstack/internal/policy/handler"
	policyservice "claimstack/internal/policy/service"
	policystore "claimstack/internal/policy/store"
	"claimstack/pkg/platform/tx"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var publisher audit.Publisher = audit.NoopPublisher{}
	if cfg.Kafka.Brokers != "" {
		kafka, err := audit.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Error("kafka connection failed", "error", err)
			os.Exit(1)
		}
		publisher = kafka
	}
	defer publisher.Close()

	directory := dirstore.NewPostgres(db)
	claims := claimstore.NewPostgres(db)
	policies := policystore.NewPostgres(db)
	authorizer := authz.New(directory, directory)
	runner := tx.NewSQLRunner(db)
	recorder := audit.NewRecorder(audit.NewPostgres(db), publisher, log)

	claimSvc := claimservice.New(
		claims,
		directory,
		&policyRefAdapter{policies: policies},
		authorizer,
		runner,
		recorder,
		log,
	)
	policySvc := policyservice.New(policies, directory, authorizer, runner, recorder, log)

	var cache lookupservice.Cache
	if redisClient != nil {
		cache = lookupservice.NewRedisCache(redisClient, log)
	}
	lookupSvc := lookupservice.New(directory, policies, authorizer, cache, log)

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:    log,
		Metrics:   metrics.New(),
		Validator: middleware.NewHSValidator(cfg.JWTSigningKey),
		Handlers: []httpapi.Registrar{
			claimhandler.New(claimSvc, log),
			policyhandler.New(policySvc, log),
			lookuphandler.New(lookupSvc, log),
		},
		Checks: map[string]httpapi.HealthChecker{
			"postgres": dbChecker{db: db},
			"redis":    redisChecker(redisClient),
		},
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// policyRefAdapter bridges the policy store into the claim engine's narrow
// policy view without coupling the two modules.
type policyRefAdapter struct {
	policies policystore.Store
}

func (a *policyRefAdapter) FindPolicyRef(ctx context.Context, orgID, policyID uuid.UUID) (*claimservice.PolicyRef, error) {
	policy, err := a.policies.FindByID(ctx, orgID, policyID)
	if err != nil {
		return nil, err
	}
	return &claimservice.PolicyRef{
		ID:       policy.ID,
		ClientID: policy.ClientID,
		Status:   policy.Status,
	}, nil
}

type dbChecker struct {
	db interface {
		PingContext(ctx context.Context) error
	}
}

func (c dbChecker) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// redisChecker hides the nil client behind a nil HealthChecker so the health
// endpoint skips an unconfigured redis.
func redisChecker(client *redis.Client) httpapi.HealthChecker {
	if client == nil {
		return nil
	}
	return client
}
