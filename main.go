// Command nildb runs one node of the decentralized data network: the HTTP
// API, the background query executor, and the optional metrics listener.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"nildb/application/services"
	"nildb/domain"
	"nildb/infrastructure/config"
	"nildb/infrastructure/mongodb"
	"nildb/infrastructure/persistence"
	storemongo "nildb/infrastructure/persistence/mongodb"
	"nildb/infrastructure/revocation"
	"nildb/interfaces/http/rest"
	"nildb/interfaces/http/rest/handlers"
	"nildb/pkg/auth"
	"nildb/pkg/nuc"
	"nildb/pkg/observability"
)

// Set at build time through -ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildTime = ""
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("invalid log level %q: %v", cfg.LogLevel, err)
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = logLevel
	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	keypair, err := nuc.KeypairFromHex(cfg.NodeSecretKey)
	if err != nil {
		logger.Fatal("invalid node secret key", zap.Error(err))
	}
	anchor, err := nuc.PublicKeyFromHex(cfg.TrustAnchorPublicKey)
	if err != nil {
		logger.Fatal("invalid trust anchor public key", zap.Error(err))
	}
	node := keypair.DID()
	logger.Info("node identity ready", zap.String("did", node.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := mongodb.Connect(ctx, cfg.DBURI, cfg.DBNamePrimary, cfg.DBNameData, logger)
	if err != nil {
		logger.Fatal("store connection failed", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Disconnect(shutdownCtx); err != nil {
			logger.Error("store disconnect failed", zap.Error(err))
		}
	}()

	builders := persistence.NewCachedBuilderRepository(storemongo.NewBuilderRepository(client, logger), logger)
	collections := storemongo.NewCollectionRepository(client, logger)
	users := storemongo.NewUserRepository(client, logger)
	queries := storemongo.NewQueryRepository(client, logger)
	runs := storemongo.NewRunRepository(client, logger)
	data := storemongo.NewDataRepository(client, logger)
	configRepo := storemongo.NewConfigRepository(client, logger)

	revocations := revocation.NewClient(cfg.TrustAnchorBaseURL, logger)
	verifier := auth.NewVerifier(node, anchor, revocations, builders, users, logger)

	build := domain.BuildInfo{Version: version, Commit: commit}
	if parsed, err := time.Parse(time.RFC3339, buildTime); err == nil {
		build.Time = parsed
	}

	builderSvc := services.NewBuilderService(node, builders, collections, queries, users, data, logger)
	collectionSvc := services.NewCollectionService(builders, collections, users, data, logger)
	dataSvc := services.NewDataService(collections, users, data, logger)
	querySvc := services.NewQueryService(builders, collections, queries, runs, data, logger, services.DefaultRunTimeout)
	userSvc := services.NewUserService(collections, users, data, logger)
	systemSvc := services.NewSystemService(configRepo, keypair.PublicKeyHex(), cfg.NodePublicEndpoint, build, logger)

	metrics := observability.NewMetrics()
	querySvc.SetRunObserver(metrics)

	router := rest.NewRouter(rest.Deps{
		Logger:      logger,
		Metrics:     metrics,
		Verifier:    verifier,
		Config:      configRepo,
		Builders:    handlers.NewBuilderHandler(builderSvc, logger),
		Collections: handlers.NewCollectionHandler(collectionSvc, logger),
		Data:        handlers.NewDataHandler(dataSvc, metrics, logger),
		Queries:     handlers.NewQueryHandler(querySvc, logger),
		Users:       handlers.NewUserHandler(userSvc, logger),
		System:      handlers.NewSystemHandler(systemSvc, logLevel, logger),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsServer *http.Server
	if cfg.FeatureEnabled(config.FeatureMetrics) {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("metrics listener starting", zap.Int("port", cfg.MetricsPort))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	go func() {
		logger.Info("api listener starting",
			zap.Int("port", cfg.WebPort),
			zap.String("endpoint", cfg.NodePublicEndpoint),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api listener failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics shutdown failed", zap.Error(err))
		}
	}
}
