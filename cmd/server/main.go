package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ledger-service/internal/accrual"
	"ledger-service/internal/auth"
	"ledger-service/internal/config"
	"ledger-service/internal/domain"
	apphttp "ledger-service/internal/http"
	"ledger-service/internal/ledger"
	"ledger-service/internal/repository"
	"ledger-service/internal/repository/memory"
	"ledger-service/internal/repository/sqlite"
	"ledger-service/internal/service"
	"ledger-service/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Fatalf("auth jwt secret is required")
	}

	policy, err := accrualPolicy(cfg)
	if err != nil {
		logger.Fatalf("accrual policy: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	accountRepo, userRepo, db, err := buildRepositories(cfg)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	if db != nil {
		defer db.Close()
	}

	if err := accountRepo.Init(ctx); err != nil {
		logger.Fatalf("init account repository: %v", err)
	}
	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}

	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	if err != nil {
		logger.Fatalf("setup tokens: %v", err)
	}

	locks := ledger.NewRegistry()
	engine := ledger.NewEngine(ledger.Config{
		LockTimeout: cfg.Ledger.LockTimeout,
		Logger:      logger,
	}, accountRepo, locks)

	schedulerCfg := accrual.Config{
		Interval:    cfg.Accrual.Interval,
		Policy:      policy,
		LockTimeout: cfg.Ledger.LockTimeout,
		Logger:      logger,
	}

	var snapshots apphttp.SnapshotLister
	if cfg.Storage.Bucket != "" {
		storageSvc, err := buildStorage(ctx, cfg, logger)
		if err != nil {
			logger.Fatalf("setup storage: %v", err)
		}
		archiver := storage.NewSnapshotArchiver(storageSvc, cfg.Storage.Bucket, cfg.Storage.KeyPrefix)
		schedulerCfg.Archiver = archiver
		snapshots = archiver
	} else {
		logger.Warn("storage bucket not set, balance snapshots will not be archived")
	}

	scheduler := accrual.NewScheduler(schedulerCfg, accountRepo, locks)
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatalf("start accrual scheduler: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(
		service.NewUserService(userRepo),
		service.NewAccountService(accountRepo),
		engine,
		tokens,
		auth.NewResolver(tokens, userRepo),
		snapshots,
	)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	scheduler.Shutdown()

	logger.Info("bye")
}

func buildRepositories(cfg config.Config) (repository.AccountRepository, repository.UserRepository, *sql.DB, error) {
	if cfg.Database.Driver == "memory" {
		store := memory.NewStore()
		return store.Accounts(), store.Users(), nil, nil
	}

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, err
	}
	return sqlite.NewAccountRepository(db), sqlite.NewUserRepository(db), db, nil
}

func accrualPolicy(cfg config.Config) (domain.AccrualPolicy, error) {
	rate, err := decimal.NewFromString(cfg.Accrual.GrowthRate)
	if err != nil {
		return domain.AccrualPolicy{}, fmt.Errorf("growth rate: %w", err)
	}
	ceiling, err := decimal.NewFromString(cfg.Accrual.CeilingMultiplier)
	if err != nil {
		return domain.AccrualPolicy{}, fmt.Errorf("ceiling multiplier: %w", err)
	}
	if rate.LessThanOrEqual(decimal.NewFromInt(1)) || ceiling.LessThanOrEqual(decimal.NewFromInt(1)) {
		return domain.AccrualPolicy{}, fmt.Errorf("growth rate and ceiling multiplier must be greater than 1")
	}
	return domain.AccrualPolicy{GrowthRate: rate, CeilingMultiplier: ceiling}, nil
}

func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("archiving balance snapshots to s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client), nil
}
