package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/vendimia/refledger/config"
	appmodel "github.com/vendimia/refledger/internal/app/model"
	apprepository "github.com/vendimia/refledger/internal/app/repository"
	appserver "github.com/vendimia/refledger/internal/app/server"
	appservice "github.com/vendimia/refledger/internal/app/service"
	infraLock "github.com/vendimia/refledger/internal/infra/lock"
	"github.com/vendimia/refledger/internal/infra/logger"
	infraNATS "github.com/vendimia/refledger/internal/infra/nats"
	infraPostgres "github.com/vendimia/refledger/internal/infra/postgres"
	infraPrometheus "github.com/vendimia/refledger/internal/infra/prometheus"
	infraRedis "github.com/vendimia/refledger/internal/infra/redis"
	"go.uber.org/zap"
)

const settlementLockTTL = 30 * time.Second

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("nats_host", cfg.NATS.Host),
		zap.Int("clicks_per_credit", cfg.Accrual.ClicksPerCredit),
		zap.String("settlement_threshold", cfg.Settlement.Threshold),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB,
		&appmodel.ValidatedClick{},
		&appmodel.AffiliateLink{},
		&appmodel.Commission{},
		&appmodel.BalanceMovement{},
		&appmodel.SellerBalance{},
	); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	natsConn, js, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully", zap.Bool("jetstream_ready", js != nil))

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	clickRepo := apprepository.NewValidatedClickRepository(gormDB)
	linkRepo := apprepository.NewAffiliateLinkRepository(gormDB)
	commissionRepo := apprepository.NewCommissionRepository(gormDB)
	movementRepo := apprepository.NewBalanceMovementRepository(gormDB)
	balanceRepo := apprepository.NewSellerBalanceRepository(gormDB)
	txManager := apprepository.NewTxManager(gormDB)
	resummer := apprepository.NewBalanceResummer(pool)

	classifier := appservice.NewFraudClassifier(clickRepo, cfg.Fraud, log)
	ledger := appservice.NewClickLedger(txManager, linkRepo, cfg.Accrual, log)
	commissions := appservice.NewCommissionService(commissionRepo, log)
	balances := appservice.NewBalanceService(balanceRepo, movementRepo, resummer, log)

	locker := infraLock.NewAffiliateLocker(redisClient, settlementLockTTL, log)
	notifier := appservice.NewSettlementNotifier(js, log)
	engine := appservice.NewSettlementEngine(txManager, locker, notifier, cfg.Settlement.ThresholdAmount(), log)

	consumer := appservice.NewNotificationConsumer(js, log)
	if err := consumer.Start(); err != nil {
		log.Warn("Settlement notification consumer unavailable", zap.Error(err))
	}

	resolver := appservice.SelfSellerResolver{}

	if cfg.Settlement.SweepIntervalSeconds > 0 {
		sweeper := appservice.NewSettlementSweeper(log, commissionRepo, engine, resolver,
			cfg.Settlement.ThresholdAmount(),
			time.Duration(cfg.Settlement.SweepIntervalSeconds)*time.Second)
		sweeper.Start()
		defer sweeper.Stop()
	}

	server := appserver.New(appserver.Dependencies{
		Logger:      log,
		Config:      cfg,
		Postgres:    pool,
		Redis:       redisClient,
		NATS:        natsConn,
		JetStream:   js,
		Classifier:  classifier,
		Ledger:      ledger,
		Commissions: commissions,
		Settlements: engine,
		Balances:    balances,
		Clicks:      clickRepo,
		Resolver:    resolver,
	})

	if err := server.Listen(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}
