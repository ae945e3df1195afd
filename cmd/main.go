package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/blancagut/PaySafer-sub000/internal/alerts"
	"github.com/blancagut/PaySafer-sub000/internal/auth"
	"github.com/blancagut/PaySafer-sub000/internal/config"
	"github.com/blancagut/PaySafer-sub000/internal/fee"
	"github.com/blancagut/PaySafer-sub000/internal/httpapi"
	"github.com/blancagut/PaySafer-sub000/internal/logger"
	"github.com/blancagut/PaySafer-sub000/internal/payout"
	"github.com/blancagut/PaySafer-sub000/internal/wallet"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type payoutRepository interface {
	payout.MethodRepository
	payout.RequestRepository
}

func main() {

	if err := godotenv.Load(); err != nil {
		fmt.Println("Error loading .env file", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalln(err)
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalln(err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		walletRepo wallet.Repository
		payoutRepo payoutRepository
		notifier   alerts.Notifier
		directory  alerts.Directory
	)

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := gorm.Open(postgres.Open(cfg.DBConnStr), &gorm.Config{
			TranslateError: true,
			Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			zl.Fatal("failed to connect to database", zap.Error(err))
		}

		wr := wallet.NewGormRepository(db)
		pr := payout.NewGormRepository(db)
		store := alerts.NewStore(db)
		for name, migrate := range map[string]func(context.Context) error{
			"wallet":  wr.Migrate,
			"payout":  pr.Migrate,
			"notices": store.Migrate,
		} {
			if err := migrate(ctx); err != nil {
				zl.Fatal("migration failed", zap.String("schema", name), zap.Error(err))
			}
		}
		walletRepo, payoutRepo, notifier = wr, pr, store
		directory = alerts.NewProfileDirectory(db)
	case config.DriverMemory:
		zl.Warn("using in-memory storage, data is lost on restart")
		walletRepo = wallet.NewMemoryRepository()
		payoutRepo = payout.NewMemoryRepository()
	}

	var mailer alerts.Mailer = alerts.NewLogMailer(zl)
	if cfg.RedisAddr != "" {
		redis := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		client := asynq.NewClient(redis)
		defer client.Close()
		mailer = alerts.NewQueueMailer(client)

		if cfg.SMTP.Enabled() && directory != nil {
			worker := alerts.NewEmailWorker(directory, alerts.NewSMTPSender(cfg.SMTP), zl)
			mux := asynq.NewServeMux()
			worker.Register(mux)
			srv := asynq.NewServer(redis, asynq.Config{
				Concurrency: 4,
				Queues:      map[string]int{alerts.QueueEmails: 1},
			})
			if err := srv.Start(mux); err != nil {
				zl.Fatal("failed to start email worker", zap.Error(err))
			}
			defer srv.Shutdown()
		} else {
			zl.Warn("email tasks are queued but no worker runs in this process")
		}
	}
	dispatcher := alerts.NewDispatcher(notifier, mailer, cfg.NotifyTimeout, zl)

	ledger := wallet.NewLedger(walletRepo, zl)
	methods := payout.NewMethodStore(payoutRepo, cfg.MaxPayoutMethods, zl)
	manager := payout.NewManager(ledger, methods, payoutRepo, fee.NewEngine(fee.DefaultSchedule()), dispatcher, zl,
		payout.WithLimits(payout.Limits{MinAmount: cfg.MinWithdrawal, MaxAmount: cfg.MaxWithdrawal}),
	)

	if cfg.SettlementAPIKey == "" {
		zl.Warn("SETTLEMENT_API_KEY not set, settlement endpoint disabled")
	}

	r := gin.New()
	r.Use(gin.Recovery(), httpapi.RequestLogger(zl))
	httpapi.NewHandler(manager, methods, ledger, auth.NewVerifier(cfg.JWTSecret), httpapi.Options{
		SettlementKey:   cfg.SettlementAPIKey,
		DefaultCurrency: cfg.DefaultCurrency,
	}, zl).Register(r)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zl.Info("server started", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
	dispatcher.Wait()
}
