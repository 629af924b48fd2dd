package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"estateBack/internal/config"
	"estateBack/internal/gateway"
	"estateBack/internal/handlers"
	"estateBack/internal/lock"
	"estateBack/internal/models"
	"estateBack/internal/notify"
	"estateBack/internal/platform/ratelimiter"
	"estateBack/internal/reference"
	"estateBack/internal/repositories"
	"estateBack/internal/services"
	"estateBack/utils"
)

type application struct {
	errorLog *log.Logger
	infoLog  *log.Logger
	logger   *slog.Logger

	db     *sql.DB
	tokens *utils.Manager

	unlockHandler *handlers.UnlockHandler
	unlockHub     *notify.Hub
	limiter       *ratelimiter.ClientLimiter
}

type stores struct {
	properties services.PropertyStore
	ledger     services.LedgerStore
}

func initializeApp(cfg config.Config, db *sql.DB, rdb *redis.Client, logger *slog.Logger, errorLog, infoLog *log.Logger) (*application, error) {
	st, err := buildStores(cfg, db)
	if err != nil {
		return nil, err
	}

	tokens, err := utils.NewManager(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	var locker lock.Locker = lock.NewKeyedMutex()
	if rdb != nil {
		locker = lock.NewRedisLocker(rdb, "estate:lock:", cfg.LockTTL())
	}

	fee, err := cfg.UnlockFee()
	if err != nil {
		return nil, err
	}

	gw, err := buildGateway(cfg, fee, logger)
	if err != nil {
		return nil, err
	}

	hub := notify.NewHub(logger.With("component", "ws"), cfg.Server.AllowedOrigins)
	refs := reference.NewGenerator(cfg.Payment.ReferenceSecret)
	if !refs.Binding() {
		logger.Warn("REFERENCE_SECRET not set; payment references are not bound to a property")
	}

	// Services
	ledgerService := services.NewLedgerService(st.ledger, locker)
	intentService := &services.PaymentIntentService{
		Properties: st.properties,
		Clients:    st.ledger,
		Ledger:     ledgerService,
		Gateway:    gw,
		References: refs,
		Fee:        fee,
		Currency:   cfg.Payment.Currency,
		Logger:     logger,
	}
	verificationService := &services.VerificationService{
		Properties: st.properties,
		Ledger:     ledgerService,
		Gateway:    gw,
		References: refs,
		Fee:        fee,
		Currency:   cfg.Payment.Currency,
		Timeout:    cfg.GatewayTimeout(),
		Notifier:   hub,
		Logger:     logger,
	}
	if cfg.Receipts.Bucket != "" {
		receipts, err := utils.NewReceiptStore(utils.ReceiptStoreConfig{
			Bucket:    cfg.Receipts.Bucket,
			Region:    cfg.Receipts.Region,
			Endpoint:  cfg.Receipts.Endpoint,
			AccessKey: cfg.Receipts.AccessKey,
			SecretKey: cfg.Receipts.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		verificationService.Receipts = receipts
	}
	contactService := &services.ContactService{Properties: st.properties, Ledger: ledgerService}

	// Handlers
	unlockHandler := &handlers.UnlockHandler{
		Intents:   intentService,
		Verifier:  verificationService,
		Ledger:    ledgerService,
		Contacts:  contactService,
		Dashboard: cfg.Payment.DashboardPath,
		Logger:    logger,
	}

	limiter := ratelimiter.NewClientLimiter(ratelimiter.Config{
		PerSecond: cfg.Payment.VerifyRPS,
		Burst:     cfg.Payment.VerifyBurst,
	})

	return &application{
		errorLog:      errorLog,
		infoLog:       infoLog,
		logger:        logger,
		db:            db,
		tokens:        tokens,
		unlockHandler: unlockHandler,
		unlockHub:     hub,
		limiter:       limiter,
	}, nil
}

func buildStores(cfg config.Config, db *sql.DB) (stores, error) {
	if cfg.Database.Driver == repositories.DriverMemory {
		mem, err := seedMemoryStore(cfg.Seed)
		if err != nil {
			return stores{}, err
		}
		return stores{properties: mem, ledger: mem}, nil
	}
	if db == nil {
		return stores{}, fmt.Errorf("database driver %q needs an open connection", cfg.Database.Driver)
	}
	return stores{
		properties: repositories.NewPropertyRepository(db, cfg.Database.Driver),
		ledger:     repositories.NewLedgerRepository(db, cfg.Database.Driver),
	}, nil
}

func seedMemoryStore(seed config.Seed) (*repositories.MemoryStore, error) {
	mem := repositories.NewMemoryStore()
	for _, p := range seed.Properties {
		mem.AddProperty(models.Property{
			ID:      p.ID,
			Title:   p.Title,
			Address: p.Address,
			Agent:   models.Agent{ID: p.AgentID, Name: p.AgentName, Phone: p.AgentPhone},
		})
	}
	for _, c := range seed.Clients {
		err := mem.SaveClient(context.Background(), models.Client{
			ID:    c.ID,
			Name:  c.Name,
			Email: c.Email,
			Role:  models.RoleClient,
		})
		if err != nil {
			return nil, fmt.Errorf("seed client %d: %w", c.ID, err)
		}
	}
	return mem, nil
}

func buildGateway(cfg config.Config, fee decimal.Decimal, logger *slog.Logger) (gateway.Gateway, error) {
	if cfg.Payment.Mode == gateway.ModeLive {
		return gateway.NewPaystack(gateway.PaystackConfig{
			SecretKey:   cfg.Payment.PaystackSecret,
			BaseURL:     cfg.Payment.PaystackBaseURL,
			CallbackURL: cfg.Payment.CallbackURL,
			Amount:      fee,
			Currency:    cfg.Payment.Currency,
			Logger:      logger.With("component", "paystack"),
		})
	}
	logger.Warn("PAYMENT_MODE=demo: every payment reference is treated as confirmed; do not use in production")
	return gateway.NewDemo(cfg.Payment.CheckoutBaseURL), nil
}

func openDB(driver, dsn string) (*sql.DB, error) {
	if driver == repositories.DriverMemory {
		return nil, nil
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		log.Printf("Failed to open DB: %v", err)
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		log.Printf("Failed to ping DB: %v", err)
		db.Close()
		return nil, err
	}
	db.SetMaxIdleConns(35)
	log.Println("Successfully connected to database")
	return db, nil
}

func openRedis(cfg config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}
