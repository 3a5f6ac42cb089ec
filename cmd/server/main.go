package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/sitecraft/backend/docs"
	"github.com/sitecraft/backend/internal/audit"
	"github.com/sitecraft/backend/internal/config"
	"github.com/sitecraft/backend/internal/database"
	"github.com/sitecraft/backend/internal/gateway"
	"github.com/sitecraft/backend/internal/generation"
	"github.com/sitecraft/backend/internal/handlers"
	"github.com/sitecraft/backend/internal/logging"
	mW "github.com/sitecraft/backend/internal/middleware"
	"github.com/sitecraft/backend/internal/services"
	"github.com/sitecraft/backend/internal/store/postgres"
)

// @title SiteCraft Credits API
// @version 1.0
// @description Credit ledger, purchases and settlement for the SiteCraft website generator
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "SiteCraft Credits API"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	ctx := context.Background()

	db, err := database.InitDB(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, cfg.Beta.MaxFreeUsers); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate schema")
		}
	}
	st := postgres.New(db)
	defer st.Close()

	redisClient := database.InitRedis(ctx, cfg.Redis, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditLogger := audit.NewLogger(log)
	ledger := services.NewCreditLedger(st, auditLogger, log, cfg.Ledger.OpTimeout, cfg.Ledger.HistoryMax)
	pricing := services.NewPricingService(st, cfg.Pricing.LocalCurrency)

	var gateways []gateway.Gateway
	if cfg.Gateway.Card.SecretKey != "" {
		gateways = append(gateways, gateway.NewCardGateway(cfg.Gateway.Card.BaseURL, cfg.Gateway.Card.SecretKey, cfg.Gateway.Timeout))
	} else {
		log.Warn().Msg("card gateway not configured")
	}
	if cfg.Gateway.Crypto.APIKey != "" {
		gateways = append(gateways, gateway.NewCryptoGateway(cfg.Gateway.Crypto.BaseURL, cfg.Gateway.Crypto.APIKey,
			cfg.Gateway.Crypto.IPNSecret, cfg.Gateway.Crypto.PayCurrency, cfg.Gateway.Timeout))
	} else {
		log.Warn().Msg("crypto gateway not configured")
	}

	payments := services.NewPaymentService(st, ledger, pricing, auditLogger, log, cfg.Server.PublicURL, gateways...)
	settlement := services.NewSettlementService(ledger, payments, services.NewISO20022Service(), redisClient, auditLogger, log)
	capacity := services.NewCapacityService(st, ledger, cfg.Beta.InitialCredits, cfg.AdminAccountIDs, log)

	generator := generation.NewClient(cfg.Generation.BaseURL, cfg.Generation.APIKey, cfg.Generation.Model, cfg.Generation.Timeout)
	generationService := services.NewGenerationService(ledger, generator, redisClient,
		cfg.Generation.RateLimit, cfg.Generation.RateWindow, auditLogger, log)

	accounts := services.NewAccountService(st)

	h := handlers.NewHandler(handlers.Services{
		Ledger:     ledger,
		Pricing:    pricing,
		Payments:   payments,
		Settlement: settlement,
		Capacity:   capacity,
		Generation: generationService,
		QR:         services.NewQRService(payments, redisClient, log),
		Accounts:   accounts,
	}, log)

	r := handlers.NewRouter(h, handlers.RouterConfig{
		Identity:         mW.NewJWTIdentity(cfg.JWT.SecretKey, cfg.JWT.Issuer),
		Authorizer:       accounts,
		Logger:           log,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: cfg.Server.AllowCredentials,
		Health:           healthCheck(st.Ping, redisClient),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

// healthCheck fails when the database is down. Redis only backs advisory
// features, so it is reported but never fails the check.
func healthCheck(ping func(context.Context) error, rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return err
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("redis ping failed")
			}
		}
		return nil
	}
}
