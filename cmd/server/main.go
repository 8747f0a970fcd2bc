package main // Entry point package

import (
	"context" // Context for startup-scoped operations
	"log"     // Logging library
	"time"    // Timeouts and the token purge interval

	"github.com/joho/godotenv"    // Loads .env files in development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/truckmitra/freight-broker/internal/config"     // Internal config loader
	"github.com/truckmitra/freight-broker/internal/database"   // MySQL connection and migrations
	"github.com/truckmitra/freight-broker/internal/handler"    // HTTP handlers
	"github.com/truckmitra/freight-broker/internal/intutrack"  // Trip tracking provider client
	"github.com/truckmitra/freight-broker/internal/queue"      // RabbitMQ publisher and consumer
	"github.com/truckmitra/freight-broker/internal/repository" // Data access layer
	"github.com/truckmitra/freight-broker/internal/router"     // Internal router setup
	"github.com/truckmitra/freight-broker/internal/service"    // Business services
	"github.com/truckmitra/freight-broker/internal/surepass"   // KYC provider clients
)

func main() {
	// Load a .env file when present; in production the variables come from
	// the environment and the file is absent.
	_ = godotenv.Load()

	cfg := config.Load() // Load environment config

	// Open MySQL and run the idempotent migrations.
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(migrateCtx, db); err != nil {
		cancel()
		log.Fatalf("database: %v", err)
	}
	cancel()

	// Redis backs the rate limiter and the OTP store.  A nil client simply
	// disables both.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; rate limiting and OTP disabled")
	}
	rl := config.LoadRateLimitConfig()

	// Repositories.
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	kycRequests := repository.NewKYCRequestRepo(db)
	apiLogs := repository.NewAPILogRepo(db)
	trips := repository.NewTripRepo(db)

	// Event publisher and the file-sink consumer for completed
	// verifications.
	events := queue.NewPublisher()
	go func() {
		if err := queue.StartKYCConsumer(); err != nil {
			log.Printf("rabbitmq consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e) // Health check

	// Authentication.
	authHandler := handler.NewAuthHandler(users, tokens, cfg)
	router.RegisterAuth(e, authHandler, cfg.JWTSecret)

	// KYC verification.  The provider clients validate their own
	// credentials; when a channel is not configured its routes are skipped
	// so the rest of the API still serves.
	encrypted, err := surepass.NewEncryptedClient(surepass.Options{
		BaseURL:       cfg.Surepass.BaseURL,
		ClientID:      cfg.Surepass.ClientID,
		APIToken:      cfg.Surepass.APIToken,
		PublicKeyPEM:  cfg.Surepass.PublicKey,
		PrivateKeyPEM: cfg.Surepass.PrivateKey,
		Timeout:       cfg.Surepass.Timeout,
	})
	if err != nil {
		log.Printf("surepass encrypted channel disabled: %v", err)
	}
	plainKYC, err := surepass.NewPlainClient(cfg.Surepass.KYCBaseURL, cfg.Surepass.APIToken, cfg.Surepass.Timeout)
	if err != nil {
		log.Printf("surepass kyc-api channel disabled: %v", err)
	}
	plain, err := surepass.NewPlainClient(cfg.Surepass.PlainBaseURL, cfg.Surepass.APIToken, cfg.Surepass.Timeout)
	if err != nil {
		log.Printf("surepass plain channel disabled: %v", err)
	}
	if encrypted != nil && plainKYC != nil && plain != nil {
		kycService := service.NewKYCService(kycRequests, apiLogs, encrypted, plainKYC, plain, events)
		router.RegisterKYC(e, handler.NewKYCHandler(kycService), cfg.JWTSecret, rl, rdb)
	} else {
		log.Println("kyc routes not registered: provider credentials missing")
	}

	// Trip tracking.
	tracker, err := intutrack.New(intutrack.Config{
		BaseURL:  cfg.Intutrack.BaseURL,
		Username: cfg.Intutrack.Username,
		Password: cfg.Intutrack.Password,
		Timeout:  cfg.Intutrack.Timeout,
	})
	if err != nil {
		log.Printf("trip routes not registered: %v", err)
	} else {
		tripService := service.NewTripService(trips, tracker, events)
		router.RegisterTrips(e, handler.NewTripHandler(tripService), cfg.JWTSecret, rl, rdb)
	}

	// SMS one-time codes.
	sender, err := service.NewTwilioSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From)
	if err != nil || rdb == nil {
		log.Println("otp routes not registered: twilio credentials or redis missing")
	} else {
		router.RegisterOTP(e, handler.NewOTPHandler(service.NewOTPService(rdb, sender)), rl, rdb)
	}

	// Background purge of long-expired refresh tokens.
	go func() {
		for {
			time.Sleep(12 * time.Hour)
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if n, err := tokens.PurgeExpired(ctx, 24*time.Hour); err != nil {
				log.Printf("token purge failed: %v", err)
			} else if n > 0 {
				log.Printf("purged %d expired refresh tokens", n)
			}
			cancel()
		}
	}()

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}
