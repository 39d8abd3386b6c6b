package main // Entry point package

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/credential"
	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/router"
	"github.com/iliyamo/event-ticketing/internal/service"
)

func main() {
	// .env is optional; real deployments inject env vars directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis backs the rate limiter and the wallet nonce guard.  A nil
	// client disables both; the core purchase path does not depend on it.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting and wallet login disabled")
	}

	codec, err := credential.NewCodec(cfg.CredentialSecret)
	if err != nil {
		log.Fatalf("credential codec: %v", err)
	}

	// Repositories.
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	events := repository.NewEventRepo(db)
	categories := repository.NewTicketCategoryRepo(db)
	orders := repository.NewOrderRepo(db)
	units := repository.NewTicketPurchaseRepo(db)
	sales := repository.NewFlashSaleRepo(db)

	// Services.
	txr := database.SQLTxRunner{DB: db}
	publisher := service.AMQPPublisher{URL: cfg.RabbitURL}
	purchases := service.NewPurchaseService(txr, categories, orders, units, sales, events, codec, publisher)
	lifecycle := service.NewLifecycleService(txr, units, orders, categories, users, codec, publisher)

	var verifier service.SignatureVerifier = service.DisabledVerifier{}
	if url := os.Getenv("WALLET_VERIFIER_URL"); url != "" {
		verifier = service.NewHTTPSignatureVerifier(url)
	}
	var nonces service.NonceStore
	if rdb != nil {
		nonces = repository.NewNonceRepo(rdb)
	} else {
		nonces = deniedNonces{}
	}
	wallet := service.NewWalletAuthService(verifier, nonces, users,
		time.Duration(cfg.NonceTTLMin)*time.Minute)

	// Background consumer writing notification records.  It reconnects
	// on broker failures and never takes the API down.
	go func() {
		if err := queue.StartConsumer(cfg.RabbitURL); err != nil {
			log.Printf("consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	var purchaseLimit echo.MiddlewareFunc
	if rdb != nil {
		purchaseLimit = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	}
	router.Register(e, router.Handlers{
		Auth:      handler.NewAuthHandler(cfg, users, tokens, wallet),
		Purchase:  handler.NewPurchaseHandler(purchases, lifecycle),
		Gate:      handler.NewGateHandler(lifecycle),
		Organizer: handler.NewOrganizerHandler(events, categories, sales),
	}, cfg.JWTSecret, purchaseLimit)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}

// deniedNonces stands in when Redis is down: every login fails on the
// replay guard rather than skipping it.
type deniedNonces struct{}

func (deniedNonces) Consume(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return false, nil
}
