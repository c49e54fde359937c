package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/passwallet/passwallet/internal/chain"
	"github.com/passwallet/passwallet/internal/config"
	"github.com/passwallet/passwallet/internal/identity"
	"github.com/passwallet/passwallet/internal/messaging"
	"github.com/passwallet/passwallet/internal/middleware"
	"github.com/passwallet/passwallet/internal/passkey"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// are optional; nil values select the in-memory backends.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares, selects backends and wires all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Backends: in-memory unless a real store is configured.
	var users identity.Repository
	if d.DB != nil {
		users = identity.NewPostgresRepository(d.DB)
	} else {
		users = identity.NewMemoryRepository()
	}

	var sessions passkey.SessionStore
	if d.Cache != nil {
		sessions = passkey.NewRedisSessionStore(d.Cache)
	} else {
		sessions = passkey.NewMemorySessionStore()
	}

	passkeySvc := passkey.NewService(passkey.Config{
		RPID:         d.Cfg.RPID,
		RPName:       d.Cfg.RPName,
		RPOrigin:     d.Cfg.RPOrigin,
		ChallengeTTL: d.Cfg.ChallengeTTL,
	}, users, sessions)
	passkeyHandler := passkey.NewHandler(passkeySvc, d.Logger)

	// Chain connectors: real RPC when configured, deterministic simulator
	// otherwise. The choice is made once here, not per request.
	var (
		factory chain.Factory
		wallets chain.Wallet
	)
	if d.Cfg.ChainConfigured() {
		rpc, err := chain.NewRPC(context.Background(), d.Cfg.EthereumRPCURL, d.Cfg.ChainPrivateKey, d.Cfg.AccountFactoryAddress)
		if err != nil {
			return err
		}
		factory, wallets = rpc, rpc
		d.Logger.Info("chain connectors ready", "rpc", d.Cfg.EthereumRPCURL)
	} else {
		sim := chain.NewSimulator()
		factory, wallets = sim, sim
		d.Logger.Info("chain simulator selected; no ETHEREUM_RPC_URL configured")
	}
	chainSvc := chain.NewService(factory, wallets, d.Logger)
	chainHandler := chain.NewHandler(chainSvc, d.Logger)

	messagingSvc := messaging.NewService(messaging.NewSimulatedNetwork())
	messagingHandler := messaging.NewHandler(messagingSvc, d.Logger)

	// API routes
	api := app.Group("/api")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	challengeLimiter := middleware.ChallengeRateLimit(d.Cache, 10)
	RegisterAuthRoutes(api, passkeyHandler, challengeLimiter)
	RegisterContractRoutes(api, chainHandler)
	RegisterMessagingRoutes(api, messagingHandler)

	return nil
}
