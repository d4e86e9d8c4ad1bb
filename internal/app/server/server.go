package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/vendimia/refledger/config"
	"github.com/vendimia/refledger/internal/app/repository"
	"github.com/vendimia/refledger/internal/app/service"
	inthttp "github.com/vendimia/refledger/internal/http/handler"
	"github.com/vendimia/refledger/internal/http/middleware"
	httpUtil "github.com/vendimia/refledger/internal/http/util"
	"go.uber.org/zap"
)

// Dependencies bundles infrastructure and domain dependencies required by
// the HTTP server.
type Dependencies struct {
	Logger      *zap.Logger
	Config      *config.Config
	Postgres    *pgxpool.Pool
	Redis       *redis.Client
	NATS        *nats.Conn
	JetStream   nats.JetStreamContext
	Classifier  service.FraudClassifier
	Ledger      service.ClickLedger
	Commissions service.CommissionService
	Settlements service.SettlementEngine
	Balances    service.BalanceService
	Clicks      repository.ValidatedClickRepository
	Resolver    service.SellerResolver
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	if deps.Config == nil {
		deps.Config = &config.Config{}
	}

	app := fiber.New()

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerRoutes()
	return s
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	log := s.deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Recovery(log))
	s.app.Use(middleware.Logger(log))
	s.app.Use(middleware.CORS())

	s.app.Get("/health", s.Health)

	api := s.app.Group("/api")

	if s.deps.Redis != nil {
		api.Use("/clicks", middleware.RateLimit(s.deps.Redis, middleware.RateLimitConfig{
			MaxRequests: s.deps.Config.Server.RateLimitPerMin,
			Window:      time.Minute,
			KeyPrefix:   "clicks:rl",
		}, log))
	}

	clickHandler := inthttp.NewClickHandler(inthttp.ClickDeps{
		Logger:     log,
		Classifier: s.deps.Classifier,
		Ledger:     s.deps.Ledger,
	})
	clickHandler.Register(api)

	affiliateHandler := inthttp.NewAffiliateHandler(inthttp.AffiliateDeps{
		Logger:      log,
		Commissions: s.deps.Commissions,
		Settlements: s.deps.Settlements,
		Ledger:      s.deps.Ledger,
		Clicks:      s.deps.Clicks,
		Resolver:    s.deps.Resolver,
		Verifier:    httpUtil.NewSignatureVerifier([]byte(s.deps.Config.Server.CommissionSecret)),
	})
	affiliateHandler.Register(api)

	balanceHandler := inthttp.NewBalanceHandler(inthttp.BalanceDeps{
		Logger:   log,
		Balances: s.deps.Balances,
	})
	balanceHandler.Register(api)
}

// Health reports service status plus storage connectivity.
func (s *Server) Health(c *fiber.Ctx) error {
	base := c.UserContext()
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(base, 2*time.Second)
	defer cancel()

	status := fiber.Map{
		"service": "refledger",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	}

	if s.deps.Postgres != nil {
		if err := s.deps.Postgres.Ping(ctx); err != nil {
			status["status"] = "degraded"
			status["postgres"] = "unreachable"
		}
	}
	if s.deps.Redis != nil {
		if err := s.deps.Redis.Ping(ctx).Err(); err != nil {
			status["status"] = "degraded"
			status["redis"] = "unreachable"
		}
	}

	return c.JSON(status)
}
