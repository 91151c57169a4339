package handler

import (
	"card-escrow-ledger/internal/adapter/http/middleware"
	"card-escrow-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// maxRequestBody bounds every request body.
const maxRequestBody = 64 << 10

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	CardSvc        ports.CardService
	FaucetSvc      ports.FaucetService // nil = faucet disabled
	SigSvc         ports.SignatureService
	NonceStore     ports.NonceStore
	TokenSvc       ports.TokenService
	RateLimiter    ports.RateLimiter // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Gatherer       prometheus.Gatherer // nil = /metrics disabled
	Docs           *APIDocs            // nil = /swagger disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxRequestBody))

	// Health check (deep, verifies storage and Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	if deps.Docs != nil {
		swagger := r.Group("/swagger")
		{
			swagger.GET("", deps.Docs.UI)
			swagger.GET("/spec", deps.Docs.Spec)
		}
	}

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if a limiter is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimiter, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	signed := middleware.SignatureAuth(deps.SigSvc, deps.NonceStore, deps.Logger)
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	registryHandler := NewRegistryHandler(deps.CardSvc)
	cardHandler := NewCardHandler(deps.CardSvc)
	sessionHandler := NewSessionHandler(deps.TokenSvc)
	eventHandler := NewEventHandler(deps.CardSvc)

	// --- Public routes ---
	v1.GET("/registry", rl(middleware.GroupReads), registryHandler.Get)

	// --- Signed routes (wallet API) ---
	v1.POST("/registry/initialize", signed, rl(middleware.GroupRegistry), registryHandler.Initialize)
	v1.POST("/sessions", signed, rl(middleware.GroupSessions), sessionHandler.Create)
	v1.POST("/cards", signed, rl(middleware.GroupCardCreate), cardHandler.Create)

	card := v1.Group("/cards/:owner/:card_id")
	{
		card.GET("", jwtAuth, rl(middleware.GroupReads), cardHandler.Get)
		card.POST("/topup", signed, rl(middleware.GroupCardWrite), cardHandler.TopUp)
		card.POST("/payments", signed, rl(middleware.GroupCardWrite), cardHandler.Pay)
		card.POST("/deactivate", signed, rl(middleware.GroupCardWrite), cardHandler.Deactivate)
		card.POST("/withdraw", signed, rl(middleware.GroupCardWrite), cardHandler.Withdraw)
	}

	// --- Session routes (reads) ---
	v1.GET("/cards", jwtAuth, rl(middleware.GroupReads), cardHandler.List)
	v1.GET("/events", jwtAuth, rl(middleware.GroupReads), eventHandler.List)

	if deps.FaucetSvc != nil {
		faucetHandler := NewFaucetHandler(deps.FaucetSvc)
		v1.POST("/faucet", signed, rl(middleware.GroupFaucet), faucetHandler.Fund)
	}

	return r
}
