// Package auth provides the authentication bounded context module.
// This file defines the module that encapsulates all auth setup and route registration.
package auth

import (
	"broker_crm_backend/internal/auth/adapter"
	"broker_crm_backend/internal/auth/gate"
	"broker_crm_backend/internal/auth/handler"
	"broker_crm_backend/internal/auth/repository"
	"broker_crm_backend/internal/auth/service"
	"broker_crm_backend/internal/auth/token"
	apphttp "broker_crm_backend/internal/http"
	"broker_crm_backend/platform/config"
	"broker_crm_backend/platform/logger"
	"broker_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ModuleConfig is the configuration the auth module reads.
type ModuleConfig interface {
	config.AuthServiceConfig
	config.GateConfig
}

// Module is the auth bounded context module implementing http.Module.
type Module struct {
	handler    *handler.Handler
	repo       *repository.Repository
	middleware *gate.Middleware
}

// NewModule creates and initializes the auth module with all its dependencies.
func NewModule(pool *pgxpool.Pool, cfg ModuleConfig, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	tokens := token.NewManager(cfg.GetJWTAccessSecret(), cfg.GetAccessTokenTTL())
	svc := service.New(repo, tokens, log)
	g := gate.New(adapter.NewIdentityResolver(tokens, repo), log)

	return &Module{
		handler:    handler.New(svc, val),
		repo:       repo,
		middleware: gate.NewMiddleware(g, cfg),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "auth"
}

// Repository exposes the profile store for adapters in other contexts.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// Gate returns the authorization gate shared by every protected route.
func (m *Module) Gate() *gate.Middleware {
	return m.middleware
}

// RegisterRoutes mounts auth routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public auth routes with stricter rate limiting
	authGroup := ctx.V1.Group("/auth")
	authGroup.Use(ctx.AuthRateLimiter.RateLimit())
	m.handler.RegisterRoutes(authGroup)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
