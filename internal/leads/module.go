// Package leads provides the lead management bounded context module.
// This file defines the module that encapsulates all leads setup and route registration.
package leads

import (
	"fmt"

	apphttp "broker_crm_backend/internal/http"
	"broker_crm_backend/internal/leads/automation"
	"broker_crm_backend/internal/leads/bulk"
	"broker_crm_backend/internal/leads/domain"
	"broker_crm_backend/internal/leads/handler"
	"broker_crm_backend/internal/leads/ports"
	"broker_crm_backend/internal/leads/repository"
	"broker_crm_backend/internal/leads/service"
	"broker_crm_backend/platform/config"
	"broker_crm_backend/platform/logger"
	"broker_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is everything the module persists through.
type Store interface {
	repository.LeadStore
	repository.EventLedger
	repository.PropertyDirectory
}

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates the leads module backed by PostgreSQL.
func NewModule(pool *pgxpool.Pool, notifier ports.NotificationDispatcher, val *validator.Validator, cfg config.LeadsConfig, log *logger.Logger) (*Module, error) {
	return NewModuleWithStore(repository.New(pool), notifier, val, cfg, log)
}

// NewModuleWithStore wires the module over any store, such as the in-memory one.
func NewModuleWithStore(store Store, notifier ports.NotificationDispatcher, val *validator.Validator, cfg config.LeadsConfig, log *logger.Logger) (*Module, error) {
	if err := RegisterValidations(val); err != nil {
		return nil, err
	}

	engine := automation.New(store, store, store, notifier, cfg.GetBusinessLocation(), log,
		automation.WithPhoneRegion(cfg.GetPhoneDefaultRegion()))
	coordinator := bulk.New(store, engine, log)
	svc := service.New(store, store, engine, coordinator, log)

	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}, nil
}

// RegisterValidations adds the lead enum tags used by request DTOs.
func RegisterValidations(val *validator.Validator) error {
	if err := val.RegisterOneOf("lead_status", domain.Statuses()...); err != nil {
		return fmt.Errorf("register lead_status: %w", err)
	}
	if err := val.RegisterOneOf("lead_source", domain.Sources()...); err != nil {
		return fmt.Errorf("register lead_source: %w", err)
	}
	return nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Service exposes the lead application service for adapters in other contexts.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts lead routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/leads"), ctx.Gate)
}

// Compile-time checks
var (
	_ apphttp.Module = (*Module)(nil)
	_ Store          = (*repository.Repository)(nil)
	_ Store          = (*repository.MemoryRepository)(nil)
)
