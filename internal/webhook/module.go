// Package webhook provides the website form capture bounded context module.
package webhook

import (
	apphttp "broker_crm_backend/internal/http"
	"broker_crm_backend/platform/config"
	"broker_crm_backend/platform/logger"
	"broker_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
}

func NewModule(pool *pgxpool.Pool, leadCreator LeadCreator, val *validator.Validator, cfg config.LeadsConfig, log *logger.Logger) *Module {
	return NewModuleWithStore(NewRepository(pool), leadCreator, val, cfg, log)
}

func NewModuleWithStore(keys KeyStore, leadCreator LeadCreator, val *validator.Validator, cfg config.LeadsConfig, log *logger.Logger) *Module {
	service := NewService(keys, leadCreator, cfg.GetPhoneDefaultRegion(), log)
	return &Module{handler: NewHandler(service, val)}
}

func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/webhook"), ctx.Gate)
}

var _ apphttp.Module = (*Module)(nil)
