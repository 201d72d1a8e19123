// Package users provides the users and profiles bounded context module.
package users

import (
	"fmt"

	"broker_crm_backend/internal/auth/permissions"
	apphttp "broker_crm_backend/internal/http"
	"broker_crm_backend/internal/users/handler"
	"broker_crm_backend/internal/users/ports"
	"broker_crm_backend/internal/users/service"
	"broker_crm_backend/platform/logger"
	"broker_crm_backend/platform/validator"
)

// Module is the users bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
}

func NewModule(profiles ports.ProfileStore, notifier ports.AccessRequestNotifier, val *validator.Validator, log *logger.Logger) (*Module, error) {
	if err := RegisterValidations(val); err != nil {
		return nil, err
	}
	svc := service.New(profiles, notifier, log)
	return &Module{handler: handler.New(svc, val)}, nil
}

// RegisterValidations adds the capability tags used by access requests.
func RegisterValidations(val *validator.Validator) error {
	if err := val.RegisterOneOf("capability_module", permissions.Modules()...); err != nil {
		return fmt.Errorf("register capability_module: %w", err)
	}
	if err := val.RegisterOneOf("capability_action", permissions.Actions()...); err != nil {
		return fmt.Errorf("register capability_action: %w", err)
	}
	return nil
}

func (m *Module) Name() string {
	return "users"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/users"), ctx.Gate)
}

var _ apphttp.Module = (*Module)(nil)
