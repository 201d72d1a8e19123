package gate

import (
	"context"
	"errors"
	"net/http"

	"broker_crm_backend/internal/auth/permissions"
	"broker_crm_backend/platform/apperr"
	"broker_crm_backend/platform/config"
	"broker_crm_backend/platform/httpkit"
	"broker_crm_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// ContextKey is the gin context key holding the AuthorizedContext.
const ContextKey = "authorizedContext"

// Middleware exposes the gate as gin handlers and maps verdicts to responses.
type Middleware struct {
	gate *Gate
	cfg  config.GateConfig
}

// NewMiddleware creates gin middleware around g.
func NewMiddleware(g *Gate, cfg config.GateConfig) *Middleware {
	return &Middleware{gate: g, cfg: cfg}
}

// RequireAuthenticated admits any caller with a valid session and a profile.
func (m *Middleware) RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := m.authenticate(c); ok {
			c.Next()
		}
	}
}

// Require admits callers holding the capability. Identity is always resolved first.
func (m *Middleware) Require(module permissions.Module, action permissions.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, ok := m.authenticate(c)
		if !ok {
			return
		}
		if err := Check(ac, module, action); err != nil {
			m.deny(c, err)
			return
		}
		c.Next()
	}
}

func (m *Middleware) authenticate(c *gin.Context) (AuthorizedContext, bool) {
	if ac, ok := FromGin(c); ok {
		return ac, true
	}

	credentials, _ := httpkit.BearerToken(c.GetHeader("Authorization"))
	ac, err := m.gate.RequireAuthenticated(c.Request.Context(), credentials)
	if err != nil {
		m.deny(c, err)
		return AuthorizedContext{}, false
	}

	c.Set(ContextKey, ac)
	ctx := context.WithValue(c.Request.Context(), logger.UserIDKey, ac.UserID.String())
	ctx = context.WithValue(ctx, logger.TenantIDKey, ac.TenantID.String())
	c.Request = c.Request.WithContext(ctx)
	return ac, true
}

// deny writes the verdict. Unauthenticated callers go to the login entry point;
// forbidden callers go to the landing area since their identity is valid.
func (m *Middleware) deny(c *gin.Context, err error) {
	if apperr.Is(err, apperr.KindStoreFailure) {
		httpkit.HandleError(c, err)
		c.Abort()
		return
	}

	target := m.cfg.GetDefaultLandingPath()
	status := http.StatusForbidden
	if apperr.Is(err, apperr.KindUnauthorized) {
		target = m.cfg.GetLoginPath()
		status = http.StatusUnauthorized
	}

	if httpkit.WantsHTML(c) {
		c.Redirect(http.StatusSeeOther, target)
		c.Abort()
		return
	}

	resp := httpkit.ErrorResponse{Error: http.StatusText(status), Redirect: target}
	var domainErr *apperr.Error
	if errors.As(err, &domainErr) {
		resp.Error = domainErr.Message
		resp.Details = domainErr.Details
	}
	c.AbortWithStatusJSON(status, resp)
}

// FromGin returns the AuthorizedContext attached by the middleware.
func FromGin(c *gin.Context) (AuthorizedContext, bool) {
	v, ok := c.Get(ContextKey)
	if !ok {
		return AuthorizedContext{}, false
	}
	ac, ok := v.(AuthorizedContext)
	return ac, ok
}

// MustFromGin returns the AuthorizedContext or aborts with 401 when a route was
// mounted without the gate.
func MustFromGin(c *gin.Context) (AuthorizedContext, bool) {
	ac, ok := FromGin(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, httpkit.ErrorResponse{Error: "unauthorized"})
	}
	return ac, ok
}
