package webhook

import (
	"net/http"
	"time"

	"broker_crm_backend/internal/auth/gate"
	"broker_crm_backend/internal/auth/permissions"
	"broker_crm_backend/platform/httpkit"
	"broker_crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation failed"
	maxFormMemory     = 1 << 20
)

type Handler struct {
	service *Service
	val     *validator.Validator
}

func NewHandler(service *Service, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// ---- Form Submission (public, API-key authenticated) ----

// HandleFormSubmission processes an inbound form submission.
// POST /api/v1/webhook/forms
func (h *Handler) HandleFormSubmission(c *gin.Context) {
	orgID, ok := webhookOrgID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "missing organization context", nil)
		return
	}

	fields, ok := h.parseFormFields(c)
	if !ok {
		return
	}

	submission := FormSubmission{
		Fields:       fields,
		SourceDomain: c.GetHeader("Origin"),
	}
	if keyID, ok := c.Get(ctxWebhookKeyID); ok {
		submission.APIKeyID, _ = keyID.(uuid.UUID)
	}

	resp, err := h.service.ProcessFormSubmission(c.Request.Context(), submission, orgID)
	if httpkit.HandleError(c, err) {
		return
	}

	status := http.StatusCreated
	if resp.IsDuplicate {
		status = http.StatusOK
	}
	httpkit.JSON(c, status, resp)
}

// ---- API Key Management (gate authenticated) ----

type CreateAPIKeyRequest struct {
	Name           string   `json:"name" validate:"required,min=1,max=100"`
	AllowedDomains []string `json:"allowedDomains" validate:"max=20,dive,max=200"`
}

type APIKeyResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	KeyPrefix      string    `json:"keyPrefix"`
	AllowedDomains []string  `json:"allowedDomains"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      string    `json:"createdAt"`
}

// CreateAPIKeyResponse includes the plaintext key, shown only once.
type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

// HandleCreateAPIKey creates a new webhook API key.
// POST /api/v1/webhook/keys
func (h *Handler) HandleCreateAPIKey(c *gin.Context) {
	ac, ok := gate.MustFromGin(c)
	if !ok {
		return
	}

	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, validator.Details(err))
		return
	}

	key, plaintext, err := h.service.CreateAPIKey(c.Request.Context(), ac.TenantID, req.Name, req.AllowedDomains)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, CreateAPIKeyResponse{
		APIKeyResponse: toAPIKeyResponse(key),
		Key:            plaintext,
	})
}

// HandleListAPIKeys lists the tenant's webhook API keys.
// GET /api/v1/webhook/keys
func (h *Handler) HandleListAPIKeys(c *gin.Context) {
	ac, ok := gate.MustFromGin(c)
	if !ok {
		return
	}

	keys, err := h.service.ListAPIKeys(c.Request.Context(), ac.TenantID)
	if httpkit.HandleError(c, err) {
		return
	}

	result := make([]APIKeyResponse, len(keys))
	for i, k := range keys {
		result[i] = toAPIKeyResponse(k)
	}
	httpkit.OK(c, result)
}

// HandleRevokeAPIKey deactivates a webhook API key.
// DELETE /api/v1/webhook/keys/:keyId
func (h *Handler) HandleRevokeAPIKey(c *gin.Context) {
	ac, ok := gate.MustFromGin(c)
	if !ok {
		return
	}

	keyID, err := uuid.Parse(c.Param("keyId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid key ID", nil)
		return
	}

	if httpkit.HandleError(c, h.service.RevokeAPIKey(c.Request.Context(), ac.TenantID, keyID)) {
		return
	}
	c.Status(http.StatusNoContent)
}

func toAPIKeyResponse(key APIKey) APIKeyResponse {
	domains := key.AllowedDomains
	if domains == nil {
		domains = []string{}
	}
	return APIKeyResponse{
		ID:             key.ID,
		Name:           key.Name,
		KeyPrefix:      key.KeyPrefix,
		AllowedDomains: domains,
		IsActive:       key.IsActive,
		CreatedAt:      key.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// parseFormFields accepts JSON objects with string values as well as
// urlencoded and multipart forms.
func (h *Handler) parseFormFields(c *gin.Context) (map[string]string, bool) {
	fields := make(map[string]string)

	if c.ContentType() == "application/json" {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
			return nil, false
		}
		for key, val := range body {
			if s, ok := val.(string); ok {
				fields[key] = s
			}
		}
	} else {
		if err := c.Request.ParseMultipartForm(maxFormMemory); err != nil {
			if err := c.Request.ParseForm(); err != nil {
				httpkit.Error(c, http.StatusBadRequest, "unable to parse form data", nil)
				return nil, false
			}
		}
		for key, values := range c.Request.PostForm {
			if len(values) > 0 {
				fields[key] = values[0]
			}
		}
	}

	if len(fields) == 0 {
		httpkit.Error(c, http.StatusBadRequest, "no form data received", nil)
		return nil, false
	}
	return fields, true
}

// RegisterRoutes mounts the public form endpoint and the key management routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, g *gate.Middleware) {
	forms := rg.Group("/forms")
	forms.Use(APIKeyAuthMiddleware(h.service))
	forms.POST("", h.HandleFormSubmission)

	keys := rg.Group("/keys")
	keys.Use(g.RequireAuthenticated(), g.Require(permissions.ModuleUsers, permissions.ActionEdit))
	keys.GET("", h.HandleListAPIKeys)
	keys.POST("", h.HandleCreateAPIKey)
	keys.DELETE("/:keyId", h.HandleRevokeAPIKey)
}
