package handler

import (
	"net/http"

	"broker_crm_backend/internal/auth/gate"
	"broker_crm_backend/internal/auth/permissions"
	"broker_crm_backend/internal/leads/automation"
	"broker_crm_backend/internal/leads/service"
	"broker_crm_backend/internal/leads/transport"
	"broker_crm_backend/platform/httpkit"
	"broker_crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts the lead routes. Identity is checked for the whole
// group before any capability check runs.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, g *gate.Middleware) {
	view := g.Require(permissions.ModuleLeads, permissions.ActionView)
	edit := g.Require(permissions.ModuleLeads, permissions.ActionEdit)
	create := g.Require(permissions.ModuleLeads, permissions.ActionCreate)
	remove := g.Require(permissions.ModuleLeads, permissions.ActionDelete)

	rg.Use(g.RequireAuthenticated())
	rg.GET("", view, h.List)
	rg.POST("", create, h.Create)
	rg.POST("/bulk-update", edit, h.BulkUpdate)
	rg.POST("/bulk-delete", remove, h.BulkDelete)
	rg.POST("/bulk-create", create, h.BulkCreate)
	rg.GET("/:id", view, h.GetByID)
	rg.PATCH("/:id", edit, h.Update)
	rg.DELETE("/:id", remove, h.Delete)
	rg.GET("/:id/events", view, h.ListEvents)
}

func (h *Handler) List(c *gin.Context) {
	ac, ok := gate.MustFromGin(c)
	if !ok {
		return
	}

	req := transport.ListLeadsRequest{Page: 1, PageSize: 20}
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Details(err))
		return
	}

	result, err := h.svc.List(c.Request.Context(), ac.TenantID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) Create(c *gin.Context) {
	ac, ok := gate.MustFromGin(c)
	if !ok {
		return
	}

	var req transport.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if !h.validateCreate(c, req) {
		return
	}

	lead, err := h.svc.Create(c.Request.Context(), ac.TenantID, actorOf(ac), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, lead)
}

func (h *Handler) GetByID(c *gin.Context) {
	ac, ok := gate.MustFromGin(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	lead, err := h.svc.GetByID(c.Request.Context(), ac.TenantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) Update(c *gin.Context) {
	ac, ok := gate.MustFromGin(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.UpdateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if !h.validateEmail(c, req.Email) {
		return
	}

	result, err := h.svc.Update(c.Request.Context(), ac.TenantID, id, actorOf(ac), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) Delete(c *gin.Context) {
	ac, ok := gate.MustFromGin(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.svc.Delete(c.Request.Context(), ac.TenantID, id)) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListEvents(c *gin.Context) {
	ac, ok := gate.MustFromGin(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	events, err := h.svc.ListEvents(c.Request.Context(), ac.TenantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, events)
}

func (h *Handler) BulkUpdate(c *gin.Context) {
	ac, ok := gate.MustFromGin(c)
	if !ok {
		return
	}

	var req transport.BulkUpdateLeadsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Details(err))
		return
	}
	if !h.validateEmail(c, req.Patch.Email) {
		return
	}

	report, err := h.svc.BulkUpdate(c.Request.Context(), ac.TenantID, actorOf(ac), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

func (h *Handler) BulkDelete(c *gin.Context) {
	ac, ok := gate.MustFromGin(c)
	if !ok {
		return
	}

	var req transport.BulkDeleteLeadsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Details(err))
		return
	}

	report, err := h.svc.BulkDelete(c.Request.Context(), ac.TenantID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

func (h *Handler) BulkCreate(c *gin.Context) {
	ac, ok := gate.MustFromGin(c)
	if !ok {
		return
	}

	var req transport.BulkCreateLeadsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Details(err))
		return
	}
	for _, lead := range req.Leads {
		if !h.validateEmail(c, lead.Email) {
			return
		}
	}

	report, err := h.svc.BulkCreate(c.Request.Context(), ac.TenantID, actorOf(ac), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

func (h *Handler) validateCreate(c *gin.Context, req transport.CreateLeadRequest) bool {
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Details(err))
		return false
	}
	return h.validateEmail(c, req.Email)
}

func (h *Handler) validateEmail(c *gin.Context, email transport.OptionalString) bool {
	if email.Value == nil || *email.Value == "" {
		return true
	}
	if err := h.val.Var(*email.Value, "email"); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, map[string]string{"email": "email"})
		return false
	}
	return true
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}

func actorOf(ac gate.AuthorizedContext) automation.Actor {
	return automation.Actor{UserID: ac.UserID, DisplayName: ac.DisplayName, Email: ac.Email}
}
