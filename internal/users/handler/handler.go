package handler

import (
	"net/http"

	"broker_crm_backend/internal/auth/gate"
	"broker_crm_backend/internal/auth/permissions"
	"broker_crm_backend/internal/users/service"
	"broker_crm_backend/internal/users/transport"
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

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, g *gate.Middleware) {
	rg.Use(g.RequireAuthenticated())
	rg.GET("/me", h.GetMe)
	rg.PATCH("/me", g.Require(permissions.ModuleProfile, ""), h.UpdateMe)
	rg.POST("/me/access-requests", h.RequestAccess)
	rg.GET("", g.Require(permissions.ModuleUsers, permissions.ActionView), h.List)
	rg.PUT("/:id/permissions", g.Require(permissions.ModuleUsers, permissions.ActionEdit), h.SetPermissions)
}

func (h *Handler) GetMe(c *gin.Context) {
	ac, ok := gate.MustFromGin(c)
	if !ok {
		return
	}

	me, err := h.svc.GetMe(c.Request.Context(), ac.TenantID, ac.UserID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, me)
}

func (h *Handler) UpdateMe(c *gin.Context) {
	ac, ok := gate.MustFromGin(c)
	if !ok {
		return
	}

	var req transport.UpdateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Details(err))
		return
	}

	me, err := h.svc.UpdateMe(c.Request.Context(), ac.TenantID, ac.UserID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, me)
}

func (h *Handler) List(c *gin.Context) {
	ac, ok := gate.MustFromGin(c)
	if !ok {
		return
	}

	users, err := h.svc.ListUsers(c.Request.Context(), ac.TenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, users)
}

func (h *Handler) SetPermissions(c *gin.Context) {
	ac, ok := gate.MustFromGin(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid user id", nil)
		return
	}

	var req transport.SetPermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	user, err := h.svc.SetPermissions(c.Request.Context(), ac.TenantID, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, user)
}

func (h *Handler) RequestAccess(c *gin.Context) {
	ac, ok := gate.MustFromGin(c)
	if !ok {
		return
	}

	var req transport.AccessRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Details(err))
		return
	}

	result, err := h.svc.RequestAccess(c.Request.Context(), service.Requester{
		UserID:          ac.UserID,
		TenantID:        ac.TenantID,
		Email:           ac.Email,
		DisplayName:     ac.DisplayName,
		Matrix:          ac.Matrix,
		ManagingAdminID: ac.ManagingAdminID,
	}, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusAccepted, result)
}
