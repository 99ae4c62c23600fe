package payout

import (
	"net/http"

	"bringitback-controlplane/pkg/accesscontrol"
	"bringitback-controlplane/pkg/errutil"
	"bringitback-controlplane/pkg/httpapi"
	"bringitback-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc   *Service
	authz middleware.Authorizer
}

func NewHandler(svc *Service, authz *accesscontrol.Enforcer) *Handler {
	return &Handler{svc: svc, authz: authz}
}

func RegisterRoutes(r *httpapi.Router, h *Handler) {
	r.Authed.POST("/solutions/:id/payouts", h.Request)
	r.Authed.GET("/solutions/:id/payouts", h.ListForSolution)
	r.Admin.GET("/payouts", h.List)
	r.Admin.POST("/payouts/:id/complete", h.Complete)
	r.Admin.POST("/payouts/:id/fail", h.Fail)
}

func (h *Handler) Request(c *gin.Context) {
	out, err := h.svc.RequestPayout(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) ListForSolution(c *gin.Context) {
	userID := middleware.UserID(c)
	items, err := h.svc.ListForSolution(c.Request.Context(), c.Param("id"), userID, h.authz.HasRole(userID, accesscontrol.RoleAdmin))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (h *Handler) List(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid query", err))
		return
	}
	if err := req.Validate(); err != nil {
		_ = c.Error(err)
		return
	}

	items, info, err := h.svc.List(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": info})
}

func (h *Handler) Complete(c *gin.Context) {
	out, err := h.svc.MarkCompleted(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type failRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Fail(c *gin.Context) {
	var req failRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	out, err := h.svc.MarkFailed(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}
