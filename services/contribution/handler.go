package contribution

import (
	"net/http"

	"bringitback-controlplane/pkg/db/pagination"
	"bringitback-controlplane/pkg/errutil"
	"bringitback-controlplane/pkg/httpapi"
	"bringitback-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func RegisterRoutes(r *httpapi.Router, h *Handler) {
	r.Public.GET("/campaigns/:id/contributions", h.List)
	r.Public.GET("/campaigns/:id/electorate", h.Electorate)
	r.Public.POST("/webhooks/payment", h.Webhook)
	r.Authed.POST("/campaigns/:id/contributions", h.Pledge)
	r.Admin.POST("/contributions/:id/refund", h.Refund)
}

func (h *Handler) Pledge(c *gin.Context) {
	var req PledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	req.CampaignID = c.Param("id")
	req.UserID = middleware.UserID(c)

	out, err := h.svc.RecordPledge(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) List(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}
	if err := page.Validate(); err != nil {
		_ = c.Error(err)
		return
	}

	items, info, err := h.svc.List(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": info})
}

func (h *Handler) Electorate(c *gin.Context) {
	n, err := h.svc.Electorate(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign_id": c.Param("id"), "electorate_size": n})
}

type gatewayNotification struct {
	OrderID string `json:"order_id" binding:"required"`
}

// Webhook acknowledges a gateway callback. The charge is re-verified with the
// gateway before anything is applied.
func (h *Handler) Webhook(c *gin.Context) {
	var req gatewayNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid notification body", err))
		return
	}

	if err := h.svc.HandleGatewayNotification(c.Request.Context(), req.OrderID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Refund(c *gin.Context) {
	out, err := h.svc.Refund(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}
