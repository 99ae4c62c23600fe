package notification

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
	r.Authed.GET("/notifications", h.List)
	r.Authed.POST("/notifications/:id/read", h.MarkRead)
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

	items, info, err := h.svc.List(c.Request.Context(), middleware.UserID(c), page)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": info})
}

func (h *Handler) MarkRead(c *gin.Context) {
	n, err := h.svc.MarkRead(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, n)
}
