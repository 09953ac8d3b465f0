package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	applicationterminal "github.com/kiosk/backend/internal/application/terminal"
	"github.com/kiosk/backend/internal/domain/terminal"
	"github.com/kiosk/backend/internal/infrastructure/auth"
	"github.com/kiosk/backend/internal/interfaces/http/dto"
	"github.com/kiosk/backend/internal/interfaces/http/middleware"
)

// TerminalHandler exposes terminal registration, presence and status
type TerminalHandler struct {
	BaseHandler
	service      *applicationterminal.StatusService
	heartbeatInc func()
}

// NewTerminalHandler creates a new TerminalHandler
func NewTerminalHandler(service *applicationterminal.StatusService) *TerminalHandler {
	return &TerminalHandler{service: service}
}

// WithHeartbeatCounter registers a callback fired for every accepted
// heartbeat, used to drive the heartbeat metric
func (h *TerminalHandler) WithHeartbeatCounter(inc func()) *TerminalHandler {
	h.heartbeatInc = inc
	return h
}

// RegisterRoutes registers terminal routes
func (h *TerminalHandler) RegisterRoutes(rg *gin.RouterGroup) {
	terminals := rg.Group("/terminals")
	{
		terminals.POST("", middleware.RequireRoles(auth.RoleAdmin), h.Register)
		terminals.GET("", middleware.RequireRoles(auth.RoleAdmin, auth.RoleStaff), h.List)
		terminals.GET("/online", middleware.RequireRoles(auth.RoleAdmin, auth.RoleStaff), h.ListOnline)
		terminals.GET("/:id", middleware.RequireRoles(auth.RoleAdmin, auth.RoleStaff), h.Get)
		terminals.POST("/:id/heartbeat", middleware.RequireRoles(auth.RoleTerminal), h.Heartbeat)
		terminals.PUT("/:id/status", middleware.RequireRoles(auth.RoleAdmin, auth.RoleStaff), h.UpdateStatus)
		terminals.POST("/:id/unlock-request", h.RequestUnlock)
	}
}

// Register creates a terminal; posting an already-known MAC returns the
// existing record
func (h *TerminalHandler) Register(c *gin.Context) {
	var input applicationterminal.RegisterTerminalInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	resp, err := h.service.RegisterTerminal(c.Request.Context(), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// List returns terminals, optionally filtered by status
func (h *TerminalHandler) List(c *gin.Context) {
	var listReq dto.ListRequest
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.HandleBindingError(c, err)
		return
	}
	listReq.Normalize()

	filter := terminal.Filter{
		Page:     listReq.Page,
		PageSize: listReq.PageSize,
	}
	if statusStr := c.Query("status"); statusStr != "" {
		status := terminal.Status(statusStr)
		if !status.IsValid() {
			h.BadRequest(c, "Unknown terminal status: "+statusStr)
			return
		}
		filter.Status = &status
	}

	page, err := h.service.ListTerminals(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// ListOnline returns terminals heard from within the staleness window
func (h *TerminalHandler) ListOnline(c *gin.Context) {
	terminals, err := h.service.GetOnlineTerminals(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, terminals)
}

// Get returns one terminal
func (h *TerminalHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid terminal ID")
		return
	}

	resp, err := h.service.GetTerminal(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Heartbeat records a liveness report from the kiosk agent
func (h *TerminalHandler) Heartbeat(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid terminal ID")
		return
	}

	var input applicationterminal.HeartbeatInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			h.HandleBindingError(c, err)
			return
		}
	}

	resp, err := h.service.Heartbeat(c.Request.Context(), id, input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if h.heartbeatInc != nil {
		h.heartbeatInc()
	}
	h.Success(c, resp)
}

// UpdateStatus applies an operator status change
func (h *TerminalHandler) UpdateStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid terminal ID")
		return
	}

	var input applicationterminal.UpdateStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	resp, err := h.service.UpdateStatus(c.Request.Context(), id, input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// RequestUnlock raises an unlock request for staff; no state changes
func (h *TerminalHandler) RequestUnlock(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid terminal ID")
		return
	}

	var userID *uuid.UUID
	if parsed, err := getUserID(c); err == nil {
		userID = &parsed
	}

	if err := h.service.RequestUnlock(c.Request.Context(), id, userID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
