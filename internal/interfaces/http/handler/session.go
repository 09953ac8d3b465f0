package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	applicationsession "github.com/kiosk/backend/internal/application/session"
	"github.com/kiosk/backend/internal/domain/session"
	"github.com/kiosk/backend/internal/infrastructure/auth"
	"github.com/kiosk/backend/internal/interfaces/http/dto"
	"github.com/kiosk/backend/internal/interfaces/http/middleware"
)

// SessionHandler exposes the session lifecycle
type SessionHandler struct {
	BaseHandler
	service *applicationsession.BillingService
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(service *applicationsession.BillingService) *SessionHandler {
	return &SessionHandler{service: service}
}

// RegisterRoutes registers session routes
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	operate := middleware.RequireRoles(auth.RoleAdmin, auth.RoleStaff, auth.RoleTerminal)
	review := middleware.RequireRoles(auth.RoleAdmin, auth.RoleStaff)

	sessions := rg.Group("/sessions")
	{
		sessions.POST("", operate, h.Start)
		sessions.GET("", review, h.List)
		sessions.GET("/:id", review, h.Get)
		sessions.POST("/:id/extend", operate, h.Extend)
		sessions.POST("/:id/end", operate, h.End)
	}

	rg.GET("/terminals/:id/session", operate, h.GetActiveForTerminal)
}

// Start begins a session on a free terminal
func (h *SessionHandler) Start(c *gin.Context) {
	var input applicationsession.StartSessionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	resp, err := h.service.StartSession(c.Request.Context(), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// List returns session history filtered by terminal, user or status
func (h *SessionHandler) List(c *gin.Context) {
	var listReq dto.ListRequest
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.HandleBindingError(c, err)
		return
	}
	listReq.Normalize()

	filter := session.Filter{
		Page:     listReq.Page,
		PageSize: listReq.PageSize,
	}
	if terminalIDStr := c.Query("terminal_id"); terminalIDStr != "" {
		terminalID, err := uuid.Parse(terminalIDStr)
		if err != nil {
			h.BadRequest(c, "Invalid terminal_id")
			return
		}
		filter.TerminalID = &terminalID
	}
	if userIDStr := c.Query("user_id"); userIDStr != "" {
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			h.BadRequest(c, "Invalid user_id")
			return
		}
		filter.UserID = &userID
	}
	if statusStr := c.Query("status"); statusStr != "" {
		status := session.Status(statusStr)
		if !status.IsValid() {
			h.BadRequest(c, "Unknown session status: "+statusStr)
			return
		}
		filter.Status = &status
	}

	page, err := h.service.ListSessions(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Get returns one session
func (h *SessionHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid session ID")
		return
	}

	resp, err := h.service.GetSession(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// GetActiveForTerminal returns the terminal's current session
func (h *SessionHandler) GetActiveForTerminal(c *gin.Context) {
	terminalID, ok := uuidParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid terminal ID")
		return
	}

	resp, err := h.service.GetActiveSessionForTerminal(c.Request.Context(), terminalID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Extend adds minutes to an active session
func (h *SessionHandler) Extend(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid session ID")
		return
	}

	var input applicationsession.ExtendSessionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	resp, err := h.service.ExtendSession(c.Request.Context(), id, input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// End finishes a session and returns the final charge
func (h *SessionHandler) End(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid session ID")
		return
	}

	// the body is optional; an empty one ends the session as COMPLETED
	var input applicationsession.EndSessionInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			h.HandleBindingError(c, err)
			return
		}
	}

	resp, err := h.service.EndSession(c.Request.Context(), id, input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
