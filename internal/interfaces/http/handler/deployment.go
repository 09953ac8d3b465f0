package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	applicationdeployment "github.com/kiosk/backend/internal/application/deployment"
	"github.com/kiosk/backend/internal/domain/deployment"
	"github.com/kiosk/backend/internal/infrastructure/auth"
	"github.com/kiosk/backend/internal/interfaces/http/dto"
	"github.com/kiosk/backend/internal/interfaces/http/middleware"
)

// DeploymentHandler exposes fleet rollout and monitoring
type DeploymentHandler struct {
	BaseHandler
	service *applicationdeployment.FleetService
}

// NewDeploymentHandler creates a new DeploymentHandler
func NewDeploymentHandler(service *applicationdeployment.FleetService) *DeploymentHandler {
	return &DeploymentHandler{service: service}
}

// RegisterRoutes registers deployment routes
func (h *DeploymentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	admin := middleware.RequireRoles(auth.RoleAdmin)
	review := middleware.RequireRoles(auth.RoleAdmin, auth.RoleStaff)
	agent := middleware.RequireRoles(auth.RoleTerminal)

	deployments := rg.Group("/deployments")
	{
		deployments.POST("", admin, h.Register)
		deployments.GET("", review, h.List)
		deployments.GET("/offline", review, h.ListOffline)
		deployments.GET("/statistics", review, h.GetStatistics)
		deployments.GET("/:id", review, h.Get)
		deployments.GET("/:id/logs", review, h.GetLogs)
		deployments.POST("/:id/deploy", admin, h.Deploy)
		deployments.POST("/:id/update", admin, h.Update)
		deployments.POST("/:id/report", agent, h.Report)
		deployments.POST("/:id/maintenance", admin, h.SetMaintenance)
	}

	// agents report by their client name, before they know their record ID
	rg.POST("/clients/:name/heartbeat", agent, h.Heartbeat)
}

// Register creates a deployment record for a new client install
func (h *DeploymentHandler) Register(c *gin.Context) {
	var input applicationdeployment.RegisterClientInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	resp, err := h.service.RegisterClient(c.Request.Context(), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// List returns deployments, optionally filtered by status
func (h *DeploymentHandler) List(c *gin.Context) {
	var listReq dto.ListRequest
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.HandleBindingError(c, err)
		return
	}
	listReq.Normalize()

	filter := deployment.Filter{
		Page:     listReq.Page,
		PageSize: listReq.PageSize,
	}
	if statusStr := c.Query("status"); statusStr != "" {
		status := deployment.Status(statusStr)
		if !status.IsValid() {
			h.BadRequest(c, "Unknown deployment status: "+statusStr)
			return
		}
		filter.Status = &status
	}
	if version := c.Query("version"); version != "" {
		filter.Version = &version
	}

	page, err := h.service.ListDeployments(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// ListOffline returns clients whose heartbeat went stale
func (h *DeploymentHandler) ListOffline(c *gin.Context) {
	clients, err := h.service.ListOfflineClients(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, clients)
}

// GetStatistics returns fleet-wide status counts and uptime
func (h *DeploymentHandler) GetStatistics(c *gin.Context) {
	stats, err := h.service.GetStatistics(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// Get returns one deployment
func (h *DeploymentHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid deployment ID")
		return
	}

	resp, err := h.service.GetDeployment(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// GetLogs returns the deployment's append-only log
func (h *DeploymentHandler) GetLogs(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid deployment ID")
		return
	}

	logs, err := h.service.GetDeploymentLogs(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, logs)
}

// Deploy starts a first install towards the target version
func (h *DeploymentHandler) Deploy(c *gin.Context) {
	h.issueCommand(c, h.service.DeployToClient)
}

// Update starts a version change on an online client
func (h *DeploymentHandler) Update(c *gin.Context) {
	h.issueCommand(c, h.service.UpdateClientVersion)
}

func (h *DeploymentHandler) issueCommand(
	c *gin.Context,
	issue func(ctx context.Context, id uuid.UUID, input applicationdeployment.DeployInput) (*applicationdeployment.DeploymentResponse, error),
) {
	id, ok := uuidParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid deployment ID")
		return
	}

	var input applicationdeployment.DeployInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	resp, err := issue(c.Request.Context(), id, input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Report records the client's install result
func (h *DeploymentHandler) Report(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid deployment ID")
		return
	}

	var input applicationdeployment.CommandResultInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	resp, err := h.service.ReportCommandResult(c.Request.Context(), id, input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// SetMaintenance toggles the maintenance override
func (h *DeploymentHandler) SetMaintenance(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid deployment ID")
		return
	}

	var input applicationdeployment.MaintenanceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	resp, err := h.service.SetMaintenance(c.Request.Context(), id, input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Heartbeat records a liveness report from a client agent
func (h *DeploymentHandler) Heartbeat(c *gin.Context) {
	clientName := c.Param("name")
	if clientName == "" {
		h.BadRequest(c, "Missing client name")
		return
	}

	var input applicationdeployment.ClientHeartbeatInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			h.HandleBindingError(c, err)
			return
		}
	}

	resp, err := h.service.RecordHeartbeat(c.Request.Context(), clientName, input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
