package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/samudra-hr/hris-api/internal/dto"
	"github.com/samudra-hr/hris-api/internal/models"
	"github.com/samudra-hr/hris-api/internal/workflow"
	appErrors "github.com/samudra-hr/hris-api/pkg/errors"
	"github.com/samudra-hr/hris-api/pkg/response"
)

type workflowService interface {
	Submit(ctx context.Context, domain models.Domain, req dto.SubmitWorkflowRequest, actor workflow.Actor) (*models.WorkflowInstance, error)
	Transition(ctx context.Context, instanceID string, req dto.TransitionRequest, actor workflow.Actor) (*models.WorkflowInstance, error)
	Get(ctx context.Context, instanceID string, actor workflow.Actor) (*models.WorkflowInstance, error)
	List(ctx context.Context, domain models.Domain, query dto.InstanceQuery, actor workflow.Actor) ([]models.WorkflowInstance, *models.Pagination, error)
	UpdateDraftContract(ctx context.Context, instanceID string, req dto.ContractEditRequest, actor workflow.Actor) (*models.WorkflowInstance, error)
	RecordRepayment(ctx context.Context, instanceID string, req dto.RepaymentRequest, actor workflow.Actor) (*models.WorkflowInstance, error)
	Schedule(ctx context.Context, instanceID string, actor workflow.Actor) ([]models.RepaymentEntry, error)
}

// WorkflowHandler exposes the request/approval engine over REST.
type WorkflowHandler struct {
	service workflowService
}

// NewWorkflowHandler constructs the handler.
func NewWorkflowHandler(service workflowService) *WorkflowHandler {
	return &WorkflowHandler{service: service}
}

// domainParam normalises the :domain path segment; both kebab-case and the
// canonical upper-snake form are accepted.
func domainParam(c *gin.Context) models.Domain {
	raw := strings.TrimSpace(c.Param("domain"))
	raw = strings.ReplaceAll(raw, "-", "_")
	return models.Domain(strings.ToUpper(raw))
}

// Submit godoc
// @Summary Open a workflow instance
// @Tags Workflows
// @Accept json
// @Produce json
// @Param domain path string true "Workflow domain"
// @Param payload body dto.SubmitWorkflowRequest true "Submission payload"
// @Success 201 {object} response.Envelope
// @Router /workflows/{domain} [post]
func (h *WorkflowHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid submission payload"))
		return
	}
	instance, err := h.service.Submit(c.Request.Context(), domainParam(c), req, actorFromClaims(claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, instance)
}

// List godoc
// @Summary List workflow instances in a domain
// @Tags Workflows
// @Produce json
// @Param domain path string true "Workflow domain"
// @Param status query string false "Comma separated states"
// @Param subjectId query string false "Subject employee id"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /workflows/{domain} [get]
func (h *WorkflowHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.InstanceQuery{
		SubjectID: strings.TrimSpace(c.Query("subjectId")),
	}
	if raw := c.Query("status"); raw != "" {
		parts := strings.Split(raw, ",")
		states := make([]models.State, 0, len(parts))
		for _, part := range parts {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			states = append(states, models.State(part))
		}
		query.States = states
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		query.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("pageSize", "20")); err == nil {
		query.PageSize = size
	}

	instances, pagination, err := h.service.List(c.Request.Context(), domainParam(c), query, actorFromClaims(claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instances, pagination)
}

// Get godoc
// @Summary Get a workflow instance with its transition history
// @Tags Workflows
// @Produce json
// @Param id path string true "Instance id"
// @Success 200 {object} response.Envelope
// @Router /workflows/instances/{id} [get]
func (h *WorkflowHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	instance, err := h.service.Get(c.Request.Context(), c.Param("id"), actorFromClaims(claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instance, nil)
}

// Transition godoc
// @Summary Invoke an action on a workflow instance
// @Tags Workflows
// @Accept json
// @Produce json
// @Param id path string true "Instance id"
// @Param payload body dto.TransitionRequest true "Transition payload"
// @Success 200 {object} response.Envelope
// @Router /workflows/instances/{id}/transitions [post]
func (h *WorkflowHandler) Transition(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transition payload"))
		return
	}
	instance, err := h.service.Transition(c.Request.Context(), c.Param("id"), req, actorFromClaims(claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instance, nil)
}

// UpdateContract godoc
// @Summary Replace the terms of a draft contract
// @Tags Workflows
// @Accept json
// @Produce json
// @Param id path string true "Instance id"
// @Param payload body dto.ContractEditRequest true "Contract terms"
// @Success 200 {object} response.Envelope
// @Router /workflows/instances/{id}/contract [put]
func (h *WorkflowHandler) UpdateContract(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ContractEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid contract payload"))
		return
	}
	instance, err := h.service.UpdateDraftContract(c.Request.Context(), c.Param("id"), req, actorFromClaims(claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instance, nil)
}

// RecordRepayment godoc
// @Summary Post a payroll deduction against an active advance
// @Tags Workflows
// @Accept json
// @Produce json
// @Param id path string true "Instance id"
// @Param payload body dto.RepaymentRequest true "Repayment amount"
// @Success 200 {object} response.Envelope
// @Router /workflows/instances/{id}/repayments [post]
func (h *WorkflowHandler) RecordRepayment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RepaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid repayment payload"))
		return
	}
	instance, err := h.service.RecordRepayment(c.Request.Context(), c.Param("id"), req, actorFromClaims(claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instance, nil)
}

// Schedule godoc
// @Summary List the repayment schedule of an advance
// @Tags Workflows
// @Produce json
// @Param id path string true "Instance id"
// @Success 200 {object} response.Envelope
// @Router /workflows/instances/{id}/repayments [get]
func (h *WorkflowHandler) Schedule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	entries, err := h.service.Schedule(c.Request.Context(), c.Param("id"), actorFromClaims(claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
