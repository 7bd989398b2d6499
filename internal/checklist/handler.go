package checklist

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"intake-backend/internal/intake"
	"intake-backend/internal/shared/server/middleware"
	"intake-backend/internal/shared/server/respond"
)

// Handler wires checklist routes to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches checklist routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/cases/:caseId/checklist", middleware.RequireCaseAccess(), h.list)
	rg.POST("/cases/:caseId/checklist", middleware.RequireStaff(), h.open)
	rg.POST("/checklist/:id/downgrade", middleware.RequireStaff(), h.downgrade)
}

type requirementResponse struct {
	ID            string    `json:"id"`
	CaseID        string    `json:"caseId"`
	TemplateID    string    `json:"templateId"`
	DocumentType  string    `json:"documentType"`
	Label         string    `json:"label"`
	Status        string    `json:"status"`
	ReceivedCount int       `json:"receivedCount"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func toResponse(r intake.ChecklistRequirement) requirementResponse {
	return requirementResponse{
		ID:            r.ID,
		CaseID:        r.CaseID,
		TemplateID:    r.TemplateID,
		DocumentType:  string(r.DocumentType),
		Label:         r.Label,
		Status:        string(r.Status),
		ReceivedCount: r.ReceivedCount,
		UpdatedAt:     r.UpdatedAt,
	}
}

func toResponses(list []intake.ChecklistRequirement) []requirementResponse {
	out := make([]requirementResponse, 0, len(list))
	for _, r := range list {
		out = append(out, toResponse(r))
	}
	return out
}

func (h *Handler) list(c *gin.Context) {
	caseID := c.Param("caseId")
	c.Set("caseId", caseID)
	list, err := h.Svc.List(c.Request.Context(), caseID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list checklist", nil)
		return
	}
	respond.OK(c, gin.H{"items": toResponses(list)})
}

type openRequest struct {
	TemplateSet string `json:"templateSet"`
}

func (h *Handler) open(c *gin.Context) {
	caseID := c.Param("caseId")
	c.Set("caseId", caseID)

	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	req.TemplateSet = strings.TrimSpace(req.TemplateSet)
	if req.TemplateSet == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "templateSet is required", gin.H{"templateSets": h.Svc.Templates.Names()})
		return
	}

	list, err := h.Svc.OpenCase(c.Request.Context(), caseID, req.TemplateSet)
	if err != nil {
		writeError(c, err, "failed to open checklist")
		return
	}
	respond.Created(c, gin.H{"items": toResponses(list)})
}

type downgradeRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *Handler) downgrade(c *gin.Context) {
	var req downgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "reason is required", nil)
		return
	}

	out, err := h.Svc.Downgrade(c.Request.Context(), c.Param("id"), intake.RequirementStatus(req.Status), req.Reason)
	if err != nil {
		writeError(c, err, "failed to downgrade requirement")
		return
	}
	c.Set("caseId", out.CaseID)
	respond.OK(c, toResponse(out))
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, intake.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "requirement not found", nil)
	case errors.Is(err, intake.ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, intake.ErrInvalidTransition):
		respond.Error(c, http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, intake.ErrTransaction):
		respond.Error(c, http.StatusServiceUnavailable, "transaction_conflict", "please retry", gin.H{"retryable": true})
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
