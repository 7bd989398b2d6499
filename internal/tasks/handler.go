package tasks

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"intake-backend/internal/intake"
	"intake-backend/internal/shared/server/middleware"
	"intake-backend/internal/shared/server/respond"
)

// Handler exposes a case's triage queue to staff.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches triage routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/cases/:caseId/triage", middleware.RequireStaff(), h.list)
}

type actionResponse struct {
	ID          string         `json:"id"`
	CaseID      string         `json:"caseId"`
	Kind        string         `json:"kind"`
	Priority    string         `json:"priority"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func toResponse(a intake.TriageAction) actionResponse {
	return actionResponse{
		ID:          a.ID,
		CaseID:      a.CaseID,
		Kind:        string(a.Kind),
		Priority:    string(a.Priority),
		Title:       a.Title,
		Description: a.Description,
		Metadata:    a.Metadata,
		CreatedAt:   a.CreatedAt,
	}
}

func (h *Handler) list(c *gin.Context) {
	caseID := c.Param("caseId")
	c.Set("caseId", caseID)
	list, err := h.Svc.List(c.Request.Context(), caseID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list triage actions", nil)
		return
	}
	items := make([]actionResponse, 0, len(list))
	for _, a := range list {
		items = append(items, toResponse(a))
	}
	respond.OK(c, gin.H{"items": items})
}
