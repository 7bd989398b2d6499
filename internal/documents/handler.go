// Package documents exposes extracted documents over HTTP: extraction
// triggers, field review and completion.
package documents

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"intake-backend/internal/doctypes"
	"intake-backend/internal/extraction"
	"intake-backend/internal/intake"
	"intake-backend/internal/queue"
	"intake-backend/internal/shared/server/middleware"
	"intake-backend/internal/shared/server/respond"
	"intake-backend/internal/tasks"
	"intake-backend/internal/verification"
)

// Handler wires document routes to the extraction stage and the reconciler.
type Handler struct {
	Repo      intake.Repo
	Extractor *extraction.Stage
	Reviewer  *verification.Reconciler
	Tasks     tasks.Creator
	Queue     queue.Client
}

// NewHandler constructs a Handler. creator and q may be nil.
func NewHandler(repo intake.Repo, extractor *extraction.Stage, reviewer *verification.Reconciler, creator tasks.Creator, q queue.Client) *Handler {
	return &Handler{Repo: repo, Extractor: extractor, Reviewer: reviewer, Tasks: creator, Queue: q}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/cases/:caseId/documents", middleware.RequireStaff(), h.list)

	staff := rg.Group("/documents", middleware.RequireStaff())
	staff.GET("/:id", h.get)
	staff.POST("/:id/extract", h.extract)
	staff.PATCH("/:id/fields/:field", h.verifyField)
	staff.POST("/:id/complete", h.complete)
}

func (h *Handler) list(c *gin.Context) {
	caseID := c.Param("caseId")
	c.Set("caseId", caseID)
	docs, err := h.Repo.ListDocuments(c.Request.Context(), caseID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list documents", nil)
		return
	}
	status := c.Query("status")
	items := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		if status != "" && string(d.Status) != status {
			continue
		}
		items = append(items, toResponse(d))
	}
	respond.OK(c, gin.H{"items": items})
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("id")
	c.Set("documentId", id)
	view, err := h.Reviewer.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to fetch document")
		return
	}
	c.Set("caseId", view.Document.CaseID)
	respond.OK(c, toResponse(view.Document))
}

func (h *Handler) extract(c *gin.Context) {
	id := c.Param("id")
	c.Set("documentId", id)
	ctx := c.Request.Context()

	if h.Queue != nil {
		doc, err := h.Repo.GetDocument(ctx, id)
		if err != nil {
			writeError(c, err, "failed to fetch document")
			return
		}
		c.Set("caseId", doc.CaseID)
		if !doctypes.SupportsExtraction(doc.DocumentType) {
			respond.Error(c, http.StatusUnprocessableEntity, extraction.SkipUnsupportedType, "document type has no extraction schema", gin.H{"documentType": doc.DocumentType})
			return
		}
		msg := queue.NewMessage(queue.KindExtract, id, middleware.RequestIDFromContext(c))
		if err := h.Queue.Send(ctx, msg); err != nil {
			respond.Error(c, http.StatusServiceUnavailable, "queue_unavailable", "failed to queue extraction", gin.H{"retryable": true})
			return
		}
		respond.Accepted(c, gin.H{"documentId": id, "queued": true})
		return
	}

	res, err := h.Extractor.Extract(ctx, id)
	if err != nil {
		writeError(c, err, "failed to extract document")
		return
	}
	c.Set("caseId", res.Document.CaseID)
	c.Set("statusTransition", res.Transition)
	if res.Skipped == extraction.SkipUnsupportedType {
		respond.Error(c, http.StatusUnprocessableEntity, extraction.SkipUnsupportedType, "document type has no extraction schema", gin.H{"documentType": res.Document.DocumentType})
		return
	}
	body := gin.H{"document": toResponse(res.Document), "transition": res.Transition, "triage": res.Triage}
	if res.Skipped != "" {
		body["skipped"] = res.Skipped
	}
	respond.OK(c, body)
}

func (h *Handler) verifyField(c *gin.Context) {
	id := c.Param("id")
	c.Set("documentId", id)

	var raw map[string]json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	var status string
	if err := json.Unmarshal(raw["status"], &status); err != nil || strings.TrimSpace(status) == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "status is required", nil)
		return
	}
	u := verification.FieldUpdate{Field: c.Param("field"), Status: intake.FieldStatus(status)}
	if v, ok := raw["value"]; ok {
		if err := json.Unmarshal(v, &u.Value); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid value", nil)
			return
		}
		u.HasValue = true
	}

	doc, err := h.Reviewer.VerifyField(c.Request.Context(), id, u)
	if err != nil {
		writeError(c, err, "failed to update field")
		return
	}
	c.Set("caseId", doc.CaseID)
	respond.OK(c, toResponse(doc))
}

type completeRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

func (h *Handler) complete(c *gin.Context) {
	id := c.Param("id")
	c.Set("documentId", id)

	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	action := verification.Action(strings.ToLower(strings.TrimSpace(req.Action)))
	ctx := c.Request.Context()
	doc, err := h.Reviewer.Complete(ctx, id, action)
	if err != nil {
		writeError(c, err, "failed to complete document")
		return
	}
	c.Set("caseId", doc.CaseID)

	if action == verification.ActionReject {
		desc := "Staff rejected the document; ask the client for a new copy."
		if r := strings.TrimSpace(req.Reason); r != "" {
			desc = r
		}
		tasks.Notify(ctx, h.Tasks, tasks.Input{
			CaseID:      doc.CaseID,
			Kind:        intake.TriageRequestReupload,
			Priority:    intake.PriorityHigh,
			Title:       "Re-upload " + doctypes.Label(doc.DocumentType),
			Description: desc,
			Metadata:    map[string]any{"documentId": doc.ID, "rawFileId": doc.RawFileID},
		})
	}
	respond.OK(c, gin.H{"document": toResponse(doc), "action": string(action)})
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, intake.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, intake.ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, intake.ErrUnsupported):
		respond.Error(c, http.StatusUnprocessableEntity, "unsupported_type", err.Error(), nil)
	case errors.Is(err, intake.ErrInvalidTransition), errors.Is(err, intake.ErrConflict):
		respond.Error(c, http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, intake.ErrTransaction):
		respond.Error(c, http.StatusServiceUnavailable, "transaction_conflict", "please retry", gin.H{"retryable": true})
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
