package rawfiles

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"intake-backend/internal/classification"
	"intake-backend/internal/doctypes"
	"intake-backend/internal/intake"
	"intake-backend/internal/queue"
	"intake-backend/internal/shared/server/middleware"
	"intake-backend/internal/shared/server/respond"
	"intake-backend/internal/shared/storage/object"
	"intake-backend/internal/shared/telemetry"
)

// maxUploadSize leaves room for multipart framing around the file.
const maxUploadSize = object.MaxObjectBytes + 1<<20

// Handler wires raw-file routes to the upload service and the classification
// stage. When Queue is set, classification runs on the worker and the routes
// answer 202.
type Handler struct {
	Svc   *Service
	Stage *classification.Stage
	Queue queue.Client
}

// NewHandler constructs a Handler. q may be nil.
func NewHandler(svc *Service, stage *classification.Stage, q queue.Client) *Handler {
	return &Handler{Svc: svc, Stage: stage, Queue: q}
}

// RegisterRoutes attaches raw-file routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	cases := rg.Group("/cases/:caseId", middleware.RequireCaseAccess())
	cases.POST("/raw-files", h.upload)
	cases.POST("/raw-files/presign", h.presign)
	cases.POST("/raw-files/from-s3", h.createFromS3)
	cases.GET("/raw-files", middleware.RequireStaff(), h.list)

	staff := rg.Group("/raw-files", middleware.RequireStaff())
	staff.GET("/:id", h.get)
	staff.GET("/:id/read-url", h.readURL)
	staff.POST("/:id/classify", h.classify)
	staff.POST("/:id/classify-anyway", h.classifyAnyway)
	staff.POST("/:id/classify-manual", h.classifyManual)
	staff.POST("/:id/mark-blurry", h.markBlurry)
	staff.POST("/:id/seen", h.seen)
}

type rawFileResponse struct {
	ID                       string    `json:"id"`
	CaseID                   string    `json:"caseId"`
	OriginalFilename         string    `json:"originalFilename"`
	DisplayName              string    `json:"displayName,omitempty"`
	MimeType                 string    `json:"mimeType"`
	SizeBytes                int64     `json:"sizeBytes"`
	UploadChannel            string    `json:"uploadChannel"`
	Status                   string    `json:"status"`
	ClassifiedType           *string   `json:"classifiedType"`
	ClassifiedLabel          string    `json:"classifiedLabel,omitempty"`
	ClassificationConfidence *float64  `json:"classificationConfidence"`
	RequirementID            *string   `json:"requirementId"`
	GroupID                  *string   `json:"groupId,omitempty"`
	PageIndex                *int      `json:"pageIndex,omitempty"`
	PageCount                *int      `json:"pageCount,omitempty"`
	IsNew                    bool      `json:"isNew"`
	CreatedAt                time.Time `json:"createdAt"`
	UpdatedAt                time.Time `json:"updatedAt"`
}

func toResponse(f intake.RawFile) rawFileResponse {
	out := rawFileResponse{
		ID:                       f.ID,
		CaseID:                   f.CaseID,
		OriginalFilename:         f.OriginalFilename,
		DisplayName:              f.DisplayName,
		MimeType:                 f.MimeType,
		SizeBytes:                f.SizeBytes,
		UploadChannel:            string(f.UploadChannel),
		Status:                   string(f.Status),
		ClassificationConfidence: f.ClassificationConfidence,
		RequirementID:            f.RequirementID,
		GroupID:                  f.GroupID,
		PageIndex:                f.PageIndex,
		PageCount:                f.PageCount,
		IsNew:                    f.IsNew,
		CreatedAt:                f.CreatedAt,
		UpdatedAt:                f.UpdatedAt,
	}
	if f.ClassifiedType != nil {
		t := string(*f.ClassifiedType)
		out.ClassifiedType = &t
		out.ClassifiedLabel = doctypes.Label(*f.ClassifiedType)
	}
	return out
}

func channelFor(c *gin.Context) intake.UploadChannel {
	if middleware.IsStaff(c) {
		return intake.ChannelStaff
	}
	return intake.ChannelClientPortal
}

func (h *Handler) upload(c *gin.Context) {
	caseID := c.Param("caseId")
	c.Set("caseId", caseID)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	in := UploadInput{
		CaseID:      caseID,
		FileName:    fileHeader.Filename,
		DisplayName: c.PostForm("displayName"),
		ContentType: fileHeader.Header.Get("Content-Type"),
		Channel:     channelFor(c),
		GroupID:     strings.TrimSpace(c.PostForm("groupId")),
		Body:        file,
	}
	if v := strings.TrimSpace(c.PostForm("pageIndex")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respond.Error(c, http.StatusBadRequest, "validation_error", "pageIndex must be a non-negative integer", nil)
			return
		}
		in.PageIndex = &n
	}

	f, err := h.Svc.Upload(c.Request.Context(), in)
	if err != nil {
		writeError(c, err, "failed to upload file")
		return
	}
	c.Set("rawFileId", f.ID)
	h.afterCreate(c, f)
}

type presignRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

func (h *Handler) presign(c *gin.Context) {
	caseID := c.Param("caseId")
	c.Set("caseId", caseID)

	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	out, err := h.Svc.PresignUpload(c.Request.Context(), caseID, req.FileName, req.ContentType)
	if err != nil {
		if errors.Is(err, ErrPresignUnavailable) {
			respond.Error(c, http.StatusNotImplemented, "not_configured", "direct uploads need the S3 object store", nil)
			return
		}
		writeError(c, err, "failed to generate upload url")
		return
	}
	respond.OK(c, gin.H{
		"uploadUrl":        out.UploadURL,
		"s3Key":            out.StorageKey,
		"expiresInSeconds": int64(out.ExpiresIn.Seconds()),
	})
}

type createFromS3Request struct {
	S3Key            string `json:"s3Key"`
	OriginalFileName string `json:"originalFileName"`
	ContentType      string `json:"contentType"`
	SizeBytes        int64  `json:"sizeBytes"`
}

func (h *Handler) createFromS3(c *gin.Context) {
	caseID := c.Param("caseId")
	c.Set("caseId", caseID)

	var req createFromS3Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	req.S3Key = strings.TrimSpace(req.S3Key)
	req.OriginalFileName = strings.TrimSpace(req.OriginalFileName)
	if req.S3Key == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "s3Key is required", nil)
		return
	}
	if req.OriginalFileName == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "originalFileName is required", nil)
		return
	}

	f, err := h.Svc.RegisterFromS3(c.Request.Context(), RegisterInput{
		CaseID:      caseID,
		StorageKey:  req.S3Key,
		FileName:    req.OriginalFileName,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		Channel:     channelFor(c),
	})
	if err != nil {
		writeError(c, err, "failed to register upload")
		return
	}
	c.Set("rawFileId", f.ID)
	h.afterCreate(c, f)
}

// afterCreate starts classification for a new file and answers 201 with the
// file as it stands afterwards. A classification failure does not fail the
// upload; the file stays uploaded and can be classified again.
func (h *Handler) afterCreate(c *gin.Context, f intake.RawFile) {
	ctx := c.Request.Context()
	if h.Queue != nil {
		if err := h.enqueue(ctx, c, f.ID, false); err != nil {
			telemetry.Warn("raw_file.enqueue_failed", map[string]any{"raw_file_id": f.ID, "case_id": f.CaseID, "error": err.Error()})
		}
		respond.Created(c, gin.H{"rawFile": toResponse(f), "queued": true})
		return
	}
	if h.Stage != nil {
		res, err := h.Stage.Classify(ctx, f.ID)
		if err != nil {
			telemetry.Warn("raw_file.classify_failed", map[string]any{"raw_file_id": f.ID, "case_id": f.CaseID, "error": err.Error()})
		} else {
			c.Set("statusTransition", res.Transition)
			respond.Created(c, classifyBody(res))
			return
		}
	}
	respond.Created(c, gin.H{"rawFile": toResponse(f)})
}

func (h *Handler) enqueue(ctx context.Context, c *gin.Context, rawFileID string, anyway bool) error {
	msg := queue.NewMessage(queue.KindClassify, rawFileID, middleware.RequestIDFromContext(c))
	msg.Anyway = anyway
	return h.Queue.Send(ctx, msg)
}

func (h *Handler) list(c *gin.Context) {
	caseID := c.Param("caseId")
	c.Set("caseId", caseID)
	files, err := h.Svc.List(c.Request.Context(), caseID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list raw files", nil)
		return
	}
	status := c.Query("status")
	onlyNew := c.Query("new") == "true"
	items := make([]rawFileResponse, 0, len(files))
	for _, f := range files {
		if status != "" && string(f.Status) != status {
			continue
		}
		if onlyNew && !f.IsNew {
			continue
		}
		items = append(items, toResponse(f))
	}
	respond.OK(c, gin.H{"items": items})
}

func (h *Handler) get(c *gin.Context) {
	f, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to fetch raw file")
		return
	}
	c.Set("caseId", f.CaseID)
	c.Set("rawFileId", f.ID)
	respond.OK(c, toResponse(f))
}

func (h *Handler) readURL(c *gin.Context) {
	f, url, err := h.Svc.ReadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to sign read url")
		return
	}
	c.Set("caseId", f.CaseID)
	c.Set("rawFileId", f.ID)
	if url == "" {
		respond.Error(c, http.StatusNotImplemented, "not_configured", "read urls need the S3 object store", nil)
		return
	}
	respond.OK(c, gin.H{"url": url, "expiresInSeconds": int64(h.Svc.ReadURLTTL.Seconds())})
}

func classifyBody(res classification.Result) gin.H {
	body := gin.H{"rawFile": toResponse(res.RawFile), "transition": res.Transition}
	if res.Reason != "" {
		body["reason"] = res.Reason
	}
	if res.DuplicateOf != "" {
		body["duplicateOf"] = res.DuplicateOf
	}
	if res.Document != nil {
		body["documentId"] = res.Document.ID
	}
	if res.Requirement != nil {
		body["requirementId"] = res.Requirement.ID
		body["requirementStatus"] = string(res.Requirement.Status)
	}
	return body
}

func (h *Handler) runClassification(c *gin.Context, anyway bool, run func(ctx context.Context, id string) (classification.Result, error)) {
	id := c.Param("id")
	c.Set("rawFileId", id)
	if h.Queue != nil {
		f, err := h.Svc.Get(c.Request.Context(), id)
		if err != nil {
			writeError(c, err, "failed to fetch raw file")
			return
		}
		c.Set("caseId", f.CaseID)
		if err := h.enqueue(c.Request.Context(), c, id, anyway); err != nil {
			respond.Error(c, http.StatusServiceUnavailable, "queue_unavailable", "failed to queue classification", gin.H{"retryable": true})
			return
		}
		respond.Accepted(c, gin.H{"rawFileId": id, "queued": true})
		return
	}
	res, err := run(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to classify raw file")
		return
	}
	c.Set("caseId", res.RawFile.CaseID)
	c.Set("statusTransition", res.Transition)
	respond.OK(c, classifyBody(res))
}

func (h *Handler) classify(c *gin.Context) {
	h.runClassification(c, false, h.Stage.Classify)
}

func (h *Handler) classifyAnyway(c *gin.Context) {
	h.runClassification(c, true, h.Stage.ClassifyAnyway)
}

type classifyManualRequest struct {
	DocumentType string `json:"documentType"`
}

func (h *Handler) classifyManual(c *gin.Context) {
	var req classifyManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	t, ok := doctypes.Parse(req.DocumentType)
	if !ok {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unknown documentType", gin.H{"documentTypes": doctypes.Types()})
		return
	}
	id := c.Param("id")
	c.Set("rawFileId", id)
	res, err := h.Stage.ClassifyManual(c.Request.Context(), id, t)
	if err != nil {
		writeError(c, err, "failed to classify raw file")
		return
	}
	c.Set("caseId", res.RawFile.CaseID)
	c.Set("statusTransition", res.Transition)
	respond.OK(c, classifyBody(res))
}

func (h *Handler) markBlurry(c *gin.Context) {
	id := c.Param("id")
	c.Set("rawFileId", id)
	res, err := h.Stage.MarkBlurry(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to mark raw file")
		return
	}
	c.Set("caseId", res.RawFile.CaseID)
	c.Set("statusTransition", res.Transition)
	respond.OK(c, classifyBody(res))
}

func (h *Handler) seen(c *gin.Context) {
	id := c.Param("id")
	c.Set("rawFileId", id)
	f, err := h.Stage.MarkSeen(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to update raw file")
		return
	}
	c.Set("caseId", f.CaseID)
	respond.OK(c, toResponse(f))
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, intake.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "raw file not found", nil)
	case errors.Is(err, intake.ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, intake.ErrInvalidTransition):
		respond.Error(c, http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, intake.ErrConflict):
		respond.Error(c, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, intake.ErrTransaction):
		respond.Error(c, http.StatusServiceUnavailable, "transaction_conflict", "please retry", gin.H{"retryable": true})
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
