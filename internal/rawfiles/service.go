// Package rawfiles accepts uploads into a case and exposes the raw-file
// records and their classification actions over HTTP.
package rawfiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"intake-backend/internal/fingerprint"
	"intake-backend/internal/intake"
	"intake-backend/internal/shared/storage/object"
	"intake-backend/internal/shared/telemetry"
	"intake-backend/internal/shared/util"
)

// ErrPresignUnavailable is returned when the object store cannot sign uploads.
var ErrPresignUnavailable = errors.New("direct upload not available")

// Presigner signs direct-to-bucket uploads. The S3 object store implements it.
type Presigner interface {
	PresignPut(ctx context.Context, storageKey, contentType string, ttl time.Duration) (string, error)
}

// Service stores uploads and records them as raw files.
type Service struct {
	Store      intake.Store
	Objects    object.ObjectStore
	Presigner  Presigner
	ReadURLTTL time.Duration
	Now        func() time.Time
}

// NewService constructs a Service. The object store doubles as presigner when
// it supports it.
func NewService(store intake.Store, objects object.ObjectStore, readURLTTL time.Duration) *Service {
	s := &Service{Store: store, Objects: objects, ReadURLTTL: readURLTTL}
	if p, ok := objects.(Presigner); ok {
		s.Presigner = p
	}
	return s
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// UploadInput is one file arriving from the portal or from staff.
type UploadInput struct {
	CaseID      string
	FileName    string
	DisplayName string
	ContentType string
	Channel     intake.UploadChannel
	GroupID     string
	PageIndex   *int
	Body        io.Reader
}

// Upload stores the bytes and records an uploaded raw file. Only images and
// PDFs are accepted.
func (s *Service) Upload(ctx context.Context, in UploadInput) (intake.RawFile, error) {
	caseID := strings.TrimSpace(in.CaseID)
	if caseID == "" {
		return intake.RawFile{}, fmt.Errorf("%w: case id is required", intake.ErrInvalidInput)
	}
	name, err := util.SanitizeFileName(in.FileName)
	if err != nil {
		return intake.RawFile{}, fmt.Errorf("%w: %v", intake.ErrInvalidInput, err)
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return intake.RawFile{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return intake.RawFile{}, fmt.Errorf("%w: file is empty", intake.ErrInvalidInput)
	}
	if len(data) > object.MaxObjectBytes {
		return intake.RawFile{}, fmt.Errorf("%w: file exceeds %d bytes", intake.ErrInvalidInput, object.MaxObjectBytes)
	}
	mimeType := fingerprint.NormalizeMimeType(in.ContentType, name, data)
	if fingerprint.DetectKind(data, mimeType, name) == fingerprint.KindUnknown {
		return intake.RawFile{}, fmt.Errorf("%w: unsupported file type %q", intake.ErrInvalidInput, mimeType)
	}

	key := object.UploadKey(caseID, name)
	size, err := s.Objects.Put(ctx, key, mimeType, bytes.NewReader(data))
	if err != nil {
		return intake.RawFile{}, fmt.Errorf("store upload: %w", err)
	}

	f := s.newRawFile(caseID, key, name, in.DisplayName, mimeType, size, in.Channel)
	if in.GroupID != "" {
		g := in.GroupID
		f.GroupID = &g
	}
	f.PageIndex = in.PageIndex
	describeContent(&f, data)
	if err := s.Store.CreateRawFile(ctx, f); err != nil {
		return intake.RawFile{}, err
	}
	s.logCreated(f, "upload")
	return f, nil
}

// RegisterInput describes an object a client already put into the bucket.
type RegisterInput struct {
	CaseID      string
	StorageKey  string
	FileName    string
	ContentType string
	SizeBytes   int64
	Channel     intake.UploadChannel
}

// RegisterFromS3 records an object uploaded through a presigned URL. The key
// must live under the case's upload prefix.
func (s *Service) RegisterFromS3(ctx context.Context, in RegisterInput) (intake.RawFile, error) {
	caseID := strings.TrimSpace(in.CaseID)
	key := strings.TrimSpace(in.StorageKey)
	if caseID == "" || key == "" {
		return intake.RawFile{}, fmt.Errorf("%w: case id and storage key are required", intake.ErrInvalidInput)
	}
	if err := object.ValidateKey(key); err != nil || !strings.HasPrefix(key, object.CasePrefix(caseID)) {
		return intake.RawFile{}, fmt.Errorf("%w: storage key is outside the case", intake.ErrInvalidInput)
	}
	name, err := util.SanitizeFileName(in.FileName)
	if err != nil {
		return intake.RawFile{}, fmt.Errorf("%w: %v", intake.ErrInvalidInput, err)
	}
	if in.SizeBytes <= 0 {
		return intake.RawFile{}, fmt.Errorf("%w: sizeBytes must be positive", intake.ErrInvalidInput)
	}

	info, err := s.Objects.Stat(ctx, key)
	if err != nil {
		return intake.RawFile{}, fmt.Errorf("%w: object %s is not readable: %v", intake.ErrInvalidInput, key, err)
	}
	if info.Size != in.SizeBytes {
		telemetry.Warn("raw_file.size_mismatch", map[string]any{
			"case_id":  caseID,
			"key":      key,
			"declared": in.SizeBytes,
			"stored":   info.Size,
		})
	}
	data, err := object.ReadAll(ctx, s.Objects, key, object.MaxObjectBytes)
	if err != nil {
		return intake.RawFile{}, fmt.Errorf("%w: object %s is not readable: %v", intake.ErrInvalidInput, key, err)
	}
	mimeType := fingerprint.NormalizeMimeType(in.ContentType, name, data)
	if fingerprint.DetectKind(data, mimeType, name) == fingerprint.KindUnknown {
		return intake.RawFile{}, fmt.Errorf("%w: unsupported file type %q", intake.ErrInvalidInput, mimeType)
	}

	f := s.newRawFile(caseID, key, name, "", mimeType, int64(len(data)), in.Channel)
	describeContent(&f, data)
	if err := s.Store.CreateRawFile(ctx, f); err != nil {
		return intake.RawFile{}, err
	}
	s.logCreated(f, "from_s3")
	return f, nil
}

// PresignedUpload is a signed PUT target for a client-side upload.
type PresignedUpload struct {
	UploadURL  string
	StorageKey string
	ExpiresIn  time.Duration
}

const presignExpires = 15 * time.Minute

// PresignUpload returns a URL the client can PUT the file to, followed by a
// RegisterFromS3 call with the returned key.
func (s *Service) PresignUpload(ctx context.Context, caseID, fileName, contentType string) (PresignedUpload, error) {
	if s.Presigner == nil {
		return PresignedUpload{}, ErrPresignUnavailable
	}
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return PresignedUpload{}, fmt.Errorf("%w: case id is required", intake.ErrInvalidInput)
	}
	name, err := util.SanitizeFileName(fileName)
	if err != nil {
		return PresignedUpload{}, fmt.Errorf("%w: %v", intake.ErrInvalidInput, err)
	}
	mimeType := fingerprint.NormalizeMimeType(contentType, name, nil)
	if mimeType != "application/pdf" && !strings.HasPrefix(mimeType, "image/") {
		return PresignedUpload{}, fmt.Errorf("%w: contentType is not allowed", intake.ErrInvalidInput)
	}
	key := object.UploadKey(caseID, name)
	url, err := s.Presigner.PresignPut(ctx, key, mimeType, presignExpires)
	if err != nil {
		telemetry.Error("uploads.presign.failed", map[string]any{
			"err":         err.Error(),
			"case_id":     caseID,
			"key":         key,
			"contentType": mimeType,
		})
		return PresignedUpload{}, err
	}
	return PresignedUpload{UploadURL: url, StorageKey: key, ExpiresIn: presignExpires}, nil
}

func (s *Service) newRawFile(caseID, key, name, display, mimeType string, size int64, channel intake.UploadChannel) intake.RawFile {
	if channel == "" {
		channel = intake.ChannelClientPortal
	}
	now := s.now()
	return intake.RawFile{
		ID:               uuid.NewString(),
		CaseID:           caseID,
		StorageKey:       key,
		OriginalFilename: name,
		DisplayName:      strings.TrimSpace(display),
		MimeType:         mimeType,
		SizeBytes:        size,
		UploadChannel:    channel,
		Status:           intake.RawUploaded,
		IsNew:            channel == intake.ChannelClientPortal,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// describeContent fills the page count and fingerprint read from the bytes.
// A file that cannot be fingerprinted is still accepted; classification
// retries on its own read.
func describeContent(f *intake.RawFile, data []byte) {
	if n, ok := fingerprint.PageCount(data, f.MimeType, f.OriginalFilename); ok {
		f.PageCount = &n
	}
	fp, err := fingerprint.Compute(data, f.MimeType, f.OriginalFilename)
	if err != nil {
		telemetry.Warn("raw_file.fingerprint_failed", map[string]any{"raw_file_id": f.ID, "case_id": f.CaseID, "error": err.Error()})
		return
	}
	f.Fingerprint = fp
}

func (s *Service) logCreated(f intake.RawFile, via string) {
	fields := map[string]any{
		"raw_file_id":    f.ID,
		"case_id":        f.CaseID,
		"mime_type":      f.MimeType,
		"size_bytes":     f.SizeBytes,
		"upload_channel": string(f.UploadChannel),
		"via":            via,
	}
	if f.PageCount != nil {
		fields["page_count"] = *f.PageCount
	}
	telemetry.Info("raw_file.created", fields)
}

// List returns a case's raw files.
func (s *Service) List(ctx context.Context, caseID string) ([]intake.RawFile, error) {
	return s.Store.ListRawFiles(ctx, caseID)
}

// Get returns one raw file.
func (s *Service) Get(ctx context.Context, id string) (intake.RawFile, error) {
	return s.Store.GetRawFile(ctx, id)
}

// ReadURL returns a short-lived URL for the staff viewer, or "" when the
// backend cannot sign one.
func (s *Service) ReadURL(ctx context.Context, id string) (intake.RawFile, string, error) {
	f, err := s.Store.GetRawFile(ctx, id)
	if err != nil {
		return intake.RawFile{}, "", err
	}
	url, err := s.Objects.ReadURL(ctx, f.StorageKey, s.ReadURLTTL)
	if err != nil {
		return f, "", fmt.Errorf("sign read url: %w", err)
	}
	return f, url, nil
}
