package intake

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"intake-backend/internal/doctypes"
	"intake-backend/internal/shared/storage/db"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PGStore implements Store using Postgres.
type PGStore struct {
	DB *sql.DB
}

// WithinTx runs fn inside a read-committed transaction. Reads made through the
// Tx take row locks. Deadlocks and serialization failures re-run fn before
// surfacing as ErrTransaction.
func (s *PGStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := db.RunInTx(ctx, s.DB, db.DefaultTxAttempts, func(tx *sql.Tx) error {
		return fn(ctx, &pgRepo{q: tx, lock: true})
	})
	return mapPGError(err)
}

func (s *PGStore) repo() *pgRepo { return &pgRepo{q: s.DB} }

func (s *PGStore) GetRawFile(ctx context.Context, id string) (RawFile, error) {
	return s.repo().GetRawFile(ctx, id)
}

func (s *PGStore) ListRawFiles(ctx context.Context, caseID string) ([]RawFile, error) {
	return s.repo().ListRawFiles(ctx, caseID)
}

func (s *PGStore) CreateRawFile(ctx context.Context, f RawFile) error {
	return s.repo().CreateRawFile(ctx, f)
}

func (s *PGStore) UpdateRawFile(ctx context.Context, f RawFile) error {
	return s.repo().UpdateRawFile(ctx, f)
}

func (s *PGStore) GetDocument(ctx context.Context, id string) (ExtractedDocument, error) {
	return s.repo().GetDocument(ctx, id)
}

func (s *PGStore) GetDocumentByRawFile(ctx context.Context, rawFileID string) (ExtractedDocument, error) {
	return s.repo().GetDocumentByRawFile(ctx, rawFileID)
}

func (s *PGStore) ListDocuments(ctx context.Context, caseID string) ([]ExtractedDocument, error) {
	return s.repo().ListDocuments(ctx, caseID)
}

func (s *PGStore) CreateDocument(ctx context.Context, d ExtractedDocument) error {
	return s.repo().CreateDocument(ctx, d)
}

func (s *PGStore) UpdateDocument(ctx context.Context, d ExtractedDocument) error {
	return s.repo().UpdateDocument(ctx, d)
}

func (s *PGStore) GetRequirement(ctx context.Context, id string) (ChecklistRequirement, error) {
	return s.repo().GetRequirement(ctx, id)
}

func (s *PGStore) ListRequirements(ctx context.Context, caseID string) ([]ChecklistRequirement, error) {
	return s.repo().ListRequirements(ctx, caseID)
}

func (s *PGStore) CreateRequirement(ctx context.Context, r ChecklistRequirement) error {
	return s.repo().CreateRequirement(ctx, r)
}

func (s *PGStore) UpdateRequirement(ctx context.Context, r ChecklistRequirement) error {
	return s.repo().UpdateRequirement(ctx, r)
}

// mapPGError turns serialization failures and deadlocks into ErrTransaction and
// unique violations into ErrConflict.
func mapPGError(err error) error {
	if errors.Is(err, ErrTransaction) || errors.Is(err, ErrConflict) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %w", ErrTransaction, err)
		case "23505":
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
	}
	return err
}

type pgRepo struct {
	q    querier
	lock bool
}

func (r *pgRepo) forUpdate(query string) string {
	if r.lock {
		return query + "\nFOR UPDATE"
	}
	return query
}

const rawFileColumns = `id, case_id, storage_key, original_filename, display_name, mime_type, size_bytes, upload_channel, status,
classified_type, classification_confidence, requirement_id, group_id, page_index, page_count, is_new, fingerprint, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRawFile(row rowScanner) (RawFile, error) {
	var f RawFile
	var classifiedType sql.NullString
	var confidence sql.NullFloat64
	var requirementID sql.NullString
	var groupID sql.NullString
	var pageIndex sql.NullInt32
	var pageCount sql.NullInt32
	err := row.Scan(
		&f.ID,
		&f.CaseID,
		&f.StorageKey,
		&f.OriginalFilename,
		&f.DisplayName,
		&f.MimeType,
		&f.SizeBytes,
		&f.UploadChannel,
		&f.Status,
		&classifiedType,
		&confidence,
		&requirementID,
		&groupID,
		&pageIndex,
		&pageCount,
		&f.IsNew,
		&f.Fingerprint,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RawFile{}, ErrNotFound
		}
		return RawFile{}, err
	}
	if classifiedType.Valid {
		t := doctypes.Type(classifiedType.String)
		f.ClassifiedType = &t
	}
	if confidence.Valid {
		f.ClassificationConfidence = &confidence.Float64
	}
	if requirementID.Valid {
		f.RequirementID = &requirementID.String
	}
	if groupID.Valid {
		f.GroupID = &groupID.String
	}
	if pageIndex.Valid {
		v := int(pageIndex.Int32)
		f.PageIndex = &v
	}
	if pageCount.Valid {
		v := int(pageCount.Int32)
		f.PageCount = &v
	}
	return f, nil
}

func (r *pgRepo) GetRawFile(ctx context.Context, id string) (RawFile, error) {
	query := r.forUpdate(`SELECT ` + rawFileColumns + `
FROM raw_files
WHERE id = $1`)
	return scanRawFile(r.q.QueryRowContext(ctx, query, id))
}

func (r *pgRepo) ListRawFiles(ctx context.Context, caseID string) ([]RawFile, error) {
	query := r.forUpdate(`SELECT ` + rawFileColumns + `
FROM raw_files
WHERE case_id = $1
ORDER BY created_at, id`)
	rows, err := r.q.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RawFile{}
	for rows.Next() {
		f, err := scanRawFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func nullableType(t *doctypes.Type) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*t), Valid: true}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullableInt(i *int) sql.NullInt32 {
	if i == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*i), Valid: true}
}

func (r *pgRepo) CreateRawFile(ctx context.Context, f RawFile) error {
	if err := f.CheckInvariants(); err != nil {
		return err
	}
	const query = `
INSERT INTO raw_files (
    id, case_id, storage_key, original_filename, display_name, mime_type, size_bytes, upload_channel, status,
    classified_type, classification_confidence, requirement_id, group_id, page_index, page_count, is_new,
    fingerprint, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err := r.q.ExecContext(ctx, query,
		f.ID,
		f.CaseID,
		f.StorageKey,
		f.OriginalFilename,
		f.DisplayName,
		f.MimeType,
		f.SizeBytes,
		f.UploadChannel,
		f.Status,
		nullableType(f.ClassifiedType),
		nullableFloat(f.ClassificationConfidence),
		nullableString(f.RequirementID),
		nullableString(f.GroupID),
		nullableInt(f.PageIndex),
		nullableInt(f.PageCount),
		f.IsNew,
		f.Fingerprint,
		f.CreatedAt,
		f.UpdatedAt,
	)
	return mapPGError(err)
}

func (r *pgRepo) UpdateRawFile(ctx context.Context, f RawFile) error {
	if err := f.CheckInvariants(); err != nil {
		return err
	}
	const query = `
UPDATE raw_files
SET display_name = $1, status = $2, classified_type = $3, classification_confidence = $4, requirement_id = $5,
    group_id = $6, page_index = $7, page_count = $8, is_new = $9, fingerprint = $10, updated_at = $11
WHERE id = $12`
	res, err := r.q.ExecContext(ctx, query,
		f.DisplayName,
		f.Status,
		nullableType(f.ClassifiedType),
		nullableFloat(f.ClassificationConfidence),
		nullableString(f.RequirementID),
		nullableString(f.GroupID),
		nullableInt(f.PageIndex),
		nullableInt(f.PageCount),
		f.IsNew,
		f.Fingerprint,
		f.UpdatedAt,
		f.ID,
	)
	return affectedOne(res, err)
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return mapPGError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const documentColumns = `id, case_id, raw_file_id, document_type, status, fields, confidence, field_statuses,
carried_over_fields, requirement_id, verified_at, extracted_at, created_at, updated_at`

func scanDocument(row rowScanner) (ExtractedDocument, error) {
	var d ExtractedDocument
	var fields []byte
	var fieldStatuses []byte
	var carried []byte
	var requirementID sql.NullString
	var verifiedAt sql.NullTime
	var extractedAt sql.NullTime
	err := row.Scan(
		&d.ID,
		&d.CaseID,
		&d.RawFileID,
		&d.DocumentType,
		&d.Status,
		&fields,
		&d.Confidence,
		&fieldStatuses,
		&carried,
		&requirementID,
		&verifiedAt,
		&extractedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ExtractedDocument{}, ErrNotFound
		}
		return ExtractedDocument{}, err
	}
	if err := unmarshalJSONB(fields, &d.Fields); err != nil {
		return ExtractedDocument{}, fmt.Errorf("decode fields for %s: %w", d.ID, err)
	}
	if err := unmarshalJSONB(fieldStatuses, &d.FieldStatuses); err != nil {
		return ExtractedDocument{}, fmt.Errorf("decode field statuses for %s: %w", d.ID, err)
	}
	if err := unmarshalJSONB(carried, &d.CarriedOverFields); err != nil {
		return ExtractedDocument{}, fmt.Errorf("decode carried-over fields for %s: %w", d.ID, err)
	}
	if requirementID.Valid {
		d.RequirementID = &requirementID.String
	}
	if verifiedAt.Valid {
		d.VerifiedAt = &verifiedAt.Time
	}
	if extractedAt.Valid {
		d.ExtractedAt = &extractedAt.Time
	}
	return d, nil
}

func unmarshalJSONB(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// marshalJSONB encodes v, writing nil maps and slices as their empty JSON form.
func marshalJSONB(v any, empty string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return []byte(empty), nil
	}
	return b, nil
}

func (r *pgRepo) GetDocument(ctx context.Context, id string) (ExtractedDocument, error) {
	query := r.forUpdate(`SELECT ` + documentColumns + `
FROM extracted_documents
WHERE id = $1`)
	return scanDocument(r.q.QueryRowContext(ctx, query, id))
}

func (r *pgRepo) GetDocumentByRawFile(ctx context.Context, rawFileID string) (ExtractedDocument, error) {
	query := r.forUpdate(`SELECT ` + documentColumns + `
FROM extracted_documents
WHERE raw_file_id = $1`)
	return scanDocument(r.q.QueryRowContext(ctx, query, rawFileID))
}

func (r *pgRepo) ListDocuments(ctx context.Context, caseID string) ([]ExtractedDocument, error) {
	query := r.forUpdate(`SELECT ` + documentColumns + `
FROM extracted_documents
WHERE case_id = $1
ORDER BY created_at, id`)
	rows, err := r.q.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ExtractedDocument{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type documentPayload struct {
	fields        []byte
	fieldStatuses []byte
	carried       []byte
}

func encodeDocument(d ExtractedDocument) (documentPayload, error) {
	var p documentPayload
	var err error
	if p.fields, err = marshalJSONB(d.Fields, "{}"); err != nil {
		return p, fmt.Errorf("encode fields: %w", err)
	}
	if p.fieldStatuses, err = marshalJSONB(d.FieldStatuses, "{}"); err != nil {
		return p, fmt.Errorf("encode field statuses: %w", err)
	}
	if p.carried, err = marshalJSONB(d.CarriedOverFields, "[]"); err != nil {
		return p, fmt.Errorf("encode carried-over fields: %w", err)
	}
	return p, nil
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func (r *pgRepo) CreateDocument(ctx context.Context, d ExtractedDocument) error {
	p, err := encodeDocument(d)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO extracted_documents (
    id, case_id, raw_file_id, document_type, status, fields, confidence, field_statuses, carried_over_fields,
    requirement_id, verified_at, extracted_at, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = r.q.ExecContext(ctx, query,
		d.ID,
		d.CaseID,
		d.RawFileID,
		d.DocumentType,
		d.Status,
		p.fields,
		d.Confidence,
		p.fieldStatuses,
		p.carried,
		nullableString(d.RequirementID),
		timeArg(d.VerifiedAt),
		timeArg(d.ExtractedAt),
		d.CreatedAt,
		d.UpdatedAt,
	)
	return mapPGError(err)
}

func (r *pgRepo) UpdateDocument(ctx context.Context, d ExtractedDocument) error {
	p, err := encodeDocument(d)
	if err != nil {
		return err
	}
	const query = `
UPDATE extracted_documents
SET document_type = $1, status = $2, fields = $3, confidence = $4, field_statuses = $5, carried_over_fields = $6,
    requirement_id = $7, verified_at = $8, extracted_at = $9, updated_at = $10
WHERE id = $11`
	res, err := r.q.ExecContext(ctx, query,
		d.DocumentType,
		d.Status,
		p.fields,
		d.Confidence,
		p.fieldStatuses,
		p.carried,
		nullableString(d.RequirementID),
		timeArg(d.VerifiedAt),
		timeArg(d.ExtractedAt),
		d.UpdatedAt,
		d.ID,
	)
	return affectedOne(res, err)
}

const requirementColumns = `id, case_id, template_id, document_type, label, status, received_count, created_at, updated_at`

func scanRequirement(row rowScanner) (ChecklistRequirement, error) {
	var req ChecklistRequirement
	err := row.Scan(
		&req.ID,
		&req.CaseID,
		&req.TemplateID,
		&req.DocumentType,
		&req.Label,
		&req.Status,
		&req.ReceivedCount,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ChecklistRequirement{}, ErrNotFound
		}
		return ChecklistRequirement{}, err
	}
	return req, nil
}

func (r *pgRepo) GetRequirement(ctx context.Context, id string) (ChecklistRequirement, error) {
	query := r.forUpdate(`SELECT ` + requirementColumns + `
FROM checklist_requirements
WHERE id = $1`)
	return scanRequirement(r.q.QueryRowContext(ctx, query, id))
}

func (r *pgRepo) ListRequirements(ctx context.Context, caseID string) ([]ChecklistRequirement, error) {
	query := r.forUpdate(`SELECT ` + requirementColumns + `
FROM checklist_requirements
WHERE case_id = $1
ORDER BY created_at, id`)
	rows, err := r.q.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ChecklistRequirement{}
	for rows.Next() {
		req, err := scanRequirement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *pgRepo) CreateRequirement(ctx context.Context, req ChecklistRequirement) error {
	const query = `
INSERT INTO checklist_requirements (id, case_id, template_id, document_type, label, status, received_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.ExecContext(ctx, query,
		req.ID,
		req.CaseID,
		req.TemplateID,
		req.DocumentType,
		req.Label,
		req.Status,
		req.ReceivedCount,
		req.CreatedAt,
		req.UpdatedAt,
	)
	return mapPGError(err)
}

func (r *pgRepo) UpdateRequirement(ctx context.Context, req ChecklistRequirement) error {
	const query = `
UPDATE checklist_requirements
SET status = $1, received_count = $2, label = $3, updated_at = $4
WHERE id = $5`
	res, err := r.q.ExecContext(ctx, query, req.Status, req.ReceivedCount, req.Label, req.UpdatedAt, req.ID)
	return affectedOne(res, err)
}

var (
	_ Store = (*PGStore)(nil)
	_ Tx    = (*pgRepo)(nil)
)
