package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"intake-backend/internal/doctypes"
	"intake-backend/internal/shared/storage/db"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return &PGStore{DB: sqlDB}, mock
}

var rawFileCols = []string{
	"id", "case_id", "storage_key", "original_filename", "display_name", "mime_type", "size_bytes", "upload_channel", "status",
	"classified_type", "classification_confidence", "requirement_id", "group_id", "page_index", "page_count", "is_new",
	"fingerprint", "created_at", "updated_at",
}

func TestPGStoreGetRawFileScansNullables(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM raw_files").
		WithArgs("rf-1").
		WillReturnRows(sqlmock.NewRows(rawFileCols).AddRow(
			"rf-1", "case-1", "k", "w2.jpg", "", "image/jpeg", int64(10), "staff", "linked",
			"W2", 0.93, "req-1", nil, nil, int64(2), false, "dhash:00ff", now, now,
		))

	f, err := store.GetRawFile(context.Background(), "rf-1")
	if err != nil {
		t.Fatalf("GetRawFile: %v", err)
	}
	if f.ClassifiedType == nil || *f.ClassifiedType != doctypes.W2 {
		t.Fatalf("classified type not scanned: %+v", f.ClassifiedType)
	}
	if f.ClassificationConfidence == nil || *f.ClassificationConfidence != 0.93 {
		t.Fatalf("confidence not scanned")
	}
	if f.RequirementID == nil || *f.RequirementID != "req-1" {
		t.Fatalf("requirement not scanned")
	}
	if f.GroupID != nil || f.PageIndex != nil {
		t.Fatalf("expected nil group and page index")
	}
	if f.PageCount == nil || *f.PageCount != 2 {
		t.Fatalf("page count not scanned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreGetRawFileNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM raw_files").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(rawFileCols))

	if _, err := store.GetRawFile(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGStoreUpdateRawFileNoRows(t *testing.T) {
	store, mock := newMockStore(t)
	f := newRawFile("rf-1", "case-1")
	mock.ExpectExec("UPDATE raw_files").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.UpdateRawFile(context.Background(), f); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGStoreUpdateRawFileChecksInvariantsBeforeWriting(t *testing.T) {
	store, mock := newMockStore(t)
	f := newRawFile("rf-1", "case-1")
	f.Status = RawLinked

	if err := store.UpdateRawFile(context.Background(), f); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected statements: %v", err)
	}
}

func TestPGStoreWithinTxLocksRowsAndCommits(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM checklist_requirements\\s+WHERE id = \\$1\\s+FOR UPDATE").
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "case_id", "template_id", "document_type", "label", "status", "received_count", "created_at", "updated_at",
		}).AddRow("req-1", "case-1", "individual", "W2", "W-2 from employer", "missing", 0, now, now))
	mock.ExpectExec("UPDATE checklist_requirements").
		WithArgs("has_raw", 1, "W-2 from employer", sqlmock.AnyArg(), "req-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		req, err := tx.GetRequirement(ctx, "req-1")
		if err != nil {
			return err
		}
		req.Status = ReqHasRaw
		req.ReceivedCount++
		req.UpdatedAt = time.Now().UTC()
		return tx.UpdateRequirement(ctx, req)
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreWithinTxMapsSerializationFailure(t *testing.T) {
	store, mock := newMockStore(t)
	for i := 0; i < db.DefaultTxAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE checklist_requirements").
			WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
		mock.ExpectRollback()
	}

	calls := 0
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		calls++
		return tx.UpdateRequirement(ctx, ChecklistRequirement{ID: "req-1", Status: ReqHasRaw})
	})
	if !errors.Is(err, ErrTransaction) {
		t.Fatalf("expected ErrTransaction, got %v", err)
	}
	if calls != db.DefaultTxAttempts {
		t.Fatalf("expected %d attempts, got %d", db.DefaultTxAttempts, calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreCreateDocumentEncodesEmptyJSON(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	doc := ExtractedDocument{
		ID: "doc-1", CaseID: "case-1", RawFileID: "rf-1", DocumentType: doctypes.W2, Status: DocPending,
		CreatedAt: now, UpdatedAt: now,
	}
	mock.ExpectExec("INSERT INTO extracted_documents").
		WithArgs(
			"doc-1", "case-1", "rf-1", doctypes.W2, DocPending,
			[]byte("{}"), 0.0, []byte("{}"), []byte("[]"),
			nil, nil, nil, now, now,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreCreateDocumentConflict(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO extracted_documents").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})

	err := store.CreateDocument(context.Background(), ExtractedDocument{ID: "doc-1", RawFileID: "rf-1"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestPGStoreGetDocumentDecodesJSON(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM extracted_documents").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "case_id", "raw_file_id", "document_type", "status", "fields", "confidence", "field_statuses",
			"carried_over_fields", "requirement_id", "verified_at", "extracted_at", "created_at", "updated_at",
		}).AddRow(
			"doc-1", "case-1", "rf-1", "W2", "verified",
			[]byte(`{"wages":52000,"box12":[]}`), 0.91,
			[]byte(`{"wages":"unreadable"}`), []byte(`["wages"]`),
			"req-1", now, now, now, now,
		))

	doc, err := store.GetDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Fields["wages"] != float64(52000) {
		t.Fatalf("fields not decoded: %+v", doc.Fields)
	}
	if doc.FieldStatusOf("wages") != FieldUnreadable || doc.FieldStatusOf("employer_name") != FieldUnverified {
		t.Fatalf("field statuses not decoded: %+v", doc.FieldStatuses)
	}
	if len(doc.CarriedOverFields) != 1 || doc.VerifiedAt == nil {
		t.Fatalf("carried over / verified_at not decoded")
	}
}
