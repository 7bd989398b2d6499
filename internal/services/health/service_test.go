package health

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestStatusWithoutDatabase(t *testing.T) {
	got := NewService(nil, "local", "none", false).Status(context.Background())
	if got["ok"] != true || got["store"] != "memory" || got["ai"] != "none" {
		t.Fatalf("unexpected status %v", got)
	}
}

func TestStatusReportsDatabasePing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing()
	got := NewService(db, "s3", "anthropic", true).Status(context.Background())
	if got["ok"] != true || got["store"] != "postgres" {
		t.Fatalf("unexpected status %v", got)
	}

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	got = NewService(db, "s3", "anthropic", true).Status(context.Background())
	if got["ok"] != false || got["database"] != "connection refused" {
		t.Fatalf("unexpected status %v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStatusIncludesSchemaVersion(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectPing()

	svc := NewService(db, "local", "openai", false)
	svc.SchemaVersion = func(context.Context, *sql.DB) (int64, error) { return 2, nil }
	got := svc.Status(context.Background())
	if got["schemaVersion"] != int64(2) {
		t.Fatalf("unexpected status %v", got)
	}
}
