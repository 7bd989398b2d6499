package intake

import "context"

// Repo reads and writes intake records. Inside a transaction, reads lock the
// rows they return until commit.
type Repo interface {
	GetRawFile(ctx context.Context, id string) (RawFile, error)
	ListRawFiles(ctx context.Context, caseID string) ([]RawFile, error)
	CreateRawFile(ctx context.Context, f RawFile) error
	UpdateRawFile(ctx context.Context, f RawFile) error

	GetDocument(ctx context.Context, id string) (ExtractedDocument, error)
	GetDocumentByRawFile(ctx context.Context, rawFileID string) (ExtractedDocument, error)
	ListDocuments(ctx context.Context, caseID string) ([]ExtractedDocument, error)
	CreateDocument(ctx context.Context, d ExtractedDocument) error
	UpdateDocument(ctx context.Context, d ExtractedDocument) error

	GetRequirement(ctx context.Context, id string) (ChecklistRequirement, error)
	ListRequirements(ctx context.Context, caseID string) ([]ChecklistRequirement, error)
	CreateRequirement(ctx context.Context, r ChecklistRequirement) error
	UpdateRequirement(ctx context.Context, r ChecklistRequirement) error
}

// Tx is a Repo bound to one open transaction.
type Tx interface {
	Repo
}

// Store is the pipeline's persistence boundary.
type Store interface {
	Repo
	// WithinTx runs fn in one transaction. Any error from fn rolls back every
	// write it made. Serialization failures surface as ErrTransaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// DocumentLockKey is the lock key that serializes extraction and review of one
// document.
func DocumentLockKey(documentID string) string { return "document:" + documentID }

// RawFileLockKey is the lock key that serializes classification of one raw file.
func RawFileLockKey(rawFileID string) string { return "raw_file:" + rawFileID }
