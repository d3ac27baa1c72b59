package index

import "github.com/starford/ucdcanvas/internal/storage"

// DocumentIndex defines the interface for document indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type DocumentIndex interface {
	UpsertDocument(d DocumentRow, blocks []BlockRow) error
	DeleteDocument(k storage.Key) error
	GetChecksum(k storage.Key) (string, error)
	AllChecksums() (map[storage.Key]string, error)
	ListDocuments(projectID, stageID string) ([]DocumentRow, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies DocumentIndex and storage.Backend at compile time.
var (
	_ DocumentIndex   = (*DB)(nil)
	_ storage.Backend = (*DB)(nil)
)
