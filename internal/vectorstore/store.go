package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"studyforge/internal/config"
	"studyforge/internal/logging"
)

// Metadata keys attached to every record.
const (
	KeyContentID  = "content_id"
	KeyChunkIndex = "chunk_index"
	KeyText       = "text"
)

var recordNamespace = uuid.MustParse("6f1c7b1e-3d1a-4c52-9a57-2b8f0d6c4e91")

// Record is one embedded chunk.
type Record struct {
	ID         string
	ContentID  string
	ChunkIndex int
	Text       string
	Vector     []float32
}

// Match is a query hit with its similarity score in [0, 1].
type Match struct {
	Record
	Score float64
}

// Filter selects records by metadata equality. All pairs must match.
type Filter map[string]string

// ContentFilter selects every record belonging to contentID.
func ContentFilter(contentID string) Filter {
	return Filter{KeyContentID: contentID}
}

// Store is the vector similarity store contract.
type Store interface {
	Upsert(ctx context.Context, records []Record) error
	// DeleteByMetadata removes every matching record and returns how many were
	// removed. Deleting nothing is not an error.
	DeleteByMetadata(ctx context.Context, filter Filter) (int64, error)
	Query(ctx context.Context, vector []float32, filter Filter, limit int) ([]Match, error)
}

// RecordID derives a stable id so re-vectorizing a content item overwrites
// its previous chunks.
func RecordID(contentID string, chunkIndex int) string {
	return uuid.NewSHA1(recordNamespace, []byte(fmt.Sprintf("%s:%d", contentID, chunkIndex))).String()
}

// New returns the configured store. Without a vector_store.url an in-process
// Memory store is used.
func New(cfg config.VectorStore, logger *slog.Logger) (Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		logging.WarnWithContext(logging.NewComponentLogger(logger, "vectorstore"),
			"vector_store.url not set; using in-memory vector store", "vectorstore_memory",
			logging.String(logging.FieldErrorHint, "set vector_store.url to a Weaviate endpoint"),
			logging.String(logging.FieldImpact, "embeddings are lost when the process exits"),
		)
		return NewMemory(), nil
	}
	return NewWeaviate(cfg)
}
