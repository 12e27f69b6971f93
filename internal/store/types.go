// Package store provides vector storage (qdrant, with a pure-Go in-memory
// implementation for tests and local mode), keyword indexing (bleve), and
// metadata persistence (SQLite). This is the persistence layer for all
// indexed data.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IndexStatus is the lifecycle state of a CodebaseIndex.
type IndexStatus string

const (
	StatusPending   IndexStatus = "pending"
	StatusIndexing  IndexStatus = "indexing"
	StatusCompleted IndexStatus = "completed"
	StatusFailed    IndexStatus = "failed"
	StatusUpdating  IndexStatus = "updating"
)

// CodebaseIndex tracks one indexed repository-project pair.
//
// Lifecycle: created pending by the repository indexer, transitions
// indexing -> {completed, failed}; incremental updates later move
// completed -> updating -> {completed, failed}. At most one updating
// transition may be in flight per id; BeginUpdate enforces this with a
// check-and-set.
type CodebaseIndex struct {
	ID            string
	ProjectID     string
	Status        IndexStatus
	TotalFiles    int
	TotalChunks   int
	Cost          float64 // tokensUsed x embedding-model unit price
	TokensUsed    int
	FailureReason string
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// DocumentChunk is one indexed code segment. (IndexID, FilePath,
// ChunkIndex) is unique; ID and VectorPointID are deterministic functions
// of that triple, enabling idempotent re-upsert and targeted deletion.
type DocumentChunk struct {
	ID            string
	IndexID       string
	FilePath      string
	StartLine     int
	EndLine       int
	ChunkIndex    int // zero-based position within the file
	Content       string
	ContentHash   string // sha256 hex of Content
	Language      string
	ChunkType     string // module, function, class
	VectorPointID string
	Metadata      map[string]string // name, other chunk-specific facts
}

// chunkNamespace salts the deterministic chunk/point id derivation.
var chunkNamespace = uuid.MustParse("9f2c1b4e-5a37-4f7d-8c1e-0d6b2a9e4c51")

// ChunkKey is the canonical identity string of a chunk position.
func ChunkKey(indexID, filePath string, chunkIndex int) string {
	return fmt.Sprintf("%s:%s:%d", indexID, filePath, chunkIndex)
}

// ChunkID derives the deterministic chunk row id from the identity triple.
func ChunkID(indexID, filePath string, chunkIndex int) string {
	sum := sha256.Sum256([]byte(ChunkKey(indexID, filePath, chunkIndex)))
	return hex.EncodeToString(sum[:])[:32]
}

// PointID derives the deterministic vector point id from the identity
// triple. Qdrant point ids must be UUIDs, so this is a UUIDv5 over the
// chunk key: same triple, same point, making re-upserts idempotent.
func PointID(indexID, filePath string, chunkIndex int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(ChunkKey(indexID, filePath, chunkIndex))).String()
}

// HashContent returns the sha256 hex digest used for chunk change
// detection.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Payload is the metadata stored alongside each vector point. ProjectID
// scoping at the payload level is what makes tenant isolation enforceable
// in the store itself.
type Payload struct {
	ProjectID  string
	IndexID    string
	ChunkID    string
	FilePath   string
	ChunkType  string
	Language   string
	ChunkIndex int
}

// Point is a vector plus payload, addressed by a deterministic id.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// VectorResult is one scored hit from a vector search.
type VectorResult struct {
	ID      string
	Score   float32
	Payload Payload
}

// VectorStore stores and searches chunk vectors with payload filters.
//
// Search requires a projectID: there is intentionally no unscoped search,
// so a retrieval for one project can never surface another project's
// points regardless of relevance score.
type VectorStore interface {
	Upsert(ctx context.Context, points []*Point) error
	Search(ctx context.Context, vector []float32, projectID string, topK int, filter map[string]string) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	Close() error
}

// MetadataStore persists CodebaseIndex and DocumentChunk records.
type MetadataStore interface {
	// Index operations
	CreateIndex(ctx context.Context, idx *CodebaseIndex) error
	GetIndex(ctx context.Context, id string) (*CodebaseIndex, error)
	ListIndexes(ctx context.Context, projectID string) ([]*CodebaseIndex, error)
	// SetIndexStatus transitions status unconditionally, recording a
	// failure reason when the status is failed.
	SetIndexStatus(ctx context.Context, id string, status IndexStatus, reason string) error
	// BeginUpdate atomically moves completed|failed -> updating. A second
	// concurrent call for the same id fails with a concurrent-update
	// error instead of queueing.
	BeginUpdate(ctx context.Context, id string) error
	// FinalizeIndex records totals, cost and completion time together
	// with the terminal status.
	FinalizeIndex(ctx context.Context, idx *CodebaseIndex) error
	// AdjustIndexTotals applies net deltas from an incremental update.
	AdjustIndexTotals(ctx context.Context, id string, deltaFiles, deltaChunks, deltaTokens int, deltaCost float64) error
	DeleteIndex(ctx context.Context, id string) error

	// Chunk operations
	SaveChunks(ctx context.Context, chunks []*DocumentChunk) error
	GetChunk(ctx context.Context, id string) (*DocumentChunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*DocumentChunk, error)
	GetChunksByFile(ctx context.Context, indexID, filePath string) ([]*DocumentChunk, error)
	DeleteChunks(ctx context.Context, ids []string) error

	Close() error
}

// KeywordResult is one hit from the keyword index.
type KeywordResult struct {
	ChunkID string
	Score   float64
}

// KeywordIndex backs the hybrid retriever's keyword-containment leg.
// Documents are scoped by project the same way vector points are.
type KeywordIndex interface {
	Index(ctx context.Context, chunks []*DocumentChunk, projectID string) error
	Search(ctx context.Context, query, projectID string, limit int) ([]*KeywordResult, error)
	Delete(ctx context.Context, chunkIDs []string) error
	Close() error
}
