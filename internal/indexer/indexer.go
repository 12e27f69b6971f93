// Package indexer implements the indexing write path: full repository
// indexing and incremental updates. It pulls file content through the vcs
// client, chunks it, embeds chunk content in token-bounded batches, and
// writes vectors, metadata and keyword documents to the stores.
package indexer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/victorgambert/repoindex/internal/chunk"
	"github.com/victorgambert/repoindex/internal/embed"
	"github.com/victorgambert/repoindex/internal/errors"
	"github.com/victorgambert/repoindex/internal/store"
	"github.com/victorgambert/repoindex/internal/vcs"
)

// Options tunes the indexing pipeline.
type Options struct {
	// Workers bounds concurrent per-file pipelines.
	Workers int
	// BatchSize caps chunks per embedding request.
	BatchSize int
	// MaxBatchTokens caps tokens per embedding request.
	MaxBatchTokens int
	// UnitPrice is the embedding cost per token.
	UnitPrice float64
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.BatchSize <= 0 {
		o.BatchSize = embed.DefaultBatchSize
	}
	return o
}

// Request identifies the repository snapshot to index.
type Request struct {
	IndexID   string
	ProjectID string
	Owner     string
	Repo      string
	// Ref is the commit or branch to index; empty means default branch.
	Ref string
}

// Result reports the outcome of a full indexing run.
type Result struct {
	Index        *store.CodebaseIndex
	FilesSkipped int
}

// Indexer runs full repository indexing.
type Indexer struct {
	vcs      vcs.Client
	chunker  *chunk.Chunker
	embedder embed.Embedder
	vectors  store.VectorStore
	metadata store.MetadataStore
	keywords store.KeywordIndex
	counter  *TokenCounter
	filter   *FileFilter
	opts     Options
	logger   *slog.Logger

	closeOnce sync.Once
}

// New creates an Indexer. filter may be nil to index every file.
func New(
	vcsClient vcs.Client,
	chunker *chunk.Chunker,
	embedder embed.Embedder,
	vectors store.VectorStore,
	metadata store.MetadataStore,
	keywords store.KeywordIndex,
	filter *FileFilter,
	opts Options,
	logger *slog.Logger,
) (*Indexer, error) {
	counter, err := NewTokenCounter()
	if err != nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "load token encoding", err)
	}
	if filter == nil {
		filter = NewFileFilter(nil, nil, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		vcs:      vcsClient,
		chunker:  chunker,
		embedder: embedder,
		vectors:  vectors,
		metadata: metadata,
		keywords: keywords,
		counter:  counter,
		filter:   filter,
		opts:     opts.withDefaults(),
		logger:   logger,
	}, nil
}

// runTotals accumulates per-run totals under one mutex.
type runTotals struct {
	mu      sync.Mutex
	files   int
	chunks  int
	tokens  int
	skipped int
}

// IndexRepository indexes the full repository snapshot named by req.
//
// The index record is created pending, moves to indexing while files are
// processed, and finishes completed or failed. Individual file failures
// are logged and skipped; the run fails only when nothing could be
// indexed or the context was cancelled.
func (ix *Indexer) IndexRepository(ctx context.Context, req Request) (*Result, error) {
	idx := &store.CodebaseIndex{
		ID:        req.IndexID,
		ProjectID: req.ProjectID,
		Status:    store.StatusPending,
		StartedAt: time.Now().UTC(),
	}
	if err := ix.metadata.CreateIndex(ctx, idx); err != nil {
		return nil, err
	}

	result, err := ix.run(ctx, req, idx)
	if err != nil {
		reason := err.Error()
		if ctx.Err() != nil {
			reason = "cancelled"
		}
		idx.Status = store.StatusFailed
		idx.FailureReason = reason
		now := time.Now().UTC()
		idx.CompletedAt = &now
		if finErr := ix.metadata.FinalizeIndex(context.WithoutCancel(ctx), idx); finErr != nil {
			ix.logger.Error("finalize_failed_index",
				slog.String("index_id", idx.ID),
				slog.String("error", finErr.Error()))
		}
		return nil, err
	}
	return result, nil
}

func (ix *Indexer) run(ctx context.Context, req Request, idx *store.CodebaseIndex) (*Result, error) {
	if err := ix.metadata.SetIndexStatus(ctx, idx.ID, store.StatusIndexing, ""); err != nil {
		return nil, err
	}
	idx.Status = store.StatusIndexing

	paths, err := ix.vcs.ListFiles(ctx, req.Owner, req.Repo, req.Ref)
	if err != nil {
		return nil, err
	}

	candidates := make([]string, 0, len(paths))
	for _, p := range paths {
		if ix.filter.Match(p) {
			candidates = append(candidates, p)
		}
	}
	ix.logger.Info("index_start",
		slog.String("index_id", idx.ID),
		slog.String("project_id", idx.ProjectID),
		slog.Int("files_listed", len(paths)),
		slog.Int("files_matched", len(candidates)))

	totals := &runTotals{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Workers)
	for _, path := range candidates {
		path := path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fileChunks, fileTokens, err := ix.indexFile(gctx, req, idx.ID, idx.ProjectID, path)
			totals.mu.Lock()
			defer totals.mu.Unlock()
			if err != nil {
				// Cancellation aborts the run; anything else skips the file.
				if gctx.Err() != nil {
					return gctx.Err()
				}
				totals.skipped++
				ix.logger.Warn("file_skipped",
					slog.String("index_id", idx.ID),
					slog.String("file", path),
					slog.String("error", err.Error()))
				return nil
			}
			totals.files++
			totals.chunks += fileChunks
			totals.tokens += fileTokens
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.New(errors.ErrCodeIndexState, "indexing interrupted", err)
	}

	if totals.files == 0 && len(candidates) > 0 {
		return nil, errors.New(errors.ErrCodeIndexState, "no files could be indexed", nil).
			WithDetail("index_id", idx.ID)
	}

	idx.Status = store.StatusCompleted
	idx.TotalFiles = totals.files
	idx.TotalChunks = totals.chunks
	idx.TokensUsed = totals.tokens
	idx.Cost = float64(totals.tokens) * ix.opts.UnitPrice
	now := time.Now().UTC()
	idx.CompletedAt = &now
	if err := ix.metadata.FinalizeIndex(ctx, idx); err != nil {
		return nil, err
	}

	ix.logger.Info("index_complete",
		slog.String("index_id", idx.ID),
		slog.Int("total_files", idx.TotalFiles),
		slog.Int("total_chunks", idx.TotalChunks),
		slog.Int("tokens_used", idx.TokensUsed),
		slog.Int("files_skipped", totals.skipped))

	return &Result{Index: idx, FilesSkipped: totals.skipped}, nil
}

// indexFile runs the chunk-embed-store pipeline for one file and returns
// the chunk and token counts it contributed.
func (ix *Indexer) indexFile(ctx context.Context, req Request, indexID, projectID, path string) (int, int, error) {
	content, err := ix.vcs.GetFileContent(ctx, req.Owner, req.Repo, path, req.Ref)
	if err != nil {
		return 0, 0, err
	}
	if max := ix.filter.MaxFileSize(); max > 0 && int64(len(content)) > max {
		return 0, 0, errors.New(errors.ErrCodeFileUnreadable, "file exceeds size limit", nil).
			WithDetail("file", path)
	}

	fileChunks := ix.chunker.Chunk(ctx, content, path)
	if len(fileChunks) == 0 {
		// Whitespace-only or empty file: indexed, contributes nothing.
		return 0, 0, nil
	}

	tokens, err := ix.storeChunks(ctx, indexID, projectID, path, fileChunks)
	if err != nil {
		return 0, 0, err
	}
	return len(fileChunks), tokens, nil
}

// storeChunks embeds chunks in planned batches and writes all three
// stores. Shared by full and incremental indexing.
func (ix *Indexer) storeChunks(ctx context.Context, indexID, projectID, path string, fileChunks []chunk.Chunk) (int, error) {
	var (
		tokens int
		docs   []*store.DocumentChunk
		points []*store.Point
	)

	for _, batch := range ix.counter.PlanBatches(fileChunks, ix.opts.BatchSize, ix.opts.MaxBatchTokens) {
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		embedded, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			return 0, err
		}
		tokens += embedded.TokensUsed

		for i, c := range batch {
			doc := documentFromChunk(indexID, c)
			docs = append(docs, doc)
			points = append(points, &store.Point{
				ID:     doc.VectorPointID,
				Vector: embedded.Vectors[i],
				Payload: store.Payload{
					ProjectID:  projectID,
					IndexID:    indexID,
					ChunkID:    doc.ID,
					FilePath:   path,
					ChunkType:  doc.ChunkType,
					Language:   doc.Language,
					ChunkIndex: doc.ChunkIndex,
				},
			})
		}
	}

	// Deterministic point ids make the upsert idempotent, so transient
	// vector store failures are safe to retry.
	if err := errors.Retry(ctx, errors.DefaultRetryConfig(), func() error {
		return ix.vectors.Upsert(ctx, points)
	}); err != nil {
		return 0, err
	}
	if err := ix.metadata.SaveChunks(ctx, docs); err != nil {
		return 0, err
	}
	if err := ix.keywords.Index(ctx, docs, projectID); err != nil {
		return 0, err
	}
	return tokens, nil
}

func documentFromChunk(indexID string, c chunk.Chunk) *store.DocumentChunk {
	return &store.DocumentChunk{
		ID:            store.ChunkID(indexID, c.FilePath, c.ChunkIndex),
		IndexID:       indexID,
		FilePath:      c.FilePath,
		StartLine:     c.StartLine,
		EndLine:       c.EndLine,
		ChunkIndex:    c.ChunkIndex,
		Content:       c.Content,
		ContentHash:   store.HashContent(c.Content),
		Language:      c.Language,
		ChunkType:     string(c.Type),
		VectorPointID: store.PointID(indexID, c.FilePath, c.ChunkIndex),
		Metadata:      c.Metadata,
	}
}

// Close releases the chunker's parser resources. Safe to call more than
// once; store lifetimes belong to the caller.
func (ix *Indexer) Close() {
	ix.closeOnce.Do(func() {
		ix.chunker.Close()
	})
}
