package indexer

import (
	"context"
	"log/slog"

	"github.com/victorgambert/repoindex/internal/chunk"
	"github.com/victorgambert/repoindex/internal/store"
)

// FileChanges lists the paths whose content changed since the last
// indexing run. The caller (a webhook consumer, a diff walker) decides
// what changed; the incremental indexer only reconciles stores.
type FileChanges struct {
	Added    []string
	Modified []string
	Removed  []string
}

// UpdateResult reports what an incremental update actually did. Modified
// files whose chunk sets hashed identically are counted as unchanged.
type UpdateResult struct {
	Index          *store.CodebaseIndex
	ChunksAdded    int
	ChunksModified int
	ChunksRemoved  int
	FilesUnchanged int
}

// Incremental applies file-level changes to an existing completed index.
type Incremental struct {
	indexer *Indexer
	logger  *slog.Logger
}

// NewIncremental wraps a full indexer for incremental updates; they share
// the chunk-embed-store pipeline.
func NewIncremental(indexer *Indexer) *Incremental {
	return &Incremental{indexer: indexer, logger: indexer.logger}
}

// UpdateIndex applies changes to the index named by req.IndexID.
//
// The index moves to updating via a check-and-set; a second concurrent
// update for the same index is rejected with a concurrent-update error
// rather than queued. Totals are adjusted by net deltas so a file added
// and later removed leaves them where they started.
func (in *Incremental) UpdateIndex(ctx context.Context, req Request, changes FileChanges) (*UpdateResult, error) {
	ix := in.indexer

	if err := ix.metadata.BeginUpdate(ctx, req.IndexID); err != nil {
		return nil, err
	}

	result, err := in.applyChanges(ctx, req, changes)
	if err != nil {
		reason := err.Error()
		if ctx.Err() != nil {
			reason = "cancelled"
		}
		finalizeCtx := context.WithoutCancel(ctx)
		if setErr := ix.metadata.SetIndexStatus(finalizeCtx, req.IndexID, store.StatusFailed, reason); setErr != nil {
			in.logger.Error("finalize_failed_update",
				slog.String("index_id", req.IndexID),
				slog.String("error", setErr.Error()))
		}
		return nil, err
	}

	if err := ix.metadata.SetIndexStatus(ctx, req.IndexID, store.StatusCompleted, ""); err != nil {
		return nil, err
	}

	idx, err := ix.metadata.GetIndex(ctx, req.IndexID)
	if err != nil {
		return nil, err
	}
	result.Index = idx

	in.logger.Info("update_complete",
		slog.String("index_id", req.IndexID),
		slog.Int("chunks_added", result.ChunksAdded),
		slog.Int("chunks_modified", result.ChunksModified),
		slog.Int("chunks_removed", result.ChunksRemoved),
		slog.Int("files_unchanged", result.FilesUnchanged))

	return result, nil
}

func (in *Incremental) applyChanges(ctx context.Context, req Request, changes FileChanges) (*UpdateResult, error) {
	ix := in.indexer
	result := &UpdateResult{}

	var (
		deltaFiles, deltaChunks, deltaTokens int
	)

	for _, path := range changes.Removed {
		removed, err := in.removeFile(ctx, req.IndexID, path)
		if err != nil {
			return nil, err
		}
		// The diff is trusted: a removed path counts against the file
		// total even when it carried zero chunks, mirroring the Added
		// loop below.
		deltaFiles--
		deltaChunks -= removed
		result.ChunksRemoved += removed
	}

	for _, path := range changes.Modified {
		outcome, err := in.reindexFile(ctx, req, path, true)
		if err != nil {
			return nil, err
		}
		if outcome.unchanged {
			result.FilesUnchanged++
			continue
		}
		deltaChunks += outcome.newCount - outcome.oldCount
		deltaTokens += outcome.tokens
		result.ChunksModified += outcome.written
		result.ChunksRemoved += outcome.removedTail
	}

	for _, path := range changes.Added {
		outcome, err := in.reindexFile(ctx, req, path, false)
		if err != nil {
			return nil, err
		}
		deltaFiles++
		deltaChunks += outcome.newCount
		deltaTokens += outcome.tokens
		result.ChunksAdded += outcome.newCount
	}

	deltaCost := float64(deltaTokens) * ix.opts.UnitPrice
	if err := ix.metadata.AdjustIndexTotals(ctx, req.IndexID, deltaFiles, deltaChunks, deltaTokens, deltaCost); err != nil {
		return nil, err
	}
	return result, nil
}

type fileOutcome struct {
	oldCount    int
	newCount    int
	written     int // positions embedded and upserted
	removedTail int // positions past the new chunk count, deleted
	tokens      int
	unchanged   bool
}

// reindexFile re-chunks path and reconciles its chunk set position by
// position. A position whose content hash is unchanged is left entirely
// alone: no re-embedding, no upsert. Deterministic ids mean changed
// positions are overwritten in place; only positions past the new chunk
// count need deleting.
func (in *Incremental) reindexFile(ctx context.Context, req Request, path string, compareExisting bool) (fileOutcome, error) {
	ix := in.indexer

	existing, err := ix.metadata.GetChunksByFile(ctx, req.IndexID, path)
	if err != nil {
		return fileOutcome{}, err
	}

	content, err := ix.vcs.GetFileContent(ctx, req.Owner, req.Repo, path, req.Ref)
	if err != nil {
		return fileOutcome{}, err
	}

	newChunks := ix.chunker.Chunk(ctx, content, path)

	var changed []chunk.Chunk
	for i, c := range newChunks {
		if compareExisting && i < len(existing) && existing[i].ContentHash == store.HashContent(c.Content) {
			continue
		}
		changed = append(changed, c)
	}

	outcome := fileOutcome{
		oldCount: len(existing),
		newCount: len(newChunks),
		written:  len(changed),
	}

	if len(existing) > len(newChunks) {
		stale := existing[len(newChunks):]
		if err := in.deleteChunkSet(ctx, stale); err != nil {
			return fileOutcome{}, err
		}
		outcome.removedTail = len(stale)
	}

	if compareExisting && outcome.written == 0 && outcome.removedTail == 0 && len(existing) == len(newChunks) {
		outcome.unchanged = true
		return outcome, nil
	}

	if len(changed) == 0 {
		return outcome, nil
	}

	tokens, err := ix.storeChunks(ctx, req.IndexID, req.ProjectID, path, changed)
	if err != nil {
		return fileOutcome{}, err
	}
	outcome.tokens = tokens
	return outcome, nil
}

// removeFile deletes every chunk of path from all three stores and
// returns the number removed.
func (in *Incremental) removeFile(ctx context.Context, indexID, path string) (int, error) {
	existing, err := in.indexer.metadata.GetChunksByFile(ctx, indexID, path)
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return 0, nil
	}
	if err := in.deleteChunkSet(ctx, existing); err != nil {
		return 0, err
	}
	return len(existing), nil
}

func (in *Incremental) deleteChunkSet(ctx context.Context, chunks []*store.DocumentChunk) error {
	ix := in.indexer

	pointIDs := make([]string, len(chunks))
	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		pointIDs[i] = c.VectorPointID
		chunkIDs[i] = c.ID
	}

	if err := ix.vectors.Delete(ctx, pointIDs); err != nil {
		return err
	}
	if err := ix.keywords.Delete(ctx, chunkIDs); err != nil {
		return err
	}
	if err := ix.metadata.DeleteChunks(ctx, chunkIDs); err != nil {
		return err
	}
	return nil
}
