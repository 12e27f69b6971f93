package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/victorgambert/repoindex/internal/errors"
)

// SQLiteStore implements MetadataStore on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ MetadataStore = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS codebase_indexes (
	id             TEXT PRIMARY KEY,
	project_id     TEXT NOT NULL,
	status         TEXT NOT NULL,
	total_files    INTEGER NOT NULL DEFAULT 0,
	total_chunks   INTEGER NOT NULL DEFAULT 0,
	cost           REAL NOT NULL DEFAULT 0,
	tokens_used    INTEGER NOT NULL DEFAULT 0,
	failure_reason TEXT NOT NULL DEFAULT '',
	started_at     INTEGER NOT NULL,
	completed_at   INTEGER
);
CREATE INDEX IF NOT EXISTS idx_indexes_project ON codebase_indexes(project_id);

CREATE TABLE IF NOT EXISTS document_chunks (
	id              TEXT PRIMARY KEY,
	index_id        TEXT NOT NULL,
	file_path       TEXT NOT NULL,
	start_line      INTEGER NOT NULL,
	end_line        INTEGER NOT NULL,
	chunk_index     INTEGER NOT NULL,
	content         TEXT NOT NULL,
	content_hash    TEXT NOT NULL,
	language        TEXT NOT NULL DEFAULT '',
	chunk_type      TEXT NOT NULL DEFAULT '',
	vector_point_id TEXT NOT NULL,
	metadata        TEXT NOT NULL DEFAULT '{}',
	UNIQUE(index_id, file_path, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_chunks_index_file ON document_chunks(index_id, file_path);
`

// NewSQLiteStore opens (creating if needed) the metadata database at path.
// Use ":memory:" for an ephemeral store in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.New(errors.ErrCodeMetadataStore, "open metadata database", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY between write statements in one process.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.New(errors.ErrCodeMetadataStore, "initialize schema", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateIndex(ctx context.Context, idx *CodebaseIndex) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO codebase_indexes
			(id, project_id, status, total_files, total_chunks, cost, tokens_used, failure_reason, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		idx.ID, idx.ProjectID, string(idx.Status),
		idx.TotalFiles, idx.TotalChunks, idx.Cost, idx.TokensUsed,
		idx.FailureReason, idx.StartedAt.UnixMilli(), nullableMillis(idx.CompletedAt))
	if err != nil {
		return errors.New(errors.ErrCodeMetadataStore, "create index record", err).WithDetail("index_id", idx.ID)
	}
	return nil
}

func (s *SQLiteStore) GetIndex(ctx context.Context, id string) (*CodebaseIndex, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, status, total_files, total_chunks, cost, tokens_used, failure_reason, started_at, completed_at
		FROM codebase_indexes WHERE id = ?`, id)
	idx, err := scanIndex(row)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeIndexNotFound, "index not found", nil).WithDetail("index_id", id)
	}
	if err != nil {
		return nil, errors.New(errors.ErrCodeMetadataStore, "read index record", err).WithDetail("index_id", id)
	}
	return idx, nil
}

func (s *SQLiteStore) ListIndexes(ctx context.Context, projectID string) ([]*CodebaseIndex, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, status, total_files, total_chunks, cost, tokens_used, failure_reason, started_at, completed_at
		FROM codebase_indexes WHERE project_id = ? ORDER BY started_at DESC`, projectID)
	if err != nil {
		return nil, errors.New(errors.ErrCodeMetadataStore, "list index records", err)
	}
	defer rows.Close()

	var indexes []*CodebaseIndex
	for rows.Next() {
		idx, err := scanIndex(rows)
		if err != nil {
			return nil, errors.New(errors.ErrCodeMetadataStore, "scan index record", err)
		}
		indexes = append(indexes, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.ErrCodeMetadataStore, "iterate index records", err)
	}
	return indexes, nil
}

func (s *SQLiteStore) SetIndexStatus(ctx context.Context, id string, status IndexStatus, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE codebase_indexes SET status = ?, failure_reason = ? WHERE id = ?`,
		string(status), reason, id)
	if err != nil {
		return errors.New(errors.ErrCodeMetadataStore, "update index status", err).WithDetail("index_id", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeIndexNotFound, "index not found", nil).WithDetail("index_id", id)
	}
	return nil
}

// BeginUpdate is a check-and-set: the status moves to updating only from
// a terminal state, in one statement. Zero affected rows means another
// update holds the index (or it does not exist).
func (s *SQLiteStore) BeginUpdate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE codebase_indexes SET status = ?, failure_reason = ''
		WHERE id = ? AND status IN (?, ?)`,
		string(StatusUpdating), id, string(StatusCompleted), string(StatusFailed))
	if err != nil {
		return errors.New(errors.ErrCodeMetadataStore, "begin update", err).WithDetail("index_id", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.New(errors.ErrCodeMetadataStore, "begin update", err).WithDetail("index_id", id)
	}
	if n == 0 {
		// Distinguish missing index from contended index.
		var status string
		row := s.db.QueryRowContext(ctx, `SELECT status FROM codebase_indexes WHERE id = ?`, id)
		if scanErr := row.Scan(&status); scanErr == sql.ErrNoRows {
			return errors.New(errors.ErrCodeIndexNotFound, "index not found", nil).WithDetail("index_id", id)
		}
		return errors.ConcurrentUpdate(id)
	}
	return nil
}

func (s *SQLiteStore) FinalizeIndex(ctx context.Context, idx *CodebaseIndex) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE codebase_indexes
		SET status = ?, total_files = ?, total_chunks = ?, cost = ?, tokens_used = ?, failure_reason = ?, completed_at = ?
		WHERE id = ?`,
		string(idx.Status), idx.TotalFiles, idx.TotalChunks, idx.Cost, idx.TokensUsed,
		idx.FailureReason, nullableMillis(idx.CompletedAt), idx.ID)
	if err != nil {
		return errors.New(errors.ErrCodeMetadataStore, "finalize index", err).WithDetail("index_id", idx.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeIndexNotFound, "index not found", nil).WithDetail("index_id", idx.ID)
	}
	return nil
}

func (s *SQLiteStore) AdjustIndexTotals(ctx context.Context, id string, deltaFiles, deltaChunks, deltaTokens int, deltaCost float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE codebase_indexes
		SET total_files = total_files + ?,
		    total_chunks = total_chunks + ?,
		    tokens_used = tokens_used + ?,
		    cost = cost + ?
		WHERE id = ?`,
		deltaFiles, deltaChunks, deltaTokens, deltaCost, id)
	if err != nil {
		return errors.New(errors.ErrCodeMetadataStore, "adjust index totals", err).WithDetail("index_id", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeIndexNotFound, "index not found", nil).WithDetail("index_id", id)
	}
	return nil
}

func (s *SQLiteStore) DeleteIndex(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.ErrCodeMetadataStore, "delete index", err).WithDetail("index_id", id)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE index_id = ?`, id); err != nil {
		return errors.New(errors.ErrCodeMetadataStore, "delete index chunks", err).WithDetail("index_id", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM codebase_indexes WHERE id = ?`, id); err != nil {
		return errors.New(errors.ErrCodeMetadataStore, "delete index record", err).WithDetail("index_id", id)
	}
	if err := tx.Commit(); err != nil {
		return errors.New(errors.ErrCodeMetadataStore, "delete index", err).WithDetail("index_id", id)
	}
	return nil
}

// SaveChunks upserts chunk rows in one transaction. Re-saving a chunk at
// the same (index, file, position) replaces the previous row, which is
// what the deterministic id scheme expects.
func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.ErrCodeMetadataStore, "save chunks", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_chunks
			(id, index_id, file_path, start_line, end_line, chunk_index, content, content_hash, language, chunk_type, vector_point_id, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			content_hash = excluded.content_hash,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			language = excluded.language,
			chunk_type = excluded.chunk_type,
			vector_point_id = excluded.vector_point_id,
			metadata = excluded.metadata`)
	if err != nil {
		return errors.New(errors.ErrCodeMetadataStore, "prepare chunk upsert", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return errors.New(errors.ErrCodeMetadataStore, "encode chunk metadata", err).WithDetail("chunk_id", c.ID)
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.IndexID, c.FilePath, c.StartLine, c.EndLine, c.ChunkIndex,
			c.Content, c.ContentHash, c.Language, c.ChunkType, c.VectorPointID, string(meta)); err != nil {
			return errors.New(errors.ErrCodeMetadataStore, "save chunk", err).WithDetail("chunk_id", c.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.New(errors.ErrCodeMetadataStore, "save chunks", err)
	}
	return nil
}

func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*DocumentChunk, error) {
	row := s.db.QueryRowContext(ctx, chunkSelect+` WHERE id = ?`, id)
	chunk, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeMetadataStore, "chunk not found", nil).WithDetail("chunk_id", id)
	}
	if err != nil {
		return nil, errors.New(errors.ErrCodeMetadataStore, "read chunk", err).WithDetail("chunk_id", id)
	}
	return chunk, nil
}

// GetChunks fetches chunks by id, preserving input order. Missing ids are
// skipped rather than erroring, so retrieval stays usable when the vector
// store and metadata store briefly disagree mid-update.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*DocumentChunk, error) {
	if len(ids) == 0 {
		return []*DocumentChunk{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, chunkSelect+` WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, errors.New(errors.ErrCodeMetadataStore, "read chunks", err)
	}
	defer rows.Close()

	byID := make(map[string]*DocumentChunk, len(ids))
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, errors.New(errors.ErrCodeMetadataStore, "scan chunk", err)
		}
		byID[chunk.ID] = chunk
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.ErrCodeMetadataStore, "iterate chunks", err)
	}

	ordered := make([]*DocumentChunk, 0, len(byID))
	for _, id := range ids {
		if chunk, ok := byID[id]; ok {
			ordered = append(ordered, chunk)
		}
	}
	return ordered, nil
}

func (s *SQLiteStore) GetChunksByFile(ctx context.Context, indexID, filePath string) ([]*DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		chunkSelect+` WHERE index_id = ? AND file_path = ? ORDER BY chunk_index`, indexID, filePath)
	if err != nil {
		return nil, errors.New(errors.ErrCodeMetadataStore, "read file chunks", err).
			WithDetail("index_id", indexID).WithDetail("file_path", filePath)
	}
	defer rows.Close()

	var chunks []*DocumentChunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, errors.New(errors.ErrCodeMetadataStore, "scan chunk", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.ErrCodeMetadataStore, "iterate file chunks", err)
	}
	return chunks, nil
}

func (s *SQLiteStore) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return errors.New(errors.ErrCodeMetadataStore, "delete chunks", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const chunkSelect = `
	SELECT id, index_id, file_path, start_line, end_line, chunk_index, content, content_hash, language, chunk_type, vector_point_id, metadata
	FROM document_chunks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIndex(row rowScanner) (*CodebaseIndex, error) {
	var (
		idx         CodebaseIndex
		status      string
		startedAt   int64
		completedAt sql.NullInt64
	)
	err := row.Scan(&idx.ID, &idx.ProjectID, &status, &idx.TotalFiles, &idx.TotalChunks,
		&idx.Cost, &idx.TokensUsed, &idx.FailureReason, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	idx.Status = IndexStatus(status)
	idx.StartedAt = time.UnixMilli(startedAt).UTC()
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64).UTC()
		idx.CompletedAt = &t
	}
	return &idx, nil
}

func scanChunk(row rowScanner) (*DocumentChunk, error) {
	var (
		chunk DocumentChunk
		meta  string
	)
	err := row.Scan(&chunk.ID, &chunk.IndexID, &chunk.FilePath, &chunk.StartLine, &chunk.EndLine,
		&chunk.ChunkIndex, &chunk.Content, &chunk.ContentHash, &chunk.Language, &chunk.ChunkType,
		&chunk.VectorPointID, &meta)
	if err != nil {
		return nil, err
	}
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("decode chunk metadata: %w", err)
		}
	}
	return &chunk, nil
}

func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
