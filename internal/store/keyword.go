package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/victorgambert/repoindex/internal/errors"
)

// BleveKeywordIndex implements KeywordIndex on bleve v2 with BM25 scoring.
// Every document carries a project_id field indexed verbatim; searches
// conjoin the text query with a project term so keyword hits observe the
// same tenant boundary the vector store does.
type BleveKeywordIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ KeywordIndex = (*BleveKeywordIndex)(nil)

type keywordDocument struct {
	Content   string `json:"content"`
	ProjectID string `json:"project_id"`
	FilePath  string `json:"file_path"`
}

// NewBleveKeywordIndex opens or creates the keyword index at path. An
// empty path yields an in-memory index.
func NewBleveKeywordIndex(path string) (*BleveKeywordIndex, error) {
	indexMapping := buildKeywordMapping()

	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, errors.New(errors.ErrCodeMetadataStore, "create keyword index directory", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, errors.New(errors.ErrCodeMetadataStore, "open keyword index", err)
	}

	return &BleveKeywordIndex{index: idx, path: path}, nil
}

func buildKeywordMapping() *mapping.IndexMappingImpl {
	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	docMapping.AddFieldMappingsAt("content", contentField)

	// project_id and file_path are filters, not text: index them verbatim.
	idField := bleve.NewTextFieldMapping()
	idField.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("project_id", idField)
	docMapping.AddFieldMappingsAt("file_path", idField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Index adds or replaces chunk documents under the given project.
func (b *BleveKeywordIndex) Index(_ context.Context, chunks []*DocumentChunk, projectID string) error {
	if len(chunks) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New(errors.ErrCodeMetadataStore, "keyword index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, c := range chunks {
		doc := keywordDocument{
			Content:   c.Content,
			ProjectID: projectID,
			FilePath:  c.FilePath,
		}
		if err := batch.Index(c.ID, doc); err != nil {
			return errors.New(errors.ErrCodeMetadataStore, "index chunk document", err).WithDetail("chunk_id", c.ID)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return errors.New(errors.ErrCodeMetadataStore, "execute keyword batch", err)
	}
	return nil
}

// Search runs a BM25 match query scoped to projectID.
func (b *BleveKeywordIndex) Search(ctx context.Context, query, projectID string, limit int) ([]*KeywordResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, errors.New(errors.ErrCodeMetadataStore, "keyword index is closed", nil)
	}
	if strings.TrimSpace(query) == "" {
		return []*KeywordResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	projectQuery := bleve.NewTermQuery(projectID)
	projectQuery.SetField("project_id")

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(matchQuery, projectQuery))
	req.Size = limit

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.New(errors.ErrCodeMetadataStore, "keyword search", err)
	}

	results := make([]*KeywordResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &KeywordResult{
			ChunkID: hit.ID,
			Score:   hit.Score,
		})
	}
	return results, nil
}

// Delete removes chunk documents by id.
func (b *BleveKeywordIndex) Delete(_ context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New(errors.ErrCodeMetadataStore, "keyword index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return errors.New(errors.ErrCodeMetadataStore, "delete chunk documents", err)
	}
	return nil
}

// Close closes the underlying bleve index. Safe to call more than once.
func (b *BleveKeywordIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
