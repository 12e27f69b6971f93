// Package errors provides structured error handling for repoindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: configuration errors
//   - 2XX: source and VCS errors
//   - 3XX: embedding and generation provider errors
//   - 4XX: storage errors (vector store, metadata store, cache)
//   - 5XX: indexing state errors
package errors

import (
	"errors"
	"fmt"
)

// Category classifies errors by subsystem.
type Category string

const (
	CategoryConfig    Category = "CONFIG"
	CategoryVCS       Category = "VCS"
	CategoryProvider  Category = "PROVIDER"
	CategoryStorage   Category = "STORAGE"
	CategoryIndexing  Category = "INDEXING"
	CategoryRetrieval Category = "RETRIEVAL"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Source and VCS errors (200-299)
	ErrCodeFileUnreadable = "ERR_201_FILE_UNREADABLE"
	ErrCodeVCSUnavailable = "ERR_202_VCS_UNAVAILABLE"
	ErrCodeTokenResolve   = "ERR_203_TOKEN_RESOLVE"

	// Provider errors (300-399)
	ErrCodeEmbedding  = "ERR_301_EMBEDDING"
	ErrCodeGeneration = "ERR_302_GENERATION"
	ErrCodeRerank     = "ERR_303_RERANK"

	// Storage errors (400-499)
	ErrCodeVectorStore   = "ERR_401_VECTOR_STORE"
	ErrCodeMetadataStore = "ERR_402_METADATA_STORE"
	ErrCodeCache         = "ERR_403_CACHE"

	// Indexing state errors (500-599)
	ErrCodeConcurrentUpdate = "ERR_501_CONCURRENT_UPDATE"
	ErrCodeIndexNotFound    = "ERR_502_INDEX_NOT_FOUND"
	ErrCodeIndexState       = "ERR_503_INDEX_STATE"
)

// retryableCodes are codes where the operation may succeed on retry.
// Embedding and vector store errors are transient provider conditions;
// a concurrent update resolves once the in-flight update finishes.
var retryableCodes = map[string]bool{
	ErrCodeEmbedding:        true,
	ErrCodeVectorStore:      true,
	ErrCodeVCSUnavailable:   true,
	ErrCodeCache:            true,
	ErrCodeConcurrentUpdate: true,
}

var codeCategories = map[string]Category{
	ErrCodeConfigNotFound:   CategoryConfig,
	ErrCodeConfigInvalid:    CategoryConfig,
	ErrCodeFileUnreadable:   CategoryVCS,
	ErrCodeVCSUnavailable:   CategoryVCS,
	ErrCodeTokenResolve:     CategoryVCS,
	ErrCodeEmbedding:        CategoryProvider,
	ErrCodeGeneration:       CategoryProvider,
	ErrCodeRerank:           CategoryProvider,
	ErrCodeVectorStore:      CategoryStorage,
	ErrCodeMetadataStore:    CategoryStorage,
	ErrCodeCache:            CategoryStorage,
	ErrCodeConcurrentUpdate: CategoryIndexing,
	ErrCodeIndexNotFound:    CategoryIndexing,
	ErrCodeIndexState:       CategoryIndexing,
}

// Error is the structured error type for repoindex.
type Error struct {
	// Code is the unique error code (e.g. "ERR_301_EMBEDDING").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the owning subsystem.
	Category Category

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates whether the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code, enabling errors.Is with sentinel values.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates an Error with the given code and message. Category and
// retryable flag are derived from the code.
func New(code, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  codeCategories[code],
		Cause:     cause,
		Retryable: retryableCodes[code],
	}
}

// Wrap creates an Error from an existing error, keeping its message.
// Returns nil when err is nil.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// IsRetryable reports whether err (anywhere in its chain) is a retryable
// Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// CodeOf returns the code of the first Error in the chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ConcurrentUpdate creates the error returned when an index update is
// requested while another update is already in flight for the same index.
// The caller must retry later; the request is rejected, not queued.
func ConcurrentUpdate(indexID string) *Error {
	return New(ErrCodeConcurrentUpdate,
		fmt.Sprintf("index %s is already updating", indexID), nil).
		WithDetail("index_id", indexID)
}
