// Package chunk splits source files into ordered, typed segments suitable
// for embedding and retrieval. Languages with a registered tree-sitter
// grammar get one chunk per top-level declaration; everything else falls
// back to fixed-size character windows. Chunking is deterministic and
// never fails: malformed input degrades to the fallback path.
package chunk

// Default chunking parameters. Sizes are measured in characters; line
// numbers are derived from character offsets after windowing.
const (
	// DefaultMaxChunkChars bounds the size of a structural chunk. Larger
	// declarations are excluded from the structural pass and covered by
	// fallback windows instead.
	DefaultMaxChunkChars = 1500

	// DefaultFallbackChunkChars is the window size for the fallback pass.
	DefaultFallbackChunkChars = 100

	// DefaultOverlapChars is the trailing context duplicated into the next
	// fallback window, preserving cross-boundary context for retrieval.
	DefaultOverlapChars = 20
)

// Type classifies a chunk by the construct it was cut from.
type Type string

const (
	// TypeModule marks fallback windows and other non-structural content.
	TypeModule Type = "module"
	// TypeFunction marks function and method declarations, including
	// arrow-function-valued consts in JS/TS.
	TypeFunction Type = "function"
	// TypeClass marks class and interface declarations.
	TypeClass Type = "class"
)

// MetadataName is the metadata key holding the declared symbol name.
// Anonymous declarations leave it unset rather than failing.
const MetadataName = "name"

// Chunk is a contiguous, typed slice of a source file's text with known
// line bounds. Identical input text and options always yield byte-identical
// chunks, so callers may detect unchanged chunks by content hash.
type Chunk struct {
	FilePath   string
	Language   string
	Type       Type
	StartLine  int // 1-indexed
	EndLine    int // inclusive
	ChunkIndex int // zero-based position within the file
	Content    string
	Metadata   map[string]string
}

// Name returns the declared symbol name, or "" for anonymous chunks.
func (c *Chunk) Name() string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[MetadataName]
}

// Options configures a Chunker. Zero values fall back to the defaults.
type Options struct {
	MaxChunkChars      int
	FallbackChunkChars int
	OverlapChars       int
}

func (o Options) withDefaults() Options {
	if o.MaxChunkChars <= 0 {
		o.MaxChunkChars = DefaultMaxChunkChars
	}
	if o.FallbackChunkChars <= 0 {
		o.FallbackChunkChars = DefaultFallbackChunkChars
	}
	if o.OverlapChars <= 0 {
		o.OverlapChars = DefaultOverlapChars
	}
	if o.OverlapChars >= o.FallbackChunkChars {
		o.OverlapChars = o.FallbackChunkChars / 5
	}
	return o
}
