package chunk

import (
	"context"
	"sort"
	"strings"
)

// Chunker splits file content into ordered, typed chunks.
//
// For languages with a registered structural parser the primary pass emits
// one chunk per top-level function, arrow-function-valued const, and class
// declaration. Declarations exceeding MaxChunkChars are never emitted
// oversized; their lines are covered by fallback windows instead. Files in
// unknown languages, files that fail to parse, and regions excluded from
// the structural pass go through the fallback pass: fixed-size character
// windows with trailing overlap, tagged TypeModule.
type Chunker struct {
	parser   *Parser
	registry *LanguageRegistry
	opts     Options
}

// NewChunker creates a chunker with the given options and the default
// language registry.
func NewChunker(opts Options) *Chunker {
	return NewChunkerWithRegistry(opts, DefaultRegistry())
}

// NewChunkerWithRegistry creates a chunker with a custom registry.
func NewChunkerWithRegistry(opts Options, registry *LanguageRegistry) *Chunker {
	return &Chunker{
		parser:   NewParser(registry),
		registry: registry,
		opts:     opts.withDefaults(),
	}
}

// Close releases parser resources.
func (c *Chunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// Language infers the language for a file path.
func (c *Chunker) Language(filePath string) string {
	return c.registry.LanguageForPath(filePath)
}

// Chunk splits text into chunks. It never fails: structural parse errors
// degrade to the fallback pass, and empty or whitespace-only input yields
// zero chunks. Identical input and options yield byte-identical output.
func (c *Chunker) Chunk(ctx context.Context, text, filePath string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	language := c.registry.LanguageForPath(filePath)
	chunks := c.structuralPass(ctx, text, filePath, language)
	if chunks == nil {
		chunks = c.fallbackWindows(text, 1, filePath, language)
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].StartLine != chunks[j].StartLine {
			return chunks[i].StartLine < chunks[j].StartLine
		}
		return chunks[i].EndLine < chunks[j].EndLine
	})
	for i := range chunks {
		chunks[i].ChunkIndex = i
	}
	return chunks
}

// structuralPass returns nil when the whole file must degrade to the
// fallback pass (no parser registered, or malformed syntax).
func (c *Chunker) structuralPass(ctx context.Context, text, filePath, language string) []Chunk {
	cfg, ok := c.registry.Config(language)
	if !ok {
		return nil
	}

	tree, err := c.parser.Parse(ctx, []byte(text), language)
	if err != nil {
		return nil
	}

	chunks := make([]Chunk, 0, len(tree.Root.Children))
	cursor := 0
	for _, node := range tree.Root.Children {
		chunkType, name, ok := classifyNode(node, cfg)
		if !ok {
			continue
		}

		// Window the gap before this declaration (imports, package
		// clauses, top-level statements) so no region is dropped.
		chunks = append(chunks, c.windowGap(text, cursor, int(node.StartByte), filePath, language)...)
		cursor = int(node.EndByte)

		content := node.Content(tree.Source)
		if len(content) > c.opts.MaxChunkChars {
			// Never emit oversized structural chunks; window the
			// declaration's lines instead.
			chunks = append(chunks, c.fallbackWindows(content, int(node.StartRow)+1, filePath, language)...)
			continue
		}

		chunk := Chunk{
			FilePath:  filePath,
			Language:  language,
			Type:      chunkType,
			StartLine: int(node.StartRow) + 1,
			EndLine:   int(node.EndRow) + 1,
			Content:   content,
			Metadata:  map[string]string{},
		}
		if name != "" {
			chunk.Metadata[MetadataName] = name
		}
		chunks = append(chunks, chunk)
	}
	chunks = append(chunks, c.windowGap(text, cursor, len(text), filePath, language)...)

	return chunks
}

// windowGap runs the fallback pass over text[start:end], the region
// between structural declarations.
func (c *Chunker) windowGap(text string, start, end int, filePath, language string) []Chunk {
	if start >= end {
		return nil
	}
	segment := text[start:end]
	if strings.TrimSpace(segment) == "" {
		return nil
	}
	baseLine := 1 + strings.Count(text[:start], "\n")
	return c.fallbackWindows(segment, baseLine, filePath, language)
}

// classifyNode reports whether a top-level node produces a structural
// chunk, and with which type and name. Anonymous declarations return an
// empty name rather than being rejected.
func classifyNode(node *Node, cfg *LanguageConfig) (Type, string, bool) {
	// JS/TS wrap exported declarations; classify by the inner node while
	// keeping the export statement's extent.
	if node.Type == "export_statement" {
		for _, child := range node.Children {
			if chunkType, name, ok := classifyNode(child, cfg); ok {
				return chunkType, name, true
			}
		}
		return "", "", false
	}

	// Python wraps decorated declarations; classify by the inner node.
	if node.Type == "decorated_definition" {
		if inner := node.FindChild("class_definition"); inner != nil {
			return TypeClass, inner.NameText, true
		}
		if inner := node.FindChild("function_definition"); inner != nil {
			return TypeFunction, inner.NameText, true
		}
		return "", "", false
	}

	for _, t := range cfg.FunctionTypes {
		if node.Type == t {
			return TypeFunction, node.NameText, true
		}
	}
	for _, t := range cfg.ClassTypes {
		if node.Type == t {
			return TypeClass, node.NameText, true
		}
	}
	for _, t := range cfg.VarDeclTypes {
		if node.Type == t {
			if name, ok := arrowFunctionName(node); ok {
				return TypeFunction, name, true
			}
		}
	}
	return "", "", false
}

// arrowFunctionName reports whether a JS/TS variable declaration binds a
// function value, returning the bound name when resolvable.
func arrowFunctionName(decl *Node) (string, bool) {
	for _, child := range decl.Children {
		if child.Type != "variable_declarator" {
			continue
		}
		for _, value := range child.Children {
			switch value.Type {
			case "arrow_function", "function_expression", "function":
				return child.NameText, true
			}
		}
	}
	return "", false
}

// fallbackWindows splits text into fixed-size character windows with
// trailing overlap duplicated into the next window. baseLine is the
// 1-indexed line number of the first character of text. No line of input
// is dropped: consecutive windows tile the whole text.
func (c *Chunker) fallbackWindows(text string, baseLine int, filePath, language string) []Chunk {
	size := c.opts.FallbackChunkChars
	step := size - c.opts.OverlapChars

	var chunks []Chunk
	for pos := 0; pos < len(text); pos += step {
		end := pos + size
		if end > len(text) {
			end = len(text)
		}

		segment := text[pos:end]
		if strings.TrimSpace(segment) != "" {
			startLine := baseLine + strings.Count(text[:pos], "\n")
			endLine := baseLine + strings.Count(text[:end], "\n")
			if end > 0 && text[end-1] == '\n' {
				endLine--
			}

			chunks = append(chunks, Chunk{
				FilePath:  filePath,
				Language:  language,
				Type:      TypeModule,
				StartLine: startLine,
				EndLine:   endLine,
				Content:   segment,
				Metadata:  map[string]string{},
			})
		}

		if end == len(text) {
			break
		}
	}
	return chunks
}
