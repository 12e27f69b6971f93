package chunk

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Parser wraps tree-sitter for structural parsing.
type Parser struct {
	parser   *sitter.Parser
	registry *LanguageRegistry
}

// NewParser creates a parser backed by the given registry.
func NewParser(registry *LanguageRegistry) *Parser {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Parser{
		parser:   sitter.NewParser(),
		registry: registry,
	}
}

// Parse parses source and returns the syntax tree. A nil tree or a root
// containing syntax errors is reported as an error so the caller can
// degrade to fallback chunking.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	grammar, ok := p.registry.TreeSitterLanguage(language)
	if !ok {
		return nil, fmt.Errorf("no parser registered for language %q", language)
	}

	p.parser.SetLanguage(grammar)

	tsTree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", language, err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("parse %s: nil tree", language)
	}

	root := tsTree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("parse %s: malformed syntax", language)
	}

	return &Tree{Root: convertNode(root, source), Source: source, Language: language}, nil
}

// Close releases parser resources.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

// Tree is a parsed syntax tree detached from tree-sitter internals.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node is a syntax tree node. Only the fields the chunker needs are kept.
type Node struct {
	Type      string
	StartByte uint32
	EndByte   uint32
	StartRow  uint32 // 0-indexed
	EndRow    uint32
	NameText  string // declared name, "" when anonymous
	Children  []*Node
}

// Content returns the source slice covered by the node.
func (n *Node) Content(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// FindChild returns the first child with the given type, or nil.
func (n *Node) FindChild(nodeType string) *Node {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child
		}
	}
	return nil
}

func convertNode(tsNode *sitter.Node, source []byte) *Node {
	if tsNode == nil {
		return nil
	}

	node := &Node{
		Type:      tsNode.Type(),
		StartByte: tsNode.StartByte(),
		EndByte:   tsNode.EndByte(),
		StartRow:  tsNode.StartPoint().Row,
		EndRow:    tsNode.EndPoint().Row,
		Children:  make([]*Node, 0, int(tsNode.ChildCount())),
	}

	// Capture the declared name while the tree-sitter node is still live.
	if nameNode := tsNode.ChildByFieldName("name"); nameNode != nil {
		node.NameText = nameNode.Content(source)
	}

	for i := 0; i < int(tsNode.ChildCount()); i++ {
		if child := tsNode.Child(i); child != nil {
			node.Children = append(node.Children, convertNode(child, source))
		}
	}

	return node
}
