package chunk

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageGeneric is the language assigned to unknown extensions.
// Generic files are always chunked by the fallback pass.
const LanguageGeneric = "text"

// LanguageConfig describes how to cut structural chunks for one language.
type LanguageConfig struct {
	Name       string
	Extensions []string

	// FunctionTypes are top-level node types emitted as TypeFunction.
	FunctionTypes []string

	// ClassTypes are top-level node types emitted as TypeClass.
	ClassTypes []string

	// VarDeclTypes are declaration node types inspected for
	// arrow-function-valued consts (JS/TS only).
	VarDeclTypes []string
}

// LanguageRegistry maps file extensions to languages and languages to
// their structural parser configuration. Languages without a registered
// tree-sitter grammar still carry a name for labeling, but are chunked by
// the fallback pass.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry creates a registry with the default languages.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}

	r.registerGo()
	r.registerTypeScript()
	r.registerJavaScript()
	r.registerPython()

	// Label-only languages: recognized for payload metadata, chunked by
	// the fallback pass.
	r.registerLabelOnly("markdown", ".md", ".markdown")
	r.registerLabelOnly("json", ".json")
	r.registerLabelOnly("yaml", ".yaml", ".yml")
	r.registerLabelOnly("shell", ".sh", ".bash")
	r.registerLabelOnly("sql", ".sql")

	return r
}

// LanguageForPath infers the language from the file extension. Unknown
// extensions map to LanguageGeneric.
func (r *LanguageRegistry) LanguageForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if lang, ok := r.extToLang[ext]; ok {
		return lang
	}
	return LanguageGeneric
}

// Config returns the structural configuration for a language, if any.
func (r *LanguageRegistry) Config(language string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[language]
	return cfg, ok
}

// TreeSitterLanguage returns the grammar for a language. Languages without
// a grammar have no structural parser and use the fallback pass.
func (r *LanguageRegistry) TreeSitterLanguage(language string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lang, ok := r.tsLanguages[language]
	return lang, ok
}

// Register adds a language with a structural parser. New languages plug in
// here without touching retrieval code.
func (r *LanguageRegistry) Register(cfg *LanguageConfig, grammar *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[cfg.Name] = cfg
	if grammar != nil {
		r.tsLanguages[cfg.Name] = grammar
	}
	for _, ext := range cfg.Extensions {
		r.extToLang[strings.ToLower(ext)] = cfg.Name
	}
}

func (r *LanguageRegistry) registerLabelOnly(name string, exts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ext := range exts {
		r.extToLang[strings.ToLower(ext)] = name
	}
}

func (r *LanguageRegistry) registerGo() {
	r.Register(&LanguageConfig{
		Name:          "go",
		Extensions:    []string{".go"},
		FunctionTypes: []string{"function_declaration", "method_declaration"},
		// Go has no classes; type declarations stay on the fallback path.
	}, golang.GetLanguage())
}

func (r *LanguageRegistry) registerTypeScript() {
	tsCfg := &LanguageConfig{
		Name:          "typescript",
		Extensions:    []string{".ts"},
		FunctionTypes: []string{"function_declaration"},
		ClassTypes:    []string{"class_declaration", "abstract_class_declaration", "interface_declaration"},
		VarDeclTypes:  []string{"lexical_declaration", "variable_declaration"},
	}
	r.Register(tsCfg, typescript.GetLanguage())

	r.Register(&LanguageConfig{
		Name:          "tsx",
		Extensions:    []string{".tsx"},
		FunctionTypes: tsCfg.FunctionTypes,
		ClassTypes:    tsCfg.ClassTypes,
		VarDeclTypes:  tsCfg.VarDeclTypes,
	}, tsx.GetLanguage())
}

func (r *LanguageRegistry) registerJavaScript() {
	jsCfg := &LanguageConfig{
		Name:          "javascript",
		Extensions:    []string{".js", ".mjs", ".cjs"},
		FunctionTypes: []string{"function_declaration"},
		ClassTypes:    []string{"class_declaration"},
		VarDeclTypes:  []string{"lexical_declaration", "variable_declaration"},
	}
	r.Register(jsCfg, javascript.GetLanguage())

	r.Register(&LanguageConfig{
		Name:          "jsx",
		Extensions:    []string{".jsx"},
		FunctionTypes: jsCfg.FunctionTypes,
		ClassTypes:    jsCfg.ClassTypes,
		VarDeclTypes:  jsCfg.VarDeclTypes,
	}, javascript.GetLanguage())
}

func (r *LanguageRegistry) registerPython() {
	r.Register(&LanguageConfig{
		Name:          "python",
		Extensions:    []string{".py"},
		FunctionTypes: []string{"function_definition", "decorated_definition"},
		ClassTypes:    []string{"class_definition"},
	}, python.GetLanguage())
}

// defaultRegistry backs chunkers created without an explicit registry.
var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the process-wide language registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
