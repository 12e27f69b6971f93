package indexer

import (
	"regexp"
	"strings"
)

// FileFilter decides which repository paths get indexed. Include patterns
// whitelist (empty include means everything); exclude patterns veto.
// Patterns use gitignore-style globs: * within a segment, ** across
// segments, ? for one character.
type FileFilter struct {
	include     []*regexp.Regexp
	exclude     []*regexp.Regexp
	maxFileSize int64
}

// NewFileFilter compiles include/exclude patterns. Invalid patterns are
// skipped; a pattern set that compiles to nothing behaves as absent.
func NewFileFilter(include, exclude []string, maxFileSize int64) *FileFilter {
	return &FileFilter{
		include:     compilePatterns(include),
		exclude:     compilePatterns(exclude),
		maxFileSize: maxFileSize,
	}
}

// Match reports whether path passes the filter.
func (f *FileFilter) Match(path string) bool {
	path = strings.TrimPrefix(path, "/")

	for _, re := range f.exclude {
		if re.MatchString(path) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, re := range f.include {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// MaxFileSize returns the size cutoff in bytes, 0 meaning no limit.
func (f *FileFilter) MaxFileSize() int64 {
	return f.maxFileSize
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(strings.TrimPrefix(p, "/"))
		if p == "" {
			continue
		}
		// A bare-name pattern like "*.log" matches at any depth.
		if !strings.Contains(p, "/") {
			p = "**/" + p
		}
		re, err := regexp.Compile("^" + globToRegex(p) + "$")
		if err != nil {
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled
}

func globToRegex(pattern string) string {
	var result strings.Builder

	i := 0
	for i < len(pattern) {
		c := pattern[i]

		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					// **/ spans any number of directories
					result.WriteString("(?:.*/)?")
					i += 3
					continue
				}
				result.WriteString(".*")
				i += 2
				continue
			}
			result.WriteString("[^/]*")
			i++

		case '?':
			result.WriteString("[^/]")
			i++

		case '.', '+', '^', '$', '(', ')', '{', '}', '|', '[', ']', '\\':
			result.WriteString(regexp.QuoteMeta(string(c)))
			i++

		default:
			result.WriteByte(c)
			i++
		}
	}

	return result.String()
}
