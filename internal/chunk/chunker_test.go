package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_GoFile_ReturnsFunctionChunks(t *testing.T) {
	source := `package main

import "fmt"

func Hello() {
	fmt.Println("Hello")
}

func Goodbye() {
	fmt.Println("Goodbye")
}
`
	chunker := NewChunker(Options{})
	defer chunker.Close()

	chunks := chunker.Chunk(context.Background(), source, "main.go")
	require.NotEmpty(t, chunks)

	var functions []Chunk
	for _, c := range chunks {
		if c.Type == TypeFunction {
			functions = append(functions, c)
		}
	}
	require.Len(t, functions, 2)

	assert.Equal(t, "Hello", functions[0].Name())
	assert.Contains(t, functions[0].Content, `fmt.Println("Hello")`)
	assert.Equal(t, 5, functions[0].StartLine)
	assert.Equal(t, 7, functions[0].EndLine)

	assert.Equal(t, "Goodbye", functions[1].Name())
	assert.Equal(t, "go", functions[1].Language)

	// The package clause and import land in module chunks.
	assert.Equal(t, TypeModule, chunks[0].Type)
	assert.Contains(t, chunks[0].Content, "package main")
}

func TestChunker_ChunkIndexIsContiguous(t *testing.T) {
	source := `package main

func A() {}

func B() {}
`
	chunker := NewChunker(Options{})
	defer chunker.Close()

	chunks := chunker.Chunk(context.Background(), source, "a.go")
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
	}
	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, chunks[i].StartLine, chunks[i-1].StartLine)
	}
}

func TestChunker_EmptyAndWhitespaceInput(t *testing.T) {
	chunker := NewChunker(Options{})
	defer chunker.Close()

	assert.Empty(t, chunker.Chunk(context.Background(), "", "a.go"))
	assert.Empty(t, chunker.Chunk(context.Background(), "   \n\t\n  ", "a.go"))
}

func TestChunker_UnknownLanguageFallsBack(t *testing.T) {
	text := strings.Repeat("some plain text content line\n", 12)

	chunker := NewChunker(Options{})
	defer chunker.Close()

	chunks := chunker.Chunk(context.Background(), text, "notes.txt")
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.Equal(t, TypeModule, c.Type)
		assert.Equal(t, LanguageGeneric, c.Language)
		assert.LessOrEqual(t, len(c.Content), DefaultFallbackChunkChars)
	}

	// Consecutive windows overlap by OverlapChars.
	require.Greater(t, len(chunks), 1)
	first := chunks[0].Content
	second := chunks[1].Content
	overlap := first[len(first)-DefaultOverlapChars:]
	assert.True(t, strings.HasPrefix(second, overlap))
}

func TestChunker_MalformedSyntaxDegradesWholeFile(t *testing.T) {
	source := `package main

func Broken( {
	this is not go
`
	chunker := NewChunker(Options{})
	defer chunker.Close()

	chunks := chunker.Chunk(context.Background(), source, "broken.go")
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, TypeModule, c.Type)
	}
}

func TestChunker_OversizedFunctionIsWindowed(t *testing.T) {
	var body strings.Builder
	for i := 0; i < 200; i++ {
		body.WriteString("\tcallSomethingWithALongName(alpha, beta, gamma)\n")
	}
	source := "package main\n\nfunc Big() {\n" + body.String() + "}\n"
	require.Greater(t, len(source), DefaultMaxChunkChars)

	chunker := NewChunker(Options{})
	defer chunker.Close()

	chunks := chunker.Chunk(context.Background(), source, "big.go")
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), DefaultMaxChunkChars)
		assert.NotEqual(t, TypeFunction, c.Type, "oversized declaration must not surface as one chunk")
	}
}

func TestChunker_PythonDecoratedFunction(t *testing.T) {
	source := `import functools

@functools.cache
def fib(n):
    if n < 2:
        return n
    return fib(n - 1) + fib(n - 2)

class Solver:
    def solve(self):
        return fib(10)
`
	chunker := NewChunker(Options{})
	defer chunker.Close()

	chunks := chunker.Chunk(context.Background(), source, "solver.py")
	require.NotEmpty(t, chunks)

	byName := map[string]Chunk{}
	for _, c := range chunks {
		if n := c.Name(); n != "" {
			byName[n] = c
		}
	}

	fib, ok := byName["fib"]
	require.True(t, ok)
	assert.Equal(t, TypeFunction, fib.Type)
	assert.Contains(t, fib.Content, "@functools.cache")

	solver, ok := byName["Solver"]
	require.True(t, ok)
	assert.Equal(t, TypeClass, solver.Type)
}

func TestChunker_TypeScriptArrowConst(t *testing.T) {
	source := `import { api } from "./api";

export const fetchUser = async (id: string) => {
  return api.get("/users/" + id);
};

const helper = 42;

function plain(x: number): number {
  return x * 2;
}
`
	chunker := NewChunker(Options{})
	defer chunker.Close()

	chunks := chunker.Chunk(context.Background(), source, "user.ts")
	require.NotEmpty(t, chunks)

	names := map[string]Type{}
	for _, c := range chunks {
		if n := c.Name(); n != "" {
			names[n] = c.Type
		}
	}

	assert.Equal(t, TypeFunction, names["fetchUser"])
	assert.Equal(t, TypeFunction, names["plain"])
	assert.NotContains(t, names, "helper", "plain consts are not structural chunks")
}

func TestChunker_Deterministic(t *testing.T) {
	source := `package main

import "os"

func First() string {
	return os.Getenv("HOME")
}

func Second() int {
	return 2
}
`
	chunker := NewChunker(Options{})
	defer chunker.Close()

	a := chunker.Chunk(context.Background(), source, "d.go")
	b := chunker.Chunk(context.Background(), source, "d.go")
	require.Equal(t, a, b)
}

func TestChunkerOptions_ZeroValueGetsDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, DefaultMaxChunkChars, opts.MaxChunkChars)
	assert.Equal(t, DefaultFallbackChunkChars, opts.FallbackChunkChars)
	assert.Equal(t, DefaultOverlapChars, opts.OverlapChars)

	// Overlap at or above the window size is clamped, not kept.
	clamped := Options{FallbackChunkChars: 10}.withDefaults()
	assert.Equal(t, 2, clamped.OverlapChars)
}

func TestChunker_CustomWindowOptions(t *testing.T) {
	chunker := NewChunker(Options{FallbackChunkChars: 40, OverlapChars: 10})
	defer chunker.Close()

	text := strings.Repeat("abcdefghij", 20) // 200 chars, no newlines
	chunks := chunker.Chunk(context.Background(), text, "data.txt")
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), 40)
		assert.Equal(t, 1, c.StartLine)
		assert.Equal(t, 1, c.EndLine)
	}
}
