// Package vcs provides the version-control collaborator used by the
// indexers to list and fetch repository files. The core never decides
// when to index and never walks the filesystem itself; it reads a
// repository snapshot through this interface.
package vcs

import (
	"context"
)

// Client reads files from a repository at a given ref.
type Client interface {
	// ListFiles returns all file paths in the repository at ref.
	// An empty ref means the default branch.
	ListFiles(ctx context.Context, owner, repo, ref string) ([]string, error)

	// GetFileContent returns the text content of one file at ref.
	GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error)
}

// TokenResolver supplies short-lived credentials for a provider. The
// surrounding system resolves tokens per provider; the core needs this
// capability only for the VCS collaborator.
type TokenResolver interface {
	ResolveToken(ctx context.Context, provider string) (string, error)
}

// StaticToken is a TokenResolver returning a fixed token, used for
// personal access tokens and tests.
type StaticToken string

// ResolveToken returns the fixed token for any provider.
func (t StaticToken) ResolveToken(_ context.Context, _ string) (string, error) {
	return string(t), nil
}
