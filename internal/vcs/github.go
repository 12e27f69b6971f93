package vcs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/victorgambert/repoindex/internal/errors"
)

const defaultGitHubAPI = "https://api.github.com"

// GitHubClient implements Client over the GitHub REST API, using the git
// trees endpoint for listings and the contents endpoint for file bodies.
type GitHubClient struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenResolver
}

var _ Client = (*GitHubClient)(nil)

// NewGitHubClient creates a GitHub VCS client. tokens may be nil for
// anonymous access to public repositories.
func NewGitHubClient(tokens TokenResolver) *GitHubClient {
	return &GitHubClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultGitHubAPI,
		tokens:     tokens,
	}
}

// NewGitHubEnterpriseClient creates a client against a GitHub Enterprise
// API base URL.
func NewGitHubEnterpriseClient(baseURL string, tokens TokenResolver) *GitHubClient {
	c := NewGitHubClient(tokens)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

type treeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

// ListFiles returns all blob paths in the repository tree at ref.
func (c *GitHubClient) ListFiles(ctx context.Context, owner, repo, ref string) ([]string, error) {
	if ref == "" {
		ref = "HEAD"
	}
	endpoint := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1",
		c.baseURL, url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(ref))

	body, err := c.get(ctx, endpoint, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}

	var parsed treeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(errors.ErrCodeVCSUnavailable, err)
	}
	if parsed.Truncated {
		return nil, errors.New(errors.ErrCodeVCSUnavailable,
			fmt.Sprintf("tree listing for %s/%s@%s truncated by provider", owner, repo, ref), nil)
	}

	paths := make([]string, 0, len(parsed.Tree))
	for _, entry := range parsed.Tree {
		if entry.Type == "blob" {
			paths = append(paths, entry.Path)
		}
	}
	return paths, nil
}

// GetFileContent returns the raw text of one file at ref.
func (c *GitHubClient) GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		c.baseURL, url.PathEscape(owner), url.PathEscape(repo), escapePath(path))
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}

	body, err := c.get(ctx, endpoint, "application/vnd.github.raw+json")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *GitHubClient) get(ctx context.Context, endpoint, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeVCSUnavailable, err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	if c.tokens != nil {
		token, err := c.tokens.ResolveToken(ctx, "github")
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeTokenResolve, err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeVCSUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.New(errors.ErrCodeFileUnreadable,
			fmt.Sprintf("not found: %s", endpoint), nil)
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, errors.New(errors.ErrCodeVCSUnavailable,
			fmt.Sprintf("github request failed: %s: %s", resp.Status, strings.TrimSpace(string(payload))), nil)
	}

	return io.ReadAll(resp.Body)
}

// escapePath escapes each path segment while keeping separators.
func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
