// Package cache provides the query-result cache used by the semantic
// retriever. Entries are keyed by a digest of the full query shape and
// expire after a short TTL, so repeated identical queries skip the
// embedding call and the vector search entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultTTL bounds how stale a cached result set may be.
const DefaultTTL = 5 * time.Minute

// QueryCache stores serialized query results. Get returns (nil, false,
// nil) on a miss; cache failures are reported but callers treat them as
// misses rather than query failures.
type QueryCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// QueryKey derives the cache key from everything that affects the result
// set. Filter entries are sorted so equal filters hash equally regardless
// of map iteration order.
func QueryKey(query, projectID string, topK int, filter map[string]string) string {
	var sb strings.Builder
	sb.WriteString(query)
	sb.WriteByte(0)
	sb.WriteString(projectID)
	sb.WriteByte(0)
	fmt.Fprintf(&sb, "%d", topK)

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteByte(0)
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(filter[k])
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return "repoindex:query:" + hex.EncodeToString(sum[:])
}
