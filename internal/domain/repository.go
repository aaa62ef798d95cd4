package domain

import (
	"context"
	"time"
)

// Dialect identifies one of the two catalog-listing API shapes
type Dialect string

const (
	DialectA Dialect = "dialect-a" // attribute-bag listing (offset/size paging)
	DialectB Dialect = "dialect-b" // structured search results (page/size paging)
)

// CacheRepository stores encoded retrieval results.
// Get returns ErrCacheMiss for absent or expired keys.
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// TimelineEntry is one request recorded in the host environment's network activity
type TimelineEntry struct {
	URL       string    `json:"url"`
	StartedAt time.Time `json:"startedAt"`
	Initiator string    `json:"initiator,omitempty"`
}

// TimelineProvider exposes the host environment's recent network activity
type TimelineProvider interface {
	Entries(ctx context.Context) ([]TimelineEntry, error)
}

// CatalogClient fetches raw catalog pages
type CatalogClient interface {
	FetchJSON(ctx context.Context, dialect Dialect, reqURL string) ([]byte, error)
}

// Entry is one rendered list item: an opaque handle plus its current markup
type Entry struct {
	ID     string `json:"id"`
	Markup string `json:"markup"`
}

// EntryList is the externally-owned rendered product list the sort engine reconciles
type EntryList interface {
	// Entries returns the entries in current render order
	Entries() []Entry
	// Reorder re-renders the entries in the given order of IDs
	Reorder(ids []string) error
	// Annotate attaches the normalized product to a not-yet-annotated entry
	Annotate(id string, product *Product)
}
