package usecase

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/truecost/backend/internal/domain"
	"github.com/truecost/backend/internal/infrastructure/catalog"
	"github.com/truecost/backend/internal/observability"
)

// staticExtensions are never catalog endpoints
var staticExtensions = map[string]bool{
	".js": true, ".css": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".svg": true, ".webp": true, ".woff": true, ".woff2": true, ".ico": true,
}

// DiscoveryConfig holds the URL-shape markers for each dialect
type DiscoveryConfig struct {
	ListingMarker       string   // path segment introducing dialect A navigation state
	QueryMarkers        []string // query keys identifying a dialect A listing call
	DialectBHostMarker  string   // hostname fragment of the dialect B search service
	DialectBPathMarkers []string // path fragments of dialect B listing calls
}

// DefaultDiscoveryConfig returns the markers of the host site
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		ListingMarker:       "/_/",
		QueryMarkers:        []string{"Ntt", "N", "No", "Nrpp"},
		DialectBHostMarker:  "cnstrc.com",
		DialectBPathMarkers: []string{"/browse/", "/search/"},
	}
}

// EndpointDiscovery finds catalog endpoints in the network activity recorded for one page.
// It is created per page and safe for concurrent use.
type EndpointDiscovery struct {
	provider domain.TimelineProvider
	page     *url.URL
	config   DiscoveryConfig
	logger   zerolog.Logger

	mutex      sync.Mutex
	candidateA string
	candidateB string
}

// NewEndpointDiscovery creates a discovery bound to the page currently shown
func NewEndpointDiscovery(
	provider domain.TimelineProvider,
	pageURL string,
	config DiscoveryConfig,
	logger zerolog.Logger,
) (*EndpointDiscovery, error) {
	page, err := url.Parse(pageURL)
	if err != nil || page.Scheme == "" || page.Host == "" {
		return nil, fmt.Errorf("%w: page url %q must be absolute", domain.ErrInvalidRequest, pageURL)
	}

	defaults := DefaultDiscoveryConfig()
	if config.ListingMarker == "" {
		config.ListingMarker = defaults.ListingMarker
	}
	if len(config.QueryMarkers) == 0 {
		config.QueryMarkers = defaults.QueryMarkers
	}
	if config.DialectBHostMarker == "" {
		config.DialectBHostMarker = defaults.DialectBHostMarker
	}
	if len(config.DialectBPathMarkers) == 0 {
		config.DialectBPathMarkers = defaults.DialectBPathMarkers
	}

	return &EndpointDiscovery{
		provider: provider,
		page:     page,
		config:   config,
		logger:   observability.Component(logger, "discovery"),
	}, nil
}

// PageURL returns the page the discovery is bound to
func (d *EndpointDiscovery) PageURL() string {
	return d.page.String()
}

// Refresh re-scans the timeline most-recent-first and updates whichever candidates it
// finds. It never fails: provider errors are logged and the old candidates kept.
func (d *EndpointDiscovery) Refresh(ctx context.Context) {
	if d.provider == nil {
		return
	}

	entries, err := d.provider.Entries(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("timeline unavailable")
		return
	}

	ordered := mostRecentFirst(entries)

	var foundA, foundB string
	for _, e := range ordered {
		if foundA == "" && d.isDialectA(e.URL) {
			foundA = e.URL
		}
		if foundB == "" && d.isDialectB(e.URL) {
			foundB = e.URL
		}
		if foundA != "" && foundB != "" {
			break
		}
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()
	if foundA != "" && foundA != d.candidateA {
		d.logger.Debug().Str("url", foundA).Msg("dialect A candidate")
		d.candidateA = foundA
	}
	if foundB != "" && foundB != d.candidateB {
		d.logger.Debug().Str("url", foundB).Msg("dialect B candidate")
		d.candidateB = foundB
	}
}

// mostRecentFirst orders entries by start time, newest first; among equal times the
// later-recorded entry wins.
func mostRecentFirst(entries []domain.TimelineEntry) []domain.TimelineEntry {
	ordered := make([]domain.TimelineEntry, len(entries))
	for i, e := range entries {
		ordered[len(entries)-1-i] = e
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartedAt.After(ordered[j].StartedAt)
	})
	return ordered
}

// isDialectA reports a same-origin request carrying a listing path or query marker
func (d *EndpointDiscovery) isDialectA(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Host, d.page.Host) || u.Scheme != d.page.Scheme {
		return false
	}
	if staticExtensions[strings.ToLower(path.Ext(u.Path))] {
		return false
	}
	if strings.Contains(u.Path, d.config.ListingMarker) {
		return true
	}
	q := u.Query()
	for _, marker := range d.config.QueryMarkers {
		if q.Has(marker) {
			return true
		}
	}
	return false
}

// isDialectB reports a request to the search service host with a listing path
func (d *EndpointDiscovery) isDialectB(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || !strings.Contains(strings.ToLower(u.Hostname()), d.config.DialectBHostMarker) {
		return false
	}
	for _, marker := range d.config.DialectBPathMarkers {
		if strings.Contains(u.Path, marker) {
			return true
		}
	}
	return false
}

// MatchesCurrentPage reports whether a dialect A URL still belongs to the category shown:
// the path before the listing marker and the page's path must be prefixes of one another.
func (d *EndpointDiscovery) MatchesCurrentPage(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	u = catalog.RepairDialectAURL(u)

	candidate := pathSegments(d.listingPrefix(u.Path))
	current := pathSegments(d.listingPrefix(catalog.RepairDialectAURL(d.page).Path))
	return segmentPrefix(candidate, current) || segmentPrefix(current, candidate)
}

func (d *EndpointDiscovery) listingPrefix(p string) string {
	if idx := strings.Index(p, d.config.ListingMarker); idx >= 0 {
		return p[:idx]
	}
	return p
}

func pathSegments(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(strings.ToLower(trimmed), "/")
}

func segmentPrefix(prefix, full []string) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i := range prefix {
		if prefix[i] != full[i] {
			return false
		}
	}
	return true
}

// DialectAURL returns the discovered dialect A URL when it matches the current page,
// otherwise the page's own address.
func (d *EndpointDiscovery) DialectAURL() string {
	d.mutex.Lock()
	candidate := d.candidateA
	d.mutex.Unlock()

	if candidate != "" && d.MatchesCurrentPage(candidate) {
		return candidate
	}
	if candidate != "" {
		d.logger.Info().Str("stale", candidate).Msg("dialect A candidate belongs to another page, using page url")
	}
	return d.page.String()
}

// DialectBURL returns the discovered dialect B URL, or ""
func (d *EndpointDiscovery) DialectBURL() string {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.candidateB
}

// WaitForDialectB polls the timeline until a dialect B request appears, the timeout
// elapses or ctx is done.
func (d *EndpointDiscovery) WaitForDialectB(ctx context.Context, timeout, pollInterval time.Duration) (string, bool) {
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		d.Refresh(waitCtx)
		if found := d.DialectBURL(); found != "" {
			return found, true
		}

		select {
		case <-waitCtx.Done():
			d.logger.Info().Dur("timeout", timeout).Msg("no dialect B request observed")
			return "", false
		case <-ticker.C:
		}
	}
}
