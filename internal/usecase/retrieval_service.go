package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/truecost/backend/internal/domain"
	"github.com/truecost/backend/internal/infrastructure/catalog"
	"github.com/truecost/backend/internal/observability"
)

// RetrievalConfig holds paging, fallback and caching settings
type RetrievalConfig struct {
	DialectAPageSize     int
	DialectAParallelism  int
	DialectBPageSize     int // 0 takes the size carried by the discovered URL
	DialectBParallelism  int
	DialectBWaitTimeout  time.Duration
	DialectBPollInterval time.Duration
	TaxMultiplier        float64
	CacheTTL             time.Duration
	Discovery            DiscoveryConfig
}

// DefaultRetrievalConfig returns the documented defaults
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		DialectAPageSize:     50,
		DialectAParallelism:  3,
		DialectBParallelism:  6,
		DialectBWaitTimeout:  5 * time.Second,
		DialectBPollInterval: 250 * time.Millisecond,
		TaxMultiplier:        catalog.DefaultTaxMultiplier,
		CacheTTL:             15 * time.Minute,
		Discovery:            DefaultDiscoveryConfig(),
	}
}

// fallbackDialectBPageSize is used when neither config nor the discovered URL sets one
const fallbackDialectBPageSize = 24

// ProgressFunc receives the number of records loaded and the total (0 while unknown)
type ProgressFunc func(loaded, total int)

// RetrieveRequest describes one catalog retrieval
type RetrieveRequest struct {
	PageURL   string
	Timeline  domain.TimelineProvider
	Category  domain.UnitCategory // optional; fills RetrieveResult.Ranked
	SkipCache bool
}

// RetrieveResult is the complete product list of one category page
type RetrieveResult struct {
	SessionID   string            `json:"sessionId"`
	Dialect     domain.Dialect    `json:"dialect"`
	EndpointURL string            `json:"endpointUrl"`
	Total       int               `json:"total"`
	Skipped     int               `json:"skipped"`
	Products    []*domain.Product `json:"products"`
	Ranked      []*domain.Product `json:"ranked,omitempty"`
	FromCache   bool              `json:"fromCache"`
	History     []SessionState    `json:"history,omitempty"`
}

// cachedCatalog is the cache representation of a finished retrieval
type cachedCatalog struct {
	Dialect     domain.Dialect    `json:"dialect"`
	EndpointURL string            `json:"endpointUrl"`
	Total       int               `json:"total"`
	Skipped     int               `json:"skipped"`
	Products    []*domain.Product `json:"products"`
	CachedAt    time.Time         `json:"cachedAt"`
}

// RetrievalService fetches every product of a category page: endpoint discovery,
// batched paging and the dialect A to dialect B fallback.
type RetrievalService struct {
	client domain.CatalogClient
	cache  domain.CacheRepository
	config RetrievalConfig
	logger zerolog.Logger
}

// NewRetrievalService creates a new retrieval service. cache may be nil.
func NewRetrievalService(
	client domain.CatalogClient,
	cache domain.CacheRepository,
	config RetrievalConfig,
	logger zerolog.Logger,
) *RetrievalService {
	defaults := DefaultRetrievalConfig()
	if config.DialectAPageSize <= 0 {
		config.DialectAPageSize = defaults.DialectAPageSize
	}
	if config.DialectAParallelism <= 0 {
		config.DialectAParallelism = defaults.DialectAParallelism
	}
	if config.DialectBParallelism <= 0 {
		config.DialectBParallelism = defaults.DialectBParallelism
	}
	if config.DialectBWaitTimeout <= 0 {
		config.DialectBWaitTimeout = defaults.DialectBWaitTimeout
	}
	if config.DialectBPollInterval <= 0 {
		config.DialectBPollInterval = defaults.DialectBPollInterval
	}
	if config.TaxMultiplier <= 0 {
		config.TaxMultiplier = defaults.TaxMultiplier
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaults.CacheTTL
	}

	return &RetrievalService{
		client: client,
		cache:  cache,
		config: config,
		logger: observability.Component(logger, "retrieval"),
	}
}

// Retrieve returns the full product list of the page in API order.
// Flow: check cache -> discover endpoints -> dialect A -> (on failure) dialect B -> cache
func (s *RetrievalService) Retrieve(
	ctx context.Context,
	req RetrieveRequest,
	progress ProgressFunc,
) (*RetrieveResult, error) {
	if strings.TrimSpace(req.PageURL) == "" {
		return nil, fmt.Errorf("%w: page url is required", domain.ErrInvalidRequest)
	}
	if progress == nil {
		progress = func(int, int) {}
	}

	discovery, err := NewEndpointDiscovery(req.Timeline, req.PageURL, s.config.Discovery, s.logger)
	if err != nil {
		return nil, err
	}

	cacheKey := generateCacheKey(req.PageURL)
	if !req.SkipCache {
		if cached, ok := s.getFromCache(ctx, cacheKey); ok {
			progress(len(cached.Products), cached.Total)
			return s.buildResult("", cached.Dialect, cached.EndpointURL, cached.Total, cached.Skipped,
				cached.Products, req.Category, true, nil), nil
		}
	}

	session := newRetrievalSession(discovery.PageURL(), s.logger)
	discovery.Refresh(ctx)

	origin := catalog.Origin(req.PageURL)
	primary := &dialectAPager{
		base:   discovery.DialectAURL(),
		origin: origin,
		size:   s.config.DialectAPageSize,
		limit:  s.config.DialectAParallelism,
		logger: session.logger,
	}

	errA := s.fetchAll(ctx, session, primary, progress)
	if errA != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			session.transition(StateAborted)
			return nil, ctxErr
		}
		if !errors.Is(errA, domain.ErrNetwork) && !errors.Is(errA, domain.ErrStructural) {
			session.transition(StateAborted)
			return nil, errA
		}

		session.logger.Warn().Err(errA).Msg("dialect A failed, falling back to dialect B")
		session.transition(StateFallbackDialect)

		template := discovery.DialectBURL()
		if template == "" {
			template, _ = discovery.WaitForDialectB(ctx, s.config.DialectBWaitTimeout, s.config.DialectBPollInterval)
		}
		if template == "" {
			session.transition(StateAborted)
			return nil, fmt.Errorf("%w: dialect A failed (%v) and no dialect B request was observed",
				domain.ErrNoEndpoint, errA)
		}

		fallback := &dialectBPager{
			template:      template,
			origin:        origin,
			size:          s.dialectBPageSize(template),
			limit:         s.config.DialectBParallelism,
			taxMultiplier: s.config.TaxMultiplier,
			logger:        session.logger,
		}
		if err := s.fetchAll(ctx, session, fallback, progress); err != nil {
			session.transition(StateAborted)
			return nil, err
		}
	}

	session.transition(StateDone)
	session.logger.Info().
		Str("dialect", string(session.Dialect)).
		Int("products", len(session.Products)).
		Int("skipped", session.Skipped).
		Int("total", session.Total).
		Msg("retrieval complete")

	s.setInCache(ctx, cacheKey, session)

	return s.buildResult(session.ID, session.Dialect, session.EndpointURL, session.Total, session.Skipped,
		session.Products, req.Category, false, session.History), nil
}

func (s *RetrievalService) dialectBPageSize(template string) int {
	if s.config.DialectBPageSize > 0 {
		return s.config.DialectBPageSize
	}
	if size := catalog.TemplatePageSize(template); size > 0 {
		return size
	}
	return fallbackDialectBPageSize
}

// fetchAll runs one dialect to completion: the first page discovers the total, the
// remaining pages are fetched in groups of p.parallelism() and appended in request order.
func (s *RetrievalService) fetchAll(ctx context.Context, session *RetrievalSession, p pager, progress ProgressFunc) error {
	first, err := p.requestURL(0)
	if err != nil {
		return domain.StructuralError(p.dialect(), "", err)
	}
	session.begin(p.dialect(), first)

	batch, err := s.fetchPage(ctx, p, 0, first)
	if err != nil {
		return err
	}
	session.Total = batch.total
	s.appendBatch(session, batch)
	progress(session.Cursor, session.Total)

	requests := pageCount(session.Total, p.pageSize())
	if requests <= 1 {
		return nil
	}
	session.transition(StateFetchingRemainingPages)

	for start := 1; start < requests; start += p.parallelism() {
		end := min(start+p.parallelism(), requests)

		batches := make([]*pageBatch, end-start)
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				reqURL, err := p.requestURL(i)
				if err != nil {
					return domain.StructuralError(p.dialect(), "", err)
				}
				b, err := s.fetchPage(gctx, p, i*p.pageSize(), reqURL)
				if err != nil {
					return err
				}
				batches[i-start] = b
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for _, b := range batches {
			s.appendBatch(session, b)
		}
		progress(session.Cursor, session.Total)
	}

	return nil
}

// fetchPage fetches and decodes one page, classifying any decode failure as structural
func (s *RetrievalService) fetchPage(ctx context.Context, p pager, firstIndex int, reqURL string) (*pageBatch, error) {
	body, err := s.client.FetchJSON(ctx, p.dialect(), reqURL)
	if err != nil {
		var retrievalErr *domain.RetrievalError
		if errors.As(err, &retrievalErr) {
			return nil, err
		}
		return nil, domain.NetworkError(p.dialect(), reqURL, 0, err)
	}

	batch, err := p.decode(body, firstIndex)
	if err != nil {
		return nil, domain.StructuralError(p.dialect(), reqURL, err)
	}
	return batch, nil
}

func (s *RetrievalService) appendBatch(session *RetrievalSession, b *pageBatch) {
	session.Products = append(session.Products, b.products...)
	session.Skipped += b.skipped
	session.Cursor += b.records
	if session.Total > 0 && session.Cursor > session.Total {
		session.Cursor = session.Total
	}
}

// pageCount returns how many requests of size cover total records (at least one)
func pageCount(total, size int) int {
	if size <= 0 || total <= size {
		return 1
	}
	return (total + size - 1) / size
}

func (s *RetrievalService) buildResult(
	sessionID string,
	dialect domain.Dialect,
	endpoint string,
	total, skipped int,
	products []*domain.Product,
	category domain.UnitCategory,
	fromCache bool,
	history []SessionState,
) *RetrieveResult {
	if products == nil {
		products = []*domain.Product{}
	}
	result := &RetrieveResult{
		SessionID:   sessionID,
		Dialect:     dialect,
		EndpointURL: endpoint,
		Total:       total,
		Skipped:     skipped,
		Products:    products,
		FromCache:   fromCache,
		History:     history,
	}
	if category != "" && category != domain.CategoryNone {
		result.Ranked = RankByCategory(products, category)
	}
	return result
}

// generateCacheKey normalizes the page URL into a cache key.
// Format: "catalog:{lowercased page url without fragment}"
func generateCacheKey(pageURL string) string {
	key := strings.ToLower(strings.TrimSpace(pageURL))
	if idx := strings.Index(key, "#"); idx >= 0 {
		key = key[:idx]
	}
	return "catalog:" + strings.TrimSuffix(key, "/")
}

func (s *RetrievalService) getFromCache(ctx context.Context, key string) (*cachedCatalog, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return nil, false
	}

	var cached cachedCatalog
	if err := json.Unmarshal(data, &cached); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		return nil, false
	}
	s.logger.Debug().Str("key", key).Time("cachedAt", cached.CachedAt).Msg("cache hit")
	return &cached, true
}

// setInCache stores a finished retrieval; failures are logged, never returned
func (s *RetrievalService) setInCache(ctx context.Context, key string, session *RetrievalSession) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(cachedCatalog{
		Dialect:     session.Dialect,
		EndpointURL: session.EndpointURL,
		Total:       session.Total,
		Skipped:     session.Skipped,
		Products:    session.Products,
		CachedAt:    time.Now(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("encode cache entry")
		return
	}
	if err := s.cache.Set(ctx, key, data, s.config.CacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
