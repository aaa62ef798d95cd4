package usecase

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/truecost/backend/internal/domain"
	"github.com/truecost/backend/internal/infrastructure/page"
	"github.com/truecost/backend/internal/observability"
)

// SortEngineConfig holds reconciliation timing and entry markup selectors
type SortEngineConfig struct {
	DebounceWindow time.Duration
	SettleDelay    time.Duration
	Selectors      page.Selectors
}

// DefaultSortEngineConfig returns the default quiet window and settle delay
func DefaultSortEngineConfig() SortEngineConfig {
	return SortEngineConfig{
		DebounceWindow: 300 * time.Millisecond,
		SettleDelay:    50 * time.Millisecond,
		Selectors:      page.DefaultSelectors(),
	}
}

// SortEngine keeps an externally rendered entry list ordered by true unit price.
// The renderer may add or change entries at any time and reports it through
// NotifyMutation; the engine's own reorders are absorbed by the busy flag, which stays
// set until SettleDelay after each reorder.
type SortEngine struct {
	list   domain.EntryList
	config SortEngineConfig
	logger zerolog.Logger

	busy atomic.Bool

	mutex           sync.Mutex
	currentCategory domain.UnitCategory
	originalOrder   map[string]int
	nextIndex       int
	annotated       map[string]bool
	debounce        *time.Timer
	settle          *time.Timer
	settleGen       uint64
	closed          bool
}

// NewSortEngine creates an engine bound to one rendered list
func NewSortEngine(list domain.EntryList, config SortEngineConfig, logger zerolog.Logger) *SortEngine {
	defaults := DefaultSortEngineConfig()
	if config.DebounceWindow <= 0 {
		config.DebounceWindow = defaults.DebounceWindow
	}
	if config.SettleDelay <= 0 {
		config.SettleDelay = defaults.SettleDelay
	}

	return &SortEngine{
		list:      list,
		config:    config,
		logger:    observability.Component(logger, "sort"),
		annotated: make(map[string]bool),
	}
}

// SortBy reorders the rendered entries: entries priced in category first, cheapest true
// unit price first, then the rest. Ties and the rest keep the order recorded before the
// first sort, so sorting by one category and then another never leaks the first order.
func (e *SortEngine) SortBy(category domain.UnitCategory) ([]*domain.Product, error) {
	if category == "" || category == domain.CategoryNone {
		return nil, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidRequest, category)
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.closed {
		return nil, fmt.Errorf("%w: sort engine closed", domain.ErrInvalidRequest)
	}

	e.busy.Store(true)
	defer e.scheduleSettle()

	entries := e.list.Entries()
	e.recordOriginalOrder(entries)

	products := e.normalize(entries)
	rank := make([]int, len(entries))
	for i, entry := range entries {
		rank[i] = e.originalIndex(entry.ID)
	}
	order := orderByUnitPrice(products, category, rank)

	ids := make([]string, len(order))
	sorted := make([]*domain.Product, len(order))
	for i, idx := range order {
		ids[i] = entries[idx].ID
		sorted[i] = products[idx]
	}

	if err := e.list.Reorder(ids); err != nil {
		return nil, fmt.Errorf("reorder entries: %w", err)
	}
	e.currentCategory = category

	e.logger.Debug().
		Str("category", string(category)).
		Int("entries", len(entries)).
		Msg("entries sorted")
	return sorted, nil
}

// Reset restores the order recorded before the first SortBy and clears the category.
// Entries that appeared later follow in their current relative order. It is a no-op
// if no sort was ever performed.
func (e *SortEngine) Reset() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.originalOrder == nil || e.closed {
		return nil
	}

	e.busy.Store(true)
	defer e.scheduleSettle()

	entries := e.list.Entries()
	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}
	sort.SliceStable(ids, func(a, b int) bool {
		return e.originalIndex(ids[a]) < e.originalIndex(ids[b])
	})

	if err := e.list.Reorder(ids); err != nil {
		return fmt.Errorf("restore order: %w", err)
	}
	e.currentCategory = ""
	e.logger.Debug().Int("entries", len(ids)).Msg("original order restored")
	return nil
}

// NotifyMutation reports an out-of-band change to the rendered list. Changes while the
// engine is reordering are ignored; otherwise a quiet window starts after which new
// entries are integrated into the current sort, or annotated when no sort is active.
func (e *SortEngine) NotifyMutation() {
	if e.busy.Load() {
		return
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.closed {
		return
	}

	if e.debounce != nil {
		e.debounce.Stop()
	}
	e.debounce = time.AfterFunc(e.config.DebounceWindow, e.onQuiet)
}

// onQuiet runs once a mutation burst has been quiet for DebounceWindow
func (e *SortEngine) onQuiet() {
	if e.busy.Load() {
		return
	}

	e.mutex.Lock()
	category := e.currentCategory
	closed := e.closed
	e.mutex.Unlock()
	if closed {
		return
	}

	if category != "" {
		if _, err := e.SortBy(category); err != nil {
			e.logger.Warn().Err(err).Msg("re-sort after mutation failed")
		}
		return
	}
	e.AnnotateNew()
}

// AnnotateNew attaches normalized products to entries not annotated yet and returns
// how many were annotated
func (e *SortEngine) AnnotateNew() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	count := 0
	for _, entry := range e.list.Entries() {
		if e.annotated[entry.ID] {
			continue
		}
		e.annotated[entry.ID] = true

		product, err := page.NormalizeEntry(entry.Markup, e.config.Selectors)
		if err != nil {
			logSkipped(e.logger, err)
			continue
		}
		e.list.Annotate(entry.ID, product)
		count++
	}
	return count
}

// CurrentCategory returns the active sort category, or "" when none
func (e *SortEngine) CurrentCategory() domain.UnitCategory {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.currentCategory
}

// Busy reports whether the engine is inside a reorder or its settle period
func (e *SortEngine) Busy() bool {
	return e.busy.Load()
}

// Close stops pending timers; later notifications are ignored
func (e *SortEngine) Close() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.closed = true
	if e.debounce != nil {
		e.debounce.Stop()
	}
	if e.settle != nil {
		e.settle.Stop()
	}
	e.busy.Store(false)
}

// scheduleSettle releases busy after SettleDelay unless a newer reorder happened.
// Must be called with the mutex held.
func (e *SortEngine) scheduleSettle() {
	if e.settle != nil {
		e.settle.Stop()
	}
	e.settleGen++
	gen := e.settleGen
	e.settle = time.AfterFunc(e.config.SettleDelay, func() {
		e.mutex.Lock()
		defer e.mutex.Unlock()
		if gen == e.settleGen {
			e.busy.Store(false)
		}
	})
}

// recordOriginalOrder assigns indices to entries seen for the first time.
// Must be called with the mutex held.
func (e *SortEngine) recordOriginalOrder(entries []domain.Entry) {
	if e.originalOrder == nil {
		e.originalOrder = make(map[string]int, len(entries))
	}
	for _, entry := range entries {
		if _, ok := e.originalOrder[entry.ID]; !ok {
			e.originalOrder[entry.ID] = e.nextIndex
			e.nextIndex++
		}
	}
}

func (e *SortEngine) originalIndex(id string) int {
	if idx, ok := e.originalOrder[id]; ok {
		return idx
	}
	return e.nextIndex
}

// normalize reads every entry's current markup; unreadable entries become nil
func (e *SortEngine) normalize(entries []domain.Entry) []*domain.Product {
	products := make([]*domain.Product, len(entries))
	for i, entry := range entries {
		product, err := page.NormalizeEntry(entry.Markup, e.config.Selectors)
		if err != nil {
			logSkipped(e.logger, err)
			continue
		}
		products[i] = product
	}
	return products
}
