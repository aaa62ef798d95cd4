package page

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/truecost/backend/internal/domain"
)

// List is an in-memory rendered entry list. It stands in for the host page's list:
// Append and Update play the external renderer, Reorder and Annotate the engine.
// Every change, including the engine's own, is reported to the change hook.
type List struct {
	mutex       sync.RWMutex
	entries     []domain.Entry
	annotations map[string]*domain.Product
	onChange    func()
}

// NewList creates a list holding the given entries in order
func NewList(entries ...domain.Entry) *List {
	l := &List{annotations: make(map[string]*domain.Product)}
	l.entries = append(l.entries, entries...)
	return l
}

// LoadDocument reads every entry matching sel.Entry from a saved listing page.
// Entries without an id attribute get positional ids.
func LoadDocument(r io.Reader, sel Selectors) (*List, error) {
	sel = sel.withDefaults()

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	var (
		entries []domain.Entry
		loadErr error
	)
	doc.Find(sel.Entry).EachWithBreak(func(i int, s *goquery.Selection) bool {
		markup, err := goquery.OuterHtml(s)
		if err != nil {
			loadErr = fmt.Errorf("entry %d: %w", i, err)
			return false
		}
		id := attr(s, sel.IDAttr)
		if id == "" {
			id = fmt.Sprintf("entry-%d", i)
		}
		entries = append(entries, domain.Entry{ID: id, Markup: markup})
		return true
	})
	if loadErr != nil {
		return nil, loadErr
	}

	return NewList(entries...), nil
}

// OnChange registers the hook called after every change to the list
func (l *List) OnChange(hook func()) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.onChange = hook
}

// Entries returns a copy of the entries in render order
func (l *List) Entries() []domain.Entry {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	out := make([]domain.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Reorder re-renders the entries in the given order. Every current entry must appear
// exactly once.
func (l *List) Reorder(ids []string) error {
	l.mutex.Lock()
	byID := make(map[string]domain.Entry, len(l.entries))
	for _, e := range l.entries {
		byID[e.ID] = e
	}
	if len(ids) != len(byID) {
		l.mutex.Unlock()
		return fmt.Errorf("reorder: got %d ids for %d entries", len(ids), len(byID))
	}

	reordered := make([]domain.Entry, 0, len(ids))
	for _, id := range ids {
		e, ok := byID[id]
		if !ok {
			l.mutex.Unlock()
			return fmt.Errorf("reorder: unknown or repeated entry %q", id)
		}
		delete(byID, id)
		reordered = append(reordered, e)
	}
	l.entries = reordered
	hook := l.onChange
	l.mutex.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

// Annotate records the product shown in an entry's badge
func (l *List) Annotate(id string, product *domain.Product) {
	l.mutex.Lock()
	l.annotations[id] = product
	l.mutex.Unlock()
}

// Annotation returns the product annotated on an entry, if any
func (l *List) Annotation(id string) (*domain.Product, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	p, ok := l.annotations[id]
	return p, ok
}

// Append adds entries at the end, as infinite scroll does
func (l *List) Append(entries ...domain.Entry) {
	l.mutex.Lock()
	l.entries = append(l.entries, entries...)
	hook := l.onChange
	l.mutex.Unlock()

	if hook != nil {
		hook()
	}
}

// Update replaces the markup of an existing entry, as a price refresh does
func (l *List) Update(id, markup string) bool {
	l.mutex.Lock()
	found := false
	for i := range l.entries {
		if l.entries[i].ID == id {
			l.entries[i].Markup = markup
			found = true
			break
		}
	}
	hook := l.onChange
	l.mutex.Unlock()

	if found && hook != nil {
		hook()
	}
	return found
}

// IDs returns the entry ids in render order
func (l *List) IDs() []string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	ids := make([]string, len(l.entries))
	for i, e := range l.entries {
		ids[i] = e.ID
	}
	return ids
}

// Render concatenates the entries' markup in render order
func (l *List) Render() string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	var b strings.Builder
	for _, e := range l.entries {
		b.WriteString(e.Markup)
		b.WriteByte('\n')
	}
	return b.String()
}
