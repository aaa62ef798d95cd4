package usecase

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/truecost/backend/internal/domain"
)

// SessionState is the retrieval state machine position
type SessionState string

const (
	StateIdle                   SessionState = "idle"
	StateFetchingFirstPage      SessionState = "fetching_first_page"
	StateFetchingRemainingPages SessionState = "fetching_remaining_pages"
	StateFallbackDialect        SessionState = "fallback_dialect"
	StateDone                   SessionState = "done"
	StateAborted                SessionState = "aborted"
)

// RetrievalSession tracks one Retrieve call. It is owned by that call and discarded
// when it returns.
type RetrievalSession struct {
	ID          string
	PageURL     string
	EndpointURL string
	Dialect     domain.Dialect
	State       SessionState
	Cursor      int // records received so far
	Total       int // 0 until the first page resolves
	Products    []*domain.Product
	Skipped     int
	History     []SessionState

	logger zerolog.Logger
}

func newRetrievalSession(pageURL string, logger zerolog.Logger) *RetrievalSession {
	id := uuid.NewString()
	return &RetrievalSession{
		ID:      id,
		PageURL: pageURL,
		State:   StateIdle,
		History: []SessionState{StateIdle},
		logger:  logger.With().Str("session", id).Logger(),
	}
}

func (s *RetrievalSession) transition(state SessionState) {
	s.logger.Debug().
		Str("from", string(s.State)).
		Str("to", string(state)).
		Str("dialect", string(s.Dialect)).
		Int("cursor", s.Cursor).
		Int("total", s.Total).
		Msg("session transition")
	s.State = state
	s.History = append(s.History, state)
}

// begin starts (or restarts, after a fallback) fetching from one endpoint
func (s *RetrievalSession) begin(dialect domain.Dialect, endpoint string) {
	s.Dialect = dialect
	s.EndpointURL = endpoint
	s.Cursor = 0
	s.Total = 0
	s.Products = nil
	s.Skipped = 0
	s.transition(StateFetchingFirstPage)
}
