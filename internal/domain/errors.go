package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork is returned when the catalog endpoint answers with a non-success status
	// or cannot be reached
	ErrNetwork = errors.New("catalog request failed")

	// ErrStructural is returned when an expected results container or field is absent
	ErrStructural = errors.New("unexpected catalog response structure")

	// ErrNoEndpoint is returned when no usable catalog endpoint could be discovered
	ErrNoEndpoint = errors.New("no catalog endpoint discovered")

	// ErrRecordParse is matched by every *RecordParseError
	ErrRecordParse = errors.New("malformed record")

	// ErrPriceParse marks currency text that could not be parsed
	ErrPriceParse = errors.New("unparsable price")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when cache service is unavailable
	ErrCacheUnavailable = errors.New("cache service unavailable")
)

// RecordParseError describes one record that could not be normalized.
// Callers log it and skip the record.
type RecordParseError struct {
	Source Source
	Index  int
	Reason string
}

func (e *RecordParseError) Error() string {
	return fmt.Sprintf("%s record %d: %s", e.Source, e.Index, e.Reason)
}

// Is lets errors.Is(err, ErrRecordParse) match any RecordParseError
func (e *RecordParseError) Is(target error) bool {
	return target == ErrRecordParse
}

// NewRecordParseError creates a RecordParseError with a formatted reason
func NewRecordParseError(source Source, index int, format string, args ...any) *RecordParseError {
	return &RecordParseError{
		Source: source,
		Index:  index,
		Reason: fmt.Sprintf(format, args...),
	}
}

// RetrievalError wraps a network or structural failure of one dialect
type RetrievalError struct {
	Dialect Dialect
	Kind    error // ErrNetwork or ErrStructural
	Status  int   // HTTP status when known
	URL     string
	Err     error
}

func (e *RetrievalError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Dialect, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RetrievalError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NetworkError builds a RetrievalError of kind ErrNetwork
func NetworkError(dialect Dialect, url string, status int, err error) *RetrievalError {
	return &RetrievalError{Dialect: dialect, Kind: ErrNetwork, Status: status, URL: url, Err: err}
}

// StructuralError builds a RetrievalError of kind ErrStructural
func StructuralError(dialect Dialect, url string, err error) *RetrievalError {
	return &RetrievalError{Dialect: dialect, Kind: ErrStructural, URL: url, Err: err}
}
