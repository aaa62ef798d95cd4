package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/truecost/backend/internal/domain"
)

// harDocument is the subset of the HTTP Archive format the timeline needs
type harDocument struct {
	Log struct {
		Entries []struct {
			StartedDateTime string `json:"startedDateTime"`
			Request         struct {
				Method string `json:"method"`
				URL    string `json:"url"`
			} `json:"request"`
			Initiator *struct {
				Type string `json:"type"`
			} `json:"_initiator"`
		} `json:"entries"`
	} `json:"log"`
}

// HARTimeline reads network activity exported from browser developer tools.
// The file is re-read on every call so a capture that is still being written is picked up.
type HARTimeline struct {
	path string
}

// NewHARTimeline creates a timeline backed by a HAR file
func NewHARTimeline(path string) *HARTimeline {
	return &HARTimeline{path: path}
}

// Entries returns the GET requests recorded in the archive
func (h *HARTimeline) Entries(ctx context.Context) ([]domain.TimelineEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil, fmt.Errorf("read HAR file: %w", err)
	}
	return ParseHAR(data)
}

// ParseHAR extracts GET requests from HAR JSON
func ParseHAR(data []byte) ([]domain.TimelineEntry, error) {
	var doc harDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode HAR: %w", err)
	}

	entries := make([]domain.TimelineEntry, 0, len(doc.Log.Entries))
	for _, e := range doc.Log.Entries {
		if e.Request.Method != "" && e.Request.Method != "GET" {
			continue
		}
		started, _ := time.Parse(time.RFC3339Nano, e.StartedDateTime)
		entry := domain.TimelineEntry{
			URL:       e.Request.URL,
			StartedAt: started,
		}
		if e.Initiator != nil {
			entry.Initiator = e.Initiator.Type
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
