// Package meetings defines the meeting records the pipeline consumes and
// the sources that list them. A meeting is one scraped recording: an ID for
// progress tracking plus the playlist URL its media lives behind.
package meetings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/heyjunin/hlscaps/pkg/errors"
)

// Meeting is one recording to process.
type Meeting struct {
	// ID uniquely identifies the meeting across runs, e.g. "mtg-2024-01-09".
	ID string `json:"id"`
	// Title is the human-readable meeting name.
	Title string `json:"title,omitempty"`
	// Date is the meeting date as scraped, typically YYYY-MM-DD.
	Date string `json:"date,omitempty"`
	// ManifestURL points at the recording's HLS playlist (master or media).
	ManifestURL string `json:"manifest_url"`
	// AgendaURL is the scraped agenda page, carried through for reference.
	AgendaURL string `json:"agenda_url,omitempty"`
}

// Source lists meetings to process.
type Source interface {
	List(ctx context.Context) ([]Meeting, error)
}

// FileSource reads a JSON catalog file holding an array of meetings.
type FileSource string

// List parses the catalog and validates that every record carries the two
// fields the pipeline cannot work without.
func (f FileSource) List(ctx context.Context) ([]Meeting, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, errors.Wrap(err, errors.SystemError, "failed to read meeting catalog")
	}

	var list []Meeting
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, errors.Wrap(err, errors.ValidationError, "failed to parse meeting catalog")
	}

	for i, m := range list {
		if m.ID == "" {
			return nil, errors.New(errors.ValidationError, "meeting catalog entry missing id",
				fmt.Sprintf("entry %d of %d", i+1, len(list)))
		}
		if m.ManifestURL == "" {
			return nil, errors.New(errors.ValidationError, "meeting catalog entry missing manifest_url",
				fmt.Sprintf("entry %d (%s)", i+1, m.ID))
		}
	}
	return list, nil
}

// StaticSource serves a fixed list, mostly for tests and examples.
type StaticSource []Meeting

// List returns a copy of the fixed list.
func (s StaticSource) List(ctx context.Context) ([]Meeting, error) {
	out := make([]Meeting, len(s))
	copy(out, s)
	return out, nil
}
