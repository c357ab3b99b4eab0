// Package aggregate merges per-batch crawl output into a deduplicated report.
package aggregate

import (
	"fmt"
	"maps"
	"time"

	"github.com/JakeFAU/creator-crawler/internal/clock/beijing"
	"github.com/JakeFAU/creator-crawler/internal/crawler"
)

// Aggregator accumulates content records in first-seen order, keyed by note ID,
// along with the errors of batches that failed. It is not safe for concurrent use.
type Aggregator struct {
	loc     *time.Location
	seen    map[string]struct{}
	records []crawler.ContentRecord
	errors  map[string]string
}

// New creates an Aggregator rendering publish times in loc.
func New(loc *time.Location) *Aggregator {
	if loc == nil {
		loc = beijing.Location(beijing.DefaultOffsetHours)
	}
	return &Aggregator{
		loc:    loc,
		seen:   make(map[string]struct{}),
		errors: make(map[string]string),
	}
}

// Ingest projects and keeps every note whose ID has not been seen before.
// Notes without an ID are counted as skipped.
func (a *Aggregator) Ingest(notes []crawler.RawNote) (accepted, skipped int) {
	for _, note := range notes {
		if note.NoteID == "" {
			skipped++
			continue
		}
		if _, dup := a.seen[note.NoteID]; dup {
			skipped++
			continue
		}
		a.seen[note.NoteID] = struct{}{}
		a.records = append(a.records, a.project(note))
		accepted++
	}
	return accepted, skipped
}

// RecordError stores message under key. A repeated key keeps both messages.
func (a *Aggregator) RecordError(key, message string) {
	if prev, ok := a.errors[key]; ok && prev != message {
		message = fmt.Sprintf("%s; %s", prev, message)
	}
	a.errors[key] = message
}

// Len reports the number of distinct records accepted so far.
func (a *Aggregator) Len() int {
	return len(a.records)
}

// Finalize returns copies of the accepted records and the error map.
func (a *Aggregator) Finalize() ([]crawler.ContentRecord, map[string]string) {
	records := make([]crawler.ContentRecord, len(a.records))
	copy(records, a.records)
	return records, maps.Clone(a.errors)
}

func (a *Aggregator) project(note crawler.RawNote) crawler.ContentRecord {
	return crawler.ContentRecord{
		NoteID:          note.NoteID,
		NoteTitle:       note.Title,
		NoteURL:         note.NoteURL,
		NotePublishTime: beijing.Format(note.Time, a.loc),
		KolID:           note.UserID,
		LikeNum:         note.LikedCount,
		FavNum:          note.CollectedCount,
		CmtNum:          note.CommentCount,
		ShareNum:        note.ShareCount,
	}
}
