// Package sink propagates visit record changes into the best-effort
// secondary stores: the historical log and the search index. Sink outages
// never reach the primary path.
package sink

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rvaldez/porteria/internal/visit"
)

const operationTimeout = 5 * time.Second

// HistoryRow is the denormalized shape written to the historical log store.
type HistoryRow struct {
	RecordID       int64
	NotificationID string
	CommunityID    int64
	Day            string // YYYY-MM-DD partition column
	HouseNumber    string
	VisitorName    string
	Reason         string
	Status         string
	ResolvedBy     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HistoryStore is the append-only historical log. Upsert is idempotent on
// the record id: last write wins.
type HistoryStore interface {
	Upsert(ctx context.Context, row HistoryRow) error
}

// SearchIndex holds visitor-name and reason text for pending records only.
type SearchIndex interface {
	Index(ctx context.Context, notificationID string, communityID int64, terms string) error
	Remove(ctx context.Context, notificationID string) error
}

// Writer fans record changes out to both sinks asynchronously. Either sink
// may be nil (disabled). All sink errors are caught and logged here.
type Writer struct {
	history HistoryStore
	search  SearchIndex
	wg      sync.WaitGroup
}

// NewWriter creates a sink writer.
func NewWriter(history HistoryStore, search SearchIndex) *Writer {
	return &Writer{history: history, search: search}
}

// RecordCreated propagates a freshly created record.
func (w *Writer) RecordCreated(rec *visit.Record) {
	snapshot := *rec
	w.async(func(ctx context.Context) {
		w.writeHistory(ctx, &snapshot)
		if snapshot.Status == visit.StatusPending {
			w.index(ctx, &snapshot)
		}
	})
}

// RecordUpdated re-writes the history row and reconciles the index: still
// pending re-indexes, resolved removes.
func (w *Writer) RecordUpdated(rec *visit.Record) {
	snapshot := *rec
	w.async(func(ctx context.Context) {
		w.writeHistory(ctx, &snapshot)
		if snapshot.Status == visit.StatusPending {
			w.index(ctx, &snapshot)
		} else {
			w.remove(ctx, &snapshot)
		}
	})
}

// RecordDeleted removes the record from the search index only; the
// historical log retains deleted records for audit.
func (w *Writer) RecordDeleted(rec *visit.Record) {
	snapshot := *rec
	w.async(func(ctx context.Context) {
		w.remove(ctx, &snapshot)
	})
}

// Flush waits for in-flight sink writes. Used by tests and shutdown.
func (w *Writer) Flush() {
	w.wg.Wait()
}

func (w *Writer) async(fn func(ctx context.Context)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (w *Writer) writeHistory(ctx context.Context, rec *visit.Record) {
	if w.history == nil {
		return
	}
	row := HistoryRow{
		RecordID:       rec.ID,
		NotificationID: rec.NotificationID,
		CommunityID:    rec.CommunityID,
		Day:            rec.CreatedAt.UTC().Format("2006-01-02"),
		HouseNumber:    rec.HouseNumber,
		VisitorName:    rec.VisitorName,
		Reason:         rec.Reason,
		Status:         string(rec.Status),
		ResolvedBy:     rec.ResolvedBy,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := w.history.Upsert(ctx, row); err != nil {
		slog.Warn("history sink write failed", "record", rec.ID, "error", err)
	}
}

func (w *Writer) index(ctx context.Context, rec *visit.Record) {
	if w.search == nil || rec.NotificationID == "" {
		return
	}
	if err := w.search.Index(ctx, rec.NotificationID, rec.CommunityID, SearchTerms(rec)); err != nil {
		slog.Warn("search sink index failed", "record", rec.ID, "error", err)
	}
}

func (w *Writer) remove(ctx context.Context, rec *visit.Record) {
	if w.search == nil || rec.NotificationID == "" {
		return
	}
	if err := w.search.Remove(ctx, rec.NotificationID); err != nil {
		slog.Warn("search sink remove failed", "record", rec.ID, "error", err)
	}
}

// SearchTerms builds the normalized text indexed for a record.
func SearchTerms(rec *visit.Record) string {
	return strings.ToLower(strings.TrimSpace(rec.VisitorName + " " + rec.Reason))
}
