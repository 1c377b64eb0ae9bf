package store

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one persisted suite report. Report holds the JSON rendering so the
// store stays independent of the report type.
type Entry struct {
	ID        string          `json:"id"`
	OK        bool            `json:"ok"`
	Report    json.RawMessage `json:"report"`
	StoredAt  time.Time       `json:"storedAt"`
	ExpiresAt time.Time       `json:"expiresAt,omitzero"`
}

// Expired reports whether the entry outlived its TTL at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// ReportStore keeps the recent report history for monitor mode.
type ReportStore interface {
	Save(ctx context.Context, entry Entry) error
	Latest(ctx context.Context) (Entry, bool, error)
	Get(ctx context.Context, id string) (Entry, bool, error)
	Size(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}

// Options bound the retained history. A zero TTL keeps entries until they are
// pushed out by History; a zero History keeps every entry until it expires.
type Options struct {
	TTL     time.Duration
	History int
}

func stamp(entry Entry, ttl time.Duration, now time.Time) Entry {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = now.UTC()
	}
	if entry.ExpiresAt.IsZero() && ttl > 0 {
		entry.ExpiresAt = entry.StoredAt.Add(ttl)
	}
	return entry
}

func cloneEntry(in Entry) Entry {
	out := in
	if in.Report != nil {
		out.Report = append(json.RawMessage(nil), in.Report...)
	}
	return out
}
