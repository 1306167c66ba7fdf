// Package state persists the daemon's own small state across restarts:
// the manual override, the "no news today" flag and the play history.
package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
	"github.com/MrSnakeDoc/radio-scheduler/internal/schedule"
)

// Bucket names
var (
	bucketOverride = []byte("override")
	bucketNews     = []byte("news")
	bucketHistory  = []byte("history")
)

var (
	keyOverride = []byte("current")
	keySkipDate = []byte("skip_date")
)

// dateLayout keys the "no news today" flag by calendar date.
const dateLayout = "2006-01-02"

// Store is a bbolt-backed state store. All methods are safe for concurrent use.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the state database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketOverride, bucketNews, bucketHistory} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create state buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Manual override ===

// Override returns the persisted override, or nil.
func (s *Store) Override() (*schedule.Override, error) {
	var ov *schedule.Override
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketOverride).Get(keyOverride)
		if v == nil {
			return nil
		}
		ov = &schedule.Override{}
		return json.Unmarshal(v, ov)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read override: %w", err)
	}
	return ov, nil
}

// SetOverride stores ov; nil clears it.
func (s *Store) SetOverride(ov *schedule.Override) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOverride)
		if ov == nil {
			return b.Delete(keyOverride)
		}
		data, err := json.Marshal(ov)
		if err != nil {
			return err
		}
		return b.Put(keyOverride, data)
	})
	if err != nil {
		return fmt.Errorf("failed to write override: %w", err)
	}
	return nil
}

// === No news today ===

// NewsSkipped reports whether news is suppressed for the calendar day of t.
func (s *Store) NewsSkipped(t time.Time) (bool, error) {
	var skipped bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketNews).Get(keySkipDate)
		skipped = string(v) == t.Format(dateLayout)
		return nil
	})
	return skipped, err
}

// SetNewsSkipped sets or clears the flag for the calendar day of t.
func (s *Store) SetNewsSkipped(t time.Time, skipped bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNews)
		if !skipped {
			return b.Delete(keySkipDate)
		}
		return b.Put(keySkipDate, []byte(t.Format(dateLayout)))
	})
}

// === Play history ===

// AppendHistory stores ev under a time-ordered UUIDv7 key, filling ev.ID.
func (s *Store) AppendHistory(ev *domain.PlayEvent) error {
	if ev.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate event id: %w", err)
		}
		ev.ID = id.String()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHistory).Put([]byte(historyKey(ev.At, ev.ID)), data)
	})
}

// historyKey sorts by time first; the id breaks ties.
func historyKey(at time.Time, id string) string {
	return at.UTC().Format("20060102T150405.000000000") + "/" + id
}

// RecentHistory returns up to limit events, newest first.
func (s *Store) RecentHistory(limit int) ([]domain.PlayEvent, error) {
	var out []domain.PlayEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()
		for k, v := c.Last(); k != nil && (limit <= 0 || len(out) < limit); k, v = c.Prev() {
			var ev domain.PlayEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("corrupt history entry %s: %w", k, err)
			}
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}

// PruneHistory deletes events recorded before cutoff and returns how many.
func (s *Store) PruneHistory(cutoff time.Time) (int, error) {
	limit := []byte(historyKey(cutoff, ""))
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k, limit) < 0; k, _ = c.First() {
			if err := c.Delete(); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return deleted, fmt.Errorf("failed to prune history: %w", err)
	}
	return deleted, nil
}
