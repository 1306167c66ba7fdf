// Package redis mirrors the daemon status and play history into Redis so
// dashboards and other hosts can read them without the control socket.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/radio-scheduler/internal/daemon"
	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
)

const (
	// DefaultStatusTTL bounds how long a snapshot survives a dead daemon.
	DefaultStatusTTL = 2 * time.Minute
	// DefaultHistoryLen caps the mirrored history list.
	DefaultHistoryLen = 100
)

// Mirror writes daemon state into Redis.
type Mirror struct {
	client     *redis.Client
	ttl        time.Duration
	historyLen int64
}

// NewMirror creates a mirror. Zero values fall back to the defaults.
func NewMirror(client *redis.Client, ttl time.Duration, historyLen int) *Mirror {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	if historyLen <= 0 {
		historyLen = DefaultHistoryLen
	}
	return &Mirror{
		client:     client,
		ttl:        ttl,
		historyLen: int64(historyLen),
	}
}

// PublishStatus stores the snapshot under KeyStatus with the mirror TTL.
func (m *Mirror) PublishStatus(ctx context.Context, snap daemon.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := m.client.Set(ctx, StatusKey(), data, m.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

// Status returns the mirrored snapshot. ok is false when none is stored or
// it expired.
func (m *Mirror) Status(ctx context.Context) (snap daemon.Snapshot, ok bool, err error) {
	data, err := m.client.Get(ctx, StatusKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return daemon.Snapshot{}, false, nil
		}
		return daemon.Snapshot{}, false, fmt.Errorf("failed to get status: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return daemon.Snapshot{}, false, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return snap, true, nil
}

// PushEvents appends events (oldest first) to the history list, trims it
// and publishes each one on ChannelEvents, in a single round trip.
func (m *Mirror) PushEvents(ctx context.Context, events []domain.PlayEvent) error {
	if len(events) == 0 {
		return nil
	}

	pipe := m.client.TxPipeline()
	for i := range events {
		data, err := json.Marshal(&events[i])
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", events[i].ID, err)
		}
		pipe.LPush(ctx, HistoryKey(), data)
		pipe.Publish(ctx, EventsChannel(), data)
	}
	pipe.LTrim(ctx, HistoryKey(), 0, m.historyLen-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push events: %w", err)
	}
	return nil
}

// History returns up to limit mirrored events, newest first.
func (m *Mirror) History(ctx context.Context, limit int) ([]domain.PlayEvent, error) {
	if limit <= 0 || int64(limit) > m.historyLen {
		limit = int(m.historyLen)
	}
	raw, err := m.client.LRange(ctx, HistoryKey(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	events := make([]domain.PlayEvent, 0, len(raw))
	for _, item := range raw {
		var ev domain.PlayEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			// Skip entries written by an incompatible version.
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Subscribe listens for mirrored play events until ctx is done.
func (m *Mirror) Subscribe(ctx context.Context, fn func(domain.PlayEvent)) error {
	sub := m.client.Subscribe(ctx, EventsChannel())
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev domain.PlayEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			fn(ev)
		}
	}
}
