package player

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fhs/gompd/v2/mpd"

	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
)

// Watch keeps an idle connection on the player and mixer subsystems and
// signals changed (non-blocking) each time MPD reports one. The idle link
// is redialed with backoff when it drops. Watch returns nil once ctx ends.
func (p *MPD) Watch(ctx context.Context, changed chan<- struct{}) error {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         30 * time.Second,
	}
	b.Reset()

	for {
		w, err := mpd.NewWatcher(p.opts.Network, p.opts.Addr, p.opts.Password, "player", "mixer")
		if err != nil {
			wait := b.NextBackOff()
			p.log.Debug("mpd idle watcher dial failed",
				logger.Error(err),
				logger.Duration("retry_in", wait),
			)
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}

		b.Reset()
		p.log.Debug("mpd idle watcher connected", logger.String("addr", p.opts.Addr))

		err = forward(ctx, w, changed)
		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		p.log.Warn("mpd idle watcher lost", logger.Error(err))
		if !sleep(ctx, b.NextBackOff()) {
			return nil
		}
	}
}

var errWatcherClosed = errors.New("idle watcher closed")

// forward relays watcher events until ctx ends or the watcher fails.
func forward(ctx context.Context, w *mpd.Watcher, changed chan<- struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-w.Event:
			if !ok {
				return errWatcherClosed
			}
			select {
			case changed <- struct{}{}:
			default:
			}
		case err, ok := <-w.Error:
			if !ok {
				return errWatcherClosed
			}
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
