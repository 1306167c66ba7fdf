// Package player drives the MPD backend.
package player

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"

	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
)

// Options configures the MPD connection.
type Options struct {
	Network  string        // "tcp" | "unix"
	Addr     string        // "localhost:6600" or a socket path
	Password string        // optional
	Timeout  time.Duration // bound on every backend call, dial included
}

// MPD is a player adapter over one lazily dialed MPD connection.
// Calls are serialized; a dropped or timed out connection is redialed
// on the next call.
type MPD struct {
	opts Options
	log  logger.Logger

	mu   sync.Mutex
	conn *mpd.Client

	dial func(network, addr, password string) (*mpd.Client, error)
}

func NewMPD(opts Options, log logger.Logger) *MPD {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	return &MPD{
		opts: opts,
		log:  log,
		dial: mpd.DialAuthenticated,
	}
}

// Status reports the observed player state. Any failure, protocol errors
// included, is reported as domain.ErrBackendUnreachable.
func (p *MPD) Status(ctx context.Context) (domain.PlayerState, error) {
	var st domain.PlayerState
	err := p.do(ctx, "status", func(c *mpd.Client) error {
		attrs, err := c.Status()
		if err != nil {
			return err
		}
		song, err := c.CurrentSong()
		if err != nil {
			return err
		}
		st = parseState(attrs, song)
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrBackendUnreachable) {
			err = domain.Unreachable(err)
		}
		return domain.UnreachableState(), err
	}
	return st, nil
}

// Play makes url the only queued item and starts it. It is a no-op when
// url is already playing.
func (p *MPD) Play(ctx context.Context, url string) error {
	return p.do(ctx, "play", func(c *mpd.Client) error {
		attrs, err := c.Status()
		if err != nil {
			return err
		}
		if attrs["state"] == "play" {
			if song, err := c.CurrentSong(); err == nil && song["file"] == url {
				return nil
			}
		}
		if err := c.Clear(); err != nil {
			return err
		}
		if err := c.Add(url); err != nil {
			return err
		}
		return c.Play(0)
	})
}

func (p *MPD) Stop(ctx context.Context) error {
	return p.do(ctx, "stop", func(c *mpd.Client) error { return c.Stop() })
}

// SetVolume sets the mixer volume (0-100).
func (p *MPD) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > 100 {
		return fmt.Errorf("%w: volume %d out of range 0-100", domain.ErrInvalidCommand, volume)
	}
	return p.do(ctx, "setvol", func(c *mpd.Client) error { return c.SetVolume(volume) })
}

// RestartConnection drops the current connection and dials a fresh one.
func (p *MPD) RestartConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.dropLocked(nil)
	c, err := p.clientLocked(ctx)
	if err != nil {
		return domain.Unreachable(err)
	}
	if err := call(ctx, c.Ping); err != nil {
		p.dropLocked(nil)
		return domain.Unreachable(err)
	}
	p.log.Info("mpd connection restarted", logger.String("addr", p.opts.Addr))
	return nil
}

func (p *MPD) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

// do runs fn against the connection within the call timeout.
//
// After a failure the connection is pinged: a dead link is reported as
// ErrBackendUnreachable, a live one means MPD refused the command (ErrPlay).
func (p *MPD) do(ctx context.Context, op string, fn func(c *mpd.Client) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.clientLocked(ctx)
	if err != nil {
		return domain.Unreachable(err)
	}

	done := make(chan error, 1)
	go func() { done <- fn(c) }()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		if pingErr := call(ctx, c.Ping); pingErr != nil {
			p.dropLocked(nil)
			return domain.Unreachable(fmt.Errorf("%s: %w", op, err))
		}
		return domain.PlayFailure(op, err)
	case <-ctx.Done():
		p.dropLocked(done)
		return domain.Unreachable(fmt.Errorf("%s: %w", op, ctx.Err()))
	}
}

func (p *MPD) clientLocked(ctx context.Context) (*mpd.Client, error) {
	if p.conn != nil {
		return p.conn, nil
	}

	type result struct {
		c   *mpd.Client
		err error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := p.dial(p.opts.Network, p.opts.Addr, p.opts.Password)
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("dial %s %s: %w", p.opts.Network, p.opts.Addr, r.err)
		}
		p.conn = r.c
		p.log.Debug("mpd connected", logger.String("addr", p.opts.Addr))
		return r.c, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.c != nil {
				_ = r.c.Close()
			}
		}()
		return nil, fmt.Errorf("dial %s %s: %w", p.opts.Network, p.opts.Addr, ctx.Err())
	}
}

// dropLocked forgets the connection. When inflight is non-nil a command
// is still running on it; the close is deferred until that command returns
// because the client is not safe for concurrent use.
func (p *MPD) dropLocked(inflight <-chan error) {
	c := p.conn
	p.conn = nil
	if c == nil {
		return
	}
	if inflight == nil {
		_ = c.Close()
		return
	}
	go func() {
		<-inflight
		_ = c.Close()
	}()
}

// call runs fn, giving up when ctx ends. fn keeps running in the background
// after a timeout; callers drop the connection it uses.
func call(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func parseState(status, song mpd.Attrs) domain.PlayerState {
	st := domain.PlayerState{
		Playing:          status["state"] == "play",
		CurrentURL:       song["file"],
		BackendReachable: true,
		Volume:           -1,
		Bitrate:          status["bitrate"],
		AudioFormat:      status["audio"],
		Title:            song["Title"],
	}
	if st.Title == "" {
		st.Title = song["Name"]
	}
	if v, err := strconv.Atoi(status["volume"]); err == nil {
		st.Volume = v
	}
	return st
}
