package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/MrSnakeDoc/radio-scheduler/internal/daemon"
	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
)

// baseURL is a placeholder host; the transport always dials the socket.
const baseURL = "http://radio-scheduler"

// Client talks to a running daemon over its control socket.
type Client struct {
	http   *http.Client
	socket string
}

func NewClient(socketPath string, timeout time.Duration) *Client {
	dialer := &net.Dialer{Timeout: 2 * time.Second}
	return &Client{
		socket: socketPath,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return dialer.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// RemoteError is a command the daemon rejected.
type RemoteError struct {
	StatusCode int
	Message    string
	Ack        *daemon.Ack // nil when the command never reached the loop
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("daemon: %s (HTTP %d)", e.Message, e.StatusCode)
}

// Unwrap maps the HTTP status back onto the domain sentinels.
func (e *RemoteError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return domain.ErrUnknownStation
	case http.StatusBadRequest:
		return domain.ErrInvalidCommand
	case http.StatusUnprocessableEntity:
		return &domain.ConfigError{Issues: []string{e.Message}}
	case http.StatusBadGateway:
		return domain.ErrBackendUnreachable
	case http.StatusServiceUnavailable:
		return domain.ErrNotRunning
	default:
		return nil
	}
}

func (c *Client) Status(ctx context.Context) (daemon.Ack, error) {
	return c.command(ctx, http.MethodGet, "/status")
}

func (c *Client) Reload(ctx context.Context) (daemon.Ack, error) {
	return c.command(ctx, http.MethodPost, "/reload")
}

func (c *Client) Restart(ctx context.Context) (daemon.Ack, error) {
	return c.command(ctx, http.MethodPost, "/restart")
}

func (c *Client) Play(ctx context.Context, stationID string) (daemon.Ack, error) {
	return c.command(ctx, http.MethodPost, "/play/"+url.PathEscape(stationID))
}

func (c *Client) Resume(ctx context.Context) (daemon.Ack, error) {
	return c.command(ctx, http.MethodPost, "/resume")
}

func (c *Client) SkipNews(ctx context.Context) (daemon.Ack, error) {
	return c.command(ctx, http.MethodPost, "/news/skip")
}

func (c *Client) Volume(ctx context.Context, level int) (daemon.Ack, error) {
	return c.command(ctx, http.MethodPost, "/volume/"+strconv.Itoa(level))
}

// History returns up to limit recent play events, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]domain.PlayEvent, error) {
	var out struct {
		Events []domain.PlayEvent `json:"events"`
	}
	path := "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// Ping reports whether a daemon answers on the socket.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil)
}

func (c *Client) command(ctx context.Context, method, path string) (daemon.Ack, error) {
	var ack daemon.Ack
	err := c.do(ctx, method, path, &ack)
	return ack, err
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: control socket %s: %v", domain.ErrNotRunning, c.socket, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return remoteError(resp.StatusCode, body, out)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// remoteError decodes an error body. When it is a full Ack it is also
// stored into out so callers still see the daemon status.
func remoteError(code int, body []byte, out any) error {
	var ack daemon.Ack
	if err := json.Unmarshal(body, &ack); err != nil {
		return &RemoteError{StatusCode: code, Message: http.StatusText(code)}
	}
	rerr := &RemoteError{StatusCode: code, Message: ack.Error}
	if rerr.Message == "" {
		rerr.Message = http.StatusText(code)
	}
	if ack.Command != "" {
		rerr.Ack = &ack
		if dst, ok := out.(*daemon.Ack); ok {
			*dst = ack
		}
	}
	return rerr
}

// IsNotRunning reports whether err means no daemon answered.
func IsNotRunning(err error) bool {
	return errors.Is(err, domain.ErrNotRunning)
}
