package deps

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/radio-scheduler/internal/daemon"
	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
)

// Commander is the daemon side of the control channel.
type Commander interface {
	Submit(ctx context.Context, cmd daemon.Command) (daemon.Ack, error)
	Snapshot() daemon.Snapshot
}

// HistoryReader lists recent play events, newest first.
type HistoryReader interface {
	RecentHistory(limit int) ([]domain.PlayEvent, error)
}

type Deps struct {
	Logger         logger.Logger
	StartTime      time.Time
	Version        string
	Commit         string
	BuildDate      string
	GoVersion      string
	TimeNow        func() time.Time // for testing, defaults to time.Now
	Daemon         Commander        // reconciliation loop
	History        HistoryReader    // play history (nil disables /history)
	Metrics        http.Handler     // prometheus exposition (nil disables /metrics)
	CommandTimeout time.Duration    // bound on waiting for the loop to answer
}

// Now returns the current time through TimeNow when set.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
