package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
	"github.com/MrSnakeDoc/radio-scheduler/internal/schedule"
)

// handle applies one command on the loop goroutine.
func (d *Daemon) handle(ctx context.Context, req request) (Ack, error) {
	cmd := req.cmd
	msg, err := d.apply(ctx, cmd)
	d.publish()
	d.metrics.RecordCommand(cmd.Kind, err)

	ack := Ack{
		ID:      req.id,
		Command: cmd.Kind,
		OK:      err == nil,
		Message: msg,
		Status:  d.Snapshot(),
	}
	if err != nil {
		ack.Error = err.Error()
		d.log.Warn("control command rejected",
			logger.String("command", string(cmd.Kind)),
			logger.String("id", req.id),
			logger.Error(err))
	} else if cmd.Kind != CmdStatus {
		d.log.Info("control command applied",
			logger.String("command", string(cmd.Kind)),
			logger.String("id", req.id),
			logger.String("result", msg))
	}
	return ack, err
}

func (d *Daemon) apply(ctx context.Context, cmd Command) (string, error) {
	switch cmd.Kind {
	case CmdStatus:
		return "", nil

	case CmdReload:
		if err := d.reload(true); err != nil {
			return "", err
		}
		d.tick(ctx)
		return fmt.Sprintf("configuration reloaded (%d stations)", len(d.reg.Stations)), nil

	case CmdRestart:
		err := d.player.RestartConnection(ctx)
		d.metrics.RecordPlayerCall("restart", err)
		if err != nil {
			d.degrade(d.clock.Now(), err)
			return "", err
		}
		if d.state == Degraded {
			d.log.Info("backend reachable again")
			d.backoff.Reset()
			d.nextAttempt = time.Time{}
			d.failures = 0
			d.setState(Steady)
		}
		d.tick(ctx)
		return "player connection restarted", nil

	case CmdPlay:
		st, ok := d.reg.Lookup(cmd.StationID)
		if !ok {
			return "", fmt.Errorf("%w: %q", domain.ErrUnknownStation, cmd.StationID)
		}
		ov := schedule.NewOverride(d.reg, st.ID, d.clock.Now())
		d.setOverride(&ov)
		d.tick(ctx)
		return fmt.Sprintf("playing %s until the next schedule change", st.Name), nil

	case CmdResume:
		if d.override == nil {
			d.tick(ctx)
			return "no manual override active", nil
		}
		d.setOverride(nil)
		d.tick(ctx)
		return "schedule resumed", nil

	case CmdSkipNews:
		now := d.clock.Now()
		skip := !d.newsSkipped
		if err := d.store.SetNewsSkipped(now, skip); err != nil {
			return "", fmt.Errorf("persist news flag: %w", err)
		}
		d.tick(ctx)
		if skip {
			return "news breaks skipped for today", nil
		}
		return "news breaks re-enabled for today", nil

	case CmdVolume:
		err := d.player.SetVolume(ctx, cmd.Volume)
		d.metrics.RecordPlayerCall("setvol", err)
		if err != nil {
			return "", err
		}
		d.observed.Volume = cmd.Volume
		return fmt.Sprintf("volume set to %d", cmd.Volume), nil

	default:
		return "", fmt.Errorf("%w: unknown command %q", domain.ErrInvalidCommand, cmd.Kind)
	}
}
