package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
	"github.com/MrSnakeDoc/radio-scheduler/internal/schedule"
)

// tick runs one reconciliation pass. Nothing in here returns an error:
// every failure is logged, counted and retried on a later tick.
func (d *Daemon) tick(ctx context.Context) {
	now := d.clock.Now()
	d.lastTick = now
	d.metrics.RecordTick()

	if err := d.reload(false); err != nil {
		d.log.Error("config reload failed, keeping last known good configuration", logger.Error(err))
	}

	d.decide(now)
	d.reconcile(ctx, now)
	d.heartbeat(now)
	d.publish()
}

// reload loads the registry when its revision moved, or always when force.
// On error the current registry is kept.
func (d *Daemon) reload(force bool) error {
	rev := d.config.Revision()
	if !force && rev == d.revision {
		return nil
	}
	d.revision = rev

	reg, err := d.config.Load()
	d.metrics.RecordReload(err)
	if err != nil {
		d.configErr = err
		return err
	}
	d.configErr = nil
	d.reg = reg

	for _, c := range schedule.Conflicts(reg) {
		d.log.Warn("schedule conflict, latest start wins", logger.String("conflict", c.String()))
	}
	d.log.Info("configuration loaded",
		logger.Int("stations", len(reg.Stations)),
		logger.Int("entries", len(reg.Schedule)),
		logger.Int("news_rules", len(reg.News.Rules)))
	return nil
}

// decide refreshes the desired station and drops an expired override.
func (d *Daemon) decide(now time.Time) {
	skipped, err := d.store.NewsSkipped(now)
	if err != nil {
		d.log.Warn("failed to read news flag", logger.Error(err))
	}
	d.newsSkipped = skipped

	dec := schedule.Decide(d.reg, now, schedule.Inputs{
		Override:    d.override,
		NewsSkipped: skipped,
	})
	if dec.OverrideExpired {
		d.log.Info("manual override ended",
			logger.String("station", d.override.StationID),
			logger.String("reason", dec.ExpiryReason))
		d.setOverride(nil)
	}

	if dec.StationID() != d.decision.StationID() || dec.Source != d.decision.Source {
		d.log.Info("desired station changed",
			logger.String("station", dec.StationID()),
			logger.String("source", string(dec.Source)))
	}
	d.decision = dec
}

func (d *Daemon) setOverride(ov *schedule.Override) {
	d.override = ov
	if err := d.store.SetOverride(ov); err != nil {
		d.log.Warn("failed to persist override", logger.Error(err))
	}
}

// reconcile observes the player and issues at most one command to bring it
// in line with the current decision.
func (d *Daemon) reconcile(ctx context.Context, now time.Time) {
	if d.state == Degraded {
		if now.Before(d.nextAttempt) {
			return
		}
		err := d.player.RestartConnection(ctx)
		d.metrics.RecordPlayerCall("restart", err)
		if err != nil {
			d.degrade(now, err)
			return
		}
	}

	observed, err := d.player.Status(ctx)
	d.metrics.RecordPlayerCall("status", err)
	if err != nil {
		d.degrade(now, err)
		return
	}
	if d.state != Steady {
		if d.state == Degraded {
			d.log.Info("backend reachable again")
		}
		d.backoff.Reset()
		d.nextAttempt = time.Time{}
		d.failures = 0
		d.lastErr = nil
		d.setState(Steady)
	}
	d.observed = observed

	url := d.decision.URL()
	switch {
	case url != "" && (!observed.Playing || observed.CurrentURL != url):
		err = d.player.Play(ctx, url)
		d.metrics.RecordPlayerCall("play", err)
		d.record(domain.ActionPlay, url, d.decision.StationID(), string(d.decision.Source), err)
		if err == nil {
			d.observed.Playing, d.observed.CurrentURL = true, url
			d.log.Info("▶️ playing",
				logger.String("station", d.decision.StationID()),
				logger.String("source", string(d.decision.Source)),
				logger.String("url", url))
		}
	case url == "" && observed.Playing:
		err = d.player.Stop(ctx)
		d.metrics.RecordPlayerCall("stop", err)
		d.record(domain.ActionStop, observed.CurrentURL, "", string(d.decision.Source), err)
		if err == nil {
			d.observed.Playing = false
			d.log.Info("⏹️ stopped, nothing scheduled")
		}
	}

	switch {
	case err == nil:
		d.failures = 0
		d.lastErr = nil
	case errors.Is(err, domain.ErrBackendUnreachable):
		d.degrade(now, err)
	default:
		d.failures++
		d.lastErr = err
		if d.failures == d.opts.FailureThreshold {
			d.log.Error("player keeps failing",
				logger.Int("consecutive_failures", d.failures),
				logger.Error(err))
		} else {
			d.log.Warn("player command failed, retrying next tick",
				logger.Int("consecutive_failures", d.failures),
				logger.Error(err))
		}
	}
}

// degrade enters (or stays in) Degraded and schedules the next reconnect.
// Each failed attempt counts toward the health threshold.
func (d *Daemon) degrade(now time.Time, cause error) {
	if d.state != Degraded {
		d.backoff.Reset()
		d.setState(Degraded)
	}
	wait := d.backoff.NextBackOff()
	d.nextAttempt = now.Add(wait)
	d.observed = domain.UnreachableState()
	d.failures++
	d.lastErr = cause
	if d.failures == d.opts.FailureThreshold {
		d.log.Error("player backend still unreachable",
			logger.Int("consecutive_failures", d.failures),
			logger.Duration("retry_in", wait),
			logger.Error(cause))
		return
	}
	d.log.Warn("player backend unreachable",
		logger.Int("consecutive_failures", d.failures),
		logger.Duration("retry_in", wait),
		logger.Error(cause))
}

// heartbeat logs a liveness line at most once per HeartbeatInterval.
func (d *Daemon) heartbeat(now time.Time) {
	if !d.lastHeartbeat.IsZero() && now.Sub(d.lastHeartbeat) < d.opts.HeartbeatInterval {
		return
	}
	d.lastHeartbeat = now
	d.log.Info("heartbeat",
		logger.String("state", d.state.String()),
		logger.String("desired", d.decision.StationID()),
		logger.String("source", string(d.decision.Source)),
		logger.Bool("backend_reachable", d.observed.BackendReachable),
		logger.Bool("playing", d.observed.Playing))
}
