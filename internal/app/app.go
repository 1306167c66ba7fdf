// Package app wires the daemon, its backends and the control socket.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/radio-scheduler/internal/clock"
	"github.com/MrSnakeDoc/radio-scheduler/internal/config"
	"github.com/MrSnakeDoc/radio-scheduler/internal/control"
	"github.com/MrSnakeDoc/radio-scheduler/internal/control/deps"
	"github.com/MrSnakeDoc/radio-scheduler/internal/daemon"
	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
	"github.com/MrSnakeDoc/radio-scheduler/internal/player"
	"github.com/MrSnakeDoc/radio-scheduler/internal/redis"
	"github.com/MrSnakeDoc/radio-scheduler/internal/scheduler"
	"github.com/MrSnakeDoc/radio-scheduler/internal/sources/stations"
	redisstore "github.com/MrSnakeDoc/radio-scheduler/internal/store/redis"
	"github.com/MrSnakeDoc/radio-scheduler/internal/store/state"
	"github.com/MrSnakeDoc/radio-scheduler/internal/utils"
	"github.com/MrSnakeDoc/radio-scheduler/internal/version"
)

type App struct {
	cfg      *config.Config
	logger   logger.Logger
	stations *stations.Store
	state    *state.Store
	player   *player.MPD
	daemon   *daemon.Daemon
	server   *control.Server
	pruner   *scheduler.HistoryPruner
}

// New opens the local stores and builds every component. Nothing talks
// to MPD or Redis until Run.
func New(cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	loggerClient.Debugf("settings: %+v", cfg.Redacted())

	stationStore := stations.NewStore(cfg.ConfigFile)
	backupInvalidConfig(stationStore, loggerClient)

	stateStore, err := state.Open(cfg.StateFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	loggerClient.Info("state store opened", logger.String("path", cfg.StateFile))

	mpdPlayer := player.NewMPD(player.Options{
		Network:  cfg.MPDNetwork,
		Addr:     cfg.MPDAddr,
		Password: cfg.MPDPassword,
		Timeout:  cfg.BackendTimeout,
	}, loggerClient.Named("player"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := daemon.DefaultOptions()
	opts.TickInterval = cfg.TickInterval
	opts.BackoffInitial = cfg.BackoffInitial
	opts.BackoffMax = cfg.BackoffMax
	opts.BackoffJitter = cfg.BackoffJitter
	opts.FailureThreshold = cfg.FailureThreshold
	opts.StopOnShutdown = cfg.StopOnShutdown
	opts.ShutdownTimeout = cfg.ShutdownTimeout

	d := daemon.New(opts, stationStore, mpdPlayer, stateStore, clock.System{},
		loggerClient.Named("daemon"), daemon.NewMetrics(registry))

	// Dependencies passed to routes.
	dd := deps.Deps{
		Logger:         loggerClient,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		TimeNow:        time.Now,
		Daemon:         d,
		History:        stateStore,
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CommandTimeout: cfg.CommandTimeout,
	}

	pruner := scheduler.NewHistoryPruner(
		stateStore,
		clock.System{},
		loggerClient,
		cfg.HistoryGCInterval,
		cfg.HistoryRetention,
	)

	return &App{
		cfg:      cfg,
		logger:   loggerClient,
		stations: stationStore,
		state:    stateStore,
		player:   mpdPlayer,
		daemon:   d,
		server:   control.New(cfg.ControlSocket, loggerClient.Named("control"), dd),
		pruner:   pruner,
	}, nil
}

// backupInvalidConfig keeps a copy of a document the daemon cannot load,
// so that a later save does not silently discard it.
func backupInvalidConfig(store *stations.Store, log logger.Logger) {
	_, err := store.Load()
	var ce *domain.ConfigError
	if !errors.As(err, &ce) {
		return
	}
	backup, bErr := store.Backup()
	if bErr != nil {
		log.Error("invalid configuration could not be backed up", logger.Error(bErr))
		return
	}
	log.Warn("invalid configuration backed up",
		logger.String("backup", backup),
		logger.Error(err))
}

// Run serves until SIGINT/SIGTERM, then shuts everything down.
func (a *App) Run() error {
	a.logger.Infof("🚀 Starting radio-scheduler %s on %s", version.Version, a.cfg.ControlSocket)
	a.logger.Infof("radio-scheduler %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	defer utils.CloseLogged(a.logger, "state store", a.state)
	defer utils.CloseLogged(a.logger, "mpd connection", a.player)

	// Claim the socket first: a second daemon must not touch the player.
	ln, err := control.Listen(a.cfg.ControlSocket)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mirror, redisClient := a.startMirror(ctx)
	if redisClient != nil {
		defer utils.CloseLogged(a.logger, "redis", redisClient)
	}

	a.pruner.Start(ctx)
	a.logger.Info("history pruner started",
		logger.Duration("interval", a.cfg.HistoryGCInterval),
		logger.Duration("retention", a.cfg.HistoryRetention))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.daemon.Run(gctx)
	})

	g.Go(func() error {
		if err := a.server.Serve(ln); err != nil {
			return fmt.Errorf("control server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("⏳ Shutting down gracefully...")
		// Let the loop finish its tick and stop the player before the
		// socket goes away.
		<-a.daemon.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := a.server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop control server: %w", err)
		}
		return nil
	})

	if a.cfg.WatchConfig {
		g.Go(func() error {
			if err := a.stations.Watch(gctx, a.daemon.Wakeup(), a.logger.Named("config")); err != nil {
				// The loop still polls the file revision every tick.
				a.logger.Warn("configuration watcher stopped", logger.Error(err))
			}
			return nil
		})
	}

	if a.cfg.IdleWatch {
		g.Go(func() error {
			if err := a.player.Watch(gctx, a.daemon.Wakeup()); err != nil {
				a.logger.Warn("mpd idle watcher stopped", logger.Error(err))
			}
			return nil
		})
	}

	err = g.Wait()

	a.pruner.Stop()
	if mirror != nil {
		mirror.Stop()
	}

	if err != nil {
		return err
	}
	a.logger.Info("✅ radio-scheduler stopped cleanly")
	return nil
}

// startMirror connects to Redis and starts the status mirror. Any failure
// only disables the mirror.
func (a *App) startMirror(ctx context.Context) (*scheduler.StatusMirror, *goredis.Client) {
	if !a.cfg.MirrorEnabled() {
		a.logger.Info("redis not configured, status mirror disabled")
		return nil, nil
	}

	client, err := redis.New(ctx, redis.ConnectOptions{
		Addr:           a.cfg.RedisAddr,
		User:           a.cfg.RedisUser,
		Password:       a.cfg.RedisPassword,
		RedisDB:        a.cfg.RedisDB,
		DialTimeout:    a.cfg.RedisDT,
		ReadTimeout:    a.cfg.RedisRT,
		WriteTimeout:   a.cfg.RedisWT,
		PoolSize:       a.cfg.RedisPoolSize,
		ConnectTimeout: a.cfg.RedisConnectTimeout,
		RetryInterval:  a.cfg.RedisRetryInterval,
		MaxWait:        a.cfg.RedisMaxWait,
		PingTimeout:    a.cfg.RedisPingTimeout,
		WarnThreshold:  a.cfg.RedisWarnThreshold,
	}, a.logger.Named("redis"))
	if err != nil {
		return nil, nil
	}

	mirror := scheduler.NewStatusMirror(
		a.daemon,
		a.state,
		redisstore.NewMirror(client, a.cfg.MirrorTTL, a.cfg.MirrorHistoryLen),
		a.logger.Named("mirror"),
		a.cfg.MirrorInterval,
		a.cfg.MirrorHistoryLen,
	)
	// Detached so the final sync after shutdown still publishes.
	mirror.Start(context.WithoutCancel(ctx))
	a.logger.Info("status mirror started",
		logger.String("addr", a.cfg.RedisAddr),
		logger.Duration("interval", a.cfg.MirrorInterval))
	return mirror, client
}
