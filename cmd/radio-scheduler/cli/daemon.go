package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MrSnakeDoc/radio-scheduler/internal/app"
	"github.com/MrSnakeDoc/radio-scheduler/internal/config"
	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
)

func newDaemonCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the scheduling daemon",
		Long: `Run the scheduling daemon in the foreground until SIGINT or SIGTERM.

Every setting can also be given as a RADIOSCHED_* environment variable,
e.g. RADIOSCHED_MPD_ADDR=/run/mpd/socket.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			log := logger.NewWithOptions(logger.Options{
				Level:  cfg.LogLevel,
				Pretty: cfg.PrettyLog,
				File:   cfg.LogFile,
			})
			defer func() { _ = log.Sync() }()

			a, err := app.New(cfg, log)
			if err != nil {
				log.Error("❌ radio-scheduler failed to start", logger.Error(err))
				return err
			}
			if err := a.Run(); err != nil {
				log.Error("❌ radio-scheduler stopped with an error", logger.Error(err))
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.String("mpd-network", "", "MPD network (tcp or unix)")
	f.String("mpd-addr", "", "MPD address (host:port or socket path)")
	f.Duration("tick-interval", 0, "Reconciliation interval")
	f.Duration("backend-timeout", 0, "Bound on every MPD call")
	f.Bool("pretty-log", true, "Human-readable colored logs")
	f.String("log-file", "", "Also write logs to this file")
	f.Bool("stop-on-shutdown", true, "Stop playback when the daemon exits")
	f.String("redis-addr", "", "Mirror status and history into this Redis")

	return cmd
}
