package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MrSnakeDoc/radio-scheduler/internal/config"
	"github.com/MrSnakeDoc/radio-scheduler/internal/control"
	"github.com/MrSnakeDoc/radio-scheduler/internal/daemon"
	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
	"github.com/MrSnakeDoc/radio-scheduler/internal/logger"
	"github.com/MrSnakeDoc/radio-scheduler/internal/redis"
	redisstore "github.com/MrSnakeDoc/radio-scheduler/internal/store/redis"
)

type commandFunc func(ctx context.Context, c *control.Client, args []string) (daemon.Ack, error)

// newCommandCmd builds a subcommand that sends one control command and
// prints the acknowledgement.
func newCommandCmd(v *viper.Viper, use, short string, args cobra.PositionalArgs, send commandFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := newClient(v)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cfg)
			defer cancel()

			ack, err := send(ctx, client, args)
			printAck(cmd, ack)
			return err
		},
	}
}

func printAck(cmd *cobra.Command, ack daemon.Ack) {
	if ack.Command == "" {
		return
	}
	out := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		writeJSON(out, ack)
		return
	}
	if ack.Message != "" {
		_, _ = fmt.Fprintln(out, ack.Message)
	}
	if ack.Command != daemon.CmdStatus {
		_, _ = fmt.Fprintln(out, RenderSummary(ack.Status))
		return
	}
	_, _ = fmt.Fprintln(out, RenderStatus(ack.Status, time.Now()))
}

func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func newStatusCmd(v *viper.Viper) *cobra.Command {
	cmd := newCommandCmd(v, "status", "Show what the daemon is doing", cobra.NoArgs,
		func(ctx context.Context, c *control.Client, _ []string) (daemon.Ack, error) {
			return c.Status(ctx)
		})

	send := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		fromRedis, _ := cmd.Flags().GetBool("from-redis")
		if !fromRedis {
			return send(cmd, args)
		}
		return mirroredStatus(cmd, v)
	}
	cmd.Flags().Bool("from-redis", false, "Read the status mirrored in Redis instead of the control socket")
	return cmd
}

func newReloadCmd(v *viper.Viper) *cobra.Command {
	return newCommandCmd(v, "reload", "Re-read the station document now", cobra.NoArgs,
		func(ctx context.Context, c *control.Client, _ []string) (daemon.Ack, error) {
			return c.Reload(ctx)
		})
}

func newRestartCmd(v *viper.Viper) *cobra.Command {
	return newCommandCmd(v, "restart", "Reconnect to MPD and re-apply the schedule", cobra.NoArgs,
		func(ctx context.Context, c *control.Client, _ []string) (daemon.Ack, error) {
			return c.Restart(ctx)
		})
}

func newPlayCmd(v *viper.Viper) *cobra.Command {
	return newCommandCmd(v, "play <station-id>", "Play a station until the next schedule change", cobra.ExactArgs(1),
		func(ctx context.Context, c *control.Client, args []string) (daemon.Ack, error) {
			return c.Play(ctx, args[0])
		})
}

func newResumeCmd(v *viper.Viper) *cobra.Command {
	return newCommandCmd(v, "resume", "Drop a manual choice and follow the schedule", cobra.NoArgs,
		func(ctx context.Context, c *control.Client, _ []string) (daemon.Ack, error) {
			return c.Resume(ctx)
		})
}

func newSkipNewsCmd(v *viper.Viper) *cobra.Command {
	return newCommandCmd(v, "skip-news", "Toggle news breaks off or on for today", cobra.NoArgs,
		func(ctx context.Context, c *control.Client, _ []string) (daemon.Ack, error) {
			return c.SkipNews(ctx)
		})
}

func newVolumeCmd(v *viper.Viper) *cobra.Command {
	return newCommandCmd(v, "volume <0-100>", "Set the MPD volume", cobra.ExactArgs(1),
		func(ctx context.Context, c *control.Client, args []string) (daemon.Ack, error) {
			level, err := strconv.Atoi(args[0])
			if err != nil || level < 0 || level > 100 {
				return daemon.Ack{}, fmt.Errorf("%w: volume must be 0..100, got %q", domain.ErrInvalidCommand, args[0])
			}
			return c.Volume(ctx, level)
		})
}

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent play and stop commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			follow, _ := cmd.Flags().GetBool("follow")
			if follow {
				return followEvents(cmd, v)
			}

			limit, _ := cmd.Flags().GetInt("limit")
			client, cfg, err := newClient(v)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cfg)
			defer cancel()

			events, err := client.History(ctx, limit)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				writeJSON(cmd.OutOrStdout(), events)
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), RenderHistory(events))
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Number of events to show")
	cmd.Flags().Bool("follow", false, "Stream new events from the Redis mirror")
	return cmd
}

// openMirror connects to the Redis mirror configured for the daemon.
func openMirror(ctx context.Context, cfg *config.Config) (*redisstore.Mirror, func(), error) {
	if !cfg.MirrorEnabled() {
		return nil, nil, fmt.Errorf("redis mirror is not configured (set RADIOSCHED_REDIS_ADDR)")
	}
	client, err := redis.New(ctx, redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       1,
		ConnectTimeout: cfg.RedisPingTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, logger.New("error", cfg.PrettyLog))
	if err != nil {
		return nil, nil, err
	}
	mirror := redisstore.NewMirror(client, cfg.MirrorTTL, cfg.MirrorHistoryLen)
	return mirror, func() { _ = client.Close() }, nil
}

func mirroredStatus(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cfg)
	defer cancel()

	mirror, closeFn, err := openMirror(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	snap, ok, err := mirror.Status(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no status mirrored in redis", domain.ErrNotRunning)
	}
	if jsonOutput(cmd) {
		writeJSON(cmd.OutOrStdout(), snap)
		return nil
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), RenderStatus(snap, time.Now()))
	return nil
}

func followEvents(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	mirror, closeFn, err := openMirror(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	out := cmd.OutOrStdout()
	asJSON := jsonOutput(cmd)
	return mirror.Subscribe(ctx, func(ev domain.PlayEvent) {
		if asJSON {
			data, _ := json.Marshal(ev)
			_, _ = fmt.Fprintln(out, string(data))
			return
		}
		_, _ = fmt.Fprintln(out, RenderEvent(ev))
	})
}
