package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MrSnakeDoc/radio-scheduler/internal/config"
	"github.com/MrSnakeDoc/radio-scheduler/internal/control"
	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
	"github.com/MrSnakeDoc/radio-scheduler/internal/schedule"
	"github.com/MrSnakeDoc/radio-scheduler/internal/sources/stations"
)

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a station document without touching the daemon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			path := cfg.ConfigFile
			if len(args) == 1 {
				path = args[0]
			}

			report, err := validateFile(path, time.Now())
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				writeJSON(cmd.OutOrStdout(), report)
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), RenderValidation(report))
			return nil
		},
	}
}

// ValidationReport summarizes a valid document.
type ValidationReport struct {
	Path       string   `json:"path"`
	Stations   int      `json:"stations"`
	Entries    int      `json:"schedule_entries"`
	NewsRules  int      `json:"news_rules"`
	Default    string   `json:"default,omitempty"`
	Conflicts  []string `json:"conflicts,omitempty"`
	NowKind    string   `json:"now_kind"`
	NowStation string   `json:"now_station,omitempty"`
}

func validateFile(path string, now time.Time) (*ValidationReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s does not exist", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	reg, err := stations.Parse(data)
	if err != nil {
		var ce *domain.ConfigError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}

	report := &ValidationReport{
		Path:      path,
		Stations:  len(reg.Stations),
		Entries:   len(reg.Schedule),
		NewsRules: len(reg.News.Rules),
	}
	if def, ok := reg.Default(); ok {
		report.Default = def.ID
	}
	for _, c := range schedule.Conflicts(reg) {
		report.Conflicts = append(report.Conflicts, c.String())
	}

	res := schedule.Resolve(reg, now)
	report.NowKind = res.Kind.String()
	if res.Kind != schedule.NoStation {
		report.NowStation = res.Station.ID
	}
	return report, nil
}

func newNormalizeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize",
		Short: "Assign missing station ids and rewrite the document canonically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			report, err := stations.NewStore(cfg.ConfigFile).Normalize()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			names := make([]string, 0, len(report.AssignedIDs))
			for name := range report.AssignedIDs {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				_, _ = fmt.Fprintf(out, "assigned id %s to %q\n", report.AssignedIDs[name], name)
			}
			if report.RewrittenRefs > 0 {
				_, _ = fmt.Fprintf(out, "rewrote %d station references to ids\n", report.RewrittenRefs)
			}
			if !report.CanonicalRewritten {
				_, _ = fmt.Fprintln(out, "document already normalized")
				return nil
			}
			_, _ = fmt.Fprintf(out, "saved %s\n", cfg.ConfigFile)
			return notifyReload(cmd, cfg)
		},
	}
}

func newSetDefaultCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "set-default <station-id>",
		Short: "Make a station the fallback when nothing is scheduled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			store := stations.NewStore(cfg.ConfigFile)
			reg, err := store.Load()
			if err != nil {
				return err
			}
			if err := reg.SetDefault(args[0]); err != nil {
				return err
			}
			if err := store.Save(reg); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "default station set to %s\n", args[0])
			return notifyReload(cmd, cfg)
		},
	}
}

// notifyReload asks a running daemon to pick up a saved document. A
// daemon that is not running is not an error.
func notifyReload(cmd *cobra.Command, cfg *config.Config) error {
	client := control.NewClient(cfg.ControlSocket, cfg.CommandTimeout+time.Second)
	ctx, cancel := commandContext(cmd, cfg)
	defer cancel()

	ack, err := client.Reload(ctx)
	switch {
	case control.IsNotRunning(err):
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "daemon not running; changes apply on next start")
		return nil
	case err != nil:
		return fmt.Errorf("daemon rejected the saved document: %w", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), ack.Message)
	return nil
}
