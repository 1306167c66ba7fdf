// Package cli implements the radio-scheduler command line.
package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MrSnakeDoc/radio-scheduler/internal/config"
	"github.com/MrSnakeDoc/radio-scheduler/internal/control"
	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
)

// Exit codes
const (
	exitError      = 1
	exitConfig     = 2
	exitNotRunning = 3
)

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, domain.ErrNotRunning):
		return exitNotRunning
	case domain.IsConfigError(err):
		return exitConfig
	default:
		return exitError
	}
}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	v := config.New()

	rootCmd := &cobra.Command{
		Use:               "radio-scheduler",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Plays internet radio stations on MPD following a weekly schedule",
		Long: `radio-scheduler keeps an MPD server playing the station the weekly schedule
asks for. Run "radio-scheduler daemon" as a service; the other commands talk
to the running daemon over its control socket or edit the station document.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config-file", "", "Station and schedule document (YAML)")
	pf.String("state-file", "", "Daemon state database")
	pf.String("control-socket", "", "Control socket path")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.Duration("command-timeout", 0, "How long to wait for the daemon to answer")
	pf.Bool("json", false, "Print machine-readable JSON")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return config.BindFlags(v, cmd.Flags())
	}

	rootCmd.AddCommand(
		newDaemonCmd(v),
		newStatusCmd(v),
		newReloadCmd(v),
		newRestartCmd(v),
		newPlayCmd(v),
		newResumeCmd(v),
		newSkipNewsCmd(v),
		newVolumeCmd(v),
		newHistoryCmd(v),
		newValidateCmd(v),
		newNormalizeCmd(v),
		newSetDefaultCmd(v),
		newVersionCmd(),
	)

	return rootCmd
}

// newClient loads the settings and returns a control socket client.
func newClient(v *viper.Viper) (*control.Client, *config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	return control.NewClient(cfg.ControlSocket, cfg.CommandTimeout+time.Second), cfg, nil
}

func commandContext(cmd *cobra.Command, cfg *config.Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), cfg.CommandTimeout+2*time.Second)
}

func jsonOutput(cmd *cobra.Command) bool {
	on, err := cmd.Flags().GetBool("json")
	return err == nil && on
}
