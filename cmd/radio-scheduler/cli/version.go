package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/radio-scheduler/internal/version"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}

			switch format {
			case "json":
				writeJSON(cmd.OutOrStdout(), info)
			case "":
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), info.String())
			default:
				return fmt.Errorf("unknown format %q (want json)", format)
			}
			return nil
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
