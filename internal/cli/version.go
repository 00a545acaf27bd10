package cli

import (
	"fmt"

	"github.com/eleven-am/squall/pkg/squall"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display Squall version and build information",
		// Skips configuration loading.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), squall.ReadBuild().String())
		},
	}
}
