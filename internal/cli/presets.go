package cli

import (
	"fmt"
	"strings"

	"github.com/nextconvert/reelmix/internal/modules/montage"
	"github.com/spf13/cobra"
)

func newPresetsCommand(build pipelineFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List render presets and the option keys accepted by --set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			presets, _, logger, err := setup(cmd, build)
			if err != nil {
				return err
			}
			defer logger.Sync()

			out := cmd.OutOrStdout()
			for _, p := range presets.List() {
				fmt.Fprintf(out, "%-10s %-6s %s\n", p.ID, p.Mode, p.Description)
			}
			fmt.Fprintf(out, "\noptions: %s\n", strings.Join(montage.OptionNames(), ", "))
			return nil
		},
	}
}
