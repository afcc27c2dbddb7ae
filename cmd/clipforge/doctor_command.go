package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clipforge/internal/config"
	"clipforge/internal/deps"
	"clipforge/internal/services"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tool availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := deps.CheckBinaries(deps.Requirements(cfg))
			rows := make([][]string, 0, len(statuses))
			missing := 0
			for _, status := range statuses {
				detail := status.Detail
				if status.Available {
					detail = status.Description
				} else if !status.Optional {
					missing++
				}
				rows = append(rows, []string{
					status.Name,
					status.Command,
					yesNo(status.Available),
					detail,
				})
			}
			writeTable(cmd.OutOrStdout(),
				[]string{"Tool", "Command", "Available", "Detail"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft})
			if missing > 0 {
				return fmt.Errorf("%d required tool(s) missing", missing)
			}
			return nil
		},
	}
}

// checkExternalTools fails fast before a job touches the staging directory.
func checkExternalTools(cfg *config.Config) error {
	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		if !status.Available && !status.Optional {
			return services.Wrap(services.ErrExternalTool, "cli", "preflight",
				fmt.Sprintf("%s unavailable: %s", status.Name, status.Detail), nil)
		}
	}
	return nil
}
