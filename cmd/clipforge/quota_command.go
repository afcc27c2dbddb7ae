package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newQuotaCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show the credential/model quota matrix",
		Long: `Quota lists every configured API key and model combination with its
limits. Usage counters are tracked per process, so a fresh invocation shows
the full quota.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine) error {
				statuses := eng.scheduler.QuotaStatus()
				if len(statuses) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No API keys configured (set gemini.api_keys or CLIPFORGE_GEMINI_API_KEYS)")
					return nil
				}

				rows := make([][]string, 0, len(statuses))
				for _, status := range statuses {
					cooldown := "-"
					if until := status.Snapshot.CooldownUntil; !until.IsZero() && until.After(time.Now()) {
						cooldown = time.Until(until).Round(time.Second).String()
					}
					rows = append(rows, []string{
						status.Pair.ID(),
						fmt.Sprintf("%d/%d", status.Snapshot.DailyCount, eng.cfg.Gemini.DailyLimit),
						strconv.Itoa(status.Snapshot.WindowReqs),
						strconv.Itoa(status.Snapshot.WindowTokens),
						yesNo(status.Snapshot.Available),
						cooldown,
					})
				}
				writeTable(cmd.OutOrStdout(),
					[]string{"Pair", "Daily", "Window Reqs", "Window Tokens", "Available", "Cooldown"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft, alignRight})
				return nil
			})
		},
	}
}
