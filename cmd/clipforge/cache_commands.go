package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"clipforge/internal/logging"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the footage cache",
	}

	cacheCmd.AddCommand(newCacheSweepCommand(ctx))
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))

	return cacheCmd
}

func newCacheSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Evict cached footage past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine) error {
				evicted, err := eng.cache.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				if evicted > 0 {
					if err := eng.notify.NotifyCacheSwept(cmd.Context(), evicted); err != nil {
						eng.logger.Warn("notify cache sweep", logging.Error(err))
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Evicted %d asset(s) older than %d days\n",
					evicted, eng.cfg.Cache.RetentionDays)
				return nil
			})
		},
	}
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show footage cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine) error {
				count, err := eng.assets.Count(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Cached assets", strconv.Itoa(count)},
					{"Cache directory", eng.cfg.Paths.CacheDir},
					{"Retention days", strconv.Itoa(eng.cfg.Cache.RetentionDays)},
				}
				writeTable(cmd.OutOrStdout(),
					[]string{"Metric", "Value"}, rows,
					[]columnAlignment{alignLeft, alignLeft})
				return nil
			})
		},
	}
}
