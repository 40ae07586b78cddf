package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/entity-extractor/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear the extraction cache",
	Long:  "Commands for the persistent cache drivers (sqlite, postgres). The memory and lru drivers live only for one process.",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached extraction",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(cmd.Context(), func(ctx context.Context, store cache.Store) error {
			n, err := store.Len(ctx)
			if err != nil {
				return eris.Wrap(err, "cache clear")
			}
			if err := store.Clear(ctx); err != nil {
				return eris.Wrap(err, "cache clear")
			}
			zap.L().Info("cache cleared", zap.String("driver", cfg.Cache.Driver), zap.Int("removed", n))
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
			return nil
		})
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the number of cached extractions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(cmd.Context(), func(ctx context.Context, store cache.Store) error {
			n, err := store.Len(ctx)
			if err != nil {
				return eris.Wrap(err, "cache stats")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "driver:  %s\nentries: %d\n", cfg.Cache.Driver, n)
			return nil
		})
	},
}

func withCache(ctx context.Context, fn func(context.Context, cache.Store) error) error {
	if err := cfg.Validate("cache"); err != nil {
		return err
	}
	store, err := cache.Open(ctx, cfg.Cache)
	if err != nil {
		return eris.Wrap(err, "open cache")
	}
	defer store.Close() //nolint:errcheck
	return fn(ctx, store)
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd, cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}
