package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"bgmrules/internal/catalog"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the Bangumi response cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCachePurgeCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, warn, err := openCatalogCache(ctx)
			if warn != "" {
				fmt.Fprintln(cmd.OutOrStdout(), warn)
			}
			if err != nil || cache == nil {
				return err
			}
			defer cache.Close()

			stats, err := cache.Stats(commandBaseContext(cmd))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Path:    %s\n", stats.Path)
			fmt.Fprintf(out, "Entries: %d (%d expired)\n", stats.Entries, stats.Expired)
			fmt.Fprintf(out, "Size:    %s\n", humanize.IBytes(uint64(max(stats.SizeBytes, 0))))
			if stats.Entries > 0 {
				fmt.Fprintf(out, "Oldest:  %s\n", formatStamp(stats.Oldest))
				fmt.Fprintf(out, "Newest:  %s\n", formatStamp(stats.Newest))
			}
			return nil
		},
	}
}

func newCachePurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove expired cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, warn, err := openCatalogCache(ctx)
			if warn != "" {
				fmt.Fprintln(cmd.OutOrStdout(), warn)
			}
			if err != nil || cache == nil {
				return err
			}
			defer cache.Close()

			removed, err := cache.Purge(commandBaseContext(cmd))
			if err != nil {
				return err
			}
			if removed == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No expired cache entries")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired entries\n", removed)
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cache entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, warn, err := openCatalogCache(ctx)
			if warn != "" {
				fmt.Fprintln(cmd.OutOrStdout(), warn)
			}
			if err != nil || cache == nil {
				return err
			}
			defer cache.Close()

			removed, err := cache.Clear(commandBaseContext(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d entries\n", removed)
			return nil
		},
	}
}

func openCatalogCache(ctx *commandContext) (*catalog.Cache, string, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, "", err
	}
	path := cfg.CatalogCachePath()
	if path == "" {
		return nil, "Bangumi cache is disabled (set bangumi.cache_enabled = true in config.toml)", nil
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return nil, "", err
	}
	cache, err := catalog.OpenCache(path, time.Duration(cfg.Bangumi.CacheTTLHours)*time.Hour, logger)
	if err != nil {
		return nil, "", fmt.Errorf("open bangumi cache: %w", err)
	}
	return cache, "", nil
}

func formatStamp(ts time.Time) string {
	if ts.IsZero() {
		return "unknown"
	}
	return ts.Local().Format("2006-01-02 15:04")
}
