package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"soPushBot/internal/domain/repository"
	"soPushBot/internal/interfaces/config"
)

var flagPruneOlderThan string

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old question ids from the cache",
	Long: `Drop cached question ids created before the retention window and write the
cache back.

Uses RETENTION (default: 48h) unless overridden with --older-than.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}

		retention := a.cfg.Retention
		if flagPruneOlderThan != "" {
			d, err := config.ParseRetention(flagPruneOlderThan)
			if err != nil {
				return fmt.Errorf("invalid --older-than value: %w", err)
			}
			retention = d
		}

		return a.withLock(func(cache repository.CacheRepository) error {
			store, err := cache.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("loading cache: %w", err)
			}

			evicted := store.Evict(time.Now(), retention)
			if evicted == 0 {
				fmt.Fprintln(a.out, "Nothing to prune.")
				return nil
			}
			if flagDryRun {
				fmt.Fprintf(a.out, "Would prune %d question(s) older than %s.\n", evicted, formatDuration(retention))
				return nil
			}

			if err := cache.Persist(cmd.Context(), store); err != nil {
				return fmt.Errorf("persisting cache: %w", err)
			}
			fmt.Fprintf(a.out, "Pruned %d question(s) older than %s.\n", evicted, formatDuration(retention))
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}

		return a.withLock(func(cache repository.CacheRepository) error {
			store, err := cache.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("loading cache: %w", err)
			}

			fmt.Fprintf(a.out, "Cache: %s (%s)\n", a.cfg.CachePath, a.cfg.CacheDriver)
			fmt.Fprintf(a.out, "Questions: %d\n", store.Len())
			if oldest, ok := store.Oldest(); ok {
				fmt.Fprintf(a.out, "Oldest: %s\n", oldest.Format(time.RFC3339))
			}
			if newest, ok := store.Newest(); ok {
				fmt.Fprintf(a.out, "Newest: %s\n", newest.Format(time.RFC3339))
			}
			fmt.Fprintf(a.out, "Retention: %s\n", formatDuration(a.cfg.Retention))
			return nil
		})
	},
}

func init() {
	pruneCmd.Flags().StringVar(&flagPruneOlderThan, "older-than", "", "override retention period (e.g., 2d, 36h)")
}

func formatDuration(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
	return d.String()
}
