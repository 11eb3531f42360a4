package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kanada4310/tts-app/internal/cache"
)

var (
	cacheCmd = &cobra.Command{
		Use:     "cache",
		Short:   "Show the synthesized segment cache",
		Long:    paragraph(fmt.Sprintf("\n%s where synthesized sentences are kept and how much space they use.", keyword("Show"))),
		Example: paragraph("ttsapp cache\nttsapp cache clear"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(func(t *cache.Tiered) error {
				printCacheStats(cmd.OutOrStdout(), t)
				return nil
			})
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached segment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(func(t *cache.Tiered) error {
				size := t.Size()
				n := len(t.Entries())
				if err := t.Clear(); err != nil {
					return fmt.Errorf("unable to clear cache: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%s)\n", pluralize(n, "entry"), humanize.Bytes(uint64(size))) //nolint:gosec
				return nil
			})
		},
	}
)

func withCache(fn func(*cache.Tiered) error) (err error) {
	dir, err := cacheDir()
	if err != nil {
		return err
	}
	t, err := cache.NewTiered(cfg.CacheConfig(dir), log.Default())
	if err != nil {
		return fmt.Errorf("unable to open cache: %w", err)
	}
	defer func() {
		err = errors.Join(err, t.Close())
	}()
	return fn(t)
}

func printCacheStats(w io.Writer, t *cache.Tiered) {
	entries := t.Entries()
	stats := t.Stats()

	fmt.Fprintln(w, keyword("Directory:"), t.Dir())
	fmt.Fprintln(w, keyword("Entries:  "), len(entries))
	fmt.Fprintf(w, "%s %s of %s\n", keyword("Size:     "),
		humanize.Bytes(uint64(t.Size())),      //nolint:gosec
		humanize.Bytes(uint64(stats.Capacity))) //nolint:gosec

	if len(entries) == 0 {
		return
	}
	var raw int64
	for _, e := range entries {
		raw += e.Size
	}
	fmt.Fprintf(w, "%s %s before compression\n", keyword("Raw:      "), humanize.Bytes(uint64(raw))) //nolint:gosec
	fmt.Fprintf(w, "%s %s\n", keyword("Oldest:   "), humanize.Time(entries[0].LastAccess))
	if !cfg.Cache.Enabled {
		fmt.Fprintln(w, faint("caching is disabled in the configuration"))
	}
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
}
