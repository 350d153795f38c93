package cli

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/danieljhkim/buildprep/internal/cache"
	"github.com/danieljhkim/buildprep/internal/engine"
)

var (
	cachePopulateSource       string
	cachePopulateConfig       string
	cachePopulateCacheDir     string
	cachePopulatePatterns     []string
	cachePopulateUpdateConfig bool
	cachePopulateDryRun       bool
	cachePopulateHash         bool

	cacheListCacheDir string
	cacheListHash     bool

	cacheCleanCacheDir string
	cacheCleanDryRun   bool
)

// cacheCmd is the parent command for cache management.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Populate, list and clean the artifact cache",
	Long: `Manage the artifact cache that injection copies from.

The cache holds Unity package archives (<name>-<version>.tgz), assemblies
(<name>.dll) and content-addressed directories (<name>@<hash>).`,
}

var cachePopulateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Fill the cache from a directory or from the sources of a config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}

		result, err := eng.CachePopulate(context.Background(), &engine.CachePopulateRequest{
			Source:       cachePopulateSource,
			ConfigPath:   cachePopulateConfig,
			CacheDir:     cachePopulateCacheDir,
			Patterns:     cachePopulatePatterns,
			UpdateConfig: cachePopulateUpdateConfig,
			DryRun:       cachePopulateDryRun,
			Hash:         cachePopulateHash,
		})
		if result == nil {
			return err
		}

		if jsonOutput {
			if jerr := outputJSON(result); jerr != nil {
				return jerr
			}
			return err
		}

		title := "Cache Populate"
		if result.DryRun {
			title += " (dry run)"
		}
		PrintSection(title)
		printCacheItems(result.Items, cachePopulateHash)
		if err != nil {
			return err
		}

		verb := "Cached"
		if result.DryRun {
			verb = "Would cache"
		}
		PrintSuccess(fmt.Sprintf("%s %s in %s", verb, PrintCount(len(result.Items), "item", "items"), result.CacheDir))
		if result.ConfigUpdated {
			PrintInfo(fmt.Sprintf("Updated %s", cachePopulateConfig))
		}
		return nil
	},
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached artifacts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}

		result, err := eng.CacheList(context.Background(), &engine.CacheListRequest{
			CacheDir: cacheListCacheDir,
			Hash:     cacheListHash,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(result)
		}

		PrintSection(fmt.Sprintf("Cache (%s)", result.CacheDir))
		if len(result.Items) == 0 {
			PrintEmptyState("Cache is empty")
			return nil
		}
		printCacheItems(result.Items, cacheListHash)
		PrintLabelValue("Total", fmt.Sprintf("%s, %s", PrintCount(len(result.Items), "item", "items"), formatSize(result.TotalSize)))
		return nil
	},
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove every cached artifact",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}

		result, err := eng.CacheClean(context.Background(), &engine.CacheCleanRequest{
			CacheDir: cacheCleanCacheDir,
			DryRun:   cacheCleanDryRun,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(result)
		}

		if result.DryRun {
			PrintInfo(fmt.Sprintf("Would remove %s from %s", PrintCount(result.Removed, "entry", "entries"), result.CacheDir))
			return nil
		}
		PrintSuccess(fmt.Sprintf("Removed %s from %s", PrintCount(result.Removed, "entry", "entries"), result.CacheDir))
		return nil
	},
}

func printCacheItems(items []cache.Item, withHash bool) {
	if len(items) == 0 {
		return
	}
	header := table.Row{"Type", "Name", "Version", "Size", "Path"}
	if withHash {
		header = append(header, "Hash")
	}
	tw := newTable(header, 4)
	for _, it := range items {
		row := table.Row{it.Type, it.Name, it.Version, formatSize(it.Size), it.Path}
		if withHash {
			row = append(row, shortHash(it.Hash))
		}
		tw.AppendRow(row)
	}
	PrintTable(tw)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func init() {
	cachePopulateCmd.Flags().StringVarP(&cachePopulateSource, "source", "s", "", "Directory to scan for .tgz packages and .dll assemblies")
	cachePopulateCmd.Flags().StringVarP(&cachePopulateConfig, "config", "c", "", "Config whose sources are cached, or which --update-config edits")
	cachePopulateCmd.Flags().StringVar(&cachePopulateCacheDir, "cache-dir", "", "Cache directory (default: repository setting)")
	cachePopulateCmd.Flags().StringSliceVar(&cachePopulatePatterns, "pattern", nil, "Extra glob of files to cache as assets (repeatable, ** supported)")
	cachePopulateCmd.Flags().BoolVar(&cachePopulateUpdateConfig, "update-config", false, "Add a reference for every cached package and assembly to the config")
	cachePopulateCmd.Flags().BoolVar(&cachePopulateDryRun, "dry-run", false, "List what would be cached without copying")
	cachePopulateCmd.Flags().BoolVar(&cachePopulateHash, "hash", false, "Record a SHA-256 per item")

	cacheListCmd.Flags().StringVar(&cacheListCacheDir, "cache-dir", "", "Cache directory (default: repository setting)")
	cacheListCmd.Flags().BoolVar(&cacheListHash, "hash", false, "Hash every item")

	cacheCleanCmd.Flags().StringVar(&cacheCleanCacheDir, "cache-dir", "", "Cache directory (default: repository setting)")
	cacheCleanCmd.Flags().BoolVar(&cacheCleanDryRun, "dry-run", false, "Count entries without removing them")

	cacheCmd.AddCommand(cachePopulateCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheCleanCmd)
}
