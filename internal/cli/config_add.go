package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/buildprep/internal/engine"
	"github.com/danieljhkim/buildprep/internal/prepconfig"
)

var (
	addSourcePath     string
	addSourceCacheAs  string
	addSourceType     string
	addSourceManifest string
	addSourceDryRun   bool

	addInjectionSource  string
	addInjectionTarget  string
	addInjectionType    string
	addInjectionConfig  string
	addInjectionName    string
	addInjectionVersion string
	addInjectionDryRun  bool

	addBatchManifest        string
	addBatchOutput          string
	addBatchKind            string
	addBatchCacheDir        string
	addBatchDryRun          bool
	addBatchContinueOnError bool
)

// parseItemType parses a --type flag, defaulting to package.
func parseItemType(s string) (prepconfig.ItemType, error) {
	if s == "" {
		return prepconfig.ItemPackage, nil
	}
	t, err := prepconfig.ParseItemType(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", engine.ErrArgument, err)
	}
	return t, nil
}

// configAddSourceCmd registers an external source in a preparation manifest.
var configAddSourceCmd = &cobra.Command{
	Use:   "add-source",
	Short: "Copy an external source into the cache and record it in a manifest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		itemType, err := parseItemType(addSourceType)
		if err != nil {
			return err
		}

		eng, err := newEngine()
		if err != nil {
			return err
		}

		result, err := eng.AddSource(context.Background(), &engine.AddSourceRequest{
			ManifestPath: addSourceManifest,
			Source:       addSourcePath,
			CacheAs:      addSourceCacheAs,
			Type:         itemType,
			DryRun:       addSourceDryRun,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(result)
		}

		if result.DryRun {
			PrintSection("Dry Run")
			PrintInfo(fmt.Sprintf("Would cache %s as %s", result.SourcePath, result.CacheRelativePath))
		} else {
			PrintSuccess(fmt.Sprintf("Cached %s as %s", result.SourcePath, result.CacheRelativePath))
		}
		PrintLabelValue("Files", fmt.Sprintf("%d", result.FileCount))
		PrintLabelValue("Directories", fmt.Sprintf("%d", result.DirectoryCount))
		PrintLabelValue("Size", formatSize(result.TotalSize))
		return nil
	},
}

// configAddInjectionCmd adds an injection to a flat config.
var configAddInjectionCmd = &cobra.Command{
	Use:   "add-injection",
	Short: "Map a cached package, assembly or asset into the client project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		itemType, err := parseItemType(addInjectionType)
		if err != nil {
			return err
		}

		eng, err := newEngine()
		if err != nil {
			return err
		}

		result, err := eng.AddInjection(context.Background(), &engine.AddInjectionRequest{
			ConfigPath: addInjectionConfig,
			Source:     addInjectionSource,
			Target:     addInjectionTarget,
			Type:       itemType,
			Name:       addInjectionName,
			Version:    addInjectionVersion,
			DryRun:     addInjectionDryRun,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(result)
		}

		if result.DryRun {
			PrintSection("Dry Run")
			PrintInfo(fmt.Sprintf("Would add %s injection %s -> %s to %s", itemType, addInjectionSource, addInjectionTarget, result.ConfigPath))
			return nil
		}
		if result.Created {
			PrintInfo(fmt.Sprintf("Created %s", result.ConfigPath))
		}
		PrintSuccess(fmt.Sprintf("Added %s injection %s -> %s", itemType, addInjectionSource, addInjectionTarget))
		return nil
	},
}

// configAddBatchCmd processes a batch manifest.
var configAddBatchCmd = &cobra.Command{
	Use:   "add-batch",
	Short: "Register many sources or injections from a JSON or YAML manifest",
	Long: `Process a batch manifest of packages, assemblies and assets.

With --config-type source every item is copied into the cache and recorded in
a preparation manifest. With --config-type injection every item is mapped into
the client project in a flat config. Without --continue-on-error the first
failure stops the batch and the remaining items are reported as failed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}

		result, err := eng.AddBatch(context.Background(), &engine.AddBatchRequest{
			ManifestPath:    addBatchManifest,
			Output:          addBatchOutput,
			Kind:            engine.BatchKind(addBatchKind),
			CacheDir:        addBatchCacheDir,
			DryRun:          addBatchDryRun,
			ContinueOnError: addBatchContinueOnError,
		})
		if result == nil || result.BatchResult == nil {
			return err
		}

		if jsonOutput {
			if jerr := outputJSON(result); jerr != nil {
				return jerr
			}
		} else {
			printBatch(result)
		}

		if err != nil {
			return err
		}
		if result.FailureCount > 0 {
			return fmt.Errorf("%d of %d batch items failed", result.FailureCount, result.Total)
		}
		return nil
	},
}

func printBatch(result *engine.AddBatchResult) {
	title := fmt.Sprintf("Batch %s -> %s", result.Kind, result.Output)
	if result.DryRun {
		title += " (dry run)"
	}
	PrintSection(title)

	for _, w := range result.Warnings {
		PrintWarning(w)
	}
	for _, item := range result.Successful {
		PrintSuccess(item)
	}
	for _, f := range result.Failed {
		PrintError(fmt.Sprintf("%s: %s", f.Item, f.Error))
	}
	fmt.Println()
	PrintLabelValue("Total", fmt.Sprintf("%d", result.Total))
	PrintLabelValue("Succeeded", fmt.Sprintf("%d", result.SuccessCount))
	PrintLabelValue("Failed", fmt.Sprintf("%d", result.FailureCount))
}

func init() {
	configAddSourceCmd.Flags().StringVarP(&addSourcePath, "source", "s", "", "Source file or directory to cache")
	configAddSourceCmd.Flags().StringVarP(&addSourceCacheAs, "cache-as", "n", "", "Name of the cache entry")
	configAddSourceCmd.Flags().StringVarP(&addSourceType, "type", "t", "package", "Item type: package, assembly or asset")
	configAddSourceCmd.Flags().StringVarP(&addSourceManifest, "manifest", "m", "", "Preparation manifest (default: build/preparation/manifests/default.json)")
	configAddSourceCmd.Flags().BoolVar(&addSourceDryRun, "dry-run", false, "Show what would be cached without copying")
	_ = configAddSourceCmd.MarkFlagRequired("source")
	_ = configAddSourceCmd.MarkFlagRequired("cache-as")

	configAddInjectionCmd.Flags().StringVarP(&addInjectionSource, "source", "s", "", "Cache path of the item")
	configAddInjectionCmd.Flags().StringVarP(&addInjectionTarget, "target", "t", "", "Target path in the client project")
	configAddInjectionCmd.Flags().StringVar(&addInjectionType, "type", "package", "Item type: package, assembly or asset")
	configAddInjectionCmd.Flags().StringVarP(&addInjectionConfig, "config", "c", "", "Flat config to edit (default: build/preparation/configs/default.json)")
	configAddInjectionCmd.Flags().StringVarP(&addInjectionName, "name", "n", "", "Item name (default: base name of the source)")
	configAddInjectionCmd.Flags().StringVarP(&addInjectionVersion, "version", "v", "", "Item version (packages default to 1.0.0)")
	configAddInjectionCmd.Flags().BoolVar(&addInjectionDryRun, "dry-run", false, "Show the change without saving the config")
	_ = configAddInjectionCmd.MarkFlagRequired("source")
	_ = configAddInjectionCmd.MarkFlagRequired("target")

	configAddBatchCmd.Flags().StringVarP(&addBatchManifest, "manifest", "m", "", "Batch manifest (.json, .yaml or .yml)")
	configAddBatchCmd.Flags().StringVarP(&addBatchOutput, "output", "o", "", "Preparation manifest (source) or config (injection) to write")
	configAddBatchCmd.Flags().StringVarP(&addBatchKind, "config-type", "t", string(engine.BatchSource), "What to register: source or injection")
	configAddBatchCmd.Flags().StringVar(&addBatchCacheDir, "cache-dir", "", "Cache directory injection sources point at")
	configAddBatchCmd.Flags().BoolVar(&addBatchDryRun, "dry-run", false, "Process the batch without writing anything")
	configAddBatchCmd.Flags().BoolVar(&addBatchContinueOnError, "continue-on-error", false, "Keep going after a failed item")
	_ = configAddBatchCmd.MarkFlagRequired("manifest")
}
