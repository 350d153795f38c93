package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/danieljhkim/buildprep/internal/engine"
)

var (
	rollbackRestoreID   string
	rollbackRestoreFile string

	rollbackCleanID        string
	rollbackCleanOlderThan string
	rollbackCleanAll       bool
)

// rollbackCmd is the parent command for patch snapshots.
var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "List, restore and clean patch snapshots",
	Long: `Manage the snapshots taken before a file is patched.

Snapshots are stored under $BUILDPREP_HOME/rollback (default ~/.buildprep).`,
}

var rollbackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}

		result, err := eng.RollbackList(context.Background())
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(result)
		}

		PrintSection(fmt.Sprintf("Snapshots (%s)", result.Dir))
		if len(result.Snapshots) == 0 {
			PrintEmptyState("No snapshots")
			return nil
		}

		tw := newTable(table.Row{"ID", "Path", "Created", "Size"}, 4)
		for _, s := range result.Snapshots {
			tw.AppendRow(table.Row{s.ID, s.Path, s.CreatedAt.Local().Format(time.DateTime), formatSize(s.Size)})
		}
		PrintTable(tw)
		return nil
	},
}

var rollbackRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a patched file from its snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}

		result, err := eng.RollbackRestore(context.Background(), &engine.RollbackRestoreRequest{
			ID:   rollbackRestoreID,
			File: rollbackRestoreFile,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(result)
		}

		PrintSuccess(fmt.Sprintf("Restored %s from %s", result.File, result.ID))
		return nil
	},
}

var rollbackCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove snapshots",
	Long: `Remove one snapshot (--id), snapshots older than a duration (--older-than 72h)
or every snapshot (--all).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}

		result, err := eng.RollbackClean(context.Background(), &engine.RollbackCleanRequest{
			ID:        rollbackCleanID,
			OlderThan: rollbackCleanOlderThan,
			All:       rollbackCleanAll,
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

		if len(result.Removed) == 0 {
			PrintEmptyState("No snapshots removed")
			return err
		}
		PrintList(result.Removed, 1)
		if err != nil {
			return err
		}
		PrintSuccess(fmt.Sprintf("Removed %s", PrintCount(len(result.Removed), "snapshot", "snapshots")))
		return nil
	},
}

func init() {
	rollbackRestoreCmd.Flags().StringVar(&rollbackRestoreID, "id", "", "Snapshot id")
	rollbackRestoreCmd.Flags().StringVar(&rollbackRestoreFile, "file", "", "Restore into this file instead of the original path")
	_ = rollbackRestoreCmd.MarkFlagRequired("id")

	rollbackCleanCmd.Flags().StringVar(&rollbackCleanID, "id", "", "Remove one snapshot")
	rollbackCleanCmd.Flags().StringVar(&rollbackCleanOlderThan, "older-than", "", "Remove snapshots older than this duration (e.g. 72h)")
	rollbackCleanCmd.Flags().BoolVar(&rollbackCleanAll, "all", false, "Remove every snapshot")
	rollbackCleanCmd.MarkFlagsMutuallyExclusive("id", "older-than", "all")

	rollbackCmd.AddCommand(rollbackListCmd)
	rollbackCmd.AddCommand(rollbackRestoreCmd)
	rollbackCmd.AddCommand(rollbackCleanCmd)
}
