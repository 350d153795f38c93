package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/buildprep/internal/engine"
)

var (
	prepareConfig   string
	prepareStage    string
	preparePlatform string
	prepareLevel    string
	prepareForce    bool
	prepareDryRun   bool
	preparePlan     bool

	injectTarget string

	cleanupStage  string
	cleanupDryRun bool
)

// prepareCmd is the parent command for running preparation configs.
var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Run, inject and clean up preparation configs",
	Long: `Run a preparation config against the repository.

"prepare run" validates and applies a config. "prepare inject" does the same
for the client project and records what it changed so "prepare cleanup" can
undo it after the build.`,
}

var prepareRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Validate and apply a preparation config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}

		result, err := eng.Prepare(context.Background(), prepareRequest())
		return reportPrepare(result, err)
	},
}

var prepareInjectCmd = &cobra.Command{
	Use:   "inject",
	Short: "Inject cached artifacts into the client project",
	Long: `Inject a preparation config (or one stage of a multi-stage config) into the
client project.

Every package and assembly must already be in the cache. Created paths and
patched files are recorded per stage; run "prepare cleanup" to undo them.
Platform commands of a stage are listed but never executed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}

		result, err := eng.Inject(context.Background(), &engine.InjectRequest{
			PrepareRequest: *prepareRequest(),
			Target:         injectTarget,
		})
		return reportPrepare(result, err)
	},
}

var prepareCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Undo a recorded injection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}

		result, err := eng.Cleanup(context.Background(), &engine.CleanupRequest{
			Stage:  cleanupStage,
			DryRun: cleanupDryRun,
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

		title := "Cleanup"
		if result.Stage != "" {
			title += " " + result.Stage
		}
		if result.DryRun {
			title += " (dry run)"
		}
		PrintSection(title)

		if len(result.Restored) > 0 {
			PrintSubsection("Restored")
			PrintList(result.Restored, 2)
		}
		if len(result.Removed) > 0 {
			PrintSubsection("Removed")
			PrintList(result.Removed, 2)
		}
		if err != nil {
			return err
		}

		verb := "Cleaned up"
		if result.DryRun {
			verb = "Would clean up"
		}
		PrintSuccess(fmt.Sprintf("%s: restored %s, removed %s", verb,
			PrintCount(len(result.Restored), "file", "files"),
			PrintCount(len(result.Removed), "path", "paths")))
		return nil
	},
}

func prepareRequest() *engine.PrepareRequest {
	return &engine.PrepareRequest{
		ConfigPath: prepareConfig,
		Stage:      prepareStage,
		Platform:   preparePlatform,
		Level:      prepareLevel,
		Force:      prepareForce,
		DryRun:     prepareDryRun || preparePlan,
	}
}

// reportPrepare prints the outcome of run or inject and passes err through.
func reportPrepare(result *engine.PrepareResult, err error) error {
	if result == nil {
		return err
	}

	if jsonOutput {
		if jerr := outputJSON(result); jerr != nil {
			return jerr
		}
		return err
	}

	title := result.ConfigPath
	if result.Stage != "" {
		title += " [" + result.Stage + "]"
	}
	if result.Platform != "" {
		title += " (" + result.Platform + ")"
	}
	PrintSection(title)

	if result.Skipped {
		PrintWarning(fmt.Sprintf("Stage %s is disabled - skipping", result.Stage))
		return err
	}

	for _, c := range result.Commands {
		PrintLabelValue("command (not executed)", c)
	}

	if result.Validation != nil && (result.Validation.TotalIssues() > 0 || !result.Validation.IsValid) {
		printValidation("Validation", result.Validation)
	}

	if result.Run != nil {
		conflicts := result.Run.Plan != nil && len(result.Run.Plan.Conflicts) > 0
		if preparePlan || result.Run.DryRun || conflicts {
			printPlan(result.Run)
		}
		if err == nil && !preparePlan {
			printRun(result.Run)
		}
	}

	if err == nil && result.CleanupAfter && result.Run != nil && !result.Run.DryRun {
		PrintInfo(fmt.Sprintf("Run 'buildprep prepare cleanup --stage %s' after the build", result.Stage))
	}
	return err
}

func addPrepareFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&prepareConfig, "config", "c", "", "Preparation config (default: build/preparation/configs/default.json)")
	cmd.Flags().StringVarP(&prepareStage, "stage", "s", "", "Stage of a multi-stage config")
	cmd.Flags().StringVarP(&preparePlatform, "platform", "p", "", "Platform whose files, patches and commands are added")
	cmd.Flags().StringVarP(&prepareLevel, "level", "l", "", "Validation level (default: repository setting)")
	cmd.Flags().BoolVar(&prepareForce, "force", false, "Run even when validation fails")
	cmd.Flags().BoolVar(&prepareDryRun, "dry-run", false, "Preview operations and patches without changing files")
	cmd.Flags().BoolVar(&preparePlan, "plan", false, "Only print the operation plan")
}

func init() {
	addPrepareFlags(prepareRunCmd)
	addPrepareFlags(prepareInjectCmd)
	prepareInjectCmd.Flags().StringVarP(&injectTarget, "target", "t", "", "Client project directory (must match the configured client target)")
	_ = prepareInjectCmd.MarkFlagRequired("target")

	prepareCleanupCmd.Flags().StringVarP(&cleanupStage, "stage", "s", "", "Stage whose injection is undone (empty for flat configs)")
	prepareCleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be restored and removed")

	prepareCmd.AddCommand(prepareRunCmd)
	prepareCmd.AddCommand(prepareInjectCmd)
	prepareCmd.AddCommand(prepareCleanupCmd)
}
