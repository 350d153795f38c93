package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/buildprep/internal/engine"
)

var (
	configCreateOutput      string
	configCreateDescription string
	configCreateMultiStage  bool
	configCreateForce       bool

	validateFile  string
	validateLevel string
	validateStage string
)

// configCmd is the parent command for preparation config management.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create, validate and edit preparation configs",
	Long: `Manage preparation configs and manifests.

A preparation config lists the packages, assemblies, asset manipulations and
code patches applied to the client project. Flat configs (version 1.x) run as
a whole; multi-stage configs (version 2.x) run one stage at a time.`,
}

// configCreateCmd writes a new config.
var configCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new preparation config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}

		result, err := eng.CreateConfig(context.Background(), &engine.CreateConfigRequest{
			Output:      configCreateOutput,
			Description: configCreateDescription,
			MultiStage:  configCreateMultiStage,
			Force:       configCreateForce,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(result)
		}

		PrintSuccess(fmt.Sprintf("Created %s config %s", result.Generation, result.Path))
		return nil
	},
}

// validateCmd validates a config. It is registered both as
// "config validate" and as the top-level "validate".
var validateCmd = newValidateCmd()

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a preparation config",
		Long: `Validate a preparation config at one of four levels:

  Schema         required fields only
  FileExistence  sources, targets and patch files exist
  UnityPackages  package archives are well formed
  Full           patches apply to the current files (default)

Multi-stage configs are validated stage by stage. Exits with status 2 when
the config is invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}

			result, err := eng.ValidateConfig(context.Background(), &engine.ValidateConfigRequest{
				ConfigPath: validateFile,
				Level:      validateLevel,
				Stage:      validateStage,
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

			PrintSection(fmt.Sprintf("Validation (%s, level %s)", result.ConfigPath, result.Level))
			for _, s := range result.Stages {
				title := ""
				if s.Stage != "" {
					title = "Stage " + s.Stage
				}
				printValidation(title, s.Result)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&validateFile, "file", "f", "", "Config to validate (default: build/preparation/configs/default.json)")
	cmd.Flags().StringVarP(&validateLevel, "level", "l", "", "Validation level: Schema, FileExistence, UnityPackages or Full")
	cmd.Flags().StringVarP(&validateStage, "stage", "s", "", "Validate only this stage of a multi-stage config")
	return cmd
}

func init() {
	configCreateCmd.Flags().StringVarP(&configCreateOutput, "output", "o", "", "Path of the new config (default: build/preparation/configs/default.json)")
	configCreateCmd.Flags().StringVarP(&configCreateDescription, "description", "d", "", "Config description")
	configCreateCmd.Flags().BoolVar(&configCreateMultiStage, "multi-stage", false, "Create a multi-stage (v2) config with the standard stages")
	configCreateCmd.Flags().BoolVar(&configCreateForce, "force", false, "Overwrite an existing config")

	configCmd.AddCommand(configCreateCmd)
	configCmd.AddCommand(newValidateCmd())
	configCmd.AddCommand(configAddSourceCmd)
	configCmd.AddCommand(configAddInjectionCmd)
	configCmd.AddCommand(configAddBatchCmd)
}
