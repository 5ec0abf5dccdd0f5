package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/paperward/paperward/internal/config"
)

// errSettingsExist guards against clobbering an existing settings file.
var errSettingsExist = errors.New("settings file already exists, pass --force to overwrite")

var (
	// force allows init to overwrite an existing settings file.
	force bool

	// initCmd writes a settings file with every default filled in.
	initCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write a settings file filled with defaults.",
		Long: `Writes the default supervisor settings to ` + config.DefaultConfigFilename + ` (or the
given path) so they can be adjusted with an editor. An existing file is
only overwritten with --force.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigFilename
			if len(args) > 0 {
				path = args[0]
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s: %w", path, errSettingsExist)
				}
			}

			if err := config.Save(path, config.Default()); err != nil {
				return fmt.Errorf("write settings: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Settings written to %s\n", path)

			return nil
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing settings file")

	rootCmd.AddCommand(initCmd)
}
