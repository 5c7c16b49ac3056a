package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config [flags]",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration a run would use after merging the defaults, the
--config file, IMGCLI_* environment variables and the given flags.
The output can be saved and passed back with --config.`,
	Example: `  # Save the current settings as a config file
  imgcli config --components 20 --workers 4 > imgcli.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		data, err := cfg.Marshal()
		if err != nil {
			return fmt.Errorf("failed to render configuration: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	addPipelineFlags(configCmd)
}
