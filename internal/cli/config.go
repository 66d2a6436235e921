package cli

import (
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-forma/configs"
)

func newConfigCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Config prints the configuration after layering defaults, the config file,
FORMA_* environment variables and flags. The output is valid input for
--config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := configs.Effective(a.config)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
