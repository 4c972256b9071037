package config

import (
	"fmt"

	"github.com/ValentinKolb/kvenv/cmd/util"
	"github.com/spf13/cobra"
)

var (
	// ConfigCommands represents the config command group
	ConfigCommands = &cobra.Command{
		Use:               "config",
		Short:             "Create and inspect store configurations",
		PersistentPreRunE: setupConfig,
	}

	initCmd = &cobra.Command{
		Use:   "init [file]",
		Short: "Writes the configuration built from the flags to a TOML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := util.GetConfig()
			if err != nil {
				return err
			}
			if err := cfg.Save(args[0]); err != nil {
				return err
			}
			fmt.Printf("config written to %s\n", args[0])
			return nil
		},
	}

	showCmd = &cobra.Command{
		Use:   "show",
		Short: "Prints the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := util.GetConfig()
			if err != nil {
				return err
			}
			fmt.Print(cfg.String())
			return nil
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	util.SetupStoreFlags(ConfigCommands)

	ConfigCommands.AddCommand(initCmd)
	ConfigCommands.AddCommand(showCmd)
}

func setupConfig(cmd *cobra.Command, _ []string) error {
	return util.BindCommandFlags(cmd)
}
