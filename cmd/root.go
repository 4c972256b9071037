package cmd

import (
	"fmt"
	"os"

	configcmd "github.com/ValentinKolb/kvenv/cmd/config"
	"github.com/ValentinKolb/kvenv/cmd/kv"
	"github.com/ValentinKolb/kvenv/lib/engine"
	_ "github.com/ValentinKolb/kvenv/lib/engine/gdbx"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "kvenv",
		Short: "embedded key-value databases with a single-open guarantee",
		Long: fmt.Sprintf(`kvenv (v%s)

Opens embedded MDBX-family key-value databases from a declarative
configuration and makes sure every database file is opened only once
per process.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number and the available engines",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kvenv v%s\n", Version)
			fmt.Printf("engines: %v (default %s)\n", engine.Implementations(), engine.DefaultImplementation)
		},
	}
)

func init() {
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(configcmd.ConfigCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
