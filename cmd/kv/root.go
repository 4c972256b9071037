package kv

import (
	"github.com/ValentinKolb/kvenv/cmd/util"
	"github.com/ValentinKolb/kvenv/lib/config"
	"github.com/ValentinKolb/kvenv/lib/manager"
	"github.com/ValentinKolb/kvenv/lib/store"
	"github.com/spf13/cobra"
)

var (
	mgr     *manager.Manager
	baseCfg *config.Config

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value operations on a local database",
		PersistentPreRunE:  setupManager,
		PersistentPostRunE: closeManager,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	util.SetupStoreFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(putCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(listCmd)
	KeyValueCommands.AddCommand(infoCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupManager reads the store config and creates the manager
func setupManager(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	cfg, err := util.GetConfig()
	if err != nil {
		return err
	}
	baseCfg = cfg
	mgr = manager.New()
	return nil
}

func closeManager(_ *cobra.Command, _ []string) error {
	if mgr == nil {
		return nil
	}
	return mgr.Close()
}

// openStore returns the shared handle of the configured store. A bucket
// that is not part of the config is added, so writable stores create it.
func openStore(bucket string) (*store.Handle, error) {
	cfg := baseCfg.Clone()
	if bucket != "" && !contains(cfg.Buckets(), bucket) {
		cfg.Bucket(bucket)
	}
	return mgr.Open(cfg)
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
