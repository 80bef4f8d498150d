package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cvforge/internal/artifacts"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete render directories beyond the retention bound",
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().Int("keep", 0, "number of recent renders to retain")
	viper.BindPFlag("artifacts.keep", cleanupCmd.Flags().Lookup("keep"))
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	store, err := artifacts.NewStore(cfg.Artifacts.Root, cfg.Artifacts.Keep, logger)
	if err != nil {
		return err
	}

	removed, err := store.Prune(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d render director%s from %s\n", removed, plural(removed, "y", "ies"), store.Root())
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
