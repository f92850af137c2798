package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/deskmirror/internal/config"
	"github.com/zulandar/deskmirror/internal/db"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the datastore schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			gdb, err := db.Connect(cfg.DB)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(gdb); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Schema migrated (%s)\n", cfg.DB.Driver)
			return nil
		},
	}
}
