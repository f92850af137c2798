package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/deskmirror/internal/config"
	"github.com/zulandar/deskmirror/internal/db"
	"github.com/zulandar/deskmirror/internal/models"
	"github.com/zulandar/deskmirror/internal/store"
	"gorm.io/gorm"
)

func newStatusCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show worker watermarks and mirror counts",
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

			if userID != 0 {
				return printUserMirror(cmd, gdb, userID)
			}

			out := cmd.OutOrStdout()
			for _, name := range []string{"poller", "executor-sync", "dispatcher-sync", "reauth", "cleanup"} {
				t, ok, err := store.Watermark(gdb, name)
				switch {
				case err != nil:
					fmt.Fprintf(out, "%-16s error: %v\n", name, err)
				case !ok:
					fmt.Fprintf(out, "%-16s never ran\n", name)
				default:
					fmt.Fprintf(out, "%-16s last tick %s (%s ago)\n",
						name, t.Format(time.RFC3339), time.Since(t).Round(time.Second))
				}
			}

			var sessions, current, done int64
			gdb.Model(&models.Session{}).Count(&sessions)
			gdb.Model(&models.CurrentTicket{}).Count(&current)
			gdb.Model(&models.DoneTicket{}).Count(&done)
			fmt.Fprintf(out, "sessions=%d current=%d done=%d\n", sessions, current, done)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "list one user's mirrored tickets instead")
	return cmd
}

func printUserMirror(cmd *cobra.Command, gdb *gorm.DB, userID int64) error {
	out := cmd.OutOrStdout()
	total := 0
	for _, kind := range []string{models.TrackExecutor, models.TrackDispatcher} {
		rows, err := store.ListCurrentForOwner(gdb, userID, kind)
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Fprintf(out, "%-10s #%-8d %-14s %s\n", kind, r.TicketID, r.Status, r.Title)
		}
		total += len(rows)
	}
	if total == 0 {
		fmt.Fprintf(out, "no mirrored tickets for user %d\n", userID)
	}
	return nil
}
