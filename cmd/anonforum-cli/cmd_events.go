package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/persistorai/anonforum/client"
	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream backup events until interrupted",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err := apiClient.SubscribeRun(ctx, runID, func(ev client.Event) error {
				b, err := ev.Backup()
				if err != nil {
					return err
				}
				printEvent(ev, b)
				if runID != "" && ev.Type != client.EventBackupStarted {
					return client.ErrStopEvents
				}
				return nil
			})
			if err != nil && ctx.Err() == nil {
				fatal("events", err)
			}
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Only show events of this run and exit when it finishes")
	return cmd
}

func printEvent(ev client.Event, b *client.BackupEvent) {
	switch flagFmt {
	case "quiet":
		formatQuiet(b.BackupID)
	case "table":
		detail := b.Location
		if b.Error != "" {
			detail = b.Error
		}
		fmt.Printf("%s  %-17s  %s  cmid=%d rows=%d %s\n",
			ev.Time.Local().Format(time.TimeOnly), ev.Type, b.BackupID, b.ActivityID, b.Rows, detail)
	default:
		formatJSON(ev)
	}
}
