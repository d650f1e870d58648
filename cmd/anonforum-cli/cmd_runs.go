package main

import (
	"context"
	"fmt"
	"io"

	"github.com/persistorai/anonforum/client"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect backup runs",
	}
	cmd.AddCommand(runsListCmd())
	cmd.AddCommand(runsGetCmd())
	cmd.AddCommand(runsArchiveCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	var (
		activity int64
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent backup runs",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			runs, err := apiClient.Backups.List(context.Background(), activity, limit)
			if err != nil {
				fatal("list runs", err)
			}
			outputRuns(runs)
		},
	}
	cmd.Flags().Int64Var(&activity, "activity", 0, "Only runs of this course module id")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum runs to return (server default when 0)")
	return cmd
}

func runsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show a backup run",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			run, err := apiClient.Backups.Get(context.Background(), args[0])
			if err != nil {
				fatal("get run", err)
			}
			outputRun(run)
		},
	}
}

func runsArchiveCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "archive <run-id>",
		Short: "Fetch the stored archive of a completed run",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id := args[0]
			path, n, err := saveArchive(out, fmt.Sprintf("anonforum-%s.tar.gz", id), func(w io.Writer) (*client.Download, error) {
				return apiClient.Backups.Archive(context.Background(), id, w)
			})
			if err != nil {
				if client.IsConflict(err) {
					fatal("fetch archive", fmt.Errorf("run %s has no stored archive yet: %w", id, err))
				}
				fatal("fetch archive", err)
			}
			reportSaved(path, n)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file, - for stdout (default: server file name)")
	return cmd
}
