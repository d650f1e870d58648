package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/persistorai/anonforum/client"
	"github.com/spf13/cobra"
)

func newStructureCmd() *cobra.Command {
	var noUserInfo bool
	cmd := &cobra.Command{
		Use:   "structure <cmid>",
		Short: "Show the backup element tree of a forum activity",
		Args:  idArg("cmid"),
		Run: func(cmd *cobra.Command, args []string) {
			s, err := apiClient.Activities.Structure(context.Background(), mustID(args[0]), &client.BackupOptions{ExcludeUserInfo: noUserInfo})
			if err != nil {
				fatal("get structure", err)
			}
			if flagFmt == "table" {
				fmt.Printf("%s (course %d, context %d)\n\n", s.Activity.Name, s.Activity.CourseID, s.Activity.ContextID)
				formatTree(&s.Structure, 0)
				return
			}
			output(s, s.Structure.Name)
		},
	}
	cmd.Flags().BoolVar(&noUserInfo, "no-userinfo", false, "Leave out discussions, posts and per-user state")
	return cmd
}

func newBackupCmd() *cobra.Command {
	var noUserInfo, async, wait bool
	cmd := &cobra.Command{
		Use:   "backup <cmid>",
		Short: "Back up a forum activity to the configured destination",
		Args:  idArg("cmid"),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			opts := &client.BackupOptions{ExcludeUserInfo: noUserInfo}

			var (
				run *client.BackupRun
				err error
			)
			if async {
				run, err = apiClient.Activities.BackupAsync(ctx, mustID(args[0]), opts)
				if err == nil && wait {
					run, err = waitForRun(ctx, run.ID, time.Second)
				}
			} else {
				run, err = apiClient.Activities.Backup(ctx, mustID(args[0]), opts)
			}
			if err != nil {
				fatal("backup", err)
			}
			outputRun(run)
			if run.Status == client.BackupFailed {
				os.Exit(1)
			}
		},
	}
	cmd.Flags().BoolVar(&noUserInfo, "no-userinfo", false, "Leave out discussions, posts and per-user state")
	cmd.Flags().BoolVar(&async, "async", false, "Queue the backup and return immediately")
	cmd.Flags().BoolVar(&wait, "wait", false, "With --async, poll until the backup finishes")
	return cmd
}

// waitForRun polls a run until it leaves the running state.
func waitForRun(ctx context.Context, id string, every time.Duration) (*client.BackupRun, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		run, err := apiClient.Backups.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if run.Status != client.BackupRunning {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func newDownloadCmd() *cobra.Command {
	var (
		noUserInfo bool
		out        string
	)
	cmd := &cobra.Command{
		Use:   "download <cmid>",
		Short: "Build a forum backup and save the archive locally",
		Args:  idArg("cmid"),
		Run: func(cmd *cobra.Command, args []string) {
			id := mustID(args[0])
			opts := &client.BackupOptions{ExcludeUserInfo: noUserInfo}
			path, n, err := saveArchive(out, fmt.Sprintf("anonforum_%d.tar.gz", id), func(w io.Writer) (*client.Download, error) {
				return apiClient.Activities.Download(context.Background(), id, opts, w)
			})
			if err != nil {
				fatal("download", err)
			}
			reportSaved(path, n)
		},
	}
	cmd.Flags().BoolVar(&noUserInfo, "no-userinfo", false, "Leave out discussions, posts and per-user state")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file, - for stdout (default: server file name)")
	return cmd
}

func newCourseBackupCmd() *cobra.Command {
	var noUserInfo bool
	cmd := &cobra.Command{
		Use:   "course-backup <course-id>",
		Short: "Back up every forum activity in a course",
		Args:  idArg("course id"),
		Run: func(cmd *cobra.Command, args []string) {
			res, err := apiClient.Courses.Backup(context.Background(), mustID(args[0]), &client.BackupOptions{ExcludeUserInfo: noUserInfo})
			if err != nil {
				fatal("course backup", err)
			}
			switch flagFmt {
			case "table":
				outputRuns(res.Runs)
				fmt.Printf("\ncompleted: %d  failed: %d\n", res.Completed, res.Failed)
			case "quiet":
				formatQuiet(strconv.Itoa(res.Completed))
			default:
				formatJSON(res)
			}
			if res.Failed > 0 {
				os.Exit(1)
			}
		},
	}
	cmd.Flags().BoolVar(&noUserInfo, "no-userinfo", false, "Leave out discussions, posts and per-user state")
	return cmd
}

// saveArchive streams fetch into out. With no out, the archive is written to
// a temporary file and renamed to the server's file name once complete.
func saveArchive(out, fallback string, fetch func(io.Writer) (*client.Download, error)) (string, int64, error) {
	if out == "-" {
		dl, err := fetch(os.Stdout)
		if err != nil {
			return "", 0, err
		}
		return "-", dl.Bytes, nil
	}

	var (
		f   *os.File
		err error
	)
	if out != "" {
		f, err = os.Create(out)
	} else {
		f, err = os.CreateTemp(".", ".anonforum-*.part")
	}
	if err != nil {
		return "", 0, err
	}

	dl, err := fetch(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", 0, err
	}

	if out != "" {
		return out, dl.Bytes, nil
	}

	name := filepath.Base(dl.FileName)
	if dl.FileName == "" || name == "." || name == "/" {
		name = fallback
	}
	if err := os.Rename(f.Name(), name); err != nil {
		os.Remove(f.Name())
		return "", 0, fmt.Errorf("rename archive: %w", err)
	}
	return name, dl.Bytes, nil
}

func reportSaved(path string, n int64) {
	if path == "-" {
		return
	}
	if flagFmt == "quiet" {
		formatQuiet(path)
		return
	}
	fmt.Fprintf(os.Stderr, "Saved %s (%s)\n", path, humanBytes(n))
}
