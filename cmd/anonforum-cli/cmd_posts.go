package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/persistorai/anonforum/client"
	"github.com/spf13/cobra"
)

func newPostsCmd() *cobra.Command {
	var opts client.PostListOptions
	cmd := &cobra.Command{
		Use:   "posts <user-id>",
		Short: "List a user's forum posts or started discussions",
		Args:  idArg("user id"),
		Run: func(cmd *cobra.Command, args []string) {
			page, err := apiClient.Posts.List(context.Background(), mustID(args[0]), &opts)
			if err != nil {
				fatal("list posts", err)
			}
			switch flagFmt {
			case "table":
				rows := make([][]string, len(page.Posts))
				for i, p := range page.Posts {
					rows[i] = []string{
						strconv.FormatInt(p.ID, 10),
						strconv.FormatInt(p.CourseID, 10),
						p.Forum,
						p.Subject,
						time.Unix(p.Created, 0).Local().Format(time.DateTime),
					}
				}
				formatTable([]string{"ID", "COURSE", "FORUM", "SUBJECT", "CREATED"}, rows)
				fmt.Printf("\npage %d, %d of %d %s\n", page.Page, len(page.Posts), page.TotalCount, page.Mode)
			case "quiet":
				for _, p := range page.Posts {
					formatQuiet(strconv.FormatInt(p.ID, 10))
				}
			default:
				formatJSON(page)
			}
		},
	}
	cmd.Flags().Int64Var(&opts.CourseID, "course", 0, "Only posts in this course")
	cmd.Flags().BoolVar(&opts.Discussions, "discussions", false, "List started discussions instead of posts")
	cmd.Flags().IntVar(&opts.Page, "page", 0, "Page number, starting at 0")
	cmd.Flags().IntVar(&opts.PerPage, "perpage", 0, "Page size (server default when 0)")
	return cmd
}
