package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/persistorai/anonforum/client"
)

func formatJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: encode json: %v\n", err)
		os.Exit(1)
	}
}

func formatTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			w := 0
			if i < len(widths) {
				w = widths[i]
			}
			parts[i] = fmt.Sprintf("%-*s", w, cell)
		}
		fmt.Println(strings.Join(parts, "  "))
	}

	printRow(headers)
	seps := make([]string, len(headers))
	for i, w := range widths {
		seps[i] = strings.Repeat("-", w)
	}
	printRow(seps)
	for _, row := range rows {
		printRow(row)
	}
}

func formatQuiet(id string) {
	fmt.Println(id)
}

func output(v any, quietVal string) {
	switch flagFmt {
	case "quiet":
		formatQuiet(quietVal)
	default:
		// Table needs a caller-specific layout; JSON otherwise.
		formatJSON(v)
	}
}

var runHeaders = []string{"ID", "ACTIVITY", "STATUS", "USERINFO", "ROWS", "SIZE", "STARTED"}

func runRow(r *client.BackupRun) []string {
	return []string{
		r.ID,
		fmt.Sprintf("%d", r.ActivityID),
		string(r.Status),
		fmt.Sprintf("%t", r.UserInfo),
		fmt.Sprintf("%d", r.Rows),
		humanBytes(r.Size),
		r.StartedAt.Local().Format(time.DateTime),
	}
}

func outputRuns(runs []client.BackupRun) {
	switch flagFmt {
	case "table":
		rows := make([][]string, len(runs))
		for i := range runs {
			rows[i] = runRow(&runs[i])
		}
		formatTable(runHeaders, rows)
	case "quiet":
		for _, r := range runs {
			formatQuiet(r.ID)
		}
	default:
		formatJSON(runs)
	}
}

func outputRun(r *client.BackupRun) {
	if flagFmt == "table" {
		formatTable(runHeaders, [][]string{runRow(r)})
		if r.Error != "" {
			fmt.Printf("\nerror: %s\n", r.Error)
		}
		return
	}
	output(r, r.ID)
}

// formatTree prints a structure tree with one element per line.
func formatTree(n *client.StructureNode, depth int) {
	line := strings.Repeat("  ", depth) + n.Name
	if n.Source != "" {
		line += " <- " + n.Source
	}
	if len(n.Fields) > 0 {
		line += " [" + strings.Join(n.Fields, ", ") + "]"
	}
	fmt.Println(line)
	for i := range n.Children {
		formatTree(&n.Children[i], depth+1)
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
