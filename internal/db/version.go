package db

import (
	"path"
	"strconv"
	"strings"

	"github.com/persistorai/anonforum/internal/db/migrations"
)

// SchemaVersion returns the highest version among the embedded migration
// files. It is reported by the readiness endpoint and the CLI doctor command.
func SchemaVersion() int {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return 0
	}

	highest := 0
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}

		prefix, _, _ := strings.Cut(e.Name(), "_")
		if v, err := strconv.Atoi(prefix); err == nil && v > highest {
			highest = v
		}
	}

	return highest
}
