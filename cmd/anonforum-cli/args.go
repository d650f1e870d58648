package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// parseID parses a positive database id.
func parseID(name, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, s)
	}
	return id, nil
}

// idArg accepts exactly one positional id argument.
func idArg(name string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(1)(cmd, args); err != nil {
			return err
		}
		_, err := parseID(name, args[0])
		return err
	}
}

// mustID is used after idArg has validated the argument.
func mustID(s string) int64 {
	id, _ := strconv.ParseInt(s, 10, 64)
	return id
}
