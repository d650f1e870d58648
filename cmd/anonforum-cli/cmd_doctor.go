package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/persistorai/anonforum/client"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration and connectivity",
		Long:  "Run diagnostic checks against config, server, database and auth",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor()
		},
	}
}

type checkResult struct {
	Name   string
	Passed bool
	Detail string
	Hint   string
}

func runDoctor() error {
	fmt.Println("\nanonforum doctor")
	fmt.Println("================")

	results := doctorChecks()

	fmt.Println()
	allPassed := true
	for _, r := range results {
		mark := "✅"
		if !r.Passed {
			mark = "❌"
			allPassed = false
		}
		if r.Detail != "" {
			fmt.Printf("%s %s: %s\n", mark, r.Name, r.Detail)
		} else {
			fmt.Printf("%s %s\n", mark, r.Name)
		}
		if !r.Passed && r.Hint != "" {
			fmt.Printf("   Hint: %s\n", r.Hint)
		}
	}

	fmt.Println()
	if !allPassed {
		fmt.Println("❌ Some checks failed.")
		return fmt.Errorf("doctor found issues")
	}
	fmt.Println("✅ All checks passed!")
	return nil
}

// doctorChecks runs after resolveConfig, so flagURL and flagKey already hold
// the effective settings.
func doctorChecks() []checkResult {
	var results []checkResult

	cfgPath, _, cfgErr := loadConfig()
	switch {
	case cfgErr == nil:
		results = append(results, checkResult{Name: "Config file", Passed: true, Detail: fmt.Sprintf("found (%s)", cfgPath)})
	case errors.Is(cfgErr, os.ErrNotExist) && (os.Getenv("ANONFORUM_URL") != "" || os.Getenv("ANONFORUM_API_KEY") != ""):
		results = append(results, checkResult{Name: "Config file", Passed: true, Detail: "not used (environment)"})
	default:
		results = append(results, checkResult{Name: "Config file", Detail: cfgPath, Hint: fmt.Sprintf("Run: anonforum init (%v)", cfgErr)})
	}

	results = append(results, checkResult{Name: "Server URL", Passed: flagURL != "", Detail: flagURL,
		Hint: "Set --url, ANONFORUM_URL, or run anonforum init"})

	if flagKey == "" {
		results = append(results, checkResult{Name: "API key", Hint: "Set --api-key, ANONFORUM_API_KEY, or run anonforum init"})
	} else {
		results = append(results, checkResult{Name: "API key", Passed: true, Detail: "configured"})
	}

	if flagURL == "" {
		return results
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := client.New(flagURL, client.WithAPIKey(flagKey), client.WithTimeout(5*time.Second))

	health, err := c.Health(ctx)
	if err != nil {
		return append(results, checkResult{Name: "Server reachable", Detail: flagURL,
			Hint: fmt.Sprintf("Is anonforumd running? Error: %v", err)})
	}
	results = append(results, checkResult{Name: "Server reachable", Passed: true, Detail: "v" + health.Version})

	ready, err := c.Ready(ctx)
	if ready != nil {
		results = append(results, checkResult{Name: "Database", Passed: err == nil,
			Detail: fmt.Sprintf("%s (schema v%d)", ready.Checks["database"], health.SchemaVersion),
			Hint:   "Check DATABASE_URL and run migrations on the server"})
	} else {
		results = append(results, checkResult{Name: "Database", Hint: fmt.Sprintf("Readiness check failed: %v", err)})
	}

	if flagKey != "" {
		if _, err := c.Backups.List(ctx, 0, 1); err != nil {
			results = append(results, checkResult{Name: "Authentication", Hint: fmt.Sprintf("Check your API key. Error: %v", err)})
		} else {
			results = append(results, checkResult{Name: "Authentication", Passed: true, Detail: "valid"})
		}
	}

	return results
}
