package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/persistorai/anonforum/client"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const connectTimeout = 10 * time.Second

// profileConfig holds connection settings for a single profile.
type profileConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// initOptions are the answers collected by init.
type initOptions struct {
	URL     string
	APIKey  string
	Profile string
	NoCheck bool
}

func newInitCmd() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up anonforum CLI configuration",
		Long: "Writes a connection profile to ~/.anonforum/config.yaml and makes it active.\n" +
			"Without --url or --api-key the values are prompted for.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			interactive := opts.URL == "" && opts.APIKey == ""
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), opts, interactive)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "Server URL (non-interactive mode)")
	cmd.Flags().StringVar(&opts.APIKey, "api-key", "", "API key (non-interactive mode)")
	cmd.Flags().StringVar(&opts.Profile, "profile", "default", "Profile to write and activate")
	cmd.Flags().BoolVar(&opts.NoCheck, "no-check", false, "Save without contacting the server")
	return cmd
}

func runInit(in io.Reader, out io.Writer, opts initOptions, interactive bool) error {
	if interactive {
		fmt.Fprintf(out, "anonforum setup (profile %q)\n\n", opts.Profile)
		answers := bufio.NewScanner(in)
		opts.URL = prompt(answers, out, "Server URL", defaultURL)
		opts.APIKey = prompt(answers, out, "API key", "")
	}

	if opts.URL == "" {
		opts.URL = defaultURL
	}
	if err := checkServerURL(opts.URL); err != nil {
		return err
	}
	if opts.APIKey == "" {
		return errors.New("API key is required")
	}

	if !opts.NoCheck {
		ver, err := testConnection(opts.URL, opts.APIKey)
		if err != nil {
			return fmt.Errorf("connection failed: %w", err)
		}
		fmt.Fprintf(out, "Connected to %s (server %s)\n", opts.URL, ver)
	}

	cfgPath, err := writeConfig(opts.Profile, opts.URL, opts.APIKey)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(out, "Config saved to %s\n", cfgPath)

	if interactive {
		fmt.Fprintln(out, "\nTry:\n  anonforum doctor\n  anonforum structure <cmid>")
	}
	return nil
}

// prompt asks for one value; an empty answer keeps def.
func prompt(answers *bufio.Scanner, out io.Writer, label, def string) string {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	if !answers.Scan() {
		return def
	}
	if v := strings.TrimSpace(answers.Text()); v != "" {
		return v
	}
	return def
}

func checkServerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server URL must look like http://host:port, got %q", raw)
	}
	return nil
}

// testConnection checks the server is up and accepts the key. It returns the
// server version.
func testConnection(serverURL, apiKey string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	c := client.New(serverURL, client.WithAPIKey(apiKey), client.WithTimeout(connectTimeout))
	health, err := c.Health(ctx)
	if err != nil {
		return "", err
	}
	if _, err := c.Backups.List(ctx, 0, 1); err != nil {
		return "", err
	}

	if health.Version == "" {
		return "unknown", nil
	}
	return health.Version, nil
}

// writeConfig stores the profile and makes it active, keeping any other
// profiles already in the file.
func writeConfig(profile, serverURL, apiKey string) (string, error) {
	cfgPath, cfg, err := loadConfig()
	if cfgPath == "" {
		return "", err
	}
	if cfg == nil {
		cfg = &configFile{}
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]profileConfig)
	}
	if profile == "" {
		profile = "default"
	}
	cfg.Profiles[profile] = profileConfig{URL: serverURL, APIKey: apiKey}
	cfg.ActiveProfile = profile
	cfg.URL, cfg.APIKey = "", ""

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		return "", err
	}
	return cfgPath, nil
}
