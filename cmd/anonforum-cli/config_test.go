package main

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// resetFlags restores global flag state after each test.
func resetFlags(t *testing.T) {
	t.Helper()
	orig := struct{ url, key, fmt string }{flagURL, flagKey, flagFmt}
	t.Cleanup(func() {
		flagURL = orig.url
		flagKey = orig.key
		flagFmt = orig.fmt
	})
	flagURL = defaultURL
	flagKey = ""
}

// unsetEnv temporarily unsets an environment variable and restores it on cleanup.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

// writeConfigFile points HOME at a temp dir holding the given config.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	if content == "" {
		return tmp
	}
	dir := filepath.Join(tmp, ".anonforum")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return tmp
}

func TestResolveConfigEnv(t *testing.T) {
	resetFlags(t)
	writeConfigFile(t, "")
	t.Setenv("ANONFORUM_URL", "http://env-server:9090")
	t.Setenv("ANONFORUM_API_KEY", "secret-key-from-env")

	resolveConfig()

	if flagURL != "http://env-server:9090" {
		t.Errorf("flagURL: got %q", flagURL)
	}
	if flagKey != "secret-key-from-env" {
		t.Errorf("flagKey: got %q", flagKey)
	}
}

func TestResolveConfigFlagTakesPrecedenceOverEnv(t *testing.T) {
	resetFlags(t)
	writeConfigFile(t, "")
	t.Setenv("ANONFORUM_URL", "http://env-server:9090")

	flagURL = "http://explicit-flag:1234"
	resolveConfig()

	if flagURL != "http://explicit-flag:1234" {
		t.Errorf("explicit flag should win; got %q", flagURL)
	}
}

func TestResolveConfigFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantURL string
		wantKey string
	}{
		{
			name:    "flat",
			content: "url: http://from-file:8080\napi_key: file-key\n",
			wantURL: "http://from-file:8080",
			wantKey: "file-key",
		},
		{
			name: "active profile",
			content: `
active_profile: staging
profiles:
  default:
    url: http://default:3040
    api_key: default-key
  staging:
    url: http://staging:4040
    api_key: staging-key
`,
			wantURL: "http://staging:4040",
			wantKey: "staging-key",
		},
		{
			name: "default profile",
			content: `
profiles:
  default:
    url: http://default-profile:5050
    api_key: default-profile-key
`,
			wantURL: "http://default-profile:5050",
			wantKey: "default-profile-key",
		},
		{
			name: "profile without key keeps flat key",
			content: `
api_key: flat-key
profiles:
  default:
    url: http://only-url:6060
`,
			wantURL: "http://only-url:6060",
			wantKey: "flat-key",
		},
		{
			name:    "invalid yaml ignored",
			content: ":::not-yaml:::",
			wantURL: defaultURL,
		},
		{
			name:    "missing file ignored",
			wantURL: defaultURL,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resetFlags(t)
			unsetEnv(t, "ANONFORUM_URL")
			unsetEnv(t, "ANONFORUM_API_KEY")
			writeConfigFile(t, tc.content)

			resolveConfig()

			if flagURL != tc.wantURL {
				t.Errorf("flagURL: got %q, want %q", flagURL, tc.wantURL)
			}
			if flagKey != tc.wantKey {
				t.Errorf("flagKey: got %q, want %q", flagKey, tc.wantKey)
			}
		})
	}
}

func TestResolveConfigEnvNotOverriddenByFile(t *testing.T) {
	resetFlags(t)
	unsetEnv(t, "ANONFORUM_URL")
	t.Setenv("ANONFORUM_API_KEY", "env-wins-key")
	writeConfigFile(t, "url: http://file:9000\napi_key: file-key\n")

	resolveConfig()

	if flagKey != "env-wins-key" {
		t.Errorf("flagKey should be env value; got %q", flagKey)
	}
	if flagURL != "http://file:9000" {
		t.Errorf("flagURL should come from file; got %q", flagURL)
	}
}

func TestWriteConfigKeepsOtherProfiles(t *testing.T) {
	home := writeConfigFile(t, `
active_profile: prod
profiles:
  prod:
    url: https://prod.example.edu
    api_key: prod-key
`)

	path, err := writeConfig("dev", "http://localhost:3040", "dev-key")
	if err != nil {
		t.Fatalf("writeConfig: %v", err)
	}
	if path != filepath.Join(home, ".anonforum", "config.yaml") {
		t.Errorf("unexpected path %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.ActiveProfile != "dev" {
		t.Errorf("active profile = %q, want dev", cfg.ActiveProfile)
	}
	if cfg.Profiles["prod"].APIKey != "prod-key" {
		t.Error("existing profile was lost")
	}
	if url, key := cfg.active(); url != "http://localhost:3040" || key != "dev-key" {
		t.Errorf("active() = %q, %q", url, key)
	}
}
