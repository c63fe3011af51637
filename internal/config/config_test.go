package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func envOf(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestLoad_Defaults(t *testing.T) {
	exeDir := t.TempDir()
	cfg, err := Load(nil, exeDir, envOf(nil))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 8421 {
		t.Errorf("expected default port 8421, got %d", cfg.Port)
	}
	if cfg.LogFile != filepath.Join(exeDir, LogFileName) {
		t.Errorf("unexpected log file %s", cfg.LogFile)
	}
	if cfg.RepoPath != "" {
		t.Errorf("expected no repo, got %s", cfg.RepoPath)
	}
	if cfg.ExeDir != exeDir {
		t.Errorf("expected exe dir %s, got %s", exeDir, cfg.ExeDir)
	}
}

func TestLoad_Precedence(t *testing.T) {
	exeDir := t.TempDir()
	yamlConfig := `
port: 9000
static_dir: /srv/ui
history_size: 50
shell:
  program: zsh
  args: ["-i"]
`
	if err := os.WriteFile(filepath.Join(exeDir, FileName), []byte(yamlConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	env := envOf(map[string]string{
		"PORT":         "9100",
		"VIEWER_DEBUG": "1",
	})

	cfg, err := Load([]string{"--port", "9200", "/repos/acme"}, exeDir, env)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 9200 {
		t.Errorf("flag should win: expected 9200, got %d", cfg.Port)
	}
	if cfg.StaticDir != "/srv/ui" {
		t.Errorf("file value lost: got %s", cfg.StaticDir)
	}
	if cfg.HistorySize != 50 {
		t.Errorf("expected history 50, got %d", cfg.HistorySize)
	}
	if !cfg.Debug {
		t.Error("expected debug from env")
	}
	if cfg.Shell.Program != "zsh" || len(cfg.Shell.Args) != 1 {
		t.Errorf("unexpected shell %+v", cfg.Shell)
	}
	if cfg.RepoPath != "/repos/acme" {
		t.Errorf("expected repo from positional arg, got %s", cfg.RepoPath)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	exeDir := t.TempDir()
	os.WriteFile(filepath.Join(exeDir, FileName), []byte("port: 9000\nrepo: /from/file\n"), 0o644)

	cfg, err := Load(nil, exeDir, envOf(map[string]string{
		"PORT":         "9100",
		"REPO_PATH":    "/from/env",
		"VIEWER_SHELL": "fish --private",
	}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("expected env port 9100, got %d", cfg.Port)
	}
	if cfg.RepoPath != "/from/env" {
		t.Errorf("expected env repo, got %s", cfg.RepoPath)
	}
	if cfg.Shell.Program != "fish" || len(cfg.Shell.Args) != 1 || cfg.Shell.Args[0] != "--private" {
		t.Errorf("unexpected shell %+v", cfg.Shell)
	}
}

func TestLoad_ExplicitConfigMissing(t *testing.T) {
	_, err := Load([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}, t.TempDir(), envOf(nil))
	if err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	exeDir := t.TempDir()
	os.WriteFile(filepath.Join(exeDir, FileName), []byte("port: [not a number"), 0o644)

	if _, err := Load(nil, exeDir, envOf(nil)); err == nil {
		t.Fatal("expected YAML parse error")
	}
}

func TestLoad_InvalidEnvPort(t *testing.T) {
	if _, err := Load(nil, t.TempDir(), envOf(map[string]string{"PORT": "abc"})); err == nil {
		t.Fatal("expected error for non-numeric PORT")
	}
}

func TestLoad_Help(t *testing.T) {
	_, err := Load([]string{"--help"}, t.TempDir(), envOf(nil))
	if !errors.Is(err, ErrHelp) {
		t.Fatalf("expected ErrHelp, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"negative port", func(c *Config) { c.Port = -1 }, true},
		{"port too large", func(c *Config) { c.Port = 70000 }, true},
		{"zero history", func(c *Config) { c.HistorySize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("/opt/viewer")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseShell(t *testing.T) {
	if got := parseShell("   "); got.Program != "" {
		t.Errorf("expected empty shell, got %+v", got)
	}
	got := parseShell("pwsh -NoLogo -NoProfile")
	if got.Program != "pwsh" || len(got.Args) != 2 || got.Args[1] != "-NoProfile" {
		t.Errorf("unexpected shell %+v", got)
	}
}
