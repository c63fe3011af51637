// Package config assembles the viewer's settings. Sources are applied in
// order, later ones winning: built-in defaults, an optional YAML file,
// environment variables, then command-line flags. The first positional
// argument is the repository to open.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the config file looked up next to the executable.
	FileName = "sl-ot-viewer.yaml"
	// LogFileName is the default log file written next to the executable.
	LogFileName = "sl-ot-viewer.log"
)

// Config holds the viewer's settings.
type Config struct {
	Port        int         `yaml:"port"`
	StaticDir   string      `yaml:"static_dir"`
	RepoPath    string      `yaml:"repo"`
	LogFile     string      `yaml:"log_file"`
	Debug       bool        `yaml:"debug"`
	HistorySize int         `yaml:"history_size"`
	Shell       ShellConfig `yaml:"shell"`

	// ExeDir is the directory of the running executable. Local JSON files
	// and the default log file live there.
	ExeDir string `yaml:"-"`
}

// ShellConfig overrides shell detection when Program is set.
type ShellConfig struct {
	Program string   `yaml:"program"`
	Args    []string `yaml:"args"`
}

// Default returns the built-in configuration for an executable in exeDir.
func Default(exeDir string) Config {
	return Config{
		Port:        8421,
		StaticDir:   filepath.Join(exeDir, "frontend", "dist"),
		LogFile:     filepath.Join(exeDir, LogFileName),
		HistorySize: 1000,
		ExeDir:      exeDir,
	}
}

// ExecutableDir returns the directory holding the running binary, or "."
// if it cannot be determined.
func ExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// Load builds the configuration from all sources. args excludes the program
// name. getenv is usually os.Getenv. ErrHelp is returned when -h was given.
func Load(args []string, exeDir string, getenv func(string) string) (Config, error) {
	cfg := Default(exeDir)

	flagSet := pflag.NewFlagSet("sl-ot-viewer", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to a YAML config file (default: "+FileName+" next to the executable)")
	port := flagSet.Int("port", 0, "HTTP port to listen on")
	staticDir := flagSet.String("static-dir", "", "directory with the frontend build")
	logFile := flagSet.String("log-file", "", "file to append logs to")
	debug := flagSet.Bool("debug", false, "enable debug logging")
	historySize := flagSet.Int("history", 0, "number of terminal output chunks kept for reconnecting clients")
	shellProgram := flagSet.String("shell", "", "shell program to launch instead of the detected one")

	if err := flagSet.Parse(args); err != nil {
		return Config{}, err
	}

	path := *configPath
	explicit := path != ""
	if !explicit {
		path = filepath.Join(exeDir, FileName)
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return Config{}, err
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}

	if flagSet.Changed("port") {
		cfg.Port = *port
	}
	if flagSet.Changed("static-dir") {
		cfg.StaticDir = *staticDir
	}
	if flagSet.Changed("log-file") {
		cfg.LogFile = *logFile
	}
	if flagSet.Changed("debug") {
		cfg.Debug = *debug
	}
	if flagSet.Changed("history") {
		cfg.HistorySize = *historySize
	}
	if flagSet.Changed("shell") {
		cfg.Shell = parseShell(*shellProgram)
	}

	if rest := flagSet.Args(); len(rest) > 0 {
		cfg.RepoPath = rest[0]
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ErrHelp is returned by Load when help was requested.
var ErrHelp = pflag.ErrHelp

// loadFile merges a YAML file into cfg. A missing file is only an error
// when it was named explicitly.
func (c *Config) loadFile(path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Port = n
	}
	if v := getenv("STATIC_DIR"); v != "" {
		c.StaticDir = v
	}
	if v := getenv("REPO_PATH"); v != "" {
		c.RepoPath = v
	}
	if v := getenv("LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := getenv("VIEWER_SHELL"); v != "" {
		c.Shell = parseShell(v)
	}
	if v := getenv("VIEWER_DEBUG"); v != "" {
		c.Debug = v != "0" && !strings.EqualFold(v, "false")
	}
	return nil
}

// parseShell splits "program arg..." on whitespace.
func parseShell(s string) ShellConfig {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ShellConfig{}
	}
	return ShellConfig{Program: fields[0], Args: fields[1:]}
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("history size must be positive, got %d", c.HistorySize)
	}
	return nil
}
