package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ollamad/internal/common/fsutil"
	"ollamad/internal/config"
	"ollamad/internal/registry"
)

// Environment variables providing defaults for the matching flags.
const (
	envAddr   = "OLLAMAD_ADDR"
	envModels = "OLLAMAD_MODELS"
	envDB     = "OLLAMAD_DB"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ollamad",
		Short:         "Serve local GGUF models over an Ollama-compatible API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.String("config", "", "Config file (.yaml, .yml, .json, .toml)")
	pf.String("addr", "", "HTTP listen address (default "+config.DefaultAddr+", env "+envAddr+")")
	pf.String("models-dir", "", "Directory to scan for *.gguf files (default "+config.DefaultModelsDir+", env "+envModels+")")
	pf.String("db", "", "SQLite catalog path, or \"memory\" (default "+config.DefaultDatabase+", env "+envDB+")")
	pf.String("log-level", "", "Log level: trace|debug|info|warn|error|off")
	pf.Bool("pretty", false, "Human-friendly console logs")

	root.AddCommand(newServeCmd(), newListCmd(), newSearchCmd(), newStatsCmd())
	return root
}

// resolveConfig layers defaults < config file < environment < explicit flags.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if v := os.Getenv(envAddr); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv(envModels); v != "" {
		cfg.ModelsDir = v
	}
	if v := os.Getenv(envDB); v != "" {
		cfg.Database = v
	}

	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}
	str := func(name string, dst *string) {
		if changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	secs := func(name string, dst *int) {
		if changed(name) {
			d, _ := flags.GetDuration(name)
			*dst = int(d / time.Second)
		}
	}
	str("addr", &cfg.Addr)
	str("models-dir", &cfg.ModelsDir)
	str("db", &cfg.Database)
	str("log-level", &cfg.LogLevel)
	str("request-log", &cfg.RequestLog)
	num("budget-mb", &cfg.BudgetMB)
	num("max-queue-depth", &cfg.MaxQueueDepth)
	num("workers", &cfg.Workers)
	num("ctx-size", &cfg.ContextSize)
	num("threads", &cfg.Threads)
	secs("keep-alive", &cfg.KeepAliveSeconds)
	secs("generate-timeout", &cfg.GenerateTimeoutSeconds)
	if changed("cors-origins") {
		v, _ := flags.GetString("cors-origins")
		cfg.CORSOrigins = splitCSV(v)
		cfg.CORSEnabled = len(cfg.CORSOrigins) > 0
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. "off" disables output.
func newLogger(w io.Writer, level string, pretty bool) zerolog.Logger {
	lvl := zerolog.Disabled
	if l := strings.ToLower(level); l != "off" {
		parsed, err := zerolog.ParseLevel(l)
		if err != nil {
			parsed = zerolog.InfoLevel
		}
		lvl = parsed
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func loggerFor(cmd *cobra.Command, cfg config.Config) zerolog.Logger {
	pretty, _ := cmd.Flags().GetBool("pretty")
	return newLogger(cmd.ErrOrStderr(), cfg.LogLevel, pretty)
}

// openStore opens the SQLite catalog at path, creating its directory. "memory"
// selects an in-process store that forgets everything on exit.
func openStore(path string) (registry.Store, error) {
	if path == "" || path == "memory" {
		return registry.NewMemoryStore(), nil
	}
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	if _, err := fsutil.EnsureDir(filepath.Dir(p)); err != nil {
		return nil, err
	}
	return registry.OpenSQLite(p)
}

// splitCSV splits a comma-separated list, trimming blanks and dropping empties.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
