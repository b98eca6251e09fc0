package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"ollamad/internal/engine"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr" validate:"required"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	// Database is the SQLite catalog path; "memory" keeps the catalog in process.
	Database string `json:"database" yaml:"database" toml:"database"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level" validate:"oneof=trace debug info warn error off"`
	// RequestLog is the default per-request HTTP log level (off, error, info, debug).
	RequestLog string `json:"request_log" yaml:"request_log" toml:"request_log" validate:"omitempty,oneof=off error info debug"`

	BudgetMB               int `json:"budget_mb" yaml:"budget_mb" toml:"budget_mb" validate:"gte=0"`
	MaxQueueDepth          int `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth" validate:"gte=0"`
	LockTimeoutSeconds     int `json:"lock_timeout_seconds" yaml:"lock_timeout_seconds" toml:"lock_timeout_seconds" validate:"gte=0"`
	DrainTimeoutSeconds    int `json:"drain_timeout_seconds" yaml:"drain_timeout_seconds" toml:"drain_timeout_seconds" validate:"gte=0"`
	GenerateTimeoutSeconds int `json:"generate_timeout_seconds" yaml:"generate_timeout_seconds" toml:"generate_timeout_seconds" validate:"gte=0"`
	KeepAliveSeconds       int `json:"keep_alive_seconds" yaml:"keep_alive_seconds" toml:"keep_alive_seconds" validate:"gte=0"`

	Workers     int `json:"workers" yaml:"workers" toml:"workers" validate:"gte=0"`
	ContextSize int `json:"context_size" yaml:"context_size" toml:"context_size" validate:"gte=0"`
	Threads     int `json:"threads" yaml:"threads" toml:"threads" validate:"gte=0"`

	MaxBodyBytes int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes" validate:"gte=0"`
	CORSEnabled  bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins  []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	CORSMethods  []string `json:"cors_methods" yaml:"cors_methods" toml:"cors_methods"`
	CORSHeaders  []string `json:"cors_headers" yaml:"cors_headers" toml:"cors_headers"`

	// Inference holds the server-wide sampling defaults.
	Inference engine.Config `json:"inference" yaml:"inference" toml:"inference"`
}

// Defaults used by WithDefaults.
const (
	DefaultAddr      = ":11434"
	DefaultModelsDir = "~/models/llm"
	DefaultDatabase  = "~/.ollamad/registry.db"
	DefaultLogLevel  = "info"
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// WithDefaults returns a copy with every unspecified field filled in.
func (c Config) WithDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ModelsDir == "" {
		c.ModelsDir = DefaultModelsDir
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.MaxQueueDepth == 0 {
		c.MaxQueueDepth = 32
	}
	if c.LockTimeoutSeconds == 0 {
		c.LockTimeoutSeconds = 30
	}
	if c.DrainTimeoutSeconds == 0 {
		c.DrainTimeoutSeconds = 5
	}
	if c.KeepAliveSeconds == 0 {
		c.KeepAliveSeconds = 300
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1 << 20
	}
	d := engine.Defaults()
	if c.Inference.Temperature == 0 {
		c.Inference.Temperature = d.Temperature
	}
	if c.Inference.TopP == 0 {
		c.Inference.TopP = d.TopP
	}
	if c.Inference.TopK == 0 {
		c.Inference.TopK = d.TopK
	}
	if c.Inference.MaxTokens == 0 {
		c.Inference.MaxTokens = d.MaxTokens
	}
	if c.Inference.RepeatPenalty == 0 {
		c.Inference.RepeatPenalty = d.RepeatPenalty
	}
	return c
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}()

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		var fields validator.ValidationErrors
		if !errors.As(err, &fields) {
			return err
		}
		for _, fe := range fields {
			errs = append(errs, fieldError(fe))
		}
	}
	if err := c.Inference.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("inference: %w", err))
	}
	return errors.Join(errs...)
}

func fieldError(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "oneof":
		return fmt.Errorf("%s %q is not one of %s", fe.Field(), fe.Value(), fe.Param())
	case "gte":
		return fmt.Errorf("%s must not be negative", fe.Field())
	default:
		return fmt.Errorf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// BudgetBytes converts BudgetMB to bytes.
func (c Config) BudgetBytes() int64 { return int64(c.BudgetMB) << 20 }

func (c Config) LockTimeout() time.Duration { return seconds(c.LockTimeoutSeconds) }

func (c Config) DrainTimeout() time.Duration { return seconds(c.DrainTimeoutSeconds) }

func (c Config) GenerateTimeout() time.Duration { return seconds(c.GenerateTimeoutSeconds) }

func (c Config) KeepAlive() time.Duration { return seconds(c.KeepAliveSeconds) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
