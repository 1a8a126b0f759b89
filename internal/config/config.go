// Package config loads procprobe configuration.
package config

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/roach88/procprobe/internal/executor"
	"github.com/roach88/procprobe/internal/fixture"
	"github.com/roach88/procprobe/internal/infer"
	"github.com/roach88/procprobe/internal/logging"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PROCPROBE_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config is the complete procprobe configuration.
type Config struct {
	Database  DatabaseConfig       `koanf:"database"`
	Run       RunConfig            `koanf:"run"`
	Session   SessionConfig        `koanf:"session"`
	Types     TypesConfig          `koanf:"types"`
	Enums     map[string]string    `koanf:"enums"`
	Inference InferenceConfig      `koanf:"inference"`
	Fixtures  []fixture.Definition `koanf:"fixtures"`
	Logging   logging.Config       `koanf:"logging"`
	History   HistoryConfig        `koanf:"history"`
	Metrics   MetricsConfig        `koanf:"metrics"`
}

// DatabaseConfig holds connection settings.
type DatabaseConfig struct {
	DSN              string        `koanf:"dsn"`
	MaxConns         int           `koanf:"max_conns"`
	StatementTimeout time.Duration `koanf:"statement_timeout"`
}

// RunConfig holds run-wide settings.
type RunConfig struct {
	Workers    int           `koanf:"workers"`
	Timeout    time.Duration `koanf:"timeout"`
	Retries    int           `koanf:"retries"`
	RetryDelay time.Duration `koanf:"retry_delay"`

	// Seed seeds value generation; 0 picks one from the clock.
	Seed    uint64 `koanf:"seed"`
	Cleanup bool   `koanf:"cleanup"`
}

// SessionConfig names the settings that carry the test identity.
type SessionConfig struct {
	TenantSetting string `koanf:"tenant_setting"`
	UserSetting   string `koanf:"user_setting"`
	SetSQL        string `koanf:"set_sql"`
}

// TypesConfig lists type names per type class.
type TypesConfig struct {
	Identifier []string `koanf:"identifier"`
	Integer    []string `koanf:"integer"`
	Decimal    []string `koanf:"decimal"`
	Boolean    []string `koanf:"boolean"`
	Temporal   []string `koanf:"temporal"`
	JSON       []string `koanf:"json"`
	Text       []string `koanf:"text"`
	EnumSuffix string   `koanf:"enum_suffix"`
}

// InferenceConfig tunes value generation.
type InferenceConfig struct {
	OptionalArrayFamilies []string                          `koanf:"optional_array_families"`
	TextLiterals          map[string]string                 `koanf:"text_literals"`
	JSONPayloads          map[string]map[int]map[string]any `koanf:"json_payloads"`
	ExpiryOffset          time.Duration                     `koanf:"expiry_offset"`
}

// HistoryConfig locates the run history database. Empty disables history.
type HistoryConfig struct {
	Path string `koanf:"path"`
}

// MetricsConfig locates the metrics textfile. Empty disables it.
type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

// Load reads configuration.
//
// Precedence (highest to lowest):
//  1. Environment variables (PROCPROBE_DATABASE_DSN, PROCPROBE_RUN_WORKERS, ...)
//  2. YAML config file at path, when path is not empty
//  3. Built-in defaults
//
// Environment variables map to keys by dropping the prefix, lowercasing and
// splitting on the first underscore:
//
//	PROCPROBE_DATABASE_DSN               -> database.dsn
//	PROCPROBE_DATABASE_STATEMENT_TIMEOUT -> database.statement_timeout
//	PROCPROBE_LOGGING_LEVEL              -> logging.level
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultsYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps PROCPROBE_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("config file %s is not a regular file", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// Validate checks ranges and normalizes derived values: workers are
// clamped to the connection limit.
func (c *Config) Validate() error {
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database.max_conns must be at least 1, got %d", c.Database.MaxConns)
	}
	if c.Database.StatementTimeout < 0 {
		return fmt.Errorf("database.statement_timeout must not be negative")
	}
	if c.Run.Workers < 1 {
		return fmt.Errorf("run.workers must be at least 1, got %d", c.Run.Workers)
	}
	if c.Run.Workers > c.Database.MaxConns {
		c.Run.Workers = c.Database.MaxConns
	}
	if c.Run.Timeout <= 0 {
		return fmt.Errorf("run.timeout must be positive")
	}
	if c.Run.Retries < 0 || c.Run.Retries > 1 {
		return fmt.Errorf("run.retries must be 0 or 1, got %d", c.Run.Retries)
	}
	if c.Session.SetSQL == "" {
		return fmt.Errorf("session.set_sql is required")
	}
	if len(c.Types.Identifier) == 0 {
		return fmt.Errorf("types.identifier must list at least one type")
	}
	if c.Inference.ExpiryOffset < 0 {
		return fmt.Errorf("inference.expiry_offset must not be negative")
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	return nil
}

// Rules builds inference rules from the types, enums and inference sections.
func (c *Config) Rules() infer.Rules {
	r := infer.DefaultRules()
	r.IdentifierTypes = lower(c.Types.Identifier)
	r.IntegerTypes = lower(c.Types.Integer)
	r.DecimalTypes = lower(c.Types.Decimal)
	r.BooleanTypes = lower(c.Types.Boolean)
	r.TemporalTypes = lower(c.Types.Temporal)
	r.JSONTypes = lower(c.Types.JSON)
	r.TextTypes = lower(c.Types.Text)
	r.EnumSuffix = strings.ToLower(c.Types.EnumSuffix)
	for name, lit := range c.Enums {
		r.Enums[strings.ToLower(name)] = lit
	}
	r.OptionalArrayFamilies = c.Inference.OptionalArrayFamilies
	for name, lit := range c.Inference.TextLiterals {
		r.SetTextLiteral(name, lit)
	}
	for family, byIndex := range c.Inference.JSONPayloads {
		r.JSONPayloads[family] = byIndex
	}
	r.ExpiryOffset = c.Inference.ExpiryOffset
	return r
}

// ExecutorOptions returns executor settings.
func (c *Config) ExecutorOptions() executor.Options {
	return executor.Options{
		Timeout:    c.Database.StatementTimeout,
		Retries:    c.Run.Retries,
		RetryDelay: c.Run.RetryDelay,
		SetSQL:     c.Session.SetSQL,
	}
}

// FixtureDefinitions returns the configured fixtures, or the built-in ones.
func (c *Config) FixtureDefinitions() []fixture.Definition {
	if len(c.Fixtures) == 0 {
		return fixture.DefaultDefinitions()
	}
	return c.Fixtures
}

// Seed returns the configured seed, or one derived from now.
func (c *Config) Seed(now time.Time) uint64 {
	if c.Run.Seed != 0 {
		return c.Run.Seed
	}
	return uint64(now.UnixNano())
}

func lower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}
