// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads nl2sql settings from defaults, an optional YAML file,
// a .env file and the environment, in increasing order of priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/nl2sql/pkg/backends/sqldb"
	"github.com/teradata-labs/nl2sql/pkg/fabric"
	"github.com/teradata-labs/nl2sql/pkg/llm"
	"github.com/teradata-labs/nl2sql/pkg/shaper"
	"github.com/teradata-labs/nl2sql/pkg/tokens"
	"github.com/teradata-labs/nl2sql/pkg/visualization"
)

const (
	// EnvPrefix prefixes every NL2SQL_ environment variable.
	EnvPrefix = "NL2SQL"

	// DefaultConfigFileName is searched for as <name>.yaml.
	DefaultConfigFileName = "nl2sql"

	// ProviderGemini is the only hosted provider.
	ProviderGemini = "gemini"
)

// Config holds all nl2sql configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server" yaml:"server"`
	LLM           LLMConfig           `mapstructure:"llm" yaml:"llm"`
	Database      DatabaseConfig      `mapstructure:"database" yaml:"database"`
	Shaper        ShaperConfig        `mapstructure:"shaper" yaml:"shaper"`
	Visualization VisualizationConfig `mapstructure:"visualization" yaml:"visualization"`
	Tokens        TokensConfig        `mapstructure:"tokens" yaml:"tokens"`
	Logging       LoggingConfig       `mapstructure:"logging" yaml:"logging"`

	// ConfigFile is the file that was read, if any.
	ConfigFile string `mapstructure:"-" yaml:"-"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`

	// Environment is informational (development, production, ...)
	Environment string `mapstructure:"environment" yaml:"environment"`

	// IncludeSQLDefault applies when a request omits include_sql
	IncludeSQLDefault bool `mapstructure:"include_sql_default" yaml:"include_sql_default"`

	// RequestTimeout bounds one /ask request (0 = none)
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	CORS CORSConfig `mapstructure:"cors" yaml:"cors"`
}

// CORSConfig holds CORS settings for the HTTP endpoints.
type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age" yaml:"max_age"`
}

// LLMConfig holds model provider settings.
type LLMConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`

	GeminiAPIKey  string `mapstructure:"gemini_api_key" yaml:"gemini_api_key"`
	GeminiModel   string `mapstructure:"gemini_model" yaml:"gemini_model"`
	GeminiBaseURL string `mapstructure:"gemini_base_url" yaml:"gemini_base_url"`

	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`

	MaxTurns          int `mapstructure:"max_turns" yaml:"max_turns"`
	MaxToolExecutions int `mapstructure:"max_tool_executions" yaml:"max_tool_executions"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig maps onto llm.RateLimiterConfig.
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
}

// DatabaseConfig holds the SQL backend settings.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" yaml:"driver"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Name     string `mapstructure:"name" yaml:"name"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
	Schema   string `mapstructure:"schema" yaml:"schema"`
	Path     string `mapstructure:"path" yaml:"path"`
	DSN      string `mapstructure:"dsn" yaml:"dsn"`

	// MaxRows is the LIMIT injected into unbounded queries
	MaxRows int `mapstructure:"max_rows" yaml:"max_rows"`

	// MaxTables caps the tables get_schema returns
	MaxTables int `mapstructure:"max_tables" yaml:"max_tables"`

	SchemaCacheTTL time.Duration `mapstructure:"schema_cache_ttl" yaml:"schema_cache_ttl"`
	MaxOpenConns   int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`

	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker" yaml:"circuit_breaker"`
}

// CircuitBreakerConfig fails database calls fast after repeated connection
// failures.
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled" yaml:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxTimeout       time.Duration `mapstructure:"max_timeout" yaml:"max_timeout"`
}

// ShaperConfig holds result shaping settings.
type ShaperConfig struct {
	MaxRows           int      `mapstructure:"max_rows" yaml:"max_rows"`
	MaxCharsPerField  int      `mapstructure:"max_chars_per_field" yaml:"max_chars_per_field"`
	SummaryThreshold  int      `mapstructure:"summary_threshold" yaml:"summary_threshold"`
	SummaryMaxColumns int      `mapstructure:"summary_max_columns" yaml:"summary_max_columns"`
	RedundantFields   []string `mapstructure:"redundant_fields" yaml:"redundant_fields"`

	// LLMFormat renders tool output for the model: compact, readable or json
	LLMFormat string `mapstructure:"llm_format" yaml:"llm_format"`
}

// VisualizationConfig holds classifier policy.
type VisualizationConfig struct {
	PieMaxCategories int `mapstructure:"pie_max_categories" yaml:"pie_max_categories"`
	BarMaxCategories int `mapstructure:"bar_max_categories" yaml:"bar_max_categories"`
}

// TokensConfig holds token accounting settings.
type TokensConfig struct {
	// Estimator is heuristic or tiktoken
	Estimator string `mapstructure:"estimator" yaml:"estimator"`

	InputPerMillion  float64 `mapstructure:"input_per_million" yaml:"input_per_million"`
	OutputPerMillion float64 `mapstructure:"output_per_million" yaml:"output_per_million"`

	QuestionMaxChars int    `mapstructure:"question_max_chars" yaml:"question_max_chars"`
	ExportPath       string `mapstructure:"export_path" yaml:"export_path"`

	Thresholds tokens.Thresholds `mapstructure:"thresholds" yaml:"thresholds"`

	Schedule ExportScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
}

// ExportScheduleConfig controls periodic token exports. An empty Cron
// disables them.
type ExportScheduleConfig struct {
	Cron     string `mapstructure:"cron" yaml:"cron"`
	Dir      string `mapstructure:"dir" yaml:"dir"`
	Format   string `mapstructure:"format" yaml:"format"`
	Compress bool   `mapstructure:"compress" yaml:"compress"`
	Keep     int    `mapstructure:"keep" yaml:"keep"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// envAliases binds the variable names used by existing deployments.
var envAliases = map[string][]string{
	"server.host":        {"API_HOST"},
	"server.port":        {"API_PORT"},
	"server.environment": {"ENV"},
	"llm.gemini_api_key": {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"database.host":      {"POSTGRES_HOST"},
	"database.port":      {"POSTGRES_PORT"},
	"database.name":      {"POSTGRES_DB"},
	"database.user":      {"POSTGRES_USER"},
	"database.password":  {"POSTGRES_PASSWORD"},
	"database.sslmode":   {"POSTGRES_SSLMODE"},
	"database.dsn":       {"DATABASE_URL"},
	"logging.level":      {"LOG_LEVEL"},
}

// Load reads configuration with this priority:
//  1. Environment variables (NL2SQL_* and the aliases above)
//  2. .env in the working directory (never overriding the real environment)
//  3. Config file (cfgFile, else nl2sql.yaml in ., the data dir, /etc/nl2sql)
//  4. Defaults
func Load(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := newViper()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(DataDir())
		v.AddConfigPath("/etc/nl2sql/")
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	cfg.ConfigFile = v.ConfigFileUsed()
	return cfg, nil
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := unmarshal(v)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in defaults: %v", err))
	}
	return cfg
}

// ExampleYAML renders the defaults as a config file.
func ExampleYAML() (string, error) {
	out, err := yaml.Marshal(Defaults())
	if err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	return "# nl2sql configuration\n" + string(out), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, aliases := range envAliases {
		names := append([]string{key, EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		_ = v.BindEnv(names...)
	}
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.include_sql_default", true)
	v.SetDefault("server.request_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors.enabled", true)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("server.cors.allowed_headers", []string{"*"})
	v.SetDefault("server.cors.max_age", 86400)

	// LLM defaults
	v.SetDefault("llm.provider", ProviderGemini)
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.gemini_model", "gemini-2.0-flash")
	v.SetDefault("llm.gemini_base_url", "")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_turns", 8)
	v.SetDefault("llm.max_tool_executions", 16)
	v.SetDefault("llm.rate_limit.enabled", true)
	v.SetDefault("llm.rate_limit.requests_per_second", 2.0)
	v.SetDefault("llm.rate_limit.burst", 5)
	v.SetDefault("llm.rate_limit.max_retries", 3)
	v.SetDefault("llm.rate_limit.retry_backoff", "1s")

	// Database defaults
	v.SetDefault("database.driver", sqldb.DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.schema", "public")
	v.SetDefault("database.path", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_rows", 50)
	v.SetDefault("database.max_tables", 15)
	v.SetDefault("database.schema_cache_ttl", "0s")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.circuit_breaker.enabled", true)
	v.SetDefault("database.circuit_breaker.failure_threshold", 3)
	v.SetDefault("database.circuit_breaker.timeout", "10s")
	v.SetDefault("database.circuit_breaker.max_timeout", "60s")

	// Shaper defaults
	sh := shaper.DefaultConfig()
	v.SetDefault("shaper.max_rows", sh.MaxRows)
	v.SetDefault("shaper.max_chars_per_field", sh.MaxCharsPerField)
	v.SetDefault("shaper.summary_threshold", sh.SummaryThreshold)
	v.SetDefault("shaper.summary_max_columns", sh.SummaryMaxColumns)
	v.SetDefault("shaper.redundant_fields", sh.RedundantFields)
	v.SetDefault("shaper.llm_format", shaper.FormatCompact)

	// Visualization defaults
	vis := visualization.DefaultConfig()
	v.SetDefault("visualization.pie_max_categories", vis.PieMaxCategories)
	v.SetDefault("visualization.bar_max_categories", vis.BarMaxCategories)

	// Token accounting defaults
	th := tokens.DefaultThresholds()
	v.SetDefault("tokens.estimator", tokens.EstimatorHeuristic)
	v.SetDefault("tokens.input_per_million", tokens.DefaultPricing.InputPerMillion)
	v.SetDefault("tokens.output_per_million", tokens.DefaultPricing.OutputPerMillion)
	v.SetDefault("tokens.question_max_chars", 100)
	v.SetDefault("tokens.export_path", "token_usage.json")
	v.SetDefault("tokens.thresholds.schema_tokens", th.SchemaTokens)
	v.SetDefault("tokens.thresholds.tool_output_tokens", th.ToolOutputTokens)
	v.SetDefault("tokens.thresholds.avg_tokens_per_request", th.AvgTokensPerRequest)
	v.SetDefault("tokens.thresholds.cost_usd", th.CostUSD)
	v.SetDefault("tokens.thresholds.window", th.Window)
	v.SetDefault("tokens.schedule.cron", "")
	v.SetDefault("tokens.schedule.dir", "exports")
	v.SetDefault("tokens.schedule.format", tokens.FormatJSON)
	v.SetDefault("tokens.schedule.compress", true)
	v.SetDefault("tokens.schedule.keep", 48)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	return errors.Join(
		c.validateServer(),
		c.ValidateLLM(),
		c.ValidateDatabase(),
		c.validatePipeline(),
	)
}

func (c *Config) validateServer() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port))
	}
	if c.Server.RequestTimeout < 0 {
		errs = append(errs, errors.New("server.request_timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// ValidateLLM checks the model provider settings.
func (c *Config) ValidateLLM() error {
	var errs []error
	switch c.LLM.Provider {
	case ProviderGemini:
		if c.LLM.GeminiAPIKey == "" {
			errs = append(errs, errors.New("llm.gemini_api_key is required (set GEMINI_API_KEY)"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported llm.provider %q (supported: gemini)", c.LLM.Provider))
	}
	if c.LLM.MaxTurns <= 0 {
		errs = append(errs, errors.New("llm.max_turns must be positive"))
	}
	if c.LLM.MaxToolExecutions <= 0 {
		errs = append(errs, errors.New("llm.max_tool_executions must be positive"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be between 0 and 2, got %g", c.LLM.Temperature))
	}
	return errors.Join(errs...)
}

// ValidateDatabase checks the SQL backend settings.
func (c *Config) ValidateDatabase() error {
	var errs []error
	switch c.Database.Driver {
	case sqldb.DriverPostgres, "postgresql", sqldb.DriverMySQL, sqldb.DriverSQLite, "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver %q (supported: postgres, mysql, sqlite)", c.Database.Driver))
	}
	if c.Database.MaxRows <= 0 {
		errs = append(errs, errors.New("database.max_rows must be positive"))
	}
	if c.Database.MaxTables <= 0 {
		errs = append(errs, errors.New("database.max_tables must be positive"))
	}
	if cb := c.Database.CircuitBreaker; cb.Enabled && (cb.FailureThreshold <= 0 || cb.Timeout <= 0) {
		errs = append(errs, errors.New("database.circuit_breaker needs a positive failure_threshold and timeout"))
	}
	return errors.Join(errs...)
}

func (c *Config) validatePipeline() error {
	var errs []error
	if c.Shaper.MaxRows <= 0 {
		errs = append(errs, errors.New("shaper.max_rows must be positive"))
	}
	if c.Shaper.MaxCharsPerField <= 0 {
		errs = append(errs, errors.New("shaper.max_chars_per_field must be positive"))
	}
	switch c.Shaper.LLMFormat {
	case shaper.FormatCompact, shaper.FormatReadable, shaper.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unsupported shaper.llm_format %q", c.Shaper.LLMFormat))
	}
	if c.Visualization.PieMaxCategories < 2 {
		errs = append(errs, errors.New("visualization.pie_max_categories must be at least 2"))
	}
	if c.Visualization.BarMaxCategories < c.Visualization.PieMaxCategories {
		errs = append(errs, errors.New("visualization.bar_max_categories must not be below pie_max_categories"))
	}
	switch c.Tokens.Estimator {
	case tokens.EstimatorHeuristic, tokens.EstimatorTiktoken:
	default:
		errs = append(errs, fmt.Errorf("unsupported tokens.estimator %q (supported: heuristic, tiktoken)", c.Tokens.Estimator))
	}
	if c.Tokens.InputPerMillion < 0 || c.Tokens.OutputPerMillion < 0 {
		errs = append(errs, errors.New("token prices must not be negative"))
	}
	if c.Tokens.Schedule.Cron != "" {
		if err := tokens.ValidateSchedule(c.Tokens.Schedule.Cron); err != nil {
			errs = append(errs, fmt.Errorf("tokens.schedule: %w", err))
		}
		switch c.Tokens.Schedule.Format {
		case tokens.FormatJSON, tokens.FormatYAML:
		default:
			errs = append(errs, fmt.Errorf("unsupported tokens.schedule.format %q (supported: json, yaml)", c.Tokens.Schedule.Format))
		}
	}
	if c.Tokens.Schedule.Keep < 0 {
		errs = append(errs, errors.New("tokens.schedule.keep must not be negative"))
	}
	return errors.Join(errs...)
}

// BackendConfig maps the database section onto sqldb.Config.
func (c *Config) BackendConfig(logger *zap.Logger) sqldb.Config {
	d := c.Database
	return sqldb.Config{
		Driver:         d.Driver,
		Host:           d.Host,
		Port:           d.Port,
		Name:           d.Name,
		User:           d.User,
		Password:       d.Password,
		SSLMode:        d.SSLMode,
		Schema:         d.Schema,
		Path:           d.Path,
		DSN:            d.DSN,
		MaxRows:        d.MaxRows,
		SchemaCacheTTL: d.SchemaCacheTTL,
		MaxOpenConns:   d.MaxOpenConns,
		Logger:         logger,
	}
}

// BreakerConfig maps the circuit breaker section onto fabric.CircuitBreakerConfig.
func (c *Config) BreakerConfig(logger *zap.Logger) fabric.CircuitBreakerConfig {
	cb := c.Database.CircuitBreaker
	if logger == nil {
		logger = zap.NewNop()
	}
	return fabric.CircuitBreakerConfig{
		FailureThreshold: cb.FailureThreshold,
		Timeout:          cb.Timeout,
		MaxTimeout:       cb.MaxTimeout,
		Logger:           logger,
		OnStateChange: func(from, to fabric.CircuitState) {
			logger.Warn("Database circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
}

// ShaperConfig maps the shaper section onto shaper.Config.
func (c *Config) ShaperConfig() shaper.Config {
	sc := shaper.DefaultConfig()
	sc.MaxRows = c.Shaper.MaxRows
	sc.MaxCharsPerField = c.Shaper.MaxCharsPerField
	sc.SummaryThreshold = c.Shaper.SummaryThreshold
	sc.SummaryMaxColumns = c.Shaper.SummaryMaxColumns
	if c.Shaper.RedundantFields != nil {
		sc.RedundantFields = append([]string(nil), c.Shaper.RedundantFields...)
	}
	return sc
}

// ClassifierConfig maps the visualization section onto visualization.Config.
func (c *Config) ClassifierConfig(logger *zap.Logger) visualization.Config {
	vc := visualization.DefaultConfig()
	vc.PieMaxCategories = c.Visualization.PieMaxCategories
	vc.BarMaxCategories = c.Visualization.BarMaxCategories
	vc.Logger = logger
	return vc
}

// AccountantConfig maps the tokens section onto tokens.Config.
func (c *Config) AccountantConfig(logger *zap.Logger) tokens.Config {
	pricing := tokens.Pricing{
		InputPerMillion:  c.Tokens.InputPerMillion,
		OutputPerMillion: c.Tokens.OutputPerMillion,
	}
	thresholds := c.Tokens.Thresholds
	return tokens.Config{
		Estimator:        tokens.NewEstimator(c.Tokens.Estimator, logger),
		Pricing:          &pricing,
		Thresholds:       &thresholds,
		QuestionMaxChars: c.Tokens.QuestionMaxChars,
		Logger:           logger,
	}
}

// ExportScheduleConfig maps tokens.schedule onto tokens.ScheduleConfig.
func (c *Config) ExportScheduleConfig(logger *zap.Logger) tokens.ScheduleConfig {
	s := c.Tokens.Schedule
	return tokens.ScheduleConfig{
		Cron:     s.Cron,
		Dir:      s.Dir,
		Format:   s.Format,
		Compress: s.Compress,
		Keep:     s.Keep,
		Logger:   logger,
	}
}

// RateLimiterConfig maps the rate limit section onto llm.RateLimiterConfig.
func (c *Config) RateLimiterConfig(logger *zap.Logger) llm.RateLimiterConfig {
	rl := c.LLM.RateLimit
	return llm.RateLimiterConfig{
		Enabled:           rl.Enabled,
		RequestsPerSecond: rl.RequestsPerSecond,
		BurstCapacity:     rl.Burst,
		MaxRetries:        rl.MaxRetries,
		RetryBackoff:      rl.RetryBackoff,
		Logger:            logger,
	}
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
