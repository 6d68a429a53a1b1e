package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "quill.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// LoadWithCLI returns a Config using the full hierarchy:
// defaults < YAML < ENV < CLI flags. It also returns the resolved YAML path.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	yamlPath := DefaultConfigFile
	if flags.ConfigPath != nil {
		yamlPath = *flags.ConfigPath
	}

	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, yamlPath, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, yamlPath, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, yamlPath, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "QUILL_PORT")
	setString(&cfg.Server.CORSOrigin, "QUILL_CORS_ORIGIN")
	setFloat64(&cfg.Server.RateLimitRPS, "QUILL_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "QUILL_RATE_LIMIT_BURST")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "QUILL_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "QUILL_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "QUILL_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "QUILL_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "QUILL_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.OpenAI.URL, "OPENAI_BASE_URL")
	setString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAI.Model, "QUILL_OPENAI_MODEL")
	setInt(&cfg.OpenAI.MaxTokens, "QUILL_OPENAI_MAX_TOKENS")
	setFloat64(&cfg.OpenAI.Temperature, "QUILL_OPENAI_TEMPERATURE")
	setDuration(&cfg.OpenAI.Timeout, "QUILL_OPENAI_TIMEOUT")
	setString(&cfg.Wikipedia.URL, "QUILL_WIKIPEDIA_URL")
	setString(&cfg.Wikipedia.UserAgent, "QUILL_WIKIPEDIA_USER_AGENT")
	setDuration(&cfg.Wikipedia.Timeout, "QUILL_WIKIPEDIA_TIMEOUT")
	setString(&cfg.Logging.Level, "QUILL_LOG_LEVEL")
	setString(&cfg.Logging.Service, "QUILL_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "QUILL_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "QUILL_BREAKER_TIMEOUT")
	setBool(&cfg.Telemetry.Enabled, "QUILL_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "QUILL_OTLP_ENDPOINT")
	setFloat64(&cfg.Telemetry.SampleRatio, "QUILL_TELEMETRY_SAMPLE_RATIO")
	setBool(&cfg.MCP.Enabled, "QUILL_MCP_ENABLED")
	setString(&cfg.MCP.Token, "QUILL_MCP_TOKEN")
	setInt(&cfg.Pipeline.MaxWordCount, "QUILL_MAX_WORD_COUNT")
	setInt64(&cfg.Pipeline.MaxConcurrent, "QUILL_MAX_CONCURRENT")
	setInt(&cfg.Research.MaxQueries, "QUILL_RESEARCH_MAX_QUERIES")
	setInt(&cfg.Research.ResultsPerQuery, "QUILL_RESEARCH_RESULTS_PER_QUERY")
	setFloat64(&cfg.Research.CredibilityFloor, "QUILL_RESEARCH_CREDIBILITY_FLOOR")
	setInt(&cfg.Writer.ReadingSpeedWPM, "QUILL_WRITER_READING_SPEED_WPM")
	setInt(&cfg.Writer.MaxTags, "QUILL_WRITER_MAX_TAGS")
	setInt(&cfg.Writer.SummaryMaxChars, "QUILL_WRITER_SUMMARY_MAX_CHARS")
	setFloat64(&cfg.Scoring.LengthWeight, "QUILL_SCORING_LENGTH_WEIGHT")
	setFloat64(&cfg.Scoring.StructureWeight, "QUILL_SCORING_STRUCTURE_WEIGHT")
	setFloat64(&cfg.Scoring.ConfidenceWeight, "QUILL_SCORING_CONFIDENCE_WEIGHT")
	setInt(&cfg.Scoring.MinSections, "QUILL_SCORING_MIN_SECTIONS")
	setFloat64(&cfg.Scoring.HighCredibility, "QUILL_SCORING_HIGH_CREDIBILITY")
	setInt(&cfg.Scoring.DepthSaturation, "QUILL_SCORING_DEPTH_SATURATION")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Pipeline.MaxWordCount < 100 {
		return errors.New("pipeline.max_word_count must be >= 100")
	}
	if cfg.Pipeline.MaxConcurrent < 1 {
		return errors.New("pipeline.max_concurrent must be >= 1")
	}
	if cfg.Research.MaxQueries < 2 || cfg.Research.MaxQueries > 4 {
		return errors.New("research.max_queries must be within [2, 4]")
	}
	if cfg.Research.CredibilityFloor < 0 || cfg.Research.CredibilityFloor > 1 {
		return errors.New("research.credibility_floor must be within [0, 1]")
	}
	if cfg.Scoring.HighCredibility < 0 || cfg.Scoring.HighCredibility > 1 {
		return errors.New("scoring.high_credibility must be within [0, 1]")
	}
	if cfg.Scoring.DepthSaturation < 1 {
		return errors.New("scoring.depth_saturation must be >= 1")
	}
	if cfg.Writer.ReadingSpeedWPM < 1 {
		return errors.New("writer.reading_speed_wpm must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
