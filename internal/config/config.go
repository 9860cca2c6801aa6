package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// Config holds all application configuration.
// Supports environment variables with sensible defaults.
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_KEY: API key for the LLM provider (required)
// - LLM_API_URL: API endpoint URL (default: https://api.groq.com/openai/v1)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 2000)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.1)
// - LLM_TIMEOUT: Per-call timeout in seconds (default: 90)
// - MODEL_PRIORITY_INDEX: Index into the model priority list (default: 0)
//
// Translation Configuration:
// - LANG_CODES: Comma-separated target language codes (default: en,de)
// - SRT_DIR: Directory holding source and per-language subtitle files (required)
// - SRT_SOURCE: Source subtitle filename inside SRT_DIR (default: source.srt)
// - CONTEXT_SIZE: Surrounding lines supplied to the translator (default: 4)
// - MAX_RETRIES: Attempts per segment within one pipeline pass (default: 3)
//
// Pool Configuration:
// - WORKER_COUNT: Concurrent translation workers (default: 6)
// - BATCH_SIZE: Indices submitted per wave (default: 12)
// - SAVE_INTERVAL: Processed items between checkpoints (default: 30)
//
// Misc:
// - CRON_EXPR: Schedule for daemon mode (default: "0 0 * * *")
// - HISTORY_DB: Path of the sqlite run-history database (default: <SRT_DIR>/history.db)
// - VALIDATION_PATTERNS_FILE: Optional JSON file overriding response filters
type Config struct {
	LLM       LLMConfig       `json:"llm"`
	Translate TranslateConfig `json:"translate"`
	Pool      PoolConfig      `json:"pool"`
	Daemon    DaemonConfig    `json:"daemon"`
	Patterns  Patterns        `json:"patterns"`
	HistoryDB string          `json:"history_db"`
}

// LLMConfig holds the configuration for the LLM client.
// Supports any OpenAI-compatible provider.
type LLMConfig struct {
	APIKey             string  `json:"api_key"`
	APIURL             string  `json:"api_url"`
	Model              string  `json:"model"`
	ModelPriorityIndex int     `json:"model_priority_index"`
	MaxTokens          int     `json:"max_tokens"`
	Temperature        float64 `json:"temperature"`
	TimeoutSeconds     int     `json:"timeout"`
}

// TranslateConfig holds the translation job configuration.
type TranslateConfig struct {
	LangCodes   []string `json:"lang_codes"`
	SRTDir      string   `json:"srt_dir"`
	SourceFile  string   `json:"source_file"`
	ContextSize int      `json:"context_size"`
	MaxRetries  int      `json:"max_retries"`
}

// PoolConfig holds worker pool and checkpoint cadence settings.
type PoolConfig struct {
	WorkerCount          int `json:"worker_count"`
	BatchSize            int `json:"batch_size"`
	SaveInterval         int `json:"save_interval"`
	BatchTimeoutSeconds  int `json:"batch_timeout"`
	ResultTimeoutSeconds int `json:"result_timeout"`
}

// DaemonConfig holds scheduling configuration for daemon mode.
type DaemonConfig struct {
	CronExpr string `json:"cron_expr"`
}

// ModelPriorityList is the ordered set of models to choose from.
// MODEL_PRIORITY_INDEX selects one; an out-of-range index falls back to 0.
var ModelPriorityList = []string{
	"openai/gpt-oss-20b",
	"qwen/qwen3-32b",
	"gemma2-9b-it",
	"llama-3.3-70b-versatile",
	"meta-llama/llama-4-maverick-17b-128e-instruct",
	"moonshotai/kimi-k2-instruct",
	"openai/gpt-oss-120b",
	"deepseek-r1-distill-llama-70b",
}

// Option is a function type for configuring Config.
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment
// variables and options.
func NewFromEnv(opts ...Option) (*Config, error) {
	srtDir := getEnvString("SRT_DIR", "")

	config := &Config{
		LLM: LLMConfig{
			APIKey:             getEnvString("LLM_API_KEY", ""),
			APIURL:             getEnvString("LLM_API_URL", "https://api.groq.com/openai/v1"),
			ModelPriorityIndex: getEnvInt("MODEL_PRIORITY_INDEX", 0),
			MaxTokens:          getEnvInt("LLM_MAX_TOKENS", 2000),
			Temperature:        getEnvFloat("LLM_TEMPERATURE", 0.1),
			TimeoutSeconds:     getEnvInt("LLM_TIMEOUT", 90),
		},
		Translate: TranslateConfig{
			LangCodes:   splitLangCodes(getEnvString("LANG_CODES", "en,de")),
			SRTDir:      srtDir,
			SourceFile:  getEnvString("SRT_SOURCE", "source.srt"),
			ContextSize: getEnvInt("CONTEXT_SIZE", 4),
			MaxRetries:  getEnvInt("MAX_RETRIES", 3),
		},
		Pool: PoolConfig{
			WorkerCount:          getEnvInt("WORKER_COUNT", 6),
			BatchSize:            getEnvInt("BATCH_SIZE", 12),
			SaveInterval:         getEnvInt("SAVE_INTERVAL", 30),
			BatchTimeoutSeconds:  getEnvInt("BATCH_TIMEOUT", 300),
			ResultTimeoutSeconds: getEnvInt("RESULT_TIMEOUT", 15),
		},
		Daemon: DaemonConfig{
			CronExpr: getEnvString("CRON_EXPR", "0 0 * * *"),
		},
		Patterns:  DefaultPatterns(),
		HistoryDB: getEnvString("HISTORY_DB", ""),
	}

	config.LLM.Model = SelectModel(config.LLM.ModelPriorityIndex)

	if path := getEnvString("VALIDATION_PATTERNS_FILE", ""); path != "" {
		patterns, err := LoadPatternsFile(path)
		if err != nil {
			return nil, fmt.Errorf("load validation patterns: %w", err)
		}
		config.Patterns = patterns
	}

	for _, opt := range opts {
		opt(config)
	}

	if config.HistoryDB == "" && config.Translate.SRTDir != "" {
		config.HistoryDB = config.Translate.SRTDir + "/history.db"
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SelectModel returns the model at the given priority index, falling back to
// the first entry when the index is out of range.
func SelectModel(index int) string {
	if index < 0 || index >= len(ModelPriorityList) {
		return ModelPriorityList[0]
	}
	return ModelPriorityList[index]
}

// validate checks if all required configuration is properly set.
func (c *Config) validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.Translate.SRTDir == "" {
		return fmt.Errorf("SRT_DIR is required")
	}
	if len(c.Translate.LangCodes) == 0 {
		return fmt.Errorf("LANG_CODES is required")
	}
	for _, code := range c.Translate.LangCodes {
		if _, err := language.Parse(code); err != nil {
			return fmt.Errorf("invalid language code %q: %w", code, err)
		}
	}
	if c.Pool.WorkerCount <= 0 {
		return fmt.Errorf("WORKER_COUNT must be greater than 0")
	}
	if c.Pool.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be greater than 0")
	}
	if c.Translate.MaxRetries <= 0 {
		return fmt.Errorf("MAX_RETRIES must be greater than 0")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be greater than 0")
	}
	if c.Pool.BatchTimeoutSeconds <= 0 {
		return fmt.Errorf("BATCH_TIMEOUT must be greater than 0")
	}
	if c.Pool.ResultTimeoutSeconds <= 0 {
		return fmt.Errorf("RESULT_TIMEOUT must be greater than 0")
	}
	return nil
}

func splitLangCodes(s string) []string {
	parts := strings.Split(s, ",")
	ret := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			ret = append(ret, p)
		}
	}
	return ret
}

// getEnvString gets a string value from environment variables with default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
