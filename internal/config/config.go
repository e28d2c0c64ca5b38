package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DataDir            string `json:"data_dir"`
	LogLevel           string `json:"log_level"`
	LogFile            string `json:"log_file"`
	MaxConcurrent      int    `json:"max_concurrent"`
	HistoryLimit       int    `json:"history_limit"`
	TurnTimeoutSeconds int    `json:"turn_timeout_seconds"`
	HTTP               struct {
		Addr string `json:"addr"`
	} `json:"http"`
	LLM struct {
		Provider         string  `json:"provider"`
		BaseURL          string  `json:"base_url"`
		APIKey           string  `json:"api_key"`
		Model            string  `json:"model"`
		FastModel        string  `json:"fast_model"`
		MaxTokens        int     `json:"max_tokens"`
		Temperature      float32 `json:"temperature"`
		MaxContextTokens int     `json:"max_context_tokens"`
		OutputReserve    int     `json:"output_reserve"`
	} `json:"llm"`
	Tools struct {
		TimeoutSeconds  int `json:"timeout_seconds"`
		CacheTTLSeconds int `json:"cache_ttl_seconds"`
		MaxRetries      int `json:"max_retries"`
	} `json:"tools"`
	Brave struct {
		APIKey string `json:"api_key"`
	} `json:"brave"`
	GooglePlaces struct {
		APIKey string `json:"api_key"`
	} `json:"google_places"`
	Amadeus struct {
		BaseURL      string `json:"base_url"`
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"amadeus"`
	Ticketmaster struct {
		APIKey string `json:"api_key"`
	} `json:"ticketmaster"`
	Reddit struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
		UserAgent    string `json:"user_agent"`
	} `json:"reddit"`
	YouTube struct {
		APIKey string `json:"api_key"`
	} `json:"youtube"`
	Telegram struct {
		Token string `json:"token"`
	} `json:"telegram"`
}

// env holds the environment overrides. Unset variables leave the file value alone.
type env struct {
	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `envconfig:"OPENAI_BASE_URL"`
	AnthropicAPIKey     string `envconfig:"ANTHROPIC_API_KEY"`
	OllamaHost          string `envconfig:"OLLAMA_HOST"`
	BraveAPIKey         string `envconfig:"BRAVE_API_KEY"`
	GooglePlacesAPIKey  string `envconfig:"GOOGLE_PLACES_API_KEY"`
	AmadeusClientID     string `envconfig:"AMADEUS_CLIENT_ID"`
	AmadeusClientSecret string `envconfig:"AMADEUS_CLIENT_SECRET"`
	TicketmasterAPIKey  string `envconfig:"TICKETMASTER_API_KEY"`
	RedditClientID      string `envconfig:"REDDIT_CLIENT_ID"`
	RedditClientSecret  string `envconfig:"REDDIT_CLIENT_SECRET"`
	YouTubeAPIKey       string `envconfig:"YOUTUBE_API_KEY"`
	TelegramBotToken    string `envconfig:"TELEGRAM_BOT_TOKEN"`
	LogLevel            string `envconfig:"WAYFARER_LOG_LEVEL"`
}

// DefaultPath returns ~/.wayfarer/config.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".wayfarer", "config.json")
}

func defaults() *Config {
	cfg := &Config{
		DataDir:            filepath.Dir(DefaultPath()),
		LogLevel:           "info",
		MaxConcurrent:      4,
		HistoryLimit:       10,
		TurnTimeoutSeconds: 120,
	}
	cfg.HTTP.Addr = ":8080"
	cfg.LLM.Provider = "openai"
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o"
	cfg.LLM.FastModel = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 2000
	cfg.LLM.Temperature = 0.7
	cfg.LLM.MaxContextTokens = 128000
	cfg.LLM.OutputReserve = 4096
	cfg.Tools.TimeoutSeconds = 15
	cfg.Tools.CacheTTLSeconds = 600
	cfg.Tools.MaxRetries = 2
	cfg.Amadeus.BaseURL = "https://test.api.amadeus.com"
	cfg.Reddit.UserAgent = "wayfarer/0.1"
	return cfg
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored and variables already set are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the config file at path, writing defaults first when it does
// not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var e env
	if err := envconfig.Process("", &e); err != nil {
		return fmt.Errorf("process env: %w", err)
	}

	switch cfg.LLM.Provider {
	case "anthropic":
		setIf(&cfg.LLM.APIKey, e.AnthropicAPIKey)
	case "ollama":
		setIf(&cfg.LLM.BaseURL, e.OllamaHost)
	default:
		setIf(&cfg.LLM.APIKey, e.OpenAIAPIKey)
		setIf(&cfg.LLM.BaseURL, e.OpenAIBaseURL)
	}
	setIf(&cfg.Brave.APIKey, e.BraveAPIKey)
	setIf(&cfg.GooglePlaces.APIKey, e.GooglePlacesAPIKey)
	setIf(&cfg.Amadeus.ClientID, e.AmadeusClientID)
	setIf(&cfg.Amadeus.ClientSecret, e.AmadeusClientSecret)
	setIf(&cfg.Ticketmaster.APIKey, e.TicketmasterAPIKey)
	setIf(&cfg.Reddit.ClientID, e.RedditClientID)
	setIf(&cfg.Reddit.ClientSecret, e.RedditClientSecret)
	setIf(&cfg.YouTube.APIKey, e.YouTubeAPIKey)
	setIf(&cfg.Telegram.Token, e.TelegramBotToken)
	setIf(&cfg.LogLevel, e.LogLevel)
	return nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// TurnTimeout returns the per-turn deadline.
func (c *Config) TurnTimeout() time.Duration {
	if c.TurnTimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TurnTimeoutSeconds) * time.Second
}

func (c *Config) ToolTimeout() time.Duration {
	if c.Tools.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Tools.TimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Tools.CacheTTLSeconds) * time.Second
}

// Save writes cfg to path atomically, creating the parent directory.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg into its generic JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues flattens cfg into dot keys, masking secrets when asked.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return m, nil
}

// GetValue returns the value stored under a dot key. Environment overrides
// are not applied; the file is what gets reported.
func GetValue(path, key string) (any, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if _, err := Load(path); err != nil {
			return nil, err
		}
	}
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// KnownKeys returns every settable dot key in lexical order.
func KnownKeys() []string {
	m, err := ToMap(defaults())
	if err != nil {
		return nil
	}
	return SortedKeys(Flatten(m))
}

var enumValues = map[string][]string{
	"llm.provider": {"openai", "anthropic", "ollama"},
	"log_level":    {"debug", "info", "warn", "error"},
}

// validate checks key against the config schema and, for enumerated
// settings, v against the allowed values.
func validate(key string, v any) error {
	if !slices.Contains(KnownKeys(), key) {
		return fmt.Errorf("unknown config key: %s", key)
	}
	allowed, ok := enumValues[key]
	if !ok {
		return nil
	}
	s, _ := v.(string)
	if !slices.Contains(allowed, s) {
		return fmt.Errorf("invalid value %v for %s (want one of %s)", v, key, strings.Join(allowed, ", "))
	}
	return nil
}

// SetValue stores raw under a dot key. Values that parse as JSON (numbers,
// booleans) keep their type; anything else is stored as a string. Keys
// outside the schema are rejected.
func SetValue(path, key, raw string) error {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		v = raw
	}
	if err := validate(key, v); err != nil {
		return err
	}
	m, err := readRaw(path)
	if err != nil {
		return err
	}
	flat := Flatten(m)
	flat[key] = v

	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}
