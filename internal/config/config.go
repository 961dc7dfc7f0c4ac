package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultDataRoot        = "data"
	DefaultSystemDir       = "system"
	DefaultPromptsDir      = "prompts"
	DefaultQuiescence      = 10 * time.Second
	DefaultGroupQuiescence = 60 * time.Second
	DefaultHistoryLimit    = 20
	DefaultHistoryCapacity = 200
	DefaultOpenAIModel     = "gpt-4o"
	DefaultOllamaModel     = "gemma3:27b"
	DefaultOllamaBaseURL   = "http://127.0.0.1:11434/v1"
	DefaultMaxTokens       = 256
	DefaultTemperature     = 0.8
	DefaultTopP            = 1.0
	DefaultIdleTimeout     = 10 * time.Minute
	DefaultRequestTimeout  = 120 * time.Second
	DefaultTranscribeModel = "whisper-1"
	DefaultWeatherRefresh  = 3 * time.Hour
	DefaultTypingInterval  = 4 * time.Second

	ProviderOpenAI  = "openai"
	ProviderOllama  = "ollama"
	ProviderCommand = "command"
)

// ErrInvalid marks configuration that cannot start the process.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Instance      string              `toml:"instance" validate:"required"`
	DataDir       string              `toml:"data_dir" validate:"required"`
	Log           LogConfig           `toml:"log"`
	Server        ServerConfig        `toml:"server"`
	Telegram      TelegramConfig      `toml:"telegram"`
	Debounce      DebounceConfig      `toml:"debounce"`
	History       HistoryConfig       `toml:"history"`
	Model         ModelConfig         `toml:"model"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Access        AccessConfig        `toml:"access"`
	Prompts       PromptsConfig       `toml:"prompts"`
	Weather       WeatherConfig       `toml:"weather"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `toml:"format" validate:"omitempty,oneof=text json"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type TelegramConfig struct {
	BotToken        string   `toml:"bot_token" validate:"required"`
	PollTimeout     int      `toml:"poll_timeout" validate:"gte=0"`
	HistoryCapacity int      `toml:"history_capacity" validate:"gte=1"`
	TypingInterval  Duration `toml:"typing_interval"`
}

type DebounceConfig struct {
	Delay      Duration `toml:"delay"`
	GroupDelay Duration `toml:"group_delay"`
}

type HistoryConfig struct {
	Limit int `toml:"limit" validate:"gte=1"`
}

type ModelConfig struct {
	Provider       string         `toml:"provider" validate:"oneof=openai ollama"`
	OpenAI         ProviderConfig `toml:"openai"`
	Ollama         ProviderConfig `toml:"ollama"`
	MaxTokens      int            `toml:"max_tokens" validate:"gte=1"`
	Temperature    float32        `toml:"temperature" validate:"gte=0,lte=2"`
	TopP           float32        `toml:"top_p" validate:"gte=0,lte=1"`
	IdleTimeout    Duration       `toml:"idle_timeout"`
	RequestTimeout Duration       `toml:"request_timeout"`
}

// Active returns the provider settings selected by Provider.
func (c ModelConfig) Active() ProviderConfig {
	if c.Provider == ProviderOllama {
		return c.Ollama
	}
	return c.OpenAI
}

type ProviderConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

type TranscriptionConfig struct {
	// Provider is "openai", "command" or empty to disable transcription.
	Provider string   `toml:"provider" validate:"omitempty,oneof=openai command"`
	Model    string   `toml:"model"`
	APIKey   string   `toml:"api_key"`
	BaseURL  string   `toml:"base_url"`
	Command  []string `toml:"command"`
	Language string   `toml:"language"`
}

type AccessConfig struct {
	ExcludedUsersPath  string `toml:"excluded_users_path"`
	IncludedGroupsPath string `toml:"included_groups_path"`
	SpeakerLabels      bool   `toml:"speaker_labels"`
}

type PromptsConfig struct {
	SystemDir  string `toml:"system_dir"`
	PromptsDir string `toml:"prompts_dir"`
	Persona    string `toml:"persona"`
	Language   string `toml:"language"`
}

type WeatherConfig struct {
	Latitude  float64  `toml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64  `toml:"longitude" validate:"gte=-180,lte=180"`
	Location  string   `toml:"location"`
	Timezone  string   `toml:"timezone"`
	Refresh   Duration `toml:"refresh"`
	BaseURL   string   `toml:"base_url"`
}

// Enabled reports whether coordinates were configured.
func (w WeatherConfig) Enabled() bool {
	return w.Latitude != 0 || w.Longitude != 0
}

// Duration decodes "10s" style strings and bare numbers (seconds).
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ParseDuration accepts Go duration syntax or a plain number of seconds.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative duration %q", raw)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}

func defaults() Config {
	return Config{
		DataDir: DefaultDataRoot,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Telegram: TelegramConfig{
			PollTimeout:     30,
			HistoryCapacity: DefaultHistoryCapacity,
			TypingInterval:  Duration{DefaultTypingInterval},
		},
		Debounce: DebounceConfig{
			Delay:      Duration{DefaultQuiescence},
			GroupDelay: Duration{DefaultGroupQuiescence},
		},
		History: HistoryConfig{
			Limit: DefaultHistoryLimit,
		},
		Model: ModelConfig{
			Provider: ProviderOpenAI,
			OpenAI: ProviderConfig{
				Model: DefaultOpenAIModel,
			},
			Ollama: ProviderConfig{
				BaseURL: DefaultOllamaBaseURL,
				Model:   DefaultOllamaModel,
			},
			MaxTokens:      DefaultMaxTokens,
			Temperature:    DefaultTemperature,
			TopP:           DefaultTopP,
			IdleTimeout:    Duration{DefaultIdleTimeout},
			RequestTimeout: Duration{DefaultRequestTimeout},
		},
		Transcription: TranscriptionConfig{
			Model: DefaultTranscribeModel,
		},
		Prompts: PromptsConfig{
			SystemDir:  DefaultSystemDir,
			PromptsDir: DefaultPromptsDir,
			Persona:    "Me",
		},
		Weather: WeatherConfig{
			Refresh: Duration{DefaultWeatherRefresh},
		},
	}
}

// Load reads the TOML file at path (missing file means defaults), loads
// .env.<instance> and .env into the environment, applies environment
// overrides and validates the result.
func Load(path, instance string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: decode %s: %v", ErrInvalid, path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	if strings.TrimSpace(instance) == "" {
		instance = firstEnv(os.Getenv, "MIMIC_INSTANCE", "INSTANCE_NAME")
	}
	if err := loadEnvFiles(instance); err != nil {
		return cfg, err
	}
	if strings.TrimSpace(instance) == "" {
		instance = firstEnv(os.Getenv, "MIMIC_INSTANCE", "INSTANCE_NAME")
	}
	if strings.TrimSpace(instance) != "" {
		cfg.Instance = strings.TrimSpace(instance)
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadEnvFiles(instance string) error {
	files := make([]string, 0, 2)
	if instance = strings.TrimSpace(instance); instance != "" {
		files = append(files, ".env."+instance)
	}
	files = append(files, ".env")
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		// Load keeps already-set variables, so the instance file wins over .env.
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("%w: load %s: %v", ErrInvalid, file, err)
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks required fields and value ranges.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if cfg.Transcription.Provider == ProviderCommand && len(cfg.Transcription.Command) == 0 {
		return fmt.Errorf("%w: transcription.command is required for the command provider", ErrInvalid)
	}
	return nil
}

func firstEnv(get func(string) string, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(get(key)); v != "" {
			return v
		}
	}
	return ""
}
