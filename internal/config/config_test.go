package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func lookupFrom(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: "10", want: 10 * time.Second},
		{raw: "0.5", want: 500 * time.Millisecond},
		{raw: "2m", want: 2 * time.Minute},
		{raw: " 1h30m ", want: 90 * time.Minute},
		{raw: "-3", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseDuration(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseDuration(%q) expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDuration(%q) unexpected error: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseDuration(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Parallel()

	cfg := defaults()
	err := ApplyEnv(&cfg, lookupFrom(map[string]string{
		"TELEGRAM_BOT_TOKEN":     "123:abc",
		"NEXT_MESSAGE_WAIT_TIME": "5",
		"HISTORY_LIMIT":          "12",
		"USE_OLLAMA":             "true",
		"OLLAMA_API_MODEL":       "llama3",
		"AI_TEMPERATURE":         "0.3",
		"TRANSCRIBE_COMMAND":     "whisper-cli -m model.bin",
		"WEATHER_LATITUDE":       "50.45",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Telegram.BotToken != "123:abc" {
		t.Fatalf("bot token = %q", cfg.Telegram.BotToken)
	}
	if cfg.Debounce.Delay.Duration != 5*time.Second {
		t.Fatalf("delay = %v", cfg.Debounce.Delay.Duration)
	}
	if cfg.History.Limit != 12 {
		t.Fatalf("history limit = %d", cfg.History.Limit)
	}
	if cfg.Model.Provider != ProviderOllama {
		t.Fatalf("provider = %q", cfg.Model.Provider)
	}
	if got := cfg.Model.Active().Model; got != "llama3" {
		t.Fatalf("active model = %q", got)
	}
	if cfg.Model.Temperature != 0.3 {
		t.Fatalf("temperature = %v", cfg.Model.Temperature)
	}
	if len(cfg.Transcription.Command) != 3 {
		t.Fatalf("command = %#v", cfg.Transcription.Command)
	}
	if !cfg.Weather.Enabled() {
		t.Fatal("weather should be enabled with a latitude")
	}
}

func TestApplyEnvRejectsMalformedValues(t *testing.T) {
	t.Parallel()

	for _, env := range []map[string]string{
		{"HISTORY_LIMIT": "many"},
		{"USE_OLLAMA": "maybe"},
		{"AI_TEMPERATURE": "hot"},
		{"NEXT_MESSAGE_WAIT_TIME": "later"},
	} {
		cfg := defaults()
		err := ApplyEnv(&cfg, lookupFrom(env))
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("ApplyEnv(%v) error = %v, want ErrInvalid", env, err)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := defaults()
	cfg.Instance = "victor"
	if err := Validate(cfg); !errors.Is(err, ErrInvalid) {
		t.Fatalf("missing token should be invalid, got %v", err)
	}

	cfg.Telegram.BotToken = "123:abc"
	if err := Validate(cfg); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg.Transcription.Provider = ProviderCommand
	if err := Validate(cfg); !errors.Is(err, ErrInvalid) {
		t.Fatalf("command provider without command should be invalid, got %v", err)
	}

	cfg.Transcription.Provider = ""
	cfg.History.Limit = 0
	if err := Validate(cfg); !errors.Is(err, ErrInvalid) {
		t.Fatalf("zero history limit should be invalid, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
instance = "victor"
data_dir = "/var/lib/mimic"

[telegram]
bot_token = "123:abc"

[debounce]
delay = "3s"
group_delay = "45"

[model]
provider = "openai"
max_tokens = 512
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MIMIC_INSTANCE", "")
	t.Setenv("INSTANCE_NAME", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("HISTORY_LIMIT", "7")

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Instance != "victor" {
		t.Fatalf("instance = %q", cfg.Instance)
	}
	if cfg.DataDir != "/var/lib/mimic" {
		t.Fatalf("data dir = %q", cfg.DataDir)
	}
	if cfg.Debounce.Delay.Duration != 3*time.Second || cfg.Debounce.GroupDelay.Duration != 45*time.Second {
		t.Fatalf("debounce = %+v", cfg.Debounce)
	}
	if cfg.Model.MaxTokens != 512 {
		t.Fatalf("max tokens = %d", cfg.Model.MaxTokens)
	}
	if cfg.History.Limit != 7 {
		t.Fatalf("history limit = %d", cfg.History.Limit)
	}
	if cfg.Model.OpenAI.Model != DefaultOpenAIModel {
		t.Fatalf("default model lost: %q", cfg.Model.OpenAI.Model)
	}
}

func TestLoadMissingTokenIsFatal(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"), "victor")
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
