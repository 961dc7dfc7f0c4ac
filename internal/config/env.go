package config

import (
	"fmt"
	"strconv"
	"strings"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment values onto cfg. Malformed values are
// configuration errors.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("DATA_DIR", &cfg.DataDir)
	e.str("LOG_LEVEL", &cfg.Log.Level)
	e.str("LOG_FORMAT", &cfg.Log.Format)
	e.str("HTTP_ADDR", &cfg.Server.Addr)

	e.str("TELEGRAM_BOT_TOKEN", &cfg.Telegram.BotToken)
	e.integer("TELEGRAM_HISTORY_CAPACITY", &cfg.Telegram.HistoryCapacity)
	e.duration("TYPING_INTERVAL", &cfg.Telegram.TypingInterval)

	e.duration("NEXT_MESSAGE_WAIT_TIME", &cfg.Debounce.Delay)
	e.duration("GROUP_MESSAGE_WAIT_TIME", &cfg.Debounce.GroupDelay)
	e.integer("HISTORY_LIMIT", &cfg.History.Limit)

	var useOllama bool
	if e.boolean("USE_OLLAMA", &useOllama) {
		if useOllama {
			cfg.Model.Provider = ProviderOllama
		} else {
			cfg.Model.Provider = ProviderOpenAI
		}
	}
	e.str("MODEL_PROVIDER", &cfg.Model.Provider)
	e.str("OPENAI_API_KEY", &cfg.Model.OpenAI.APIKey)
	e.str("OPENAI_API_BASE_URL", &cfg.Model.OpenAI.BaseURL)
	e.str("OPENAI_MODEL", &cfg.Model.OpenAI.Model)
	e.str("OLLAMA_API_KEY", &cfg.Model.Ollama.APIKey)
	e.str("OLLAMA_API_BASE_URL", &cfg.Model.Ollama.BaseURL)
	e.str("OLLAMA_API_MODEL", &cfg.Model.Ollama.Model)
	e.integer("AI_MAX_TOKENS", &cfg.Model.MaxTokens)
	e.float32("AI_TEMPERATURE", &cfg.Model.Temperature)
	e.float32("AI_TOP_P", &cfg.Model.TopP)
	e.duration("MODEL_IDLE_TIMEOUT", &cfg.Model.IdleTimeout)
	e.duration("AI_REQUEST_TIMEOUT", &cfg.Model.RequestTimeout)

	e.str("TRANSCRIBE_PROVIDER", &cfg.Transcription.Provider)
	e.str("TRANSCRIBE_MODEL", &cfg.Transcription.Model)
	e.str("TRANSCRIBE_API_KEY", &cfg.Transcription.APIKey)
	e.str("TRANSCRIBE_BASE_URL", &cfg.Transcription.BaseURL)
	e.str("TRANSCRIBE_LANGUAGE", &cfg.Transcription.Language)
	if raw, ok := e.value("TRANSCRIBE_COMMAND"); ok {
		cfg.Transcription.Command = strings.Fields(raw)
	}

	e.str("EXCLUDED_USERS_PATH", &cfg.Access.ExcludedUsersPath)
	e.str("INCLUDED_GROUPS_PATH", &cfg.Access.IncludedGroupsPath)
	e.boolean("SPEAKER_LABELS", &cfg.Access.SpeakerLabels)

	e.str("SYSTEM_PROMPTS_DIR", &cfg.Prompts.SystemDir)
	e.str("USER_PROMPTS_DIR", &cfg.Prompts.PromptsDir)
	e.str("PERSONA_NAME", &cfg.Prompts.Persona)
	e.str("PROMPT_LANGUAGE", &cfg.Prompts.Language)

	e.float64("WEATHER_LATITUDE", &cfg.Weather.Latitude)
	e.float64("WEATHER_LONGITUDE", &cfg.Weather.Longitude)
	e.str("WEATHER_LOCATION", &cfg.Weather.Location)
	e.str("TIMEZONE", &cfg.Weather.Timezone)
	e.duration("WEATHER_REFRESH", &cfg.Weather.Refresh)

	return e.err
}

type envReader struct {
	lookup LookupFunc
	err    error
}

func (e *envReader) value(key string) (string, bool) {
	if e.lookup == nil {
		return "", false
	}
	raw, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func (e *envReader) fail(key, raw string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, raw, err)
	}
}

func (e *envReader) str(key string, dst *string) {
	if raw, ok := e.value(key); ok {
		*dst = raw
	}
}

func (e *envReader) integer(key string, dst *int) {
	raw, ok := e.value(key)
	if !ok {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.fail(key, raw, err)
		return
	}
	*dst = v
}

func (e *envReader) float32(key string, dst *float32) {
	raw, ok := e.value(key)
	if !ok {
		return
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		e.fail(key, raw, err)
		return
	}
	*dst = float32(v)
}

func (e *envReader) float64(key string, dst *float64) {
	raw, ok := e.value(key)
	if !ok {
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		e.fail(key, raw, err)
		return
	}
	*dst = v
}

func (e *envReader) boolean(key string, dst *bool) bool {
	raw, ok := e.value(key)
	if !ok {
		return false
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		e.fail(key, raw, fmt.Errorf("not a boolean"))
		return false
	}
	return true
}

func (e *envReader) duration(key string, dst *Duration) {
	raw, ok := e.value(key)
	if !ok {
		return
	}
	v, err := ParseDuration(raw)
	if err != nil {
		e.fail(key, raw, err)
		return
	}
	dst.Duration = v
}
