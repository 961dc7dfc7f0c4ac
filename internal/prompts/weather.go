package prompts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultWeatherBaseURL = "https://api.open-meteo.com"
	defaultWeatherRefresh = 3 * time.Hour
)

// Report is one cached weather observation.
type Report struct {
	FetchedAt    time.Time `json:"fetched_at"`
	Location     string    `json:"location"`
	TemperatureC float64   `json:"temperature_c"`
	WindKmh      float64   `json:"wind_kmh"`
	Code         int       `json:"weather_code"`
	Description  string    `json:"description"`
}

// Summary renders the report as one prompt line.
func (r Report) Summary() string {
	where := ""
	if loc := strings.TrimSpace(r.Location); loc != "" {
		where = " in " + loc
	}
	return fmt.Sprintf("Current weather%s: %s, %d°C, wind %d km/h.",
		where, r.Description, int(math.Round(r.TemperatureC)), int(math.Round(r.WindKmh)))
}

// WeatherOptions configures a Weather service.
type WeatherOptions struct {
	BaseURL    string
	Latitude   float64
	Longitude  float64
	Location   string
	Timezone   string
	Refresh    time.Duration
	CachePath  string
	HTTPClient *http.Client
	Now        func() time.Time
}

// Weather keeps a file-backed weather report fresh on a cron schedule.
type Weather struct {
	logger *slog.Logger
	opts   WeatherOptions

	mu      sync.Mutex
	current *Report
	cron    *cron.Cron
}

// NewWeather creates a Weather service. Call Start to begin refreshing.
func NewWeather(log *slog.Logger, opts WeatherOptions) *Weather {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = DefaultWeatherBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Refresh <= 0 {
		opts.Refresh = defaultWeatherRefresh
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Weather{
		logger: log.With(slog.String("component", "weather")),
		opts:   opts,
	}
}

// Current returns the cached report when it is younger than two refresh
// intervals.
func (w *Weather) Current() (Report, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		report, err := w.readCache()
		if err != nil {
			return Report{}, false
		}
		w.current = &report
	}
	if w.opts.Now().Sub(w.current.FetchedAt) > 2*w.opts.Refresh {
		return Report{}, false
	}
	return *w.current, true
}

// Start refreshes a stale cache in the background and schedules periodic
// refreshes.
func (w *Weather) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cron != nil {
		w.mu.Unlock()
		return nil
	}
	fresh := false
	if report, err := w.readCache(); err == nil {
		w.current = &report
		fresh = w.opts.Now().Sub(report.FetchedAt) < w.opts.Refresh
	}
	c := cron.New()
	_, err := c.AddFunc("@every "+w.opts.Refresh.String(), func() {
		w.refreshLogged(context.Background())
	})
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("schedule weather refresh: %w", err)
	}
	w.cron = c
	c.Start()
	w.mu.Unlock()

	if !fresh {
		go w.refreshLogged(context.WithoutCancel(ctx))
	}
	w.logger.Info("weather refresh scheduled", slog.Duration("every", w.opts.Refresh))
	return nil
}

// Stop halts the schedule and waits for a running refresh.
func (w *Weather) Stop(ctx context.Context) error {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Weather) refreshLogged(ctx context.Context) {
	if err := w.Refresh(ctx); err != nil {
		w.logger.Warn("weather refresh failed", slog.Any("error", err))
	}
}

type openMeteoResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weather_code"`
		WindSpeed   float64 `json:"wind_speed_10m"`
	} `json:"current"`
}

// Refresh fetches current conditions and rewrites the cache file.
func (w *Weather) Refresh(ctx context.Context) error {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(w.opts.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(w.opts.Longitude, 'f', 4, 64))
	q.Set("current", "temperature_2m,weather_code,wind_speed_10m")
	if tz := strings.TrimSpace(w.opts.Timezone); tz != "" {
		q.Set("timezone", tz)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.opts.BaseURL+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := w.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch weather: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("fetch weather: status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var payload openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode weather: %w", err)
	}
	report := Report{
		FetchedAt:    w.opts.Now().UTC(),
		Location:     w.opts.Location,
		TemperatureC: payload.Current.Temperature,
		WindKmh:      payload.Current.WindSpeed,
		Code:         payload.Current.WeatherCode,
		Description:  describeWeatherCode(payload.Current.WeatherCode),
	}
	if err := w.writeCache(report); err != nil {
		w.logger.Warn("weather cache write failed", slog.Any("error", err))
	}
	w.mu.Lock()
	w.current = &report
	w.mu.Unlock()
	w.logger.Info("weather refreshed", slog.String("summary", report.Summary()))
	return nil
}

func (w *Weather) readCache() (Report, error) {
	if strings.TrimSpace(w.opts.CachePath) == "" {
		return Report{}, errors.New("weather cache disabled")
	}
	raw, err := os.ReadFile(w.opts.CachePath)
	if err != nil {
		return Report{}, err
	}
	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return Report{}, fmt.Errorf("decode weather cache: %w", err)
	}
	return report, nil
}

func (w *Weather) writeCache(report Report) error {
	if strings.TrimSpace(w.opts.CachePath) == "" {
		return nil
	}
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(w.opts.CachePath), 0o755); err != nil {
		return err
	}
	tmp := w.opts.CachePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, w.opts.CachePath)
}

// describeWeatherCode maps WMO weather interpretation codes to words.
func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code == 1:
		return "mainly clear"
	case code == 2:
		return "partly cloudy"
	case code == 3:
		return "overcast"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67:
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 80 && code <= 82:
		return "rain showers"
	case code == 85 || code == 86:
		return "snow showers"
	case code >= 95:
		return "thunderstorm"
	default:
		return "unknown conditions"
	}
}
