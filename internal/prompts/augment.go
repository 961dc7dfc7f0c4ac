package prompts

import (
	"fmt"
	"strings"
	"time"
)

// WeatherSource provides the latest cached weather report.
type WeatherSource interface {
	Current() (Report, bool)
}

// Augmenter appends time-of-day and weather context to a prompt.
type Augmenter struct {
	loc     *time.Location
	now     func() time.Time
	weather WeatherSource
}

// NewAugmenter creates an Augmenter. A nil loc means time.Local; weather may
// be nil.
func NewAugmenter(loc *time.Location, weather WeatherSource, now func() time.Time) *Augmenter {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Augmenter{loc: loc, now: now, weather: weather}
}

// Augment returns prompt followed by the current date, time and period of
// day, plus the weather when a fresh report is cached.
func (a *Augmenter) Augment(prompt string) string {
	now := a.now().In(a.loc)
	var b strings.Builder
	b.WriteString(prompt)
	fmt.Fprintf(&b, "\nIf your answer is related to daytime, use this info Current date: %s. Current time: %s. It's %s.",
		now.Format("2006-01-02"), now.Format("15:04"), PeriodOfDay(now.Hour()))
	if a.weather != nil {
		if report, ok := a.weather.Current(); ok {
			b.WriteString("\n")
			b.WriteString(report.Summary())
		}
	}
	return b.String()
}

// PeriodOfDay names the part of the day for hour (0-23).
func PeriodOfDay(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "day"
	case hour >= 17 && hour < 22:
		return "evening"
	default:
		return "night"
	}
}
