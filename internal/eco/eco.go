// Package eco supplies the real-world conditions the character comments on.
package eco

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrUnavailable is returned when conditions cannot be obtained.
var ErrUnavailable = errors.New("eco: conditions unavailable")

// Conditions is a point-in-time weather reading.
type Conditions struct {
	TemperatureC float64   `json:"temperatureC"`
	WeatherCode  int       `json:"weatherCode"`
	Description  string    `json:"description"`
	IsDay        bool      `json:"isDay"`
	ObservedAt   time.Time `json:"observedAt"`
}

// Vars returns the placeholder values used when rendering comments.
func (c Conditions) Vars() map[string]string {
	return map[string]string{
		"description": c.Description,
		"temperature": strconv.FormatFloat(c.TemperatureC, 'f', 0, 64),
	}
}

// Fetcher obtains current conditions.
type Fetcher interface {
	FetchCurrentConditions(ctx context.Context) (Conditions, error)
}

// Awareness is the persisted eco sub-record.
type Awareness struct {
	Conditions    *Conditions `json:"conditions,omitempty"`
	FetchedAt     time.Time   `json:"fetchedAt"`
	LastCommentAt time.Time   `json:"lastCommentAt"`
	Comments      int         `json:"comments"`
}

// Fresh reports whether cached conditions exist and are younger than maxAge.
func (a Awareness) Fresh(now time.Time, maxAge time.Duration) bool {
	return a.Conditions != nil && now.Sub(a.FetchedAt) <= maxAge
}

// Disabled is a Fetcher that never has conditions.
type Disabled struct{}

func (Disabled) FetchCurrentConditions(context.Context) (Conditions, error) {
	return Conditions{}, ErrUnavailable
}

// Static always returns the same conditions.
type Static Conditions

func (s Static) FetchCurrentConditions(context.Context) (Conditions, error) {
	return Conditions(s), nil
}

var wmoDescriptions = map[int]string{
	0:  "clear",
	1:  "mostly clear",
	2:  "partly cloudy",
	3:  "overcast",
	45: "foggy",
	48: "foggy",
	51: "drizzling",
	53: "drizzling",
	55: "drizzling",
	56: "freezing drizzle",
	57: "freezing drizzle",
	61: "raining",
	63: "raining",
	65: "pouring",
	66: "freezing rain",
	67: "freezing rain",
	71: "snowing",
	73: "snowing",
	75: "snowing heavily",
	77: "snowing",
	80: "showery",
	81: "showery",
	82: "stormy",
	85: "snowing",
	86: "snowing heavily",
	95: "thundering",
	96: "hailing",
	99: "hailing",
}

// Describe maps a WMO weather code to a short phrase.
func Describe(code int) string {
	if d, ok := wmoDescriptions[code]; ok {
		return d
	}
	return "strange"
}
