package eco

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/JHils/phile-gate-whispers-sub003/pkg/retrylimit"
)

const DefaultEndpoint = "https://api.open-meteo.com/v1/forecast"

// OpenMeteoConfig configures OpenMeteo.
type OpenMeteoConfig struct {
	Endpoint  string
	Latitude  float64
	Longitude float64
	Timeout   time.Duration
	Client    *http.Client
	Retry     retrylimit.RetryConfig
	Logger    zerolog.Logger
}

// OpenMeteo fetches current conditions from an Open-Meteo compatible API.
// Concurrent callers share one in-flight request.
type OpenMeteo struct {
	cfg     OpenMeteoConfig
	limiter *retrylimit.AdaptiveLimiter
	group   singleflight.Group
	log     zerolog.Logger
}

func NewOpenMeteo(cfg OpenMeteoConfig) *OpenMeteo {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retrylimit.DefaultRetryConfig()
		cfg.Retry.Logger = cfg.Logger
	}
	return &OpenMeteo{
		cfg:     cfg,
		limiter: retrylimit.NewAdaptiveLimiter(2, 0.2, 5, 0.5, 0.5),
		log:     cfg.Logger.With().Str("component", "eco").Logger(),
	}
}

type forecastResponse struct {
	Current struct {
		Time        string  `json:"time"`
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weather_code"`
		IsDay       int     `json:"is_day"`
	} `json:"current"`
}

func (o *OpenMeteo) FetchCurrentConditions(ctx context.Context) (Conditions, error) {
	v, err, shared := o.group.Do("current", func() (any, error) {
		var c Conditions
		err := retrylimit.Do(ctx, func(ctx context.Context) error {
			var ferr error
			c, ferr = o.fetch(ctx)
			return ferr
		}, o.limiter, o.cfg.Retry)
		return c, err
	})
	if err != nil {
		o.log.Warn().Err(err).Msg("conditions fetch failed")
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Conditions{}, err
		}
		return Conditions{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	o.log.Debug().Bool("shared", shared).Msg("conditions fetched")
	return v.(Conditions), nil
}

func (o *OpenMeteo) fetch(ctx context.Context) (Conditions, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(o.cfg.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(o.cfg.Longitude, 'f', 4, 64))
	q.Set("current", "temperature_2m,weather_code,is_day")
	u := o.cfg.Endpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Conditions{}, &retrylimit.Fatal{Err: err}
	}
	resp, err := o.cfg.Client.Do(req)
	if err != nil {
		return Conditions{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Conditions{}, &retrylimit.StatusError{Code: resp.StatusCode, URL: o.cfg.Endpoint}
	}

	var body forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Conditions{}, &retrylimit.Fatal{Err: fmt.Errorf("decode forecast: %w", err)}
	}

	observed, err := time.Parse("2006-01-02T15:04", body.Current.Time)
	if err != nil {
		observed = time.Now().UTC()
	}
	return Conditions{
		TemperatureC: body.Current.Temperature,
		WeatherCode:  body.Current.WeatherCode,
		Description:  Describe(body.Current.WeatherCode),
		IsDay:        body.Current.IsDay == 1,
		ObservedAt:   observed,
	}, nil
}
