// Package config reads ebb deployment settings from EBB_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/sky-flux/ebb"
	"github.com/sky-flux/ebb/log"
)

// Config holds the global engine params and the settings around them.
type Config struct {
	InitialStrength  float64 `env:"EBB_INITIAL_STRENGTH" envDefault:"1.0"`
	DecayRate        float64 `env:"EBB_DECAY_RATE" envDefault:"0.1"`
	MinStrength      float64 `env:"EBB_MIN_STRENGTH" envDefault:"0.2"`
	ReviewBoost      float64 `env:"EBB_REVIEW_BOOST" envDefault:"0.5"`
	DifficultyFactor float64 `env:"EBB_DIFFICULTY_FACTOR" envDefault:"1.0"`

	// IANA zone used to bucket schedule entries by calendar day.
	Timezone string `env:"EBB_TIMEZONE" envDefault:"UTC"`

	// Snapshot database used by the example programs.
	StatePath string `env:"EBB_STATE_PATH" envDefault:".ebb/ebb.db"`

	LogLevel  string `env:"EBB_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"EBB_LOG_FORMAT" envDefault:"console"`
}

// Load parses the process environment and validates the result.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if err := c.Params().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := log.New(io.Discard, c.LogLevel, c.LogFormat); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Params returns the global engine params.
func (c Config) Params() ebb.Params {
	return ebb.Params{
		InitialStrength:  c.InitialStrength,
		DecayRate:        c.DecayRate,
		MinStrength:      c.MinStrength,
		ReviewBoost:      c.ReviewBoost,
		DifficultyFactor: c.DifficultyFactor,
	}
}

// Location loads the configured time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Logger builds a logger writing to w at the configured level and format.
func (c Config) Logger(w io.Writer) (zerolog.Logger, error) {
	return log.New(w, c.LogLevel, c.LogFormat)
}

// SchedulerConfig returns an engine config with the params and location
// filled in. Store, ledger and clock are left at their defaults.
func (c Config) SchedulerConfig(logger *zerolog.Logger) (ebb.SchedulerConfig, error) {
	loc, err := c.Location()
	if err != nil {
		return ebb.SchedulerConfig{}, err
	}
	return ebb.SchedulerConfig{
		Params:   c.Params(),
		Location: loc,
		Logger:   logger,
	}, nil
}
