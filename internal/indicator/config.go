package indicator

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefaultStatsWindow is the number of trailing candles summarised as "24h"
// stats. It counts samples, not hours.
const DefaultStatsWindow = 24

// MACDConfig holds the three MACD periods.
type MACDConfig struct {
	Fast   int `yaml:"fast" json:"fast"`
	Slow   int `yaml:"slow" json:"slow"`
	Signal int `yaml:"signal" json:"signal"`
}

// Config selects the indicator parameters for one engine run.
type Config struct {
	SMAPeriods  []int      `yaml:"sma_periods" json:"smaPeriods"`
	RSIPeriod   int        `yaml:"rsi_period" json:"rsiPeriod"`
	MACD        MACDConfig `yaml:"macd" json:"macd"`
	StatsWindow int        `yaml:"stats_window" json:"statsWindow"`
}

// DefaultConfig returns the dashboard's standard parameters.
func DefaultConfig() Config {
	return Config{
		SMAPeriods:  []int{shortSMAPeriod, longSMAPeriod},
		RSIPeriod:   DefaultRSIPeriod,
		MACD:        MACDConfig{Fast: DefaultMACDFast, Slow: DefaultMACDSlow, Signal: DefaultMACDSignal},
		StatsWindow: DefaultStatsWindow,
	}
}

// Validate checks the config for invalid or duplicate periods.
func (c Config) Validate() error {
	var errs []error
	seen := make(map[int]bool, len(c.SMAPeriods))
	for _, p := range c.SMAPeriods {
		if p <= 0 {
			errs = append(errs, fmt.Errorf("invalid period=%d for SMA", p))
			continue
		}
		if seen[p] {
			errs = append(errs, fmt.Errorf("duplicate period=%d for SMA", p))
		}
		seen[p] = true
	}
	if c.RSIPeriod <= 0 {
		errs = append(errs, fmt.Errorf("invalid period=%d for RSI", c.RSIPeriod))
	}
	if c.MACD.Fast <= 0 || c.MACD.Slow <= 0 || c.MACD.Signal <= 0 {
		errs = append(errs, fmt.Errorf("invalid periods fast=%d slow=%d signal=%d for MACD",
			c.MACD.Fast, c.MACD.Slow, c.MACD.Signal))
	} else if c.MACD.Fast >= c.MACD.Slow {
		errs = append(errs, fmt.Errorf("MACD fast=%d must be below slow=%d", c.MACD.Fast, c.MACD.Slow))
	}
	if c.StatsWindow <= 0 {
		errs = append(errs, fmt.Errorf("invalid stats window=%d", c.StatsWindow))
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML config from fs. Fields missing from the file keep
// their defaults.
func LoadConfig(fs afero.Fs, path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, fmt.Errorf("indicator: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("indicator: parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("indicator: config %s: %w", path, err)
	}
	return cfg, nil
}

// WithQuery returns a copy of c with per-request overrides applied from
// query parameters smaPeriods, rsiPeriod, macdFast, macdSlow, macdSignal
// and statsWindow. The result is validated.
func (c Config) WithQuery(q url.Values) (Config, error) {
	out := c
	out.SMAPeriods = append([]int(nil), c.SMAPeriods...)

	if raw := q.Get("smaPeriods"); raw != "" {
		periods, err := parsePeriods(raw)
		if err != nil {
			return c, fmt.Errorf("smaPeriods: %w", err)
		}
		out.SMAPeriods = periods
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"rsiPeriod", &out.RSIPeriod},
		{"macdFast", &out.MACD.Fast},
		{"macdSlow", &out.MACD.Slow},
		{"macdSignal", &out.MACD.Signal},
		{"statsWindow", &out.StatsWindow},
	}
	for _, f := range ints {
		raw := q.Get(f.key)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return c, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = v
	}

	if err := out.Validate(); err != nil {
		return c, err
	}
	return out, nil
}

// parsePeriods parses a comma-separated period list such as "20,50,200".
func parsePeriods(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid period %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}
