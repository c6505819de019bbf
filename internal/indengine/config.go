package indengine

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"cryptodash/config"
	"cryptodash/internal/indicator"
	"cryptodash/internal/marketdata"
)

// Config holds the poller settings for the indicator engine service.
type Config struct {
	Symbols      []string
	Intervals    []string
	CandleLimit  int
	PollInterval time.Duration
	Concurrency  int
	Indicators   indicator.Config
}

// ConfigFrom builds the service config from the process config and the
// indicator parameters.
func ConfigFrom(cfg *config.Config, ind indicator.Config) Config {
	return Config{
		Symbols:      cfg.Symbols,
		Intervals:    cfg.Intervals,
		CandleLimit:  cfg.CandleLimit,
		PollInterval: cfg.PollInterval,
		Concurrency:  cfg.PollConcurrency,
		Indicators:   ind,
	}
}

// Validate checks the watchlist and indicator parameters.
func (c Config) Validate() error {
	var errs []error
	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("no symbols configured"))
	}
	if len(c.Intervals) == 0 {
		errs = append(errs, errors.New("no intervals configured"))
	}
	for _, iv := range c.Intervals {
		if !marketdata.ValidInterval(iv) {
			errs = append(errs, fmt.Errorf("invalid interval %q", iv))
		}
	}
	if c.CandleLimit <= 0 {
		errs = append(errs, fmt.Errorf("invalid candle limit %d", c.CandleLimit))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("invalid poll interval %s", c.PollInterval))
	}
	if err := c.Indicators.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseIndicatorSpecs parses "TYPE:PERIOD,..." into an indicator config,
// starting from base. SMA entries replace the SMA period list; RSI sets
// the RSI period; MACD takes FAST/SLOW/SIGNAL; WINDOW sets the stats
// window in candles.
// Example: "SMA:20,SMA:50,SMA:200,RSI:14,MACD:12/26/9,WINDOW:24"
func ParseIndicatorSpecs(s string, base indicator.Config) (indicator.Config, error) {
	cfg := base
	var smas []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		typ, arg, ok := strings.Cut(part, ":")
		if !ok {
			return base, fmt.Errorf("invalid indicator spec %q", part)
		}
		arg = strings.TrimSpace(arg)

		switch strings.ToUpper(strings.TrimSpace(typ)) {
		case "SMA":
			p, err := strconv.Atoi(arg)
			if err != nil {
				return base, fmt.Errorf("invalid SMA period %q", arg)
			}
			smas = append(smas, p)
		case "RSI":
			p, err := strconv.Atoi(arg)
			if err != nil {
				return base, fmt.Errorf("invalid RSI period %q", arg)
			}
			cfg.RSIPeriod = p
		case "WINDOW":
			p, err := strconv.Atoi(arg)
			if err != nil {
				return base, fmt.Errorf("invalid stats window %q", arg)
			}
			cfg.StatsWindow = p
		case "MACD":
			fields := strings.Split(arg, "/")
			if len(fields) != 3 {
				return base, fmt.Errorf("MACD spec must be FAST/SLOW/SIGNAL, got %q", arg)
			}
			var v [3]int
			for i, f := range fields {
				n, err := strconv.Atoi(strings.TrimSpace(f))
				if err != nil {
					return base, fmt.Errorf("invalid MACD period %q", f)
				}
				v[i] = n
			}
			cfg.MACD = indicator.MACDConfig{Fast: v[0], Slow: v[1], Signal: v[2]}
		default:
			log.Printf("[indengine] skipping unknown indicator type in spec: %q", part)
		}
	}
	if len(smas) > 0 {
		cfg.SMAPeriods = smas
	}
	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

// FormatIndicatorSpecs renders cfg in the form ParseIndicatorSpecs reads.
func FormatIndicatorSpecs(cfg indicator.Config) string {
	parts := make([]string, 0, len(cfg.SMAPeriods)+3)
	for _, p := range cfg.SMAPeriods {
		parts = append(parts, "SMA:"+strconv.Itoa(p))
	}
	parts = append(parts, "RSI:"+strconv.Itoa(cfg.RSIPeriod))
	parts = append(parts, fmt.Sprintf("MACD:%d/%d/%d", cfg.MACD.Fast, cfg.MACD.Slow, cfg.MACD.Signal))
	parts = append(parts, "WINDOW:"+strconv.Itoa(cfg.StatsWindow))
	return strings.Join(parts, ",")
}
