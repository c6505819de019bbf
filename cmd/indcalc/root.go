package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"cryptodash/internal/indengine"
	"cryptodash/internal/indicator"
)

// indicatorFlags are shared by compute and fetch.
type indicatorFlags struct {
	configFile  string
	specs       string
	statsWindow int
	pretty      bool
}

func (f *indicatorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configFile, "config", "", "YAML indicator config file")
	cmd.Flags().StringVar(&f.specs, "indicators", "", `indicator specs, e.g. "SMA:20,SMA:50,RSI:14,MACD:12/26/9"`)
	cmd.Flags().IntVar(&f.statsWindow, "stats-window", 0, "trailing candles summarised as 24h stats")
	cmd.Flags().BoolVar(&f.pretty, "pretty", false, "indent JSON output")
}

// resolve builds the indicator config: defaults, then --config, then
// --indicators and --stats-window.
func (f *indicatorFlags) resolve(fs afero.Fs) (indicator.Config, error) {
	cfg := indicator.DefaultConfig()
	if f.configFile != "" {
		loaded, err := indicator.LoadConfig(fs, f.configFile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if f.specs != "" {
		parsed, err := indengine.ParseIndicatorSpecs(f.specs, cfg)
		if err != nil {
			return cfg, err
		}
		cfg = parsed
	}
	if f.statsWindow != 0 {
		cfg.StatsWindow = f.statsWindow
	}
	return cfg, cfg.Validate()
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func newRootCmd(fs afero.Fs) *cobra.Command {
	root := &cobra.Command{
		Use:   "indcalc",
		Short: "Compute SMA, RSI, MACD and price stats for candle series",
		Long: `indcalc runs the dashboard's indicator engine from the command line.

It can compute indicators for candles read from a JSON file, or fetch
candles from Binance (falling back to CoinGecko) and compute them live.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newComputeCmd(fs),
		newFetchCmd(fs),
	)
	return root
}
