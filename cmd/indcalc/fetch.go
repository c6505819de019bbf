package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"cryptodash/config"
	"cryptodash/internal/bootstrap"
	"cryptodash/internal/indicator"
	"cryptodash/internal/marketdata"
	"cryptodash/internal/model"
)

type fetchResult struct {
	Symbol     string                `json:"symbol"`
	Interval   string                `json:"interval"`
	Source     string                `json:"source"`
	Candles    []model.Candle        `json:"candles,omitempty"`
	Indicators model.IndicatorBundle `json:"indicators"`
	Stats      model.Stats           `json:"stats"`
}

func newFetchCmd(fs afero.Fs) *cobra.Command {
	var (
		symbol      string
		interval    string
		limit       int
		withCandles bool
		timeout     time.Duration
		flags       indicatorFlags
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch candles from the exchange and compute indicators",
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol = strings.ToUpper(strings.TrimSpace(symbol))
			if symbol == "" {
				return fmt.Errorf("missing --symbol (e.g. BTCUSDT)")
			}
			if !marketdata.ValidInterval(interval) {
				return fmt.Errorf("invalid --interval %q, valid: %s", interval, strings.Join(marketdata.Intervals(), ", "))
			}
			if limit <= 0 || limit > 1000 {
				return fmt.Errorf("--limit must be in [1, 1000]")
			}
			ind, err := flags.resolve(fs)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			upstream := bootstrap.Upstreams(cfg, bootstrap.Binance(cfg), nil)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			candles, source, err := upstream.CandlesFrom(ctx, symbol, interval, limit)
			if err != nil {
				return err
			}

			res := indicator.Compute(candles, ind)
			out := fetchResult{
				Symbol:     symbol,
				Interval:   interval,
				Source:     source,
				Indicators: res.Indicators,
				Stats:      res.Stats,
			}
			if withCandles {
				out.Candles = candles
			}
			return writeJSON(cmd.OutOrStdout(), out, flags.pretty)
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "BTCUSDT", "trading pair")
	cmd.Flags().StringVarP(&interval, "interval", "i", "1h", "candle interval")
	cmd.Flags().IntVarP(&limit, "limit", "n", 200, "number of candles")
	cmd.Flags().BoolVar(&withCandles, "candles", false, "include the candles in the output")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall fetch timeout")
	flags.register(cmd)
	return cmd
}
