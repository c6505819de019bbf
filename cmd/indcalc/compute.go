package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"cryptodash/internal/indicator"
	"cryptodash/internal/model"
)

func newComputeCmd(fs afero.Fs) *cobra.Command {
	var (
		file  string
		flags indicatorFlags
	)

	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute indicators for candles in a JSON file",
		Long: `Reads candles from --file, either a JSON array of
{"time","open","high","low","close","volume"} objects or an object with a
"candles" field, and prints the indicator bundle and stats as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("missing --file")
			}
			cfg, err := flags.resolve(fs)
			if err != nil {
				return err
			}
			candles, err := readCandles(fs, file)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), indicator.Compute(candles, cfg), flags.pretty)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "candles JSON file")
	flags.register(cmd)
	return cmd
}

func readCandles(fs afero.Fs, path string) ([]model.Candle, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var candles []model.Candle
	if err := json.Unmarshal(data, &candles); err == nil {
		return candles, nil
	}
	var wrapped struct {
		Candles []model.Candle `json:"candles"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return wrapped.Candles, nil
}
