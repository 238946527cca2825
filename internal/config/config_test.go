package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketwatch/internal/provider"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Equal(t, 1200*time.Millisecond, cfg.Provider.MinInterval)
	require.Equal(t, 10*time.Second, cfg.Provider.Timeout)
	require.Zero(t, cfg.Provider.ThrottleRetries)
	require.Equal(t, []string{"BTC", "ETH", "USDT", "BNB"}, cfg.Instruments)
	require.Equal(t, "USD", cfg.DefaultQuote)
	require.Equal(t, "5min", cfg.Series.Interval)
	require.True(t, cfg.Series.Intraday)
	require.Equal(t, uint64(42), cfg.Betting.Seed)
	require.InDelta(t, 0.05, cfg.Betting.MinEV, 1e-12)
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
provider:
  min_interval: 0s
  throttle_retries: 2
instruments: ["btc/eur", "ETH"]
default_quote: EUR
series:
  interval: 15min
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Zero(t, cfg.Provider.MinInterval)
	require.Equal(t, 2, cfg.Provider.ThrottleRetries)
	require.Equal(t, 10*time.Second, cfg.Provider.Timeout)
	require.Equal(t, "15min", cfg.Series.Interval)

	insts, err := cfg.ParsedInstruments()
	require.NoError(t, err)
	require.Equal(t, []provider.Instrument{
		provider.NewInstrument("BTC", "EUR"),
		provider.NewInstrument("ETH", "EUR"),
	}, insts)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ALPHAVANTAGE_API_KEY", "secret")
	t.Setenv("MARKETWATCH_INSTRUMENTS", "SOL, XRP/USD ,")
	t.Setenv("MARKETWATCH_MIN_INTERVAL", "2s")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load(writeConfig(t, "log:\n  format: json\n"))
	require.NoError(t, err)

	require.Equal(t, "secret", cfg.Provider.APIKey)
	require.Equal(t, []string{"SOL", "XRP/USD"}, cfg.Instruments)
	require.Equal(t, 2*time.Second, cfg.Provider.MinInterval)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default().Instruments, cfg.Instruments)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad interval":     "series:\n  interval: 2min\n",
		"negative gate":    "provider:\n  min_interval: -1s\n",
		"no instruments":   "instruments: []\n",
		"bad instrument":   "instruments: [\"/USD\"]\n",
		"too many retries": "provider:\n  throttle_retries: 9\n",
		"unknown cache":    "cache:\n  backend: memcached\n",
		"broken yaml":      "provider: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoad_BadEnvDuration(t *testing.T) {
	t.Setenv("MARKETWATCH_MIN_INTERVAL", "soon")

	_, err := Load(writeConfig(t, ""))
	require.Error(t, err)
}
