package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeFlag(t *testing.T) {
	t.Parallel()

	got, err := parseTimeFlag("start", "")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseTimeFlag("start", "2024-01-01T09:00:00+09:00")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	_, err = parseTimeFlag("end", "yesterday")
	assert.ErrorContains(t, err, "--end")
}

func TestWriteCandlesCSV(t *testing.T) {
	t.Parallel()

	qv := 1234.5
	resp := &domain.CandleResponse{Candles: []domain.Candle{
		{Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Open: 1, High: 2.5, Low: 0.5, Close: 2, Volume: 10, QuoteVolume: &qv},
		{Timestamp: time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC), Open: 2, High: 3, Low: 1, Close: 1.5, Volume: 4},
	}}

	var buf bytes.Buffer
	require.NoError(t, writeCandles(&buf, "csv", resp))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,open,high,low,close,volume,quote_volume", lines[0])
	assert.Equal(t, "2024-01-01T00:00:00Z,1,2.5,0.5,2,10,1234.5", lines[1])
	assert.Equal(t, "2024-01-01T00:01:00Z,2,3,1,1.5,4,", lines[2])
}

func TestFetchCommandWithMockExchange(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EXCHANGE", "mock")
	t.Setenv("STORAGE_DRIVER", "file")
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"fetch", "--env-file", filepath.Join(dir, "missing.env"),
		"--symbol", "KRW-BTC", "--timeframe", "1h",
		"--start", "2024-01-01T00:00:00Z", "--end", "2024-01-01T05:00:00Z",
		"--format", "csv",
	})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[1], "2024-01-01T00:00:00Z,"))
	assert.True(t, strings.HasPrefix(lines[5], "2024-01-01T04:00:00Z,"))

	entries, err := os.ReadDir(filepath.Join(dir, "data", "data"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "candlesync version dev\n", out.String())
}
