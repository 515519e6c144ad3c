package log

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSetOutput_ComponentField(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(NewJSONLogger(&buf, "debug"))
	t.Cleanup(func() { SetOutput(zerolog.Nop()) })

	Registry.Info().Int("addresses", 3).Msg("built")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "registry", line["component"])
	require.Equal(t, float64(3), line["addresses"])
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	require.Equal(t, zerolog.TraceLevel, parseLevel("trace"))
	require.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
	require.True(t, ValidLevel("warn"))
	require.False(t, ValidLevel("verbose"))
}

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zmigrate.log")
	require.NoError(t, Init("info", true, path))
	t.Cleanup(func() { SetOutput(zerolog.Nop()) })

	Migrate.Info().Msg("hello")
	require.FileExists(t, path)
}

func TestBenchmark(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(NewJSONLogger(&buf, "debug"))
	t.Cleanup(func() { SetOutput(zerolog.Nop()) })

	done := Benchmark("index")
	done()
	require.Contains(t, buf.String(), `"operation":"index"`)
}
