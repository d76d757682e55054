package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
meters:
  - name: Mino
    id: "15503451"
  - name: Zenner_cold
    id: "21314151"
    key: 00112233445566778899AABBCCDDEEFF
store:
  sqlite_path: /tmp/readings.db
nats:
  url: nats://localhost:4222
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, logrus.DebugLevel, cfg.Level())
	require.Len(t, cfg.Meters, 2)
	require.Equal(t, "/tmp/readings.db", cfg.Store.SQLitePath)
	require.Equal(t, DefaultSubject, cfg.NATS.Subject)

	opts := cfg.AnalyzeOptions("")
	require.Len(t, opts.Meters, 2)
	require.Equal(t, "Zenner_cold", opts.Meters[1].Name)
	require.Equal(t, "00112233445566778899AABBCCDDEEFF", opts.Meters[1].KeyHex)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"level":     "log_level: loud\n",
		"id":        "meters:\n  - id: \"123\"\n",
		"duplicate": "meters:\n  - id: \"15503451\"\n  - id: \"15503451\"\n",
		"case":      "meters:\n  - id: \"1550345a\"\n  - id: \"1550345A\"\n",
		"key":       "meters:\n  - id: \"15503451\"\n    key: abcd\n",
		"yaml":      "meters: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, logrus.InfoLevel, cfg.Level())
	require.Empty(t, cfg.Store.SQLitePath)
}
