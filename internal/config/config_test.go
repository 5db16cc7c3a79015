package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/sys/class/ec_su_axb35", cfg.BasePath)
	assert.Equal(t, []int{1, 2, 3}, cfg.Fans)
	assert.Equal(t, 400*time.Millisecond, cfg.WriteDelay)
	assert.Equal(t, 10*time.Second, cfg.VerifyDelay)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.False(t, cfg.MQTT.Enabled())
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "ecfanctl.yaml", `
base_path: /tmp/ec
fans: [1, 2]
listen: 127.0.0.1:9090
poll_interval: 2s
write_delay: 250ms
curve_min: 35
log:
  level: debug
  format: json
mqtt:
  broker: tcp://localhost:1883
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/tmp/ec", cfg.BasePath)
	assert.Equal(t, []int{1, 2}, cfg.Fans)
	assert.Equal(t, "127.0.0.1:9090", cfg.Listen)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.WriteDelay)
	assert.Equal(t, 10*time.Second, cfg.VerifyDelay)
	assert.Equal(t, 35, cfg.CurveMin)
	assert.Equal(t, 100, cfg.CurveMax)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.MQTT.Enabled())
	assert.Equal(t, "ecfanctl", cfg.MQTT.Topic)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadBadYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "fans: [1, two]\n")
	_, err := Load(path, "")
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "ecfanctl.yaml", "listen: 127.0.0.1:9090\nfans: [1]\n")
	envFile := writeFile(t, ".env", "ECFANCTL_FANS=2,3\nECFANCTL_LISTEN=127.0.0.1:7000\n")
	t.Setenv("ECFANCTL_LISTEN", "127.0.0.1:6000")
	t.Setenv("ECFANCTL_SIMULATE", "true")

	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3}, cfg.Fans)
	assert.Equal(t, "127.0.0.1:6000", cfg.Listen, "process environment wins over env file")
	assert.True(t, cfg.Simulate)
}

func TestMissingEnvFileIsIgnored(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnvErrors(t *testing.T) {
	env := map[string]string{
		"ECFANCTL_POLL_INTERVAL": "soon",
		"ECFANCTL_CURVE_MAX":     "hot",
		"ECFANCTL_FANS":          "1,x",
	}
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "ECFANCTL_POLL_INTERVAL")
	assert.ErrorContains(t, err, "ECFANCTL_CURVE_MAX")
	assert.ErrorContains(t, err, "ECFANCTL_FANS")
	assert.Equal(t, []int{1, 2, 3}, cfg.Fans)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Fans = []int{1, 1, 0}
	cfg.PollInterval = 10 * time.Millisecond
	cfg.CurveMin = 90
	cfg.CurveMax = 40
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"duplicate fan id 1",
		"invalid fan id 0",
		"poll_interval",
		"curve_min 90 is above curve_max 40",
		"invalid log level",
		"invalid log format",
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestParseFans(t *testing.T) {
	fans, err := ParseFans(" 1, 2 ,3,")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, fans)

	_, err = ParseFans("1;2")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "fan", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"fan":1`)

	_, err = LogConfig{Level: "info", Format: "xml"}.NewLogger(&buf)
	assert.Error(t, err)
}
