// Package config loads ecfanctl configuration.
//
// Values are layered: built-in defaults, then the YAML file given with
// --config, then a .env file, then ECFANCTL_* environment variables. Command
// line flags are applied last by the caller. Variables already set in the
// environment win over the .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/CristiGvl/ecfanctl/internal/curve"
	"github.com/CristiGvl/ecfanctl/internal/debounce"
	"github.com/CristiGvl/ecfanctl/internal/device"
	"github.com/CristiGvl/ecfanctl/internal/readback"
	"github.com/CristiGvl/ecfanctl/internal/telemetry"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ECFANCTL_"

// DefaultEnvFile is read when present.
const DefaultEnvFile = ".env"

// Config is the complete ecfanctl configuration.
type Config struct {
	// BasePath is the sysfs directory of the driver.
	BasePath string `yaml:"base_path"`

	// Fans lists the fan ids to control.
	Fans []int `yaml:"fans"`

	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	PollInterval time.Duration `yaml:"poll_interval"`
	WriteDelay   time.Duration `yaml:"write_delay"`
	VerifyDelay  time.Duration `yaml:"verify_delay"`

	// CurveMin and CurveMax bound every curve point.
	CurveMin int `yaml:"curve_min"`
	CurveMax int `yaml:"curve_max"`

	// HostSensors adds gopsutil temperature sensors to telemetry.
	HostSensors bool `yaml:"host_sensors"`

	// Simulate replaces the driver with an in-memory device.
	Simulate bool `yaml:"simulate"`

	Log  LogConfig  `yaml:"log"`
	MQTT MQTTConfig `yaml:"mqtt"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// MQTTConfig configures the optional telemetry export. Export is disabled
// when Broker is empty.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Enabled reports whether MQTT export is configured.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		BasePath:     device.DefaultBasePath,
		Fans:         []int{1, 2, 3},
		Listen:       "0.0.0.0:8080",
		PollInterval: telemetry.DefaultInterval,
		WriteDelay:   debounce.DefaultDelay,
		VerifyDelay:  readback.DefaultDelay,
		CurveMin:     curve.MinTemp,
		CurveMax:     curve.MaxTemp,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		MQTT: MQTTConfig{
			Topic:    "ecfanctl",
			ClientID: "ecfanctl",
		},
	}
}

// Load builds a configuration from the defaults, the YAML file at path (if
// not empty), the env file (if it exists) and the process environment.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	fileEnv := map[string]string{}
	if envFile != "" {
		env, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileEnv = env
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from ECFANCTL_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}
	str := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := get(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("BASE_PATH", &c.BasePath)
	str("LISTEN", &c.Listen)
	dur("POLL_INTERVAL", &c.PollInterval)
	dur("WRITE_DELAY", &c.WriteDelay)
	dur("VERIFY_DELAY", &c.VerifyDelay)
	integer("CURVE_MIN", &c.CurveMin)
	integer("CURVE_MAX", &c.CurveMax)
	boolean("HOST_SENSORS", &c.HostSensors)
	boolean("SIMULATE", &c.Simulate)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("MQTT_BROKER", &c.MQTT.Broker)
	str("MQTT_TOPIC", &c.MQTT.Topic)
	str("MQTT_CLIENT_ID", &c.MQTT.ClientID)
	str("MQTT_USERNAME", &c.MQTT.Username)
	str("MQTT_PASSWORD", &c.MQTT.Password)

	if v, ok := get("FANS"); ok {
		fans, err := ParseFans(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sFANS: %w", EnvPrefix, err))
		} else {
			c.Fans = fans
		}
	}

	return errors.Join(errs...)
}

// ParseFans parses a comma-separated list of fan ids.
func ParseFans(s string) ([]int, error) {
	var fans []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid fan id %q", field)
		}
		fans = append(fans, id)
	}
	return fans, nil
}

// Band returns the allowed curve point range.
func (c *Config) Band() curve.Band {
	return curve.Band{Min: c.CurveMin, Max: c.CurveMax}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if !c.Simulate && c.BasePath == "" {
		errs = append(errs, errors.New("base_path is required"))
	}
	if len(c.Fans) == 0 {
		errs = append(errs, errors.New("at least one fan is required"))
	}
	seen := make(map[int]bool, len(c.Fans))
	for _, fan := range c.Fans {
		if fan < 1 {
			errs = append(errs, fmt.Errorf("invalid fan id %d", fan))
		}
		if seen[fan] {
			errs = append(errs, fmt.Errorf("duplicate fan id %d", fan))
		}
		seen[fan] = true
	}
	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if c.PollInterval < telemetry.MinInterval {
		errs = append(errs, fmt.Errorf("poll_interval %s is below %s", c.PollInterval, telemetry.MinInterval))
	}
	if c.WriteDelay <= 0 {
		errs = append(errs, fmt.Errorf("write_delay must be positive, got %s", c.WriteDelay))
	}
	if c.VerifyDelay <= 0 {
		errs = append(errs, fmt.Errorf("verify_delay must be positive, got %s", c.VerifyDelay))
	}
	if c.CurveMin > c.CurveMax {
		errs = append(errs, fmt.Errorf("curve_min %d is above curve_max %d", c.CurveMin, c.CurveMax))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("invalid log format %q", c.Log.Format))
	}
	if c.MQTT.Enabled() && c.MQTT.Topic == "" {
		errs = append(errs, errors.New("mqtt.topic is required when mqtt.broker is set"))
	}

	return errors.Join(errs...)
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch l.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", l.Format)
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
