// Package cmd provides the ecfanctl command-line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/CristiGvl/ecfanctl/internal/config"
	"github.com/CristiGvl/ecfanctl/internal/device"
	"github.com/CristiGvl/ecfanctl/internal/platform"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ecfanctl",
	Short: "Fan control for the ec_su_axb35 embedded controller.",
	Long: `ecfanctl controls the fans exposed by the ec_su_axb35 driver: fan mode, ` +
		`fixed level, ramp-up/ramp-down temperature curves and the APU power mode. ` +
		`It serves an HTTP API and exports telemetry to Prometheus and MQTT.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to a YAML config file")
	flags.String("env-file", config.DefaultEnvFile, "path to a .env file with ECFANCTL_* variables")
	flags.String("base-path", "", "sysfs directory of the driver (default "+device.DefaultBasePath+")")
	flags.String("fans", "", "comma-separated fan ids")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")
	flags.Bool("simulate", false, "use an in-memory simulated device")

	rootCmd.AddCommand(serveCmd, statusCmd)
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig layers command line flags over the file and environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	envFile, _ := flags.GetString("env-file")

	cfg, err := config.Load(path, envFile)
	if err != nil {
		return nil, err
	}

	if flags.Changed("base-path") {
		cfg.BasePath, _ = flags.GetString("base-path")
	}
	if flags.Changed("fans") {
		raw, _ := flags.GetString("fans")
		if cfg.Fans, err = config.ParseFans(raw); err != nil {
			return nil, fmt.Errorf("--fans: %w", err)
		}
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	if flags.Changed("simulate") {
		cfg.Simulate, _ = flags.GetBool("simulate")
	}
	if flags.Changed("listen") {
		cfg.Listen, _ = flags.GetString("listen")
	}
	if flags.Changed("poll-interval") {
		cfg.PollInterval, _ = flags.GetDuration("poll-interval")
	}
	if flags.Changed("host-sensors") {
		cfg.HostSensors, _ = flags.GetBool("host-sensors")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore returns the device store selected by cfg.
func openStore(cfg *config.Config, logger *slog.Logger) (device.Store, error) {
	if cfg.Simulate {
		logger.Warn("using simulated device", "fans", cfg.Fans)
		return device.NewSimulator(cfg.Fans), nil
	}

	if err := platform.ValidateSupport(); err != nil {
		return nil, err
	}
	if err := platform.CheckDevice(cfg.BasePath); err != nil {
		return nil, err
	}
	store := device.NewSysfsStore(cfg.BasePath)
	logger.Debug("using sysfs device", "path", store.BasePath())
	return store, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
