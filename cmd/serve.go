package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/CristiGvl/ecfanctl/api"
	"github.com/CristiGvl/ecfanctl/internal/clock"
	"github.com/CristiGvl/ecfanctl/internal/config"
	"github.com/CristiGvl/ecfanctl/internal/export"
	"github.com/CristiGvl/ecfanctl/internal/fan"
	"github.com/CristiGvl/ecfanctl/internal/metrics"
	"github.com/CristiGvl/ecfanctl/internal/telemetry"
	"github.com/CristiGvl/ecfanctl/internal/view"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fan controller and its HTTP API.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		accessLog, _ := cmd.Flags().GetBool("access-log")
		return serve(cfg, logger, accessLog)
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.String("listen", "", "HTTP listen address (default 0.0.0.0:8080)")
	flags.Duration("poll-interval", telemetry.DefaultInterval, "telemetry poll interval")
	flags.Bool("host-sensors", false, "include host temperature sensors in telemetry")
	flags.Bool("access-log", false, "log every HTTP request")
}

func serve(cfg *config.Config, logger *slog.Logger, accessLog bool) error {
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	m := metrics.New()
	clk := clock.Real()

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := view.NewHub(cfg.Fans, clk, logger)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		_ = hub.Run(hubCtx)
	}()

	controller := fan.NewController(store, cfg.Fans, hub, fan.Options{
		Clock:       clk,
		WriteDelay:  cfg.WriteDelay,
		VerifyDelay: cfg.VerifyDelay,
		Band:        cfg.Band(),
		Logger:      logger,
		Observer:    m,
	})

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 10*time.Second)
	if err := controller.Load(loadCtx); err != nil {
		logger.Warn("some attributes could not be read at start-up", "error", err)
	}
	cancelLoad()

	var host telemetry.HostReader
	if cfg.HostSensors {
		host = telemetry.NewHostReader()
	}
	poller := telemetry.NewPoller(store, cfg.Fans, hub, telemetry.Options{
		Interval: cfg.PollInterval,
		Host:     host,
		Clock:    clk,
		Observer: m,
		Logger:   logger,
	})
	pollCtx, stopPoller := context.WithCancel(context.Background())
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		_ = poller.Run(pollCtx)
	}()

	var publisher *export.Publisher
	var exportDone chan struct{}
	if cfg.MQTT.Enabled() {
		client, err := export.Connect(export.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			logger.Error("mqtt export disabled", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			publisher = export.NewPublisher(client, cfg.MQTT.Topic, logger)
			events, unsubscribe := hub.Subscribe(64)
			exportDone = make(chan struct{})
			go func() {
				defer close(exportDone)
				defer unsubscribe()
				_ = publisher.Run(hubCtx, events)
			}()
			logger.Info("mqtt export enabled", "broker", cfg.MQTT.Broker, "topic", cfg.MQTT.Topic)
		}
	}

	server := api.NewServer(api.Options{
		Controller: controller,
		Hub:        hub,
		Poller:     poller,
		Metrics:    m.Handler(),
		Logger:     logger,
		AccessLog:  accessLog,
		Simulated:  cfg.Simulate,
	})

	var once sync.Once
	shutdown := func() {
		once.Do(func() {
			logger.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				logger.Error("http shutdown failed", "error", err)
			}
			controller.Close()
			stopPoller()
			<-pollDone
			stopHub()
			<-hubDone
			if publisher != nil {
				<-exportDone
				publisher.Close()
			}
		})
	}
	atexit.Register(shutdown)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.Listen)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case s := <-sig:
		logger.Info("received signal", "signal", s.String())
		shutdown()
		return nil
	case err := <-serverErr:
		shutdown()
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}
