// Command conductord is the robot-resident server process: it connects to
// the broker (or embeds one), applies incoming commands to the actuators,
// and publishes telemetry at the configured control rate.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/mobile-manipulation/conductor/observability"
	"github.com/mobile-manipulation/conductor/server"
	"github.com/mobile-manipulation/conductor/transport"
)

var (
	flagBroker      string
	flagRobot       string
	flagEmbedBroker bool
	flagEmbedPort   int
	flagPeriod      time.Duration
	flagVerbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "conductord",
	Short: "Robot-resident command/telemetry server",
	RunE:  runServer,
}

func init() {
	rootCmd.Flags().StringVar(&flagBroker, "broker", "nats://127.0.0.1:4222", "Broker URL")
	rootCmd.Flags().StringVar(&flagRobot, "robot", "stretch", "Robot name (scopes wire subjects)")
	rootCmd.Flags().BoolVar(&flagEmbedBroker, "embed-broker", false, "Run an in-process broker")
	rootCmd.Flags().IntVar(&flagEmbedPort, "embed-port", 4222, "Port for the embedded broker")
	rootCmd.Flags().DurationVar(&flagPeriod, "control-period", 50*time.Millisecond, "Control loop period")
	rootCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging")
}

func runServer(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	observability.RegisterObserver("slog", observability.NewSlogObserver(logger))

	brokerURL := flagBroker
	if flagEmbedBroker {
		broker, err := transport.StartEmbedded("0.0.0.0", flagEmbedPort)
		if err != nil {
			return err
		}
		defer broker.Shutdown()
		brokerURL = broker.ClientURL()
		logger.Info("embedded broker started", slog.String("url", brokerURL))
	}

	tcfg := transport.DefaultConfig()
	tcfg.URL = brokerURL
	tcfg.Robot = flagRobot

	channel, err := transport.Listen(tcfg)
	if err != nil {
		return err
	}
	defer channel.Close()

	scfg := server.DefaultConfig()
	scfg.ControlPeriod = flagPeriod

	actuators := server.NewSimActuators()
	sensors := &server.SimSensors{Frame: []byte("sim-frame")}

	srv, err := server.New(channel, actuators, sensors, scfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("conductord running",
		slog.String("robot", flagRobot),
		slog.String("broker", brokerURL),
	)

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
