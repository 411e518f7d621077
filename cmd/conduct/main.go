// Command conduct is the controller-side CLI: it connects to a robot
// through the broker and runs task-level entry points against it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mobile-manipulation/conductor/agent"
	"github.com/mobile-manipulation/conductor/client"
	"github.com/mobile-manipulation/conductor/observability"
	"github.com/mobile-manipulation/conductor/robot"
	"github.com/mobile-manipulation/conductor/task"
	"github.com/mobile-manipulation/conductor/transport"
)

var (
	flagConfig  string
	flagBroker  string
	flagRobot   string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "conduct",
	Short: "Controller-side robot task runner",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if flagVerbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		observability.RegisterObserver("slog", observability.NewSlogObserver(logger))
	},
}

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Explore and map the surroundings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgent(cmd.Context(), func(ctx context.Context, a *agent.Agent) (*task.RunResult, error) {
			return a.Explore(ctx)
		})
	},
}

var pickupCmd = &cobra.Command{
	Use:   "pickup <label>",
	Short: "Find and pick up a labeled object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgent(cmd.Context(), func(ctx context.Context, a *agent.Agent) (*task.RunResult, error) {
			return a.PickUp(ctx, args[0], nil)
		})
	},
}

var gotoCmd = &cobra.Command{
	Use:   "goto <x> <y> [theta]",
	Short: "Navigate to a pose",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		goal := robot.Pose{}
		var err error
		if goal.X, err = strconv.ParseFloat(args[0], 64); err != nil {
			return fmt.Errorf("invalid x: %w", err)
		}
		if goal.Y, err = strconv.ParseFloat(args[1], 64); err != nil {
			return fmt.Errorf("invalid y: %w", err)
		}
		if len(args) == 3 {
			if goal.Theta, err = strconv.ParseFloat(args[2], 64); err != nil {
				return fmt.Errorf("invalid theta: %w", err)
			}
		}
		return withAgent(cmd.Context(), func(ctx context.Context, a *agent.Agent) (*task.RunResult, error) {
			return a.GoTo(ctx, goal)
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Halt all robot motion immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		channel, err := transport.Dial(cfg.Transport)
		if err != nil {
			return err
		}
		c, err := client.New(channel, cfg.Client)
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Stop(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to JSON config file")
	rootCmd.PersistentFlags().StringVar(&flagBroker, "broker", "", "Broker URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagRobot, "robot", "", "Robot name (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging")
	rootCmd.AddCommand(exploreCmd, pickupCmd, gotoCmd, stopCmd)
}

func loadConfig() (*agent.Config, error) {
	cfg := agent.DefaultConfig()
	if flagConfig != "" {
		loaded, err := agent.LoadConfig(flagConfig)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if flagBroker != "" {
		cfg.Transport.URL = flagBroker
	}
	if flagRobot != "" {
		cfg.Transport.Robot = flagRobot
	}
	return &cfg, nil
}

func withAgent(ctx context.Context, run func(context.Context, *agent.Agent) (*task.RunResult, error)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	channel, err := transport.Dial(cfg.Transport)
	if err != nil {
		return err
	}

	c, err := client.New(channel, cfg.Client)
	if err != nil {
		return err
	}
	defer c.Close()

	a, err := agent.New(c, agent.Collaborators{}, *cfg)
	if err != nil {
		return err
	}
	a.Start(ctx)
	defer a.Close()

	result, err := run(ctx, a)
	if result != nil {
		fmt.Printf("task %s: %s after %d steps (%s)\n",
			result.Graph, result.Status, result.Steps, result.Duration.Round(0))
		for _, outcome := range result.Outcomes {
			line := fmt.Sprintf("  %-20s %s", outcome.Operation, outcome.Status)
			if outcome.Err != nil {
				line += ": " + outcome.Err.Error()
			}
			fmt.Println(line)
		}
	}
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
