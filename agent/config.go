package agent

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mobile-manipulation/conductor/client"
	"github.com/mobile-manipulation/conductor/task"
	"github.com/mobile-manipulation/conductor/transport"
)

// Config holds initialization parameters for the agent and the subsystems
// it owns. Each section delegates to that subsystem's config.
type Config struct {
	Transport transport.Config `json:"transport"`
	Client    client.Config    `json:"client"`
	Task      task.Config      `json:"task"`

	// MapResolution is the occupancy-grid cell size in meters.
	MapResolution float64 `json:"map_resolution,omitempty"`

	// ExploreRadius bounds the frontier search region in meters.
	ExploreRadius float64 `json:"explore_radius,omitempty"`

	Observer string `json:"observer,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Transport:     transport.DefaultConfig(),
		Client:        client.DefaultConfig(),
		Task:          task.DefaultConfig(),
		MapResolution: 0.25,
		ExploreRadius: 5,
		Observer:      "slog",
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Transport.Merge(&source.Transport)
	c.Client.Merge(&source.Client)
	c.Task.Merge(&source.Task)

	if source.MapResolution > 0 {
		c.MapResolution = source.MapResolution
	}
	if source.ExploreRadius > 0 {
		c.ExploreRadius = source.ExploreRadius
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// LoadConfig reads a JSON config file, merges it with defaults, and returns
// the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
