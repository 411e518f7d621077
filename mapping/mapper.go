// Package mapping defines the narrow interface to the mapping collaborator
// and provides a 2-D occupancy-grid implementation. The full 3-D voxel
// representation lives outside the orchestration core.
//
// Write discipline: a single writer (the agent's background update task)
// calls Integrate; any number of readers call Query, Occupied, and Version
// concurrently. The version counter lets readers detect staleness instead
// of assuming freshness.
package mapping

import (
	"math"
	"sync"

	"github.com/mobile-manipulation/conductor/robot"
)

// Region is an axis-aligned query window in world coordinates.
type Region struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Summary is the aggregate answer to a region query.
type Summary struct {
	Known    int
	Occupied int
	Free     int
	Frontier []robot.Pose
}

// Mapper is the collaborator interface consumed by operations and the
// agent.
type Mapper interface {
	// Integrate folds a state snapshot and optional sensor payload into
	// the map. Single-writer.
	Integrate(state robot.RobotState, payload []byte)

	// Query summarizes a region. Multi-reader.
	Query(region Region) Summary

	// Occupied reports whether a pose is known-blocked (planner view).
	Occupied(p robot.Pose) bool

	// Version increases with every Integrate, so consumers can detect
	// stale snapshots.
	Version() uint64
}

type cell int8

const (
	cellUnknown cell = iota
	cellFree
	cellOccupied
)

// GridMapper is a fixed-resolution 2-D occupancy grid.
type GridMapper struct {
	mu         sync.RWMutex
	resolution float64
	cells      map[[2]int]cell
	version    uint64
}

// NewGridMapper creates a grid with the given cell size in meters.
func NewGridMapper(resolution float64) *GridMapper {
	if resolution <= 0 {
		resolution = 0.25
	}
	return &GridMapper{
		resolution: resolution,
		cells:      make(map[[2]int]cell),
	}
}

func (g *GridMapper) index(x, y float64) [2]int {
	return [2]int{
		int(math.Floor(x / g.resolution)),
		int(math.Floor(y / g.resolution)),
	}
}

// Integrate marks the robot's cell free and, when a sensor payload is
// attached, the surrounding ring as observed free. Real depth integration
// belongs to the external voxel mapper; this keeps frontiers and planning
// functional in simulation.
func (g *GridMapper) Integrate(state robot.RobotState, payload []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()

	center := g.index(state.Pose.X, state.Pose.Y)
	g.setFreeLocked(center)

	if len(payload) > 0 {
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				g.setFreeLocked([2]int{center[0] + dx, center[1] + dy})
			}
		}
	}
	g.version++
}

func (g *GridMapper) setFreeLocked(idx [2]int) {
	if g.cells[idx] != cellOccupied {
		g.cells[idx] = cellFree
	}
}

// MarkOccupied records an obstacle cell. Exposed for simulation setup and
// for external integrators.
func (g *GridMapper) MarkOccupied(p robot.Pose) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cells[g.index(p.X, p.Y)] = cellOccupied
	g.version++
}

func (g *GridMapper) Occupied(p robot.Pose) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cells[g.index(p.X, p.Y)] == cellOccupied
}

func (g *GridMapper) Version() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// Query summarizes the region and collects frontier poses: free cells with
// at least one unknown neighbor, the targets exploration navigates to.
func (g *GridMapper) Query(region Region) Summary {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var s Summary
	min := g.index(region.MinX, region.MinY)
	max := g.index(region.MaxX, region.MaxY)

	for ix := min[0]; ix <= max[0]; ix++ {
		for iy := min[1]; iy <= max[1]; iy++ {
			c, known := g.cells[[2]int{ix, iy}]
			if !known || c == cellUnknown {
				continue
			}
			s.Known++
			if c == cellOccupied {
				s.Occupied++
				continue
			}
			s.Free++
			if g.frontierLocked(ix, iy) {
				s.Frontier = append(s.Frontier, robot.Pose{
					X: (float64(ix) + 0.5) * g.resolution,
					Y: (float64(iy) + 0.5) * g.resolution,
				})
			}
		}
	}
	return s
}

func (g *GridMapper) frontierLocked(ix, iy int) bool {
	for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		if _, known := g.cells[[2]int{ix + d[0], iy + d[1]}]; !known {
			return true
		}
	}
	return false
}
