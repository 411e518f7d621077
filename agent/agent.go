// Package agent wires a robot client, a task manager, and the external
// collaborators (perception, mapping, planning) into task-level entry
// points like Explore and PickUp. The agent owns the world-model snapshot
// and its single background writer.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/mobile-manipulation/conductor/agent/operations"
	"github.com/mobile-manipulation/conductor/client"
	"github.com/mobile-manipulation/conductor/mapping"
	"github.com/mobile-manipulation/conductor/observability"
	"github.com/mobile-manipulation/conductor/perception"
	"github.com/mobile-manipulation/conductor/planning"
	"github.com/mobile-manipulation/conductor/robot"
	"github.com/mobile-manipulation/conductor/task"
)

// Event types emitted by the agent.
const (
	EventTaskRequested observability.EventType = "agent.task.requested"
	EventAbort         observability.EventType = "agent.abort"
)

// Collaborators are the external capability providers injected into
// operations. Any nil member is replaced by the simulation stand-in.
type Collaborators struct {
	Segmenter perception.Segmenter
	Mapper    mapping.Mapper
	Planner   planning.Planner
}

// Agent is the top-level facade used by applications.
type Agent struct {
	robot    *client.Client
	manager  *task.Manager
	collab   Collaborators
	cfg      Config
	observer observability.Observer

	world *WorldModel

	mu        sync.Mutex
	runCancel context.CancelFunc

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// New creates an Agent over an existing client connection.
func New(robotClient *client.Client, collab Collaborators, cfg Config) (*Agent, error) {
	observer, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}

	manager, err := task.NewManager(cfg.Task)
	if err != nil {
		return nil, fmt.Errorf("failed to create task manager: %w", err)
	}

	if collab.Mapper == nil {
		collab.Mapper = mapping.NewGridMapper(cfg.MapResolution)
	}
	if collab.Planner == nil {
		collab.Planner = planning.NewLinePlanner()
	}
	if collab.Segmenter == nil {
		collab.Segmenter = &perception.StaticSegmenter{}
	}

	return &Agent{
		robot:    robotClient,
		manager:  manager,
		collab:   collab,
		cfg:      cfg,
		observer: observer,
		world:    &WorldModel{},
	}, nil
}

// Start launches the background world-model update loop: the agent's
// single writer. It subscribes to the full telemetry stream, integrates
// frames into the mapper, and refreshes the snapshot.
func (a *Agent) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	a.loopCancel = cancel
	a.loopDone = make(chan struct{})

	frames, unsubscribe := a.robot.Subscribe(robot.StreamFull)

	go func() {
		defer close(a.loopDone)
		defer unsubscribe()
		for {
			select {
			case <-loopCtx.Done():
				return
			case frame := <-frames:
				a.collab.Mapper.Integrate(frame.State, frame.Image)
				a.world.update(frame.State, a.robot.Stale(), a.collab.Mapper.Version())
			}
		}
	}()
}

// World returns the agent's world-model snapshot.
func (a *Agent) World() *WorldModel { return a.world }

func (a *Agent) deps() operations.Deps {
	return operations.Deps{
		Robot:     a.robot,
		Mapper:    a.collab.Mapper,
		Planner:   a.collab.Planner,
		Segmenter: a.collab.Segmenter,
	}
}

// execute runs a graph under an abortable context registered with the
// agent, so Abort reaches the running operation.
func (a *Agent) execute(ctx context.Context, g *task.Graph) (*task.RunResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.runCancel = cancel
	a.mu.Unlock()
	defer func() {
		cancel()
		a.mu.Lock()
		a.runCancel = nil
		a.mu.Unlock()
	}()

	observability.Emit(ctx, a.observer, EventTaskRequested, observability.LevelInfo, "agent", map[string]any{
		"graph": g.Name(),
	})

	return a.manager.Execute(runCtx, g)
}

// Abort cancels the current task run and halts the robot. The running
// operation observes the abort within one scheduling tick and releases any
// actuator locks it holds.
func (a *Agent) Abort(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.runCancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	observability.Emit(ctx, a.observer, EventAbort, observability.LevelWarning, "agent", nil)
	return a.robot.Stop(ctx)
}

// Explore maps the surroundings: a panoramic rotation, then repeated
// navigation to the nearest frontier until none remain within the explore
// radius. Exhausting the frontier retries ends the run successfully via
// the final map update.
func (a *Agent) Explore(ctx context.Context) (*task.RunResult, error) {
	deps := a.deps()
	r := a.cfg.ExploreRadius
	here := a.world.State().Pose
	region := mapping.Region{
		MinX: here.X - r, MinY: here.Y - r,
		MaxX: here.X + r, MaxY: here.Y + r,
	}

	g := task.NewGraph("explore")
	rotate := operations.NewRotateInPlace(deps, 8)
	sweep := operations.NewUpdateMap(deps, 3)
	frontier := operations.NewNavigateToFrontier(deps, region)
	finish := operations.NewUpdateMap(deps, 1)

	for _, op := range []task.Operation{rotate, sweep, frontier, finish} {
		if err := g.AddNode(op); err != nil {
			return nil, err
		}
	}

	// Frontier loops on itself until its pre-condition (a frontier exists)
	// fails, which routes to the final update and a successful finish.
	must(g.AddTransition(rotate.Name(), task.Edge{To: sweep.Name()}, task.Edge{To: task.Fail}))
	must(g.AddTransition(sweep.Name(), task.Edge{To: frontier.Name()}, task.Edge{To: task.Fail}))
	must(g.AddTransition(frontier.Name(),
		task.Edge{To: frontier.Name(), Retries: 32},
		task.Edge{To: finish.Name()}))
	must(g.AddTransition(finish.Name(), task.Edge{To: task.Done}, task.Edge{To: task.Fail}))
	must(g.SetEntry(rotate.Name()))

	return a.execute(ctx, g)
}

// PickUp finds an object by label, grasps it, and optionally places it at
// receptacle (nil leaves the object held). A failed grasp retreats and
// reports overall failure.
func (a *Agent) PickUp(ctx context.Context, label string, receptacle *robot.Pose) (*task.RunResult, error) {
	deps := a.deps()
	state := &operations.PickupState{}

	g := task.NewGraph("pickup")
	search := operations.NewSearchForObject(deps, label, state)
	grasp := operations.NewGrasp(deps, state)
	retreat := operations.NewRetreat(deps, 0.5)

	ops := []task.Operation{search, grasp, retreat}

	var place *operations.Place
	if receptacle != nil {
		place = operations.NewPlace(deps, *receptacle)
		ops = append(ops, place)
	}

	for _, op := range ops {
		if err := g.AddNode(op); err != nil {
			return nil, err
		}
	}

	must(g.AddTransition(search.Name(),
		task.Edge{To: grasp.Name()},
		task.Edge{To: search.Name(), Retries: 2}))

	graspSuccess := task.Edge{To: task.Done}
	if place != nil {
		graspSuccess = task.Edge{To: place.Name()}
		must(g.AddTransition(place.Name(), task.Edge{To: task.Done}, task.Edge{To: retreat.Name()}))
	}
	must(g.AddTransition(grasp.Name(), graspSuccess, task.Edge{To: retreat.Name()}))

	// Retreat is recovery: it completes cleanly but the task still failed.
	must(g.AddTransition(retreat.Name(), task.Edge{To: task.Fail}, task.Edge{To: task.Fail}))
	must(g.SetEntry(search.Name()))

	return a.execute(ctx, g)
}

// GoTo navigates to an explicit pose.
func (a *Agent) GoTo(ctx context.Context, goal robot.Pose) (*task.RunResult, error) {
	deps := a.deps()

	g := task.NewGraph("goto")
	nav := operations.NewNavigate(deps, goal)
	retreat := operations.NewRetreat(deps, 0.3)

	for _, op := range []task.Operation{nav, retreat} {
		if err := g.AddNode(op); err != nil {
			return nil, err
		}
	}
	must(g.AddTransition(nav.Name(), task.Edge{To: task.Done}, task.Edge{To: retreat.Name()}))
	must(g.AddTransition(retreat.Name(), task.Edge{To: task.Fail}, task.Edge{To: task.Fail}))
	must(g.SetEntry(nav.Name()))

	return a.execute(ctx, g)
}

// GoHome navigates back to the origin pose.
func (a *Agent) GoHome(ctx context.Context) (*task.RunResult, error) {
	return a.GoTo(ctx, robot.Pose{})
}

// Close stops the background loop. The client connection is owned by the
// caller and stays open.
func (a *Agent) Close() {
	if a.loopCancel != nil {
		a.loopCancel()
		<-a.loopDone
	}
}

// must panics on graph-construction errors: the graphs above are built
// from compile-time structure, so an error is a programming bug.
func must(err error) {
	if err != nil {
		panic(err)
	}
}
