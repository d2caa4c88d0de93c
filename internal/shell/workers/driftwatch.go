// Package workers contains background workers for stackd.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/stackd/internal/core/domain"
	"github.com/artpar/stackd/internal/core/readiness"
	"github.com/artpar/stackd/internal/shell/docker"
	"github.com/artpar/stackd/internal/shell/store"
)

// =============================================================================
// Configuration
// =============================================================================

// DriftWatcherConfig configures the drift watcher worker.
type DriftWatcherConfig struct {
	// Interval is the time between observation cycles.
	// Default: 30 seconds.
	Interval time.Duration

	// StackTimeout is the timeout for observing a single stack.
	// Default: 15 seconds.
	StackTimeout time.Duration

	// MaxConcurrent is the maximum number of stacks observed concurrently.
	// Default: 4.
	MaxConcurrent int
}

// DefaultDriftWatcherConfig returns the default configuration.
func DefaultDriftWatcherConfig() DriftWatcherConfig {
	return DriftWatcherConfig{
		Interval:      30 * time.Second,
		StackTimeout:  15 * time.Second,
		MaxConcurrent: 4,
	}
}

// StackObserver reports the observed container state of a stack.
// *docker.Reconciler satisfies this.
type StackObserver interface {
	Status(ctx context.Context, stackID string) (*docker.StackStatus, error)
}

// =============================================================================
// Drift Watcher
// =============================================================================

// DriftWatcher periodically compares the observed container state of applied
// stacks against their recorded state. Stacks whose containers have stopped
// or gone unhealthy are marked degraded; degraded stacks whose containers
// have recovered are marked running again.
type DriftWatcher struct {
	store    store.Store
	observer StackObserver
	config   DriftWatcherConfig
	logger   *slog.Logger

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDriftWatcher creates a new drift watcher worker.
func NewDriftWatcher(
	s store.Store,
	observer StackObserver,
	config DriftWatcherConfig,
	logger *slog.Logger,
) *DriftWatcher {
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.StackTimeout == 0 {
		config.StackTimeout = 15 * time.Second
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 4
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &DriftWatcher{
		store:    s,
		observer: observer,
		config:   config,
		logger:   logger.With("component", "drift_watcher"),
	}
}

// Start begins the drift watcher background goroutine.
func (d *DriftWatcher) Start() {
	d.ctx, d.cancel = context.WithCancel(context.Background())

	d.wg.Add(1)
	go d.run()

	d.logger.Info("drift watcher started",
		"interval", d.config.Interval,
		"max_concurrent", d.config.MaxConcurrent,
	)
}

// Stop gracefully stops the drift watcher.
// It waits for any in-progress observation cycle to complete.
func (d *DriftWatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.logger.Info("drift watcher stopped")
}

// run is the main loop that observes stacks periodically.
func (d *DriftWatcher) run() {
	defer d.wg.Done()

	// Run immediately on start
	d.runCycle()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.runCycle()
		}
	}
}

// runCycle observes every running and degraded stack once.
func (d *DriftWatcher) runCycle() {
	ctx, cancel := context.WithTimeout(d.ctx, d.config.Interval)
	defer cancel()

	stacks, err := d.listWatchedStacks(ctx)
	if err != nil {
		d.logger.Error("failed to list stacks", "error", err)
		return
	}

	if len(stacks) == 0 {
		d.logger.Debug("no stacks to observe")
		return
	}

	d.logger.Debug("starting observation cycle", "stack_count", len(stacks))

	// Semaphore limits concurrent Docker inspections
	sem := make(chan struct{}, d.config.MaxConcurrent)
	var wg sync.WaitGroup

	for i := range stacks {
		stk := &stacks[i]

		wg.Add(1)
		go func(s *domain.Stack) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}

			d.observeStack(ctx, s)
		}(stk)
	}

	wg.Wait()
	d.logger.Debug("completed observation cycle", "stack_count", len(stacks))
}

// listWatchedStacks returns stacks whose containers should currently be up.
func (d *DriftWatcher) listWatchedStacks(ctx context.Context) ([]domain.Stack, error) {
	running, err := d.store.ListStacksByStatus(ctx, domain.StatusRunning)
	if err != nil {
		return nil, err
	}
	degraded, err := d.store.ListStacksByStatus(ctx, domain.StatusDegraded)
	if err != nil {
		return nil, err
	}
	return append(running, degraded...), nil
}

// observeStack inspects one stack's containers and reconciles its status.
func (d *DriftWatcher) observeStack(ctx context.Context, stk *domain.Stack) {
	stackCtx, cancel := context.WithTimeout(ctx, d.config.StackTimeout)
	defer cancel()

	logger := d.logger.With("stack_id", stk.ID, "stack_slug", stk.Slug)

	status, err := d.observer.Status(stackCtx, stk.ID)
	if err != nil {
		logger.Error("failed to observe stack", "error", err)
		return
	}

	d.recordMissingContainers(stackCtx, stk, status, logger)

	switch {
	case stk.Status == domain.StatusRunning && isDegradedVerdict(status):
		d.markDegraded(stackCtx, stk, status, logger)
	case stk.Status == domain.StatusDegraded && status.Readiness == readiness.LevelReady:
		d.markHealthy(stackCtx, stk, status, logger)
	default:
		// Keep the container snapshot fresh even without a transition.
		d.syncContainers(stackCtx, stk, status)
	}
}

// isDegradedVerdict reports whether the observed readiness warrants a
// degraded status. Starting containers are given time to settle; only an
// unready verdict somewhere in the stack counts as drift.
func isDegradedVerdict(status *docker.StackStatus) bool {
	for _, v := range status.Verdicts {
		if v.Level == readiness.LevelUnready {
			return true
		}
	}
	// Every expected container gone also means the stack is not serving.
	return len(status.Verdicts) == 0
}

// markDegraded transitions a running stack to degraded and records which
// services drifted.
func (d *DriftWatcher) markDegraded(ctx context.Context, stk *domain.Stack, status *docker.StackStatus, logger *slog.Logger) {
	if err := stk.Transition(domain.StatusDegraded); err != nil {
		logger.Error("failed to transition stack", "error", err)
		return
	}
	stk.Containers = status.Containers

	if err := d.store.UpdateStack(ctx, stk); err != nil {
		logger.Error("failed to update stack", "error", err)
		return
	}

	unready := unreadyServices(status)
	logger.Warn("stack degraded", "unready_services", unready)

	msg := fmt.Sprintf("Stack degraded: %d of %d containers unready", len(unready), len(status.Verdicts))
	if len(status.Verdicts) == 0 {
		msg = "Stack degraded: no containers found"
	}
	d.recordEvent(ctx, domain.NewEvent(stk.ID, domain.EventStackDegraded, "", msg), logger)
}

// markHealthy transitions a degraded stack back to running.
func (d *DriftWatcher) markHealthy(ctx context.Context, stk *domain.Stack, status *docker.StackStatus, logger *slog.Logger) {
	if err := stk.Transition(domain.StatusRunning); err != nil {
		logger.Error("failed to transition stack", "error", err)
		return
	}
	stk.Containers = status.Containers

	if err := d.store.UpdateStack(ctx, stk); err != nil {
		logger.Error("failed to update stack", "error", err)
		return
	}

	logger.Info("stack recovered")
	d.recordEvent(ctx, domain.NewEvent(stk.ID, domain.EventStackHealthy, "", "All containers ready"), logger)
}

// syncContainers refreshes the stored container snapshot when the observed
// set differs from the recorded one.
func (d *DriftWatcher) syncContainers(ctx context.Context, stk *domain.Stack, status *docker.StackStatus) {
	if !containersChanged(stk.Containers, status.Containers) {
		return
	}
	stk.Containers = status.Containers
	stk.UpdatedAt = time.Now().UTC()
	if err := d.store.UpdateStack(ctx, stk); err != nil {
		d.logger.Error("failed to sync containers", "stack_id", stk.ID, "error", err)
	}
}

// recordMissingContainers emits a drift event for each recorded container
// that no longer exists.
func (d *DriftWatcher) recordMissingContainers(ctx context.Context, stk *domain.Stack, status *docker.StackStatus, logger *slog.Logger) {
	observed := make(map[string]bool, len(status.Containers))
	for _, c := range status.Containers {
		observed[c.ServiceName] = true
	}

	for _, c := range stk.Containers {
		if observed[c.ServiceName] {
			continue
		}
		logger.Warn("container missing", "service", c.ServiceName, "container_id", c.ID)
		msg := fmt.Sprintf("Container for service %q no longer exists", c.ServiceName)
		d.recordEvent(ctx, domain.NewEvent(stk.ID, domain.EventDriftDetected, c.ServiceName, msg), logger)
	}
}

// recordEvent writes an apply-history event; failures are logged only.
func (d *DriftWatcher) recordEvent(ctx context.Context, event *domain.Event, logger *slog.Logger) {
	if err := d.store.RecordEvent(ctx, event); err != nil {
		logger.Error("failed to record event", "event_type", event.Type, "error", err)
	}
}

// ObserveNow runs an immediate observation of a specific stack.
// Useful right after an apply to pick up early failures.
func (d *DriftWatcher) ObserveNow(ctx context.Context, stackID string) error {
	stk, err := d.store.GetStack(ctx, stackID)
	if err != nil {
		return err
	}
	if stk.Status != domain.StatusRunning && stk.Status != domain.StatusDegraded {
		return nil
	}
	d.observeStack(ctx, stk)
	return nil
}

// unreadyServices lists the service names with an unready verdict.
func unreadyServices(status *docker.StackStatus) []string {
	var names []string
	for _, v := range status.Verdicts {
		if v.Level == readiness.LevelUnready {
			names = append(names, v.ServiceName)
		}
	}
	return names
}

// containersChanged compares recorded and observed container snapshots.
func containersChanged(recorded, observed []domain.ContainerInfo) bool {
	if len(recorded) != len(observed) {
		return true
	}
	byService := make(map[string]domain.ContainerInfo, len(recorded))
	for _, c := range recorded {
		byService[c.ServiceName] = c
	}
	for _, c := range observed {
		r, ok := byService[c.ServiceName]
		if !ok || r.ID != c.ID || r.Status != c.Status {
			return true
		}
	}
	return false
}
