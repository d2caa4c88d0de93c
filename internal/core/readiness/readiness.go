// Package readiness provides pure functions for container and stack
// readiness decisions. No I/O happens here; the shell feeds in observed
// container state and acts on the verdicts.
package readiness

import "github.com/artpar/stackd/internal/core/stack"

// =============================================================================
// Readiness Levels
// =============================================================================

// Level is the readiness classification for a container or a whole stack.
type Level string

const (
	LevelReady    Level = "ready"
	LevelStarting Level = "starting"
	LevelUnready  Level = "unready"
	LevelUnknown  Level = "unknown"
)

// ContainerReadiness is the readiness verdict for one container.
type ContainerReadiness struct {
	ServiceName string `json:"service_name"`
	Level       Level  `json:"level"`
	Restarts    int    `json:"restarts"`
}

// =============================================================================
// Container Classification
// =============================================================================

// ForContainer classifies a container's readiness from its observed state.
//
// Parameters:
//   - state: container state (running, exited, created, restarting, ...)
//   - health: Docker health check result if configured ("healthy",
//     "unhealthy", "starting", "" when no check is configured)
//   - restarts: restart count since creation
func ForContainer(state, health string, restarts int) Level {
	if state != "running" {
		return LevelUnready
	}

	switch health {
	case "unhealthy":
		return LevelUnready
	case "starting":
		return LevelStarting
	}

	// Frequent restarts mean the container is flapping even though it is
	// currently up.
	if restarts > 3 {
		return LevelStarting
	}

	return LevelReady
}

// =============================================================================
// Stack Aggregation
// =============================================================================

// Aggregate determines overall stack readiness from container verdicts.
func Aggregate(containers []ContainerReadiness) Level {
	if len(containers) == 0 {
		return LevelUnknown
	}

	unready := 0
	starting := 0

	for _, c := range containers {
		switch c.Level {
		case LevelUnready:
			unready++
		case LevelStarting, LevelUnknown:
			starting++
		}
	}

	if unready == len(containers) {
		return LevelUnready
	}
	if unready > 0 || starting > 0 {
		return LevelStarting
	}
	return LevelReady
}

// =============================================================================
// Dependency Gating
// =============================================================================

// GateSatisfied decides whether a dependent service may start given the
// observed state of one of its dependencies.
//
// The dependency lists in a stack document are "start after" hints only.
// Rather than padding starts with a fixed delay, stackd tightens the rule:
// when the dependency declares a healthcheck, the dependent waits until the
// check reports healthy; without a healthcheck, a running container is
// enough.
func GateSatisfied(dep stack.Service, state, health string) bool {
	if state != "running" {
		return false
	}
	if dep.HealthCheck != nil {
		return health == "healthy"
	}
	return true
}
