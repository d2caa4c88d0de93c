package plan

import (
	"time"

	"github.com/artpar/stackd/internal/core/stack"
)

// =============================================================================
// Container Plan Types
// =============================================================================

// ContainerPlan represents a planned container configuration.
// This is the pure output of planning, ready for the shell to execute.
type ContainerPlan struct {
	Name          string
	ServiceName   string
	Image         string
	Command       []string
	Entrypoint    []string
	Env           map[string]string
	Labels        map[string]string
	Ports         []PortPlan
	Volumes       []VolumePlan
	Networks      []string
	RestartPolicy RestartPolicyPlan
	Resources     ResourcePlan
	HealthCheck   *HealthCheckPlan

	// DependsOn carries the service-level ordering constraint so the
	// executor can gate starts on dependency readiness.
	DependsOn []string
}

// PortPlan represents a planned port binding.
type PortPlan struct {
	ContainerPort int
	HostPort      int
	Protocol      string
	HostIP        string
}

// VolumePlan represents a planned volume mount.
type VolumePlan struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RestartPolicyPlan represents a restart policy.
type RestartPolicyPlan struct {
	Name              string
	MaximumRetryCount int
}

// ResourcePlan represents resource limits.
type ResourcePlan struct {
	CPULimit    float64
	MemoryLimit int64
}

// HealthCheckPlan represents a health check configuration.
type HealthCheckPlan struct {
	Test        []string
	Interval    time.Duration
	Timeout     time.Duration
	Retries     int
	StartPeriod time.Duration
}

// =============================================================================
// Builder Parameter Types
// =============================================================================

// BuildContainerPlanParams contains all inputs for building a container plan.
type BuildContainerPlanParams struct {
	StackID     string
	ServiceName string
	Service     stack.Service
	Variables   map[string]string
	// EnvFiles maps an env_file path from the document to its resolved
	// key/value contents.
	EnvFiles    map[string]map[string]string
	NetworkName string
	Volumes     []stack.Volume
}

// =============================================================================
// Stackd Container Labels
// =============================================================================

// Label keys used for stackd container identification.
const (
	LabelManaged    = "com.stackd.managed"
	LabelStack      = "com.stackd.stack"
	LabelService    = "com.stackd.service"
	LabelConfigHash = "com.stackd.confighash"
)
