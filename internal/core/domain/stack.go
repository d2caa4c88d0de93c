// Package domain contains the core domain types for stackd.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Stack Errors
// =============================================================================

var (
	ErrEmptyName         = errors.New("stack name is required")
	ErrEmptySource       = errors.New("stack source document is required")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// Stack Status
// =============================================================================

// StackStatus is the lifecycle state of a registered stack.
type StackStatus string

const (
	StatusPending  StackStatus = "pending"
	StatusApplying StackStatus = "applying"
	StatusRunning  StackStatus = "running"
	StatusDegraded StackStatus = "degraded"
	StatusStopping StackStatus = "stopping"
	StatusStopped  StackStatus = "stopped"
	StatusRemoving StackStatus = "removing"
	StatusRemoved  StackStatus = "removed"
	StatusFailed   StackStatus = "failed"
)

// =============================================================================
// Container Info
// =============================================================================

// PortMapping represents a port mapping.
type PortMapping struct {
	ContainerPort int    `json:"container_port"`
	HostPort      int    `json:"host_port"`
	Protocol      string `json:"protocol"` // tcp, udp
}

// ContainerInfo represents a container materialized for a stack service.
type ContainerInfo struct {
	ID          string        `json:"id"`
	ServiceName string        `json:"service_name"`
	Image       string        `json:"image"`
	Status      string        `json:"status"`
	Ports       []PortMapping `json:"ports,omitempty"`
}

// =============================================================================
// Resources
// =============================================================================

// Resources represents aggregate resource requirements for a stack.
type Resources struct {
	CPUCores float64 `json:"cpu_cores"`
	MemoryMB int64   `json:"memory_mb"`
	DiskMB   int64   `json:"disk_mb"`
}

// =============================================================================
// Stack
// =============================================================================

// Stack is a registered stack document plus its runtime state. The document
// is authored once; everything else on this struct is derived from applying
// it against the Docker host.
type Stack struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Slug      string            `json:"slug"`
	Source    string            `json:"source"` // raw stack document (YAML)
	Variables map[string]string `json:"variables,omitempty"`
	// EnvFiles holds the resolved contents of the documents' env_file
	// references, keyed by the path as written in the document. The files
	// live next to the operator's document, so clients resolve them at
	// submission time and the values travel with the stack.
	EnvFiles     map[string]map[string]string `json:"env_files,omitempty"`
	Hostname     string                       `json:"hostname,omitempty"`  // edge routing hostname
	EdgePort     int                          `json:"edge_port,omitempty"` // host port the edge proxies to
	Status       StackStatus                  `json:"status"`
	Containers   []ContainerInfo              `json:"containers,omitempty"`
	Resources    Resources                    `json:"resources"`
	ErrorMessage string                       `json:"error_message,omitempty"`
	CreatedAt    time.Time                    `json:"created_at"`
	UpdatedAt    time.Time                    `json:"updated_at"`
	AppliedAt    *time.Time                   `json:"applied_at,omitempty"`
	StoppedAt    *time.Time                   `json:"stopped_at,omitempty"`
}

// NewStack creates a new stack record from a source document.
func NewStack(name, source string, variables map[string]string) (*Stack, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if source == "" {
		return nil, ErrEmptySource
	}

	now := time.Now().UTC()
	return &Stack{
		ID:        uuid.New().String(),
		Name:      name,
		Slug:      GenerateStackSlug(name),
		Source:    source,
		Variables: variables,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Transition attempts to transition the stack to a new status.
func (s *Stack) Transition(to StackStatus) error {
	if err := ValidateTransition(s.Status, to); err != nil {
		return err
	}

	s.Status = to
	s.UpdatedAt = time.Now().UTC()

	// Clear error when a new apply begins
	if to == StatusApplying {
		s.ErrorMessage = ""
	}

	if to == StatusRunning {
		now := time.Now().UTC()
		s.AppliedAt = &now
	}
	if to == StatusStopped {
		now := time.Now().UTC()
		s.StoppedAt = &now
	}

	return nil
}

// TransitionToFailed transitions to failed status with an error message.
func (s *Stack) TransitionToFailed(errorMessage string) error {
	switch s.Status {
	case StatusApplying, StatusRunning, StatusDegraded, StatusStopping:
		s.Status = StatusFailed
		s.ErrorMessage = errorMessage
		s.UpdatedAt = time.Now().UTC()
		return nil
	default:
		return ErrInvalidTransition
	}
}

// Routable reports whether the edge proxy may send traffic to this stack.
func (s *Stack) Routable() bool {
	return (s.Status == StatusRunning || s.Status == StatusDegraded) && s.EdgePort > 0
}

// =============================================================================
// State Machine
// =============================================================================

// validTransitions defines the allowed state transitions.
var validTransitions = map[StackStatus][]StackStatus{
	StatusPending:  {StatusApplying, StatusRemoving},
	StatusApplying: {StatusRunning, StatusFailed},
	StatusRunning:  {StatusDegraded, StatusStopping, StatusApplying, StatusFailed},
	StatusDegraded: {StatusRunning, StatusStopping, StatusApplying, StatusFailed},
	StatusStopping: {StatusStopped},
	StatusStopped:  {StatusApplying, StatusRemoving},
	StatusRemoving: {StatusRemoved},
	StatusFailed:   {StatusApplying, StatusRemoving},
	StatusRemoved:  {}, // Terminal state
}

// ValidateTransition checks if a status transition is valid.
func ValidateTransition(from, to StackStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// =============================================================================
// Slug Generation
// =============================================================================

// GenerateStackSlug derives a URL-safe slug from a stack name, with a short
// random suffix so two stacks with the same name stay distinguishable.
func GenerateStackSlug(name string) string {
	suffix := make([]byte, 3)
	rand.Read(suffix)
	return fmt.Sprintf("%s-%s", Slugify(name), hex.EncodeToString(suffix))
}
