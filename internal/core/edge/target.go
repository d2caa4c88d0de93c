package edge

import "fmt"

// Target represents the destination for a proxied request.
// This is a pure data type with no I/O.
type Target struct {
	// StackID is the stack this target belongs to
	StackID string

	// Port is the host port the stack's web service is bound to
	Port int

	// Status is the stack status (running, degraded, stopped, ...)
	Status string
}

// CanRoute returns true if the target can accept traffic.
// Only running or degraded stacks with a valid port can accept traffic.
func (t Target) CanRoute() bool {
	return (t.Status == "running" || t.Status == "degraded") && t.Port > 0
}

// Address returns the upstream address for the target.
func (t Target) Address() string {
	return fmt.Sprintf("127.0.0.1:%d", t.Port)
}
