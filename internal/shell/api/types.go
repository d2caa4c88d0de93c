package api

import "time"

// =============================================================================
// Request Types
// =============================================================================

// CreateStackRequest is the request body for registering a stack.
type CreateStackRequest struct {
	Name      string            `json:"name"`
	Source    string            `json:"source"`
	Variables map[string]string `json:"variables,omitempty"`
	// EnvFiles carries resolved env_file contents keyed by the path as it
	// appears in the document; clients resolve the files because they live
	// next to the document, not on the server.
	EnvFiles map[string]map[string]string `json:"env_files,omitempty"`
	Hostname string                       `json:"hostname,omitempty"`
}

// UpdateStackRequest is the request body for updating a stack document.
// A changed document takes effect on the next apply.
type UpdateStackRequest struct {
	Source    string                       `json:"source,omitempty"`
	Variables map[string]string            `json:"variables,omitempty"`
	EnvFiles  map[string]map[string]string `json:"env_files,omitempty"`
	Hostname  *string                      `json:"hostname,omitempty"`
}

// ValidateRequest is the request body for validating a stack document.
type ValidateRequest struct {
	Source string `json:"source"`
}

// =============================================================================
// Response Types
// =============================================================================

// StackResponse is the response for stack operations.
type StackResponse struct {
	ID           string                       `json:"id"`
	Name         string                       `json:"name"`
	Slug         string                       `json:"slug"`
	Source       string                       `json:"source"`
	Variables    map[string]string            `json:"variables"`
	EnvFiles     map[string]map[string]string `json:"env_files,omitempty"`
	Hostname     string                       `json:"hostname,omitempty"`
	EdgePort     int                          `json:"edge_port,omitempty"`
	Status       string                       `json:"status"`
	Containers   []ContainerResponse          `json:"containers"`
	Resources    ResourcesResponse            `json:"resources"`
	ErrorMessage string                       `json:"error_message,omitempty"`
	CreatedAt    time.Time                    `json:"created_at"`
	UpdatedAt    time.Time                    `json:"updated_at"`
	AppliedAt    *time.Time                   `json:"applied_at,omitempty"`
	StoppedAt    *time.Time                   `json:"stopped_at,omitempty"`
}

// ContainerResponse represents a container in a stack response.
type ContainerResponse struct {
	ServiceName string `json:"service_name"`
	ContainerID string `json:"container_id"`
	Image       string `json:"image"`
	Status      string `json:"status"`
}

// ResourcesResponse represents aggregate resource requirements.
type ResourcesResponse struct {
	CPUCores float64 `json:"cpu_cores"`
	MemoryMB int64   `json:"memory_mb"`
	DiskMB   int64   `json:"disk_mb"`
}

// ListStacksResponse is the response for listing stacks.
type ListStacksResponse struct {
	Stacks []StackResponse `json:"stacks"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// StackStatusResponse is the response for a live status query.
type StackStatusResponse struct {
	Status     string                    `json:"status"`
	Readiness  string                    `json:"readiness"`
	Containers []ContainerStatusResponse `json:"containers"`
}

// ContainerStatusResponse is the live readiness of one container.
type ContainerStatusResponse struct {
	ServiceName string `json:"service_name"`
	ContainerID string `json:"container_id"`
	Status      string `json:"status"`
	Readiness   string `json:"readiness"`
	Restarts    int    `json:"restarts"`
}

// EventResponse represents an apply-history event.
type EventResponse struct {
	ID        string    `json:"id"`
	StackID   string    `json:"stack_id"`
	Type      string    `json:"type"`
	Service   string    `json:"service,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ListEventsResponse is the response for listing apply-history events.
type ListEventsResponse struct {
	Events []EventResponse `json:"events"`
	Total  int             `json:"total"`
}

// ValidateResponse is the response for document validation.
type ValidateResponse struct {
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors,omitempty"`
	Services  []string `json:"services,omitempty"`
	Variables []string `json:"variables,omitempty"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
