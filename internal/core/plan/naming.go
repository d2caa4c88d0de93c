package plan

import "fmt"

// =============================================================================
// Resource Naming Functions
// =============================================================================

// NetworkName generates a network name for a stack.
// Pattern: stackd_{stackID}
//
// Example:
//
//	NetworkName("abc123") // returns "stackd_abc123"
func NetworkName(stackID string) string {
	return fmt.Sprintf("stackd_%s", stackID)
}

// VolumeName generates a volume name for a stack.
// Pattern: stackd_{stackID}_{volumeName}
//
// Example:
//
//	VolumeName("abc123", "pgdata") // returns "stackd_abc123_pgdata"
func VolumeName(stackID, volumeName string) string {
	return fmt.Sprintf("stackd_%s_%s", stackID, volumeName)
}

// ContainerName generates a container name for a service in a stack.
// Pattern: stackd_{stackID}_{serviceName}
//
// Example:
//
//	ContainerName("abc123", "api") // returns "stackd_abc123_api"
func ContainerName(stackID, serviceName string) string {
	return fmt.Sprintf("stackd_%s_%s", stackID, serviceName)
}
