// Package plan provides pure functions for stack materialization planning.
//
// This package contains the functional core logic for transforming stack
// documents into Docker execution plans. All functions are pure (no I/O,
// no side effects).
//
// # Functions
//
//   - Naming: Generate consistent resource names (NetworkName, VolumeName, ContainerName)
//   - Ordering: Sort services by dependencies (TopologicalSort)
//   - Variables: Substitute environment variable placeholders (SubstituteVariables)
//   - Container: Build container plans from stack services (BuildContainerPlan)
//   - Hash: Digest a container plan for change detection (ConfigHash)
//   - Diff: Decide create/keep/recreate/remove actions against observed
//     containers (Diff) so that re-applying an unchanged document is a no-op
//
// # Usage
//
// The imperative shell (internal/shell/docker) uses these pure functions
// to plan applies, then executes the plans via the Docker API.
//
//	networkName := plan.NetworkName(stackID)
//	ordered := plan.TopologicalSort(spec.Services)
//	p := plan.BuildContainerPlan(params)
//	actions := plan.Diff(desired, observed)
package plan
