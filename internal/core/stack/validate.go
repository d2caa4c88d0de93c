package stack

import "fmt"

// =============================================================================
// Referential Validation
// =============================================================================

// validRestartPolicies is the accepted restart policy vocabulary.
var validRestartPolicies = map[RestartPolicy]bool{
	"":                   true, // unset, defaults to "no" at plan time
	RestartNo:            true,
	RestartAlways:        true,
	RestartOnFailure:     true,
	RestartUnlessStopped: true,
}

// Validate performs semantic validation on a StackSpec and returns all
// findings. The checks are referential: service names must be unique,
// every depends_on entry must name a declared service and the dependency
// graph must be acyclic, every named volume mount must resolve to a
// top-level volume declaration, and port numbers must be in range.
//
// A nil result means the spec is internally consistent.
func Validate(spec *StackSpec) []error {
	var errs []error

	errs = append(errs, validateServiceNames(spec)...)
	errs = append(errs, validateDependencies(spec)...)
	errs = append(errs, validateVolumeRefs(spec)...)
	errs = append(errs, validateNetworkRefs(spec)...)
	errs = append(errs, validatePorts(spec)...)
	errs = append(errs, validateRestartPolicies(spec)...)
	errs = append(errs, validateResources(spec)...)

	return errs
}

// validateServiceNames checks that service names are unique within the document.
func validateServiceNames(spec *StackSpec) []error {
	var errs []error
	seen := make(map[string]bool, len(spec.Services))

	for _, svc := range spec.Services {
		if seen[svc.Name] {
			errs = append(errs, NewParseError(
				"services."+svc.Name,
				fmt.Sprintf("service %q is declared more than once", svc.Name),
				ErrDuplicateService,
			))
		}
		seen[svc.Name] = true
	}

	return errs
}

// validateDependencies checks that every depends_on entry names a declared
// service and that the dependency graph has no cycles.
func validateDependencies(spec *StackSpec) []error {
	var errs []error

	declared := make(map[string]bool, len(spec.Services))
	for _, svc := range spec.Services {
		declared[svc.Name] = true
	}

	for _, svc := range spec.Services {
		for _, dep := range svc.DependsOn {
			if !declared[dep] {
				errs = append(errs, NewParseError(
					"services."+svc.Name+".depends_on",
					fmt.Sprintf("service %q depends on undeclared service %q", svc.Name, dep),
					ErrUnknownDependency,
				))
			}
		}
	}

	if cycle := findDependencyCycle(spec.Services); cycle != "" {
		errs = append(errs, NewParseError(
			"services."+cycle+".depends_on",
			fmt.Sprintf("dependency cycle through service %q", cycle),
			ErrDependencyCycle,
		))
	}

	return errs
}

// findDependencyCycle runs DFS over the dependency graph and returns the
// name of a service on a cycle, or "" if the graph is acyclic.
func findDependencyCycle(services []Service) string {
	deps := make(map[string][]string, len(services))
	for _, svc := range services {
		deps[svc.Name] = svc.DependsOn
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var hasCycle func(node string) bool
	hasCycle = func(node string) bool {
		visited[node] = true
		recStack[node] = true

		for _, dep := range deps[node] {
			if dep == node {
				return true
			}
			if !visited[dep] {
				if hasCycle(dep) {
					return true
				}
			} else if recStack[dep] {
				return true
			}
		}

		recStack[node] = false
		return false
	}

	for _, svc := range services {
		if !visited[svc.Name] {
			if hasCycle(svc.Name) {
				return svc.Name
			}
		}
	}

	return ""
}

// validateVolumeRefs checks that every named volume mount resolves to a
// top-level volume declaration. Bind and tmpfs mounts are exempt.
func validateVolumeRefs(spec *StackSpec) []error {
	var errs []error

	for _, svc := range spec.Services {
		for _, mount := range svc.Volumes {
			if mount.Type != VolumeMountTypeVolume {
				continue
			}
			if !spec.HasVolume(mount.Source) {
				errs = append(errs, NewParseError(
					"services."+svc.Name+".volumes",
					fmt.Sprintf("mount of %q targets an undeclared volume", mount.Source),
					ErrUndeclaredVolume,
				))
			}
		}
	}

	return errs
}

// validateNetworkRefs checks that service network attachments resolve to
// declared networks. The implicit default network is always available.
func validateNetworkRefs(spec *StackSpec) []error {
	var errs []error

	declared := make(map[string]bool, len(spec.Networks))
	for _, net := range spec.Networks {
		declared[net.Name] = true
	}

	for _, svc := range spec.Services {
		for _, net := range svc.Networks {
			if net == "default" {
				continue
			}
			if !declared[net] {
				errs = append(errs, NewParseError(
					"services."+svc.Name+".networks",
					fmt.Sprintf("service %q attaches to undeclared network %q", svc.Name, net),
					ErrUnknownNetwork,
				))
			}
		}
	}

	return errs
}

// validatePorts validates all port configurations.
func validatePorts(spec *StackSpec) []error {
	var errs []error

	for _, svc := range spec.Services {
		for i, port := range svc.Ports {
			if port.Target == 0 {
				errs = append(errs, NewParseError(
					fmt.Sprintf("services.%s.ports[%d]", svc.Name, i),
					"target port cannot be 0",
					ErrInvalidPort,
				))
			}
			if port.Target > 65535 {
				errs = append(errs, NewParseError(
					fmt.Sprintf("services.%s.ports[%d]", svc.Name, i),
					"target port must be <= 65535",
					ErrInvalidPort,
				))
			}
			if port.Published > 65535 {
				errs = append(errs, NewParseError(
					fmt.Sprintf("services.%s.ports[%d]", svc.Name, i),
					"published port must be <= 65535",
					ErrInvalidPort,
				))
			}
		}
	}

	return errs
}

// validateRestartPolicies checks the restart policy vocabulary.
func validateRestartPolicies(spec *StackSpec) []error {
	var errs []error

	for _, svc := range spec.Services {
		if !validRestartPolicies[svc.Restart] {
			errs = append(errs, NewParseError(
				"services."+svc.Name+".restart",
				fmt.Sprintf("unknown restart policy %q", svc.Restart),
				ErrInvalidRestart,
			))
		}
	}

	return errs
}

// validateResources rejects negative resource limits.
func validateResources(spec *StackSpec) []error {
	var errs []error

	for _, svc := range spec.Services {
		if svc.Resources.CPULimit < 0 || svc.Resources.CPUReservation < 0 {
			errs = append(errs, NewParseError(
				"services."+svc.Name+".resources",
				"CPU limit cannot be negative",
				ErrInvalidCPU,
			))
		}
		if svc.Resources.MemoryLimit < 0 || svc.Resources.MemoryReservation < 0 {
			errs = append(errs, NewParseError(
				"services."+svc.Name+".resources",
				"memory limit cannot be negative",
				ErrInvalidMemory,
			))
		}
	}

	return errs
}
