package plan

import (
	"time"

	"github.com/artpar/stackd/internal/core/stack"
)

// =============================================================================
// Container Plan Building Functions
// =============================================================================

// BuildContainerPlan builds a ContainerPlan from a stack service and apply
// parameters.
//
// This is a pure function that transforms service definitions and stack
// parameters into a container plan the shell can execute via the Docker API.
//
// The function:
//   - Generates the container name using ContainerName()
//   - Copies image, command, and entrypoint from the service
//   - Merges and substitutes environment variables
//   - Prefixes named volumes with the stack ID
//   - Parses health check durations
//   - Maps restart policy to Docker format
//   - Copies and merges labels, including the config hash label
func BuildContainerPlan(params BuildContainerPlanParams) ContainerPlan {
	svc := params.Service

	p := ContainerPlan{
		Name:        ContainerName(params.StackID, params.ServiceName),
		ServiceName: params.ServiceName,
		Image:       svc.Image,
		Command:     svc.Command,
		Entrypoint:  svc.Entrypoint,
		Env:         make(map[string]string),
		Labels: map[string]string{
			LabelManaged: "true",
			LabelStack:   params.StackID,
			LabelService: params.ServiceName,
		},
		Networks:  []string{params.NetworkName},
		DependsOn: svc.DependsOn,
	}

	// Merge environment lowest precedence first: env_file contents in
	// declaration order (a later file overrides an earlier one), then the
	// document's own environment block. File values are literal; only
	// document values get variable substitution.
	for _, path := range svc.EnvFiles {
		for k, v := range params.EnvFiles[path] {
			p.Env[k] = v
		}
	}
	for k, v := range svc.Environment {
		p.Env[k] = SubstituteVariables(v, params.Variables)
	}

	for _, port := range svc.Ports {
		p.Ports = append(p.Ports, PortPlan{
			ContainerPort: int(port.Target),
			HostPort:      int(port.Published),
			Protocol:      port.Protocol,
			HostIP:        port.HostIP,
		})
	}

	for _, v := range svc.Volumes {
		source := v.Source
		// Replace named volume with stack-prefixed name
		if v.Type == stack.VolumeMountTypeVolume {
			source = VolumeName(params.StackID, v.Source)
		}
		p.Volumes = append(p.Volumes, VolumePlan{
			Source:   source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	if svc.HealthCheck != nil {
		p.HealthCheck = &HealthCheckPlan{
			Test:    svc.HealthCheck.Test,
			Retries: svc.HealthCheck.Retries,
		}
		if svc.HealthCheck.Interval != "" {
			if d, err := time.ParseDuration(svc.HealthCheck.Interval); err == nil {
				p.HealthCheck.Interval = d
			}
		}
		if svc.HealthCheck.Timeout != "" {
			if d, err := time.ParseDuration(svc.HealthCheck.Timeout); err == nil {
				p.HealthCheck.Timeout = d
			}
		}
		if svc.HealthCheck.StartPeriod != "" {
			if d, err := time.ParseDuration(svc.HealthCheck.StartPeriod); err == nil {
				p.HealthCheck.StartPeriod = d
			}
		}
	}

	if svc.Resources.CPULimit > 0 {
		p.Resources.CPULimit = svc.Resources.CPULimit
	}
	if svc.Resources.MemoryLimit > 0 {
		p.Resources.MemoryLimit = svc.Resources.MemoryLimit
	}

	p.RestartPolicy = mapRestartPolicy(svc.Restart)

	// Copy service labels
	for k, v := range svc.Labels {
		p.Labels[k] = v
	}

	// The hash covers everything above; it must be the last label set.
	p.Labels[LabelConfigHash] = ConfigHash(p)

	return p
}

// mapRestartPolicy maps a stack restart policy to the Docker policy name.
func mapRestartPolicy(policy stack.RestartPolicy) RestartPolicyPlan {
	switch policy {
	case stack.RestartAlways:
		return RestartPolicyPlan{Name: "always"}
	case stack.RestartOnFailure:
		return RestartPolicyPlan{Name: "on-failure"}
	case stack.RestartUnlessStopped:
		return RestartPolicyPlan{Name: "unless-stopped"}
	default:
		return RestartPolicyPlan{Name: "no"}
	}
}
