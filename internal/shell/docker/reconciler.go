package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/artpar/stackd/internal/core/domain"
	"github.com/artpar/stackd/internal/core/plan"
	"github.com/artpar/stackd/internal/core/readiness"
	"github.com/artpar/stackd/internal/core/stack"
)

// =============================================================================
// Reconciler - Converges Stacks Toward Their Documents
// =============================================================================

// Reconciler applies stack documents against the Docker host. Apply is
// idempotent: it diffs desired container plans against what is currently
// running and only touches containers whose configuration diverged.
type Reconciler struct {
	docker      Client
	logger      *slog.Logger
	gateTimeout time.Duration
	gatePoll    time.Duration
}

// NewReconciler creates a new reconciler.
func NewReconciler(docker Client, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		docker:      docker,
		logger:      logger,
		gateTimeout: 2 * time.Minute,
		gatePoll:    2 * time.Second,
	}
}

// =============================================================================
// Apply
// =============================================================================

// ApplyResult reports what an apply did: the converged container set and
// the actions that were executed to get there.
type ApplyResult struct {
	Containers []domain.ContainerInfo
	Actions    []plan.Action
}

// Apply converges the Docker host toward the stack's document. It ensures
// the stack network and volumes exist, pulls missing images, then executes
// the plan diff: orphaned containers are removed, diverged containers are
// recreated, and missing containers are created in dependency order.
func (r *Reconciler) Apply(ctx context.Context, stk *domain.Stack, spec *stack.StackSpec) (*ApplyResult, error) {
	r.logger.Info("applying stack",
		"stack_id", stk.ID,
		"stack_name", stk.Name,
		"services", len(spec.Services),
	)

	// 1. Ensure the stack network exists
	networkName := plan.NetworkName(stk.ID)
	if err := r.ensureNetwork(stk.ID, networkName); err != nil {
		return nil, fmt.Errorf("failed to ensure network: %w", err)
	}

	// 2. Ensure declared volumes exist
	if err := r.ensureVolumes(stk.ID, spec.Volumes); err != nil {
		return nil, fmt.Errorf("failed to ensure volumes: %w", err)
	}

	// 3. Build desired container plans in dependency order
	ordered := plan.TopologicalSort(spec.Services)
	desired := make([]plan.ContainerPlan, 0, len(ordered))
	for _, svc := range ordered {
		desired = append(desired, plan.BuildContainerPlan(plan.BuildContainerPlanParams{
			StackID:     stk.ID,
			ServiceName: svc.Name,
			Service:     svc,
			Variables:   stk.Variables,
			EnvFiles:    stk.EnvFiles,
			NetworkName: networkName,
			Volumes:     spec.Volumes,
		}))
	}

	// 4. Observe what is currently running for this stack
	observed, err := r.observeContainers(stk.ID)
	if err != nil {
		return nil, err
	}

	// 5. Diff and execute
	actions := plan.Diff(desired, observed)
	if plan.Converged(actions) {
		r.logger.Info("stack already converged", "stack_id", stk.ID)
	}

	// Removals and recreate-teardowns first so names and ports free up
	for _, action := range actions {
		switch action.Kind {
		case plan.ActionRemove:
			r.logger.Info("removing orphaned container",
				"stack_id", stk.ID,
				"service", action.ServiceName,
				"container_id", action.ContainerID,
			)
			if err := r.removeContainer(action.ContainerID); err != nil {
				return nil, err
			}
		case plan.ActionRecreate:
			r.logger.Info("recreating diverged container",
				"stack_id", stk.ID,
				"service", action.ServiceName,
				"container_id", action.ContainerID,
			)
			if err := r.removeContainer(action.ContainerID); err != nil {
				return nil, err
			}
		}
	}

	// Creates and keeps in dependency order
	var containers []domain.ContainerInfo
	for _, action := range actions {
		switch action.Kind {
		case plan.ActionCreate, plan.ActionRecreate:
			info, err := r.startPlanned(ctx, stk.ID, spec, action.Plan)
			if err != nil {
				return nil, err
			}
			containers = append(containers, *info)

		case plan.ActionKeep:
			// Matching container. Start it if it stopped.
			inspect, err := r.docker.InspectContainer(action.ContainerID)
			if err != nil {
				return nil, err
			}
			if inspect.State != "running" {
				if err := r.docker.StartContainer(action.ContainerID); err != nil {
					return nil, fmt.Errorf("failed to start container for %s: %w", action.ServiceName, err)
				}
			}
			containers = append(containers, containerInfoFromInspect(action.ServiceName, inspect))
		}
	}

	r.logger.Info("stack applied",
		"stack_id", stk.ID,
		"containers", len(containers),
	)

	return &ApplyResult{Containers: containers, Actions: actions}, nil
}

// startPlanned pulls the image, waits for the service's dependency gates,
// then creates and starts the planned container.
func (r *Reconciler) startPlanned(ctx context.Context, stackID string, spec *stack.StackSpec, p *plan.ContainerPlan) (*domain.ContainerInfo, error) {
	if err := r.ensureImage(p.Image); err != nil {
		return nil, err
	}

	if err := r.waitForGates(ctx, stackID, spec, p.DependsOn); err != nil {
		return nil, fmt.Errorf("dependency gate for %s: %w", p.ServiceName, err)
	}

	containerSpec := containerSpecFromPlan(p)

	containerID, err := r.docker.CreateContainer(containerSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to create container for %s: %w", p.ServiceName, err)
	}

	if err := r.docker.StartContainer(containerID); err != nil {
		return nil, fmt.Errorf("failed to start container for %s: %w", p.ServiceName, err)
	}

	r.logger.Info("container started",
		"stack_id", stackID,
		"service", p.ServiceName,
		"container_id", containerID,
	)

	inspect, err := r.docker.InspectContainer(containerID)
	if err != nil {
		return nil, err
	}

	info := containerInfoFromInspect(p.ServiceName, inspect)
	return &info, nil
}

// waitForGates blocks until every dependency of a service is ready: running
// and, when the dependency declares a healthcheck, reporting healthy. A
// dependency that never becomes ready within the timeout fails the apply
// with ErrGateTimeout.
func (r *Reconciler) waitForGates(ctx context.Context, stackID string, spec *stack.StackSpec, dependsOn []string) error {
	if len(dependsOn) == 0 {
		return nil
	}

	deadline := time.Now().Add(r.gateTimeout)
	ticker := time.NewTicker(r.gatePoll)
	defer ticker.Stop()

	pending := make(map[string]bool, len(dependsOn))
	for _, dep := range dependsOn {
		pending[dep] = true
	}

	for len(pending) > 0 {
		for depName := range pending {
			dep := spec.Service(depName)
			if dep == nil {
				// Unknown dependencies are rejected at parse time.
				delete(pending, depName)
				continue
			}

			inspect, err := r.docker.InspectContainer(plan.ContainerName(stackID, depName))
			if err != nil {
				continue
			}
			if readiness.GateSatisfied(*dep, inspect.State, inspect.Health) {
				r.logger.Debug("dependency gate satisfied",
					"stack_id", stackID,
					"dependency", depName,
				)
				delete(pending, depName)
			}
		}

		if len(pending) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			return NewDockerError("waitForGates", "container", strings.Join(names, ","),
				fmt.Sprintf("dependencies not ready after %s", r.gateTimeout), ErrGateTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return nil
}

// =============================================================================
// Stop
// =============================================================================

// Stop stops all containers for a stack in reverse dependency order.
// Containers, the network, and volumes are left in place so the stack can
// be re-applied later.
func (r *Reconciler) Stop(ctx context.Context, stk *domain.Stack, spec *stack.StackSpec) error {
	r.logger.Info("stopping stack", "stack_id", stk.ID)

	timeout := 30 * time.Second

	for _, svc := range plan.ReverseOrder(spec.Services) {
		name := plan.ContainerName(stk.ID, svc.Name)
		err := r.docker.StopContainer(name, &timeout)
		if err != nil && !IsNotFound(err) && !IsNotRunning(err) {
			return fmt.Errorf("failed to stop %s: %w", svc.Name, err)
		}
	}

	r.logger.Info("stack stopped", "stack_id", stk.ID)
	return nil
}

// =============================================================================
// Destroy
// =============================================================================

// Destroy removes everything the stack materialized: containers, the stack
// network, and labeled volumes. All resources are found by label so that
// containers from older documents are cleaned up too.
func (r *Reconciler) Destroy(ctx context.Context, stackID string) error {
	r.logger.Info("destroying stack", "stack_id", stackID)

	// 1. Remove all containers labeled for this stack
	containers, err := r.docker.ListContainers(ListOptions{
		All:     true,
		Filters: map[string]string{"label": fmt.Sprintf("%s=%s", plan.LabelStack, stackID)},
	})
	if err != nil {
		return err
	}

	for _, c := range containers {
		err := r.docker.RemoveContainer(c.ID, RemoveOptions{Force: true})
		if err != nil && !IsNotFound(err) {
			return fmt.Errorf("failed to remove container %s: %w", c.Name, err)
		}
	}

	// 2. Remove the stack network
	err = r.docker.RemoveNetwork(plan.NetworkName(stackID))
	if err != nil && !IsNotFound(err) {
		r.logger.Warn("failed to remove network",
			"stack_id", stackID,
			"error", err,
		)
	}

	// 3. Remove labeled volumes
	volumes, err := r.docker.ListVolumes(ListOptions{
		Filters: map[string]string{"label": fmt.Sprintf("%s=%s", plan.LabelStack, stackID)},
	})
	if err != nil {
		return err
	}

	for _, v := range volumes {
		err := r.docker.RemoveVolume(v.Name, true)
		if err != nil && !IsNotFound(err) {
			r.logger.Warn("failed to remove volume",
				"stack_id", stackID,
				"volume", v.Name,
				"error", err,
			)
		}
	}

	r.logger.Info("stack destroyed", "stack_id", stackID)
	return nil
}

// =============================================================================
// Status
// =============================================================================

// StackStatus is the observed state of a stack's containers.
type StackStatus struct {
	Containers []domain.ContainerInfo
	Readiness  readiness.Level
	Verdicts   []readiness.ContainerReadiness
}

// Status inspects every container belonging to the stack and aggregates
// per-container readiness into a stack-level verdict.
func (r *Reconciler) Status(ctx context.Context, stackID string) (*StackStatus, error) {
	containers, err := r.docker.ListContainers(ListOptions{
		All:     true,
		Filters: map[string]string{"label": fmt.Sprintf("%s=%s", plan.LabelStack, stackID)},
	})
	if err != nil {
		return nil, err
	}

	status := &StackStatus{}

	for _, c := range containers {
		serviceName := c.Labels[plan.LabelService]

		// List gives a coarse state; inspect for health and restarts.
		inspect, err := r.docker.InspectContainer(c.ID)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}

		status.Containers = append(status.Containers, containerInfoFromInspect(serviceName, inspect))
		status.Verdicts = append(status.Verdicts, readiness.ContainerReadiness{
			ServiceName: serviceName,
			Level:       readiness.ForContainer(inspect.State, inspect.Health, inspect.Restarts),
			Restarts:    inspect.Restarts,
		})
	}

	status.Readiness = readiness.Aggregate(status.Verdicts)
	return status, nil
}

// Logs returns a log reader for one service of a stack.
func (r *Reconciler) Logs(ctx context.Context, stackID, serviceName string, opts LogOptions) (io.ReadCloser, error) {
	return r.docker.ContainerLogs(plan.ContainerName(stackID, serviceName), opts)
}

// =============================================================================
// Helpers
// =============================================================================

// ensureNetwork creates the stack network if it does not already exist.
func (r *Reconciler) ensureNetwork(stackID, networkName string) error {
	_, err := r.docker.CreateNetwork(NetworkSpec{
		Name:   networkName,
		Driver: "bridge",
		Labels: map[string]string{
			plan.LabelManaged: "true",
			plan.LabelStack:   stackID,
		},
	})
	if err != nil && !IsAlreadyExists(err) {
		return err
	}
	return nil
}

// ensureVolumes creates the stack's declared volumes. VolumeCreate is
// idempotent in Docker, so re-applies are safe.
func (r *Reconciler) ensureVolumes(stackID string, volumes []stack.Volume) error {
	for _, v := range volumes {
		_, err := r.docker.CreateVolume(VolumeSpec{
			Name: plan.VolumeName(stackID, v.Name),
			Labels: map[string]string{
				plan.LabelManaged: "true",
				plan.LabelStack:   stackID,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create volume %s: %w", v.Name, err)
		}
	}
	return nil
}

// ensureImage pulls an image unless it is already present locally.
func (r *Reconciler) ensureImage(imageName string) error {
	exists, err := r.docker.ImageExists(imageName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	r.logger.Info("pulling image", "image", imageName)
	return r.docker.PullImage(imageName, PullOptions{})
}

// observeContainers lists the stack's labeled containers and projects them
// into the differ's observed form.
func (r *Reconciler) observeContainers(stackID string) ([]plan.ObservedContainer, error) {
	containers, err := r.docker.ListContainers(ListOptions{
		All:     true,
		Filters: map[string]string{"label": fmt.Sprintf("%s=%s", plan.LabelStack, stackID)},
	})
	if err != nil {
		return nil, err
	}

	observed := make([]plan.ObservedContainer, 0, len(containers))
	for _, c := range containers {
		observed = append(observed, plan.ObservedContainer{
			ID:          c.ID,
			ServiceName: c.Labels[plan.LabelService],
			ConfigHash:  c.Labels[plan.LabelConfigHash],
			Running:     c.State == "running",
		})
	}
	return observed, nil
}

// removeContainer force-removes a container, tolerating not-found.
func (r *Reconciler) removeContainer(containerID string) error {
	err := r.docker.RemoveContainer(containerID, RemoveOptions{Force: true})
	if err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}

// containerSpecFromPlan maps a pure container plan onto the Docker spec.
func containerSpecFromPlan(p *plan.ContainerPlan) ContainerSpec {
	spec := ContainerSpec{
		Name:       p.Name,
		Image:      p.Image,
		Command:    p.Command,
		Entrypoint: p.Entrypoint,
		Env:        p.Env,
		Labels:     p.Labels,
		Networks:   p.Networks,
		RestartPolicy: RestartPolicy{
			Name:              p.RestartPolicy.Name,
			MaximumRetryCount: p.RestartPolicy.MaximumRetryCount,
		},
		Resources: ResourceLimits{
			CPULimit:    p.Resources.CPULimit,
			MemoryLimit: p.Resources.MemoryLimit,
		},
	}

	// Alias each network endpoint with the service name so services reach
	// each other by the names used in the document.
	spec.NetworkAliases = make(map[string][]string, len(p.Networks))
	for _, n := range p.Networks {
		spec.NetworkAliases[n] = []string{p.ServiceName}
	}

	for _, port := range p.Ports {
		spec.Ports = append(spec.Ports, PortBinding{
			ContainerPort: port.ContainerPort,
			HostPort:      port.HostPort,
			Protocol:      port.Protocol,
			HostIP:        port.HostIP,
		})
	}

	for _, v := range p.Volumes {
		spec.Volumes = append(spec.Volumes, VolumeMount{
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	if p.HealthCheck != nil {
		spec.HealthCheck = &HealthCheck{
			Test:        p.HealthCheck.Test,
			Interval:    p.HealthCheck.Interval,
			Timeout:     p.HealthCheck.Timeout,
			Retries:     p.HealthCheck.Retries,
			StartPeriod: p.HealthCheck.StartPeriod,
		}
	}

	return spec
}

// containerInfoFromInspect projects inspect output into the domain form.
func containerInfoFromInspect(serviceName string, inspect *ContainerInfo) domain.ContainerInfo {
	info := domain.ContainerInfo{
		ID:          inspect.ID,
		ServiceName: serviceName,
		Image:       inspect.Image,
		Status:      inspect.State,
	}
	for _, p := range inspect.Ports {
		info.Ports = append(info.Ports, domain.PortMapping{
			ContainerPort: p.ContainerPort,
			HostPort:      p.HostPort,
			Protocol:      p.Protocol,
		})
	}
	return info
}
