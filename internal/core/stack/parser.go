package stack

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/artpar/stackd/internal/core/domain"
	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Resource Defaults
// =============================================================================

const (
	// DefaultCPUPerService is the default CPU cores per service.
	DefaultCPUPerService = 0.5
	// DefaultMemoryPerService is the default memory per service in bytes.
	DefaultMemoryPerService = 256 * 1024 * 1024 // 256 MB
	// DefaultDiskPerVolume is the default disk per volume in MB.
	DefaultDiskPerVolume = 1024 // 1024 MB
)

// =============================================================================
// Parser Functions
// =============================================================================

// Parse parses a declarative stack document (compose YAML) into a StackSpec.
// This is a pure function - no I/O, no side effects. env_file entries are
// recorded on the service but never read from disk here; resolving them is
// the caller's job.
func Parse(yamlContent string) (*StackSpec, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyDocument
	}

	project, envFiles, err := loadStackDocument(yamlContent)
	if err != nil {
		return nil, err
	}

	if err := checkUnsupportedFeatures(project); err != nil {
		return nil, err
	}

	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}

	spec := &StackSpec{
		Services: make([]Service, 0, len(project.Services)),
		Networks: make([]Network, 0, len(project.Networks)),
		Volumes:  make([]Volume, 0, len(project.Volumes)),
	}

	for _, svc := range project.Services {
		converted, err := convertService(svc)
		if err != nil {
			return nil, err
		}
		converted.EnvFiles = envFiles[svc.Name]
		spec.Services = append(spec.Services, converted)
	}

	for name, net := range project.Networks {
		spec.Networks = append(spec.Networks, convertNetwork(name, net))
	}

	for name, vol := range project.Volumes {
		spec.Volumes = append(spec.Volumes, convertVolume(name, vol))
	}

	// Referential integrity: every depends_on target and volume mount
	// source must resolve, and the dependency graph must be acyclic.
	if errs := Validate(spec); len(errs) > 0 {
		return nil, errs[0]
	}

	return spec, nil
}

// loadStackDocument loads a document using compose-go. env_file entries are
// stripped before loading (the loader would try to read them from disk) and
// returned per service name.
func loadStackDocument(yamlContent string) (*types.Project, map[string][]string, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil {
		return nil, nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	envFiles := extractEnvFiles(dict)

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(yamlContent),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("stackd-load", false)
		opts.SkipValidation = false
		// Placeholders like ${POSTGRES_PASSWORD} are substituted from the
		// stack's variables at plan time, so they must survive loading.
		opts.SkipInterpolation = true
		// In-memory document: no paths to resolve, no external files to follow
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "dependency cycle detected") {
			return nil, nil, NewParseError("", "dependency cycle detected", ErrDependencyCycle)
		}
		if strings.Contains(errStr, "image") && strings.Contains(errStr, "build") {
			return nil, nil, NewParseError("", "service must have image or build", ErrServiceNoImage)
		}
		return nil, nil, NewParseError("", errStr, ErrInvalidYAML)
	}

	return project, envFiles, nil
}

// extractEnvFiles removes env_file entries from the raw document tree and
// returns them keyed by service name. Accepts both the scalar and list forms.
func extractEnvFiles(dict map[string]interface{}) map[string][]string {
	result := make(map[string][]string)

	services, ok := dict["services"].(map[string]interface{})
	if !ok {
		return result
	}

	for name, raw := range services {
		svc, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		entry, found := svc["env_file"]
		if !found {
			continue
		}
		switch v := entry.(type) {
		case string:
			result[name] = []string{v}
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					result[name] = append(result[name], s)
				}
			}
		}
		delete(svc, "env_file")
	}

	return result
}

// checkUnsupportedFeatures rejects document features stackd does not realize.
func checkUnsupportedFeatures(project *types.Project) error {
	if len(project.Secrets) > 0 {
		return NewParseError("secrets", "secrets are not supported", ErrUnsupportedFeature)
	}
	if len(project.Configs) > 0 {
		return NewParseError("configs", "configs are not supported", ErrUnsupportedFeature)
	}
	for _, svc := range project.Services {
		if svc.Extends != nil && svc.Extends.File != "" {
			return NewParseError("services."+svc.Name+".extends", "extends is not supported", ErrUnsupportedFeature)
		}
	}
	return nil
}

// convertService converts a compose-go service to stackd's Service type.
func convertService(svc types.ServiceConfig) (Service, error) {
	service := Service{
		Name:        svc.Name,
		Image:       svc.Image,
		Command:     svc.Command,
		Entrypoint:  svc.Entrypoint,
		Environment: make(map[string]string),
		Labels:      make(map[string]string),
		Networks:    make([]string, 0),
		DependsOn:   make([]string, 0),
	}

	if svc.Build != nil {
		service.Build = &BuildConfig{
			Context:    svc.Build.Context,
			Dockerfile: svc.Build.Dockerfile,
		}
		if len(svc.Build.Args) > 0 {
			service.Build.Args = make(map[string]string, len(svc.Build.Args))
			for k, v := range svc.Build.Args {
				if v != nil {
					service.Build.Args[k] = *v
				}
			}
		}
	}

	if service.Image == "" && service.Build == nil {
		return Service{}, NewParseError("services."+svc.Name, "service must have image or build", ErrServiceNoImage)
	}

	for _, p := range svc.Ports {
		var published uint32
		if p.Published != "" {
			pub, err := strconv.ParseUint(p.Published, 10, 32)
			if err == nil {
				published = uint32(pub)
			}
		}
		service.Ports = append(service.Ports, Port{
			Target:    p.Target,
			Published: published,
			Protocol:  p.Protocol,
			HostIP:    p.HostIP,
		})
	}

	for k, v := range svc.Environment {
		if v != nil {
			service.Environment[k] = *v
		}
	}

	for _, v := range svc.Volumes {
		mount := VolumeMount{
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		}
		switch v.Type {
		case "bind":
			mount.Type = VolumeMountTypeBind
		case "volume":
			mount.Type = VolumeMountTypeVolume
		case "tmpfs":
			mount.Type = VolumeMountTypeTmpfs
		default:
			// Infer type from source
			if strings.HasPrefix(v.Source, "./") || strings.HasPrefix(v.Source, "/") || strings.HasPrefix(v.Source, "~") {
				mount.Type = VolumeMountTypeBind
			} else {
				mount.Type = VolumeMountTypeVolume
			}
		}
		service.Volumes = append(service.Volumes, mount)
	}

	for net := range svc.Networks {
		service.Networks = append(service.Networks, net)
	}

	for dep := range svc.DependsOn {
		service.DependsOn = append(service.DependsOn, dep)
	}

	service.Restart = RestartPolicy(svc.Restart)

	for k, v := range svc.Labels {
		service.Labels[k] = v
	}

	if svc.HealthCheck != nil && !svc.HealthCheck.Disable {
		service.HealthCheck = &HealthCheck{
			Test: svc.HealthCheck.Test,
		}
		if svc.HealthCheck.Retries != nil {
			service.HealthCheck.Retries = int(*svc.HealthCheck.Retries)
		}
		if svc.HealthCheck.Interval != nil {
			service.HealthCheck.Interval = svc.HealthCheck.Interval.String()
		}
		if svc.HealthCheck.Timeout != nil {
			service.HealthCheck.Timeout = svc.HealthCheck.Timeout.String()
		}
		if svc.HealthCheck.StartPeriod != nil {
			service.HealthCheck.StartPeriod = svc.HealthCheck.StartPeriod.String()
		}
	}

	// Note: compose-go's NanoCPUs is misnamed - it's the CPU count as float32
	if svc.Deploy != nil && svc.Deploy.Resources.Limits != nil {
		limits := svc.Deploy.Resources.Limits
		service.Resources.CPULimit = float64(limits.NanoCPUs)
		service.Resources.MemoryLimit = int64(limits.MemoryBytes)
	}
	if svc.Deploy != nil && svc.Deploy.Resources.Reservations != nil {
		reservations := svc.Deploy.Resources.Reservations
		service.Resources.CPUReservation = float64(reservations.NanoCPUs)
		service.Resources.MemoryReservation = int64(reservations.MemoryBytes)
	}

	return service, nil
}

// convertNetwork converts a compose-go network to stackd's Network type.
func convertNetwork(name string, net types.NetworkConfig) Network {
	return Network{
		Name:     name,
		Driver:   net.Driver,
		External: bool(net.External),
		Internal: net.Internal,
		Labels:   net.Labels,
	}
}

// convertVolume converts a compose-go volume to stackd's Volume type.
func convertVolume(name string, vol types.VolumeConfig) Volume {
	return Volume{
		Name:     name,
		Driver:   vol.Driver,
		External: bool(vol.External),
		Labels:   vol.Labels,
	}
}

// =============================================================================
// Resource Calculation
// =============================================================================

// CalculateResources calculates total resource requirements from a spec.
// Uses defaults when resources are not explicitly specified.
func CalculateResources(spec *StackSpec) domain.Resources {
	var totalCPU float64
	var totalMemoryBytes int64
	var totalDiskMB int64

	for _, svc := range spec.Services {
		if svc.Resources.CPULimit > 0 {
			totalCPU += svc.Resources.CPULimit
		} else {
			totalCPU += DefaultCPUPerService
		}

		if svc.Resources.MemoryLimit > 0 {
			totalMemoryBytes += svc.Resources.MemoryLimit
		} else {
			totalMemoryBytes += DefaultMemoryPerService
		}
	}

	totalDiskMB = int64(len(spec.Volumes)) * DefaultDiskPerVolume

	return domain.Resources{
		CPUCores: totalCPU,
		MemoryMB: totalMemoryBytes / (1024 * 1024),
		DiskMB:   totalDiskMB,
	}
}

// =============================================================================
// Variable Extraction
// =============================================================================

// variablePlaceholderRegex matches ${VAR_NAME} or ${VAR_NAME:-default}
var variablePlaceholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-[^}]*)?\}`)

// ExtractVariables extracts environment variable placeholders (${VAR_NAME})
// from raw document content, before interpolation. Returns unique variable
// names without the ${} wrapper.
func ExtractVariables(yamlContent string) []string {
	seen := make(map[string]bool)
	var vars []string

	matches := variablePlaceholderRegex.FindAllStringSubmatch(yamlContent, -1)
	for _, match := range matches {
		if len(match) >= 2 {
			varName := match[1]
			if !seen[varName] {
				seen[varName] = true
				vars = append(vars, varName)
			}
		}
	}

	return vars
}
