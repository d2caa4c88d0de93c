package stack

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpec() *StackSpec {
	return &StackSpec{
		Services: []Service{
			{Name: "db", Image: "postgres:15", Volumes: []VolumeMount{
				{Type: VolumeMountTypeVolume, Source: "pgdata", Target: "/var/lib/postgresql/data"},
			}},
			{Name: "api", Image: "api:1.0", DependsOn: []string{"db"}, Ports: []Port{
				{Target: 8080, Published: 8080},
			}},
		},
		Volumes: []Volume{{Name: "pgdata"}},
	}
}

func TestValidate_ValidSpec(t *testing.T) {
	assert.Empty(t, Validate(validSpec()))
}

func TestValidate_DuplicateServiceName(t *testing.T) {
	spec := validSpec()
	spec.Services = append(spec.Services, Service{Name: "db", Image: "mysql:8"})

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrDuplicateService)
}

func TestValidate_UnknownDependency(t *testing.T) {
	spec := validSpec()
	spec.Services[1].DependsOn = []string{"db", "cache"}

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrUnknownDependency)
	assert.Contains(t, errs[0].Error(), "cache")
}

func TestValidate_DependencyCycle(t *testing.T) {
	spec := &StackSpec{
		Services: []Service{
			{Name: "a", Image: "a:1", DependsOn: []string{"b"}},
			{Name: "b", Image: "b:1", DependsOn: []string{"c"}},
			{Name: "c", Image: "c:1", DependsOn: []string{"a"}},
		},
	}

	errs := Validate(spec)
	require.NotEmpty(t, errs)

	found := false
	for _, err := range errs {
		if errors.Is(err, ErrDependencyCycle) {
			found = true
		}
	}
	assert.True(t, found, "expected a dependency cycle error")
}

func TestValidate_SelfDependency(t *testing.T) {
	spec := &StackSpec{
		Services: []Service{
			{Name: "a", Image: "a:1", DependsOn: []string{"a"}},
		},
	}

	errs := Validate(spec)
	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[0], ErrDependencyCycle)
}

func TestValidate_UndeclaredVolume(t *testing.T) {
	spec := validSpec()
	spec.Volumes = nil

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrUndeclaredVolume)
}

func TestValidate_BindMountsExempt(t *testing.T) {
	spec := &StackSpec{
		Services: []Service{
			{Name: "web", Image: "nginx:alpine", Volumes: []VolumeMount{
				{Type: VolumeMountTypeBind, Source: "/etc/nginx/conf.d", Target: "/etc/nginx/conf.d"},
				{Type: VolumeMountTypeTmpfs, Source: "", Target: "/tmp"},
			}},
		},
	}

	assert.Empty(t, Validate(spec))
}

func TestValidate_UnknownNetwork(t *testing.T) {
	spec := validSpec()
	spec.Services[0].Networks = []string{"backend"}

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrUnknownNetwork)
}

func TestValidate_DefaultNetworkAlwaysAllowed(t *testing.T) {
	spec := validSpec()
	spec.Services[0].Networks = []string{"default"}

	assert.Empty(t, Validate(spec))
}

func TestValidate_InvalidPorts(t *testing.T) {
	spec := validSpec()
	spec.Services[1].Ports = []Port{
		{Target: 0},
		{Target: 70000},
		{Target: 80, Published: 70000},
	}

	errs := Validate(spec)
	assert.Len(t, errs, 3)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrInvalidPort)
	}
}

func TestValidate_InvalidRestartPolicy(t *testing.T) {
	spec := validSpec()
	spec.Services[0].Restart = "sometimes"

	errs := Validate(spec)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrInvalidRestart)
}

func TestValidate_NegativeResources(t *testing.T) {
	spec := validSpec()
	spec.Services[0].Resources.CPULimit = -1
	spec.Services[1].Resources.MemoryLimit = -1

	errs := Validate(spec)
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], ErrInvalidCPU)
	assert.ErrorIs(t, errs[1], ErrInvalidMemory)
}

func TestValidate_CollectsAllFindings(t *testing.T) {
	spec := validSpec()
	spec.Services[1].DependsOn = []string{"missing"}
	spec.Services[1].Restart = "bogus"
	spec.Volumes = nil

	errs := Validate(spec)
	assert.Len(t, errs, 3)
}
