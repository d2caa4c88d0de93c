package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse_MinimalDocument(t *testing.T) {
	spec, err := Parse(`
services:
  web:
    image: nginx:alpine
`)
	require.NoError(t, err)
	require.Len(t, spec.Services, 1)
	assert.Equal(t, "web", spec.Services[0].Name)
	assert.Equal(t, "nginx:alpine", spec.Services[0].Image)
}

func TestParse_EmptyDocument(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = Parse("   \n\t  ")
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse("services: [[[")
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestParse_NoServices(t *testing.T) {
	_, err := Parse(`
volumes:
  data: {}
`)
	assert.Error(t, err)
}

func TestParse_ServiceWithoutImage(t *testing.T) {
	_, err := Parse(`
services:
  web:
    restart: always
`)
	assert.Error(t, err)
}

func TestParse_FullService(t *testing.T) {
	spec, err := Parse(`
services:
  api:
    image: myapp:1.2
    command: ["serve", "--port", "8080"]
    ports:
      - "8080:8080"
    environment:
      LOG_LEVEL: debug
      AUTH_TYPE: disabled
    volumes:
      - appdata:/var/lib/app
      - /etc/localtime:/etc/localtime:ro
    depends_on:
      - db
    restart: always
    healthcheck:
      test: ["CMD", "curl", "-f", "http://localhost:8080/health"]
      interval: 30s
      timeout: 5s
      retries: 3
  db:
    image: postgres:15
volumes:
  appdata: {}
`)
	require.NoError(t, err)

	api := spec.Service("api")
	require.NotNil(t, api)

	assert.Equal(t, []string{"serve", "--port", "8080"}, api.Command)
	require.Len(t, api.Ports, 1)
	assert.Equal(t, uint32(8080), api.Ports[0].Target)
	assert.Equal(t, uint32(8080), api.Ports[0].Published)

	assert.Equal(t, "debug", api.Environment["LOG_LEVEL"])
	assert.Equal(t, "disabled", api.Environment["AUTH_TYPE"])

	require.Len(t, api.Volumes, 2)
	named := api.Volumes[0]
	bind := api.Volumes[1]
	if named.Source != "appdata" {
		named, bind = bind, named
	}
	assert.Equal(t, VolumeMountTypeVolume, named.Type)
	assert.Equal(t, "/var/lib/app", named.Target)
	assert.Equal(t, VolumeMountTypeBind, bind.Type)
	assert.True(t, bind.ReadOnly)

	assert.Equal(t, []string{"db"}, api.DependsOn)
	assert.Equal(t, RestartAlways, api.Restart)

	require.NotNil(t, api.HealthCheck)
	assert.Equal(t, []string{"CMD", "curl", "-f", "http://localhost:8080/health"}, api.HealthCheck.Test)
	assert.Equal(t, "30s", api.HealthCheck.Interval)
	assert.Equal(t, 3, api.HealthCheck.Retries)

	assert.True(t, spec.HasVolume("appdata"))
}

func TestParse_PreservesVariablePlaceholders(t *testing.T) {
	spec, err := Parse(`
services:
  db:
    image: postgres:15
    environment:
      POSTGRES_PASSWORD: ${POSTGRES_PASSWORD}
      POSTGRES_USER: ${POSTGRES_USER:-postgres}
`)
	require.NoError(t, err)

	db := spec.Service("db")
	require.NotNil(t, db)
	assert.Equal(t, "${POSTGRES_PASSWORD}", db.Environment["POSTGRES_PASSWORD"])
	assert.Equal(t, "${POSTGRES_USER:-postgres}", db.Environment["POSTGRES_USER"])
}

func TestParse_EnvFilesRecordedNotRead(t *testing.T) {
	spec, err := Parse(`
services:
  api:
    image: myapp:1.0
    env_file: .env
  web:
    image: nginx:alpine
    env_file:
      - .env
      - .env.web
`)
	require.NoError(t, err)

	assert.Equal(t, []string{".env"}, spec.Service("api").EnvFiles)
	assert.Equal(t, []string{".env", ".env.web"}, spec.Service("web").EnvFiles)
}

func TestParse_RejectsSecrets(t *testing.T) {
	_, err := Parse(`
services:
  web:
    image: nginx:alpine
secrets:
  db_password:
    external: true
`)
	assert.ErrorIs(t, err, ErrUnsupportedFeature)
}

func TestParse_UndeclaredDependency(t *testing.T) {
	_, err := Parse(`
services:
  web:
    image: nginx:alpine
    depends_on:
      - missing
`)
	assert.ErrorIs(t, err, ErrUnknownDependency)
}

func TestParse_UndeclaredVolume(t *testing.T) {
	_, err := Parse(`
services:
  db:
    image: postgres:15
    volumes:
      - pgdata:/var/lib/postgresql/data
`)
	assert.ErrorIs(t, err, ErrUndeclaredVolume)
}

func TestParse_DeployResources(t *testing.T) {
	spec, err := Parse(`
services:
  worker:
    image: worker:1.0
    deploy:
      resources:
        limits:
          cpus: "2"
          memory: 512M
`)
	require.NoError(t, err)

	w := spec.Service("worker")
	require.NotNil(t, w)
	assert.InDelta(t, 2.0, w.Resources.CPULimit, 0.001)
	assert.Equal(t, int64(512*1024*1024), w.Resources.MemoryLimit)
}

// =============================================================================
// Resource Calculation Tests
// =============================================================================

func TestCalculateResources_Defaults(t *testing.T) {
	spec := &StackSpec{
		Services: []Service{
			{Name: "a", Image: "a:1"},
			{Name: "b", Image: "b:1"},
		},
		Volumes: []Volume{{Name: "data"}},
	}

	res := CalculateResources(spec)

	assert.InDelta(t, 1.0, res.CPUCores, 0.001) // 2 * 0.5 default
	assert.Equal(t, int64(512), res.MemoryMB)   // 2 * 256 MB default
	assert.Equal(t, int64(1024), res.DiskMB)    // 1 volume * 1024 MB
}

func TestCalculateResources_ExplicitLimits(t *testing.T) {
	spec := &StackSpec{
		Services: []Service{
			{Name: "a", Image: "a:1", Resources: ServiceResources{
				CPULimit:    2.0,
				MemoryLimit: 1024 * 1024 * 1024,
			}},
		},
	}

	res := CalculateResources(spec)

	assert.InDelta(t, 2.0, res.CPUCores, 0.001)
	assert.Equal(t, int64(1024), res.MemoryMB)
	assert.Equal(t, int64(0), res.DiskMB)
}

// =============================================================================
// Variable Extraction Tests
// =============================================================================

func TestExtractVariables(t *testing.T) {
	vars := ExtractVariables(`
services:
  db:
    image: postgres:${PG_VERSION:-15}
    environment:
      POSTGRES_PASSWORD: ${POSTGRES_PASSWORD}
      POSTGRES_USER: ${POSTGRES_USER}
      REPEATED: ${POSTGRES_USER}
`)

	assert.Equal(t, []string{"PG_VERSION", "POSTGRES_PASSWORD", "POSTGRES_USER"}, vars)
}

func TestExtractVariables_None(t *testing.T) {
	vars := ExtractVariables("services:\n  web:\n    image: nginx\n")
	assert.Empty(t, vars)
}
