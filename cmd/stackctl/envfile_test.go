package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/stackd/internal/core/stack"
)

func TestParseEnvFile(t *testing.T) {
	content := `
# database settings
DB_HOST=postgres
export DB_PORT=5432

DB_USER = app
DB_PASSWORD="s3cret=with=equals"
CACHE_URL='redis://cache:6379'
not-a-pair
=novalue
`
	values := parseEnvFile(content)

	assert.Equal(t, map[string]string{
		"DB_HOST":     "postgres",
		"DB_PORT":     "5432",
		"DB_USER":     "app",
		"DB_PASSWORD": "s3cret=with=equals",
		"CACHE_URL":   "redis://cache:6379",
	}, values)
}

func TestResolveEnvFiles(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "stack.yaml")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("DB_HOST=postgres\nDB_PORT=5432\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "worker.env"),
		[]byte("QUEUE=indexing\n"), 0o644))

	spec, err := stack.Parse(`
services:
  api:
    image: ghcr.io/acme/api:1.2
    env_file:
      - .env
  worker:
    image: ghcr.io/acme/worker:1.2
    env_file:
      - .env
      - worker.env
`)
	require.NoError(t, err)

	resolved, err := resolveEnvFiles(docPath, spec)
	require.NoError(t, err)

	assert.Equal(t, map[string]map[string]string{
		".env":       {"DB_HOST": "postgres", "DB_PORT": "5432"},
		"worker.env": {"QUEUE": "indexing"},
	}, resolved)
}

func TestResolveEnvFiles_MissingFile(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "stack.yaml")

	spec, err := stack.Parse(`
services:
  api:
    image: ghcr.io/acme/api:1.2
    env_file:
      - missing.env
`)
	require.NoError(t, err)

	_, err = resolveEnvFiles(docPath, spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api")
}

func TestResolveEnvFiles_NoReferences(t *testing.T) {
	spec, err := stack.Parse(`
services:
  api:
    image: ghcr.io/acme/api:1.2
`)
	require.NoError(t, err)

	resolved, err := resolveEnvFiles("stack.yaml", spec)
	require.NoError(t, err)
	assert.Nil(t, resolved)
}
