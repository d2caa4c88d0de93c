package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/artpar/stackd/internal/core/stack"
)

// resolveEnvFiles reads every env_file a document references and returns the
// contents keyed by the path as written in the document. Paths are resolved
// relative to the document's directory, since that is where compose-style
// documents expect them.
func resolveEnvFiles(docPath string, spec *stack.StackSpec) (map[string]map[string]string, error) {
	dir := filepath.Dir(docPath)

	var resolved map[string]map[string]string
	for _, svc := range spec.Services {
		for _, ref := range svc.EnvFiles {
			if resolved != nil {
				if _, ok := resolved[ref]; ok {
					continue
				}
			}

			path := ref
			if !filepath.IsAbs(path) {
				path = filepath.Join(dir, path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("env_file for service %s: %w", svc.Name, err)
			}

			if resolved == nil {
				resolved = make(map[string]map[string]string)
			}
			resolved[ref] = parseEnvFile(string(data))
		}
	}

	return resolved, nil
}

// parseEnvFile parses KEY=VALUE lines. Blank lines and # comments are
// skipped; an optional "export " prefix and surrounding quotes are stripped.
func parseEnvFile(content string) map[string]string {
	values := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		value = strings.TrimSpace(value)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		values[key] = value
	}
	return values
}
