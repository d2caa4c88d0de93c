package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/artpar/stackd/internal/core/plan"
	"github.com/artpar/stackd/internal/core/stack"
)

var renderVars []string

var renderCmd = &cobra.Command{
	Use:   "render <file>",
	Short: "Parse a stack document and print the normalized model",
	Long: `Render parses a stack document, substitutes variables and prints the
normalized model stackd will apply. Unresolved variables stay as-is.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		variables, err := parseVarFlags(renderVars)
		if err != nil {
			return err
		}

		spec, err := stack.Parse(string(source))
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		out, err := yaml.Marshal(renderSpec(spec, variables))
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	renderCmd.Flags().StringArrayVar(&renderVars, "var", nil, "variable in KEY=VALUE form (repeatable)")
	rootCmd.AddCommand(renderCmd)
}

// parseVarFlags turns --var KEY=VALUE flags into a map.
func parseVarFlags(flags []string) (map[string]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(flags))
	for _, f := range flags {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q, expected KEY=VALUE", f)
		}
		vars[key] = value
	}
	return vars, nil
}

// renderSpec converts a parsed spec into an ordered YAML document.
func renderSpec(spec *stack.StackSpec, variables map[string]string) *yaml.Node {
	doc := mappingNode()

	services := mappingNode()
	for _, svc := range spec.Services {
		services.Content = append(services.Content, scalarNode(svc.Name), renderService(svc, variables))
	}
	appendEntry(doc, "services", services)

	if len(spec.Volumes) > 0 {
		volumes := mappingNode()
		for _, v := range spec.Volumes {
			volumes.Content = append(volumes.Content, scalarNode(v.Name), mappingNode())
		}
		appendEntry(doc, "volumes", volumes)
	}

	return doc
}

func renderService(svc stack.Service, variables map[string]string) *yaml.Node {
	node := mappingNode()

	if svc.Image != "" {
		appendEntry(node, "image", scalarNode(plan.SubstituteVariables(svc.Image, variables)))
	}
	if len(svc.Command) > 0 {
		appendEntry(node, "command", sequenceNode(svc.Command))
	}
	if len(svc.Ports) > 0 {
		var ports []string
		for _, p := range svc.Ports {
			if p.Published > 0 {
				ports = append(ports, fmt.Sprintf("%d:%d", p.Published, p.Target))
			} else {
				ports = append(ports, fmt.Sprintf("%d", p.Target))
			}
		}
		appendEntry(node, "ports", sequenceNode(ports))
	}
	if len(svc.Environment) > 0 {
		env := mappingNode()
		for _, key := range sortedKeys(svc.Environment) {
			value := plan.SubstituteVariables(svc.Environment[key], variables)
			env.Content = append(env.Content, scalarNode(key), scalarNode(value))
		}
		appendEntry(node, "environment", env)
	}
	if len(svc.Volumes) > 0 {
		var mounts []string
		for _, m := range svc.Volumes {
			mount := m.Source + ":" + m.Target
			if m.ReadOnly {
				mount += ":ro"
			}
			mounts = append(mounts, mount)
		}
		appendEntry(node, "volumes", sequenceNode(mounts))
	}
	if len(svc.DependsOn) > 0 {
		appendEntry(node, "depends_on", sequenceNode(svc.DependsOn))
	}
	if svc.Restart != "" {
		appendEntry(node, "restart", scalarNode(string(svc.Restart)))
	}
	if svc.HealthCheck != nil {
		hc := mappingNode()
		appendEntry(hc, "test", sequenceNode(svc.HealthCheck.Test))
		if svc.HealthCheck.Interval != "" {
			appendEntry(hc, "interval", scalarNode(svc.HealthCheck.Interval))
		}
		if svc.HealthCheck.Timeout != "" {
			appendEntry(hc, "timeout", scalarNode(svc.HealthCheck.Timeout))
		}
		if svc.HealthCheck.Retries > 0 {
			appendEntry(hc, "retries", scalarNode(fmt.Sprintf("%d", svc.HealthCheck.Retries)))
		}
		appendEntry(node, "healthcheck", hc)
	}

	return node
}

// =============================================================================
// YAML Node Helpers
// =============================================================================

func mappingNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode}
}

func scalarNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: value}
}

func sequenceNode(values []string) *yaml.Node {
	node := &yaml.Node{Kind: yaml.SequenceNode}
	for _, v := range values {
		node.Content = append(node.Content, scalarNode(v))
	}
	return node
}

func appendEntry(node *yaml.Node, key string, value *yaml.Node) {
	node.Content = append(node.Content, scalarNode(key), value)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
