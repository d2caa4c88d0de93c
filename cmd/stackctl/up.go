package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artpar/stackd/internal/core/stack"
	"github.com/artpar/stackd/internal/shell/api"
)

var (
	upName     string
	upHostname string
	upVars     []string
)

var upCmd = &cobra.Command{
	Use:   "up <file>",
	Short: "Create (or update) a stack from a document and apply it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		variables, err := parseVarFlags(upVars)
		if err != nil {
			return err
		}

		// Resolve env_file references here, next to the document; the
		// server only ever sees the resolved values.
		spec, err := stack.Parse(string(source))
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		envFiles, err := resolveEnvFiles(args[0], spec)
		if err != nil {
			return err
		}

		name := upName
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}

		ctx := context.Background()
		client := newAPIClient(serverURL)

		stk, err := ensureStack(ctx, client, name, string(source), variables, envFiles)
		if err != nil {
			return err
		}

		fmt.Printf("Applying stack %s (%s)...\n", stk.Name, stk.Slug)
		applied, err := client.applyStack(ctx, stk.ID)
		if err != nil {
			return err
		}

		fmt.Printf("Stack %s is %s with %d container(s)\n", applied.Slug, applied.Status, len(applied.Containers))
		for _, c := range applied.Containers {
			fmt.Printf("  %s  %s  %s\n", c.ServiceName, c.Image, c.Status)
		}
		if applied.Hostname != "" {
			fmt.Printf("Routed at http://%s (edge port %d)\n", applied.Hostname, applied.EdgePort)
		}
		return nil
	},
}

// ensureStack creates the stack, or updates the existing one with the same
// name, so repeated up runs converge instead of failing.
func ensureStack(ctx context.Context, client *apiClient, name, source string, variables map[string]string, envFiles map[string]map[string]string) (*api.StackResponse, error) {
	list, err := client.listStacks(ctx)
	if err != nil {
		return nil, err
	}

	for i := range list.Stacks {
		if list.Stacks[i].Name != name {
			continue
		}
		update := api.UpdateStackRequest{Source: source, EnvFiles: envFiles}
		if len(variables) > 0 {
			update.Variables = variables
		}
		if upHostname != "" {
			update.Hostname = &upHostname
		}
		var updated api.StackResponse
		if err := client.do(ctx, "PUT", "/api/v1/stacks/"+list.Stacks[i].ID, update, &updated); err != nil {
			return nil, err
		}
		return &updated, nil
	}

	return client.createStack(ctx, api.CreateStackRequest{
		Name:      name,
		Source:    source,
		Variables: variables,
		EnvFiles:  envFiles,
		Hostname:  upHostname,
	})
}

func init() {
	upCmd.Flags().StringVar(&upName, "name", "", "stack name (default: file name)")
	upCmd.Flags().StringVar(&upHostname, "hostname", "", "custom hostname for edge routing")
	upCmd.Flags().StringArrayVar(&upVars, "var", nil, "variable in KEY=VALUE form (repeatable)")
	rootCmd.AddCommand(upCmd)
}
