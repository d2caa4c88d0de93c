package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/stackd/internal/core/stack"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a stack document without touching a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		spec, err := stack.Parse(string(source))
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		if errs := stack.Validate(spec); len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintln(os.Stderr, " -", e)
			}
			return fmt.Errorf("%s: %d validation error(s)", args[0], len(errs))
		}

		vars := stack.ExtractVariables(string(source))

		fmt.Printf("%s: valid (%d services", args[0], len(spec.Services))
		if len(spec.Volumes) > 0 {
			fmt.Printf(", %d volumes", len(spec.Volumes))
		}
		if len(vars) > 0 {
			fmt.Printf(", variables: %v", vars)
		}
		fmt.Println(")")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
