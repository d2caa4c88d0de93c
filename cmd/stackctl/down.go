package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var downRemove bool

var downCmd = &cobra.Command{
	Use:   "down <stack>",
	Short: "Stop a stack's containers",
	Long: `Down stops a stack's containers but keeps its volumes, network and
record. With --rm the stack and all its Docker resources are removed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		client := newAPIClient(serverURL)

		stk, err := client.getStack(ctx, args[0])
		if err != nil {
			return err
		}

		if stk.Status == "running" || stk.Status == "degraded" || stk.Status == "applying" {
			stopped, err := client.stopStack(ctx, stk.ID)
			if err != nil {
				return err
			}
			fmt.Printf("Stack %s is %s\n", stopped.Slug, stopped.Status)
		}

		if downRemove {
			if err := client.deleteStack(ctx, stk.ID); err != nil {
				return err
			}
			fmt.Printf("Stack %s removed\n", stk.Slug)
		}
		return nil
	},
}

func init() {
	downCmd.Flags().BoolVar(&downRemove, "rm", false, "remove the stack, its containers and volumes")
	rootCmd.AddCommand(downCmd)
}
