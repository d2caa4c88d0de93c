package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <stack>",
	Short: "Show the observed container state of a stack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		client := newAPIClient(serverURL)

		status, err := client.stackStatus(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Status: %s  Readiness: %s\n\n", status.Status, status.Readiness)

		if len(status.Containers) == 0 {
			fmt.Println("No containers.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "SERVICE\tCONTAINER\tSTATE\tREADINESS\tRESTARTS")
		for _, c := range status.Containers {
			id := c.ContainerID
			if len(id) > 12 {
				id = id[:12]
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", c.ServiceName, id, c.Status, c.Readiness, c.Restarts)
		}
		return w.Flush()
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stacks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		client := newAPIClient(serverURL)

		list, err := client.listStacks(ctx)
		if err != nil {
			return err
		}

		if len(list.Stacks) == 0 {
			fmt.Println("No stacks.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "SLUG\tNAME\tSTATUS\tCONTAINERS\tHOSTNAME")
		for _, s := range list.Stacks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.Slug, s.Name, s.Status, len(s.Containers), s.Hostname)
		}
		return w.Flush()
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events <stack>",
	Short: "Show a stack's apply history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		client := newAPIClient(serverURL)

		events, err := client.listEvents(ctx, args[0])
		if err != nil {
			return err
		}

		if len(events.Events) == 0 {
			fmt.Println("No events.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TIME\tTYPE\tSERVICE\tMESSAGE")
		for _, e := range events.Events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Type, e.Service, e.Message)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(eventsCmd)
}
