package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aiassistantthx/browser-ai-agent/pkg/client"
)

func newClient(opts *rootOptions) (*client.Client, error) {
	return client.New(client.Config{BaseURL: opts.server, RetryCount: 2})
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	var (
		model   string
		wait    bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit <instruction>",
		Short: "Submit an instruction and print the planned actions",
		Example: `  pilot submit "go to example.com then click the Login button"
  pilot submit --wait "open github.com then wait for 2 seconds"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			created, err := c.CreateTask(ctx, strings.Join(args, " "), nil, model)
			if err != nil {
				if created != nil {
					_ = printJSON(cmd.OutOrStdout(), created)
				}
				return err
			}
			if !wait {
				return printJSON(cmd.OutOrStdout(), created)
			}

			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			done, err := c.WaitForCompletion(waitCtx, created.TaskID, 250*time.Millisecond)
			if err != nil {
				return fmt.Errorf("waiting for %s: %w", created.TaskID, err)
			}
			return printJSON(cmd.OutOrStdout(), done)
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "model name stored with the task")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the task to finish and print the record")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "how long --wait waits")
	return cmd
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "get <task-id>",
		Short: "Print a task record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			if statusOnly {
				v, err := c.GetStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), v)
			}
			t, err := c.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), t)
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "print only the progress view")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			tasks, err := c.ListTasks(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Status, t.OriginalText)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of tasks")
	return cmd
}

func newCancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a scheduled or running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			if err := c.CancelTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancellation requested for %s\n", args[0])
			return nil
		},
	}
}
