package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SHESHU45/UrumiAssignment/pkg/client"
	"github.com/SHESHU45/UrumiAssignment/pkg/types"
)

func newListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			stores, err := c.ListStores(cmd.Context())
			if err != nil {
				return err
			}
			return newPrinter(cmd.OutOrStdout(), opts.Output).stores(stores)
		},
	}
}

func newGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a store with its pods and recent events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			details, err := c.GetStore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return newPrinter(cmd.OutOrStdout(), opts.Output).details(details)
		},
	}
}

func newCreateCommand(opts *RootOptions) *cobra.Command {
	var (
		engine       string
		wait         bool
		waitTimeout  time.Duration
		pollInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a store",
		Long: `Create a store. The API answers as soon as the store is accepted;
use --wait to poll until it is Ready or Failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			created, err := c.CreateStore(cmd.Context(), types.CreateStoreRequest{Name: args[0], Engine: engine})
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout(), opts.Output)
			if !wait {
				return out.store(created)
			}

			ctx, cancel := contextWithTimeout(cmd, waitTimeout)
			defer cancel()
			details, err := c.WaitForStatus(ctx, created.ID, client.WaitOptions{Interval: pollInterval})
			if err != nil {
				return err
			}
			if err := out.store(&details.Store); err != nil {
				return err
			}
			if details.Status == types.StatusFailed {
				return fmt.Errorf("store %s failed to provision", created.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&engine, "engine", "woocommerce", "store engine")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait until the store is Ready or Failed")
	cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", 15*time.Minute, "maximum time to wait with --wait")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 5*time.Second, "polling interval with --wait")
	return cmd
}

func newDeleteCommand(opts *RootOptions) *cobra.Command {
	var (
		wait        bool
		waitTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a store and all of its resources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			result, err := c.DeleteStore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout(), opts.Output)
			if !wait {
				return out.message(result, fmt.Sprintf("%s (%s)", result.Message, result.StoreID))
			}

			ctx, cancel := contextWithTimeout(cmd, waitTimeout)
			defer cancel()
			details, err := c.WaitForStatus(ctx, result.StoreID, client.WaitOptions{})
			if err != nil {
				return err
			}
			if details.Status == types.StatusFailed {
				return fmt.Errorf("store %s deletion failed: %s", result.StoreID, deref(details.ErrorMessage))
			}
			return out.message(result, fmt.Sprintf("Store %s deleted", result.StoreID))
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "wait until the store is gone")
	cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", 5*time.Minute, "maximum time to wait with --wait")
	return cmd
}

func newEventsCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events [<id>]",
		Short: "List lifecycle events for one store or across all stores",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			var items []types.StoreEvent
			if len(args) == 1 {
				items, err = c.ListStoreEvents(cmd.Context(), args[0], limit)
			} else {
				items, err = c.ListEvents(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			return newPrinter(cmd.OutOrStdout(), opts.Output).events(items)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events")
	return cmd
}

func newMetricsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show store counts and provisioning capacity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			m, err := c.Metrics(cmd.Context())
			if err != nil {
				return err
			}
			return newPrinter(cmd.OutOrStdout(), opts.Output).metrics(m)
		},
	}
}

func newAuditCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			entries, err := c.AuditLog(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return newPrinter(cmd.OutOrStdout(), opts.Output).audit(entries)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of entries")
	return cmd
}

func newReconcileCommand(opts *RootOptions) *cobra.Command {
	var trigger bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Show reconciliation status, or run a pass with --now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			var status *types.ReconcileStatus
			if trigger {
				status, err = c.TriggerReconcile(cmd.Context())
			} else {
				status, err = c.ReconcileStatus(cmd.Context())
			}
			if err != nil {
				return err
			}
			return newPrinter(cmd.OutOrStdout(), opts.Output).reconcile(status)
		},
	}

	cmd.Flags().BoolVar(&trigger, "now", false, "run a reconciliation pass immediately")
	return cmd
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
