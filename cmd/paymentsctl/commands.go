package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"tour-payments/internal/models"
	"tour-payments/internal/service"

	"github.com/spf13/cobra"
)

func orderCmd(load envLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Inspect stored orders",
	}

	var asJSON bool
	get := &cobra.Command{
		Use:   "get [order-id]",
		Short: "Show one order and its payment status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(load, func(ctx context.Context, e *env) error {
				order, err := e.orders.Get(ctx, args[0])
				if err != nil {
					return fmt.Errorf("order %s: %w", args[0], err)
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), order)
				}
				printOrder(cmd.OutOrStdout(), order)
				return nil
			})(cmd, args)
		},
	}
	get.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(load, func(ctx context.Context, e *env) error {
				orders, err := e.orders.List(ctx, limit)
				if err != nil {
					return err
				}
				printOrders(cmd.OutOrStdout(), orders)
				return nil
			})(cmd, args)
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum orders")

	cmd.AddCommand(get, list)
	return cmd
}

func reconcileCmd(load envLoader) *cobra.Command {
	var (
		timeout time.Duration
		action  string
	)
	cmd := &cobra.Command{
		Use:   "reconcile [intent-id]",
		Short: "Fetch an intent's status from the provider and apply it",
		Long: `Reconcile runs the same path as a provider notification for the given
intent or payment id. Use it when a notification was lost.`,
		Args: cobra.ExactArgs(1),
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall deadline")
	cmd.Flags().StringVar(&action, "action", "manual.reconcile", "Action recorded on the event")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return withEnv(load, func(ctx context.Context, e *env) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			res, err := e.engine.Reconcile(ctx, models.ReconciliationEvent{
				ProviderEventType: models.ProviderEventTypePayment,
				IntentID:          args[0],
				Action:            action,
				ReceivedAt:        time.Now().UTC(),
			})
			if err != nil {
				if kind, ok := service.IrregularityKind(err); ok {
					return fmt.Errorf("%s: %w", kind, err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			if !res.Changed {
				fmt.Fprintf(out, "order %s unchanged (%s)\n", res.OrderID, res.Current)
				return nil
			}
			fmt.Fprintf(out, "order %s: %s -> %s\n", res.OrderID, res.Previous, res.Current)
			if res.Fulfilled {
				fmt.Fprintln(out, "fulfillment confirmed")
			}
			return nil
		})(cmd, args)
	}
	return cmd
}

func migrateCmd(load envLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the order schema to the database",
	}
	cmd.RunE = withEnv(load, func(ctx context.Context, e *env) error {
		if e.migrate == nil {
			return errors.New("store has no schema to apply")
		}
		if err := e.migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
		return nil
	})
	return cmd
}

func printOrder(w io.Writer, o *models.Order) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Order:\t%s\n", o.ID)
	fmt.Fprintf(tw, "Package:\t%s\n", o.PackageName)
	fmt.Fprintf(tw, "Travelers:\t%d\n", o.TravelerCount)
	fmt.Fprintf(tw, "Departure:\t%s\n", o.DepartureDate)
	fmt.Fprintf(tw, "Customer:\t%s <%s>\n", o.CustomerName, o.CustomerEmail)
	fmt.Fprintf(tw, "Total:\t%s %s\n", o.TotalAmount.StringFixed(2), o.Currency)
	fmt.Fprintf(tw, "Intent:\t%s\n", o.Intent.ID)
	fmt.Fprintf(tw, "Status:\t%s (since %s)\n", o.Intent.Status, o.Intent.StatusUpdatedAt.Format(time.RFC3339))
	tw.Flush()
}

func printOrders(w io.Writer, orders []*models.Order) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tPACKAGE\tTOTAL\tSTATUS\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\t%s\n",
			o.ID, o.PackageName, o.TotalAmount.StringFixed(2), o.Currency,
			o.Intent.Status, o.CreatedAt.Format(time.RFC3339))
	}
	tw.Flush()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
