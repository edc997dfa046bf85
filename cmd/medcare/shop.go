package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/medcare-vn/medcare-mobile/internal/addressbook"
	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/internal/cart"
	"github.com/medcare-vn/medcare-mobile/internal/purchase"
)

func parseProductType(s string) (api.ProductType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drug", "thuoc":
		return api.ProductDrug, nil
	case "device", "thietbi":
		return api.ProductDevice, nil
	}
	return "", fmt.Errorf("unknown product type %q (use drug or device)", s)
}

func productArgs(args []string) (api.ProductType, int64, error) {
	t, err := parseProductType(args[0])
	if err != nil {
		return "", 0, err
	}
	id, err := parseID(args[1])
	if err != nil {
		return "", 0, err
	}
	return t, id, nil
}

func parseQuantity(s string) (int, error) {
	qty, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	return qty, nil
}

func cartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Manage the pharmacy cart",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show cart lines and total",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := a.cart.Items(cmd.Context())
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Cart is empty")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tID\tNAME\tQTY\tPRICE\tSUBTOTAL")
			for _, l := range lines {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\t%s\n", l.Type, l.ProductID, l.Name, l.Quantity, l.Price, l.Subtotal())
			}
			fmt.Fprintf(tw, "\t\t\t\tTOTAL\t%s\n", cart.Total(lines))
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <drug|device> <id> [quantity]",
		Short: "Add a product, merging with an existing line",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, id, err := productArgs(args)
			if err != nil {
				return err
			}
			qty := 1
			if len(args) == 3 {
				if qty, err = parseQuantity(args[2]); err != nil {
					return err
				}
			}
			p, err := a.sc.API.GetProduct(ctx, t, id)
			if err != nil {
				return err
			}
			line, err := a.cart.AddOrMerge(ctx, *p, qty)
			if err != nil {
				var capErr *cart.CapacityError
				if errors.As(err, &capErr) {
					return fmt.Errorf("%s: %w", p.Name, err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s x%d in cart\n", line.Name, line.Quantity)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <drug|device> <id> <quantity>",
		Short: "Set a line's quantity, clamped to stock",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, id, err := productArgs(args)
			if err != nil {
				return err
			}
			qty, err := parseQuantity(args[2])
			if err != nil {
				return err
			}
			line, err := a.cart.SetQuantity(cmd.Context(), id, t, qty)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s x%d in cart\n", line.Name, line.Quantity)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <drug|device> <id>",
		Short: "Remove a line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, id, err := productArgs(args)
			if err != nil {
				return err
			}
			if err := a.cart.Remove(cmd.Context(), id, t); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Removed")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cart.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cart cleared")
			return nil
		},
	})
	return cmd
}

func checkoutCmd(a *app) *cobra.Command {
	var (
		addressID int64
		note      string
		noWait    bool
	)
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Order the cart and pay for it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if addressID <= 0 {
				addr, err := a.addresses.Default(ctx)
				if err != nil {
					return fmt.Errorf("checkout needs --address: %w", err)
				}
				addressID = addr.ID
				fmt.Fprintf(out, "Delivering to %s\n", addr.Text)
			}

			order, err := a.orders.PlaceOrder(ctx, addressID, note)
			if err != nil {
				var stale *purchase.StaleCartError
				if errors.As(err, &stale) {
					fmt.Fprintln(out, "Your cart changed since you added these items:")
					for _, d := range stale.Discrepancies {
						fmt.Fprintf(out, "  %s\n", d)
					}
					fmt.Fprintln(out, "Review the cart and check out again.")
				}
				return err
			}
			fmt.Fprintf(out, "Order #%d placed, total %s\n", order.InvoiceID, order.Total)
			if noWait {
				fmt.Fprintln(out, "Not waiting for payment. Pay through the link above.")
				return nil
			}
			return printOutcome(out, a.await(cmd, order.Session))
		},
	}
	cmd.Flags().Int64Var(&addressID, "address", 0, "delivery address id (defaults to the saved default)")
	cmd.Flags().StringVar(&note, "note", "", "delivery note")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "return once the payment link is shown")
	return cmd
}

func addressesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "addresses",
		Aliases: []string{"address"},
		Short:   "Manage saved addresses",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs, err := a.addresses.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(addrs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved addresses")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tADDRESS\tDEFAULT\tHOME VISIT")
			for _, addr := range addrs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", addr.ID, addr.Text, yesNo(addr.IsDefault), yesNo(addressbook.HomeVisitEligible(addr.Text, a.addresses.HomeVisitCity())))
			}
			return tw.Flush()
		},
	})

	var street, ward, district, city string
	addressFlags := func(c *cobra.Command) {
		c.Flags().StringVar(&street, "street", "", "house number and street")
		c.Flags().StringVar(&ward, "ward", "", "ward")
		c.Flags().StringVar(&district, "district", "", "district")
		c.Flags().StringVar(&city, "city", "", "city or province")
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Save a new address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := a.addresses.Create(cmd.Context(), street, ward, district, city)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", text)
			return nil
		},
	}
	addressFlags(add)
	cmd.AddCommand(add)

	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace a saved address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.addresses.Update(cmd.Context(), id, street, ward, district, city); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Address #%d updated\n", id)
			return nil
		},
	}
	addressFlags(update)
	cmd.AddCommand(update)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.addresses.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Address #%d deleted\n", id)
			return nil
		},
	})
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
