package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/internal/booking"
)

const stampLayout = "2006-01-02 15:04"

func registerCmd(a *app) *cobra.Command {
	var (
		reg      api.Registration
		birthday string
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a customer account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(birthday) != "" {
				day, err := time.Parse(dateLayout, strings.TrimSpace(birthday))
				if err != nil {
					return fmt.Errorf("invalid --birthday %q (use YYYY-MM-DD)", birthday)
				}
				reg.Birthday = day
			}
			if err := a.signup.Register(cmd.Context(), reg); err != nil {
				return err
			}
			email := strings.TrimSpace(reg.Email)
			fmt.Fprintf(cmd.OutOrStdout(), "Account created for %s. Sign in with: medcare login %s\n", email, email)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&reg.Name, "name", "", "full name")
	f.StringVar(&reg.Email, "email", "", "email, also the login name")
	f.StringVarP(&reg.Password, "password", "p", "", "at least 6 characters")
	f.StringVar(&reg.Phone, "phone", "", "mobile number, 0xxxxxxxxx or +84xxxxxxxxx")
	f.StringVar(&reg.IDNumber, "id-number", "", "national ID card number (9 or 12 digits)")
	f.StringVar(&birthday, "birthday", "", "date of birth, YYYY-MM-DD")
	f.StringVar(&reg.Gender, "gender", "", "Nam or Nữ (default Nam)")
	return cmd
}

func ordersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List paid pharmacy orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orders, err := a.purchases.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(orders) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No orders yet.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDATE\tTOTAL\tNOTE")
			for _, o := range orders {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", o.ID, o.PurchasedAt.Format(stampLayout), o.Total, o.Note)
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <order-id>",
		Short: "Show the products of a paid order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			detail, err := a.purchases.Detail(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Order #%d, paid %s\n", detail.Invoice.ID, detail.Invoice.PurchasedAt.Format(stampLayout))
			if detail.Address != "" {
				fmt.Fprintf(out, "Deliver to: %s\n", detail.Address)
			}
			if detail.Invoice.Note != "" {
				fmt.Fprintf(out, "Note: %s\n", detail.Invoice.Note)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PRODUCT\tPRICE\tQTY\tSUBTOTAL")
			for _, it := range detail.Items {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", it.Name, it.Price, it.Quantity, it.Subtotal)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Total: %s\n", detail.Total())
			return nil
		},
	})
	return cmd
}

func reviewLabel(v booking.Visit) string {
	switch {
	case v.Review != nil && v.PendingReview:
		return fmt.Sprintf("%d/5 (pending)", v.Review.Stars)
	case v.Review != nil:
		return fmt.Sprintf("%d/5", v.Review.Stars)
	case v.Reviewable():
		return "not reviewed"
	}
	return "-"
}

func resultsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "results",
		Short: "List visited appointments with their examination results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			visits, err := a.results.List(ctx)
			if err != nil {
				return err
			}
			if len(visits) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No visited appointments yet.")
				return nil
			}
			services, err := a.sc.API.ListServices(ctx)
			if err != nil {
				return err
			}
			names := make(map[int64]string, len(services))
			for _, s := range services {
				names[s.ID] = s.Name
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "APPOINTMENT\tDATE\tSERVICE\tRESULT\tREVIEW")
			for _, v := range visits {
				result := "awaiting result"
				if v.Result != nil {
					result = v.Result.Description
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", v.Appointment.ID, v.Appointment.ScheduledAt.Format(stampLayout),
					names[v.Appointment.ServiceID], result, reviewLabel(v))
			}
			return tw.Flush()
		},
	}
}

func reviewsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reviews <service-id>",
		Short: "Show the published reviews of a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rating, err := a.sc.API.GetServiceRating(ctx, id)
			if err != nil {
				return err
			}
			reviews, err := a.results.ServiceReviews(ctx, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %.1f (%d ratings)\n", rating.Stars(), rating.Average, rating.Count)
			if len(reviews) == 0 {
				fmt.Fprintln(out, "No written reviews yet.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARS\tDATE\tCOMMENT")
			for _, r := range reviews {
				fmt.Fprintf(tw, "%d/5\t%s\t%s\n", r.Stars, r.CreatedAt.DateKey(), r.Content)
			}
			return tw.Flush()
		},
	}
}

func reviewCmd(a *app) *cobra.Command {
	var (
		stars int
		text  string
	)
	cmd := &cobra.Command{
		Use:   "review <appointment-id>",
		Short: "Rate the service of a visited appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.results.Review(cmd.Context(), id, stars, text); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Thanks. Your review is published once the clinic approves it.")
			return nil
		},
	}
	cmd.Flags().IntVar(&stars, "stars", 0, "rating from 1 to 5")
	cmd.Flags().StringVar(&text, "text", "", "comment")
	return cmd
}
