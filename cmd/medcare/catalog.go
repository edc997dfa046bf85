package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/medcare-vn/medcare-mobile/internal/api"
)

const dateLayout = "2006-01-02"

func loginCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in and remember the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return errors.New("--password is required")
			}
			ctx := cmd.Context()
			token, err := a.sc.API.Login(ctx, args[0], password)
			if err != nil {
				return err
			}
			if err := a.sc.Sessions.Save(ctx, token); err != nil {
				return err
			}
			customer, err := a.sc.API.CurrentCustomer(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (#%d)\n", customer.Name, customer.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.sc.Sessions.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func doctorsCmd(a *app) *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "doctors",
		Short: "List doctors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				doctors []api.Doctor
				err     error
			)
			if strings.TrimSpace(search) != "" {
				doctors, err = a.sc.API.SearchDoctors(cmd.Context(), search)
			} else {
				doctors, err = a.sc.API.ListDoctors(cmd.Context())
			}
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME")
			for _, d := range doctors {
				fmt.Fprintf(tw, "%d\t%s\n", d.ID, d.Name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "filter by name")
	return cmd
}

func parseCategory(s string) (api.ServiceCategory, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return 0, nil
	case "home", "home_visit", "1":
		return api.CategoryHomeVisit, nil
	case "online", "2":
		return api.CategoryOnline, nil
	}
	return 0, fmt.Errorf("unknown category %q (use home or online)", s)
}

func servicesCmd(a *app) *cobra.Command {
	var (
		search    string
		category  string
		specialty int64
		ratings   bool
	)
	cmd := &cobra.Command{
		Use:   "services",
		Short: "List bookable services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cat, err := parseCategory(category)
			if err != nil {
				return err
			}
			var services []api.Service
			switch {
			case strings.TrimSpace(search) != "":
				services, err = a.sc.API.SearchServices(ctx, search)
			case cat != 0 && specialty > 0:
				services, err = a.sc.API.ListServicesByCategoryAndSpecialty(ctx, cat, specialty)
			default:
				services, err = a.sc.API.ListServices(ctx)
			}
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			header := "ID\tNAME\tKIND\tPRICE"
			if ratings {
				header += "\tRATING"
			}
			fmt.Fprintln(tw, header)
			for _, s := range services {
				if cat != 0 && s.Category != cat {
					continue
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s", s.ID, s.Name, s.Category, s.Price)
				if ratings {
					r, err := a.sc.API.GetServiceRating(ctx, s.ID)
					if err != nil {
						return err
					}
					fmt.Fprintf(tw, "\t%s (%d)", r.Stars(), r.Count)
				}
				fmt.Fprintln(tw)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "filter by name")
	cmd.Flags().StringVar(&category, "category", "", "home or online")
	cmd.Flags().Int64Var(&specialty, "specialty", 0, "specialty id (with --category)")
	cmd.Flags().BoolVar(&ratings, "ratings", false, "show star ratings")
	return cmd
}

func (a *app) parseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), a.cfg.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("date must look like %s: %w", dateLayout, err)
	}
	return d, nil
}

func slotsCmd(a *app) *cobra.Command {
	var (
		doctorID int64
		date     string
		service  int64
	)
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show bookable dates and free time slots",
		Long: "With --service, lists doctors who can take the service. With --doctor, " +
			"lists the doctor's bookable dates, or the free slots of --date.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if doctorID <= 0 {
				if service <= 0 {
					return errors.New("--doctor or --service is required")
				}
				svc, err := a.sc.API.GetService(ctx, service)
				if err != nil {
					return err
				}
				doctors, err := a.avail.Doctors(ctx, *svc)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Doctors for %s:\n", svc.Name)
				for _, d := range doctors {
					fmt.Fprintf(out, "  %d  %s\n", d.ID, d.Name)
				}
				return nil
			}
			if date == "" {
				dates, err := a.avail.Dates(ctx, doctorID)
				if err != nil {
					return err
				}
				if len(dates) == 0 {
					fmt.Fprintln(out, "No bookable dates in the window")
					return nil
				}
				for _, d := range dates {
					fmt.Fprintln(out, d.Format(dateLayout))
				}
				return nil
			}
			day, err := a.parseDate(date)
			if err != nil {
				return err
			}
			slots, err := a.avail.Slots(ctx, doctorID, day)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Morning:     %s\n", joinOrDash(slots.Morning))
			fmt.Fprintf(out, "Afternoon:   %s\n", joinOrDash(slots.Afternoon))
			fmt.Fprintf(out, "Unavailable: %s\n", joinOrDash(slots.Unavailable))
			return nil
		},
	}
	cmd.Flags().Int64Var(&doctorID, "doctor", 0, "doctor id")
	cmd.Flags().StringVar(&date, "date", "", "date ("+dateLayout+")")
	cmd.Flags().Int64Var(&service, "service", 0, "service id, to list eligible doctors")
	return cmd
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, " ")
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
