package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/internal/booking"
	"github.com/medcare-vn/medcare-mobile/internal/checkout"
)

func bookCmd(a *app) *cobra.Command {
	var (
		serviceID int64
		doctorID  int64
		date      string
		slot      string
		address   string
		note      string
		noWait    bool
	)
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book an appointment and pay for it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if serviceID <= 0 || doctorID <= 0 || date == "" || slot == "" {
				return errors.New("--service, --doctor, --date and --time are required")
			}
			svc, err := a.sc.API.GetService(ctx, serviceID)
			if err != nil {
				return err
			}
			day, err := a.parseDate(date)
			if err != nil {
				return err
			}

			ctrl := booking.NewController(*svc, booking.Deps{
				Slots:         a.avail,
				Appointments:  a.sc.API,
				Payments:      a.payments,
				Gateway:       checkout.NewAppointmentGateway(a.sc.API),
				HomeVisitCity: a.cfg.HomeVisitCity,
			}, a.logger.With("component", "booking"))

			if err := ctrl.SelectDoctor(doctorID); err != nil {
				return err
			}
			if _, err := ctrl.SelectDate(ctx, day); err != nil {
				return err
			}
			if err := ctrl.SelectTime(slot); err != nil {
				return fmt.Errorf("%w (free: %s)", err, joinOrDash(ctrl.Slots().Available()))
			}
			if svc.Category.RequiresAddress() {
				if strings.TrimSpace(address) == "" {
					addr, err := a.addresses.Default(ctx)
					if err != nil {
						return fmt.Errorf("home visits need --address: %w", err)
					}
					address = addr.Text
				}
				if err := ctrl.SetAddress(address); err != nil {
					return err
				}
			} else if strings.TrimSpace(address) != "" {
				return booking.ErrAddressNotAllowed
			}
			if err := ctrl.SetNote(note); err != nil {
				return err
			}

			sub, err := ctrl.Submit(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Appointment #%d booked for %s with %s\n", sub.AppointmentID, sub.ScheduledAt.Format("02/01/2006 15:04"), svc.Name)
			if noWait {
				fmt.Fprintln(out, "Not waiting for payment. Pay through the link above.")
				return nil
			}
			return printOutcome(out, a.await(cmd, sub.Session))
		},
	}
	cmd.Flags().Int64Var(&serviceID, "service", 0, "service id")
	cmd.Flags().Int64Var(&doctorID, "doctor", 0, "doctor id")
	cmd.Flags().StringVar(&date, "date", "", "date ("+dateLayout+")")
	cmd.Flags().StringVar(&slot, "time", "", "slot, e.g. 08:00")
	cmd.Flags().StringVar(&address, "address", "", "visit address (home visits; defaults to the saved default)")
	cmd.Flags().StringVar(&note, "note", "", "note for the doctor")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "return once the payment link is shown")
	return cmd
}

func appointmentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "appointments",
		Short: "List your appointments by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.history.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printAppointments(out, "Upcoming", g.Unvisited)
			printAppointments(out, "Visited", g.Visited)
			printAppointments(out, "Cancelled", g.Cancelled)
			return nil
		},
	}
}

func printAppointments(w io.Writer, title string, appts []api.Appointment) {
	fmt.Fprintf(w, "%s (%d)\n", title, len(appts))
	for _, a := range appts {
		fmt.Fprintf(w, "  #%d  %s  doctor %d  service %d", a.ID, a.ScheduledAt.Format("02/01/2006 15:04"), a.DoctorID, a.ServiceID)
		if a.Location != "" {
			fmt.Fprintf(w, "  @ %s", a.Location)
		}
		fmt.Fprintln(w)
	}
}

func cancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <appointment-id>",
		Short: "Cancel an upcoming appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.history.CancelByID(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Appointment #%d cancelled\n", id)
			return nil
		},
	}
}
