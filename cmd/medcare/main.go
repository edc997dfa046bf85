package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/medcare-vn/medcare-mobile/internal/account"
	"github.com/medcare-vn/medcare-mobile/internal/addressbook"
	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/internal/availability"
	"github.com/medcare-vn/medcare-mobile/internal/booking"
	"github.com/medcare-vn/medcare-mobile/internal/cart"
	"github.com/medcare-vn/medcare-mobile/internal/checkout"
	appconfig "github.com/medcare-vn/medcare-mobile/internal/config"
	"github.com/medcare-vn/medcare-mobile/internal/kvstore"
	"github.com/medcare-vn/medcare-mobile/internal/observability/metrics"
	"github.com/medcare-vn/medcare-mobile/internal/purchase"
	"github.com/medcare-vn/medcare-mobile/internal/session"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("ignoring .env: %v", err)
	}

	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: os.Stderr})

	root := newRootCmd(&app{cfg: cfg, logger: logger})
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds everything a command needs. It is populated once, before the
// first command runs.
type app struct {
	cfg    *appconfig.Config
	logger *logging.Logger
	// opener overrides the configured way of showing payment links.
	opener checkout.Opener

	reg       *prometheus.Registry
	sc        *session.Context
	avail     *availability.Service
	payments  *checkout.Checkout
	cart      *cart.Store
	addresses *addressbook.Book
	history   *booking.History
	results   *booking.Results
	orders    *purchase.Service
	purchases *purchase.History
	signup    *account.Service

	metricsSrv *http.Server
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "medcare",
		Short:        "Book clinic visits and order pharmacy products",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context(), cmd.OutOrStdout())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	root.AddCommand(registerCmd(a))
	root.AddCommand(loginCmd(a))
	root.AddCommand(logoutCmd(a))
	root.AddCommand(doctorsCmd(a))
	root.AddCommand(servicesCmd(a))
	root.AddCommand(slotsCmd(a))
	root.AddCommand(bookCmd(a))
	root.AddCommand(appointmentsCmd(a))
	root.AddCommand(cancelCmd(a))
	root.AddCommand(cartCmd(a))
	root.AddCommand(checkoutCmd(a))
	root.AddCommand(addressesCmd(a))
	root.AddCommand(ordersCmd(a))
	root.AddCommand(resultsCmd(a))
	root.AddCommand(reviewsCmd(a))
	root.AddCommand(reviewCmd(a))
	return root
}

func (a *app) setup(ctx context.Context, out io.Writer) error {
	if a.sc != nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := a.cfg
	logger := a.logger
	if logger == nil {
		logger = logging.Default()
		a.logger = logger
	}

	kv, err := kvstore.Open(ctx, cfg, logger.With("component", "kvstore"))
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}

	a.reg = prometheus.NewRegistry()
	a.sc = session.NewContext(kv, cfg.APIBaseURL, logger,
		api.WithTimeout(cfg.APITimeout),
		api.WithMetrics(metrics.NewClientMetrics(a.reg)),
	)

	opener := a.opener
	if opener == nil {
		opener = linkOpener(cfg.OpenPaymentURL, out)
	}
	paymentMetrics := metrics.NewCheckoutMetrics(a.reg)
	poller := checkout.NewPoller(paymentMetrics, logger.With("component", "poller")).
		WithInterval(cfg.PaymentPollInterval).
		WithMaxAttempts(cfg.PaymentPollMaxAttempts).
		WithTimeout(cfg.PaymentPollTimeout)
	compensator := checkout.NewCompensator(paymentMetrics, logger.With("component", "compensator")).
		WithMaxAttempts(cfg.CompensationMaxAttempts).
		WithBaseDelay(cfg.CompensationBaseDelay)
	a.payments = checkout.New(poller, compensator, opener, paymentMetrics, logger.With("component", "checkout"))

	a.avail = availability.NewService(a.sc.API, availability.NewWindow(cfg.BookingWindowDays, cfg.Location()), logger)
	a.cart = cart.NewStore(kv, a.sc.API, metrics.NewCartMetrics(a.reg), logger.With("component", "cart"))
	a.addresses = addressbook.NewBook(a.sc.API, cfg.HomeVisitCity, logger)
	a.history = booking.NewHistory(a.sc.API, logger)
	a.results = booking.NewResults(a.sc.API, logger)
	a.orders = purchase.NewService(a.cart, a.sc.API, a.payments, logger.With("component", "purchase"))
	a.purchases = purchase.NewHistory(a.sc.API, logger)
	a.signup = account.NewService(a.sc.API, logger)

	if cfg.MetricsAddr != "" {
		a.metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics listener failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}
	return nil
}

func (a *app) close() {
	if a.metricsSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = a.metricsSrv.Shutdown(ctx)
}

// linkOpener always prints the payment link and, when asked, also hands it
// to the desktop browser.
func linkOpener(openBrowser bool, out io.Writer) checkout.Opener {
	printer := checkout.PrintOpener{W: out}
	if !openBrowser {
		return printer
	}
	return checkout.OpenerFunc(func(ctx context.Context, url string) error {
		if err := printer.Open(ctx, url); err != nil {
			return err
		}
		return checkout.BrowserOpener{}.Open(ctx, url)
	})
}

// await blocks until the payment session ends. An interrupt stops watching;
// the record is left for the customer to pay later.
func (a *app) await(cmd *cobra.Command, sess *checkout.Session) checkout.Outcome {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(cmd.OutOrStdout(), "Waiting for payment confirmation (Ctrl+C to stop watching)...")
	out, err := sess.Wait(ctx)
	if err != nil {
		sess.Cancel()
		out, _ = sess.Wait(context.Background())
	}
	return out
}

func printOutcome(w io.Writer, out checkout.Outcome) error {
	switch out.Result {
	case checkout.ResultSucceeded:
		fmt.Fprintf(w, "Payment confirmed for %s #%d", out.Kind, out.ID)
		if out.Receipt.TransactionID != "" {
			fmt.Fprintf(w, " (%s, transaction %s)", out.Receipt.PaymentMethod, out.Receipt.TransactionID)
		}
		fmt.Fprintln(w)
		return nil
	case checkout.ResultCancelled:
		fmt.Fprintf(w, "Stopped watching %s #%d. It stays unpaid.\n", out.Kind, out.ID)
		return nil
	}
	if out.Compensated {
		fmt.Fprintf(w, "Payment %s. %s #%d was removed.\n", out.Result, out.Kind, out.ID)
	} else {
		fmt.Fprintf(w, "Payment %s. Removing %s #%d failed; remove it by hand.\n", out.Result, out.Kind, out.ID)
	}
	if out.Err != nil {
		return fmt.Errorf("payment %s: %w", out.Result, out.Err)
	}
	return fmt.Errorf("payment %s", out.Result)
}
