// Package purchase turns the local cart into a paid pharmacy order.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/internal/cart"
	"github.com/medcare-vn/medcare-mobile/internal/checkout"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

var purchaseTracer = otel.Tracer("medcare.internal.purchase")

var (
	ErrEmptyCart = errors.New("purchase: cart is empty")
	ErrNoAddress = errors.New("purchase: a delivery address is required")
)

// StaleCartError lists cart lines that no longer match the catalog. The
// cart snapshots have been refreshed; the customer must confirm again.
type StaleCartError struct {
	Discrepancies []cart.Discrepancy
}

func (e *StaleCartError) Error() string {
	parts := make([]string, 0, len(e.Discrepancies))
	for _, d := range e.Discrepancies {
		parts = append(parts, d.String())
	}
	return "purchase: cart changed: " + strings.Join(parts, "; ")
}

// Cart is the slice of the cart store an order needs.
type Cart interface {
	Revalidate(ctx context.Context, catalog cart.Catalog) ([]cart.Line, []cart.Discrepancy, error)
	Clear(ctx context.Context) error
}

// Orders is the slice of the API client an order needs.
type Orders interface {
	cart.Catalog
	checkout.InvoicePayments
	CreateInvoice(ctx context.Context, req api.CreateInvoiceRequest) (int64, error)
	CreateDrugLine(ctx context.Context, invoiceID, drugID int64, quantity int) error
	CreateDeviceLine(ctx context.Context, invoiceID, deviceID int64, quantity int) error
}

// Payments starts a payment session for a created record.
type Payments interface {
	Begin(ctx context.Context, gw checkout.Gateway, id int64, opts ...checkout.SessionOption) (*checkout.Session, error)
}

// Order is a created invoice with its running payment.
type Order struct {
	InvoiceID int64
	Total     api.Money
	Lines     []cart.Line
	Session   *checkout.Session
}

type Service struct {
	cart     Cart
	orders   Orders
	payments Payments
	logger   *logging.Logger
}

func NewService(c Cart, orders Orders, payments Payments, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{cart: c, orders: orders, payments: payments, logger: logger}
}

// PlaceOrder checks the cart against the live catalog, creates the invoice
// and its lines and starts the payment. The cart is cleared once the payment
// is confirmed.
func (s *Service) PlaceOrder(ctx context.Context, addressID int64, note string, opts ...checkout.SessionOption) (*Order, error) {
	if addressID <= 0 {
		return nil, ErrNoAddress
	}
	ctx, span := purchaseTracer.Start(ctx, "purchase.place_order")
	defer span.End()

	lines, stale, err := s.cart.Revalidate(ctx, s.orders)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(stale) > 0 {
		err := &StaleCartError{Discrepancies: stale}
		span.RecordError(err)
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	total := cart.Total(lines)
	span.SetAttributes(
		attribute.Int("medcare.cart_lines", len(lines)),
		attribute.String("medcare.order_total", strconv.FormatInt(int64(total), 10)),
	)

	invoiceID, err := s.orders.CreateInvoice(ctx, api.CreateInvoiceRequest{AddressID: addressID, Note: note, Total: total})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("purchase: create invoice: %w", err)
	}
	s.logger.Info("invoice created", "invoice_id", invoiceID, "lines", len(lines), "total", int64(total))

	for _, line := range lines {
		if err := s.createLine(ctx, invoiceID, line); err != nil {
			span.RecordError(err)
			s.discard(ctx, invoiceID)
			return nil, err
		}
	}

	gw := checkout.NewInvoiceGateway(s.orders, addressID, note)
	opts = append([]checkout.SessionOption{checkout.OnSuccess(s.clearCart)}, opts...)
	session, err := s.payments.Begin(ctx, gw, invoiceID, opts...)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &Order{InvoiceID: invoiceID, Total: total, Lines: lines, Session: session}, nil
}

func (s *Service) createLine(ctx context.Context, invoiceID int64, line cart.Line) error {
	var err error
	switch line.Type {
	case api.ProductDrug:
		err = s.orders.CreateDrugLine(ctx, invoiceID, line.ProductID, line.Quantity)
	case api.ProductDevice:
		err = s.orders.CreateDeviceLine(ctx, invoiceID, line.ProductID, line.Quantity)
	default:
		err = fmt.Errorf("%w: type %q", cart.ErrInvalidProduct, line.Type)
	}
	if err != nil {
		return fmt.Errorf("purchase: add %s %d to invoice %d: %w", line.Type, line.ProductID, invoiceID, err)
	}
	return nil
}

// discard removes a half-built invoice. Failures are only logged.
func (s *Service) discard(ctx context.Context, invoiceID int64) {
	if err := s.orders.DeleteInvoice(context.WithoutCancel(ctx), invoiceID); err != nil {
		s.logger.Error("could not delete incomplete invoice", "invoice_id", invoiceID, "error", err)
	}
}

func (s *Service) clearCart(ctx context.Context, out checkout.Outcome) {
	if err := s.cart.Clear(ctx); err != nil {
		s.logger.Error("cart not cleared after payment", "invoice_id", out.ID, "error", err)
		return
	}
	s.logger.Info("cart cleared after payment", "invoice_id", out.ID)
}
