package checkout

import (
	"context"
	"errors"

	"github.com/medcare-vn/medcare-mobile/internal/api"
)

// AppointmentPayments is the slice of the API client used to pay for an
// appointment.
type AppointmentPayments interface {
	RequestAppointmentPayment(ctx context.Context, appointmentID int64) (string, error)
	GetAppointmentPayment(ctx context.Context, appointmentID int64) (*api.PaymentRecord, error)
	DeleteAppointment(ctx context.Context, id int64) error
}

// AppointmentGateway pays for a booked appointment. A payment record means
// the payment went through; no record means it has not yet.
type AppointmentGateway struct {
	client AppointmentPayments
}

// NewAppointmentGateway pays for appointments through client.
func NewAppointmentGateway(client AppointmentPayments) *AppointmentGateway {
	return &AppointmentGateway{client: client}
}

func (g *AppointmentGateway) Kind() string { return "appointment" }

func (g *AppointmentGateway) RequestURL(ctx context.Context, id int64) (string, error) {
	return g.client.RequestAppointmentPayment(ctx, id)
}

func (g *AppointmentGateway) Check(ctx context.Context, id int64) (CheckResult, error) {
	record, err := g.client.GetAppointmentPayment(ctx, id)
	if err != nil {
		return CheckResult{}, err
	}
	if record == nil {
		return CheckResult{Status: StatusPending}, nil
	}
	return CheckResult{
		Status: StatusSucceeded,
		Receipt: Receipt{
			PaymentMethod: record.PaymentMethod,
			OrderID:       record.OrderID,
			TransactionID: record.Transaction(),
		},
	}, nil
}

func (g *AppointmentGateway) Compensate(ctx context.Context, id int64) error {
	return ignoreMissing(g.client.DeleteAppointment(ctx, id))
}

// InvoicePayments is the slice of the API client used to pay for an order.
type InvoicePayments interface {
	RequestInvoicePayment(ctx context.Context, invoiceIDs []int64, addressID int64, note string) (string, error)
	ListCustomerInvoices(ctx context.Context) ([]api.Invoice, error)
	DeleteInvoice(ctx context.Context, id int64) error
}

// InvoiceGateway pays for one pharmacy invoice delivered to addressID.
type InvoiceGateway struct {
	client    InvoicePayments
	addressID int64
	note      string
}

// NewInvoiceGateway pays for invoices through client.
func NewInvoiceGateway(client InvoicePayments, addressID int64, note string) *InvoiceGateway {
	return &InvoiceGateway{client: client, addressID: addressID, note: note}
}

func (g *InvoiceGateway) Kind() string { return "invoice" }

func (g *InvoiceGateway) RequestURL(ctx context.Context, id int64) (string, error) {
	return g.client.RequestInvoicePayment(ctx, []int64{id}, g.addressID, g.note)
}

// Check looks the invoice up in the customer's list. A paid flag means
// success; an invoice that vanished was rejected by the backend.
func (g *InvoiceGateway) Check(ctx context.Context, id int64) (CheckResult, error) {
	invoices, err := g.client.ListCustomerInvoices(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	for _, inv := range invoices {
		if inv.ID != id {
			continue
		}
		if inv.Paid() {
			return CheckResult{Status: StatusSucceeded}, nil
		}
		return CheckResult{Status: StatusPending}, nil
	}
	return CheckResult{Status: StatusFailed, Reason: "invoice no longer exists"}, nil
}

func (g *InvoiceGateway) Compensate(ctx context.Context, id int64) error {
	return ignoreMissing(g.client.DeleteInvoice(ctx, id))
}

// ignoreMissing treats an already deleted record as compensated.
func ignoreMissing(err error) error {
	if errors.Is(err, api.ErrNotFound) {
		return nil
	}
	return err
}
