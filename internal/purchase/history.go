package purchase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

var ErrOrderNotFound = errors.New("purchase: order not found")

// OrderStore reads placed orders.
type OrderStore interface {
	ListCustomerInvoices(ctx context.Context) ([]api.Invoice, error)
	ListInvoiceItems(ctx context.Context, invoiceID int64) ([]api.InvoiceItem, error)
	GetAddress(ctx context.Context, id int64) (*api.Address, error)
}

// OrderDetail is one paid order with its lines.
type OrderDetail struct {
	Invoice api.Invoice
	Items   []api.InvoiceItem
	// Address is empty when the delivery address has since been deleted.
	Address string
}

// Total sums the line subtotals.
func (d OrderDetail) Total() api.Money {
	var sum api.Money
	for _, it := range d.Items {
		sum += it.Subtotal
	}
	return sum
}

// History lists the customer's paid orders.
type History struct {
	store  OrderStore
	logger *logging.Logger
}

// NewHistory reads orders through store.
func NewHistory(store OrderStore, logger *logging.Logger) *History {
	if logger == nil {
		logger = logging.Default()
	}
	return &History{store: store, logger: logger}
}

// List returns paid orders, newest first. Unpaid invoices are payments still
// in flight or abandoned and are left out.
func (h *History) List(ctx context.Context) ([]api.Invoice, error) {
	invoices, err := h.store.ListCustomerInvoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("purchase: order history: %w", err)
	}
	paid := invoices[:0]
	for _, inv := range invoices {
		if inv.Paid() {
			paid = append(paid, inv)
		}
	}
	sort.SliceStable(paid, func(i, j int) bool {
		if paid[i].PurchasedAt.Equal(paid[j].PurchasedAt.Time) {
			return paid[i].ID > paid[j].ID
		}
		return paid[i].PurchasedAt.After(paid[j].PurchasedAt.Time)
	})
	return paid, nil
}

// Detail returns one of the customer's paid orders with its lines.
func (h *History) Detail(ctx context.Context, invoiceID int64) (*OrderDetail, error) {
	orders, err := h.List(ctx)
	if err != nil {
		return nil, err
	}
	var found *api.Invoice
	for i := range orders {
		if orders[i].ID == invoiceID {
			found = &orders[i]
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, invoiceID)
	}

	items, err := h.store.ListInvoiceItems(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("purchase: order %d: %w", invoiceID, err)
	}
	detail := &OrderDetail{Invoice: *found, Items: items}
	if found.AddressID != 0 {
		addr, err := h.store.GetAddress(ctx, found.AddressID)
		switch {
		case err == nil:
			detail.Address = addr.Text
		case errors.Is(err, api.ErrNotFound):
		default:
			h.logger.Warn("order address lookup failed", "invoice_id", invoiceID, "address_id", found.AddressID, "error", err)
		}
	}
	return detail, nil
}
