package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

func (c *Client) ListAddresses(ctx context.Context) ([]Address, error) {
	var addrs []Address
	if err := c.doJSON(ctx, http.MethodGet, "/api/DiaChi/get-all-dia-chi", authRequired, nil, &addrs); err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	return addrs, nil
}

func (c *Client) GetAddress(ctx context.Context, id int64) (*Address, error) {
	path := withQuery("/api/DiaChi/get-dia-chi-by-id", idQuery("id", id))
	var addr Address
	if err := c.doJSON(ctx, http.MethodGet, path, authRequired, nil, &addr); err != nil {
		return nil, fmt.Errorf("get address %d: %w", id, err)
	}
	return &addr, nil
}

func (c *Client) CreateAddress(ctx context.Context, text string) error {
	body := map[string]string{"tenDiaChi": text}
	if err := c.doJSON(ctx, http.MethodPost, "/api/DiaChi/create-dia-chi", authRequired, body, nil); err != nil {
		return fmt.Errorf("create address: %w", err)
	}
	return nil
}

func (c *Client) UpdateAddress(ctx context.Context, addr Address) error {
	path := withQuery("/api/DiaChi/update-dia-chi", idQuery("id", addr.ID))
	if err := c.doJSON(ctx, http.MethodPut, path, authRequired, addr, nil); err != nil {
		return fmt.Errorf("update address %d: %w", addr.ID, err)
	}
	return nil
}

func (c *Client) DeleteAddress(ctx context.Context, id int64) error {
	path := withQuery("/api/DiaChi/delete-dia-chi", idQuery("keyId", id))
	if err := c.doJSON(ctx, http.MethodDelete, path, authRequired, nil, nil); err != nil {
		return fmt.Errorf("delete address %d: %w", id, err)
	}
	return nil
}

// CreateInvoice opens a pharmacy order and returns its id.
func (c *Client) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (int64, error) {
	var resp struct {
		Data FlexID `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/HoaDon/create-hoa-don", authRequired, req, &resp); err != nil {
		return 0, fmt.Errorf("create invoice: %w", err)
	}
	if resp.Data == 0 {
		return 0, fmt.Errorf("create invoice: response carried no invoice id")
	}
	return int64(resp.Data), nil
}

// CreateDrugLine adds a drug purchase line to an invoice.
func (c *Client) CreateDrugLine(ctx context.Context, invoiceID, drugID int64, quantity int) error {
	body := map[string]int64{"maHoaDon": invoiceID, "soLuong": int64(quantity), "maThuoc": drugID}
	if err := c.doJSON(ctx, http.MethodPost, "/api/CTMuaThuoc/create-ct-mua-thuoc", authRequired, body, nil); err != nil {
		return fmt.Errorf("create drug line: %w", err)
	}
	return nil
}

// CreateDeviceLine adds a medical device purchase line to an invoice.
func (c *Client) CreateDeviceLine(ctx context.Context, invoiceID, deviceID int64, quantity int) error {
	body := map[string]int64{"maHoaDon": invoiceID, "soLuong": int64(quantity), "maThietBiYTe": deviceID}
	if err := c.doJSON(ctx, http.MethodPost, "/api/CTMuaThietBiYTe/create-ct-mua-thiet-bi-y-te", authRequired, body, nil); err != nil {
		return fmt.Errorf("create device line: %w", err)
	}
	return nil
}

// RequestInvoicePayment asks for a payment page covering the given invoices.
func (c *Client) RequestInvoicePayment(ctx context.Context, invoiceIDs []int64, addressID int64, note string) (string, error) {
	q := url.Values{}
	q.Set("maDiaChi", strconv.FormatInt(addressID, 10))
	q.Set("ghiChu", note)
	path := withQuery("/api/ThanhToanThuocThietBi/thanh-toan-by-id-hoa-don-mobile", q)
	var resp struct {
		URL paymentURL `json:"url"`
	}
	if err := c.doJSON(ctx, http.MethodPost, path, authRequired, invoiceIDs, &resp); err != nil {
		return "", fmt.Errorf("request invoice payment: %w", err)
	}
	return string(resp.URL), nil
}

func (c *Client) ListCustomerInvoices(ctx context.Context) ([]Invoice, error) {
	var invoices []Invoice
	if err := c.doJSON(ctx, http.MethodGet, "/api/HoaDon/get-all-hoa-don-khach-hang", authRequired, nil, &invoices); err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return invoices, nil
}

// DeleteInvoice removes an unpaid invoice. Used as the compensating step
// when payment fails.
func (c *Client) DeleteInvoice(ctx context.Context, id int64) error {
	path := withQuery("/api/HoaDon/delete-hoa-don", idQuery("keyId", id))
	if err := c.doJSON(ctx, http.MethodDelete, path, authRequired, nil, nil); err != nil {
		return fmt.Errorf("delete invoice %d: %w", id, err)
	}
	return nil
}

// ListInvoiceItems returns the product lines of one order.
func (c *Client) ListInvoiceItems(ctx context.Context, invoiceID int64) ([]InvoiceItem, error) {
	path := withQuery("/api/HoaDon/get-all-sp-by-ma-hd", idQuery("maHD", invoiceID))
	var items []InvoiceItem
	if err := c.doJSON(ctx, http.MethodGet, path, authRequired, nil, &items); err != nil {
		return nil, fmt.Errorf("list invoice %d items: %w", invoiceID, err)
	}
	return items, nil
}
