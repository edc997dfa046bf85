package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrAppointmentNotResolved is returned when the backend accepted a booking
// but its id could not be determined.
var ErrAppointmentNotResolved = errors.New("api: created appointment not found")

// ListAppointments returns every appointment; the availability engine diffs
// the slot grid against it.
func (c *Client) ListAppointments(ctx context.Context) ([]Appointment, error) {
	var appts []Appointment
	if err := c.doJSON(ctx, http.MethodGet, "/api/LichHen/get-all-lich-hen", authOptional, nil, &appts); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// ListCustomerAppointments returns the signed-in customer's appointments.
func (c *Client) ListCustomerAppointments(ctx context.Context) ([]Appointment, error) {
	var appts []Appointment
	if err := c.doJSON(ctx, http.MethodGet, "/api/LichHen/get-all-lich-hen-khach-hang", authRequired, nil, &appts); err != nil {
		return nil, fmt.Errorf("list customer appointments: %w", err)
	}
	return appts, nil
}

// CreateAppointment books an appointment and returns its id.
func (c *Client) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (int64, error) {
	var resp struct {
		Data FlexID `json:"data"`
		ID   FlexID `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/LichHen/create-lich-hen", authRequired, req, &resp); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &syntaxErr) && !errors.As(err, &typeErr) {
			return 0, fmt.Errorf("create appointment: %w", err)
		}
	}
	if resp.Data != 0 {
		return int64(resp.Data), nil
	}
	if resp.ID != 0 {
		return int64(resp.ID), nil
	}
	return c.resolveCreatedAppointment(ctx, req)
}

// resolveCreatedAppointment finds the newest appointment matching the request
// when the create response carries no id.
func (c *Client) resolveCreatedAppointment(ctx context.Context, req CreateAppointmentRequest) (int64, error) {
	appts, err := c.ListAppointments(ctx)
	if err != nil {
		return 0, fmt.Errorf("create appointment: resolve id: %w", err)
	}
	var best int64
	for _, a := range appts {
		if a.DoctorID != req.DoctorID || a.ServiceID != req.ServiceID {
			continue
		}
		if !a.ScheduledAt.Equal(req.ScheduledAt.Time) {
			continue
		}
		if a.ID > best {
			best = a.ID
		}
	}
	if best == 0 {
		return 0, fmt.Errorf("create appointment: %w", ErrAppointmentNotResolved)
	}
	c.logger.Debug("resolved created appointment by lookup", "appointment_id", best)
	return best, nil
}

// CancelAppointment marks an appointment cancelled on the backend.
func (c *Client) CancelAppointment(ctx context.Context, id int64) error {
	path := withQuery("/api/LichHen/update-huy-lich-hen", idQuery("id", id))
	if err := c.doJSON(ctx, http.MethodPut, path, authRequired, nil, nil); err != nil {
		return fmt.Errorf("cancel appointment %d: %w", id, err)
	}
	return nil
}

// DeleteAppointment removes an appointment. Used as the compensating step
// when payment fails.
func (c *Client) DeleteAppointment(ctx context.Context, id int64) error {
	path := withQuery("/api/LichHen/delete-lich-hen", idQuery("keyId", id))
	if err := c.doJSON(ctx, http.MethodDelete, path, authRequired, nil, nil); err != nil {
		return fmt.Errorf("delete appointment %d: %w", id, err)
	}
	return nil
}

// paymentURL accepts both {"url":"..."} and {"url":{"result":"..."}}.
type paymentURL string

func (u *paymentURL) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*u = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = paymentURL(s)
		return nil
	}
	var wrapped struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*u = paymentURL(wrapped.Result)
	return nil
}

// RequestAppointmentPayment asks the backend for a payment page URL. An empty
// string means the backend returned no URL.
func (c *Client) RequestAppointmentPayment(ctx context.Context, appointmentID int64) (string, error) {
	path := withQuery("/api/ThanhToanDV/thanh-toan-mobile-by-id", idQuery("maLichHen", appointmentID))
	var resp struct {
		URL paymentURL `json:"url"`
	}
	if err := c.doJSON(ctx, http.MethodPost, path, authRequired, struct{}{}, &resp); err != nil {
		return "", fmt.Errorf("request appointment payment: %w", err)
	}
	return string(resp.URL), nil
}

// GetAppointmentPayment returns the payment record, or nil when none exists yet.
func (c *Client) GetAppointmentPayment(ctx context.Context, appointmentID int64) (*PaymentRecord, error) {
	path := withQuery("/api/ThanhToanDV/get-thanh-toan-by-id-lich-hen", idQuery("maLichHen", appointmentID))
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, path, authRequired, nil, &raw); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get appointment payment: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" || string(raw) == `""` {
		return nil, nil
	}
	var record PaymentRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("get appointment payment: decode: %w", err)
	}
	if record.empty() {
		return nil, nil
	}
	return &record, nil
}
