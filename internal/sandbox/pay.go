package sandbox

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/medcare-vn/medcare-mobile/internal/api"
)

const (
	kindAppointment = "appointment"
	kindInvoice     = "invoice"
)

const pageStyle = `<style>
      body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Cantarell,Noto Sans,sans-serif;max-width:680px;margin:40px auto;padding:0 16px;}
      .card{border:1px solid #e5e7eb;border-radius:12px;padding:18px;}
      .btn{display:inline-block;background:#111827;color:#fff;padding:12px 16px;border-radius:10px;text-decoration:none;border:0;cursor:pointer;}
      .btn.secondary{background:#9ca3af;}
      .muted{color:#6b7280;font-size:14px;}
    </style>`

func (h *Handler) payURL(r *http.Request, kind string, id int64) string {
	return fmt.Sprintf("%s/pay/%s/%d", h.baseURL(r), kind, id)
}

// paymentRoutes serve a fake gateway page. Nothing is charged; completing the
// form records the payment the client polls for.
func (h *Handler) paymentRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{kind}/{id}", h.handleCheckout)
	r.Post("/{kind}/{id}/complete", h.handleComplete)
	r.Post("/{kind}/{id}/cancel", h.handleCancel)
	return r
}

func payParams(w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	kind := chi.URLParam(r, "kind")
	if kind != kindAppointment && kind != kindInvoice {
		http.Error(w, "unknown payment kind", http.StatusNotFound)
		return "", 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return "", 0, false
	}
	return kind, id, true
}

func (h *Handler) charge(kind string, id int64) (api.Money, error) {
	if kind == kindAppointment {
		return h.data.appointmentCharge(0, id)
	}
	return h.data.invoiceCharge(0, id)
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := payParams(w, r)
	if !ok {
		return
	}
	amount, err := h.charge(kind, id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.metrics.ObservePayment(kind, "view")

	cancel := ""
	if kind == kindInvoice {
		cancel = fmt.Sprintf(`<form method="POST" action="/pay/%s/%d/cancel">
        <button class="btn secondary" type="submit">Cancel order</button>
      </form>`, kind, id)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Sandbox Checkout</title>
    %s
  </head>
  <body>
    <h1>Sandbox Checkout</h1>
    <div class="card">
      <p><strong>Amount:</strong> %s</p>
      <p class="muted">Sandbox payment page. No money moves.</p>
      <form method="POST" action="/pay/%s/%d/complete">
        <button class="btn" type="submit">Pay with VNPAY</button>
      </form>
      %s
      <p class="muted">%s #%d</p>
    </div>
  </body>
</html>`, pageStyle, html.EscapeString(amount.String()), kind, id, cancel, kind, id)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := payParams(w, r)
	if !ok {
		return
	}
	var err error
	if kind == kindAppointment {
		_, err = h.data.payAppointment(id)
	} else {
		err = h.data.payInvoice(id)
	}
	if err != nil {
		if !errors.Is(err, errNotFound) && !errors.Is(err, errNotPending) {
			h.logger.Error("sandbox payment completion failed", "error", err, "kind", kind, "id", id)
		}
		writeError(w, err)
		return
	}
	h.metrics.ObservePayment(kind, "complete")
	h.logger.Info("sandbox payment completed", "kind", kind, "id", id)
	h.resultPage(w, "Payment completed", "Your payment is recorded. Return to the app.")
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := payParams(w, r)
	if !ok {
		return
	}
	if kind != kindInvoice {
		http.Error(w, "only orders can be cancelled here", http.StatusMethodNotAllowed)
		return
	}
	if err := h.data.deleteInvoice(0, id); err != nil {
		writeError(w, err)
		return
	}
	h.metrics.ObservePayment(kind, "cancel")
	h.logger.Info("sandbox payment cancelled", "kind", kind, "id", id)
	h.resultPage(w, "Order cancelled", "The order was dropped and its stock released.")
}

func (h *Handler) resultPage(w http.ResponseWriter, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>%s</title>
    %s
  </head>
  <body>
    <h1>%s</h1>
    <div class="card"><p>%s</p></div>
  </body>
</html>`, html.EscapeString(title), pageStyle, html.EscapeString(title), html.EscapeString(message))
}
