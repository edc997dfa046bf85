// Package sandbox is an in-memory stand-in for the clinic backend. It serves
// the same endpoints the API client calls, plus a fake payment page.
package sandbox

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medcare-vn/medcare-mobile/internal/api"
	httpmiddleware "github.com/medcare-vn/medcare-mobile/internal/http/middleware"
	"github.com/medcare-vn/medcare-mobile/internal/observability/metrics"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

const tokenTTL = 24 * time.Hour

// Options configure a sandbox Handler.
type Options struct {
	JWTSecret string
	// PublicURL prefixes payment links. Empty means derive it from the request.
	PublicURL string
	Metrics   *metrics.HTTPMetrics
	Gatherer  prometheus.Gatherer
	Now       func() time.Time
	Logger    *logging.Logger
}

// Handler serves the sandbox backend.
type Handler struct {
	data      *Data
	secret    string
	publicURL string
	metrics   *metrics.HTTPMetrics
	gatherer  prometheus.Gatherer
	now       func() time.Time
	logger    *logging.Logger
}

func NewHandler(data *Data, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		data:      data,
		secret:    opts.JWTSecret,
		publicURL: strings.TrimRight(strings.TrimSpace(opts.PublicURL), "/"),
		metrics:   opts.Metrics,
		gatherer:  opts.Gatherer,
		now:       opts.Now,
		logger:    opts.Logger,
	}
}

// Routes mounts every backend endpoint, the payment pages and /metrics.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(httpmiddleware.RequestLogger(h.logger, h.metrics))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	r.Mount("/pay", h.paymentRoutes())

	r.Route("/api", func(r chi.Router) {
		r.Post("/Authentication/login", h.login)
		r.Post("/Authentication/create-khach-hang", h.register)

		r.Group(func(public chi.Router) {
			public.Use(httpmiddleware.CustomerJWT(h.secret, false))
			public.Get("/BacSi/get-all-bac-si", h.listDoctors)
			public.Get("/BacSi/search-bac-si", h.searchDoctors)
			public.Get("/BacSi/get-bac-si-by-id", h.getDoctor)
			public.Get("/CTBacSi/get-all-ct-bac-si", h.listDoctorSpecialties)
			public.Get("/ChuyenKhoa/get-all-chuyen-khoa", h.listSpecialties)
			public.Get("/DichVu/get-all-dich-vu", h.listServices)
			public.Get("/DichVu/get-dich-vu-by-id", h.getService)
			public.Get("/DichVu/get-all-dich-vu-theo-loai-theo-chuyen-khoa", h.listServicesByCategory)
			public.Get("/DichVu/search-dich-vu", h.searchServices)
			public.Get("/DanhGia/get-sao-danh-gia", h.getRating)
			public.Get("/DanhGia/get-all-danh-gia-by-ma-dich-vu", h.listServiceReviews)
			public.Get("/LichLamViec/get-all-lich-lam-viec", h.listSchedules)
			public.Get("/LichHen/get-all-lich-hen", h.listAppointments)
			public.Get("/Thuoc/get-all-thuoc", h.listDrugs)
			public.Get("/Thuoc/get-thuoc-by-id", h.getDrug)
			public.Get("/ThietBiYTe/get-all-thiet-bi-y-te", h.listDevices)
			public.Get("/ThietBiYTe/get-thiet-bi-y-te-by-id", h.getDevice)

			// staff actions; the sandbox has no staff accounts
			public.Post("/KetQuaDichVu/create-ket-qua-dich-vu", h.createResult)
			public.Put("/DanhGia/duyet-danh-gia", h.approveReview)
		})

		r.Group(func(private chi.Router) {
			private.Use(httpmiddleware.CustomerJWT(h.secret, true))
			private.Get("/KhachHang/get-tt-khach-hang", h.currentCustomer)

			private.Get("/LichHen/get-all-lich-hen-khach-hang", h.listCustomerAppointments)
			private.Post("/LichHen/create-lich-hen", h.createAppointment)
			private.Put("/LichHen/update-huy-lich-hen", h.cancelAppointment)
			private.Delete("/LichHen/delete-lich-hen", h.deleteAppointment)
			private.Post("/ThanhToanDV/thanh-toan-mobile-by-id", h.requestAppointmentPayment)
			private.Get("/ThanhToanDV/get-thanh-toan-by-id-lich-hen", h.getAppointmentPayment)

			private.Get("/DiaChi/get-all-dia-chi", h.listAddresses)
			private.Get("/DiaChi/get-dia-chi-by-id", h.getAddress)
			private.Post("/DiaChi/create-dia-chi", h.createAddress)
			private.Put("/DiaChi/update-dia-chi", h.updateAddress)
			private.Delete("/DiaChi/delete-dia-chi", h.deleteAddress)

			private.Post("/HoaDon/create-hoa-don", h.createInvoice)
			private.Get("/HoaDon/get-all-hoa-don-khach-hang", h.listInvoices)
			private.Delete("/HoaDon/delete-hoa-don", h.deleteInvoice)
			private.Post("/CTMuaThuoc/create-ct-mua-thuoc", h.createDrugLine)
			private.Post("/CTMuaThietBiYTe/create-ct-mua-thiet-bi-y-te", h.createDeviceLine)
			private.Post("/ThanhToanThuocThietBi/thanh-toan-by-id-hoa-don-mobile", h.requestInvoicePayment)
			private.Get("/HoaDon/get-all-sp-by-ma-hd", h.listInvoiceItems)

			private.Get("/KetQuaDichVu/get-all-ket-qua-dich-vu", h.listResults)
			private.Get("/DanhGia/get-all-danh-gia-chua-duyet", h.listPendingReviews)
			private.Post("/DanhGia/create-danh-gia", h.createReview)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errForbidden):
		status = http.StatusForbidden
	case errors.Is(err, errConflict), errors.Is(err, errNotPending), errors.Is(err, errNotUnvisited), errors.Is(err, errDuplicate):
		status = http.StatusConflict
	case errors.Is(err, errBadRequest), errors.Is(err, errOutOfStock):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

func queryID(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		http.Error(w, "missing "+key, http.StatusBadRequest)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid "+key, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func customerID(r *http.Request) int64 {
	id, _ := httpmiddleware.CustomerIDFromContext(r.Context())
	return id
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) baseURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	acct, ok := h.data.login(body.Username, body.Password)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Sai tên đăng nhập hoặc mật khẩu"})
		return
	}
	token, err := httpmiddleware.IssueCustomerToken(h.secret, acct.ID, tokenTTL, h.now())
	if err != nil {
		h.logger.Error("sandbox token signing failed", "error", err)
		http.Error(w, "token signing failed", http.StatusInternalServerError)
		return
	}
	h.logger.Info("sandbox login", "customer_id", acct.ID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": token})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var reg api.Registration
	if !decodeBody(w, r, &reg) {
		return
	}
	id, err := h.data.register(reg)
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("sandbox customer registered", "customer_id", id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": id})
}

func (h *Handler) currentCustomer(w http.ResponseWriter, r *http.Request) {
	c, ok := h.data.customer(customerID(r))
	if !ok {
		http.Error(w, "unknown customer", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) listDoctors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.data.listDoctors(""))
}

func (h *Handler) searchDoctors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.data.listDoctors(r.URL.Query().Get("searchKey")))
}

func (h *Handler) getDoctor(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}
	doc, found := h.data.doctor(id)
	if !found {
		writeError(w, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) listDoctorSpecialties(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.data.listLinks())
}

func (h *Handler) listSpecialties(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.data.listSpecialties())
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.data.listServices(nil))
}

func (h *Handler) getService(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}
	svc, found := h.data.service(id)
	if !found {
		writeError(w, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (h *Handler) listServicesByCategory(w http.ResponseWriter, r *http.Request) {
	category, ok := queryID(w, r, "loaiDichVuId")
	if !ok {
		return
	}
	specialty, ok := queryID(w, r, "chuyenKhoaId")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.data.listServices(func(s api.Service) bool {
		return int64(s.Category) == category && s.SpecialtyID == specialty
	}))
}

func (h *Handler) searchServices(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("searchKey")
	writeJSON(w, http.StatusOK, h.data.listServices(func(s api.Service) bool {
		return matches(s.Name, key)
	}))
}

func (h *Handler) getRating(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "maDichVu")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.data.rating(id))
}

func (h *Handler) listSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.data.listSchedules())
}

func (h *Handler) listDrugs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.data.listDrugs())
}

func (h *Handler) getDrug(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}
	p, found := h.data.drug(id)
	if !found {
		writeError(w, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.data.listDevices())
}

func (h *Handler) getDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}
	p, found := h.data.device(id)
	if !found {
		writeError(w, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.data.listAppointments(0))
}

func (h *Handler) listCustomerAppointments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.data.listAppointments(customerID(r)))
}

func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req api.CreateAppointmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := h.data.createAppointment(customerID(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("sandbox appointment created", "appointment_id", id, "doctor_id", req.DoctorID, "scheduled_at", req.ScheduledAt.String())
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": id})
}

func (h *Handler) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}
	if err := h.data.cancelAppointment(customerID(r), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "keyId")
	if !ok {
		return
	}
	if err := h.data.deleteAppointment(customerID(r), id); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("sandbox appointment deleted", "appointment_id", id)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) requestAppointmentPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "maLichHen")
	if !ok {
		return
	}
	if _, err := h.data.appointmentCharge(customerID(r), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": h.payURL(r, kindAppointment, id)})
}

func (h *Handler) getAppointmentPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "maLichHen")
	if !ok {
		return
	}
	rec, err := h.data.appointmentPayment(customerID(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if rec == nil {
		// the backend answers an unpaid appointment with an empty body
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.data.listAddresses(customerID(r)))
}

func (h *Handler) getAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}
	addr, err := h.data.address(customerID(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addr)
}

func (h *Handler) createAddress(w http.ResponseWriter, r *http.Request) {
	var body api.Address
	if !decodeBody(w, r, &body) {
		return
	}
	id, err := h.data.createAddress(customerID(r), body.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": id})
}

func (h *Handler) updateAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}
	var body api.Address
	if !decodeBody(w, r, &body) {
		return
	}
	body.ID = id
	if err := h.data.updateAddress(customerID(r), body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) deleteAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "keyId")
	if !ok {
		return
	}
	if err := h.data.deleteAddress(customerID(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req api.CreateInvoiceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := h.data.createInvoice(customerID(r), req, h.now())
	if err != nil {
		writeError(w, err)
		return
	}
	// invoice ids travel as numeric strings
	writeJSON(w, http.StatusOK, map[string]string{"data": strconv.FormatInt(id, 10)})
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.data.listInvoices(customerID(r)))
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "keyId")
	if !ok {
		return
	}
	if err := h.data.deleteInvoice(customerID(r), id); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("sandbox invoice deleted", "invoice_id", id)
	w.WriteHeader(http.StatusOK)
}

type lineBody struct {
	InvoiceID int64 `json:"maHoaDon"`
	Quantity  int   `json:"soLuong"`
	DrugID    int64 `json:"maThuoc"`
	DeviceID  int64 `json:"maThietBiYTe"`
}

func (h *Handler) createDrugLine(w http.ResponseWriter, r *http.Request) {
	var body lineBody
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.data.addInvoiceLine(customerID(r), body.InvoiceID, api.ProductDrug, body.DrugID, body.Quantity); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) createDeviceLine(w http.ResponseWriter, r *http.Request) {
	var body lineBody
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.data.addInvoiceLine(customerID(r), body.InvoiceID, api.ProductDevice, body.DeviceID, body.Quantity); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) requestInvoicePayment(w http.ResponseWriter, r *http.Request) {
	var ids []int64
	if !decodeBody(w, r, &ids) {
		return
	}
	if len(ids) != 1 {
		http.Error(w, "exactly one invoice id is supported", http.StatusBadRequest)
		return
	}
	if _, err := h.data.invoiceCharge(customerID(r), ids[0]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url": map[string]string{"result": h.payURL(r, kindInvoice, ids[0])},
	})
}

func (h *Handler) listInvoiceItems(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "maHD")
	if !ok {
		return
	}
	items, err := h.data.invoiceItems(customerID(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) createResult(w http.ResponseWriter, r *http.Request) {
	var body api.ServiceResult
	if !decodeBody(w, r, &body) {
		return
	}
	id, err := h.data.recordResult(body.AppointmentID, body.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("sandbox result recorded", "result_id", id, "appointment_id", body.AppointmentID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": id})
}

func (h *Handler) listResults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.data.listResults(customerID(r)))
}

func (h *Handler) listServiceReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "maDichVu")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.data.listReviews(func(rev *reviewRow) bool {
		return rev.approved && rev.serviceID == id
	}))
}

func (h *Handler) listPendingReviews(w http.ResponseWriter, r *http.Request) {
	customer := customerID(r)
	writeJSON(w, http.StatusOK, h.data.listReviews(func(rev *reviewRow) bool {
		return !rev.approved && rev.CreatedBy == customer
	}))
}

const maxReviewForm = 8 << 20

func (h *Handler) createReview(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxReviewForm); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	resultID, err := strconv.ParseInt(r.FormValue("maKetQuaDichVu"), 10, 64)
	if err != nil {
		http.Error(w, "invalid maKetQuaDichVu", http.StatusBadRequest)
		return
	}
	stars, err := strconv.Atoi(r.FormValue("soSaoDanhGia"))
	if err != nil {
		http.Error(w, "invalid soSaoDanhGia", http.StatusBadRequest)
		return
	}
	id, err := h.data.createReview(customerID(r), resultID, stars, r.FormValue("noiDungDanhGia"), h.now())
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("sandbox review pending", "review_id", id, "result_id", resultID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": id})
}

func (h *Handler) approveReview(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r, "id")
	if !ok {
		return
	}
	if err := h.data.approveReview(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
