package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcare-vn/medcare-mobile/internal/account"
	"github.com/medcare-vn/medcare-mobile/internal/booking"
	"github.com/medcare-vn/medcare-mobile/internal/cart"
	"github.com/medcare-vn/medcare-mobile/internal/checkout"
	appconfig "github.com/medcare-vn/medcare-mobile/internal/config"
	"github.com/medcare-vn/medcare-mobile/internal/observability/metrics"
	"github.com/medcare-vn/medcare-mobile/internal/purchase"
	"github.com/medcare-vn/medcare-mobile/internal/sandbox"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	reg := prometheus.NewRegistry()
	h := sandbox.NewHandler(sandbox.NewData(time.Now().UTC()), sandbox.Options{
		JWTSecret: "cli-secret",
		Metrics:   metrics.NewHTTPMetrics(reg),
		Gatherer:  reg,
		Logger:    logging.Discard(),
	})
	ts := httptest.NewServer(h.Routes())
	t.Cleanup(ts.Close)

	cfg := &appconfig.Config{
		APIBaseURL:              ts.URL,
		APITimeout:              5 * time.Second,
		Timezone:                "UTC",
		BookingWindowDays:       7,
		HomeVisitCity:           "Thành phố Hồ Chí Minh",
		PaymentPollInterval:     5 * time.Millisecond,
		PaymentPollMaxAttempts:  200,
		PaymentPollTimeout:      5 * time.Second,
		CompensationMaxAttempts: 2,
		CompensationBaseDelay:   time.Millisecond,
		StoreBackend:            "file",
		StoreFile:               filepath.Join(t.TempDir(), "store.json"),
	}
	paying := checkout.OpenerFunc(func(_ context.Context, url string) error {
		resp, err := http.Post(url+"/complete", "application/x-www-form-urlencoded", nil)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	})
	return &app{cfg: cfg, logger: logging.Discard(), opener: paying}
}

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	root := newRootCmd(a)
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func mustRun(t *testing.T, a *app, args ...string) string {
	t.Helper()
	out, err := run(t, a, args...)
	require.NoError(t, err, out)
	return out
}

func tomorrow() string {
	return time.Now().UTC().AddDate(0, 0, 1).Format(dateLayout)
}

func TestCLI_LoginAndBrowse(t *testing.T) {
	a := newTestApp(t)

	_, err := run(t, a, "login", "an", "--password", "nope")
	require.Error(t, err)

	out := mustRun(t, a, "login", "an", "--password", "123456")
	assert.Contains(t, out, "Signed in as Nguyễn Văn An")

	out = mustRun(t, a, "doctors", "--search", "tuấn")
	assert.Contains(t, out, "BS. Lê Minh Tuấn")
	assert.NotContains(t, out, "Phạm Thu Hà")

	out = mustRun(t, a, "services", "--category", "online", "--ratings")
	assert.Contains(t, out, "Tư vấn nội khoa trực tuyến")
	assert.NotContains(t, out, "tại nhà")

	out = mustRun(t, a, "addresses", "list")
	assert.Contains(t, out, "Quận 1")

	out = mustRun(t, a, "slots", "--service", "3")
	assert.Contains(t, out, "BS. Hoàng Quốc Việt")
	assert.NotContains(t, out, "Lê Minh Tuấn")
}

func TestCLI_BookPayAndCancel(t *testing.T) {
	a := newTestApp(t)
	mustRun(t, a, "login", "an", "-p", "123456")

	out := mustRun(t, a, "book", "--service", "2", "--doctor", "1", "--date", tomorrow(), "--time", "09:00", "--note", "ho khan")
	assert.Contains(t, out, "Payment confirmed for appointment")
	m := regexp.MustCompile(`Appointment #(\d+) booked`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)

	out = mustRun(t, a, "slots", "--doctor", "1", "--date", tomorrow())
	assert.Regexp(t, `Unavailable: .*09:00`, out)

	_, err := run(t, a, "book", "--service", "2", "--doctor", "1", "--date", tomorrow(), "--time", "09:00")
	require.Error(t, err, "a taken slot cannot be booked again")

	out = mustRun(t, a, "appointments")
	assert.Contains(t, out, "Upcoming (1)")

	out = mustRun(t, a, "cancel", m[1])
	assert.Contains(t, out, "cancelled")
	_, err = run(t, a, "cancel", m[1])
	require.Error(t, err)

	out = mustRun(t, a, "appointments")
	assert.Contains(t, out, "Cancelled (1)")
}

func TestCLI_HomeVisitUsesDefaultAddress(t *testing.T) {
	a := newTestApp(t)
	mustRun(t, a, "login", "an", "-p", "123456")

	out := mustRun(t, a, "book", "--service", "1", "--doctor", "1", "--date", tomorrow(), "--time", "13:30")
	assert.Contains(t, out, "Payment confirmed")

	out = mustRun(t, a, "appointments")
	assert.Contains(t, out, "Nguyễn Trãi")

	_, err := run(t, a, "book", "--service", "1", "--doctor", "2", "--date", tomorrow(), "--time", "08:00",
		"--address", "8 Tràng Tiền, Phường Tràng Tiền, Quận Hoàn Kiếm, Thành phố Hà Nội")
	require.Error(t, err, "home visits outside the service city are refused")
}

func TestCLI_CartAndCheckout(t *testing.T) {
	a := newTestApp(t)
	mustRun(t, a, "login", "an", "-p", "123456")

	mustRun(t, a, "cart", "add", "drug", "1", "2")
	mustRun(t, a, "cart", "add", "drug", "1")
	mustRun(t, a, "cart", "add", "device", "2")
	_, err := run(t, a, "cart", "add", "drug", "3", "6")
	require.ErrorIs(t, err, cart.ErrExceedsStock)

	out := mustRun(t, a, "cart", "set", "drug", "1", "500")
	assert.Contains(t, out, "x120", "set clamps to stock")
	mustRun(t, a, "cart", "set", "drug", "1", "3")

	out = mustRun(t, a, "cart", "list")
	assert.Contains(t, out, "395.000 đ")

	out = mustRun(t, a, "checkout", "--note", "giao buổi chiều")
	assert.Contains(t, out, "Payment confirmed for invoice")

	out = mustRun(t, a, "cart", "list")
	assert.Contains(t, out, "Cart is empty")

	out = mustRun(t, a, "orders")
	assert.Contains(t, out, "giao buổi chiều")
	m := regexp.MustCompile(`(?m)^(\d+)\s`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)

	out = mustRun(t, a, "orders", "show", m[1])
	assert.Contains(t, out, "Paracetamol 500mg")
	assert.Contains(t, out, "Nhiệt kế hồng ngoại")
	assert.Contains(t, out, "Deliver to: 12 Nguyễn Trãi")
	assert.Contains(t, out, "Total: 395.000 đ")

	_, err = run(t, a, "orders", "show", "99999")
	require.ErrorIs(t, err, purchase.ErrOrderNotFound)
}

func TestCLI_LogoutEndsSession(t *testing.T) {
	a := newTestApp(t)
	mustRun(t, a, "login", "binh", "-p", "123456")
	mustRun(t, a, "logout")

	_, err := run(t, a, "cart", "list")
	require.ErrorIs(t, err, cart.ErrSessionExpired)
}

func TestCLI_RegisterThenLogin(t *testing.T) {
	a := newTestApp(t)

	_, err := run(t, a, "register", "--name", "Lê Thị Cúc", "--email", "cuc@example", "-p", "123")
	require.ErrorIs(t, err, account.ErrInvalidRegistration)

	out := mustRun(t, a, "register", "--name", "Lê Thị Cúc", "--email", "cuc@example.vn", "-p", "matkhau1",
		"--phone", "0912345678", "--id-number", "079123456789", "--birthday", "1995-03-02", "--gender", "Nữ")
	assert.Contains(t, out, "medcare login cuc@example.vn")

	out = mustRun(t, a, "login", "cuc@example.vn", "-p", "matkhau1")
	assert.Contains(t, out, "Signed in as Lê Thị Cúc")

	out = mustRun(t, a, "orders")
	assert.Contains(t, out, "No orders yet.")
}

func TestCLI_ResultAndReview(t *testing.T) {
	a := newTestApp(t)
	mustRun(t, a, "login", "an", "-p", "123456")

	out := mustRun(t, a, "book", "--service", "2", "--doctor", "2", "--date", tomorrow(), "--time", "10:00")
	m := regexp.MustCompile(`Appointment #(\d+) booked`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)

	_, err := run(t, a, "review", m[1], "--stars", "5")
	require.ErrorIs(t, err, booking.ErrAppointmentNotFound)

	resp, err := http.Post(a.cfg.APIBaseURL+"/api/KetQuaDichVu/create-ket-qua-dich-vu", "application/json",
		strings.NewReader(`{"maLichHen":`+m[1]+`,"moTa":"Viêm họng nhẹ"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out = mustRun(t, a, "results")
	assert.Contains(t, out, "Viêm họng nhẹ")
	assert.Contains(t, out, "Tư vấn nội khoa trực tuyến")
	assert.Contains(t, out, "not reviewed")

	_, err = run(t, a, "review", m[1], "--stars", "7")
	require.ErrorIs(t, err, booking.ErrInvalidStars)

	out = mustRun(t, a, "review", m[1], "--stars", "5", "--text", "bác sĩ tận tình")
	assert.Contains(t, out, "once the clinic approves it")

	out = mustRun(t, a, "results")
	assert.Contains(t, out, "5/5 (pending)")

	_, err = run(t, a, "review", m[1], "--stars", "4")
	require.ErrorIs(t, err, booking.ErrAlreadyReviewed)

	out = mustRun(t, a, "reviews", "2")
	assert.Contains(t, out, "(5 ratings)")
	assert.Contains(t, out, "No written reviews yet.")
}
