package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/medcare-vn/medcare-mobile/internal/observability/metrics"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

func echoCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := CustomerIDFromContext(r.Context())
	if !ok {
		w.Write([]byte("anonymous"))
		return
	}
	w.Write([]byte(strings.Repeat("c", int(id))))
}

func signed(t *testing.T, secret string, id int64, ttl time.Duration) string {
	t.Helper()
	tok, err := IssueCustomerToken(secret, id, ttl, time.Now())
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestCustomerJWTRequiredRejectsMissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/DiaChi/get-all-dia-chi", nil)
	rec := httptest.NewRecorder()

	CustomerJWT("secret", true)(http.HandlerFunc(echoCustomer)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestCustomerJWTRejectsWrongSecretAndExpiry(t *testing.T) {
	for name, tok := range map[string]string{
		"wrong secret": signed(t, "other", 3, time.Hour),
		"expired":      signed(t, "secret", 3, -time.Minute),
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()

		CustomerJWT("secret", true)(http.HandlerFunc(echoCustomer)).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected status %d, got %d", name, http.StatusUnauthorized, rec.Code)
		}
	}
}

func TestCustomerJWTAcceptsBearerAndBareToken(t *testing.T) {
	tok := signed(t, "secret", 3, time.Hour)
	for _, header := range []string{"Bearer " + tok, tok} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()

		CustomerJWT("secret", true)(http.HandlerFunc(echoCustomer)).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if rec.Body.String() != "ccc" {
			t.Fatalf("expected customer 3 in context, got %q", rec.Body.String())
		}
	}
}

func TestCustomerJWTOptionalPassesAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()

	CustomerJWT("secret", false)(http.HandlerFunc(echoCustomer)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
		t.Fatalf("expected anonymous pass-through, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestParseCustomerTokenNeedsNumericSubject(t *testing.T) {
	if _, err := ParseCustomerToken("secret", signed(t, "secret", 0, time.Hour)); err == nil {
		t.Fatalf("expected error for zero customer id")
	}
}

func TestRequestLoggerCountsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(RequestLogger(logging.Discard(), m))
	r.Get("/pay/{kind}/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/pay/invoice/12", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "req-1" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found bool
	for _, fam := range families {
		if fam.GetName() != "medcare_sandbox_http_requests_total" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["route"] == "/pay/{kind}/{id}" && labels["status"] == "418" && metric.GetCounter().GetValue() == 1 {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected request counted under its route pattern")
	}
}
