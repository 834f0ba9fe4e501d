package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthz_AlwaysReturns200(t *testing.T) {
	h := New()

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestHealthz_ContentType(t *testing.T) {
	h := New()
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	ct := rec.Header().Get("Content-Type")
	if ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestReadyz_AllCheckersPass(t *testing.T) {
	h := New(
		Checker{Name: "catalog", Check: func(_ context.Context) error { return nil }},
		Checker{Name: "atlas", Check: func(_ context.Context) error { return nil }},
	)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if body.Checks["catalog"] != "ok" {
		t.Errorf("catalog check = %q, want %q", body.Checks["catalog"], "ok")
	}
	if body.Checks["atlas"] != "ok" {
		t.Errorf("atlas check = %q, want %q", body.Checks["atlas"], "ok")
	}
}

func TestReadyz_CheckerFails(t *testing.T) {
	h := New(
		Checker{Name: "catalog", Check: func(_ context.Context) error {
			return errors.New("connection refused")
		}},
		Checker{Name: "atlas", Check: func(_ context.Context) error { return nil }},
	)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "fail" {
		t.Errorf("status = %q, want %q", body.Status, "fail")
	}
	if body.Checks["catalog"] != "fail: connection refused" {
		t.Errorf("catalog check = %q, want %q", body.Checks["catalog"], "fail: connection refused")
	}
	if body.Checks["atlas"] != "ok" {
		t.Errorf("atlas check = %q, want %q", body.Checks["atlas"], "ok")
	}
}

func TestReadyz_NoCheckers(t *testing.T) {
	h := New()

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestReadyz_AllCheckersFail(t *testing.T) {
	h := New(
		Checker{Name: "catalog", Check: func(_ context.Context) error {
			return errors.New("timeout")
		}},
		Checker{Name: "atlas", Check: func(_ context.Context) error {
			return errors.New("circuit breaker open")
		}},
	)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "fail" {
		t.Errorf("status = %q, want %q", body.Status, "fail")
	}
	if body.Checks["catalog"] != "fail: timeout" {
		t.Errorf("catalog check = %q", body.Checks["catalog"])
	}
	if body.Checks["atlas"] != "fail: circuit breaker open" {
		t.Errorf("atlas check = %q", body.Checks["atlas"])
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	h := New(
		Checker{Name: "test", Check: func(_ context.Context) error { return nil }},
	)

	mux := http.NewServeMux()
	h.Register(mux)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New(
		Checker{Name: "slow", Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

type fakeState string

func (s fakeState) String() string { return string(s) }

func TestCatalogChecker(t *testing.T) {
	size := 0
	c := CatalogChecker(func() int { return size })
	if c.Name != "catalog" {
		t.Errorf("Name = %q, want catalog", c.Name)
	}
	if err := c.Check(context.Background()); !errors.Is(err, ErrCatalogEmpty) {
		t.Fatalf("empty catalog: err = %v, want ErrCatalogEmpty", err)
	}
	size = 42
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("loaded catalog: err = %v", err)
	}
}

func TestBreakerChecker(t *testing.T) {
	state := fakeState("closed")
	c := BreakerChecker("atlas", func() fmt.Stringer { return state })

	for _, s := range []fakeState{"closed", "half-open"} {
		state = s
		if err := c.Check(context.Background()); err != nil {
			t.Errorf("state %s: err = %v, want nil", s, err)
		}
	}
	state = "open"
	if err := c.Check(context.Background()); err == nil {
		t.Error("state open: want error")
	}
}

func TestReadyz_WiredCheckers(t *testing.T) {
	h := New(CatalogChecker(func() int { return 0 }))

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Checks["catalog"] != "fail: "+ErrCatalogEmpty.Error() {
		t.Errorf("catalog check = %q", body.Checks["catalog"])
	}
}
