package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type opsHarness struct {
	handler http.Handler
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
	logs    *bytes.Buffer
}

// newOpsHarness wraps a tiny ops mux (readiness, metrics and an erroring
// route) in Middleware with in-memory metric, span and log sinks.
func newOpsHarness(t *testing.T) *opsHarness {
	t.Helper()

	m, reader := newTestMetrics(t)

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	var logs bytes.Buffer
	origLog := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(origLog) })

	mux := http.NewServeMux()
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	mux.HandleFunc("GET /broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	return &opsHarness{handler: Middleware(m)(mux), reader: reader, spans: exp, logs: &logs}
}

func (h *opsHarness) get(path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_CorrelationHeaderMatchesSpan(t *testing.T) {
	h := newOpsHarness(t)

	rec := h.get("/readyz", nil)

	spans := h.spans.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /readyz" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "HTTP GET /readyz")
	}
	want := spans[0].SpanContext.TraceID().String()
	if got := rec.Header().Get("X-Correlation-ID"); got != want {
		t.Errorf("X-Correlation-ID = %q, want trace ID %q", got, want)
	}
	if rec.Header().Get("traceparent") == "" {
		t.Error("response carries no traceparent")
	}
}

func TestMiddleware_JoinsIncomingTrace(t *testing.T) {
	h := newOpsHarness(t)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	rec := h.get("/readyz", http.Header{
		"Traceparent": {"00-" + traceID + "-00f067aa0ba902b7-01"},
	})

	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
	spans := h.spans.GetSpans()
	if len(spans) != 1 || spans[0].Parent.SpanID().String() != "00f067aa0ba902b7" {
		t.Fatalf("span not parented on incoming context: %+v", spans)
	}
}

func TestMiddleware_RecordsDurationWithStatus(t *testing.T) {
	h := newOpsHarness(t)

	h.get("/readyz", nil)
	h.get("/broken", nil)
	h.get("/broken", nil)

	met := findMetric(collect(t, h.reader), "atlasbot.http.request.duration")
	if met == nil {
		t.Fatal("atlasbot.http.request.duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data is %T, want Histogram[float64]", met.Data)
	}

	counts := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		path, _ := dp.Attributes.Value(attribute.Key("path"))
		code, _ := dp.Attributes.Value(attribute.Key("code"))
		counts[path.AsString()+" "+code.AsString()] += dp.Count
	}
	if counts["/readyz 200"] != 1 {
		t.Errorf("/readyz 200 samples = %d, want 1", counts["/readyz 200"])
	}
	if counts["/broken 503"] != 2 {
		t.Errorf("/broken 503 samples = %d, want 2", counts["/broken 503"])
	}
}

func TestMiddleware_SpanCarriesStatusCode(t *testing.T) {
	h := newOpsHarness(t)

	if rec := h.get("/broken", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	spans := h.spans.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no spans recorded")
	}
	found := false
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" && a.Value.AsInt64() == http.StatusServiceUnavailable {
			found = true
		}
	}
	if !found {
		t.Error("span missing http.response.status_code=503")
	}
}

func TestMiddleware_LogLevels(t *testing.T) {
	tests := []struct {
		path      string
		wantLevel string
	}{
		{"/readyz", "level=DEBUG"},
		{"/metrics", "level=DEBUG"},
		{"/broken", "level=INFO"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			h := newOpsHarness(t)
			h.get(tc.path, nil)

			line := h.logs.String()
			if !strings.Contains(line, `msg="request completed"`) {
				t.Fatalf("no completion log line: %s", line)
			}
			if !strings.Contains(line, tc.wantLevel) {
				t.Errorf("log line %q, want %s", line, tc.wantLevel)
			}
			if !strings.Contains(line, "path="+tc.path) {
				t.Errorf("log line %q missing path", line)
			}
		})
	}
}
