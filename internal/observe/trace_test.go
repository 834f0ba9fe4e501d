package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTracer installs an in-memory tracer provider as the global one for the
// duration of the test.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

var traceIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestCorrelationID_NoSpan(t *testing.T) {
	t.Parallel()
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}
}

func TestStartSpan_NestsUnderParent(t *testing.T) {
	exp := useTracer(t)

	ctx, syncSpan := StartSpan(context.Background(), "freshness.sync")
	cid := CorrelationID(ctx)
	if !traceIDPattern.MatchString(cid) {
		t.Fatalf("CorrelationID = %q, want 32 hex chars", cid)
	}

	childCtx, fetch := StartSpan(ctx, "atlas.info")
	if got := CorrelationID(childCtx); got != cid {
		t.Errorf("child trace ID = %q, want %q", got, cid)
	}
	fetch.End()
	syncSpan.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	child, parent := spans[0], spans[1]
	if child.Name != "atlas.info" || parent.Name != "freshness.sync" {
		t.Fatalf("span names = %q, %q", child.Name, parent.Name)
	}
	if child.Parent.SpanID() != parent.SpanContext.SpanID() {
		t.Error("atlas.info is not a child of freshness.sync")
	}
}

func TestEndSpan(t *testing.T) {
	exp := useTracer(t)

	_, ok := StartSpan(context.Background(), "resolver.resolve")
	EndSpan(ok, nil)
	_, failed := StartSpan(context.Background(), "patch.fetch_noble_phantasm")
	EndSpan(failed, errors.New("connection refused"))

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Status.Code != codes.Unset || len(spans[0].Events) != 0 {
		t.Errorf("successful span: status %v, %d events", spans[0].Status.Code, len(spans[0].Events))
	}
	if spans[1].Status.Code != codes.Error {
		t.Errorf("failed span status = %v, want Error", spans[1].Status.Code)
	}
	if spans[1].Status.Description != "connection refused" {
		t.Errorf("failed span description = %q", spans[1].Status.Description)
	}
	if len(spans[1].Events) == 0 {
		t.Error("failed span has no error event")
	}
}

func TestLogger(t *testing.T) {
	useTracer(t)
	logs := captureLogs(t)

	Logger(context.Background()).Info("catalog up to date")
	ctx, span := StartSpan(context.Background(), "freshness.sync")
	Logger(ctx).Info("catalog refreshed")
	span.End()

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2: %q", len(lines), logs.String())
	}
	if strings.Contains(lines[0], "trace_id") {
		t.Errorf("line without span carries trace_id: %s", lines[0])
	}
	if !strings.Contains(lines[1], "trace_id="+CorrelationID(ctx)) {
		t.Errorf("line missing trace_id: %s", lines[1])
	}
	if !strings.Contains(lines[1], "span_id=") {
		t.Errorf("line missing span_id: %s", lines[1])
	}
}
