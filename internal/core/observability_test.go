package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	ctx := context.Background()

	rec.Observe(ctx, "save_product", true, 30*time.Millisecond)
	rec.Observe(ctx, "save_product", true, 20*time.Millisecond)
	rec.Observe(ctx, "save_product", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second) // ignored

	snap := rec.Snapshot()
	if got := snap.DurationsMS["save_product"]; got != 55 {
		t.Fatalf("durations = %v", got)
	}
	if snap.Results["save_product"]["success"] != 2 || snap.Results["save_product"]["error"] != 1 {
		t.Fatalf("results = %+v", snap.Results)
	}
	if rec.Name() == "" {
		t.Fatal("expected generated expvar name")
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("NewPrometheusMetricsRecorder: %v", err)
	}
	ctx := context.Background()

	rec.Observe(ctx, "put_manual_override", true, 10*time.Millisecond)
	rec.Observe(ctx, "put_manual_override", false, 10*time.Millisecond)
	rec.Observe(ctx, "put_manual_override", true, 10*time.Millisecond)

	if got := testutil.ToFloat64(rec.results.WithLabelValues("put_manual_override", "success")); got != 2 {
		t.Fatalf("success count = %v", got)
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues("put_manual_override", "error")); got != 1 {
		t.Fatalf("error count = %v", got)
	}

	// double registration on the same registry must fail
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestJSONTracerRecordsSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)

	_, span := tracer.Start(context.Background(), "begin_resolution")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "save_product")
	span.End(errors.New("boom"))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Operation != "begin_resolution" || entries[0].Status != "success" {
		t.Fatalf("first entry = %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Error != "boom" {
		t.Fatalf("second entry = %+v", entries[1])
	}

	dec := json.NewDecoder(&buf)
	var line JSONTraceEntry
	if err := dec.Decode(&line); err != nil {
		t.Fatalf("decode first line: %v", err)
	}
	if line.Operation != "begin_resolution" {
		t.Fatalf("line = %+v", line)
	}
}

func TestServiceWithMetricsAndTracer(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	tracer := NewJSONTracer(nil)
	svc := NewInMemoryService(nil, WithMetricsRecorder(rec), WithTracer(tracer))

	if _, _, err := svc.CreateCatalogueEntry(context.Background(), CatalogueEntry{TestCode: "PH01", ResultType: ResultNumeric}); err != nil {
		t.Fatalf("CreateCatalogueEntry: %v", err)
	}
	snap := rec.Snapshot()
	if snap.Results["create_catalogue_entry"]["success"] != 1 {
		t.Fatalf("metrics not observed: %+v", snap.Results)
	}
	entries := tracer.Entries()
	if len(entries) != 1 || entries[0].Operation != "create_catalogue_entry" {
		t.Fatalf("trace entries = %+v", entries)
	}
}

func TestSlogLoggerAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	logger.Debug("debug msg", "k", "v")
	logger.Info("info msg")
	logger.Warn("warn msg")
	logger.Error("error msg")
	if !bytes.Contains(buf.Bytes(), []byte("info msg")) || !bytes.Contains(buf.Bytes(), []byte("debug msg")) {
		t.Fatalf("slog output = %s", buf.String())
	}
}
