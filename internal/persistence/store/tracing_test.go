package store

import (
	"context"
	"path/filepath"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestWriteRead_RecordSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))

	path := filepath.Join(t.TempDir(), "w.world")
	if err := Write(context.Background(), path, Header{WorldID: "w"}, sampleDocument()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := Read(context.Background(), path); err != nil {
		t.Fatalf("read: %v", err)
	}

	seen := map[string]bool{}
	for _, s := range rec.Ended() {
		seen[s.Name()] = true
	}
	if !seen["store.Write"] || !seen["store.Read"] {
		t.Fatalf("missing spans: %v", seen)
	}
}
