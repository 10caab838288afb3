// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewRunID(t *testing.T) {
	id := NewRunID()
	if !id.IsValid() {
		t.Errorf("expected valid UUID format, got %q", id)
	}
	if len(id) != 36 {
		t.Errorf("expected length 36, got %d", len(id))
	}
	if NewRunID() == id {
		t.Error("run IDs should be unique")
	}
}

func TestRunID_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		id    RunID
		valid bool
	}{
		{"valid UUID", RunID("550e8400-e29b-41d4-a716-446655440000"), true},
		{"valid UUID uppercase", RunID("550E8400-E29B-41D4-A716-446655440000"), true},
		{"empty", RunID(""), false},
		{"too short", RunID("550e8400-e29b-41d4"), false},
		{"missing hyphens", RunID("550e8400e29b41d4a716446655440000"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestRunIDContext(t *testing.T) {
	if got := FromContext(context.Background()); got != "" {
		t.Errorf("empty context should yield no run ID, got %q", got)
	}

	id := RunID("550e8400-e29b-41d4-a716-446655440000")
	if got := FromContext(ToContext(context.Background(), id)); got != id {
		t.Errorf("FromContext() = %q, want %q", got, id)
	}
}

func TestEndSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")

	_, ok := tracer.Start(context.Background(), "ok")
	EndSpan(ok, nil)
	_, failed := tracer.Start(context.Background(), "failed")
	EndSpan(failed, errors.New("boom"))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 ended spans, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", spans[0].Status().Code)
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != "boom" {
		t.Errorf("status = %+v, want Error boom", spans[1].Status())
	}
}

func TestSetupWritesSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	p, err := Setup(context.Background(), Config{ServiceVersion: "test", Output: &buf})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	_, span := otel.Tracer(InstrumentationName).Start(context.Background(), "topology.compose")
	EndSpan(span, nil)

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("topology.compose")) {
		t.Errorf("exported spans should mention the span name, got %s", buf.String())
	}
}

func TestSetupWithoutOutput(t *testing.T) {
	p, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() of a disabled provider should succeed: %v", err)
	}
}
