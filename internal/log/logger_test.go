// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func jsonLines(t *testing.T, raw string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "line: %s", line)
		out = append(out, rec)
	}
	return out
}

func TestJSONBackendEmitsSelfDescribingRecords(t *testing.T) {
	buf := &syncBuffer{}
	Configure(Config{Level: "debug", Output: buf, Service: "svcadvisor", Version: "test"})

	L().Info().Str("platform", "prodemand").Msg("research started")
	Flush(time.Second)

	recs := jsonLines(t, buf.String())
	require.NotEmpty(t, recs)
	last := recs[len(recs)-1]
	assert.Equal(t, "svcadvisor", last["service"])
	assert.Equal(t, "prodemand", last["platform"])
	assert.Equal(t, "research started", last["message"])
	assert.NotEmpty(t, last["time"])
}

func TestConsoleBackendIsHumanReadable(t *testing.T) {
	buf := &syncBuffer{}
	Configure(Config{Level: "info", Format: "console", Output: buf})

	L().Info().Msg("tab lease released")
	Flush(time.Second)

	out := buf.String()
	require.NotEmpty(t, out)
	assert.False(t, strings.HasPrefix(strings.TrimSpace(out), "{"), "console output must not be a JSON record: %s", out)
	assert.Contains(t, out, "tab lease released")
}

func TestStepEmitsDurationAnnotatedRecord(t *testing.T) {
	buf := &syncBuffer{}
	Configure(Config{Level: "debug", Output: buf})

	ctx := ContextWithRunID(context.Background(), "run-77")
	end := Step(ctx, "price_parts")
	end("ok", nil)
	Flush(time.Second)

	recs := jsonLines(t, buf.String())
	var found bool
	for _, rec := range recs {
		if rec["event"] == "step.end" {
			found = true
			assert.Equal(t, "price_parts", rec["step"])
			assert.Equal(t, "ok", rec["outcome"])
			assert.Equal(t, "run-77", rec["run_id"])
			assert.Contains(t, rec, "duration")
		}
	}
	assert.True(t, found, "expected a step.end record")
}

func TestMetricEventCarriesNameAndValue(t *testing.T) {
	buf := &syncBuffer{}
	Configure(Config{Level: "info", Output: buf})

	Metric(context.Background(), "pipeline.elapsed_ms", 1234)
	Flush(time.Second)

	recs := jsonLines(t, buf.String())
	require.NotEmpty(t, recs)
	last := recs[len(recs)-1]
	assert.Equal(t, "metric", last["event"])
	assert.Equal(t, "pipeline.elapsed_ms", last["metric"])
	assert.Equal(t, float64(1234), last["value"])
}

// blockingWriter blocks every Write until released.
type blockingWriter struct {
	release chan struct{}
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	<-w.release
	return len(p), nil
}

func TestAsyncWriterDropsInsteadOfBlocking(t *testing.T) {
	bw := &blockingWriter{release: make(chan struct{})}
	w := newAsyncWriter(bw, 4)
	defer func() {
		close(bw.release)
		w.stop()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_, _ = w.Write([]byte("record\n"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writes blocked on a stuck backend")
	}
	assert.Positive(t, w.dropped.Load(), "overflow must be dropped and counted")
}

func TestAsyncWriterDeliversQueuedRecords(t *testing.T) {
	buf := &syncBuffer{}
	w := newAsyncWriter(io.Writer(buf), 16)
	defer w.stop()

	for i := 0; i < 5; i++ {
		_, _ = w.Write([]byte("x\n"))
	}
	w.flush(time.Second)

	assert.Equal(t, 5, strings.Count(buf.String(), "x"))
	assert.Zero(t, w.dropped.Load())
}
