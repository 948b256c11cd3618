// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package log provides structured logging utilities: a process-wide
// zerolog logger with per-run correlation fields, step timing handles,
// metric events, and a bounded asynchronous writer so backend I/O never
// stalls the pipeline.
package log

import (
	"context"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Config captures options for the process-wide logger.
type Config struct {
	Level   string    // "debug", "info", ... (default "info")
	Format  string    // "json" (machine-readable, default) or "console" (human-readable)
	Output  io.Writer // defaults to os.Stdout
	Service string    // service name attached to every record
	Version string    // version attached to every record
}

var (
	mu          sync.RWMutex
	base        zerolog.Logger
	asyncOut    *asyncWriter
	initialized bool
)

// Configure initialises the process-wide logger. The Format switch picks
// the backend: every record is self-describing JSON by default, or a
// prefixed human-readable line for interactive use.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	if asyncOut != nil {
		asyncOut.stop()
	}
	asyncOut = newAsyncWriter(out, defaultQueueDepth)

	service := cfg.Service
	if service == "" {
		service = "svcadvisor"
	}

	base = zerolog.New(asyncOut).With().
		Timestamp().
		Str("service", service).
		Str("version", cfg.Version).
		Logger()

	initialized = true
}

func ensureInitialized() {
	mu.RLock()
	if initialized {
		mu.RUnlock()
		return
	}
	mu.RUnlock()

	Configure(Config{})
}

func logger() zerolog.Logger {
	ensureInitialized()
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Base returns the configured base logger by value.
func Base() zerolog.Logger {
	return logger()
}

// L provides access to the global logger instance as a pointer to a copy.
func L() *zerolog.Logger {
	l := logger()
	return &l
}

// WithComponent returns a child logger annotated with the component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str("component", component).Logger()
}

// DroppedRecords reports how many log records were discarded because the
// backend could not keep up.
func DroppedRecords() uint64 {
	mu.RLock()
	defer mu.RUnlock()
	if asyncOut == nil {
		return 0
	}
	return asyncOut.dropped.Load()
}

// Flush blocks until every queued record has reached the backend, bounded
// by timeout. Intended for shutdown and tests.
func Flush(timeout time.Duration) {
	mu.RLock()
	w := asyncOut
	mu.RUnlock()
	if w != nil {
		w.flush(timeout)
	}
}

// StepEnd is returned by Step; call it with the outcome once the step
// finishes.
type StepEnd func(outcome string, err error)

// Step starts a named unit of work and returns a handle that emits a
// duration-annotated record when invoked, correlated with the run via
// ctx's run_id/chat_id fields.
func Step(ctx context.Context, name string) StepEnd {
	start := time.Now()
	l := WithContext(ctx, logger())
	l.Debug().Str("step", name).Str("event", "step.start").Msg("step started")
	return func(outcome string, err error) {
		ev := l.Info()
		if err != nil {
			ev = l.Error().Err(err)
		}
		ev.Str("step", name).
			Str("event", "step.end").
			Str("outcome", outcome).
			Dur("duration", time.Since(start)).
			Msg("step finished")
	}
}

// Metric emits a counter/rate observation as a structured event, carrying
// the run correlation from ctx.
func Metric(ctx context.Context, name string, value float64) {
	l := WithContext(ctx, logger())
	l.Info().
		Str("event", "metric").
		Str("metric", name).
		Float64("value", value).
		Msg("metric")
}

// Middleware returns an http middleware that assigns request IDs and logs
// each handled request with status and duration.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := r.Context()
			reqID := RequestIDFromContext(ctx)
			if reqID == "" {
				reqID = uuid.New().String()
				ctx = ContextWithRequestID(ctx, reqID)
			}
			if clientID := r.Header.Get("X-Request-ID"); clientID != "" {
				ctx = ContextWithClientRequestID(ctx, clientID)
			}
			if w.Header().Get("X-Request-ID") == "" {
				w.Header().Set("X-Request-ID", reqID)
			}

			logCtx := logger().With().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent())

			span := trace.SpanFromContext(r.Context())
			if span.SpanContext().IsValid() {
				logCtx = logCtx.
					Str("trace_id", span.SpanContext().TraceID().String()).
					Str("span_id", span.SpanContext().SpanID().String())
			}

			l := WithContext(ctx, logCtx.Logger())
			r = r.WithContext(l.WithContext(ctx))

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			l.Info().
				Str("event", "request.handled").
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

// defaultQueueDepth is how many records the async writer buffers before
// dropping; a pipeline burst is hundreds of records, not thousands.
const defaultQueueDepth = 1024

// asyncWriter decouples record production from backend I/O. Writes never
// block: a full queue drops the record and bumps the counter instead.
type asyncWriter struct {
	out     io.Writer
	queue   chan []byte
	dropped atomic.Uint64
	done    chan struct{}
	idle    sync.WaitGroup
}

func newAsyncWriter(out io.Writer, depth int) *asyncWriter {
	w := &asyncWriter{
		out:   out,
		queue: make(chan []byte, depth),
		done:  make(chan struct{}),
	}
	go w.drain()
	return w
}

func (w *asyncWriter) Write(p []byte) (int, error) {
	// zerolog reuses its buffer after Write returns, so the record must
	// be copied before it crosses the channel.
	record := make([]byte, len(p))
	copy(record, p)

	w.idle.Add(1)
	select {
	case w.queue <- record:
	default:
		w.idle.Done()
		w.dropped.Add(1)
	}
	return len(p), nil
}

func (w *asyncWriter) drain() {
	for {
		select {
		case record := <-w.queue:
			_, _ = w.out.Write(record)
			w.idle.Done()
		case <-w.done:
			// Drain what is already queued, then exit.
			for {
				select {
				case record := <-w.queue:
					_, _ = w.out.Write(record)
					w.idle.Done()
				default:
					return
				}
			}
		}
	}
}

func (w *asyncWriter) flush(timeout time.Duration) {
	finished := make(chan struct{})
	go func() {
		w.idle.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(timeout):
	}
}

func (w *asyncWriter) stop() {
	close(w.done)
}
