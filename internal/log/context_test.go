// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunIDRoundTrip(t *testing.T) {
	ctx := ContextWithRunID(context.Background(), "run-1")
	assert.Equal(t, "run-1", RunIDFromContext(ctx))
}

func TestChatIDRoundTrip(t *testing.T) {
	ctx := ContextWithChatID(context.Background(), "chat-1")
	assert.Equal(t, "chat-1", ChatIDFromContext(ctx))
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
}

func TestAccessorsReturnEmptyOnBareContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RunIDFromContext(ctx))
	assert.Empty(t, ChatIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, CorrelationIDFromContext(ctx))
	assert.Empty(t, JobIDFromContext(ctx))
	assert.Empty(t, ClientRequestIDFromContext(ctx))
}

func TestAccessorsTolerateNilContext(t *testing.T) {
	assert.Empty(t, RunIDFromContext(nil)) //nolint:staticcheck // intentional nil-context test
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := ContextWithRunID(context.Background(), "run-9")
	ctx = ContextWithChatID(ctx, "chat-9")
	ctx = ContextWithRequestID(ctx, "req-9")

	l := WithContext(ctx, base)
	l.Info().Msg("stage complete")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "run-9", rec["run_id"])
	assert.Equal(t, "chat-9", rec["chat_id"])
	assert.Equal(t, "req-9", rec["request_id"])
}

func TestWithContextLeavesLoggerUntouchedWithoutFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	l := WithContext(context.Background(), base)
	l.Info().Msg("no correlation")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.NotContains(t, rec, "run_id")
}

func TestWithComponentFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	l := WithComponentFromContext(ctx, "tab_registry")
	l.Info().Msg("lease released")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "tab_registry", rec["component"])
}

func TestFromContextFallsBackToBase(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.LessOrEqual(t, l.GetLevel(), zerolog.PanicLevel)
}
