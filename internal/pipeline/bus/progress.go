// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"time"

	"github.com/svcadvisor/estimate-pipeline/internal/domain"
)

// PhaseTopic returns the topic a chat's phase events are published on.
func PhaseTopic(chatID string) string { return "phase." + chatID }

// defaultPublishTimeout bounds how long a phase publish may block the
// pipeline when every subscriber's buffer is full.
const defaultPublishTimeout = 50 * time.Millisecond

// ProgressSink adapts a Bus to the orchestrator's progress channel: each
// phase event becomes one Message on the chat's phase topic. Publishes are
// bounded by a short timeout; a slow or absent consumer drops events
// rather than stalling the run.
type ProgressSink struct {
	bus     Bus
	topic   string
	timeout time.Duration
}

// NewProgressSink returns a ProgressSink publishing chatID's phase events
// onto b.
func NewProgressSink(b Bus, chatID string) *ProgressSink {
	return &ProgressSink{bus: b, topic: PhaseTopic(chatID), timeout: defaultPublishTimeout}
}

// Publish implements domain.ProgressSink.
func (s *ProgressSink) Publish(phase domain.Phase, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_ = s.bus.Publish(ctx, s.topic, Message{Event: string(phase), Payload: detail})
}

var _ domain.ProgressSink = (*ProgressSink)(nil)
