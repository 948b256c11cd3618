// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/svcadvisor/estimate-pipeline/internal/log"
	"github.com/svcadvisor/estimate-pipeline/internal/metrics"
)

// subscriberBuffer is each subscriber's channel capacity. A run emits on
// the order of a dozen phase events, so a modest buffer absorbs a
// consumer that polls instead of streaming.
const subscriberBuffer = 64

// MemoryBus is the in-process Bus implementation: phase events from a
// running pipeline are fanned out to whoever is streaming progress for
// that chat. Not durable; delivery stops when the publish context does.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string]map[*subscription]struct{}

	dropped atomic.Uint64
}

// NewMemoryBus returns an empty bus with no subscribers.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[*subscription]struct{})}
}

// dropLogSample keeps drop logging from flooding the log under a stuck
// consumer; the metric still counts every drop.
const dropLogSample = 100

func dropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

// Publish delivers msg to every subscriber of topic. It blocks on a full
// subscriber buffer only as long as ctx allows; on expiry the remaining
// deliveries are dropped and counted.
func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}

	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.subs[topic]))
	for sub := range b.subs[topic] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.ch <- msg:
		case <-ctx.Done():
			b.recordDrop(topic, ctx.Err())
			return fmt.Errorf("publish topic %q: %w", topic, ctx.Err())
		}
	}
	return nil
}

func (b *MemoryBus) recordDrop(topic string, err error) {
	reason := dropReason(err)
	metrics.IncBusDropReason(topic, reason)
	if n := b.dropped.Add(1); n%dropLogSample == 0 {
		log.L().Warn().
			Str("topic", topic).
			Str("reason", reason).
			Uint64("dropped", n).
			Msg("progress bus dropped events")
	}
}

// Subscribe registers a new subscriber for topic. The returned
// Subscriber's channel is closed by Close.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscriber, error) {
	sub := &subscription{
		bus:   b,
		topic: topic,
		ch:    make(chan Message, subscriberBuffer),
	}

	b.mu.Lock()
	set, ok := b.subs[topic]
	if !ok {
		set = make(map[*subscription]struct{})
		b.subs[topic] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	return sub, nil
}

type subscription struct {
	bus   *MemoryBus
	topic string
	ch    chan Message

	closeOnce sync.Once
}

func (s *subscription) C() <-chan Message { return s.ch }

func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.bus.mu.Lock()
		if set, ok := s.bus.subs[s.topic]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.bus.subs, s.topic)
			}
		}
		s.bus.mu.Unlock()
		close(s.ch)
	})
	return nil
}

var _ Bus = (*MemoryBus)(nil)
