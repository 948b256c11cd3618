// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/svcadvisor/estimate-pipeline/internal/domain"
)

func TestProgressSinkPublishesPhaseToChatTopic(t *testing.T) {
	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), PhaseTopic("chat-42"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	sink := NewProgressSink(b, "chat-42")
	sink.Publish(domain.PhaseAddingParts, "pricing parts")

	select {
	case msg := <-sub.C():
		require.Equal(t, string(domain.PhaseAddingParts), msg.Event)
		require.Equal(t, "pricing parts", msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for phase event")
	}
}

func TestProgressSinkDropsInsteadOfBlockingWithoutConsumer(t *testing.T) {
	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), PhaseTopic("chat-7"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	sink := NewProgressSink(b, "chat-7")
	// Nobody drains the subscriber; once its buffer fills, Publish must
	// return within the sink's bounded timeout instead of stalling the run.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer+5; i++ {
			sink.Publish(domain.PhaseAddingLabor, "researching")
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("progress sink blocked on a full subscriber")
	}
}
