// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanctumlabs/nuum/internal/bus"
)

func TestPublish_DeliversToAllSubscribers(t *testing.T) {
	b := bus.NewBroker[string]("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := b.Subscribe(ctx)
	c := b.Subscribe(ctx)

	b.Publish(bus.NewCreated("hello"))

	for _, ch := range []<-chan bus.Event[string]{a, c} {
		select {
		case evt := <-ch:
			assert.Equal(t, bus.Created, evt.Type)
			assert.Equal(t, "hello", evt.Payload)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestSubscribe_ChannelClosesWhenContextCancelled(t *testing.T) {
	b := bus.NewBroker[string]("test", nil)
	ctx, cancel := context.WithCancel(context.Background())

	ch := b.Subscribe(ctx)
	cancel()

	require.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestPublish_NonBlockingOnFullSubscriberBuffer(t *testing.T) {
	b := bus.NewBroker[int]("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = b.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(bus.NewUpdated(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
}

func TestClose_ClosesAllSubscriberChannels(t *testing.T) {
	b := bus.NewBroker[int]("test", nil)
	ch := b.Subscribe(context.Background())

	b.Close()

	_, ok := <-ch
	assert.False(t, ok)
}
