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

// Package bus provides an in-process, typed publish/subscribe event bus.
//
// Present state and the task scheduler publish a typed Event after each
// write commits; the LTM tree and the temporal log publish no events. No
// engine package subscribes; subscribers are whatever code the embedding
// host attaches to a Broker. Delivery never blocks
// the publisher: a subscriber with a full buffer simply misses the event,
// matching the non-blocking broadcaster style of a topic-based message bus.
package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// EventType classifies a published Event.
type EventType int

const (
	// Created indicates a new item was created.
	Created EventType = iota
	// Updated indicates an existing item was changed.
	Updated
	// Deleted indicates an item was removed (including soft-delete/archive).
	Deleted
)

func (t EventType) String() string {
	switch t {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event wraps a typed payload with its change kind.
type Event[T any] struct {
	Type    EventType
	Payload T
}

// NewCreated builds a Created event.
func NewCreated[T any](payload T) Event[T] { return Event[T]{Type: Created, Payload: payload} }

// NewUpdated builds an Updated event.
func NewUpdated[T any](payload T) Event[T] { return Event[T]{Type: Updated, Payload: payload} }

// NewDeleted builds a Deleted event.
func NewDeleted[T any](payload T) Event[T] { return Event[T]{Type: Deleted, Payload: payload} }

const defaultBufferSize = 64

// Broker is a single-type publish/subscribe broadcaster. Safe for
// concurrent use; Publish is non-blocking with respect to slow subscribers.
type Broker[T any] struct {
	mu     sync.RWMutex
	subs   map[int]chan Event[T]
	nextID int
	logger *zap.Logger
	name   string
}

// NewBroker creates a broker for events of type T. name is used only for
// log attribution (e.g. "present-changed", "tasks-changed").
func NewBroker[T any](name string, logger *zap.Logger) *Broker[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker[T]{
		subs:   make(map[int]chan Event[T]),
		logger: logger,
		name:   name,
	}
}

// Subscribe registers a new subscriber and returns a receive-only channel of
// events. The channel is closed when ctx is cancelled or Close is called.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	ch := make(chan Event[T], defaultBufferSize)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}()

	return ch
}

// Publish delivers evt to every live subscriber. Delivery is attempted
// without blocking: a subscriber whose buffer is full drops the event
// rather than stalling the publishing write path. Callers publish
// after their write transaction commits (publish-after-commit ordering).
func (b *Broker[T]) Publish(evt Event[T]) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, ch := range b.subs {
		select {
		case ch <- evt:
			delivered++
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.logger.Debug("bus publish dropped by full subscriber",
			zap.String("bus", b.name),
			zap.Int("delivered", delivered),
			zap.Int("dropped", dropped))
	}
}

// Close shuts down the broker, closing every live subscriber channel.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
