// Copyright 2025 Umbra Labs
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

// Package event provides the notification bus used by the vault, trading and
// campaign engines. Every successful state mutation publishes an event
// carrying the operation's key identifiers and amounts for external
// observers and indexers.
package event

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	EventQueueSize      = 20
	AsyncQueueSize      = 1000
	AsyncWorkerPoolSize = 4
)

type EventType string

type SubscriberID int

type HandlerFunc func(Event)

// Event is a single notification record.
type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func New(eventType EventType, data any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// asyncEvent wraps an event with its type for the async queue
type asyncEvent struct {
	eventType EventType
	event     Event
}

type subscriber struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

func (s *subscriber) deliver(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- evt
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Bus fans events out to channel subscribers. PublishAsync queues events for
// delivery by a small worker pool so engine mutations never block on slow
// consumers.
type Bus struct {
	subscribers map[EventType]map[SubscriberID]*subscriber
	metrics     *busMetrics
	logger      *slog.Logger
	lastSubID   SubscriberID
	mu          sync.RWMutex

	asyncQueue chan asyncEvent
	asyncWg    sync.WaitGroup
	stopCh     chan struct{}
	stopOnce   sync.Once
	stopMu     sync.RWMutex
	stopped    bool
}

// NewBus creates a Bus and starts its async worker pool.
func NewBus(promRegistry prometheus.Registerer, logger *slog.Logger) *Bus {
	b := &Bus{
		subscribers: make(map[EventType]map[SubscriberID]*subscriber),
		logger:      logger,
		asyncQueue:  make(chan asyncEvent, AsyncQueueSize),
		stopCh:      make(chan struct{}),
	}
	if promRegistry != nil {
		b.metrics = newBusMetrics(promRegistry)
	}
	for range AsyncWorkerPoolSize {
		b.asyncWg.Add(1)
		go b.asyncWorker()
	}
	return b
}

func (b *Bus) asyncWorker() {
	defer b.asyncWg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case ae, ok := <-b.asyncQueue:
			if !ok {
				return
			}
			b.Publish(ae.eventType, ae.event)
		}
	}
}

// Subscribe registers a channel subscriber for an event type.
func (b *Bus) Subscribe(eventType EventType) (SubscriberID, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscriber{ch: make(chan Event, EventQueueSize)}
	b.lastSubID++
	id := b.lastSubID
	if _, ok := b.subscribers[eventType]; !ok {
		b.subscribers[eventType] = make(map[SubscriberID]*subscriber)
	}
	b.subscribers[eventType][id] = sub
	if b.metrics != nil {
		b.metrics.subscribers.WithLabelValues(string(eventType)).Inc()
	}
	return id, sub.ch
}

// SubscribeFunc registers a callback invoked for each event of a type.
func (b *Bus) SubscribeFunc(
	eventType EventType,
	handlerFunc HandlerFunc,
) SubscriberID {
	id, ch := b.Subscribe(eventType)
	go func() {
		for evt := range ch {
			handlerFunc(evt)
		}
	}()
	return id
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(eventType EventType, id SubscriberID) {
	b.mu.Lock()
	var toClose *subscriber
	if subs, ok := b.subscribers[eventType]; ok {
		if sub, ok2 := subs[id]; ok2 {
			toClose = sub
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.subscribers, eventType)
			}
			if b.metrics != nil {
				b.metrics.subscribers.WithLabelValues(string(eventType)).Dec()
			}
		}
	}
	b.mu.Unlock()
	if toClose != nil {
		toClose.close()
	}
}

// Publish delivers an event to all subscribers of its type, blocking per
// subscriber until each delivery completes.
func (b *Bus) Publish(eventType EventType, evt Event) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subscribers[eventType]))
	for _, sub := range b.subscribers[eventType] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()
	for _, sub := range subs {
		sub.deliver(evt)
	}
	if b.metrics != nil {
		b.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
}

// PublishAsync queues an event for delivery by the worker pool. Events
// published after Stop are dropped.
func (b *Bus) PublishAsync(eventType EventType, evt Event) {
	b.stopMu.RLock()
	defer b.stopMu.RUnlock()
	if b.stopped {
		return
	}
	select {
	case b.asyncQueue <- asyncEvent{eventType: eventType, event: evt}:
	default:
		if b.logger != nil {
			b.logger.Warn(
				"async event queue full, dropping event",
				"component", "event",
				"type", string(eventType),
			)
		}
		if b.metrics != nil {
			b.metrics.eventsDropped.WithLabelValues(string(eventType)).Inc()
		}
	}
}

// Stop shuts down the worker pool and closes all subscriber channels.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		b.stopMu.Lock()
		b.stopped = true
		b.stopMu.Unlock()
		close(b.stopCh)
		b.asyncWg.Wait()
		b.mu.Lock()
		for eventType, subs := range b.subscribers {
			for id, sub := range subs {
				sub.close()
				delete(subs, id)
			}
			delete(b.subscribers, eventType)
		}
		b.mu.Unlock()
	})
}
