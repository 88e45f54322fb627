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

package event

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testEventType EventType = "test.event"

func TestPublishDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)
	bus := NewBus(prometheus.NewRegistry(), nil)
	defer bus.Stop()

	_, ch := bus.Subscribe(testEventType)
	bus.Publish(testEventType, New(testEventType, "payload"))

	select {
	case evt := <-ch:
		assert.Equal(t, testEventType, evt.Type)
		assert.Equal(t, "payload", evt.Data)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPublishMultipleSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)
	bus := NewBus(prometheus.NewRegistry(), nil)
	defer bus.Stop()

	_, ch1 := bus.Subscribe(testEventType)
	_, ch2 := bus.Subscribe(testEventType)
	bus.Publish(testEventType, New(testEventType, 42))

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			assert.Equal(t, 42, evt.Data)
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestPublishNoSubscribersForOtherTypes(t *testing.T) {
	defer goleak.VerifyNone(t)
	bus := NewBus(prometheus.NewRegistry(), nil)
	defer bus.Stop()

	_, ch := bus.Subscribe(testEventType)
	bus.Publish("other.event", New("other.event", nil))

	select {
	case <-ch:
		t.Fatal("received event for type not subscribed to")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeFunc(t *testing.T) {
	defer goleak.VerifyNone(t)
	bus := NewBus(prometheus.NewRegistry(), nil)
	defer bus.Stop()

	var mu sync.Mutex
	var received []Event
	bus.SubscribeFunc(testEventType, func(evt Event) {
		mu.Lock()
		received = append(received, evt)
		mu.Unlock()
	})
	bus.Publish(testEventType, New(testEventType, 1))
	bus.Publish(testEventType, New(testEventType, 2))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, 5*time.Second, time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, received[0].Data)
	assert.Equal(t, 2, received[1].Data)
	mu.Unlock()
}

func TestUnsubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)
	bus := NewBus(prometheus.NewRegistry(), nil)
	defer bus.Stop()

	id, ch := bus.Subscribe(testEventType)
	bus.Unsubscribe(testEventType, id)

	// Channel is closed on unsubscribe
	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after unsubscribe does not panic
	bus.Publish(testEventType, New(testEventType, nil))
}

func TestPublishAsync(t *testing.T) {
	defer goleak.VerifyNone(t)
	bus := NewBus(prometheus.NewRegistry(), nil)
	defer bus.Stop()

	_, ch := bus.Subscribe(testEventType)
	bus.PublishAsync(testEventType, New(testEventType, "async"))

	select {
	case evt := <-ch:
		assert.Equal(t, "async", evt.Data)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for async event")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)
	bus := NewBus(prometheus.NewRegistry(), nil)
	bus.Subscribe(testEventType)
	bus.Stop()
	bus.Stop()
}
