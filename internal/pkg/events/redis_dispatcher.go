package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	// EventListKey is the Redis list external consumers drain.
	EventListKey = "billing_events"
	// EventTTL caps how long undelivered events are retained.
	EventTTL = 7 * 24 * time.Hour

	dispatchTimeout = 5 * time.Second
)

// RedisDispatcher pushes serialized events onto a Redis list for external
// notification and reporting consumers.
type RedisDispatcher struct {
	client *redis.Client
	key    string
}

// NewRedisDispatcher creates a dispatcher writing to the given Redis client.
func NewRedisDispatcher(client *redis.Client) *RedisDispatcher {
	return &RedisDispatcher{client: client, key: EventListKey}
}

// Dispatch serializes and pushes the event. Failures are logged and
// swallowed; the event sink is fire-and-forget.
func (d *RedisDispatcher) Dispatch(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Errorf("[Events] Failed to marshal event %s: %v", event.Name, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if err := d.client.LPush(ctx, d.key, data).Err(); err != nil {
		log.Errorf("[Events] Failed to dispatch event %s: %v", event.Name, err)
		return
	}
	d.client.Expire(ctx, d.key, EventTTL)
}

// MemoryDispatcher collects events in memory. Used by tests and embedded
// deployments without Redis.
type MemoryDispatcher struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryDispatcher creates an empty in-memory dispatcher.
func NewMemoryDispatcher() *MemoryDispatcher {
	return &MemoryDispatcher{}
}

// Dispatch records the event.
func (d *MemoryDispatcher) Dispatch(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

// Events returns a copy of everything dispatched so far.
func (d *MemoryDispatcher) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

// Named returns the dispatched events carrying the given name.
func (d *MemoryDispatcher) Named(name Name) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Event
	for _, e := range d.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
