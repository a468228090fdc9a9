package libsse

import (
	"sync"

	"github.com/google/uuid"
)

const defaultMaxListeners = 16

type callback[T any] func(T)

// Subscription is the stable handle returned by On, used to unsubscribe.
type Subscription string

type listenerEntry[V any] struct {
	id Subscription
	fn callback[V]
}

// EventEmitterCallback is a bounded event emitter. It maps events (of type K)
// to ordered listener callbacks (of type V), invoked in registration order.
// Each event admits at most maxPerEvent listeners, guarding against
// leak-by-reattachment; registration beyond the bound is rejected, not queued.
type EventEmitterCallback[K comparable, V any] struct {
	logger      logger
	listeners   map[K][]listenerEntry[V]
	index       map[Subscription]K
	maxPerEvent int
	lock        sync.RWMutex
}

// NewEventEmitter creates a new EventEmitterCallback and returns a pointer to it.
func NewEventEmitter[K comparable, V any](logger logger, maxPerEvent int) *EventEmitterCallback[K, V] {
	if maxPerEvent <= 0 {
		maxPerEvent = defaultMaxListeners
	}
	return &EventEmitterCallback[K, V]{
		logger:      logger.WithField("type", "event_emitter"),
		listeners:   make(map[K][]listenerEntry[V]),
		index:       make(map[Subscription]K),
		maxPerEvent: maxPerEvent,
	}
}

// On registers a new listener for the given event. The boolean is false when
// the per-event bound has been reached and the listener was rejected.
func (e *EventEmitterCallback[K, V]) On(event K, listener callback[V]) (Subscription, bool) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if len(e.listeners[event]) >= e.maxPerEvent {
		e.logger.Warnf("listener for %v rejected: bound of %d reached", event, e.maxPerEvent)
		return "", false
	}

	id := Subscription(uuid.NewString())
	e.listeners[event] = append(e.listeners[event], listenerEntry[V]{id: id, fn: listener})
	e.index[id] = event

	return id, true
}

// Off removes the listener behind the given subscription handle, preserving
// the order of the remaining listeners. It reports whether anything was removed.
func (e *EventEmitterCallback[K, V]) Off(sub Subscription) bool {
	e.lock.Lock()
	defer e.lock.Unlock()

	event, found := e.index[sub]
	if !found {
		return false
	}
	delete(e.index, sub)

	entries := e.listeners[event]
	for i, entry := range entries {
		if entry.id == sub {
			e.listeners[event] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}

	return true
}

// Emit triggers all listeners registered for the given event synchronously and
// in registration order. A panicking listener is recovered and logged so it
// cannot break delivery to the listeners behind it.
func (e *EventEmitterCallback[K, V]) Emit(event K, data V) {
	e.lock.RLock()
	entries := make([]listenerEntry[V], len(e.listeners[event]))
	copy(entries, e.listeners[event])
	e.lock.RUnlock()

	for _, entry := range entries {
		e.invoke(event, entry, data)
	}
}

func (e *EventEmitterCallback[K, V]) invoke(event K, entry listenerEntry[V], data V) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("listener for %v panicked: %v", event, r)
		}
	}()

	entry.fn(data)
}

// Len returns the number of listeners registered for the given event.
func (e *EventEmitterCallback[K, V]) Len(event K) int {
	e.lock.RLock()
	defer e.lock.RUnlock()

	return len(e.listeners[event])
}

// Close removes all listeners to prevent memory leaks.
func (e *EventEmitterCallback[K, V]) Close() {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.listeners = make(map[K][]listenerEntry[V])
	e.index = make(map[Subscription]K)
}
