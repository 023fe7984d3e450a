// Package notify implements the cross-surface notifier: a process-wide
// publish/subscribe channel keyed by event name. Independently mounted
// consumers (header, profile view) subscribe to a name and re-fetch their
// own state when it fires; events carry no payload, which keeps subscribers
// decoupled from producer data shapes.
package notify

import (
	"context"
	"sync"
)

// Event names the condition being broadcast.
type Event string

const (
	// EventSession fires when the session token is set, cleared, or was
	// mutated from another context sharing the durable storage.
	EventSession Event = "session"
	// EventProfilePhoto fires after a profile refresh produced a fresh
	// photo URL.
	EventProfilePhoto Event = "profilePhoto"
	// EventSocialBindings fires after a server-confirmed bind; subscribers
	// reload bindings wholesale rather than patching.
	EventSocialBindings Event = "socialBindings"
)

// Handler is invoked synchronously on Publish. Handlers receive no payload
// and are expected to re-fetch whatever state they project.
type Handler func()

// StorageWatcher is the minimal capability the notifier needs to observe
// durable-storage mutations made outside this process. Storage backends that
// support it (see storage/redis) satisfy the interface.
type StorageWatcher interface {
	Watch(ctx context.Context, fn func(key string)) error
}

type subscription struct {
	id int64
	fn Handler
}

// Notifier fans an event name out to its subscribers in subscription order.
// All methods are safe for concurrent use.
type Notifier struct {
	mu     sync.Mutex
	nextID int64
	subs   map[Event][]subscription
}

// New returns an empty Notifier.
func New() *Notifier {
	return &Notifier{subs: make(map[Event][]subscription)}
}

// Subscribe registers h for event and returns an unsubscribe capability.
// Unsubscribing twice is a no-op.
func (n *Notifier) Subscribe(event Event, h Handler) func() {
	if h == nil {
		return func() {}
	}

	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs[event] = append(n.subs[event], subscription{id: id, fn: h})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			list := n.subs[event]
			for i, s := range list {
				if s.id == id {
					n.subs[event] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish invokes every current subscriber for event synchronously, in
// subscription order. The subscriber list is snapshotted first, so handlers
// may subscribe or unsubscribe without affecting the in-progress publish.
func (n *Notifier) Publish(event Event) {
	n.mu.Lock()
	list := n.subs[event]
	snapshot := make([]subscription, len(list))
	copy(snapshot, list)
	n.mu.Unlock()

	for _, s := range snapshot {
		s.fn()
	}
}

// BridgeStorage forwards durable-storage change signals onto EventSession
// whenever the mutated key is one of sessionKeys, so a session change looks
// the same to subscribers whether it originated locally or in another
// context. It blocks until the watcher returns, so callers typically run it
// in its own goroutine with a cancellable context.
func (n *Notifier) BridgeStorage(ctx context.Context, w StorageWatcher, sessionKeys ...string) error {
	if w == nil {
		return nil
	}
	keys := make(map[string]struct{}, len(sessionKeys))
	for _, k := range sessionKeys {
		keys[k] = struct{}{}
	}
	return w.Watch(ctx, func(key string) {
		if _, ok := keys[key]; ok {
			n.Publish(EventSession)
		}
	})
}
