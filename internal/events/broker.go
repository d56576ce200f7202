// Package events streams repository file changes to editor clients as
// Server-Sent Events.
package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/editor-server/internal/models"
)

// Change kinds reported by the watcher.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// ListChanged is sent, batched, after any file change.
const ListChanged = "files.changed"

// DefaultThrottle is the batching window of ListChanged.
const DefaultThrottle = 2 * time.Second

// Event is one SSE message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// FileEvent is the payload of file.<kind> events.
type FileEvent struct {
	Kind string          `json:"kind"`
	File models.FileData `json:"file"`
	Time time.Time       `json:"time"`
}

// ListEvent is the payload of ListChanged: the paths changed in the window.
type ListEvent struct {
	Paths []string `json:"paths"`
}

// Subscription receives the encoded events whose path falls under one of
// its prefixes. A subscription without prefixes receives everything.
type Subscription struct {
	ch       chan []byte
	prefixes []string
}

// C returns the channel of SSE frames. It is closed on Unsubscribe or when
// the broker closes.
func (s *Subscription) C() <-chan []byte { return s.ch }

// Wants reports whether p is under one of the subscription's prefixes.
func (s *Subscription) Wants(p string) bool {
	if len(s.prefixes) == 0 {
		return true
	}
	for _, prefix := range s.prefixes {
		if p == prefix || strings.HasPrefix(p, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

// Option configures a Broker.
type Option func(*Broker)

// WithURLResolver sets how file events get the serving URL of a path.
func WithURLResolver(fn func(path string) string) Option {
	return func(b *Broker) { b.urlFor = fn }
}

// Broker fans file changes out to editor clients. Each change is sent at
// once as file.<kind>; changed paths are also collected and sent as one
// ListChanged per throttle window.
type Broker struct {
	throttle time.Duration
	urlFor   func(string) string

	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	pending map[string]struct{}
	timer   *time.Timer
	closed  bool
}

// NewBroker creates a broker. A non-positive throttle means DefaultThrottle.
func NewBroker(throttle time.Duration, opts ...Option) *Broker {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	b := &Broker{
		throttle: throttle,
		urlFor:   func(string) string { return "" },
		subs:     make(map[*Subscription]struct{}),
		pending:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func encode(event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)), nil
}

// send delivers frame without blocking; slow clients miss it. Callers hold mu.
func send(s *Subscription, frame []byte) {
	select {
	case s.ch <- frame:
	default:
	}
}

// Subscribe registers a client for the given path prefixes.
func (b *Broker) Subscribe(prefixes ...string) *Subscription {
	s := &Subscription{ch: make(chan []byte, 64)}
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		s.prefixes = append(s.prefixes, p)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Unsubscribe removes s and closes its channel.
func (b *Broker) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish sends event to every client regardless of prefixes.
func (b *Broker) Publish(event Event) {
	frame, err := encode(event)
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		send(s, frame)
	}
}

// PublishFileEvent sends file.<kind> for path to the interested clients and
// queues path for the next ListChanged. Unknown kinds are ignored. It has
// the signature of a watcher Callback.
func (b *Broker) PublishFileEvent(kind, path string) {
	switch kind {
	case KindCreated, KindUpdated, KindDeleted:
	default:
		return
	}
	frame, err := encode(Event{
		Type: "file." + kind,
		Data: FileEvent{
			Kind: kind,
			File: models.FileData{Path: path, URL: b.urlFor(path)},
			Time: time.Now().UTC(),
		},
	})
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		if s.Wants(path) {
			send(s, frame)
		}
	}
	b.pending[path] = struct{}{}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.throttle, b.flush)
	}
}

// flush sends the pending paths as ListChanged. Each client only sees the
// paths it wants, and nothing when none match.
func (b *Broker) flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timer = nil
	if b.closed || len(b.pending) == 0 {
		return
	}
	paths := make([]string, 0, len(b.pending))
	for p := range b.pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	clear(b.pending)

	for s := range b.subs {
		var wanted []string
		for _, p := range paths {
			if s.Wants(p) {
				wanted = append(wanted, p)
			}
		}
		if len(wanted) == 0 {
			continue
		}
		frame, err := encode(Event{Type: ListChanged, Data: ListEvent{Paths: wanted}})
		if err != nil {
			continue
		}
		send(s, frame)
	}
}

// Close drops pending changes and closes all client channels.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	for s := range b.subs {
		close(s.ch)
	}
	clear(b.subs)
}

// ServeHTTP streams events to one client (GET /api/events). Repeated
// "prefix" query parameters narrow the stream to parts of the repository.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := b.Subscribe(r.URL.Query()["prefix"]...)
	defer b.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-sub.C():
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}
