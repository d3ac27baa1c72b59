// Package sse implements a Server-Sent Events broker for document updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/ucdcanvas/internal/storage"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
	// Key scopes the event to subscribers of its project and stage. A zero
	// key reaches everyone.
	Key storage.Key `json:"-"`
}

// Filter narrows a subscription to one project and optionally one stage.
type Filter struct {
	ProjectID string
	StageID   string
}

func (f Filter) match(k storage.Key) bool {
	if k == (storage.Key{}) {
		return true
	}
	return (f.ProjectID == "" || f.ProjectID == k.ProjectID) &&
		(f.StageID == "" || f.StageID == k.StageID)
}

type documentEventReq struct {
	kind string
	key  storage.Key
}

type stageKey struct{ project, stage string }

type subscribeReq struct {
	ch     chan []byte
	filter Filter
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + throttle timestamps). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	throttle time.Duration

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	documentCh    chan documentEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. throttle bounds how often
// document.changed is sent per document and stage.updated per stage.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}

	b := &Broker{
		throttle:      throttle,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		documentCh:    make(chan documentEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]Filter)
	lastChanged := make(map[storage.Key]time.Time)
	lastStage := make(map[stageKey]time.Time)
	// pending holds documents whose changed event was swallowed by the
	// throttle. Each gets one trailing event when its window closes.
	pending := make(map[storage.Key]time.Time)
	flush := time.NewTimer(time.Hour)
	flush.Stop()
	defer flush.Stop()

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch, f := range clients {
			if !f.match(event.Key) {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	emit := func(kind string, key storage.Key, now time.Time) {
		broadcast(Event{Type: "document." + kind, Data: key, Key: key})

		sk := stageKey{key.ProjectID, key.StageID}
		if now.Sub(lastStage[sk]) >= b.throttle {
			lastStage[sk] = now
			broadcast(Event{
				Type: "stage.updated",
				Data: map[string]string{"projectId": sk.project, "stageId": sk.stage},
				Key:  key,
			})
		}
	}

	rearm := func(now time.Time) {
		flush.Stop()
		var next time.Time
		for _, due := range pending {
			if next.IsZero() || due.Before(next) {
				next = due
			}
		}
		if !next.IsZero() {
			flush.Reset(max(next.Sub(now), 0))
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			clients[req.ch] = req.filter

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.documentCh:
			now := time.Now()
			if req.kind == "changed" {
				if last := lastChanged[req.key]; now.Sub(last) < b.throttle {
					if _, ok := pending[req.key]; !ok {
						pending[req.key] = last.Add(b.throttle)
						rearm(now)
					}
					continue
				}
				lastChanged[req.key] = now
			} else {
				// saved and deleted supersede any trailing changed event.
				delete(lastChanged, req.key)
				if _, ok := pending[req.key]; ok {
					delete(pending, req.key)
					rearm(now)
				}
			}
			emit(req.kind, req.key, now)

		case <-flush.C:
			now := time.Now()
			for key, due := range pending {
				if due.After(now) {
					continue
				}
				delete(pending, key)
				lastChanged[key] = now
				emit("changed", key, now)
			}
			rearm(now)

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client receiving events that match f.
func (b *Broker) Subscribe(f Filter) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscribeReq{ch: ch, filter: f}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all matching clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishDocumentEvent publishes document.<kind> for key and a throttled
// stage.updated for its stage.
func (b *Broker) PublishDocumentEvent(kind string, key storage.Key) {
	if b.closed.Load() {
		return
	}
	select {
	case b.documentCh <- documentEventReq{kind: kind, key: key}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). The optional
// project and stage query parameters narrow the stream.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	q := r.URL.Query()
	ch := b.Subscribe(Filter{ProjectID: q.Get("project"), StageID: q.Get("stage")})
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
