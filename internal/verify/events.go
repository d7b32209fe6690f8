package verify

import (
	"sync"

	"lexcheck/internal/model"
)

// Event types broadcast to progress listeners
const (
	EventProgress         = "verification_progress"
	EventCitationVerified = "citation_verified"
	EventBatchFailed      = "batch_failed"
)

// Event is one progress or citation notification. Events are emitted
// only after their underlying results are durably persisted.
type Event struct {
	Type     string               `json:"type"`
	Progress *model.ProgressEvent `json:"progress,omitempty"`
	Citation *model.CitationEvent `json:"citation,omitempty"`
}

type subscriber struct {
	ch      chan Event
	batchID string // empty subscribes to all batches
}

// Bus fans out verification events to listeners (SSE handlers, CLI
// progress). Slow listeners drop events rather than stall the
// orchestrator; the event log in the store remains the durable record.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]subscriber
	nextID int
}

// NewBus creates an event bus
func NewBus() *Bus {
	return &Bus{subs: make(map[int]subscriber)}
}

// Subscribe registers a listener for one batch (or all, with an empty
// batch id). The returned cancel func must be called to release the
// subscription.
func (b *Bus) Subscribe(batchID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.subs[id] = subscriber{ch: ch, batchID: batchID}
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
	}
}

func (b *Bus) publish(batchID string, evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.batchID != "" && sub.batchID != batchID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Listener is behind; drop rather than block the run.
		}
	}
}

// PublishProgress announces a persisted group checkpoint
func (b *Bus) PublishProgress(p model.ProgressEvent) {
	b.publish(p.BatchID, Event{Type: EventProgress, Progress: &p})
}

// PublishCitation announces a persisted citation outcome
func (b *Bus) PublishCitation(c model.CitationEvent) {
	b.publish(c.BatchID, Event{Type: EventCitationVerified, Citation: &c})
}

// PublishBatchFailed announces a batch stopping at a failed group
func (b *Bus) PublishBatchFailed(p model.ProgressEvent) {
	b.publish(p.BatchID, Event{Type: EventBatchFailed, Progress: &p})
}
