package engine

import (
	"sync"
	"time"

	"github.com/seantiz/crucible/internal/model"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// Event describes one committed state transition.
type Event struct {
	RunID     string      `json:"run_id"`
	LogicalID string      `json:"logical_id"`
	TaskName  string      `json:"task_name"`
	ParentID  string      `json:"parent_id,omitempty"`
	State     model.State `json:"state"`
	Attempt   int         `json:"attempt"`
	At        time.Time   `json:"at"`
}

// Broker manages per-run event streaming to subscribers. It is safe for
// concurrent use.
//
// Closed topics are retained as markers so that late subscribers (those
// subscribing after a run finishes) receive a closed channel instead of
// blocking forever. Each marker is a few bytes, which is acceptable for the
// expected run volume.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*eventTopic
}

type eventTopic struct {
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]*eventTopic),
	}
}

// Subscribe returns a channel that receives transition events for the
// given run and an unsubscribe function. If the run has already finished
// (CloseRun was called), the returned channel is immediately closed.
func (b *Broker) Subscribe(runID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[runID]
	if !ok {
		t = &eventTopic{subs: make(map[int]chan Event)}
		b.topics[runID] = t
	}

	ch := make(chan Event, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends an event to all subscribers of its run.
// Events are dropped for subscribers whose buffers are full.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[ev.RunID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Drop for slow subscribers to avoid blocking orchestration.
		}
	}
}

// CloseRun signals that no more events will be published for the given
// run. All subscriber channels are closed and future Subscribe calls return
// a closed channel.
func (b *Broker) CloseRun(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[runID]
	if !ok {
		// Create a closed marker so late subscribers get a closed channel.
		b.topics[runID] = &eventTopic{subs: make(map[int]chan Event), closed: true}
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
