package greeting

import (
	"sync"

	"github.com/seantiz/graphkeep/internal/model"
)

// subscriberBufferSize is the channel buffer for each entry subscriber.
// Entries are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// AllEntries is the topic every added entry is published to.
const AllEntries = "*"

// NameTopic returns the topic carrying the entries of one name. Name topics
// are prefixed so no name can collide with AllEntries.
func NameTopic(name string) string {
	return "name:" + name
}

// EntryBroker fans out added log entries to subscribers, per topic. It is safe
// for concurrent use.
//
// A closed broker hands late subscribers a closed channel.
type EntryBroker struct {
	mu     sync.Mutex
	topics map[string]*entryTopic
	closed bool
}

type entryTopic struct {
	subs   map[int]chan model.LogEntry
	nextID int
}

// NewEntryBroker creates an empty broker.
func NewEntryBroker() *EntryBroker {
	return &EntryBroker{
		topics: make(map[string]*entryTopic),
	}
}

// Subscribe returns a channel receiving entries published to topic and an
// unsubscribe function.
func (b *EntryBroker) Subscribe(topic string) (<-chan model.LogEntry, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.LogEntry, subscriberBufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	t, ok := b.topics[topic]
	if !ok {
		t = &entryTopic{subs: make(map[int]chan model.LogEntry)}
		b.topics[topic] = t
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := t.subs[id]; !ok {
			return
		}
		delete(t.subs, id)
		if len(t.subs) == 0 && b.topics[topic] == t {
			delete(b.topics, topic)
		}
	}
}

// Publish sends e to every subscriber of topic. Subscribers with full buffers
// miss the entry.
func (b *EntryBroker) Publish(topic string, e model.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[topic]
	if !ok || b.closed {
		return
	}
	for _, ch := range t.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions to topic.
func (b *EntryBroker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[topic]; ok {
		return len(t.subs)
	}
	return 0
}

// Close closes every subscriber channel. Later publishes are dropped and later
// subscribers get a closed channel.
func (b *EntryBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for name, t := range b.topics {
		for id, ch := range t.subs {
			close(ch)
			delete(t.subs, id)
		}
		delete(b.topics, name)
	}
}
