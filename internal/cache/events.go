package cache

// EventType identifies a cache entry event.
type EventType int

const (
	EventCreated EventType = iota + 1
	EventUpdated
	EventRemoved
	EventExpired
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventRemoved:
		return "removed"
	case EventExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Event describes one change to a cache entry. OldValue is set for updates.
type Event struct {
	Cache    string
	Type     EventType
	Key      any
	Value    any
	OldValue any
}

// Listener is called after an entry changes, outside the cache lock.
type Listener func(Event)
