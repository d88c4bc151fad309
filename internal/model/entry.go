package model

import "time"

// LogEntry records one greeting request.
type LogEntry struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Time time.Time `json:"time"`
}

// NewLogEntry creates an entry for name stamped with the current UTC time.
func NewLogEntry(name string) LogEntry {
	now := time.Now().UTC()
	return LogEntry{
		ID:   NewIDAt(now),
		Name: name,
		Time: now,
	}
}

// GreetingLog is the persisted root of the greeting log graph.
type GreetingLog struct {
	Entries []LogEntry `json:"entries"`
}

// Names returns the entry names in insertion order.
func (l *GreetingLog) Names() []string {
	names := make([]string, len(l.Entries))
	for i, e := range l.Entries {
		names[i] = e.Name
	}
	return names
}

// Greetings is the persisted root holding the configurable greeting messages.
type Greetings struct {
	Messages []string `json:"messages"`
}

// DefaultGreeting seeds an empty Greetings root.
const DefaultGreeting = "Hello"
