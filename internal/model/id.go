package model

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a ULID for the current time.
func NewID() string {
	return NewIDAt(time.Now())
}

// NewIDAt returns a ULID carrying t. IDs from one process sort in creation
// order, including IDs minted within the same millisecond, so log entries
// ordered by ID are ordered by time.
func NewIDAt(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// IDTime returns the millisecond timestamp embedded in id.
func IDTime(id string) (time.Time, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse id %q: %w", id, err)
	}
	return ulid.Time(u.Time()).UTC(), nil
}
