package cache

import (
	"fmt"
	"strings"
	"time"
)

// ExpiryPolicy sets entry lifetimes. A zero duration leaves the deadline
// alone: a zero Creation means entries never expire, and zero Access or
// Update means those operations do not extend the entry.
type ExpiryPolicy struct {
	Creation time.Duration
	Access   time.Duration
	Update   time.Duration
}

// Eternal is the default policy.
var Eternal = ExpiryPolicy{}

// CreatedExpiry expires entries d after they were created.
func CreatedExpiry(d time.Duration) ExpiryPolicy {
	return ExpiryPolicy{Creation: d}
}

// AccessedExpiry expires entries d after they were last read or written.
func AccessedExpiry(d time.Duration) ExpiryPolicy {
	return ExpiryPolicy{Creation: d, Access: d}
}

// ModifiedExpiry expires entries d after they were last written.
func ModifiedExpiry(d time.Duration) ExpiryPolicy {
	return ExpiryPolicy{Creation: d, Update: d}
}

// TouchedExpiry expires entries d after any read or write.
func TouchedExpiry(d time.Duration) ExpiryPolicy {
	return ExpiryPolicy{Creation: d, Access: d, Update: d}
}

// IsEternal reports whether entries never expire.
func (p ExpiryPolicy) IsEternal() bool {
	return p.Creation <= 0
}

// ParseExpiryPolicy reads the expiry-policy-factory option. Accepted forms are
// "eternal" and "<created|accessed|modified|touched>:<duration>".
func ParseExpiryPolicy(s string) (ExpiryPolicy, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "eternal" || s == "default" {
		return Eternal, nil
	}

	kind, raw, ok := strings.Cut(s, ":")
	if !ok {
		return Eternal, fmt.Errorf("expiry policy %q: want <kind>:<duration>", s)
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return Eternal, fmt.Errorf("expiry policy %q: %w", s, err)
	}
	if d <= 0 {
		return Eternal, fmt.Errorf("expiry policy %q: duration must be positive", s)
	}

	switch kind {
	case "created":
		return CreatedExpiry(d), nil
	case "accessed":
		return AccessedExpiry(d), nil
	case "modified":
		return ModifiedExpiry(d), nil
	case "touched":
		return TouchedExpiry(d), nil
	default:
		return Eternal, fmt.Errorf("expiry policy %q: unknown kind %q", s, kind)
	}
}
