package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxInactiveInterval is applied to sessions created by NewSession.
const DefaultMaxInactiveInterval = 30 * time.Minute

// PrincipalNameIndexName is the attribute holding the name of the authenticated
// principal. It is also stored as a top-level "principal" field so sessions can be
// looked up per user.
const PrincipalNameIndexName = "PRINCIPAL_NAME_INDEX_NAME"

// Session is a user session as persisted in the sessions collection.
//
// Timestamps are kept in UTC with millisecond precision and the interval in whole
// seconds, matching what a BSON document can hold.
type Session struct {
	id               string
	creationTime     time.Time
	lastAccessedTime time.Time
	interval         time.Duration
	attrs            map[string]any
}

// NewSession creates a session with a random identifier and both timestamps set
// to the clock's current time.
func NewSession(clock Clock) *Session {
	if clock == nil {
		clock = RealClock{}
	}
	now := normalizeTime(clock.Now())
	return &Session{
		id:               uuid.New().String(),
		creationTime:     now,
		lastAccessedTime: now,
		interval:         DefaultMaxInactiveInterval,
		attrs:            make(map[string]any),
	}
}

// RestoreSession rebuilds a session from stored fields.
func RestoreSession(id string, created, accessed time.Time, interval time.Duration, attrs map[string]any) *Session {
	s := &Session{
		id:               id,
		creationTime:     normalizeTime(created),
		lastAccessedTime: normalizeTime(accessed),
		interval:         normalizeInterval(interval),
		attrs:            make(map[string]any, len(attrs)),
	}
	for k, v := range attrs {
		if v != nil {
			s.attrs[k] = normalizeValue(v)
		}
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreationTime() time.Time { return s.creationTime }

func (s *Session) LastAccessedTime() time.Time { return s.lastAccessedTime }

func (s *Session) SetLastAccessedTime(t time.Time) {
	s.lastAccessedTime = normalizeTime(t)
}

// Touch marks the session as accessed now.
func (s *Session) Touch(clock Clock) {
	if clock == nil {
		clock = RealClock{}
	}
	s.SetLastAccessedTime(clock.Now())
}

func (s *Session) MaxInactiveInterval() time.Duration { return s.interval }

// SetMaxInactiveInterval sets the interval, truncated to whole seconds. A
// negative interval means the session never expires.
func (s *Session) SetMaxInactiveInterval(d time.Duration) {
	s.interval = normalizeInterval(d)
}

// ExpireAt returns the instant the session expires, or the zero time when it
// never does.
func (s *Session) ExpireAt() time.Time {
	if s.interval < 0 {
		return time.Time{}
	}
	return s.lastAccessedTime.Add(s.interval)
}

func (s *Session) IsExpired(now time.Time) bool {
	if s.interval < 0 {
		return false
	}
	return !now.Before(s.ExpireAt())
}

func (s *Session) Attribute(name string) (any, bool) {
	v, ok := s.attrs[name]
	return v, ok
}

// SetAttribute stores value under name. A nil value removes the attribute.
// Times within value are kept in UTC at millisecond precision, like the session
// timestamps.
func (s *Session) SetAttribute(name string, value any) {
	if value == nil {
		delete(s.attrs, name)
		return
	}
	s.attrs[name] = normalizeValue(value)
}

func (s *Session) RemoveAttribute(name string) {
	delete(s.attrs, name)
}

// AttributeNames returns the attribute names in sorted order.
func (s *Session) AttributeNames() []string {
	names := make([]string, 0, len(s.attrs))
	for name := range s.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Attributes returns a shallow copy of the attribute mapping.
func (s *Session) Attributes() map[string]any {
	out := make(map[string]any, len(s.attrs))
	for k, v := range s.attrs {
		out[k] = v
	}
	return out
}

// PrincipalName returns the principal attribute when it holds a string.
func (s *Session) PrincipalName() string {
	if v, ok := s.attrs[PrincipalNameIndexName].(string); ok {
		return v
	}
	return ""
}

// normalizeInterval truncates d to whole seconds. Any negative interval stays
// negative so the session keeps never expiring.
func normalizeInterval(d time.Duration) time.Duration {
	if d < 0 && d > -time.Second {
		return -time.Second
	}
	return d.Truncate(time.Second)
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Millisecond)
}
