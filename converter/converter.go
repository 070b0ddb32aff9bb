// Package converter maps sessions to the documents stored in the sessions
// collection and builds the query fragments used to look them up.
//
// A document has the shape
//
//	{_id, created, accessed, interval, expireAt, [principal], attrs}
//
// where interval is in seconds, expireAt is null for sessions that never
// expire, and attrs holds the attribute mapping. Attribute values with a
// natural BSON form are stored as-is; everything else carries a "@class"
// discriminator resolved through a TypeRegistry.
package converter

import (
	"fmt"
	"math"
	"time"

	"mongosession/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Document field names.
const (
	IDField         = "_id"
	CreatedField    = "created"
	AccessedField   = "accessed"
	IntervalField   = "interval"
	ExpireAtField   = "expireAt"
	PrincipalField  = "principal"
	AttributesField = "attrs"
)

type SessionConverter struct {
	registry *TypeRegistry
}

// NewSessionConverter returns a converter resolving attribute types through
// registry. A nil registry gets the default one.
func NewSessionConverter(registry *TypeRegistry) *SessionConverter {
	if registry == nil {
		registry = NewDefaultRegistry()
	}
	return &SessionConverter{registry: registry}
}

func (c *SessionConverter) Registry() *TypeRegistry {
	return c.registry
}

// ToDocument produces a fresh document for session.
func (c *SessionConverter) ToDocument(session *model.Session) (bson.M, error) {
	if session == nil {
		return nil, ErrNilSession
	}

	attrs := bson.M{}
	for name, value := range session.Attributes() {
		if err := ValidateAttributeName(name); err != nil {
			return nil, err
		}
		enc, err := c.encodeValue(value)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		attrs[name] = enc
	}

	var expireAt any
	if at := session.ExpireAt(); !at.IsZero() {
		expireAt = at
	}

	doc := bson.M{
		IDField:         session.ID(),
		CreatedField:    session.CreationTime(),
		AccessedField:   session.LastAccessedTime(),
		IntervalField:   intervalSeconds(session.MaxInactiveInterval()),
		ExpireAtField:   expireAt,
		AttributesField: attrs,
	}
	if principal := session.PrincipalName(); principal != "" {
		doc[PrincipalField] = principal
	}
	return doc, nil
}

// FromDocument rebuilds a session from a document, either one produced by
// ToDocument or one decoded by the driver.
func (c *SessionConverter) FromDocument(doc bson.M) (*model.Session, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrMalformedDocument)
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return c.FromRaw(raw)
}

// FromRaw rebuilds a session from raw BSON.
func (c *SessionConverter) FromRaw(raw bson.Raw) (*model.Session, error) {
	if err := raw.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	idVal, err := lookup(raw, IDField)
	if err != nil {
		return nil, err
	}
	id, ok := idVal.StringValueOK()
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: %s must be a non-empty string", ErrMalformedDocument, IDField)
	}

	created, err := lookupTime(raw, CreatedField)
	if err != nil {
		return nil, err
	}
	accessed, err := lookupTime(raw, AccessedField)
	if err != nil {
		return nil, err
	}
	interval, err := lookupInterval(raw)
	if err != nil {
		return nil, err
	}

	expireVal, err := lookup(raw, ExpireAtField)
	if err != nil {
		return nil, err
	}
	if expireVal.Type != bsontype.DateTime && expireVal.Type != bsontype.Null {
		return nil, fmt.Errorf("%w: %s must be a datetime or null, got %s", ErrMalformedDocument, ExpireAtField, expireVal.Type)
	}

	attrs := map[string]any{}
	if attrsVal, err := raw.LookupErr(AttributesField); err == nil {
		if attrsVal.Type != bsontype.EmbeddedDocument {
			return nil, fmt.Errorf("%w: %s must be a document, got %s", ErrMalformedDocument, AttributesField, attrsVal.Type)
		}
		attrs, err = c.decodeMap(bson.Raw(attrsVal.Value))
		if err != nil {
			return nil, fmt.Errorf("attributes of session %s: %w", id, err)
		}
	}

	return model.RestoreSession(id, created, accessed, interval, attrs), nil
}

func lookup(raw bson.Raw, key string) (bson.RawValue, error) {
	v, err := raw.LookupErr(key)
	if err != nil {
		return bson.RawValue{}, fmt.Errorf("%w: missing %s", ErrMalformedDocument, key)
	}
	return v, nil
}

func lookupTime(raw bson.Raw, key string) (time.Time, error) {
	v, err := lookup(raw, key)
	if err != nil {
		return time.Time{}, err
	}
	ms, ok := v.DateTimeOK()
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s must be a datetime, got %s", ErrMalformedDocument, key, v.Type)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// Bounds of an interval, in seconds, that fits a time.Duration.
const (
	minIntervalSeconds = math.MinInt64 / int64(time.Second)
	maxIntervalSeconds = math.MaxInt64 / int64(time.Second)
)

func lookupInterval(raw bson.Raw) (time.Duration, error) {
	v, err := lookup(raw, IntervalField)
	if err != nil {
		return 0, err
	}
	var seconds int64
	switch v.Type {
	case bsontype.Int32:
		seconds = int64(v.Int32())
	case bsontype.Int64:
		seconds = v.Int64()
	case bsontype.Double:
		f := v.Double()
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("%w: %s must be a whole number of seconds", ErrMalformedDocument, IntervalField)
		}
		if f < float64(minIntervalSeconds) || f > float64(maxIntervalSeconds) {
			return 0, fmt.Errorf("%w: %s %v out of range", ErrMalformedDocument, IntervalField, f)
		}
		seconds = int64(f)
	default:
		return 0, fmt.Errorf("%w: %s must be a number, got %s", ErrMalformedDocument, IntervalField, v.Type)
	}
	if seconds < minIntervalSeconds || seconds > maxIntervalSeconds {
		return 0, fmt.Errorf("%w: %s %d out of range", ErrMalformedDocument, IntervalField, seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}

func intervalSeconds(d time.Duration) any {
	seconds := int64(d / time.Second)
	if seconds >= math.MinInt32 && seconds <= math.MaxInt32 {
		return int32(seconds)
	}
	return seconds
}
