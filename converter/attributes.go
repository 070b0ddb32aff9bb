package converter

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// ClassKey carries the registered type name of a tagged attribute value.
	ClassKey = "@class"
	// ValueKey holds the payload of a tagged value that is not a struct.
	ValueKey = "@value"
)

// isNatural reports whether v round-trips through BSON without a type tag.
func isNatural(v any) bool {
	switch v.(type) {
	case nil, string, bool, int32, int64, float64, time.Time, []byte,
		primitive.ObjectID, []any, map[string]any:
		return true
	}
	return false
}

func isStructType(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

// encodeValue turns an attribute value into its stored form.
func (c *SessionConverter) encodeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int32, int64, float64, time.Time, primitive.ObjectID:
		return x, nil
	case []byte:
		return append([]byte(nil), x...), nil
	case []any:
		arr := make(bson.A, 0, len(x))
		for i, elem := range x {
			enc, err := c.encodeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			arr = append(arr, enc)
		}
		return arr, nil
	case map[string]any:
		return c.encodeMap(x)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return nil, nil
	}

	t := rv.Type()
	name, ok := c.registry.NameOf(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredType, t)
	}

	if isStructType(t) {
		raw, err := bson.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrAttributeEncoding, name, err)
		}
		var fields bson.D
		if err := bson.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrAttributeEncoding, name, err)
		}
		for _, f := range fields {
			if f.Key == ClassKey {
				return nil, fmt.Errorf("%w: %s has a field named %s", ErrReservedKey, name, ClassKey)
			}
		}
		return append(bson.D{{Key: ClassKey, Value: name}}, fields...), nil
	}

	bt, data, err := bson.MarshalValue(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAttributeEncoding, name, err)
	}
	return bson.D{
		{Key: ClassKey, Value: name},
		{Key: ValueKey, Value: bson.RawValue{Type: bt, Value: data}},
	}, nil
}

// encodeMap stores a generic map as an untagged document with sorted keys.
func (c *SessionConverter) encodeMap(m map[string]any) (bson.D, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		if k == ClassKey {
			return nil, fmt.Errorf("%w: %q", ErrReservedKey, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		enc, err := c.encodeValue(m[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		doc = append(doc, bson.E{Key: k, Value: enc})
	}
	return doc, nil
}

// decodeValue restores a stored attribute value.
func (c *SessionConverter) decodeValue(rv bson.RawValue) (any, error) {
	switch rv.Type {
	case bsontype.String:
		return rv.StringValue(), nil
	case bsontype.Boolean:
		return rv.Boolean(), nil
	case bsontype.Int32:
		return rv.Int32(), nil
	case bsontype.Int64:
		return rv.Int64(), nil
	case bsontype.Double:
		return rv.Double(), nil
	case bsontype.DateTime:
		return time.UnixMilli(rv.DateTime()).UTC(), nil
	case bsontype.Null, bsontype.Undefined:
		return nil, nil
	case bsontype.ObjectID:
		return rv.ObjectID(), nil
	case bsontype.Binary:
		_, data := rv.Binary()
		return append([]byte(nil), data...), nil
	case bsontype.Array:
		// BSON arrays are documents keyed "0", "1", ...
		elems, err := bson.Raw(rv.Value).Elements()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAttributeEncoding, err)
		}
		out := make([]any, 0, len(elems))
		for i, e := range elems {
			v, err := c.decodeValue(e.Value())
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out = append(out, v)
		}
		return out, nil
	case bsontype.EmbeddedDocument:
		return c.decodeDocument(bson.Raw(rv.Value))
	}
	return nil, fmt.Errorf("%w: unsupported BSON type %s", ErrAttributeEncoding, rv.Type)
}

func (c *SessionConverter) decodeDocument(raw bson.Raw) (any, error) {
	class, err := raw.LookupErr(ClassKey)
	if err != nil {
		return c.decodeMap(raw)
	}

	name, ok := class.StringValueOK()
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a string, got %s", ErrMalformedDocument, ClassKey, class.Type)
	}
	t, ok := c.registry.TypeOf(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}

	if isStructType(t) {
		base := t
		if base.Kind() == reflect.Ptr {
			base = base.Elem()
		}
		ptr := reflect.New(base)
		if err := bson.Unmarshal(raw, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrAttributeEncoding, name, err)
		}
		if t.Kind() == reflect.Ptr {
			return ptr.Interface(), nil
		}
		return ptr.Elem().Interface(), nil
	}

	payload, err := raw.LookupErr(ValueKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s value has no %s", ErrMalformedDocument, name, ValueKey)
	}
	ptr := reflect.New(t)
	if err := payload.Unmarshal(ptr.Interface()); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAttributeEncoding, name, err)
	}
	return ptr.Elem().Interface(), nil
}

func (c *SessionConverter) decodeMap(raw bson.Raw) (map[string]any, error) {
	elems, err := raw.Elements()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttributeEncoding, err)
	}
	out := make(map[string]any, len(elems))
	for _, e := range elems {
		v, err := c.decodeValue(e.Value())
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", e.Key(), err)
		}
		out[e.Key()] = v
	}
	return out, nil
}
