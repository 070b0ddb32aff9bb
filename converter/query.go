package converter

import (
	"fmt"
	"strings"

	"mongosession/model"

	"go.mongodb.org/mongo-driver/bson"
)

// QueryForIndex returns a filter matching sessions whose attribute name holds
// value. The principal-name index is served by the top-level principal field.
func (c *SessionConverter) QueryForIndex(name string, value any) (bson.M, error) {
	if name == model.PrincipalNameIndexName {
		return bson.M{PrincipalField: value}, nil
	}
	if err := ValidateAttributeName(name); err != nil {
		return nil, err
	}
	enc, err := c.encodeValue(value)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", name, err)
	}
	return bson.M{AttributesField + "." + name: enc}, nil
}

// ValidateAttributeName rejects names that cannot be addressed as a single
// path segment.
func ValidateAttributeName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidAttributeName)
	case strings.HasPrefix(name, "$"):
		return fmt.Errorf("%w: %q starts with $", ErrInvalidAttributeName, name)
	case strings.ContainsAny(name, ".\x00"):
		return fmt.Errorf("%w: %q contains a dot or NUL", ErrInvalidAttributeName, name)
	}
	return nil
}
