package converter

import "errors"

var (
	// ErrMalformedDocument is returned when a document lacks a reserved field or
	// holds it with the wrong BSON type.
	ErrMalformedDocument = errors.New("malformed session document")

	// ErrUnregisteredType is returned when an attribute value's Go type has no
	// entry in the type registry.
	ErrUnregisteredType = errors.New("attribute type not registered")

	// ErrUnknownType is returned when a stored type discriminator names no
	// registered type.
	ErrUnknownType = errors.New("unknown attribute type")

	// ErrAttributeEncoding is returned when an attribute value cannot be
	// marshalled to or unmarshalled from BSON.
	ErrAttributeEncoding = errors.New("attribute encoding failed")

	ErrReservedKey          = errors.New("reserved key in attribute map")
	ErrInvalidAttributeName = errors.New("invalid attribute name")
	ErrNilSession           = errors.New("session cannot be nil")
)
