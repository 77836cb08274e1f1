package codec

import (
	"errors"
	"fmt"

	"amina-zigbee/internal/schema"
)

// ErrUnsupportedKey is returned for canonical keys the codec cannot encode in
// the requested direction.
var ErrUnsupportedKey = errors.New("codec: unsupported key")

// SchemaMissError reports that the active schema has no binding for a key.
// It is a configuration error: the caller asked for a field the device
// revision does not carry.
type SchemaMissError struct {
	Revision schema.Revision
	Field    string
}

func (e *SchemaMissError) Error() string {
	return fmt.Sprintf("codec: revision %s has no field %q", e.Revision, e.Field)
}

// ValidationError reports a set request rejected before any wire operation.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("codec: invalid %s value %v: %s", e.Field, e.Value, e.Reason)
}

func hexID(id uint16) string {
	return fmt.Sprintf("0x%04X", id)
}
