// Package codec translates between raw charger attributes and canonical state.
//
// A Codec is bound to exactly one schema revision. Decode turns attribute
// reports and read responses into a State patch; EncodeSet and EncodeGet turn
// canonical keys into wire operations. Decode never fails: attributes the
// schema does not know, or values of the wrong shape, are skipped.
package codec

import (
	"log/slog"

	"github.com/go-playground/validator/v10"

	"amina-zigbee/internal/schema"
)

// Codec decodes and encodes charger attributes for one schema revision.
// It holds no mutable state and is safe for concurrent use.
type Codec struct {
	schema   *schema.Schema
	validate *validator.Validate
	logger   *slog.Logger
}

// New returns a codec for s.
func New(s *schema.Schema, logger *slog.Logger) *Codec {
	return &Codec{
		schema:   s,
		validate: newValidator(),
		logger:   logger.With("component", "codec", "revision", s.Revision()),
	}
}

// Schema returns the schema the codec is bound to.
func (c *Codec) Schema() *schema.Schema {
	return c.schema
}
