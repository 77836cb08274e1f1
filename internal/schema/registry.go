package schema

import (
	"fmt"
	"log/slog"
	"slices"
)

// Registry maps revisions to their schemas. It is built once and never mutated.
type Registry struct {
	schemas map[Revision]*Schema
	order   []Revision
}

// NewRegistry collects schemas, oldest first. Every schema's alarm catalog
// must extend the catalog of the first one.
func NewRegistry(logger *slog.Logger, schemas ...*Schema) (*Registry, error) {
	if len(schemas) == 0 {
		return nil, fmt.Errorf("schema: registry needs at least one schema")
	}
	r := &Registry{schemas: make(map[Revision]*Schema, len(schemas))}
	base := schemas[0].Alarms()
	for _, s := range schemas {
		if _, dup := r.schemas[s.Revision()]; dup {
			return nil, fmt.Errorf("schema: revision %s registered twice", s.Revision())
		}
		if !s.Alarms().Extends(base) {
			return nil, fmt.Errorf("schema %s: alarm catalog reorders bits of %s", s.Revision(), schemas[0].Revision())
		}
		r.schemas[s.Revision()] = s
		r.order = append(r.order, s.Revision())
		logger.Debug("schema registered",
			"revision", s.Revision(),
			"fields", len(s.def.Fields),
			"status_layout", s.StatusLayout().String(),
		)
	}
	return r, nil
}

// Builtin returns the registry of every known charger revision.
func Builtin(logger *slog.Logger) (*Registry, error) {
	defs := Definitions()
	schemas := make([]*Schema, 0, len(defs))
	for _, def := range defs {
		s, err := New(def)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
	}
	return NewRegistry(logger, schemas...)
}

// Get returns the schema for a revision.
func (r *Registry) Get(rev Revision) (*Schema, bool) {
	s, ok := r.schemas[rev]
	return s, ok
}

// Revisions lists registered revisions, oldest first.
func (r *Registry) Revisions() []Revision {
	return slices.Clone(r.order)
}

// Latest returns the newest registered schema.
func (r *Registry) Latest() *Schema {
	return r.schemas[r.order[len(r.order)-1]]
}
