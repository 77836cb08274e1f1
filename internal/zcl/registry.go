package zcl

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds known ZCL cluster definitions by cluster ID.
type Registry struct {
	mu       sync.RWMutex
	clusters map[uint16]ClusterDef
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		clusters: make(map[uint16]ClusterDef),
		logger:   logger,
	}
}

// Register adds or replaces a cluster definition.
func (r *Registry) Register(c ClusterDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.Attributes = append([]AttributeDef(nil), c.Attributes...)
	c.Commands = append([]CommandDef(nil), c.Commands...)
	if _, ok := r.clusters[c.ID]; ok {
		r.logger.Debug("cluster replaced", "id", fmt.Sprintf("0x%04X", c.ID), "name", c.Name)
	} else {
		r.logger.Debug("cluster registered", "id", fmt.Sprintf("0x%04X", c.ID), "name", c.Name)
	}
	r.clusters[c.ID] = c
}

// Get returns a cluster definition by ID.
func (r *Registry) Get(id uint16) (ClusterDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clusters[id]
	return c, ok
}

// Attribute resolves an attribute of a registered cluster by ID.
func (r *Registry) Attribute(cluster, id uint16) (AttributeDef, bool) {
	c, ok := r.Get(cluster)
	if !ok {
		return AttributeDef{}, false
	}
	return c.FindAttribute(id)
}

// AttributeByName resolves an attribute of a registered cluster by name.
func (r *Registry) AttributeByName(cluster uint16, name string) (AttributeDef, bool) {
	c, ok := r.Get(cluster)
	if !ok {
		return AttributeDef{}, false
	}
	return c.FindAttributeByName(name)
}

// All returns all registered cluster definitions sorted by ID.
func (r *Registry) All() []ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]ClusterDef, 0, len(r.clusters))
	for _, c := range r.clusters {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
