package workflow

import (
	"slices"
	"sync"

	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/steps"
)

// Factory builds a fresh instance for one run of w.
type Factory func(w *domain.Workflow) steps.Instance

// TypeInfo describes a registered workflow type.
type TypeInfo struct {
	Type        domain.WorkflowType `json:"type"`
	Description string              `json:"description"`
}

type catalogEntry struct {
	info    TypeInfo
	factory Factory
}

// Catalog is the closed set of workflow types the manager accepts.
type Catalog struct {
	mu      sync.RWMutex
	entries map[domain.WorkflowType]catalogEntry
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: map[domain.WorkflowType]catalogEntry{}}
}

// Register adds or replaces a workflow type.
func (c *Catalog) Register(t domain.WorkflowType, description string, factory Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[t] = catalogEntry{info: TypeInfo{Type: t, Description: description}, factory: factory}
}

// Lookup returns the factory for t, or an *domain.UnknownWorkflowTypeError.
func (c *Catalog) Lookup(t domain.WorkflowType) (Factory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[t]
	if !ok {
		return nil, &domain.UnknownWorkflowTypeError{Type: t}
	}
	return entry.factory, nil
}

// Types lists registered types sorted by name.
func (c *Catalog) Types() []TypeInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	types := make([]TypeInfo, 0, len(c.entries))
	for _, entry := range c.entries {
		types = append(types, entry.info)
	}
	slices.SortFunc(types, func(a, b TypeInfo) int {
		if a.Type < b.Type {
			return -1
		}
		if a.Type > b.Type {
			return 1
		}
		return 0
	})
	return types
}
