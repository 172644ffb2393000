package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"course-rag/internal/models"
)

// Tool is a named capability the language model may invoke.
type Tool interface {
	Definition() models.ToolDefinition
	Invoke(ctx context.Context, args json.RawMessage) (models.ToolResult, error)
}

// Registry holds tools by name in registration order.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds a tool. A second tool with the same name is a configuration
// error.
func (r *Registry) Register(t Tool) error {
	name := t.Definition().Name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("%w: %s", models.ErrDuplicateTool, name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Definitions returns the tool schemas for a model request.
func (r *Registry) Definitions() []models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]models.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Dispatch forwards a call to the named tool.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) (models.ToolResult, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return models.ToolResult{}, fmt.Errorf("%w: %s", models.ErrToolNotFound, name)
	}
	return t.Invoke(ctx, args)
}

// Scope returns a dispatcher whose provenance is private to one query.
func (r *Registry) Scope() *Scope {
	return &Scope{registry: r}
}

// Scope records the sources of the last call it dispatched. It is meant for
// a single query and is not safe for concurrent use.
type Scope struct {
	registry *Registry
	last     []models.Source
}

func (s *Scope) Dispatch(ctx context.Context, name string, args json.RawMessage) (models.ToolResult, error) {
	result, err := s.registry.Dispatch(ctx, name, args)
	if err != nil {
		s.last = nil
		return result, err
	}
	s.last = result.Sources
	return result, nil
}

// DrainLastSources returns the sources of the last call once and clears them.
func (s *Scope) DrainLastSources() []models.Source {
	sources := s.last
	s.last = nil
	return sources
}
