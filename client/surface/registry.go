package surface

import (
	"fmt"
	"slices"
	"sync"
)

// Point is a node position in layout units.
type Point struct {
	X float64
	Y float64
}

// Layout computes node positions.
type Layout interface {
	Place(nodes []string, edges [][2]string, direction Direction) map[string]Point
}

// Registry holds the capabilities surfaces are built with: layouts, context
// menus and edge handles. Build it once and pass it to every surface.
type Registry struct {
	mu            sync.RWMutex
	layouts       map[string]Layout
	defaultLayout string
	menus         map[Group][]string
	edgeHandles   bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		layouts: make(map[string]Layout),
		menus:   make(map[Group][]string),
	}
}

// DefaultRegistry has the layered layout and the node and edge menus.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.RegisterLayout("layered", NewLayered(80, 1.5), true)
	_ = r.RegisterMenu(GroupNode, "info", "edit", "delete")
	_ = r.RegisterMenu(GroupEdge, "add", "delete")
	r.EnableEdgeHandles()
	return r
}

// RegisterLayout adds a layout under name. The first layout registered, or
// one registered with asDefault, is used by RunLayout.
func (r *Registry) RegisterLayout(name string, l Layout, asDefault bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.layouts[name]; ok {
		return fmt.Errorf("layout %q already registered", name)
	}
	r.layouts[name] = l
	if asDefault || r.defaultLayout == "" {
		r.defaultLayout = name
	}
	return nil
}

// RegisterMenu defines the commands of a context menu.
func (r *Registry) RegisterMenu(group Group, commands ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.menus[group]; ok {
		return fmt.Errorf("menu %q already registered", group)
	}
	r.menus[group] = slices.Clone(commands)
	return nil
}

// EnableEdgeHandles allows drag-to-connect gestures.
func (r *Registry) EnableEdgeHandles() {
	r.mu.Lock()
	r.edgeHandles = true
	r.mu.Unlock()
}

// Layout returns the default layout.
func (r *Registry) Layout() (Layout, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.layouts[r.defaultLayout]
	return l, ok
}

// HasCommand reports whether command is on the menu of group.
func (r *Registry) HasCommand(group Group, command string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.menus[group], command)
}

// EdgeHandles reports whether drag-to-connect is available.
func (r *Registry) EdgeHandles() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.edgeHandles
}
