// Package drawer turns user interactions on a surface into domain events and
// applies server confirmations back onto it.
//
// A Drawer is owned by one goroutine; use a Loop to drive it from others.
package drawer

import (
	"errors"
	"fmt"

	"graphsync/client/surface"
	"graphsync/domain/events"
	"graphsync/domain/graph"

	"github.com/google/uuid"
)

var (
	ErrAlreadyInitialized = errors.New("drawer already initialized")
	ErrNotInitialized     = errors.New("drawer not initialized")
	ErrCannotConnect      = errors.New("cannot connect nodes")
)

// Options control the events produced when an element is added.
type Options struct {
	// EmitEvent emits the intent (AddNode, AddEdge) right away.
	EmitEvent bool
	// EmitCreate emits the confirmation once the surface reports the add.
	EmitCreate bool
	// EmitDelete emits the confirmation once the surface reports a removal.
	EmitDelete bool
}

// Local is the policy of elements created by this client.
var Local = Options{EmitEvent: true, EmitCreate: true, EmitDelete: true}

// Confirmed is the policy of elements that came from the canonical state.
var Confirmed = Options{EmitEvent: false, EmitCreate: false, EmitDelete: true}

// Policy is kept per element id, beside the element rather than on it.
type Policy struct {
	EmitCreate bool
	EmitDelete bool
}

// Observer receives domain events.
type Observer func(events.Event)

// Option configures a Drawer.
type Option func(*Drawer)

// WithLocalObserver receives the events this client produces.
func WithLocalObserver(o Observer) Option {
	return func(d *Drawer) { d.local = o }
}

// WithServerObserver receives the confirmations applied by ApplyConfirmed.
func WithServerObserver(o Observer) Option {
	return func(d *Drawer) { d.server = o }
}

// WithIDGenerator overrides the id source for nodes created from menus.
func WithIDGenerator(fn func() string) Option {
	return func(d *Drawer) { d.newID = fn }
}

// WithNewNode sets kind and label of nodes created from the edge menu.
func WithNewNode(kind, label string) Option {
	return func(d *Drawer) {
		d.newKind = kind
		d.newLabel = label
	}
}

// Drawer is the client-side state machine of one graph.
type Drawer struct {
	surface  surface.Surface
	policies map[string]Policy

	local  Observer
	server Observer
	last   events.Event

	newID    func() string
	newKind  string
	newLabel string

	onError func(error)

	direction   surface.Direction
	initialized bool
	applying    bool
	unlisten    func()
}

// New creates an uninitialized drawer over s.
func New(s surface.Surface, opts ...Option) *Drawer {
	d := &Drawer{
		surface:   s,
		policies:  make(map[string]Policy),
		last:      events.Event{Type: events.TypeInit},
		newID:     uuid.NewString,
		newKind:   "faucet",
		newLabel:  "Canilla #50",
		direction: surface.DirectionTB,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Initialize wires the drawer to its surface. It runs once.
func (d *Drawer) Initialize() error {
	if d.initialized {
		return ErrAlreadyInitialized
	}
	d.initialized = true

	d.surface.SetConnectPredicate(d.CanConnect)
	d.unlisten = d.surface.Listen(d.onSignal)
	d.emit(events.Event{Type: events.TypeInit})
	return d.SetupLayout(surface.DirectionTB)
}

// Close detaches the drawer from its surface.
func (d *Drawer) Close() {
	if d.unlisten != nil {
		d.unlisten()
		d.unlisten = nil
	}
}

// Last returns the most recent local event; Init before anything else.
func (d *Drawer) Last() events.Event {
	return d.last
}

// PolicyOf returns the policy recorded for an element.
func (d *Drawer) PolicyOf(id string) (Policy, bool) {
	p, ok := d.policies[id]
	return p, ok
}

// AddNode adds node to the surface. Adding a node that is already present
// does nothing.
func (d *Drawer) AddNode(node graph.Node, opts Options) error {
	if err := d.ready(); err != nil {
		return err
	}
	if node.ID == "" {
		return fmt.Errorf("add node: empty id")
	}
	if d.surface.HasNode(node.ID) {
		return nil
	}
	if opts.EmitEvent {
		d.emit(mustEvent(events.TypeAddNode, node))
	}
	d.policies[node.ID] = policyOf(opts)
	if err := d.surface.AddNode(node, surface.Meta{}); err != nil {
		delete(d.policies, node.ID)
		return err
	}
	return nil
}

// AddEdge adds edge to the surface under its derived id.
func (d *Drawer) AddEdge(edge graph.Edge, opts Options) error {
	if err := d.ready(); err != nil {
		return err
	}
	edge = edge.Normalize()
	if !d.CanConnect(edge.Source, edge.Target) {
		return fmt.Errorf("%w: %s", ErrCannotConnect, edge.ID)
	}
	if opts.EmitEvent {
		d.emit(mustEvent(events.TypeAddEdge, edge))
	}
	d.policies[edge.ID] = policyOf(opts)
	if err := d.surface.AddEdge(edge, surface.Meta{}); err != nil {
		delete(d.policies, edge.ID)
		return err
	}
	return nil
}

// RemoveNodeFromGraph removes a node and its incident edges.
func (d *Drawer) RemoveNodeFromGraph(id string, emitEvent bool) error {
	if err := d.ready(); err != nil {
		return err
	}
	if !d.surface.HasNode(id) {
		return fmt.Errorf("remove node %s: %w", id, surface.ErrNotFound)
	}
	if emitEvent {
		d.emit(mustEvent(events.TypeDeleteNode, id))
	}
	return d.surface.RemoveNode(id)
}

// RemoveEdgeFromGraph removes an edge.
func (d *Drawer) RemoveEdgeFromGraph(id string, emitEvent bool) error {
	if err := d.ready(); err != nil {
		return err
	}
	if !d.surface.HasEdge(id) {
		return fmt.Errorf("remove edge %s: %w", id, surface.ErrNotFound)
	}
	if emitEvent {
		d.emit(mustEvent(events.TypeDeleteEdge, id))
	}
	return d.surface.RemoveEdge(id)
}

// AddNodeToEdge splices node into the edge between sourceID and targetID.
func (d *Drawer) AddNodeToEdge(sourceID, targetID, edgeID string, node graph.Node) error {
	if err := d.ready(); err != nil {
		return err
	}
	edge, ok := d.surface.Edge(edgeID)
	if !ok {
		return fmt.Errorf("splice into %s: %w", edgeID, surface.ErrNotFound)
	}
	if edge.Source != sourceID || edge.Target != targetID {
		return fmt.Errorf("splice into %s: endpoints %s/%s do not match", edgeID, sourceID, targetID)
	}
	if node.ID == "" || d.surface.HasNode(node.ID) {
		return fmt.Errorf("splice node %q: %w", node.ID, surface.ErrExists)
	}

	payload := graph.SplicePayload{SourceID: sourceID, TargetID: targetID, EdgeID: edgeID, Node: node}
	d.emit(mustEvent(events.TypeAddNodeToEdge, payload))
	d.remember(policyOf(Local), node.ID, payload.ReplacementEdges())
	return d.surface.SpliceNodeIntoEdge(node, edgeID)
}

// SetDrawMode toggles drag-to-connect.
func (d *Drawer) SetDrawMode(enabled bool) {
	d.surface.SetDrawMode(enabled)
}

// SetupLayout lays the graph out in direction and remembers it.
func (d *Drawer) SetupLayout(direction surface.Direction) error {
	if err := d.surface.RunLayout(direction); err != nil {
		return err
	}
	d.direction = direction
	return nil
}

// RestartLayout reruns the last layout.
func (d *Drawer) RestartLayout() error {
	return d.SetupLayout(d.direction)
}

// CanConnect reports whether an edge from source to target may be created.
func (d *Drawer) CanConnect(source, target string) bool {
	if source == "" || source == target {
		return false
	}
	if !d.surface.HasNode(source) || !d.surface.HasNode(target) {
		return false
	}
	return !d.surface.HasEdge(graph.EdgeID(source, target))
}

func (d *Drawer) ready() error {
	if !d.initialized {
		return ErrNotInitialized
	}
	return nil
}

func (d *Drawer) emit(ev events.Event) {
	if d.applying {
		return
	}
	d.last = ev
	if d.local != nil {
		d.local(ev)
	}
}

func (d *Drawer) remember(p Policy, nodeID string, edges [2]graph.Edge) {
	d.policies[nodeID] = p
	for _, e := range edges {
		d.policies[e.ID] = p
	}
}

func mustEvent(t events.Type, payload any) events.Event {
	return events.MustNew(t, payload)
}
