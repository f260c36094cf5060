// Package events defines the domain event taxonomy shared by the drawer, the
// client sync service and the server, plus the broadcast wire codec.
package events

// Type tags a domain event. A plain type records an intent submitted by a
// client; its Success counterpart records a change confirmed by the log.
type Type string

const (
	TypeInit Type = "Init"

	TypeAddNode        Type = "AddNode"
	TypeAddNodeSuccess Type = "AddNodeSuccess"

	TypeAddEdge        Type = "AddEdge"
	TypeAddEdgeSuccess Type = "AddEdgeSuccess"

	TypeAddNodeToEdge        Type = "AddNodeToEdge"
	TypeAddNodeToEdgeSuccess Type = "AddNodeToEdgeSuccess"

	TypeDeleteNode        Type = "DeleteNode"
	TypeDeleteNodeSuccess Type = "DeleteNodeSuccess"

	TypeDeleteEdge        Type = "DeleteEdge"
	TypeDeleteEdgeSuccess Type = "DeleteEdgeSuccess"

	TypeAddEdgePreview    Type = "AddEdgePreview"
	TypeRemoveEdgePreview Type = "RemoveEdgePreview"

	TypeViewNode   Type = "ViewNode"
	TypeUpdateNode Type = "UpdateNode"
)

// Topic is the broadcast channel every accepted event is published on.
const Topic = "events"

var knownTypes = map[Type]struct{}{
	TypeInit: {}, TypeAddNode: {}, TypeAddNodeSuccess: {}, TypeAddEdge: {},
	TypeAddEdgeSuccess: {}, TypeAddNodeToEdge: {}, TypeAddNodeToEdgeSuccess: {},
	TypeDeleteNode: {}, TypeDeleteNodeSuccess: {}, TypeDeleteEdge: {},
	TypeDeleteEdgeSuccess: {}, TypeAddEdgePreview: {}, TypeRemoveEdgePreview: {},
	TypeViewNode: {}, TypeUpdateNode: {},
}

// Known reports whether t belongs to the taxonomy.
func (t Type) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// IsConfirmation reports whether t is a Success event.
func (t Type) IsConfirmation() bool {
	switch t {
	case TypeAddNodeSuccess, TypeAddEdgeSuccess, TypeAddNodeToEdgeSuccess,
		TypeDeleteNodeSuccess, TypeDeleteEdgeSuccess:
		return true
	}
	return false
}

// IsEphemeral reports whether t only drives local visual feedback.
func (t Type) IsEphemeral() bool {
	return t == TypeAddEdgePreview || t == TypeRemoveEdgePreview
}

// IsPersistable reports whether a client should forward t to the server.
// Only confirmations change canonical state; intents, previews and
// informational events stay local.
func (t Type) IsPersistable() bool {
	return t.IsConfirmation()
}

func (t Type) String() string { return string(t) }
