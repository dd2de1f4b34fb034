// Package graph holds the secondary graph representation of chat state.
// Mutations are expressed as merge ops with natural-key addressing so
// that replaying the same event converges instead of duplicating.
package graph

import "context"

// Node kinds.
const (
	KindUser         = "User"
	KindConversation = "Conversation"
	KindMessage      = "Message"
	KindTopic        = "Topic"
	KindSubTopic     = "SubTopic"
)

// Edge relations.
const (
	RelOwns         = "OWNS"
	RelHasTopic     = "HAS_TOPIC"
	RelHasSubTopic  = "HAS_SUBTOPIC"
	RelHasMessage   = "HAS_MESSAGE"
	RelGaveFeedback = "GAVE_FEEDBACK"
)

// Props is a property bag attached to a node or edge.
type Props map[string]any

// Op is one graph mutation. Ops in a batch apply atomically.
type Op interface {
	isOp()
}

// MergeNode creates the node if absent, then overlays props onto any
// existing ones (last write wins per key).
type MergeNode struct {
	Kind  string
	Key   string
	Props Props
}

// MergeEdge creates the edge if absent and overlays props. Endpoint
// nodes must be merged in the same batch or an earlier one.
type MergeEdge struct {
	Rel     string
	SrcKind string
	SrcKey  string
	DstKind string
	DstKey  string
	Props   Props
}

// DeleteEdges removes every Rel-edge leaving the given node. Paired
// with MergeEdge it gives wholesale edge-set replacement.
type DeleteEdges struct {
	Rel     string
	SrcKind string
	SrcKey  string
}

func (MergeNode) isOp()   {}
func (MergeEdge) isOp()   {}
func (DeleteEdges) isOp() {}

// Node is a stored graph node.
type Node struct {
	Kind  string
	Key   string
	Props Props
}

// Edge is a stored graph edge.
type Edge struct {
	Rel     string
	SrcKind string
	SrcKey  string
	DstKind string
	DstKey  string
	Props   Props
}

// Store applies op batches atomically and answers simple lookups.
type Store interface {
	// Apply runs all ops in one transaction. Either every op commits
	// or none do.
	Apply(ctx context.Context, ops []Op) error

	GetNode(ctx context.Context, kind, key string) (*Node, error)
	EdgesFrom(ctx context.Context, rel, srcKind, srcKey string) ([]Edge, error)
	NodeCount(ctx context.Context) (int, error)
	EdgeCount(ctx context.Context) (int, error)
}
