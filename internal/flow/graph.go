// Package flow defines the conversation decision graph: nodes, edges,
// keyword triggers, and the static checks run against them. Graphs are
// authored externally and consumed read-only at runtime.
package flow

import (
	"time"
)

// Status is the lifecycle state of a graph.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
)

// InputMode distinguishes the two node variants: button menus and
// free-text collection.
type InputMode string

const (
	InputButtons  InputMode = "buttons"
	InputFreeText InputMode = "free_text"
)

// MatchType controls how trigger keywords match inbound text.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchContains MatchType = "contains"
)

// QuickReply is a button choice on a node. An empty TargetNodeID means the
// button is unwired.
type QuickReply struct {
	ID           string
	Label        string
	Payload      string
	TargetNodeID string
}

// Node is one step of the graph. QuickReplies is populated only for
// InputButtons nodes, CollectsField and Placeholder only for InputFreeText.
type Node struct {
	ID            string
	Text          string
	ImageURL      string
	InputMode     InputMode
	QuickReplies  []QuickReply
	CollectsField string
	Placeholder   string
}

// Edge connects two nodes. A QuickReplyID tags the edge as a button
// transition; an untagged edge from a free-text node is the fallthrough
// taken after text collection.
type Edge struct {
	ID           string
	Source       string
	Target       string
	QuickReplyID string
}

// Trigger is a keyword rule selecting this graph and an entry node for a
// fresh conversation.
type Trigger struct {
	ID          string
	Keywords    []string
	MatchType   MatchType
	StartNodeID string
}

// Graph is an immutable snapshot of one automation. Nodes live in a flat
// arena with an id index and precomputed adjacency, so runtime lookups never
// scan. The graph may be cyclic.
type Graph struct {
	ID        string
	AccountID string
	Name      string
	Status    Status
	UpdatedAt time.Time

	nodes    []Node
	edges    []Edge
	triggers []Trigger

	nodeIndex map[string]int
	edgesFrom map[int][]int
}

// New builds a Graph snapshot and its indexes. Edges whose source does not
// resolve are kept in the edge list (the linter reports them) but produce no
// adjacency.
func New(id, accountID, name string, status Status, nodes []Node, edges []Edge, triggers []Trigger) *Graph {
	g := &Graph{
		ID:        id,
		AccountID: accountID,
		Name:      name,
		Status:    status,
		nodes:     nodes,
		edges:     edges,
		triggers:  triggers,
		nodeIndex: make(map[string]int, len(nodes)),
		edgesFrom: make(map[int][]int),
	}
	for i := range nodes {
		g.nodeIndex[nodes[i].ID] = i
	}
	for i := range edges {
		src, ok := g.nodeIndex[edges[i].Source]
		if !ok {
			continue
		}
		g.edgesFrom[src] = append(g.edgesFrom[src], i)
	}
	return g
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	idx, ok := g.nodeIndex[id]
	if !ok {
		return nil, false
	}
	return &g.nodes[idx], true
}

// Nodes returns the node arena in declaration order.
func (g *Graph) Nodes() []Node { return g.nodes }

// Edges returns all edges in declaration order.
func (g *Graph) Edges() []Edge { return g.edges }

// Triggers returns the triggers in declaration order.
func (g *Graph) Triggers() []Trigger { return g.triggers }

// Outgoing returns the edges leaving the given node.
func (g *Graph) Outgoing(nodeID string) []Edge {
	idx, ok := g.nodeIndex[nodeID]
	if !ok {
		return nil
	}
	indices := g.edgesFrom[idx]
	if len(indices) == 0 {
		return nil
	}
	out := make([]Edge, 0, len(indices))
	for _, ei := range indices {
		out = append(out, g.edges[ei])
	}
	return out
}

// Fallthrough returns the target of the single untagged edge leaving the
// node, used after free-text collection.
func (g *Graph) Fallthrough(nodeID string) (string, bool) {
	for _, e := range g.Outgoing(nodeID) {
		if e.QuickReplyID == "" && e.Target != "" {
			return e.Target, true
		}
	}
	return "", false
}

// QuickReply resolves a button on the node by payload first, then by id.
func (n *Node) QuickReply(payloadOrID string) (*QuickReply, bool) {
	for i := range n.QuickReplies {
		if n.QuickReplies[i].Payload == payloadOrID {
			return &n.QuickReplies[i], true
		}
	}
	for i := range n.QuickReplies {
		if n.QuickReplies[i].ID == payloadOrID {
			return &n.QuickReplies[i], true
		}
	}
	return nil, false
}

// Terminal reports whether a node has no way out: no outgoing edges and no
// quick reply with a wired target.
func (g *Graph) Terminal(nodeID string) bool {
	node, ok := g.Node(nodeID)
	if !ok {
		return true
	}
	for _, qr := range node.QuickReplies {
		if qr.TargetNodeID != "" {
			return false
		}
	}
	for _, e := range g.Outgoing(nodeID) {
		if e.Target != "" {
			return false
		}
	}
	return true
}
