package flow

import (
	"encoding/json"
	"fmt"
)

// The wire types mirror the external authoring format. Fields a node variant
// does not legitimately use are dropped on decode rather than carried around
// as an open dictionary.

type graphJSON struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Nodes    []nodeJSON    `json:"nodes"`
	Edges    []edgeJSON    `json:"edges"`
	Triggers []triggerJSON `json:"triggers"`
}

type nodeJSON struct {
	ID            string           `json:"id"`
	Text          string           `json:"text"`
	ImageURL      string           `json:"imageUrl,omitempty"`
	InputMode     InputMode        `json:"inputMode"`
	QuickReplies  []quickReplyJSON `json:"quickReplies,omitempty"`
	CollectsField string           `json:"collectsField,omitempty"`
	Placeholder   string           `json:"placeholder,omitempty"`
}

type quickReplyJSON struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	Payload      string `json:"payload"`
	TargetNodeID string `json:"targetNodeId,omitempty"`
}

type edgeJSON struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	QuickReplyID string `json:"quickReplyId,omitempty"`
}

type triggerJSON struct {
	ID          string    `json:"id"`
	Keywords    []string  `json:"keywords"`
	MatchType   MatchType `json:"matchType"`
	StartNodeID string    `json:"startNodeId,omitempty"`
}

// Decode parses the authoring JSON document into a Graph owned by the given
// account.
func Decode(accountID string, document []byte) (*Graph, error) {
	var doc graphJSON
	if err := json.Unmarshal(document, &doc); err != nil {
		return nil, fmt.Errorf("flow: decode graph: %w", err)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("flow: decode graph: missing id")
	}
	if doc.Status != StatusDraft && doc.Status != StatusActive {
		return nil, fmt.Errorf("flow: decode graph %s: unknown status %q", doc.ID, doc.Status)
	}

	nodes := make([]Node, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		node := Node{
			ID:        n.ID,
			Text:      n.Text,
			ImageURL:  n.ImageURL,
			InputMode: n.InputMode,
		}
		switch n.InputMode {
		case InputButtons:
			for _, qr := range n.QuickReplies {
				node.QuickReplies = append(node.QuickReplies, QuickReply{
					ID:           qr.ID,
					Label:        qr.Label,
					Payload:      qr.Payload,
					TargetNodeID: qr.TargetNodeID,
				})
			}
		case InputFreeText:
			node.CollectsField = n.CollectsField
			node.Placeholder = n.Placeholder
		default:
			return nil, fmt.Errorf("flow: decode graph %s: node %s has unknown input mode %q", doc.ID, n.ID, n.InputMode)
		}
		nodes = append(nodes, node)
	}

	edges := make([]Edge, 0, len(doc.Edges))
	for _, e := range doc.Edges {
		edges = append(edges, Edge{ID: e.ID, Source: e.Source, Target: e.Target, QuickReplyID: e.QuickReplyID})
	}

	triggers := make([]Trigger, 0, len(doc.Triggers))
	for _, t := range doc.Triggers {
		mt := t.MatchType
		if mt != MatchExact && mt != MatchContains {
			return nil, fmt.Errorf("flow: decode graph %s: trigger %s has unknown match type %q", doc.ID, t.ID, t.MatchType)
		}
		triggers = append(triggers, Trigger{
			ID:          t.ID,
			Keywords:    t.Keywords,
			MatchType:   mt,
			StartNodeID: t.StartNodeID,
		})
	}

	return New(doc.ID, accountID, doc.Name, doc.Status, nodes, edges, triggers), nil
}

// Encode renders the graph back into the authoring JSON document. Decode and
// Encode round-trip.
func Encode(g *Graph) ([]byte, error) {
	doc := graphJSON{
		ID:     g.ID,
		Name:   g.Name,
		Status: g.Status,
	}
	for _, n := range g.nodes {
		nj := nodeJSON{
			ID:            n.ID,
			Text:          n.Text,
			ImageURL:      n.ImageURL,
			InputMode:     n.InputMode,
			CollectsField: n.CollectsField,
			Placeholder:   n.Placeholder,
		}
		for _, qr := range n.QuickReplies {
			nj.QuickReplies = append(nj.QuickReplies, quickReplyJSON{
				ID:           qr.ID,
				Label:        qr.Label,
				Payload:      qr.Payload,
				TargetNodeID: qr.TargetNodeID,
			})
		}
		doc.Nodes = append(doc.Nodes, nj)
	}
	for _, e := range g.edges {
		doc.Edges = append(doc.Edges, edgeJSON{ID: e.ID, Source: e.Source, Target: e.Target, QuickReplyID: e.QuickReplyID})
	}
	for _, t := range g.triggers {
		doc.Triggers = append(doc.Triggers, triggerJSON{
			ID:          t.ID,
			Keywords:    t.Keywords,
			MatchType:   t.MatchType,
			StartNodeID: t.StartNodeID,
		})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("flow: encode graph %s: %w", g.ID, err)
	}
	return data, nil
}
