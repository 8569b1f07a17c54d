package flow

import "fmt"

// Severity classifies a lint finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one structural finding on a graph.
type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// HasErrors reports whether any issue in the list is an error.
func HasErrors(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Lint validates the structural integrity of a graph. Dangling references to
// missing nodes are errors; unwired ("" target) references and unreachable
// nodes are warnings. The graph may contain cycles, so reachability uses a
// visited-set BFS.
func Lint(g *Graph) []Issue {
	var issues []Issue

	exists := func(nodeID string) bool {
		_, ok := g.Node(nodeID)
		return ok
	}

	for _, e := range g.Edges() {
		if !exists(e.Source) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "edge_source_missing",
				Message:  fmt.Sprintf("edge %s references missing source node %q", e.ID, e.Source),
			})
		}
		if e.Target == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Code:     "edge_unwired",
				Message:  fmt.Sprintf("edge %s has no target", e.ID),
			})
		} else if !exists(e.Target) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "edge_target_missing",
				Message:  fmt.Sprintf("edge %s references missing target node %q", e.ID, e.Target),
			})
		}
	}

	for _, n := range g.Nodes() {
		for _, qr := range n.QuickReplies {
			if qr.TargetNodeID == "" {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Code:     "quick_reply_unwired",
					Message:  fmt.Sprintf("quick reply %s on node %s has no target", qr.ID, n.ID),
				})
			} else if !exists(qr.TargetNodeID) {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Code:     "quick_reply_target_missing",
					Message:  fmt.Sprintf("quick reply %s on node %s references missing node %q", qr.ID, n.ID, qr.TargetNodeID),
				})
			}
		}
	}

	starts := make([]string, 0, len(g.Triggers()))
	for _, t := range g.Triggers() {
		hasKeyword := false
		for _, kw := range t.Keywords {
			if kw != "" {
				hasKeyword = true
				break
			}
		}
		if !hasKeyword {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "trigger_no_keywords",
				Message:  fmt.Sprintf("trigger %s has no keywords", t.ID),
			})
		}
		if t.StartNodeID == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Code:     "trigger_unwired",
				Message:  fmt.Sprintf("trigger %s has no start node", t.ID),
			})
		} else if !exists(t.StartNodeID) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "trigger_start_missing",
				Message:  fmt.Sprintf("trigger %s references missing start node %q", t.ID, t.StartNodeID),
			})
		} else {
			starts = append(starts, t.StartNodeID)
		}
	}

	if g.Status == StatusActive && len(g.Triggers()) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Code:     "active_without_triggers",
			Message:  "active graph has no triggers",
		})
	}

	for _, nodeID := range unreachable(g, starts) {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Code:     "node_unreachable",
			Message:  fmt.Sprintf("node %s is not reachable from any trigger start", nodeID),
		})
	}

	return issues
}

// unreachable returns node ids not reachable from the given start nodes,
// following both edges and quick-reply targets.
func unreachable(g *Graph, starts []string) []string {
	if len(g.Nodes()) == 0 {
		return nil
	}

	visited := make(map[string]bool, len(g.Nodes()))
	queue := make([]string, 0, len(starts))
	for _, s := range starts {
		if !visited[s] {
			visited[s] = true
			queue = append(queue, s)
		}
	}

	for len(queue) > 0 {
		nodeID := queue[0]
		queue = queue[1:]

		node, ok := g.Node(nodeID)
		if !ok {
			continue
		}
		var targets []string
		for _, qr := range node.QuickReplies {
			targets = append(targets, qr.TargetNodeID)
		}
		for _, e := range g.Outgoing(nodeID) {
			targets = append(targets, e.Target)
		}
		for _, target := range targets {
			if target == "" || visited[target] {
				continue
			}
			if _, ok := g.Node(target); !ok {
				continue
			}
			visited[target] = true
			queue = append(queue, target)
		}
	}

	var missing []string
	for _, n := range g.Nodes() {
		if !visited[n.ID] {
			missing = append(missing, n.ID)
		}
	}
	return missing
}
