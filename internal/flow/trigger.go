package flow

import "strings"

// Match is the result of trigger selection: which graph to run and where to
// enter it.
type Match struct {
	FlowID      string
	StartNodeID string
}

// MatchTrigger selects a graph and entry node for inbound text. Graphs are
// scanned in the order given (callers pass a stably ordered list), triggers
// in declaration order; the first matching trigger with a wired start node
// wins. Returns false when nothing matches.
func MatchTrigger(text string, graphs []*Graph) (Match, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Match{}, false
	}

	for _, g := range graphs {
		if g.Status != StatusActive {
			continue
		}
		for _, trigger := range g.Triggers() {
			if trigger.StartNodeID == "" {
				continue
			}
			if triggerMatches(trigger, normalized) {
				return Match{FlowID: g.ID, StartNodeID: trigger.StartNodeID}, true
			}
		}
	}
	return Match{}, false
}

func triggerMatches(t Trigger, normalized string) bool {
	for _, keyword := range t.Keywords {
		kw := strings.ToLower(strings.TrimSpace(keyword))
		if kw == "" {
			continue
		}
		switch t.MatchType {
		case MatchExact:
			if normalized == kw {
				return true
			}
		case MatchContains:
			if strings.Contains(normalized, kw) {
				return true
			}
		}
	}
	return false
}
