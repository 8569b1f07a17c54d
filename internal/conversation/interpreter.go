package conversation

import (
	"errors"

	"github.com/resaflow/platform/internal/flow"
	"github.com/resaflow/platform/pkg/logging"
)

// ErrDeadEnd is returned when a turn cannot transition: the program counter
// points at a missing node, an unwired button, or a button the node does not
// have. The conversation state is left untouched.
var ErrDeadEnd = errors.New("conversation: dead end in flow graph")

// Input is one inbound user action. ButtonPayload takes precedence over
// Text when both are set.
type Input struct {
	Text          string
	ButtonPayload string
}

// Reply is the single outbound message a turn produces.
type Reply struct {
	Text         string
	ImageURL     string
	QuickReplies []flow.QuickReply
	Placeholder  string
	NodeID       string
}

// Turn is the result of advancing a conversation by one step: the new
// program counter, the merged variables, and what to say. Reply is nil when
// the graph has nothing left to emit (terminal free-text node after
// collection); callers compose their own closing message in that case.
type Turn struct {
	NodeID    string
	Variables Variables
	Reply     *Reply
	Terminal  bool
}

// Interpreter advances conversations through flow graphs, one node per
// turn. It is stateless; state lives on the Conversation.
type Interpreter struct {
	log *logging.Logger
}

func NewInterpreter(log *logging.Logger) *Interpreter {
	if log == nil {
		log = logging.Default()
	}
	return &Interpreter{log: log}
}

// Start enters a graph at the trigger's start node and emits that node.
func (in *Interpreter) Start(g *flow.Graph, startNodeID string, vars Variables) (*Turn, error) {
	node, ok := g.Node(startNodeID)
	if !ok {
		in.log.Warn("flow start node missing", "flow_id", g.ID, "node_id", startNodeID)
		return nil, ErrDeadEnd
	}
	return &Turn{
		NodeID:    node.ID,
		Variables: vars.Clone(),
		Reply:     replyFor(node),
		Terminal:  g.Terminal(node.ID),
	}, nil
}

// Step consumes one input at the current node and moves to the next one.
// Button presses resolve a quick reply on the node; free text on a
// collecting node is extracted into variables before following the
// fallthrough edge. The input state is never partially applied: on any
// dead end the caller's conversation stays as it was.
func (in *Interpreter) Step(g *flow.Graph, nodeID string, vars Variables, input Input) (*Turn, error) {
	node, ok := g.Node(nodeID)
	if !ok {
		in.log.Warn("conversation node missing from flow", "flow_id", g.ID, "node_id", nodeID)
		return nil, ErrDeadEnd
	}

	if node.InputMode == flow.InputFreeText && input.ButtonPayload == "" {
		return in.stepFreeText(g, node, vars, input.Text)
	}
	return in.stepButton(g, node, vars, input)
}

func (in *Interpreter) stepButton(g *flow.Graph, node *flow.Node, vars Variables, input Input) (*Turn, error) {
	selector := input.ButtonPayload
	if selector == "" {
		// Typed text on a buttons node still resolves if it names a
		// payload or quick-reply id.
		selector = input.Text
	}
	qr, ok := node.QuickReply(selector)
	if !ok {
		in.log.Info("no quick reply matched", "flow_id", g.ID, "node_id", node.ID)
		return nil, ErrDeadEnd
	}
	if qr.TargetNodeID == "" {
		in.log.Warn("quick reply has no target", "flow_id", g.ID, "node_id", node.ID, "quick_reply_id", qr.ID)
		return nil, ErrDeadEnd
	}
	next, ok := g.Node(qr.TargetNodeID)
	if !ok {
		in.log.Warn("quick reply target missing", "flow_id", g.ID, "node_id", node.ID, "target", qr.TargetNodeID)
		return nil, ErrDeadEnd
	}
	return &Turn{
		NodeID:    next.ID,
		Variables: vars.Clone(),
		Reply:     replyFor(next),
		Terminal:  g.Terminal(next.ID),
	}, nil
}

func (in *Interpreter) stepFreeText(g *flow.Graph, node *flow.Node, vars Variables, text string) (*Turn, error) {
	merged := vars.Clone()
	if node.CollectsField != "" {
		if value, ok := ExtractField(node.CollectsField, text); ok {
			merged[node.CollectsField] = value
		}
	}

	target, ok := g.Fallthrough(node.ID)
	if !ok {
		// Collecting node with nowhere to go: keep what was collected
		// and let the caller close out the conversation.
		return &Turn{NodeID: node.ID, Variables: merged, Terminal: true}, nil
	}
	next, ok := g.Node(target)
	if !ok {
		in.log.Warn("fallthrough target missing", "flow_id", g.ID, "node_id", node.ID, "target", target)
		return nil, ErrDeadEnd
	}
	return &Turn{
		NodeID:    next.ID,
		Variables: merged,
		Reply:     replyFor(next),
		Terminal:  g.Terminal(next.ID),
	}, nil
}

func replyFor(node *flow.Node) *Reply {
	return &Reply{
		Text:         node.Text,
		ImageURL:     node.ImageURL,
		QuickReplies: node.QuickReplies,
		Placeholder:  node.Placeholder,
		NodeID:       node.ID,
	}
}
