package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/resaflow/platform/internal/accounts"
	"github.com/resaflow/platform/internal/calendar"
	"github.com/resaflow/platform/internal/flow"
	"github.com/resaflow/platform/internal/observability/metrics"
	"github.com/resaflow/platform/internal/reservations"
	"github.com/resaflow/platform/pkg/logging"
)

var conversationTracer = otel.Tracer("resaflow.internal.conversation")

// Canned replies for the moments the flow graph cannot cover.
const (
	replyFallback    = "Entschuldigung, das habe ich nicht verstanden. Schreiben Sie \"Tisch reservieren\", um eine Reservierung zu starten."
	replyUnavailable = "Zu dieser Zeit ist leider kein Tisch frei."
	replySuggestions = "Wie wäre es stattdessen mit: %s? Schreiben Sie einfach eine neue Uhrzeit."
	replyNoSlots     = "In den nächsten Tagen ist leider kein Tisch frei. Bitte versuchen Sie ein anderes Datum."
	replyBadDate     = "Das Datum habe ich leider nicht verstanden. Bitte geben Sie es im Format TT.MM.JJJJ an."
	replyBadTime     = "Die Uhrzeit habe ich leider nicht verstanden. Bitte geben Sie sie im Format HH:MM an."
	replyCheckFailed = "Wir können die Verfügbarkeit gerade nicht prüfen. Bitte versuchen Sie es in ein paar Minuten erneut."
	replyAlreadyDone = "Ihre Reservierung ist bereits bestätigt. Wir freuen uns auf Ihren Besuch!"
	replyBookedFmt   = "Vielen Dank, %s! Ihr Tisch für %d Personen am %s um %s Uhr ist reserviert."
	replyBookedLocal = " Wir bestätigen Ihnen den Termin in Kürze noch einmal persönlich."
)

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
var clock24 = regexp.MustCompile(`^\d{2}:\d{2}$`)

// InboundMessage is one user event from a chat channel. ConversationID is
// optional; without it the sender's open conversation is used.
type InboundMessage struct {
	AccountID      string
	SenderID       string
	ConversationID string
	Text           string
	ButtonPayload  string
}

// Response is what the channel adapter sends back: exactly one reply per
// inbound message.
type Response struct {
	ConversationID string
	Reply          Reply
	Variables      Variables
	Closed         bool
}

// FlowSource supplies the account's flow graphs.
type FlowSource interface {
	Get(ctx context.Context, id string) (*flow.Graph, error)
	ListActiveByAccount(ctx context.Context, accountID string) ([]*flow.Graph, error)
}

// Repository is the slice of Store the service needs.
type Repository interface {
	Create(ctx context.Context, conv *Conversation) error
	Get(ctx context.Context, id string) (*Conversation, error)
	GetOpenBySender(ctx context.Context, accountID, senderID string) (*Conversation, error)
	CommitTurn(ctx context.Context, conv *Conversation, inbound, outbound *Message) error
}

// Booker runs the reservation pipeline once all fields are collected.
type Booker interface {
	Create(ctx context.Context, req reservations.Request) (*reservations.Result, error)
}

// SettingsSource loads per-account configuration.
type SettingsSource interface {
	Get(ctx context.Context, accountID string) (*accounts.Settings, error)
}

// Service processes inbound chat messages: trigger matching for cold
// starts, interpreter steps for continuations, and the booking handoff once
// the required fields are complete. Callers must serialize turns per
// conversation; turns for different conversations are independent.
type Service struct {
	flows    FlowSource
	repo     Repository
	settings SettingsSource
	interp   *Interpreter
	booker   Booker
	metrics  *metrics.BookingMetrics
	log      *logging.Logger
}

func NewService(flows FlowSource, repo Repository, settings SettingsSource, booker Booker, m *metrics.BookingMetrics, log *logging.Logger) *Service {
	if log == nil {
		log = logging.Default()
	}
	return &Service{
		flows:    flows,
		repo:     repo,
		settings: settings,
		interp:   NewInterpreter(log),
		booker:   booker,
		metrics:  m,
		log:      log,
	}
}

// ProcessMessage advances one conversation by one turn and returns the
// single outbound reply. State is committed only when the whole turn
// succeeds; a failed turn leaves the conversation untouched.
func (s *Service) ProcessMessage(ctx context.Context, msg InboundMessage) (*Response, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.process_message")
	defer span.End()
	span.SetAttributes(attribute.String("account_id", msg.AccountID))
	started := time.Now()

	settings := s.accountSettings(ctx, msg.AccountID)

	conv, err := s.lookup(ctx, msg)
	if err != nil {
		s.observeTurn("error", started)
		return nil, err
	}

	var resp *Response
	if conv == nil {
		resp, err = s.coldStart(ctx, msg, settings)
	} else {
		resp, err = s.continueTurn(ctx, conv, msg, settings)
	}
	if err != nil {
		s.observeTurn("error", started)
		return nil, err
	}
	outcome := "advanced"
	if resp.ConversationID == "" {
		outcome = "fallback"
	} else if resp.Closed {
		outcome = "closed"
	}
	s.observeTurn(outcome, started)
	return resp, nil
}

func (s *Service) lookup(ctx context.Context, msg InboundMessage) (*Conversation, error) {
	if msg.ConversationID != "" {
		conv, err := s.repo.Get(ctx, msg.ConversationID)
		if err != nil {
			return nil, err
		}
		if conv != nil && conv.Status == StatusActive {
			return conv, nil
		}
		return nil, nil
	}
	return s.repo.GetOpenBySender(ctx, msg.AccountID, msg.SenderID)
}

// coldStart matches the message against the account's active triggers. No
// match means no conversation is created; the caller gets the generic
// fallback so every inbound message still yields exactly one reply.
func (s *Service) coldStart(ctx context.Context, msg InboundMessage, settings *accounts.Settings) (*Response, error) {
	graphs, err := s.flows.ListActiveByAccount(ctx, msg.AccountID)
	if err != nil {
		return nil, fmt.Errorf("conversation: list flows: %w", err)
	}
	match, ok := flow.MatchTrigger(msg.Text, graphs)
	if !ok {
		return &Response{Reply: Reply{Text: replyFallback}, Variables: Variables{}}, nil
	}
	var g *flow.Graph
	for _, candidate := range graphs {
		if candidate.ID == match.FlowID {
			g = candidate
			break
		}
	}
	turn, err := s.interp.Start(g, match.StartNodeID, Variables{})
	if err != nil {
		if errors.Is(err, ErrDeadEnd) {
			return &Response{Reply: Reply{Text: replyFallback}, Variables: Variables{}}, nil
		}
		return nil, err
	}

	conv := &Conversation{
		AccountID: msg.AccountID,
		SenderID:  msg.SenderID,
		Status:    StatusActive,
		FlowID:    g.ID,
		NodeID:    turn.NodeID,
		Variables: turn.Variables,
	}
	if turn.Terminal {
		conv.Status = StatusClosed
	}
	if err := s.repo.Create(ctx, conv); err != nil {
		return nil, err
	}
	return s.commit(ctx, conv, msg, turn, settings)
}

func (s *Service) continueTurn(ctx context.Context, conv *Conversation, msg InboundMessage, settings *accounts.Settings) (*Response, error) {
	g, err := s.flows.Get(ctx, conv.FlowID)
	if err != nil && !errors.Is(err, flow.ErrNotFound) {
		return nil, err
	}
	if g == nil {
		s.log.Warn("conversation references deleted flow", "conversation_id", conv.ID, "flow_id", conv.FlowID)
		return s.coldStart(ctx, msg, settings)
	}

	turn, err := s.interp.Step(g, conv.NodeID, conv.Variables, Input{Text: msg.Text, ButtonPayload: msg.ButtonPayload})
	if errors.Is(err, ErrDeadEnd) {
		// Escape hatch: a trigger keyword restarts a flow even mid
		// conversation, otherwise the user is re-prompted.
		if restarted, rerr := s.restart(ctx, conv, msg, settings); rerr == nil && restarted != nil {
			return restarted, nil
		}
		return &Response{
			ConversationID: conv.ID,
			Reply:          Reply{Text: replyFallback, NodeID: conv.NodeID},
			Variables:      conv.Variables,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	conv.FlowID = g.ID
	conv.NodeID = turn.NodeID
	conv.Variables = turn.Variables
	if turn.Terminal {
		conv.Status = StatusClosed
	}

	if s.shouldBook(conv, g, turn, settings) {
		if err := s.book(ctx, conv, g, turn, settings); err != nil {
			return nil, err
		}
	} else if turn.Terminal && turn.Reply == nil {
		s.reaskMissing(conv, g, turn, settings)
	}
	return s.commit(ctx, conv, msg, turn, settings)
}

// reaskMissing reopens a collecting flow that ran out of nodes while a
// required field is still absent, for example a rejected guest count. The
// conversation is pointed back at the collector for the first missing
// field.
func (s *Service) reaskMissing(conv *Conversation, g *flow.Graph, turn *Turn, settings *accounts.Settings) {
	if s.booker == nil || conv.Variables.Present("reservationId") {
		return
	}
	missing := Missing(conv.Variables, settings.RequiredFields)
	if len(missing) == 0 {
		return
	}
	node, ok := collectorNode(g, missing[0])
	if !ok {
		return
	}
	conv.NodeID = node.ID
	conv.Status = StatusActive
	turn.Terminal = false
	turn.Reply = replyFor(node)
}

// restart re-runs trigger matching for an existing conversation and, on a
// match, repoints it at the new flow's start node.
func (s *Service) restart(ctx context.Context, conv *Conversation, msg InboundMessage, settings *accounts.Settings) (*Response, error) {
	graphs, err := s.flows.ListActiveByAccount(ctx, conv.AccountID)
	if err != nil {
		return nil, err
	}
	match, ok := flow.MatchTrigger(msg.Text, graphs)
	if !ok {
		return nil, nil
	}
	var g *flow.Graph
	for _, candidate := range graphs {
		if candidate.ID == match.FlowID {
			g = candidate
			break
		}
	}
	turn, err := s.interp.Start(g, match.StartNodeID, conv.Variables)
	if err != nil {
		return nil, err
	}
	conv.FlowID = g.ID
	conv.NodeID = turn.NodeID
	conv.Variables = turn.Variables
	if turn.Terminal {
		conv.Status = StatusClosed
	}
	return s.commit(ctx, conv, msg, turn, settings)
}

// shouldBook fires the booking pipeline on the turn that completes the
// required field set. The gate only opens on free-text collection turns so
// button navigation never books by accident.
func (s *Service) shouldBook(conv *Conversation, g *flow.Graph, turn *Turn, settings *accounts.Settings) bool {
	if s.booker == nil || conv.Variables.Present("reservationId") {
		return false
	}
	if !collectedThisTurn(g, turn) {
		return false
	}
	return len(Missing(conv.Variables, settings.RequiredFields)) == 0
}

func collectedThisTurn(g *flow.Graph, turn *Turn) bool {
	// The turn advanced away from (or closed on) a collecting node when
	// its variables changed; the reply node itself tells us nothing, so
	// look at whether any node feeding this one collects.
	for _, n := range g.Nodes() {
		if n.CollectsField == "" {
			continue
		}
		if n.ID == turn.NodeID {
			continue
		}
		if target, ok := g.Fallthrough(n.ID); ok && target == turn.NodeID {
			return true
		}
	}
	// Terminal collection keeps the program counter on the collecting
	// node itself.
	if node, ok := g.Node(turn.NodeID); ok && node.CollectsField != "" && turn.Terminal {
		return true
	}
	return false
}

func (s *Service) book(ctx context.Context, conv *Conversation, g *flow.Graph, turn *Turn, settings *accounts.Settings) error {
	guests, _ := conv.Variables.Int(FieldGuestCount)
	req := reservations.Request{
		AccountID:       conv.AccountID,
		ConversationID:  conv.ID,
		ContactID:       conv.SenderID,
		GuestName:       conv.Variables.String(FieldName),
		Date:            conv.Variables.String(FieldDate),
		Time:            conv.Variables.String(FieldTime),
		GuestCount:      guests,
		Phone:           conv.Variables.String(FieldPhone),
		Email:           conv.Variables.String(FieldEmail),
		SpecialRequests: conv.Variables.String(FieldRequests),
		Settings:        settings,
	}

	result, err := s.booker.Create(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, calendar.ErrInvalidSlot):
			s.rewindForInvalidSlot(conv, g, turn, req)
			return nil
		case errors.Is(err, calendar.ErrAvailability):
			s.log.Error("availability check failed", "conversation_id", conv.ID, "error", err)
			conv.Status = StatusActive
			turn.Reply = &Reply{Text: replyCheckFailed, NodeID: conv.NodeID}
			turn.Terminal = false
			return nil
		default:
			return err
		}
	}

	switch result.Status {
	case reservations.CreateBooked, reservations.CreateBookedLocal:
		conv.Variables["reservationId"] = result.Reservation.ID.String()
		text := fmt.Sprintf(replyBookedFmt, req.GuestName, result.Reservation.GuestCount, germanDate(req.Date), req.Time)
		if result.Status == reservations.CreateBookedLocal {
			text += replyBookedLocal
		}
		// A wired confirmation node wins over the canned text.
		if turn.Reply == nil {
			turn.Reply = &Reply{Text: text, NodeID: conv.NodeID}
		}
		conv.Status = StatusClosed
		turn.Terminal = true
	case reservations.CreateAlreadyBooked:
		turn.Reply = &Reply{Text: replyAlreadyDone, NodeID: conv.NodeID}
		conv.Status = StatusClosed
		turn.Terminal = true
	case reservations.CreateUnavailable:
		s.rewindForUnavailable(conv, g, turn, settings, result.Suggestions)
	}
	return nil
}

// rewindForUnavailable points the conversation back at the time question so
// the guest can answer with one of the suggested slots.
func (s *Service) rewindForUnavailable(conv *Conversation, g *flow.Graph, turn *Turn, settings *accounts.Settings, suggestions []calendar.Slot) {
	delete(conv.Variables, FieldTime)
	conv.Status = StatusActive
	turn.Terminal = false
	if node, ok := collectorNode(g, FieldTime); ok {
		conv.NodeID = node.ID
	}

	text := replyUnavailable
	if len(suggestions) > 0 {
		loc := settings.Calendar.Location()
		parts := make([]string, 0, len(suggestions))
		for _, slot := range suggestions {
			parts = append(parts, slot.Start.In(loc).Format("02.01. um 15:04"))
		}
		text += " " + fmt.Sprintf(replySuggestions, strings.Join(parts, ", "))
	} else {
		text = replyNoSlots
		delete(conv.Variables, FieldDate)
		if node, ok := collectorNode(g, FieldDate); ok {
			conv.NodeID = node.ID
		}
	}
	turn.Reply = &Reply{Text: text, NodeID: conv.NodeID}
}

// rewindForInvalidSlot sends the guest back to whichever field failed
// normalization and was stored verbatim.
func (s *Service) rewindForInvalidSlot(conv *Conversation, g *flow.Graph, turn *Turn, req reservations.Request) {
	conv.Status = StatusActive
	turn.Terminal = false
	field, text := FieldTime, replyBadTime
	if !isoDate.MatchString(req.Date) {
		field, text = FieldDate, replyBadDate
	} else if clock24.MatchString(req.Time) {
		// Both fields look well formed, the combination itself was
		// rejected. Re-ask the time.
		field, text = FieldTime, replyBadTime
	}
	delete(conv.Variables, field)
	if node, ok := collectorNode(g, field); ok {
		conv.NodeID = node.ID
	}
	turn.Reply = &Reply{Text: text, NodeID: conv.NodeID}
}

func collectorNode(g *flow.Graph, field string) (*flow.Node, bool) {
	for _, n := range g.Nodes() {
		if n.CollectsField == field {
			node := n
			return &node, true
		}
	}
	return nil, false
}

func (s *Service) commit(ctx context.Context, conv *Conversation, msg InboundMessage, turn *Turn, settings *accounts.Settings) (*Response, error) {
	if turn.Reply == nil {
		turn.Reply = &Reply{Text: replyFallback, NodeID: conv.NodeID}
	}
	inbound := &Message{Role: RoleUser, Text: inboundText(msg), NodeID: conv.NodeID}
	outbound := &Message{Role: RoleBot, Text: turn.Reply.Text, NodeID: turn.Reply.NodeID}
	if err := s.repo.CommitTurn(ctx, conv, inbound, outbound); err != nil {
		return nil, err
	}
	return &Response{
		ConversationID: conv.ID,
		Reply:          *turn.Reply,
		Variables:      conv.Variables,
		Closed:         conv.Status == StatusClosed,
	}, nil
}

// StartFlow enters a flow for a sender without an inbound trigger, used by
// outbound campaigns such as post-visit review requests. An existing open
// conversation is repointed at the flow; seed variables are merged over the
// conversation's current ones.
func (s *Service) StartFlow(ctx context.Context, accountID, senderID, flowID string, seed Variables) (*Response, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.start_flow")
	defer span.End()
	span.SetAttributes(attribute.String("account_id", accountID), attribute.String("flow_id", flowID))

	g, err := s.flows.Get(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("conversation: flow %s not found", flowID)
	}
	entry := entryNode(g)
	if entry == "" {
		return nil, fmt.Errorf("conversation: flow %s has no entry node", flowID)
	}

	conv, err := s.repo.GetOpenBySender(ctx, accountID, senderID)
	if err != nil {
		return nil, err
	}
	fresh := conv == nil
	if fresh {
		conv = &Conversation{
			AccountID: accountID,
			SenderID:  senderID,
			Status:    StatusActive,
			Variables: Variables{},
		}
	}
	for k, v := range seed {
		conv.Variables[k] = v
	}

	turn, err := s.interp.Start(g, entry, conv.Variables)
	if err != nil {
		return nil, err
	}
	conv.FlowID = g.ID
	conv.NodeID = turn.NodeID
	conv.Variables = turn.Variables
	conv.Status = StatusActive
	if turn.Terminal {
		conv.Status = StatusClosed
	}
	if fresh {
		if err := s.repo.Create(ctx, conv); err != nil {
			return nil, err
		}
	}

	outbound := &Message{Role: RoleBot, Text: turn.Reply.Text, NodeID: turn.Reply.NodeID}
	if err := s.repo.CommitTurn(ctx, conv, nil, outbound); err != nil {
		return nil, err
	}
	return &Response{
		ConversationID: conv.ID,
		Reply:          *turn.Reply,
		Variables:      conv.Variables,
		Closed:         conv.Status == StatusClosed,
	}, nil
}

// entryNode picks the flow's entry point: the first wired trigger, then the
// first node.
func entryNode(g *flow.Graph) string {
	for _, trig := range g.Triggers() {
		if trig.StartNodeID != "" {
			return trig.StartNodeID
		}
	}
	if nodes := g.Nodes(); len(nodes) > 0 {
		return nodes[0].ID
	}
	return ""
}

func (s *Service) accountSettings(ctx context.Context, accountID string) *accounts.Settings {
	if s.settings == nil {
		return accounts.DefaultSettings(accountID).Normalized()
	}
	settings, err := s.settings.Get(ctx, accountID)
	if err != nil || settings == nil {
		if err != nil {
			s.log.Error("account settings unavailable, using defaults", "account_id", accountID, "error", err)
		}
		return accounts.DefaultSettings(accountID).Normalized()
	}
	return settings.Normalized()
}

func (s *Service) observeTurn(outcome string, started time.Time) {
	s.metrics.ObserveTurn(outcome)
	s.metrics.ObserveTurnLatency("process_message", time.Since(started).Seconds())
}

func inboundText(msg InboundMessage) string {
	if msg.ButtonPayload != "" {
		return msg.ButtonPayload
	}
	return msg.Text
}

func germanDate(iso string) string {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return iso
	}
	return t.Format("02.01.2006")
}
