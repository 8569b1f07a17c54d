package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resaflow/platform/internal/accounts"
	"github.com/resaflow/platform/internal/calendar"
	"github.com/resaflow/platform/internal/flow"
	"github.com/resaflow/platform/internal/reservations"
)

type stubFlows struct {
	graphs []*flow.Graph
}

func (s *stubFlows) Get(_ context.Context, id string) (*flow.Graph, error) {
	for _, g := range s.graphs {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, nil
}

func (s *stubFlows) ListActiveByAccount(_ context.Context, accountID string) ([]*flow.Graph, error) {
	var out []*flow.Graph
	for _, g := range s.graphs {
		if g.AccountID == accountID && g.Status == flow.StatusActive {
			out = append(out, g)
		}
	}
	return out, nil
}

type memRepo struct {
	convs    map[string]*Conversation
	messages []Message
}

func newMemRepo() *memRepo {
	return &memRepo{convs: make(map[string]*Conversation)}
}

func (r *memRepo) Create(_ context.Context, conv *Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	stored := *conv
	stored.Variables = conv.Variables.Clone()
	r.convs[conv.ID] = &stored
	return nil
}

func (r *memRepo) Get(_ context.Context, id string) (*Conversation, error) {
	conv, ok := r.convs[id]
	if !ok {
		return nil, nil
	}
	out := *conv
	out.Variables = conv.Variables.Clone()
	return &out, nil
}

func (r *memRepo) GetOpenBySender(_ context.Context, accountID, senderID string) (*Conversation, error) {
	for _, conv := range r.convs {
		if conv.AccountID == accountID && conv.SenderID == senderID && conv.Status == StatusActive {
			out := *conv
			out.Variables = conv.Variables.Clone()
			return &out, nil
		}
	}
	return nil, nil
}

func (r *memRepo) CommitTurn(_ context.Context, conv *Conversation, inbound, outbound *Message) error {
	stored := *conv
	stored.Variables = conv.Variables.Clone()
	r.convs[conv.ID] = &stored
	for _, msg := range []*Message{inbound, outbound} {
		if msg != nil {
			msg.ConversationID = conv.ID
			r.messages = append(r.messages, *msg)
		}
	}
	return nil
}

type stubSettings struct {
	settings *accounts.Settings
	err      error
}

func (s *stubSettings) Get(_ context.Context, accountID string) (*accounts.Settings, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.settings != nil {
		return s.settings, nil
	}
	return accounts.DefaultSettings(accountID), nil
}

type stubBooker struct {
	result *reservations.Result
	err    error
	reqs   []reservations.Request
}

func (b *stubBooker) Create(_ context.Context, req reservations.Request) (*reservations.Result, error) {
	b.reqs = append(b.reqs, req)
	if b.err != nil {
		return nil, b.err
	}
	return b.result, nil
}

func newTestService(flows *stubFlows, repo *memRepo, booker Booker) *Service {
	return NewService(flows, repo, &stubSettings{}, booker, nil, nil)
}

func seedConversation(t *testing.T, repo *memRepo, nodeID string, vars Variables) *Conversation {
	t.Helper()
	conv := &Conversation{
		AccountID: "acct-1",
		SenderID:  "sender-1",
		Status:    StatusActive,
		FlowID:    "flow-1",
		NodeID:    nodeID,
		Variables: vars,
	}
	require.NoError(t, repo.Create(context.Background(), conv))
	return conv
}

func inbound(text string) InboundMessage {
	return InboundMessage{AccountID: "acct-1", SenderID: "sender-1", Text: text}
}

func TestProcessMessageColdStartTrigger(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(&stubFlows{graphs: []*flow.Graph{bookingGraph()}}, repo, nil)

	resp, err := svc.ProcessMessage(context.Background(), inbound("Ich möchte einen Tisch reservieren"))
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ConversationID)
	assert.Equal(t, "Willkommen! Möchten Sie einen Tisch reservieren?", resp.Reply.Text)
	assert.Len(t, resp.Reply.QuickReplies, 3)
	assert.False(t, resp.Closed)

	conv := repo.convs[resp.ConversationID]
	require.NotNil(t, conv)
	assert.Equal(t, "greet", conv.NodeID)
	assert.Equal(t, StatusActive, conv.Status)
	require.Len(t, repo.messages, 2)
	assert.Equal(t, RoleUser, repo.messages[0].Role)
	assert.Equal(t, RoleBot, repo.messages[1].Role)
}

func TestProcessMessageColdStartNoMatch(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(&stubFlows{graphs: []*flow.Graph{bookingGraph()}}, repo, nil)

	resp, err := svc.ProcessMessage(context.Background(), inbound("was kostet ein Schnitzel"))
	require.NoError(t, err)

	assert.Empty(t, resp.ConversationID)
	assert.Equal(t, replyFallback, resp.Reply.Text)
	assert.Empty(t, repo.convs)
	assert.Empty(t, repo.messages)
}

func TestProcessMessageButtonContinuation(t *testing.T) {
	repo := newMemRepo()
	conv := seedConversation(t, repo, "greet", Variables{})
	svc := newTestService(&stubFlows{graphs: []*flow.Graph{bookingGraph()}}, repo, nil)

	msg := inbound("")
	msg.ButtonPayload = "reserve"
	resp, err := svc.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, conv.ID, resp.ConversationID)
	assert.Equal(t, "An welchem Tag möchten Sie kommen?", resp.Reply.Text)
	assert.Equal(t, "ask-date", repo.convs[conv.ID].NodeID)
}

func TestProcessMessageFreeTextCollects(t *testing.T) {
	repo := newMemRepo()
	conv := seedConversation(t, repo, "ask-date", Variables{})
	svc := newTestService(&stubFlows{graphs: []*flow.Graph{bookingGraph()}}, repo, nil)

	resp, err := svc.ProcessMessage(context.Background(), inbound("15.03.2025"))
	require.NoError(t, err)

	assert.Equal(t, "Um wie viel Uhr?", resp.Reply.Text)
	stored := repo.convs[conv.ID]
	assert.Equal(t, "ask-time", stored.NodeID)
	assert.Equal(t, "2025-03-15", stored.Variables.String(FieldDate))
}

func TestProcessMessageCompletionBooks(t *testing.T) {
	repo := newMemRepo()
	conv := seedConversation(t, repo, "ask-name", Variables{
		FieldDate:       "2025-03-15",
		FieldTime:       "19:00",
		FieldGuestCount: 4,
	})
	booker := &stubBooker{result: &reservations.Result{
		Status: reservations.CreateBooked,
		Reservation: &reservations.Reservation{
			ID:         uuid.New(),
			GuestName:  "Maria",
			Date:       "2025-03-15",
			Time:       "19:00",
			GuestCount: 4,
		},
	}}
	svc := newTestService(&stubFlows{graphs: []*flow.Graph{bookingGraph()}}, repo, booker)

	resp, err := svc.ProcessMessage(context.Background(), inbound("Maria"))
	require.NoError(t, err)

	require.Len(t, booker.reqs, 1)
	req := booker.reqs[0]
	assert.Equal(t, "Maria", req.GuestName)
	assert.Equal(t, "2025-03-15", req.Date)
	assert.Equal(t, "19:00", req.Time)
	assert.Equal(t, 4, req.GuestCount)
	assert.Equal(t, conv.ID, req.ConversationID)

	assert.Equal(t, "Vielen Dank, Maria! Ihr Tisch für 4 Personen am 15.03.2025 um 19:00 Uhr ist reserviert.", resp.Reply.Text)
	assert.True(t, resp.Closed)
	stored := repo.convs[conv.ID]
	assert.Equal(t, StatusClosed, stored.Status)
	assert.True(t, stored.Variables.Present("reservationId"))
}

func TestProcessMessageLocalBookingAddsNote(t *testing.T) {
	repo := newMemRepo()
	seedConversation(t, repo, "ask-name", Variables{
		FieldDate:       "2025-03-15",
		FieldTime:       "19:00",
		FieldGuestCount: 2,
	})
	booker := &stubBooker{result: &reservations.Result{
		Status: reservations.CreateBookedLocal,
		Reservation: &reservations.Reservation{
			ID: uuid.New(), GuestName: "Jonas", Date: "2025-03-15", Time: "19:00", GuestCount: 2,
		},
		Warning: "calendar unavailable",
	}}
	svc := newTestService(&stubFlows{graphs: []*flow.Graph{bookingGraph()}}, repo, booker)

	resp, err := svc.ProcessMessage(context.Background(), inbound("Jonas"))
	require.NoError(t, err)
	assert.Contains(t, resp.Reply.Text, "persönlich")
	assert.True(t, resp.Closed)
}

func TestProcessMessageUnavailableRewindsToTime(t *testing.T) {
	repo := newMemRepo()
	conv := seedConversation(t, repo, "ask-name", Variables{
		FieldDate:       "2025-03-15",
		FieldTime:       "19:00",
		FieldGuestCount: 4,
	})
	start := time.Date(2025, 3, 15, 19, 0, 0, 0, time.UTC)
	booker := &stubBooker{result: &reservations.Result{
		Status: reservations.CreateUnavailable,
		Suggestions: []calendar.Slot{
			{Date: "2025-03-15", Time: "20:00", Start: start.Add(time.Hour)},
			{Date: "2025-03-15", Time: "21:00", Start: start.Add(2 * time.Hour)},
		},
	}}
	svc := newTestService(&stubFlows{graphs: []*flow.Graph{bookingGraph()}}, repo, booker)

	resp, err := svc.ProcessMessage(context.Background(), inbound("Maria"))
	require.NoError(t, err)

	assert.Contains(t, resp.Reply.Text, "leider kein Tisch frei")
	assert.Contains(t, resp.Reply.Text, "Uhrzeit")
	assert.False(t, resp.Closed)

	stored := repo.convs[conv.ID]
	assert.Equal(t, "ask-time", stored.NodeID)
	assert.Equal(t, StatusActive, stored.Status)
	assert.False(t, stored.Variables.Present(FieldTime))
	assert.Equal(t, "2025-03-15", stored.Variables.String(FieldDate))
}

func TestProcessMessageNoSlotsRewindsToDate(t *testing.T) {
	repo := newMemRepo()
	conv := seedConversation(t, repo, "ask-name", Variables{
		FieldDate:       "2025-03-15",
		FieldTime:       "19:00",
		FieldGuestCount: 4,
	})
	booker := &stubBooker{result: &reservations.Result{Status: reservations.CreateUnavailable}}
	svc := newTestService(&stubFlows{graphs: []*flow.Graph{bookingGraph()}}, repo, booker)

	resp, err := svc.ProcessMessage(context.Background(), inbound("Maria"))
	require.NoError(t, err)

	assert.Equal(t, replyNoSlots, resp.Reply.Text)
	stored := repo.convs[conv.ID]
	assert.Equal(t, "ask-date", stored.NodeID)
	assert.False(t, stored.Variables.Present(FieldDate))
	assert.False(t, stored.Variables.Present(FieldTime))
}

func TestProcessMessageAlreadyBooked(t *testing.T) {
	repo := newMemRepo()
	seedConversation(t, repo, "ask-name", Variables{
		FieldDate:       "2025-03-15",
		FieldTime:       "19:00",
		FieldGuestCount: 4,
	})
	booker := &stubBooker{result: &reservations.Result{Status: reservations.CreateAlreadyBooked}}
	svc := newTestService(&stubFlows{graphs: []*flow.Graph{bookingGraph()}}, repo, booker)

	resp, err := svc.ProcessMessage(context.Background(), inbound("Maria"))
	require.NoError(t, err)
	assert.Equal(t, replyAlreadyDone, resp.Reply.Text)
	assert.True(t, resp.Closed)
}

func TestProcessMessageInvalidDateReasks(t *testing.T) {
	repo := newMemRepo()
	conv := seedConversation(t, repo, "ask-name", Variables{
		FieldDate:       "morgen abend",
		FieldTime:       "19:00",
		FieldGuestCount: 4,
	})
	booker := &stubBooker{err: fmt.Errorf("resolve slot: %w", calendar.ErrInvalidSlot)}
	svc := newTestService(&stubFlows{graphs: []*flow.Graph{bookingGraph()}}, repo, booker)

	resp, err := svc.ProcessMessage(context.Background(), inbound("Maria"))
	require.NoError(t, err)

	assert.Equal(t, replyBadDate, resp.Reply.Text)
	stored := repo.convs[conv.ID]
	assert.Equal(t, "ask-date", stored.NodeID)
	assert.False(t, stored.Variables.Present(FieldDate))
	assert.Equal(t, StatusActive, stored.Status)
}

func TestProcessMessageAvailabilityOutage(t *testing.T) {
	repo := newMemRepo()
	conv := seedConversation(t, repo, "ask-name", Variables{
		FieldDate:       "2025-03-15",
		FieldTime:       "19:00",
		FieldGuestCount: 4,
	})
	booker := &stubBooker{err: fmt.Errorf("free/busy: %w", calendar.ErrAvailability)}
	svc := newTestService(&stubFlows{graphs: []*flow.Graph{bookingGraph()}}, repo, booker)

	resp, err := svc.ProcessMessage(context.Background(), inbound("Maria"))
	require.NoError(t, err)

	assert.Equal(t, replyCheckFailed, resp.Reply.Text)
	assert.False(t, resp.Closed)
	assert.Equal(t, StatusActive, repo.convs[conv.ID].Status)
}

func TestProcessMessageMissingFieldReasks(t *testing.T) {
	repo := newMemRepo()
	conv := seedConversation(t, repo, "ask-name", Variables{
		FieldDate: "2025-03-15",
		FieldTime: "19:00",
	})
	booker := &stubBooker{result: &reservations.Result{Status: reservations.CreateBooked}}
	svc := newTestService(&stubFlows{graphs: []*flow.Graph{bookingGraph()}}, repo, booker)

	resp, err := svc.ProcessMessage(context.Background(), inbound("Maria"))
	require.NoError(t, err)

	assert.Empty(t, booker.reqs)
	assert.Equal(t, "Für wie viele Personen?", resp.Reply.Text)
	assert.Equal(t, "ask-guests", repo.convs[conv.ID].NodeID)
	assert.False(t, resp.Closed)
}

func TestProcessMessageDeadEndFallsBack(t *testing.T) {
	repo := newMemRepo()
	conv := seedConversation(t, repo, "greet", Variables{})
	svc := newTestService(&stubFlows{graphs: []*flow.Graph{bookingGraph()}}, repo, nil)

	resp, err := svc.ProcessMessage(context.Background(), inbound("blabla"))
	require.NoError(t, err)

	assert.Equal(t, replyFallback, resp.Reply.Text)
	assert.Equal(t, "greet", repo.convs[conv.ID].NodeID)
}

func TestProcessMessageKeywordRestartsMidConversation(t *testing.T) {
	repo := newMemRepo()
	conv := seedConversation(t, repo, "greet", Variables{})
	svc := newTestService(&stubFlows{graphs: []*flow.Graph{bookingGraph()}}, repo, nil)

	resp, err := svc.ProcessMessage(context.Background(), inbound("nochmal reservieren bitte"))
	require.NoError(t, err)

	assert.Equal(t, "Willkommen! Möchten Sie einen Tisch reservieren?", resp.Reply.Text)
	assert.Equal(t, "greet", repo.convs[conv.ID].NodeID)
}

func TestStartFlowCreatesConversationWithSeed(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(&stubFlows{graphs: []*flow.Graph{bookingGraph()}}, repo, nil)

	resp, err := svc.StartFlow(context.Background(), "acct-1", "sender-1", "flow-1", Variables{
		FieldReviewLink: "https://g.page/r/abc",
	})
	require.NoError(t, err)

	assert.Equal(t, "Willkommen! Möchten Sie einen Tisch reservieren?", resp.Reply.Text)
	conv := repo.convs[resp.ConversationID]
	require.NotNil(t, conv)
	assert.Equal(t, "greet", conv.NodeID)
	assert.Equal(t, "https://g.page/r/abc", conv.Variables.String(FieldReviewLink))
	// Outbound only; no inbound message for an outbound launch.
	require.Len(t, repo.messages, 1)
	assert.Equal(t, RoleBot, repo.messages[0].Role)
}

func TestStartFlowRepointsOpenConversation(t *testing.T) {
	repo := newMemRepo()
	conv := seedConversation(t, repo, "ask-date", Variables{FieldName: "Maria"})
	svc := newTestService(&stubFlows{graphs: []*flow.Graph{bookingGraph()}}, repo, nil)

	resp, err := svc.StartFlow(context.Background(), "acct-1", "sender-1", "flow-1", Variables{
		FieldReviewLink: "https://g.page/r/abc",
	})
	require.NoError(t, err)

	assert.Equal(t, conv.ID, resp.ConversationID)
	stored := repo.convs[conv.ID]
	assert.Equal(t, "greet", stored.NodeID)
	assert.Equal(t, "Maria", stored.Variables.String(FieldName))
	assert.Equal(t, "https://g.page/r/abc", stored.Variables.String(FieldReviewLink))
}

func TestStartFlowUnknownFlow(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(&stubFlows{}, repo, nil)

	_, err := svc.StartFlow(context.Background(), "acct-1", "sender-1", "nope", nil)
	assert.Error(t, err)
}

func TestProcessMessageSettingsErrorUsesDefaults(t *testing.T) {
	repo := newMemRepo()
	seedConversation(t, repo, "ask-date", Variables{})
	svc := NewService(
		&stubFlows{graphs: []*flow.Graph{bookingGraph()}},
		repo,
		&stubSettings{err: fmt.Errorf("redis down")},
		nil, nil, nil,
	)

	resp, err := svc.ProcessMessage(context.Background(), inbound("15.03.2025"))
	require.NoError(t, err)
	assert.Equal(t, "Um wie viel Uhr?", resp.Reply.Text)
}
