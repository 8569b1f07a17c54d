package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resaflow/platform/internal/flow"
)

type recordingSender struct {
	mu      sync.Mutex
	replies []Reply
	got     chan struct{}
}

func newRecordingSender(expected int) *recordingSender {
	return &recordingSender{got: make(chan struct{}, expected)}
}

func (s *recordingSender) SendReply(_ context.Context, _, _ string, reply Reply) error {
	s.mu.Lock()
	s.replies = append(s.replies, reply)
	s.mu.Unlock()
	s.got <- struct{}{}
	return nil
}

func TestWorkerProcessesTurnJob(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(&stubFlows{graphs: []*flow.Graph{bookingGraph()}}, repo, nil)
	queue := NewMemoryQueue(8)
	sender := newRecordingSender(1)
	worker := NewWorker(svc, queue, sender, nil, WithWorkerCount(1), WithReceiveWaitSeconds(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	publisher := NewPublisher(queue)
	jobID, err := publisher.EnqueueTurn(ctx, inbound("Tisch reservieren"))
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	select {
	case <-sender.got:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not process the job in time")
	}

	cancel()
	worker.Wait()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.replies, 1)
	assert.Equal(t, "Willkommen! Möchten Sie einen Tisch reservieren?", sender.replies[0].Text)
	assert.Len(t, repo.convs, 1)
}

func TestTurnLocksSerializeSameKey(t *testing.T) {
	locks := turnLocks{entries: make(map[string]*lockEntry)}

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("conv:abc")
			defer unlock()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
	locks.mu.Lock()
	assert.Empty(t, locks.entries)
	locks.mu.Unlock()
}

func TestSerializeKeyPrefersConversationID(t *testing.T) {
	withConv := turnPayload{Message: InboundMessage{AccountID: "a", SenderID: "s", ConversationID: "c"}}
	withoutConv := turnPayload{Message: InboundMessage{AccountID: "a", SenderID: "s"}}

	assert.Equal(t, "conv:c", withConv.serializeKey())
	assert.Equal(t, "sender:a:s", withoutConv.serializeKey())
}

func TestMemoryQueueDrainsBatch(t *testing.T) {
	queue := NewMemoryQueue(8)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, queue.Send(ctx, "job"))
	}

	messages, err := queue.Receive(ctx, 2, 1)
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	messages, err = queue.Receive(ctx, 2, 1)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestMemoryQueueReceiveTimesOut(t *testing.T) {
	queue := NewMemoryQueue(1)

	messages, err := queue.Receive(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Empty(t, messages)
}
