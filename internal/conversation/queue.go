package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type turnPayload struct {
	ID      string         `json:"id"`
	Message InboundMessage `json:"message"`
}

// serializeKey groups jobs that touch the same conversation state. Turns
// with the same key must never run concurrently.
func (p turnPayload) serializeKey() string {
	if p.Message.ConversationID != "" {
		return "conv:" + p.Message.ConversationID
	}
	return "sender:" + p.Message.AccountID + ":" + p.Message.SenderID
}

// Publisher enqueues inbound chat events for asynchronous processing.
type Publisher struct {
	queue queueClient
}

func NewPublisher(queue queueClient) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	return &Publisher{queue: queue}
}

// EnqueueTurn queues a single inbound message as one turn job.
func (p *Publisher) EnqueueTurn(ctx context.Context, msg InboundMessage) (string, error) {
	payload := turnPayload{ID: uuid.NewString(), Message: msg}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("conversation: encode turn job: %w", err)
	}
	if err := p.queue.Send(ctx, string(body)); err != nil {
		return "", err
	}
	return payload.ID, nil
}
