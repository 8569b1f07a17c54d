package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/resaflow/platform/pkg/logging"
)

const replySendTimeout = 10 * time.Second

// HTTPReplySender delivers outbound replies by posting them to a delivery
// webhook. The actual messaging channel (WhatsApp BSP, web widget backend)
// sits behind that URL and owns channel-specific formatting.
type HTTPReplySender struct {
	endpoint string
	client   *http.Client
	logger   *logging.Logger
}

func NewHTTPReplySender(endpoint string, logger *logging.Logger) *HTTPReplySender {
	if logger == nil {
		logger = logging.Default()
	}
	return &HTTPReplySender{
		endpoint: endpoint,
		client:   &http.Client{Timeout: replySendTimeout},
		logger:   logger,
	}
}

type outboundReply struct {
	AccountID    string             `json:"account_id"`
	SenderID     string             `json:"sender_id"`
	Text         string             `json:"text"`
	ImageURL     string             `json:"image_url,omitempty"`
	QuickReplies []outboundQuickBtn `json:"quick_replies,omitempty"`
	Placeholder  string             `json:"placeholder,omitempty"`
}

type outboundQuickBtn struct {
	Label   string `json:"label"`
	Payload string `json:"payload,omitempty"`
}

// SendReply posts the reply to the delivery webhook. Any status below 400
// counts as delivered.
func (s *HTTPReplySender) SendReply(ctx context.Context, accountID, senderID string, reply Reply) error {
	payload := outboundReply{
		AccountID:   accountID,
		SenderID:    senderID,
		Text:        reply.Text,
		ImageURL:    reply.ImageURL,
		Placeholder: reply.Placeholder,
	}
	for _, qr := range reply.QuickReplies {
		payload.QuickReplies = append(payload.QuickReplies, outboundQuickBtn{
			Label:   qr.Label,
			Payload: qr.Payload,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("conversation: encode outbound reply: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("conversation: build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("conversation: deliver reply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("conversation: delivery webhook returned status %d", resp.StatusCode)
	}

	s.logger.Debug("reply delivered",
		"account_id", accountID,
		"sender_id", senderID,
		"status", resp.StatusCode,
	)
	return nil
}

// LogReplySender writes replies to the log instead of a channel. Used in
// development when no delivery webhook is configured.
type LogReplySender struct {
	logger *logging.Logger
}

func NewLogReplySender(logger *logging.Logger) *LogReplySender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogReplySender{logger: logger}
}

func (s *LogReplySender) SendReply(_ context.Context, accountID, senderID string, reply Reply) error {
	s.logger.Info("outbound reply",
		"account_id", accountID,
		"sender_id", senderID,
		"text", reply.Text,
		"quick_replies", len(reply.QuickReplies),
	)
	return nil
}

var (
	_ ReplySender = (*HTTPReplySender)(nil)
	_ ReplySender = (*LogReplySender)(nil)
)
