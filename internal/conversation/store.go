package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message roles stored alongside conversations.
const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

type Role string

// Message is one transcript entry.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Text           string
	NodeID         string
	CreatedAt      time.Time
}

// Store persists conversations and their transcripts to PostgreSQL.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// Create inserts a fresh conversation positioned at the flow's start node.
func (s *Store) Create(ctx context.Context, conv *Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	vars, err := encodeVariables(conv.Variables)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (
			id, account_id, sender_id, status, flow_id, node_id, variables,
			last_message_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, conv.ID, conv.AccountID, conv.SenderID, string(conv.Status),
		conv.FlowID, conv.NodeID, vars, now, now, now,
	)
	if err != nil {
		return fmt.Errorf("conversation: create: %w", err)
	}
	conv.CreatedAt = now
	conv.UpdatedAt = now
	return nil
}

// Get loads one conversation, nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Conversation, error) {
	return s.one(ctx, `
		SELECT id, account_id, sender_id, status, flow_id, node_id, variables,
		       last_message_at, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`, id)
}

// GetOpenBySender loads the active conversation for a sender within an
// account, nil when the sender has none. At most one exists per sender;
// the newest wins if historical data disagrees.
func (s *Store) GetOpenBySender(ctx context.Context, accountID, senderID string) (*Conversation, error) {
	return s.one(ctx, `
		SELECT id, account_id, sender_id, status, flow_id, node_id, variables,
		       last_message_at, created_at, updated_at
		FROM conversations
		WHERE account_id = $1 AND sender_id = $2 AND status = 'active'
		ORDER BY updated_at DESC
		LIMIT 1
	`, accountID, senderID)
}

// CommitTurn applies one completed turn atomically: the new program counter
// and variables, plus the inbound and outbound transcript rows. A failed
// turn commits nothing.
func (s *Store) CommitTurn(ctx context.Context, conv *Conversation, inbound, outbound *Message) error {
	vars, err := encodeVariables(conv.Variables)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("conversation: begin turn: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET
			status = $1, flow_id = $2, node_id = $3, variables = $4,
			last_message_at = $5, updated_at = $5
		WHERE id = $6
	`, string(conv.Status), conv.FlowID, conv.NodeID, vars, now, conv.ID)
	if err != nil {
		return fmt.Errorf("conversation: update state: %w", err)
	}

	for _, msg := range []*Message{inbound, outbound} {
		if msg == nil {
			continue
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversation_messages (
				id, conversation_id, role, text, node_id, created_at
			) VALUES ($1, $2, $3, $4, $5, $6)
		`, msg.ID, conv.ID, string(msg.Role), msg.Text, msg.NodeID, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("conversation: append message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("conversation: commit turn: %w", err)
	}
	conv.LastMessageAt = now
	conv.UpdatedAt = now
	return nil
}

// Close marks a conversation closed without touching its transcript.
func (s *Store) Close(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET status = 'closed', updated_at = $1
		WHERE id = $2
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("conversation: close: %w", err)
	}
	return nil
}

// Messages returns the transcript oldest first.
func (s *Store) Messages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	query := `
		SELECT id, conversation_id, role, text, node_id, created_at
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`
	args := []any{conversationID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conversation: list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var msg Message
		var role string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Text, &msg.NodeID, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		msg.Role = Role(role)
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *Store) one(ctx context.Context, query string, args ...any) (*Conversation, error) {
	var conv Conversation
	var status string
	var vars []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&conv.ID, &conv.AccountID, &conv.SenderID, &status,
		&conv.FlowID, &conv.NodeID, &vars,
		&conv.LastMessageAt, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: get: %w", err)
	}
	conv.Status = Status(status)
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &conv.Variables); err != nil {
			return nil, fmt.Errorf("conversation: decode variables: %w", err)
		}
	}
	if conv.Variables == nil {
		conv.Variables = Variables{}
	}
	return &conv, nil
}

func encodeVariables(vars Variables) ([]byte, error) {
	if vars == nil {
		vars = Variables{}
	}
	data, err := json.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("conversation: encode variables: %w", err)
	}
	return data, nil
}
