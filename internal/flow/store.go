package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound marks a lookup for a flow id that has no stored document.
var ErrNotFound = errors.New("not found")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists flow graphs as their authoring JSON documents.
type Store struct {
	db DB
}

// NewStore creates a flow store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Get loads one graph by id.
func (s *Store) Get(ctx context.Context, id string) (*Graph, error) {
	row := s.db.QueryRow(ctx, `
		SELECT account_id, document, updated_at FROM flows WHERE id = $1`, id)

	var accountID string
	var document []byte
	var updatedAt time.Time
	if err := row.Scan(&accountID, &document, &updatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("flow: get %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("flow: get %s: %w", id, err)
	}

	g, err := Decode(accountID, document)
	if err != nil {
		return nil, err
	}
	g.UpdatedAt = updatedAt
	return g, nil
}

// ListActiveByAccount returns the account's active graphs ordered by id, so
// trigger matching scans them in a stable order.
func (s *Store) ListActiveByAccount(ctx context.Context, accountID string) ([]*Graph, error) {
	rows, err := s.db.Query(ctx, `
		SELECT document, updated_at FROM flows
		WHERE account_id = $1 AND status = 'active'
		ORDER BY id ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("flow: list active: %w", err)
	}
	defer rows.Close()

	var graphs []*Graph
	for rows.Next() {
		var document []byte
		var updatedAt time.Time
		if err := rows.Scan(&document, &updatedAt); err != nil {
			return nil, fmt.Errorf("flow: list active: scan: %w", err)
		}
		g, err := Decode(accountID, document)
		if err != nil {
			return nil, err
		}
		g.UpdatedAt = updatedAt
		graphs = append(graphs, g)
	}
	return graphs, rows.Err()
}

// Upsert writes the graph document, replacing any previous version.
func (s *Store) Upsert(ctx context.Context, g *Graph) error {
	document, err := Encode(g)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(ctx, `
		INSERT INTO flows (id, account_id, name, status, document, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, status = EXCLUDED.status,
		    document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
		g.ID, g.AccountID, g.Name, string(g.Status), document, now)
	if err != nil {
		return fmt.Errorf("flow: upsert %s: %w", g.ID, err)
	}
	g.UpdatedAt = now
	return nil
}

// Delete removes a graph.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM flows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("flow: delete %s: %w", id, err)
	}
	return nil
}
