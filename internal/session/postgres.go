package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felipefinhane/poker-ranking/internal/wizard"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores sessions in wizard_sessions. Several rows may exist for a
// pair; the one with the greatest updated_at wins.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, now: time.Now}
}

func (p *Postgres) Load(ctx context.Context, contextID, actorID string) (*wizard.Session, error) {
	var payload []byte
	var updatedAt time.Time
	err := p.pool.QueryRow(ctx,
		`SELECT payload, updated_at
		 FROM wizard_sessions
		 WHERE context_id = $1 AND actor_id = $2
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		contextID, actorID,
	).Scan(&payload, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var s wizard.Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	s.UpdatedAt = updatedAt
	return &s, nil
}

// Save updates the pair's latest row, or inserts one when there is none.
func (p *Postgres) Save(ctx context.Context, s *wizard.Session) (*wizard.Session, error) {
	c := s.Clone()
	c.UpdatedAt = p.now().UTC()
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx,
		`UPDATE wizard_sessions
		 SET state = $3, payload = $4, updated_at = $5
		 WHERE session_id = (
			 SELECT session_id FROM wizard_sessions
			 WHERE context_id = $1 AND actor_id = $2
			 ORDER BY updated_at DESC
			 LIMIT 1
		 )`,
		c.ContextID, c.ActorID, string(c.State), payload, c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 0 {
		if _, err := tx.Exec(ctx,
			`INSERT INTO wizard_sessions (context_id, actor_id, state, payload, updated_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			c.ContextID, c.ActorID, string(c.State), payload, c.UpdatedAt,
		); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Clear removes every row of the pair.
func (p *Postgres) Clear(ctx context.Context, contextID, actorID string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM wizard_sessions WHERE context_id = $1 AND actor_id = $2`,
		contextID, actorID,
	)
	return err
}
