package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ChatTournament returns the tournament bound to a conversation. A
// conversation without a binding is bound to the first tournament. It
// returns "" when no tournament exists at all.
func (db *DB) ChatTournament(ctx context.Context, contextID string) (string, error) {
	var id string
	err := db.pool.QueryRow(ctx,
		"SELECT tournament_id::text FROM chat_tournaments WHERE context_id = $1",
		contextID,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	err = db.pool.QueryRow(ctx,
		"SELECT id::text FROM tournaments ORDER BY created_at, id LIMIT 1",
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	if err := db.SetChatTournament(ctx, contextID, id); err != nil {
		return "", err
	}
	return id, nil
}

// SetChatTournament binds a conversation to a tournament. ErrNotFound means
// the tournament does not exist.
func (db *DB) SetChatTournament(ctx context.Context, contextID, tournamentID string) error {
	ok, err := db.TournamentExists(ctx, tournamentID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO chat_tournaments (context_id, tournament_id, updated_at)
		 VALUES ($1, $2::uuid, now())
		 ON CONFLICT (context_id) DO UPDATE
		 SET tournament_id = EXCLUDED.tournament_id, updated_at = EXCLUDED.updated_at`,
		contextID, tournamentID,
	)
	return err
}

func (db *DB) TournamentExists(ctx context.Context, tournamentID string) (bool, error) {
	var ok bool
	err := db.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM tournaments WHERE id::text = $1)",
		tournamentID,
	).Scan(&ok)
	return ok, err
}
