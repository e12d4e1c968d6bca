package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felipefinhane/poker-ranking/internal/alloc"
	"github.com/felipefinhane/poker-ranking/internal/commit"
	"github.com/felipefinhane/poker-ranking/internal/wizard"
	"github.com/jackc/pgx/v5"
)

// ListParticipants returns every player, ordered by name.
func (db *DB) ListParticipants(ctx context.Context) ([]wizard.Participant, error) {
	rows, err := db.pool.Query(ctx, "SELECT id::text, name FROM players ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []wizard.Participant
	for rows.Next() {
		var p wizard.Participant
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateMatchWithParticipants stores a match and its rows in one transaction.
// A request_id that was already stored yields the existing match id and
// commit.ErrDuplicate, with nothing written.
func (db *DB) CreateMatchWithParticipants(ctx context.Context, tournamentID string, playedAt time.Time, requestID string, rows []alloc.Row) (string, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var matchID string
	err = tx.QueryRow(ctx,
		`INSERT INTO matches (tournament_id, played_at, request_id)
		 VALUES ($1::uuid, $2, $3::uuid)
		 ON CONFLICT (request_id) DO NOTHING
		 RETURNING id::text`,
		tournamentID, playedAt, requestID,
	).Scan(&matchID)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := tx.QueryRow(ctx,
			"SELECT id::text FROM matches WHERE request_id = $1::uuid", requestID,
		).Scan(&matchID); err != nil {
			return "", fmt.Errorf("failed to load existing match: %w", err)
		}
		return matchID, commit.ErrDuplicate
	}
	if err != nil {
		return "", fmt.Errorf("failed to insert match: %w", err)
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(
			`INSERT INTO match_participants (match_id, player_id, position, knockouts)
			 VALUES ($1::uuid, $2::uuid, $3, $4)`,
			matchID, r.ParticipantID, r.Position, r.Credits,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return "", fmt.Errorf("failed to insert participants: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return matchID, nil
}

type MatchSummary struct {
	ID           string    `json:"id"`
	PlayedAt     time.Time `json:"played_at"`
	Participants int       `json:"participants"`
	WinnerName   *string   `json:"winner_name"`
}

// ListMatches returns a tournament's matches, newest first.
func (db *DB) ListMatches(ctx context.Context, tournamentID string) ([]MatchSummary, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT m.id::text, m.played_at,
		        (SELECT count(*) FROM match_participants mp WHERE mp.match_id = m.id),
		        (SELECT p.name FROM match_participants mp
		           JOIN players p ON p.id = mp.player_id
		          WHERE mp.match_id = m.id AND mp.position = 1)
		 FROM matches m
		 WHERE m.tournament_id = $1::uuid
		 ORDER BY m.played_at DESC`,
		tournamentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []MatchSummary{}
	for rows.Next() {
		var m MatchSummary
		if err := rows.Scan(&m.ID, &m.PlayedAt, &m.Participants, &m.WinnerName); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type MatchParticipant struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	Position   int    `json:"position"`
	Knockouts  int    `json:"knockouts"`
}

type Match struct {
	ID           string             `json:"id"`
	TournamentID string             `json:"tournament_id"`
	PlayedAt     time.Time          `json:"played_at"`
	Participants []MatchParticipant `json:"participants"`
}

func (db *DB) GetMatch(ctx context.Context, matchID string) (*Match, error) {
	var m Match
	err := db.pool.QueryRow(ctx,
		"SELECT id::text, tournament_id::text, played_at FROM matches WHERE id = $1::uuid",
		matchID,
	).Scan(&m.ID, &m.TournamentID, &m.PlayedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := db.pool.Query(ctx,
		`SELECT mp.player_id::text, coalesce(p.name, '—'), mp.position, mp.knockouts
		 FROM match_participants mp
		 LEFT JOIN players p ON p.id = mp.player_id
		 WHERE mp.match_id = $1::uuid
		 ORDER BY mp.position`,
		matchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	m.Participants = []MatchParticipant{}
	for rows.Next() {
		var p MatchParticipant
		if err := rows.Scan(&p.PlayerID, &p.PlayerName, &p.Position, &p.Knockouts); err != nil {
			return nil, err
		}
		m.Participants = append(m.Participants, p)
	}
	return &m, rows.Err()
}

type RankingRow struct {
	Position   int    `json:"position"`
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	Matches    int    `json:"matches"`
	Wins       int    `json:"wins"`
	Knockouts  int    `json:"total_knockouts"`
}

// Ranking orders a tournament's players by wins, then knockouts.
func (db *DB) Ranking(ctx context.Context, tournamentID string) ([]RankingRow, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT rank() OVER (ORDER BY t.wins DESC, t.knockouts DESC)::int,
		        t.player_id::text, t.name, t.matches, t.wins, t.knockouts
		 FROM (
			 SELECT p.id AS player_id, p.name,
			        count(*)::int AS matches,
			        count(*) FILTER (WHERE mp.position = 1)::int AS wins,
			        coalesce(sum(mp.knockouts), 0)::int AS knockouts
			 FROM match_participants mp
			 JOIN matches m ON m.id = mp.match_id
			 JOIN players p ON p.id = mp.player_id
			 WHERE m.tournament_id = $1::uuid
			 GROUP BY p.id, p.name
		 ) t
		 ORDER BY 1, t.name`,
		tournamentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RankingRow{}
	for rows.Next() {
		var r RankingRow
		if err := rows.Scan(&r.Position, &r.PlayerID, &r.PlayerName, &r.Matches, &r.Wins, &r.Knockouts); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
