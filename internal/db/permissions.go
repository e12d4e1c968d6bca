package db

import "context"

// IsAllowed reports whether actor is on the entry allow-list.
func (db *DB) IsAllowed(ctx context.Context, actorID string) (bool, error) {
	var ok bool
	err := db.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM entry_allowlist WHERE actor_id = $1)",
		actorID,
	).Scan(&ok)
	return ok, err
}

func (db *DB) IsTournamentAdmin(ctx context.Context, tournamentID, actorID string) (bool, error) {
	var ok bool
	err := db.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM tournament_admins WHERE tournament_id::text = $1 AND actor_id = $2)",
		tournamentID, actorID,
	).Scan(&ok)
	return ok, err
}
