// Package sqlite persists match results and player tallies in a SQLite
// database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/HoudaChairi/Ft-transcendence/internal/store"
)

// DB wraps the SQLite connection
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the database at path and migrates it
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer keeps tally updates serialized.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS players (
		id TEXT PRIMARY KEY,
		avatar_url TEXT NOT NULL DEFAULT '',
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		games INTEGER NOT NULL DEFAULT 0,
		goals_for INTEGER NOT NULL DEFAULT 0,
		goals_against INTEGER NOT NULL DEFAULT 0,
		points INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		player1 TEXT NOT NULL REFERENCES players(id),
		player2 TEXT NOT NULL REFERENCES players(id),
		winner TEXT NOT NULL REFERENCES players(id),
		reason TEXT NOT NULL,
		score_left INTEGER NOT NULL,
		score_right INTEGER NOT NULL,
		tournament_id TEXT NOT NULL DEFAULT '',
		match_id TEXT NOT NULL DEFAULT '',
		ended_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_matches_player1 ON matches(player1);
	CREATE INDEX IF NOT EXISTS idx_matches_player2 ON matches(player2);
	CREATE INDEX IF NOT EXISTS idx_players_points ON players(points DESC);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// PersistMatchResult stores r and folds it into both players' tallies in
// one transaction.
func (db *DB) PersistMatchResult(ctx context.Context, r store.MatchResult) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range []string{r.Player1, r.Player2} {
		won := 0
		lost := 1
		points := store.PointsLoss
		if id == r.Winner {
			won, lost, points = 1, 0, store.PointsWin
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO players (id, wins, losses, games, goals_for, goals_against, points)
			VALUES (?, ?, ?, 1, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				wins = wins + excluded.wins,
				losses = losses + excluded.losses,
				games = games + 1,
				goals_for = goals_for + excluded.goals_for,
				goals_against = goals_against + excluded.goals_against,
				points = points + excluded.points`,
			id, won, lost, r.GoalsFor(id), r.GoalsAgainst(id), points,
		)
		if err != nil {
			return fmt.Errorf("update tally for %s: %w", id, err)
		}
	}

	endedAt := r.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO matches (session_id, player1, player2, winner, reason, score_left, score_right, tournament_id, match_id, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Player1, r.Player2, r.Winner, r.Reason,
		r.ScoreLeft, r.ScoreRight, r.TournamentID, r.MatchID, endedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return tx.Commit()
}

func (db *DB) ResolveAvatar(ctx context.Context, playerID string) (string, error) {
	var url string
	err := db.conn.QueryRowContext(ctx,
		"SELECT avatar_url FROM players WHERE id = ?", playerID,
	).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && url == "") {
		return "", store.ErrNotFound
	}
	return url, err
}

func (db *DB) SetAvatar(ctx context.Context, playerID, url string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO players (id, avatar_url) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET avatar_url = excluded.avatar_url`,
		playerID, url,
	)
	return err
}

func (db *DB) Tally(ctx context.Context, playerID string) (store.Tally, error) {
	t := store.Tally{PlayerID: playerID}
	err := db.conn.QueryRowContext(ctx,
		"SELECT wins, losses, games, goals_for, goals_against, points FROM players WHERE id = ? AND games > 0",
		playerID,
	).Scan(&t.Wins, &t.Losses, &t.Games, &t.GoalsFor, &t.GoalsAgainst, &t.Points)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Tally{}, store.ErrNotFound
	}
	return t, err
}

// Leaderboard returns the top players by points. A limit of zero or less
// returns everyone.
func (db *DB) Leaderboard(ctx context.Context, limit int) ([]store.Tally, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, wins, losses, games, goals_for, goals_against, points
		FROM players
		WHERE games > 0
		ORDER BY points DESC, wins DESC, id ASC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Tally
	for rows.Next() {
		var t store.Tally
		if err := rows.Scan(&t.PlayerID, &t.Wins, &t.Losses, &t.Games, &t.GoalsFor, &t.GoalsAgainst, &t.Points); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// History returns a player's most recent results, newest first
func (db *DB) History(ctx context.Context, playerID string, limit int) ([]store.MatchResult, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT session_id, player1, player2, winner, reason, score_left, score_right, tournament_id, match_id, ended_at
		FROM matches
		WHERE player1 = ? OR player2 = ?
		ORDER BY ended_at DESC, id DESC
		LIMIT ?`,
		playerID, playerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.MatchResult
	for rows.Next() {
		var r store.MatchResult
		if err := rows.Scan(&r.SessionID, &r.Player1, &r.Player2, &r.Winner, &r.Reason,
			&r.ScoreLeft, &r.ScoreRight, &r.TournamentID, &r.MatchID, &r.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ store.Store = (*DB)(nil)
