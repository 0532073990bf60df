package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wricardo/morpion/game/service"
)

var _ service.GameRepository = (*Store)(nil)

const gameColumns = `id, creator, player, state, winner_score, winner, created_at, updated_at`

func (s *Store) CreateGame(ctx context.Context, g *service.GameRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO games (`+gameColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Creator, nullString(g.Player), string(g.State), nullInt(g.WinnerScore),
		nullString(g.Winner), formatTime(g.CreatedAt), formatTime(g.UpdatedAt),
	)
	return err
}

func (s *Store) GameByID(ctx context.Context, id string) (*service.GameRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id=?`, id)
	g, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrGameNotFound
	}
	return g, err
}

func (s *Store) ListGames(ctx context.Context) ([]*service.GameRecord, error) {
	return s.queryGames(ctx, `SELECT `+gameColumns+` FROM games ORDER BY created_at, id`)
}

func (s *Store) GamesByCreator(ctx context.Context, userID string) ([]*service.GameRecord, error) {
	return s.queryGames(ctx, `SELECT `+gameColumns+` FROM games WHERE creator=? ORDER BY created_at, id`, userID)
}

func (s *Store) UpdateGame(ctx context.Context, g *service.GameRecord) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE games
        SET player=?, state=?, winner_score=?, winner=?, updated_at=?
        WHERE id=?`,
		nullString(g.Player), string(g.State), nullInt(g.WinnerScore), nullString(g.Winner),
		formatTime(g.UpdatedAt), g.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return service.ErrGameNotFound
	}
	return nil
}

func (s *Store) queryGames(ctx context.Context, query string, args ...any) ([]*service.GameRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*service.GameRecord, 0)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGame(row rowScanner) (*service.GameRecord, error) {
	var (
		g                service.GameRecord
		state            string
		player, winner   sql.NullString
		score            sql.NullInt64
		created, updated string
	)
	err := row.Scan(&g.ID, &g.Creator, &player, &state, &score, &winner, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan game: %w", err)
	}

	g.State = service.GameState(state)
	if player.Valid {
		g.Player = &player.String
	}
	if winner.Valid {
		g.Winner = &winner.String
	}
	if score.Valid {
		v := int(score.Int64)
		g.WinnerScore = &v
	}
	g.CreatedAt = parseTime(created)
	g.UpdatedAt = parseTime(updated)
	return &g, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
