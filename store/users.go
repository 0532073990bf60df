package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/wricardo/morpion/game/service"
)

var _ service.UserRepository = (*Store)(nil)

const userColumns = `id, firstname, lastname, username, email, password_hash, verified, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) CreateUser(ctx context.Context, u *service.User) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO users (`+userColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Firstname, u.Lastname, u.Username, u.Email, u.PasswordHash,
		u.Verified, formatTime(u.CreatedAt), formatTime(u.UpdatedAt),
	)
	if err != nil {
		return uniqueViolation(err)
	}
	return nil
}

// uniqueViolation maps a UNIQUE constraint failure to the matching service
// error so a race between two registrations reads the same as a lookup hit.
func uniqueViolation(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return err
	}
	msg := sqliteErr.Error()
	switch {
	case strings.Contains(msg, "users.email"):
		return service.ErrEmailTaken
	case strings.Contains(msg, "users.username"):
		return service.ErrUsernameTaken
	}
	return err
}

func (s *Store) UserByID(ctx context.Context, id string) (*service.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*service.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email)
	return scanUser(row)
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*service.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, username)
	return scanUser(row)
}

// CountUserIDPrefix counts ids starting with prefix.
func (s *Store) CountUserIDPrefix(ctx context.Context, prefix string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM users WHERE substr(id, 1, length(?)) = ?`, prefix, prefix,
	).Scan(&n)
	return n, err
}

func (s *Store) ListUsers(ctx context.Context) ([]*service.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*service.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) SetVerified(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET verified = 1, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE email=?`, email)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return service.ErrUserNotFound
	}
	return nil
}

func scanUser(row rowScanner) (*service.User, error) {
	var u service.User
	var created, updated string
	err := row.Scan(&u.ID, &u.Firstname, &u.Lastname, &u.Username, &u.Email,
		&u.PasswordHash, &u.Verified, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = parseTime(created)
	u.UpdatedAt = parseTime(updated)
	return &u, nil
}
