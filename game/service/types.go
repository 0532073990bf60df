package service

import (
	"context"
	"time"
)

// User is a registered player.
type User struct {
	ID           string    `json:"id"`
	Firstname    string    `json:"firstname"`
	Lastname     string    `json:"lastname"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// GameState is the lifecycle stage of a game record.
type GameState string

const (
	GamePending  GameState = "pending"
	GamePlaying  GameState = "playing"
	GameFinished GameState = "finished"
)

// Game record actions accepted by RecordService.UpdateGame.
const (
	ActionJoin   = "join"
	ActionStart  = "start"
	ActionFinish = "finish"
)

// GameRecord is a persisted game between a creator and a second player.
type GameRecord struct {
	ID          string    `json:"id"`
	Creator     string    `json:"creator"`
	Player      *string   `json:"player"`
	State       GameState `json:"state"`
	WinnerScore *int      `json:"winnerScore"`
	Winner      *string   `json:"winner"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RegisterRequest is the registration form.
type RegisterRequest struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// LoginRequest logs in by email.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult carries the issued token.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UpdateGameRequest is the body of a game record update.
type UpdateGameRequest struct {
	UserID string  `json:"userId"`
	Score  *int    `json:"score"`
	Winner *string `json:"winner"`
}

// UserRepository stores users. Lookups return ErrUserNotFound when nothing
// matches.
type UserRepository interface {
	CreateUser(ctx context.Context, u *User) error
	UserByID(ctx context.Context, id string) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByUsername(ctx context.Context, username string) (*User, error)
	CountUserIDPrefix(ctx context.Context, prefix string) (int, error)
	ListUsers(ctx context.Context) ([]*User, error)
	SetVerified(ctx context.Context, email string) error
}

// GameRepository stores game records. GameByID returns ErrGameNotFound when
// nothing matches.
type GameRepository interface {
	CreateGame(ctx context.Context, g *GameRecord) error
	GameByID(ctx context.Context, id string) (*GameRecord, error)
	ListGames(ctx context.Context) ([]*GameRecord, error)
	GamesByCreator(ctx context.Context, userID string) ([]*GameRecord, error)
	UpdateGame(ctx context.Context, g *GameRecord) error
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(userID, username string) (string, time.Time, error)
}

// TokenRevoker invalidates a token before it expires.
type TokenRevoker interface {
	Revoke(ctx context.Context, token string) error
}

// Tokens issues and revokes.
type Tokens interface {
	TokenIssuer
	TokenRevoker
}

// VerificationNotifier tells a new user how to verify their email.
type VerificationNotifier interface {
	SendVerification(ctx context.Context, email, link string) error
}
