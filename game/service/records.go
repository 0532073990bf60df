package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordService defines game record operations
type RecordService interface {
	CreateGame(ctx context.Context, creatorID string) (*GameRecord, error)
	ListGames(ctx context.Context) ([]*GameRecord, error)
	UserGames(ctx context.Context, userID string) ([]*GameRecord, error)
	UpdateGame(ctx context.Context, action, gameID string, req UpdateGameRequest) (*GameRecord, error)
}

type recordServiceImpl struct {
	games GameRepository
	now   func() time.Time
}

// NewRecordService creates a record service
func NewRecordService(games GameRepository) RecordService {
	return &recordServiceImpl{games: games, now: time.Now}
}

// CreateGame starts a pending record owned by creatorID.
func (s *recordServiceImpl) CreateGame(ctx context.Context, creatorID string) (*GameRecord, error) {
	if creatorID == "" {
		return nil, ErrMissingUserID
	}

	now := s.now().UTC()
	game := &GameRecord{
		ID:        uuid.NewString(),
		Creator:   creatorID,
		State:     GamePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.games.CreateGame(ctx, game); err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}
	return game, nil
}

func (s *recordServiceImpl) ListGames(ctx context.Context) ([]*GameRecord, error) {
	return s.games.ListGames(ctx)
}

// UserGames lists the records created by userID.
func (s *recordServiceImpl) UserGames(ctx context.Context, userID string) ([]*GameRecord, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	return s.games.GamesByCreator(ctx, userID)
}

// UpdateGame applies action to the record. join seats req.UserID and then
// behaves like start.
func (s *recordServiceImpl) UpdateGame(ctx context.Context, action, gameID string, req UpdateGameRequest) (*GameRecord, error) {
	if req.UserID == "" {
		return nil, ErrMissingUserID
	}
	if gameID == "" {
		return nil, ErrMissingGameID
	}

	game, err := s.games.GameByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.State == GameFinished {
		return nil, ErrGameFinished
	}

	switch action {
	case ActionJoin:
		if game.Player != nil {
			return nil, ErrGameFull
		}
		if game.State != GamePending {
			return nil, ErrGameNotPending
		}
		player := req.UserID
		game.Player = &player
		game.State = GamePlaying
	case ActionStart:
		game.State = GamePlaying
	case ActionFinish:
		if req.Score == nil {
			return nil, ErrMissingScore
		}
		score := *req.Score
		game.State = GameFinished
		game.WinnerScore = &score
		game.Winner = req.Winner
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	game.UpdatedAt = s.now().UTC()
	if err := s.games.UpdateGame(ctx, game); err != nil {
		return nil, fmt.Errorf("failed to update game: %w", err)
	}
	return game, nil
}
