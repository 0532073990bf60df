package service

import "errors"

// Validation and lookup errors. The HTTP layer maps them to status codes.
var (
	ErrMissingFields  = errors.New("all fields are required")
	ErrEmailTaken     = errors.New("email is already in use")
	ErrUsernameTaken  = errors.New("username is already in use")
	ErrUserNotFound   = errors.New("user not found")
	ErrNotVerified    = errors.New("account is not verified yet")
	ErrBadCredentials = errors.New("incorrect password")
	ErrGameNotFound   = errors.New("game not found")
	ErrGameFinished   = errors.New("game is already finished")
	ErrGameFull       = errors.New("game already has two players")
	ErrGameNotPending = errors.New("game is no longer pending")
	ErrMissingScore   = errors.New("score is missing")
	ErrUnknownAction  = errors.New("unknown action")
	ErrMissingUserID  = errors.New("user id is missing")
	ErrMissingGameID  = errors.New("game id is missing")
)
