package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// AccountService defines player account operations
type AccountService interface {
	Register(ctx context.Context, req RegisterRequest) (*User, error)
	VerifyEmail(ctx context.Context, email string) error
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, token string) error
	ListUsers(ctx context.Context) ([]*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
}

type accountServiceImpl struct {
	users    UserRepository
	tokens   Tokens
	notifier VerificationNotifier
	baseURL  string
	cost     int
	now      func() time.Time
}

// AccountOption customizes an AccountService.
type AccountOption func(*accountServiceImpl)

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) AccountOption {
	return func(s *accountServiceImpl) { s.cost = cost }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) AccountOption {
	return func(s *accountServiceImpl) { s.now = now }
}

// NewAccountService creates an account service. baseURL prefixes the
// verification link sent to new users.
func NewAccountService(users UserRepository, tokens Tokens, notifier VerificationNotifier, baseURL string, opts ...AccountOption) AccountService {
	s := &accountServiceImpl{
		users:    users,
		tokens:   tokens,
		notifier: notifier,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an unverified user and sends the verification link.
func (s *accountServiceImpl) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	req.Firstname = strings.TrimSpace(req.Firstname)
	req.Lastname = strings.TrimSpace(req.Lastname)
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Firstname == "" || req.Lastname == "" || req.Username == "" || req.Email == "" || req.Password == "" {
		return nil, ErrMissingFields
	}

	if err := s.ensureFree(ctx, req.Email, req.Username); err != nil {
		return nil, err
	}

	id, err := s.generateID(ctx, req.Lastname, req.Firstname)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user := &User{
		ID:           id,
		Firstname:    req.Firstname,
		Lastname:     req.Lastname,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	link := s.baseURL + "/api/verify-email?email=" + url.QueryEscape(user.Email)
	if err := s.notifier.SendVerification(ctx, user.Email, link); err != nil {
		return nil, fmt.Errorf("failed to send verification: %w", err)
	}

	return user, nil
}

func (s *accountServiceImpl) ensureFree(ctx context.Context, email, username string) error {
	if _, err := s.users.UserByEmail(ctx, email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	if _, err := s.users.UserByUsername(ctx, username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	return nil
}

// generateID builds the id from the first three letters of the last and
// first names. On collision it keeps five letters and appends a counter.
func (s *accountServiceImpl) generateID(ctx context.Context, lastname, firstname string) (string, error) {
	base := strings.ToUpper(prefix(lastname, 3) + prefix(firstname, 3))

	n, err := s.users.CountUserIDPrefix(ctx, base)
	if err != nil {
		return "", fmt.Errorf("failed to count user ids: %w", err)
	}
	if n == 0 {
		return base, nil
	}

	short := prefix(base, 5)
	n, err = s.users.CountUserIDPrefix(ctx, short)
	if err != nil {
		return "", fmt.Errorf("failed to count user ids: %w", err)
	}

	for i := n + 1; ; i++ {
		id := short + strconv.Itoa(i)
		if _, err := s.users.UserByID(ctx, id); errors.Is(err, ErrUserNotFound) {
			return id, nil
		} else if err != nil {
			return "", err
		}
	}
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// VerifyEmail marks the account for email as verified.
func (s *accountServiceImpl) VerifyEmail(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrMissingFields
	}
	return s.users.SetVerified(ctx, email)
}

// Login checks the credentials of a verified account and issues a token.
func (s *accountServiceImpl) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, ErrMissingFields
	}

	user, err := s.users.UserByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		return nil, err
	}
	if !user.Verified {
		return nil, ErrNotVerified
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrBadCredentials
	}

	token, exp, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &LoginResult{Token: token, ExpiresAt: exp}, nil
}

// Logout revokes token.
func (s *accountServiceImpl) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

func (s *accountServiceImpl) ListUsers(ctx context.Context) ([]*User, error) {
	return s.users.ListUsers(ctx)
}

func (s *accountServiceImpl) GetUser(ctx context.Context, id string) (*User, error) {
	return s.users.UserByID(ctx, id)
}

// LogNotifier writes the verification link to the log instead of mailing it.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) SendVerification(_ context.Context, email, link string) error {
	n.Log.Info().Str("email", email).Str("link", link).Msg("verification link")
	return nil
}
