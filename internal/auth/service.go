package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"finboard/internal/core"
	"finboard/internal/ports"
)

const MinPasswordLength = 8

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidEmail       = errors.New("invalid email")
)

// Session is what a successful login hands back to the client.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
}

type Service struct {
	users  ports.UserStore
	tokens *Tokens
	cost   int
}

func NewService(users ports.UserStore, tokens *Tokens) *Service {
	return &Service{users: users, tokens: tokens, cost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

func (s *Service) Tokens() *Tokens { return s.tokens }

func (s *Service) Register(ctx context.Context, email, password string) (core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return core.User{}, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return core.User{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := core.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return core.User{}, err
	}
	slog.InfoContext(ctx, "User registered", "user_id", u.ID)
	return u, nil
}

// Login checks the password and issues a bearer token. Unknown emails and
// wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	token, exp, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, UserID: u.ID, Email: u.Email}, nil
}

// Authenticate returns the user for valid credentials without issuing a token.
func (s *Service) Authenticate(ctx context.Context, email, password string) (core.User, error) {
	u, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return core.User{}, ErrInvalidCredentials
	}
	return u, nil
}
