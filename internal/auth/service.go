package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"coursehub.org/internal/ids"
	"coursehub.org/internal/obs"
	"coursehub.org/internal/validation"
)

// Service registers users and exchanges credentials for access tokens.
type Service struct {
	users  UserStore
	tokens *TokenService
	cost   int
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithBcryptCost sets the bcrypt cost for new hashes.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the credential store and the token service.
func NewService(users UserStore, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, errors.New("auth: user store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	s := &Service{users: users, tokens: tokens, cost: bcrypt.DefaultCost, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Tokens exposes the token service used for bearer validation.
func (s *Service) Tokens() *TokenService { return s.tokens }

// RegisterInput is the raw registration payload.
type RegisterInput struct {
	Name     string `json:"name" validate:"notblank,max=200"`
	Email    string `json:"email" validate:"notblank,email,max=320"`
	Password string `json:"password" validate:"notblank"`
	Role     string `json:"role" validate:"notblank"`
}

// Register validates in, in this order: required fields, duplicate email,
// role membership. Only then is the password hashed and the user stored.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)

	v := validation.Violations{}
	if err := validation.Check(in, v); err != nil {
		return User{}, err
	}
	if len(in.Password) > MaxPasswordBytes {
		v.Add("password", "too_long")
	}
	if err := v.Err(); err != nil {
		obs.AuthEvent("register", "invalid")
		return User{}, err
	}

	email := NormalizeEmail(in.Email)
	if _, err := s.users.FindUserByEmail(ctx, email); err == nil {
		obs.AuthEvent("register", "email_taken")
		return User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("lookup email: %w", err)
	}

	role, ok := ParseRole(in.Role)
	if !ok {
		obs.AuthEvent("register", "invalid")
		return User{}, validation.Violations{"role": "unknown_role"}.Err()
	}

	hash, err := HashPasswordCost(in.Password, s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	u := &User{
		ID:           ids.New(),
		Name:         in.Name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrConflict) {
			obs.AuthEvent("register", "email_taken")
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	obs.AuthEvent("register", "ok")

	out := *u
	out.PasswordHash = ""
	return out, nil
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// Login checks credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" || len(password) > MaxPasswordBytes {
		obs.AuthEvent("login", "invalid_credentials")
		return LoginResult{}, ErrInvalidCredentials
	}

	u, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return LoginResult{}, fmt.Errorf("lookup email: %w", err)
		}
		// keep response time close to the known-email path
		_, _ = CheckPassword(s.placeholderHash(), password)
		obs.AuthEvent("login", "invalid_credentials")
		return LoginResult{}, ErrInvalidCredentials
	}

	ok, err := CheckPassword(u.PasswordHash, password)
	if err != nil {
		return LoginResult{}, fmt.Errorf("check password: %w", err)
	}
	if !ok {
		obs.AuthEvent("login", "invalid_credentials")
		return LoginResult{}, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(*u)
	if err != nil {
		return LoginResult{}, err
	}
	obs.AuthEvent("login", "ok")

	out := *u
	out.PasswordHash = ""
	return LoginResult{Token: token, ExpiresAt: exp, User: out}, nil
}

// Me returns the stored record of the authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, ErrUnauthenticated
	}
	u, err := s.users.FindUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	out := *u
	out.PasswordHash = ""
	return out, nil
}

// Authenticate validates a bearer token and reports the outcome as a metric.
func (s *Service) Authenticate(token string) (*Claims, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		obs.AuthEvent("token", "invalid")
		return nil, err
	}
	return claims, nil
}

func (s *Service) placeholderHash() string {
	s.dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte(ids.New()), s.cost)
		if err == nil {
			s.dummyHash = string(h)
		}
	})
	if s.dummyHash == "" {
		return "$2a$10$invalidinvalidinvalidinvalidinvalidinvalidinvalidinva"
	}
	return s.dummyHash
}
