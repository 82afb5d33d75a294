// Package auth registers accounts and resolves bearer tokens to stats identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"nikkei-quiz-service/internal/domain"
)

// UserRepository is implemented by the file and relational stores.
type UserRepository interface {
	CreateUser(ctx context.Context, user domain.User) error
	FindUserByLogin(ctx context.Context, login string) (domain.User, error)
	FindUserByID(ctx context.Context, id string) (domain.User, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// Registration is the sign-up form.
type Registration struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type Service struct {
	users  UserRepository
	tokens *Tokens
	now    func() time.Time
}

func NewService(users UserRepository, tokens *Tokens) *Service {
	return &Service{users: users, tokens: tokens, now: time.Now}
}

func (s *Service) Register(ctx context.Context, reg Registration) (domain.User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	reg.DisplayName = strings.TrimSpace(reg.DisplayName)
	if err := validateRegistration(reg); err != nil {
		return domain.User{}, err
	}
	hash, err := HashPassword(reg.Password)
	if err != nil {
		return domain.User{}, err
	}
	displayName := reg.DisplayName
	if displayName == "" {
		displayName = reg.Username
	}
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     reg.Username,
		Email:        reg.Email,
		PasswordHash: hash,
		DisplayName:  displayName,
		CreatedAt:    s.now().UTC(),
		IsActive:     true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	log.Printf("[AUTH] registered user %s", user.Username)
	return user, nil
}

// Login checks the password of the account matching login (username or email) and issues a token.
func (s *Service) Login(ctx context.Context, login, password string) (string, domain.User, error) {
	user, err := s.users.FindUserByLogin(ctx, strings.TrimSpace(login))
	if errors.Is(err, domain.ErrUserNotFound) {
		return "", domain.User{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return "", domain.User{}, err
	}
	if !user.IsActive || !CheckPassword(user.PasswordHash, password) {
		return "", domain.User{}, domain.ErrInvalidCredentials
	}
	at := s.now().UTC()
	if err := s.users.TouchLogin(ctx, user.ID, at); err != nil {
		log.Printf("[AUTH] failed to record login of %s: %v", user.ID, err)
	} else {
		user.LastLogin = &at
	}
	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", domain.User{}, err
	}
	return token, user, nil
}

// Authenticate resolves a bearer token to the identity owning its stats.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return "", err
	}
	user, err := s.users.FindUserByID(ctx, claims.Subject)
	if errors.Is(err, domain.ErrUserNotFound) {
		return "", fmt.Errorf("%w: unknown account", domain.ErrUnauthenticated)
	}
	if err != nil {
		return "", err
	}
	if !user.IsActive {
		return "", fmt.Errorf("%w: account disabled", domain.ErrUnauthenticated)
	}
	return domain.Identity(user.ID), nil
}

func validateRegistration(reg Registration) error {
	if n := utf8.RuneCountInString(reg.Username); n < 3 || n > 20 {
		return fmt.Errorf("%w: username must be 3 to 20 characters", domain.ErrInvalidRegistration)
	}
	if reg.Username == string(domain.GlobalIdentity) {
		return fmt.Errorf("%w: username is reserved", domain.ErrInvalidRegistration)
	}
	addr, err := mail.ParseAddress(reg.Email)
	if err != nil || addr.Address != reg.Email {
		return fmt.Errorf("%w: invalid email address", domain.ErrInvalidRegistration)
	}
	if len(reg.Password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidRegistration, minPasswordLength)
	}
	if utf8.RuneCountInString(reg.DisplayName) > 50 {
		return fmt.Errorf("%w: display name must be at most 50 characters", domain.ErrInvalidRegistration)
	}
	return nil
}
