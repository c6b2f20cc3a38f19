package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "collabdocs/internal/errors"
	"collabdocs/internal/models"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Identity is the resolved owner of a credential. Immutable for the lifetime
// of a session once resolved.
type Identity struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UserRepo declares what the identity service needs from user storage.
type UserRepo interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// Service registers accounts, issues bearer tokens and resolves them back to
// identities. Tokens are HS256 JWTs whose subject is the user ID.
type Service struct {
	users  UserRepo
	secret []byte
	ttl    time.Duration
}

func NewService(users UserRepo, secret string, ttl time.Duration) *Service {
	return &Service{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Register creates a new account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, apperrors.ErrEmailTaken
	} else if !errors.Is(err, apperrors.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// Login verifies the password and issues a signed token for the account.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (string, Identity, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		return "", Identity{}, apperrors.ErrInvalidLogin
	}
	if err != nil {
		return "", Identity{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", Identity{}, apperrors.ErrInvalidLogin
	}

	token, err := s.issue(user)
	if err != nil {
		return "", Identity{}, err
	}

	return token, identityOf(user), nil
}

// Verify resolves a raw credential to an Identity. Failures map onto the
// connection-time auth taxonomy: missing credential, bad/expired token, or a
// token whose subject no longer exists.
func (s *Service) Verify(ctx context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, apperrors.ErrNoCredential
	}

	claims := jwtlib.MapClaims{}
	_, err := jwtlib.ParseWithClaims(credential, claims, func(t *jwtlib.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(func() time.Time { return NowTimeFunc() }),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidCredential, err)
	}

	userID, err := claims.GetSubject()
	if err != nil || userID == "" {
		return Identity{}, apperrors.ErrInvalidCredential
	}

	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		return Identity{}, apperrors.ErrIdentityNotFound
	}
	if err != nil {
		return Identity{}, err
	}

	return identityOf(user), nil
}

func (s *Service) issue(user *models.User) (string, error) {
	now := NowTimeFunc()
	claims := jwtlib.MapClaims{
		"sub": user.ID,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
		"jti": uuid.New().String(),
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func identityOf(user *models.User) Identity {
	return Identity{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	}
}
