package identity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "collabdocs/internal/errors"
	"collabdocs/internal/identity"
	"collabdocs/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User // by ID
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[id]; ok {
		return user, nil
	}
	return nil, apperrors.ErrUserNotFound
}

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

func newService(repo *fakeUserRepo) *identity.Service {
	return identity.NewService(repo, "test-secret", time.Hour)
}

func TestRegisterLoginVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newFakeUserRepo()
	svc := newService(repo)

	user, err := svc.Register(ctx, "alice", "Alice@Example.com ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email, "email is normalized")
	assert.NotEqual(t, "s3cret", user.PasswordHash)

	token, id, err := svc.Login(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, id.UserID)
	assert.Equal(t, "alice", id.Username)

	resolved, err := svc.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, id, resolved)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := newService(newFakeUserRepo())

	_, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "imposter", "alice@example.com", "other")
	require.ErrorIs(t, err, apperrors.ErrEmailTaken)
}

func TestLoginFailures(t *testing.T) {
	ctx := context.Background()
	svc := newService(newFakeUserRepo())
	_, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret")
	require.NoError(t, err)

	// Wrong password and unknown email look identical to the caller.
	_, _, err = svc.Login(ctx, "alice@example.com", "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidLogin)

	_, _, err = svc.Login(ctx, "nobody@example.com", "s3cret")
	require.ErrorIs(t, err, apperrors.ErrInvalidLogin)
}

func TestVerifyCredentialTaxonomy(t *testing.T) {
	ctx := context.Background()
	repo := newFakeUserRepo()
	svc := newService(repo)

	_, err := svc.Verify(ctx, "")
	require.ErrorIs(t, err, apperrors.ErrNoCredential)

	_, err = svc.Verify(ctx, "not-a-token")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredential)

	// Token signed with a different secret.
	otherToken, _, err := func() (string, identity.Identity, error) {
		other := identity.NewService(repo, "other-secret", time.Hour)
		_, regErr := other.Register(ctx, "bob", "bob@example.com", "pw")
		require.NoError(t, regErr)
		return other.Login(ctx, "bob@example.com", "pw")
	}()
	require.NoError(t, err)
	_, err = svc.Verify(ctx, otherToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
}

func TestVerifyDeletedUser(t *testing.T) {
	ctx := context.Background()
	repo := newFakeUserRepo()
	svc := newService(repo)

	user, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret")
	require.NoError(t, err)
	token, _, err := svc.Login(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)

	repo.mu.Lock()
	delete(repo.users, user.ID)
	repo.mu.Unlock()

	_, err = svc.Verify(ctx, token)
	require.ErrorIs(t, err, apperrors.ErrIdentityNotFound)
}

func TestVerifyExpiredToken(t *testing.T) {
	ctx := context.Background()
	repo := newFakeUserRepo()
	svc := identity.NewService(repo, "test-secret", time.Minute)

	_, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret")
	require.NoError(t, err)
	token, _, err := svc.Login(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)

	identity.NowTimeFunc = func() time.Time { return time.Now().Add(2 * time.Minute) }
	defer func() { identity.NowTimeFunc = time.Now }()

	_, err = svc.Verify(ctx, token)
	require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
}
