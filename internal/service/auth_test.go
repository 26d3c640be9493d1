package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/launchkit/identity/internal/dto"
	apperrors "github.com/launchkit/identity/internal/errors"
	"github.com/launchkit/identity/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// memUserStore is an in-memory UserStore with the same duplicate-key
// behavior as the postgres-backed repository
type memUserStore struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*model.User
	byEmail map[string]*model.User
	// forceDuplicate simulates losing the insert race after the
	// pre-check passed
	forceDuplicate bool
	failCreate     error
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		byID:    make(map[uuid.UUID]*model.User),
		byEmail: make(map[string]*model.User),
	}
}

func (s *memUserStore) Create(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCreate != nil {
		return s.failCreate
	}
	if s.forceDuplicate {
		return gorm.ErrDuplicatedKey
	}
	if _, exists := s.byEmail[user.Email]; exists {
		return gorm.ErrDuplicatedKey
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	copied := *user
	s.byID[user.ID] = &copied
	s.byEmail[user.Email] = &copied
	return nil
}

func (s *memUserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byEmail[email]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *memUserStore) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *memUserStore) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.byID[id]; ok {
		user.LastLogin = time.Now()
	}
	return nil
}

func (s *memUserStore) setEnabled(id uuid.UUID, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.byID[id]; ok {
		user.Enabled = enabled
	}
}

// memTokenStore is an in-memory RefreshTokenStore with delete-on-consume
// semantics matching the transactional repository
type memTokenStore struct {
	mu         sync.Mutex
	byValue    map[string]*model.RefreshToken
	failCreate error
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{byValue: make(map[string]*model.RefreshToken)}
}

func (s *memTokenStore) Create(ctx context.Context, token *model.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCreate != nil {
		return s.failCreate
	}
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	copied := *token
	s.byValue[token.Token] = &copied
	return nil
}

func (s *memTokenStore) Consume(ctx context.Context, value string) (*model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.byValue[value]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	delete(s.byValue, value)
	return token, nil
}

func (s *memTokenStore) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for value, token := range s.byValue {
		if token.UserID == userID {
			delete(s.byValue, value)
		}
	}
	return nil
}

func (s *memTokenStore) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	now := time.Now()
	for value, token := range s.byValue {
		if token.Expired(now) {
			delete(s.byValue, value)
			count++
		}
	}
	return count, nil
}

func (s *memTokenStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byValue)
}

func newTestAuthService(users *memUserStore, tokens *memTokenStore) *AuthService {
	jwtService := NewJWTService("test-secret-key-0123456789abcdef", time.Hour)
	return NewAuthService(users, tokens, jwtService, 7*24*time.Hour, nil)
}

func registerRequest() *dto.RegisterRequest {
	return &dto.RegisterRequest{
		Email:     "alice@example.com",
		Password:  "Password123!",
		FirstName: "Alice",
		LastName:  "Smith",
	}
}

func TestAuthService_Register(t *testing.T) {
	users := newMemUserStore()
	tokens := newMemTokenStore()
	svc := newTestAuthService(users, tokens)

	resp, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Greater(t, resp.ExpiresIn, int64(0))

	stored, err := users.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, stored.Role)
	assert.True(t, stored.Enabled)
	assert.NotEqual(t, "Password123!", stored.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("Password123!")))
}

func TestAuthService_Register_NormalizesEmail(t *testing.T) {
	users := newMemUserStore()
	svc := newTestAuthService(users, newMemTokenStore())

	req := registerRequest()
	req.Email = "  Alice@Example.COM "
	_, err := svc.Register(context.Background(), req)
	require.NoError(t, err)

	_, err = users.GetByEmail(context.Background(), "alice@example.com")
	assert.NoError(t, err)
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	users := newMemUserStore()
	svc := newTestAuthService(users, newMemTokenStore())

	_, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), registerRequest())
	assert.ErrorIs(t, err, apperrors.ErrEmailExists)

	// Case variation collides too
	req := registerRequest()
	req.Email = "ALICE@EXAMPLE.COM"
	_, err = svc.Register(context.Background(), req)
	assert.ErrorIs(t, err, apperrors.ErrEmailExists)
}

func TestAuthService_Register_RaceMapsToConflict(t *testing.T) {
	// The pre-check passes but the insert hits the unique index, as if a
	// concurrent registration won the race
	users := newMemUserStore()
	users.forceDuplicate = true
	svc := newTestAuthService(users, newMemTokenStore())

	_, err := svc.Register(context.Background(), registerRequest())
	assert.ErrorIs(t, err, apperrors.ErrEmailExists)
}

func TestAuthService_Register_TokenStoreFailure(t *testing.T) {
	users := newMemUserStore()
	tokens := newMemTokenStore()
	tokens.failCreate = errors.New("store unavailable")
	svc := newTestAuthService(users, tokens)

	resp, err := svc.Register(context.Background(), registerRequest())
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, apperrors.ErrInternal)
	assert.Equal(t, 0, tokens.count())
}

func TestAuthService_Login(t *testing.T) {
	users := newMemUserStore()
	tokens := newMemTokenStore()
	svc := newTestAuthService(users, tokens)

	_, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)

	resp, err := svc.Login(context.Background(), "alice@example.com", "Password123!")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)

	// Prior sessions stay alive: one from register, one from login
	assert.Equal(t, 2, tokens.count())
}

func TestAuthService_Login_EnumerationResistance(t *testing.T) {
	users := newMemUserStore()
	svc := newTestAuthService(users, newMemTokenStore())

	_, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)

	_, unknownErr := svc.Login(context.Background(), "nobody@example.com", "Password123!")
	_, wrongErr := svc.Login(context.Background(), "alice@example.com", "WrongPassword!")

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)

	// Unknown email and wrong password must be indistinguishable
	assert.ErrorIs(t, unknownErr, apperrors.ErrInvalidCredentials)
	assert.ErrorIs(t, wrongErr, apperrors.ErrInvalidCredentials)
	assert.Equal(t, apperrors.GetErrorCode(unknownErr), apperrors.GetErrorCode(wrongErr))
	assert.Equal(t, apperrors.GetErrorMessage(unknownErr), apperrors.GetErrorMessage(wrongErr))
}

func TestAuthService_Login_DisabledAccount(t *testing.T) {
	users := newMemUserStore()
	svc := newTestAuthService(users, newMemTokenStore())

	_, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)

	stored, err := users.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	users.setEnabled(stored.ID, false)

	_, err = svc.Login(context.Background(), "alice@example.com", "Password123!")
	assert.ErrorIs(t, err, apperrors.ErrAccountDisabled)
}

func TestAuthService_Refresh_Rotation(t *testing.T) {
	users := newMemUserStore()
	tokens := newMemTokenStore()
	svc := newTestAuthService(users, tokens)

	login, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The consumed value is dead: every subsequent use fails
	for i := 0; i < 3; i++ {
		_, err = svc.Refresh(context.Background(), login.RefreshToken)
		assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
	}

	// The replacement still works
	_, err = svc.Refresh(context.Background(), refreshed.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthService_Refresh_UnknownToken(t *testing.T) {
	svc := newTestAuthService(newMemUserStore(), newMemTokenStore())

	_, err := svc.Refresh(context.Background(), "wFNgu3LPdvrgzo4jONPEmeGCuN8wyHpcS3WVZTyJKys=")
	assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
}

func TestAuthService_Refresh_ExpiredToken(t *testing.T) {
	users := newMemUserStore()
	tokens := newMemTokenStore()
	svc := newTestAuthService(users, tokens)

	_, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)
	stored, err := users.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)

	expired := &model.RefreshToken{
		Token:     "expired-token-value",
		UserID:    stored.ID,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, tokens.Create(context.Background(), expired))

	_, err = svc.Refresh(context.Background(), "expired-token-value")
	assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)

	// Expired row was purged on access
	_, err = tokens.Consume(context.Background(), "expired-token-value")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAuthService_Refresh_DisabledAccount(t *testing.T) {
	users := newMemUserStore()
	tokens := newMemTokenStore()
	svc := newTestAuthService(users, tokens)

	login, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)
	stored, err := users.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)

	users.setEnabled(stored.ID, false)

	_, err = svc.Refresh(context.Background(), login.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
}

func TestAuthService_Logout_RevokesRefreshTokens(t *testing.T) {
	users := newMemUserStore()
	tokens := newMemTokenStore()
	svc := newTestAuthService(users, tokens)

	login, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)
	stored, err := users.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)

	// A second session
	second, err := svc.Login(context.Background(), "alice@example.com", "Password123!")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), stored.ID))
	assert.Equal(t, 0, tokens.count())

	_, err = svc.Refresh(context.Background(), login.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
	_, err = svc.Refresh(context.Background(), second.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
}

func TestAuthService_CurrentUser(t *testing.T) {
	users := newMemUserStore()
	svc := newTestAuthService(users, newMemTokenStore())

	_, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)
	stored, err := users.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)

	profile, err := svc.CurrentUser(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, profile.ID)
	assert.Equal(t, "alice@example.com", profile.Email)
	assert.Equal(t, "Alice", profile.FirstName)
	assert.Equal(t, "Smith", profile.LastName)
	assert.Equal(t, model.RoleUser, profile.Role)

	_, err = svc.CurrentUser(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestAuthService_ConcurrentRefresh_SingleWinner(t *testing.T) {
	users := newMemUserStore()
	tokens := newMemTokenStore()
	svc := newTestAuthService(users, tokens)

	login, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)

	const attempts = 8
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(context.Background(), login.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, failures int
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
			failures++
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, failures)
}

func TestSweeper_PurgesExpired(t *testing.T) {
	tokens := newMemTokenStore()
	userID := uuid.New()

	require.NoError(t, tokens.Create(context.Background(), &model.RefreshToken{
		Token:     "live",
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, tokens.Create(context.Background(), &model.RefreshToken{
		Token:     "dead",
		UserID:    userID,
		ExpiresAt: time.Now().Add(-time.Hour),
	}))

	count, err := tokens.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 1, tokens.count())
}
