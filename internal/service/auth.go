package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/launchkit/identity/internal/dto"
	apperrors "github.com/launchkit/identity/internal/errors"
	"github.com/launchkit/identity/internal/model"
	ctxutil "github.com/launchkit/identity/pkg/context"
	"github.com/launchkit/identity/pkg/logger"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserStore is the user persistence the auth service depends on
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
}

// RefreshTokenStore persists opaque refresh tokens. Consume must be atomic:
// of two concurrent calls with the same value exactly one may succeed.
type RefreshTokenStore interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	Consume(ctx context.Context, value string) (*model.RefreshToken, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// AuthService orchestrates register, login, refresh and logout. Session
// state is implicit in which tokens the client holds; the service itself
// keeps no per-session state beyond the refresh token rows.
type AuthService struct {
	users      UserStore
	tokens     RefreshTokenStore
	jwtService *JWTService
	refreshTTL time.Duration
	profiles   *ProfileCache
}

func NewAuthService(users UserStore, tokens RefreshTokenStore, jwtService *JWTService, refreshTTL time.Duration, profiles *ProfileCache) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		jwtService: jwtService,
		refreshTTL: refreshTTL,
		profiles:   profiles,
	}
}

// NormalizeEmail lower-cases and trims an email for storage and lookup
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new account and issues the first token pair.
// Uniqueness is ultimately enforced by the storage unique index; the
// duplicate-key error from a concurrent insert maps to the same conflict
// as the pre-check.
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Register")

	email := NormalizeEmail(req.Email)

	logger.InfoWithContext(ctx, "Registering new user").
		String("email", email).
		Log()

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		logger.WarnWithContext(ctx, "Registration rejected: email already registered").
			String("email", email).
			Log()
		return nil, apperrors.ErrEmailExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.ErrorWithContext(ctx, "Failed to check email availability").
			String("email", email).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.ErrorWithContext(ctx, "Failed to hash password").
			String("email", email).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	user := &model.User{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     email,
		Password:  string(hashedPassword),
		Role:      model.RoleUser,
		Enabled:   true,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the race against a concurrent registration
			logger.WarnWithContext(ctx, "Registration rejected: concurrent duplicate").
				String("email", email).
				Log()
			return nil, apperrors.ErrEmailExists
		}
		logger.ErrorWithContext(ctx, "Failed to create user").
			String("email", email).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	response, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	logger.InfoWithContext(ctx, "User registered successfully").
		String("email", email).
		String("user_id", user.ID.String()).
		Log()

	return response, nil
}

// Authenticate verifies an email/password pair. Unknown email and wrong
// password are indistinguishable to the caller; the disabled check runs
// only after the credentials proved valid.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Authenticate")

	email = NormalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.InfoWithContext(ctx, "Authentication failed: user not found").
				String("email", email).
				Log()
			return nil, apperrors.ErrInvalidCredentials
		}
		logger.ErrorWithContext(ctx, "Failed to get user for authentication").
			String("email", email).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		logger.WarnWithContext(ctx, "Authentication failed: incorrect password").
			String("email", email).
			String("user_id", user.ID.String()).
			Log()
		logger.LogAuth(user.ID.String(), "login", false)
		return nil, apperrors.ErrInvalidCredentials
	}

	if !user.Enabled {
		logger.WarnWithContext(ctx, "Authentication failed: account disabled").
			String("email", email).
			String("user_id", user.ID.String()).
			Log()
		logger.LogAuth(user.ID.String(), "login", false)
		return nil, apperrors.ErrAccountDisabled
	}

	return user, nil
}

// Login authenticates and issues a fresh token pair. Prior refresh tokens
// stay alive: concurrent sessions per user are allowed.
func (s *AuthService) Login(ctx context.Context, email, password string) (*dto.AuthResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Login")

	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		logger.WarnWithContext(ctx, "Failed to update last login timestamp").
			String("user_id", user.ID.String()).
			Err(err).
			Log()
		// Continue even if the timestamp update fails
	}

	response, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	logger.InfoWithContext(ctx, "User logged in successfully").
		String("email", user.Email).
		String("user_id", user.ID.String()).
		Log()
	logger.LogAuth(user.ID.String(), "login", true)

	return response, nil
}

// Refresh rotates a refresh token: the presented value is consumed
// (single-use) and a new pair is issued. Unknown, already-used, expired
// and orphaned tokens all fail the same way.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*dto.AuthResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Refresh")

	token, err := s.tokens.Consume(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WarnWithContext(ctx, "Refresh rejected: token unknown or already used").
				Log()
			return nil, apperrors.ErrInvalidRefreshToken
		}
		logger.ErrorWithContext(ctx, "Failed to consume refresh token").
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if token.Expired(time.Now()) {
		// Consume already purged the row
		logger.WarnWithContext(ctx, "Refresh rejected: token expired").
			String("user_id", token.UserID.String()).
			Log()
		return nil, apperrors.ErrInvalidRefreshToken
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WarnWithContext(ctx, "Refresh rejected: owning user no longer exists").
				String("user_id", token.UserID.String()).
				Log()
			return nil, apperrors.ErrInvalidRefreshToken
		}
		logger.ErrorWithContext(ctx, "Failed to load user for refresh").
			String("user_id", token.UserID.String()).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if !user.Enabled {
		logger.WarnWithContext(ctx, "Refresh rejected: account disabled").
			String("user_id", user.ID.String()).
			Log()
		return nil, apperrors.ErrInvalidRefreshToken
	}

	response, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	logger.InfoWithContext(ctx, "Token refreshed successfully").
		String("user_id", user.ID.String()).
		Log()
	logger.LogAuth(user.ID.String(), "refresh", true)

	return response, nil
}

// Logout revokes every refresh token the user owns. The outstanding
// access token stays valid until its natural expiry.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID) error {
	ctx = ctxutil.WithOperation(ctx, "service", "Logout")

	if err := s.tokens.DeleteByUser(ctx, userID); err != nil {
		logger.ErrorWithContext(ctx, "Failed to revoke refresh tokens on logout").
			String("user_id", userID.String()).
			Err(err).
			Log()
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	s.profiles.Invalidate(ctx, userID)

	logger.InfoWithContext(ctx, "User logged out successfully").
		String("user_id", userID.String()).
		Log()
	logger.LogAuth(userID.String(), "logout", true)

	return nil
}

// CurrentUser resolves an authenticated user id into a profile payload
func (s *AuthService) CurrentUser(ctx context.Context, userID uuid.UUID) (*dto.UserResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "CurrentUser")

	if profile, ok := s.profiles.Get(ctx, userID); ok {
		return profile, nil
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.InfoWithContext(ctx, "User not found").
				String("user_id", userID.String()).
				Log()
			return nil, apperrors.ErrUserNotFound
		}
		logger.ErrorWithContext(ctx, "Failed to get user").
			String("user_id", userID.String()).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	profile := &dto.UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
	}

	s.profiles.Set(ctx, userID, profile)

	return profile, nil
}

// issueTokens mints the access token and creates the refresh token row.
// Nothing is returned unless both halves succeeded; a half-issued pair is
// never visible to the caller.
func (s *AuthService) issueTokens(ctx context.Context, user *model.User) (*dto.AuthResponse, error) {
	accessToken, err := s.jwtService.GenerateToken(user)
	if err != nil {
		logger.ErrorWithContext(ctx, "Failed to generate access token").
			String("user_id", user.ID.String()).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	refreshValue, err := s.jwtService.GenerateRefreshToken()
	if err != nil {
		logger.ErrorWithContext(ctx, "Failed to generate refresh token").
			String("user_id", user.ID.String()).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	token := &model.RefreshToken{
		Token:     refreshValue,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(s.refreshTTL),
	}

	if err := s.tokens.Create(ctx, token); err != nil {
		logger.ErrorWithContext(ctx, "Failed to store refresh token").
			String("user_id", user.ID.String()).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	return &dto.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshValue,
		ExpiresIn:    s.jwtService.AccessTTL().Milliseconds(),
	}, nil
}
