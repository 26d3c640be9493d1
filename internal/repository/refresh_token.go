package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/launchkit/identity/internal/model"
	ctxutil "github.com/launchkit/identity/pkg/context"
	"github.com/launchkit/identity/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RefreshTokenRepository struct {
	db *gorm.DB
}

func NewRefreshTokenRepository(db *gorm.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create persists a new refresh token row
func (r *RefreshTokenRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	ctx = ctxutil.WithOperation(ctx, "repository", "CreateRefreshToken")

	start := time.Now()
	result := r.db.WithContext(ctx).Create(token)
	duration := time.Since(start)

	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to create refresh token").
			String("user_id", token.UserID.String()).
			Duration(duration).
			Err(result.Error).
			Log()
		return result.Error
	}

	logger.DebugWithContext(ctx, "Refresh token created").
		String("user_id", token.UserID.String()).
		Duration(duration).
		Log()

	return nil
}

// Consume atomically deletes the token row matching value and returns it.
// The single DELETE ... RETURNING statement is what makes two concurrent
// refreshes of the same value resolve to exactly one winner: the loser
// sees zero rows and gets gorm.ErrRecordNotFound. Expired rows are removed
// by the same delete; the caller checks ExpiresAt on the returned row.
func (r *RefreshTokenRepository) Consume(ctx context.Context, value string) (*model.RefreshToken, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "ConsumeRefreshToken")

	if err := ctx.Err(); err != nil {
		logger.WarnWithContext(ctx, "Context cancelled before query").
			Err(err).
			Log()
		return nil, err
	}

	start := time.Now()
	var token model.RefreshToken

	result := r.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("token = ?", value).
		Delete(&token)
	duration := time.Since(start)

	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to consume refresh token").
			Duration(duration).
			Err(result.Error).
			Log()
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		logger.DebugWithContext(ctx, "No refresh token found to consume").
			Duration(duration).
			Log()
		return nil, gorm.ErrRecordNotFound
	}

	logger.DebugWithContext(ctx, "Refresh token consumed").
		String("user_id", token.UserID.String()).
		Duration(duration).
		Log()

	return &token, nil
}

// DeleteByUser removes every refresh token owned by the user
func (r *RefreshTokenRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	ctx = ctxutil.WithOperation(ctx, "repository", "DeleteRefreshTokensByUser")

	start := time.Now()
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.RefreshToken{})
	duration := time.Since(start)

	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to delete refresh tokens for user").
			String("user_id", userID.String()).
			Duration(duration).
			Err(result.Error).
			Log()
		return result.Error
	}

	logger.InfoWithContext(ctx, "Refresh tokens revoked for user").
		String("user_id", userID.String()).
		Int64("revoked_count", result.RowsAffected).
		Duration(duration).
		Log()

	return nil
}

// DeleteExpired removes refresh tokens past their expiry (batch operation).
// Housekeeping only: Consume already rejects expired rows on read.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "DeleteExpiredRefreshTokens")

	start := time.Now()
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&model.RefreshToken{})
	duration := time.Since(start)

	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to cleanup expired refresh tokens").
			Duration(duration).
			Err(result.Error).
			Log()
		return 0, result.Error
	}

	if result.RowsAffected > 0 {
		logger.InfoWithContext(ctx, "Expired refresh tokens cleaned up").
			Int64("cleaned_count", result.RowsAffected).
			Duration(duration).
			Log()
	}

	return result.RowsAffected, nil
}
