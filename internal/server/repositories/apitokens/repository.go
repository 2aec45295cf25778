package apitokens

import (
	"context"

	"github.com/dmitrijs2005/smsbridge/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, userID int64, tokenHash string) (int64, error)
	FindUserByTokenHash(ctx context.Context, tokenHash string) (*models.User, error)
	TouchLastUsed(ctx context.Context, tokenHash string) error
	Revoke(ctx context.Context, tokenHash string) error
}
