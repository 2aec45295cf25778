package users

import (
	"context"

	"github.com/dmitrijs2005/smsbridge/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, userID int64, passwordHash string) error
}
