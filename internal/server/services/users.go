// Package services contains server-side business logic. This file implements
// UserService: account signup, login with transparent password-hash upgrade,
// and issuing/revoking opaque API tokens.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/smsbridge/internal/common"
	"github.com/dmitrijs2005/smsbridge/internal/cryptox"
	"github.com/dmitrijs2005/smsbridge/internal/dbx"
	"github.com/dmitrijs2005/smsbridge/internal/logging"
	"github.com/dmitrijs2005/smsbridge/internal/server/models"
	"github.com/dmitrijs2005/smsbridge/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/smsbridge/internal/shared"
)

// tokenByteLen is the entropy of issued tokens; the raw token is the hex
// encoding, so clients see 64 characters.
const tokenByteLen = 32

// UserService provides account and token operations:
// - Signup: create a user and issue the first token
// - Login: verify credentials, upgrade legacy hashes, issue a token
// - RevokeToken: logically revoke a presented token
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

// NewUserService constructs a UserService bound to the given database handle.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "users"),
	}
}

// Signup creates a user and immediately issues an API token, both inside one
// transaction. A username or email conflict yields common.ErrorAlreadyExists.
func (s *UserService) Signup(ctx context.Context, username, email, password string) (*models.User, string, error) {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return nil, "", common.ErrorInternal
	}

	var user *models.User
	var token string
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		u, err := s.repomanager.Users(tx).Create(ctx, &models.User{
			UserName:     username,
			Email:        email,
			PasswordHash: hash,
		})
		if err != nil {
			return err
		}
		t, err := s.issueToken(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		user, token = u, t
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, "", common.ErrorAlreadyExists
		}
		return nil, "", fmt.Errorf("error creating user: %w", err)
	}

	return user, token, nil
}

// Login verifies the password for a username or email identifier and issues
// a fresh token. When the stored hash uses a weaker encoding than current
// policy it is upgraded best-effort; an upgrade failure never blocks login.
func (s *UserService) Login(ctx context.Context, identifier, password string) (*models.User, string, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, "", common.ErrorUnauthorized
		}
		return nil, "", common.ErrorInternal
	}

	if !cryptox.VerifyPassword(password, user.PasswordHash) {
		return nil, "", common.ErrorUnauthorized
	}

	if cryptox.NeedsRehash(user.PasswordHash) {
		if newHash, hashErr := cryptox.HashPassword(password); hashErr == nil {
			if updErr := repo.UpdatePasswordHash(ctx, user.ID, newHash); updErr != nil {
				s.logger.Warn(ctx, "password hash upgrade failed", "user_id", user.ID, "error", updErr.Error())
			}
		}
	}

	token, err := s.issueToken(ctx, s.db, user.ID)
	if err != nil {
		return nil, "", common.ErrorInternal
	}

	return user, token, nil
}

// RevokeToken logically revokes the presented raw token. An unknown or
// already revoked token yields common.ErrorUnauthorized.
func (s *UserService) RevokeToken(ctx context.Context, rawToken string) error {
	err := s.repomanager.APITokens(s.db).Revoke(ctx, cryptox.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorUnauthorized
		}
		return common.ErrorInternal
	}
	return nil
}

func (s *UserService) issueToken(ctx context.Context, db dbx.DBTX, userID int64) (string, error) {
	token, err := shared.MakeRandHexString(tokenByteLen)
	if err != nil {
		return "", err
	}
	if _, err := s.repomanager.APITokens(db).Create(ctx, userID, cryptox.HashToken(token)); err != nil {
		return "", err
	}
	return token, nil
}
