package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/smsbridge/internal/dbx"
	"github.com/dmitrijs2005/smsbridge/internal/server/repositories/apitokens"
	"github.com/dmitrijs2005/smsbridge/internal/server/repositories/messages"
	"github.com/dmitrijs2005/smsbridge/internal/server/repositories/users"
)

// RepositoryManager vends repository implementations bound to a DBTX
// (either *sql.DB or *sql.Tx) and exposes a schema migration hook.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	APITokens(db dbx.DBTX) apitokens.Repository
	Messages(db dbx.DBTX) messages.Repository
}
