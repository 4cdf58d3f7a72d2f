package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/educhain/internal/dbx"
	"github.com/dmitrijs2005/educhain/internal/server/repositories/certs"
	"github.com/dmitrijs2005/educhain/internal/server/repositories/courses"
	"github.com/dmitrijs2005/educhain/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/educhain/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Courses(db dbx.DBTX) courses.Repository
	Certs(db dbx.DBTX) certs.Repository
}
