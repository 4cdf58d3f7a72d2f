// Package sessions provides a PostgreSQL-backed repository for login
// sessions. Session ids are token hashes; callers never pass raw tokens here.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/educhain/internal/common"
	"github.com/dmitrijs2005/educhain/internal/dbx"
	"github.com/dmitrijs2005/educhain/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, id string, userID int64, expiresAt time.Time) error {
	query := `
		INSERT INTO sessions (id, user_id, expires_at)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, id, userID, expiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FindIdentity returns the owner of a live session. Sessions that expired
// before now are reported as common.ErrorNotFound.
func (r *PostgresRepository) FindIdentity(ctx context.Context, id string, now time.Time) (*models.Identity, error) {
	query := `
		SELECT u.id, u.email, u.role
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = $1 AND s.expires_at > $2
	`
	ident := &models.Identity{}
	if err := r.db.QueryRowContext(ctx, query, id, now).Scan(&ident.ID, &ident.Email, &ident.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ident, nil
}

// Delete is a no-op for unknown ids.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM sessions
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
