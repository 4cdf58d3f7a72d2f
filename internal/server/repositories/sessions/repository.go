package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/educhain/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, id string, userID int64, expiresAt time.Time) error
	FindIdentity(ctx context.Context, id string, now time.Time) (*models.Identity, error)
	Delete(ctx context.Context, id string) error
}
