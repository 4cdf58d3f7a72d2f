package certs

import (
	"context"
	"time"

	"github.com/dmitrijs2005/educhain/internal/server/models"
)

type Repository interface {
	CreateForCourse(ctx context.Context, courseID int64, emails []string) error
	ListByCourse(ctx context.Context, courseID int64) ([]*models.Cert, error)
	ResolveMintContext(ctx context.Context, certID int64, studentEmail string) (*models.MintContext, error)

	Claim(ctx context.Context, certID int64) (bool, error)
	MarkSubmitted(ctx context.Context, certID int64, digest, gasObjectID, gasVersion string) error
	MarkMinted(ctx context.Context, certID int64, digest string, mintedAt time.Time) error
	MarkFailed(ctx context.Context, certID int64, reason string) error
	ListSubmitted(ctx context.Context, limit int) ([]*models.Cert, error)

	GetView(ctx context.Context, certID int64) (*models.CertView, error)
	GetViewByHash(ctx context.Context, hash string) (*models.CertView, error)
}
