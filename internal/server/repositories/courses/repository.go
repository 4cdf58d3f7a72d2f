package courses

import (
	"context"

	"github.com/dmitrijs2005/educhain/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, course *models.Course) (*models.Course, error)
	ExistsByName(ctx context.Context, issuerID int64, name string) (bool, error)
	ListByIssuer(ctx context.Context, issuerID int64) ([]*models.Course, error)
	GetForIssuer(ctx context.Context, courseID, issuerID int64) (*models.Course, error)
	ListForStudent(ctx context.Context, email string) ([]*models.StudentCourse, error)
	GetForStudent(ctx context.Context, courseID int64, email string) (*models.StudentCourse, error)
}
