package web

import (
	"context"

	"github.com/dmitrijs2005/educhain/internal/server/models"
	"github.com/dmitrijs2005/educhain/internal/server/services"
)

type UserService interface {
	Signup(ctx context.Context, in services.SignupInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	Logout(ctx context.Context, token string) error
	ResolveSession(ctx context.Context, token string) (*models.Identity, error)
}

type CourseService interface {
	Create(ctx context.Context, in services.CreateCourseInput) (*models.Course, error)
	ListForIssuer(ctx context.Context, issuerID int64) ([]*models.Course, error)
	GetForIssuer(ctx context.Context, courseID, issuerID int64) (*services.IssuerCourse, error)
	ListForStudent(ctx context.Context, email string) ([]*models.StudentCourse, error)
	GetForStudent(ctx context.Context, courseID int64, email string) (*models.StudentCourse, error)
}

type MintService interface {
	Mint(ctx context.Context, certID int64, student *models.Identity) (*services.MintResult, error)
}

type CertService interface {
	ViewByToken(ctx context.Context, token string) (*models.CertView, error)
	ViewByDigest(ctx context.Context, digest string) (*models.CertView, error)
}
