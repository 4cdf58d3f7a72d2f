package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/dmitrijs2005/educhain/internal/common"
	"github.com/dmitrijs2005/educhain/internal/dbx"
	"github.com/dmitrijs2005/educhain/internal/logging"
	"github.com/dmitrijs2005/educhain/internal/server/models"
	"github.com/dmitrijs2005/educhain/internal/server/repositories/repomanager"
)

// ErrDuplicateCourse is returned when the issuer already has a course with
// the requested name.
var ErrDuplicateCourse = &common.ValidationError{Field: "course_name", Message: "A course with this name already exists"}

type CreateCourseInput struct {
	IssuerID      int64
	Name          string
	Description   string
	Image         string
	StudentEmails string
}

// IssuerCourse is a course with its roster.
type IssuerCourse struct {
	Course *models.Course
	Certs  []*models.Cert
}

type CourseService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewCourseService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *CourseService {
	return &CourseService{db: db, repomanager: m, log: log.With("module", "courses")}
}

// ParseStudentEmails splits a comma separated list into normalized addresses,
// dropping empty entries and duplicates. Order of first appearance is kept.
func ParseStudentEmails(raw string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		e := common.NormalizeEmail(part)
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Create stores a course and one certificate per enrolled student in a
// single transaction. Nothing is written when the name is taken.
func (s *CourseService) Create(ctx context.Context, in CreateCourseInput) (*models.Course, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, common.NewValidationError("course_name", "Course name is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, common.NewValidationError("course_description", "Course description is required")
	}

	course := &models.Course{
		Name:          name,
		Description:   in.Description,
		Image:         in.Image,
		StudentEmails: ParseStudentEmails(in.StudentEmails),
		IssuerID:      in.IssuerID,
	}

	created, err := dbx.InTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) (*models.Course, error) {
		courses := s.repomanager.Courses(tx)

		exists, err := courses.ExistsByName(ctx, in.IssuerID, name)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrDuplicateCourse
		}

		c, err := courses.Create(ctx, course)
		if err != nil {
			return nil, err
		}
		if err := s.repomanager.Certs(tx).CreateForCourse(ctx, c.ID, c.StudentEmails); err != nil {
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateCourse) || errors.Is(err, common.ErrorAlreadyExists) {
			return nil, ErrDuplicateCourse
		}
		s.log.Error(ctx, "course insert failed", "issuer_id", in.IssuerID, "error", err)
		return nil, common.ErrorInternal
	}

	s.log.Info(ctx, "course created", "course_id", created.ID, "issuer_id", created.IssuerID, "students", len(created.StudentEmails))
	return created, nil
}

func (s *CourseService) ListForIssuer(ctx context.Context, issuerID int64) ([]*models.Course, error) {
	list, err := s.repomanager.Courses(s.db).ListByIssuer(ctx, issuerID)
	if err != nil {
		s.log.Error(ctx, "list issuer courses failed", "error", err)
		return nil, common.ErrorInternal
	}
	return list, nil
}

// GetForIssuer returns common.ErrorNotFound for courses the issuer does not own.
func (s *CourseService) GetForIssuer(ctx context.Context, courseID, issuerID int64) (*IssuerCourse, error) {
	c, err := s.repomanager.Courses(s.db).GetForIssuer(ctx, courseID, issuerID)
	if err != nil {
		return nil, s.mapLookupErr(ctx, err)
	}
	certs, err := s.repomanager.Certs(s.db).ListByCourse(ctx, c.ID)
	if err != nil {
		return nil, s.mapLookupErr(ctx, err)
	}
	return &IssuerCourse{Course: c, Certs: certs}, nil
}

func (s *CourseService) ListForStudent(ctx context.Context, email string) ([]*models.StudentCourse, error) {
	list, err := s.repomanager.Courses(s.db).ListForStudent(ctx, common.NormalizeEmail(email))
	if err != nil {
		s.log.Error(ctx, "list student courses failed", "error", err)
		return nil, common.ErrorInternal
	}
	return list, nil
}

func (s *CourseService) GetForStudent(ctx context.Context, courseID int64, email string) (*models.StudentCourse, error) {
	sc, err := s.repomanager.Courses(s.db).GetForStudent(ctx, courseID, common.NormalizeEmail(email))
	if err != nil {
		return nil, s.mapLookupErr(ctx, err)
	}
	return sc, nil
}

func (s *CourseService) mapLookupErr(ctx context.Context, err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrorNotFound
	}
	s.log.Error(ctx, "course lookup failed", "error", err)
	return common.ErrorInternal
}
