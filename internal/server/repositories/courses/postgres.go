// Package courses provides the PostgreSQL-backed course repository.
// Student lookups go through the certs table, which is the enrollment record.
package courses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/educhain/internal/common"
	"github.com/dmitrijs2005/educhain/internal/dbx"
	"github.com/dmitrijs2005/educhain/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

// Create inserts course. A second course with the same name for the same
// issuer yields common.ErrorAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, course *models.Course) (*models.Course, error) {
	emails := course.StudentEmails
	if emails == nil {
		emails = []string{}
	}
	raw, err := json.Marshal(emails)
	if err != nil {
		return nil, fmt.Errorf("encode student emails: %w", err)
	}

	query := `
		INSERT INTO courses (name, description, image, student_emails, issuer_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		course.Name, course.Description, course.Image, raw, course.IssuerID,
	).Scan(&course.ID, &course.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return course, nil
}

func (r *PostgresRepository) ExistsByName(ctx context.Context, issuerID int64, name string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM courses WHERE issuer_id = $1 AND name = $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, issuerID, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

const courseColumns = `c.id, c.name, c.description, c.image, c.student_emails, c.issuer_id, c.created_at`

func scanCourse(s scanner, c *models.Course, extra ...any) error {
	var raw []byte
	dest := append([]any{&c.ID, &c.Name, &c.Description, &c.Image, &raw, &c.IssuerID, &c.CreatedAt}, extra...)
	if err := s.Scan(dest...); err != nil {
		return err
	}
	c.StudentEmails = nil
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c.StudentEmails); err != nil {
			return fmt.Errorf("decode student emails: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) ListByIssuer(ctx context.Context, issuerID int64) ([]*models.Course, error) {
	query := `
		SELECT ` + courseColumns + `
		FROM courses c
		WHERE c.issuer_id = $1
		ORDER BY c.created_at DESC, c.id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, issuerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Course
	for rows.Next() {
		c := &models.Course{}
		if err := scanCourse(rows, c); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// GetForIssuer returns common.ErrorNotFound both for unknown ids and for
// courses owned by another issuer.
func (r *PostgresRepository) GetForIssuer(ctx context.Context, courseID, issuerID int64) (*models.Course, error) {
	query := `
		SELECT ` + courseColumns + `
		FROM courses c
		WHERE c.id = $1 AND c.issuer_id = $2
	`
	c := &models.Course{}
	if err := scanCourse(r.db.QueryRowContext(ctx, query, courseID, issuerID), c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

const studentCourseQuery = `
		SELECT ` + courseColumns + `,
		       COALESCE(u.institution_name, u.full_name), ct.id, ct.status, ct.cert_hash
		FROM certs ct
		JOIN courses c ON c.id = ct.course_id
		JOIN users u ON u.id = c.issuer_id
		WHERE ct.email = $1`

func scanStudentCourse(s scanner) (*models.StudentCourse, error) {
	sc := &models.StudentCourse{}
	if err := scanCourse(s, &sc.Course, &sc.IssuerName, &sc.CertID, &sc.CertStatus, &sc.CertHash); err != nil {
		return nil, err
	}
	return sc, nil
}

func (r *PostgresRepository) ListForStudent(ctx context.Context, email string) ([]*models.StudentCourse, error) {
	query := studentCourseQuery + `
		ORDER BY c.created_at DESC, c.id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.StudentCourse
	for rows.Next() {
		sc, err := scanStudentCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) GetForStudent(ctx context.Context, courseID int64, email string) (*models.StudentCourse, error) {
	query := studentCourseQuery + ` AND c.id = $2
	`
	sc, err := scanStudentCourse(r.db.QueryRowContext(ctx, query, email, courseID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sc, nil
}
