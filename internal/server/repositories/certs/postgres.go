// Package certs provides the PostgreSQL-backed certificate repository.
//
// Status transitions are guarded in SQL so that concurrent mint requests for
// the same certificate cannot both proceed:
//
//	new, failed -> pending -> submitted -> minted
//	pending, submitted -> failed
package certs

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

// CreateForCourse inserts one certificate row per email. Run it in the same
// transaction as the course insert.
func (r *PostgresRepository) CreateForCourse(ctx context.Context, courseID int64, emails []string) error {
	query := `
		INSERT INTO certs (course_id, email)
		VALUES ($1, $2)
	`
	for _, email := range emails {
		if _, err := r.db.ExecContext(ctx, query, courseID, email); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) ListByCourse(ctx context.Context, courseID int64) ([]*models.Cert, error) {
	query := `
		SELECT id, course_id, email, status, tx_digest, cert_hash, minted_at, last_error, updated_at,
		       gas_object_id, gas_version
		FROM certs
		WHERE course_id = $1
		ORDER BY id
	`
	return r.queryCerts(ctx, query, courseID)
}

// ListSubmitted returns certificates that have a digest on record but no
// confirmed result, oldest first.
func (r *PostgresRepository) ListSubmitted(ctx context.Context, limit int) ([]*models.Cert, error) {
	query := `
		SELECT id, course_id, email, status, tx_digest, cert_hash, minted_at, last_error, updated_at,
		       gas_object_id, gas_version
		FROM certs
		WHERE status = 'submitted'
		ORDER BY updated_at
		LIMIT $1
	`
	return r.queryCerts(ctx, query, limit)
}

func (r *PostgresRepository) queryCerts(ctx context.Context, query string, args ...any) ([]*models.Cert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Cert
	for rows.Next() {
		c := &models.Cert{}
		if err := rows.Scan(&c.ID, &c.CourseID, &c.Email, &c.Status, &c.TxDigest,
			&c.CertHash, &c.MintedAt, &c.LastError, &c.UpdatedAt,
			&c.GasObjectID, &c.GasVersion); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// ResolveMintContext joins the certificate with its course, issuer and the
// requesting student. The certificate must belong to studentEmail and the
// student must have an account, otherwise common.ErrorNotFound is returned.
func (r *PostgresRepository) ResolveMintContext(ctx context.Context, certID int64, studentEmail string) (*models.MintContext, error) {
	query := `
		SELECT ct.id, ct.status, ct.cert_hash,
		       s.email, s.full_name, s.address,
		       COALESCE(i.institution_name, i.full_name),
		       c.image, c.created_at
		FROM certs ct
		JOIN courses c ON c.id = ct.course_id
		JOIN users i ON i.id = c.issuer_id
		JOIN users s ON s.email = ct.email
		WHERE ct.id = $1 AND ct.email = $2
	`
	m := &models.MintContext{}
	err := r.db.QueryRowContext(ctx, query, certID, studentEmail).Scan(
		&m.CertID, &m.Status, &m.CertHash,
		&m.StudentEmail, &m.StudentName, &m.StudentKey,
		&m.IssuerName,
		&m.CourseImage, &m.CourseCreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

// Claim moves a certificate into pending. It reports false when another
// request holds it or it is already minted.
func (r *PostgresRepository) Claim(ctx context.Context, certID int64) (bool, error) {
	query := `
		UPDATE certs
		SET status = 'pending', last_error = NULL, updated_at = now()
		WHERE id = $1 AND status IN ('new', 'failed') AND cert_hash IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, certID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

// MarkSubmitted stores the digest together with the gas coin version the
// transaction spends, before the transaction is sent.
func (r *PostgresRepository) MarkSubmitted(ctx context.Context, certID int64, digest, gasObjectID, gasVersion string) error {
	query := `
		UPDATE certs
		SET status = 'submitted', tx_digest = $2, gas_object_id = $3, gas_version = $4, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`
	return r.execOne(ctx, query, certID, digest, gasObjectID, gasVersion)
}

// MarkMinted records the confirmed digest. cert_hash is written at most
// once; a second call returns common.ErrAlreadyMinted.
func (r *PostgresRepository) MarkMinted(ctx context.Context, certID int64, digest string, mintedAt time.Time) error {
	query := `
		UPDATE certs
		SET status = 'minted', cert_hash = $2, tx_digest = $2, minted_at = $3, last_error = NULL, updated_at = now()
		WHERE id = $1 AND cert_hash IS NULL
	`
	err := r.execOne(ctx, query, certID, digest, mintedAt)
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrAlreadyMinted
	}
	return err
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, certID int64, reason string) error {
	query := `
		UPDATE certs
		SET status = 'failed', last_error = $2, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'submitted')
	`
	return r.execOne(ctx, query, certID, reason)
}

// execOne runs an update that must touch exactly one row; zero rows means the
// guard did not match and is reported as common.ErrorNotFound.
func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

const viewQuery = `
		SELECT ct.id, ct.cert_hash, ct.minted_at, ct.email,
		       COALESCE(s.full_name, ''), c.name, c.image,
		       COALESCE(i.institution_name, i.full_name)
		FROM certs ct
		JOIN courses c ON c.id = ct.course_id
		JOIN users i ON i.id = c.issuer_id
		LEFT JOIN users s ON s.email = ct.email
		WHERE ct.status = 'minted'`

func (r *PostgresRepository) getView(ctx context.Context, query string, arg any) (*models.CertView, error) {
	v := &models.CertView{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&v.CertID, &v.CertHash, &v.MintedAt, &v.StudentEmail,
		&v.StudentName, &v.CourseName, &v.CourseImage, &v.IssuerName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

// GetView returns a minted certificate by id.
func (r *PostgresRepository) GetView(ctx context.Context, certID int64) (*models.CertView, error) {
	return r.getView(ctx, viewQuery+` AND ct.id = $1`, certID)
}

// GetViewByHash returns a minted certificate by its transaction digest.
func (r *PostgresRepository) GetViewByHash(ctx context.Context, hash string) (*models.CertView, error) {
	return r.getView(ctx, viewQuery+` AND ct.cert_hash = $1`, hash)
}
