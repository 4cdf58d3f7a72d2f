package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/dmitrijs2005/educhain/internal/common"
	"github.com/dmitrijs2005/educhain/internal/logging"
	"github.com/dmitrijs2005/educhain/internal/server/auth"
	"github.com/dmitrijs2005/educhain/internal/server/models"
	"github.com/dmitrijs2005/educhain/internal/server/repositories/repomanager"
)

// CertService backs the public certificate viewer.
type CertService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	secret      []byte
	log         logging.Logger
}

func NewCertService(db *sql.DB, m repomanager.RepositoryManager, secret []byte, log logging.Logger) *CertService {
	return &CertService{db: db, repomanager: m, secret: secret, log: log.With("module", "certs")}
}

// ViewByToken resolves a verification token issued at mint time. The token
// must name a minted certificate whose digest still matches.
func (s *CertService) ViewByToken(ctx context.Context, token string) (*models.CertView, error) {
	claims, err := auth.ParseCertToken(strings.TrimSpace(token), s.secret)
	if err != nil {
		return nil, err
	}

	v, err := s.repomanager.Certs(s.db).GetView(ctx, claims.CertID)
	if err != nil {
		return nil, s.mapErr(ctx, err)
	}
	if v.CertHash != claims.Digest {
		return nil, common.ErrInvalidToken
	}
	return v, nil
}

// ViewByDigest looks a minted certificate up by its transaction digest.
func (s *CertService) ViewByDigest(ctx context.Context, digest string) (*models.CertView, error) {
	digest = strings.TrimSpace(digest)
	if digest == "" {
		return nil, common.ErrorNotFound
	}
	v, err := s.repomanager.Certs(s.db).GetViewByHash(ctx, digest)
	if err != nil {
		return nil, s.mapErr(ctx, err)
	}
	return v, nil
}

func (s *CertService) mapErr(ctx context.Context, err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrorNotFound
	}
	s.log.Error(ctx, "certificate lookup failed", "error", err)
	return common.ErrorInternal
}
