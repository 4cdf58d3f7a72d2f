// Package services contains server-side business logic. UserService covers
// signup, login, logout and resolving a session cookie to an identity.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/educhain/internal/common"
	"github.com/dmitrijs2005/educhain/internal/logging"
	"github.com/dmitrijs2005/educhain/internal/server/auth"
	"github.com/dmitrijs2005/educhain/internal/server/config"
	"github.com/dmitrijs2005/educhain/internal/server/models"
	"github.com/dmitrijs2005/educhain/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/educhain/internal/server/sui"
)

// generateKeypair is a seam for tests.
var generateKeypair = sui.GenerateKeypair

type SignupInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	IsIssuer        bool
	InstitutionName string
	FullName        string
}

// LoginResult carries the raw session token; only its hash is stored.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *auth.PasswordHasher
	sessionTTL  time.Duration
	log         logging.Logger
	now         func() time.Time
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		hasher:      auth.NewPasswordHasher(cfg.BcryptCost),
		sessionTTL:  cfg.SessionTTL,
		log:         log.With("module", "users"),
		now:         time.Now,
	}
}

// Signup creates an issuer or student account together with its generated
// key material.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	email := common.NormalizeEmail(in.Email)
	if email == "" {
		return nil, common.NewValidationError("email", "Email is required")
	}
	if in.Password != in.ConfirmPassword {
		return nil, common.NewValidationError("confirm_password", "Passwords do not match")
	}

	repo := s.repomanager.Users(s.db)

	exists, err := repo.ExistsByEmail(ctx, email)
	if err != nil {
		s.log.Error(ctx, "user lookup failed", "error", err)
		return nil, common.ErrorInternal
	}
	if exists {
		return nil, common.ErrorAlreadyExists
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.log.Error(ctx, "password hashing failed", "error", err)
		return nil, common.ErrorInternal
	}

	kp, err := generateKeypair()
	if err != nil {
		s.log.Error(ctx, "keypair generation failed", "error", err)
		return nil, common.ErrorInternal
	}

	role := common.RoleStudent
	if in.IsIssuer {
		role = common.RoleIssuer
	}

	fullName := strings.TrimSpace(in.FullName)
	var institution *string
	if inst := strings.TrimSpace(in.InstitutionName); inst != "" {
		institution = &inst
		if fullName == "" {
			fullName = inst
		}
	}

	user := &models.User{
		Email:           email,
		PasswordHash:    hash,
		FullName:        fullName,
		Role:            role,
		Address:         kp.EncodeSecretKey(),
		InstitutionName: institution,
	}

	u, err := repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		s.log.Error(ctx, "user insert failed", "error", err)
		return nil, common.ErrorInternal
	}

	s.log.Info(ctx, "user registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}

// Login checks credentials and opens a session. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, common.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		s.log.Error(ctx, "user lookup failed", "error", err)
		return nil, common.ErrorInternal
	}

	ok, err := s.hasher.Compare(user.PasswordHash, password)
	if err != nil {
		s.log.Warn(ctx, "stored password hash is unusable", "user_id", user.ID, "error", err)
		return nil, common.ErrorUnauthorized
	}
	if !ok {
		return nil, common.ErrorUnauthorized
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		return nil, common.ErrorInternal
	}
	expires := s.now().Add(s.sessionTTL)

	if err := s.repomanager.Sessions(s.db).Create(ctx, auth.HashSessionToken(token), user.ID, expires); err != nil {
		s.log.Error(ctx, "session insert failed", "error", err)
		return nil, common.ErrorInternal
	}

	return &LoginResult{Token: token, ExpiresAt: expires, User: user}, nil
}

// Logout deletes the session for token, if any.
func (s *UserService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.repomanager.Sessions(s.db).Delete(ctx, auth.HashSessionToken(token)); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// ResolveSession returns the identity behind a live session token.
func (s *UserService) ResolveSession(ctx context.Context, token string) (*models.Identity, error) {
	if token == "" {
		return nil, common.ErrorUnauthorized
	}
	ident, err := s.repomanager.Sessions(s.db).FindIdentity(ctx, auth.HashSessionToken(token), s.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	return ident, nil
}
