package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/educhain/internal/common"
	"github.com/dmitrijs2005/educhain/internal/logging"
	"github.com/dmitrijs2005/educhain/internal/server/auth"
	"github.com/dmitrijs2005/educhain/internal/server/config"
	"github.com/dmitrijs2005/educhain/internal/server/metrics"
	"github.com/dmitrijs2005/educhain/internal/server/models"
	"github.com/dmitrijs2005/educhain/internal/server/repositories/certs"
	"github.com/dmitrijs2005/educhain/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/educhain/internal/server/sui"
	"github.com/dmitrijs2005/educhain/internal/timex"
	"github.com/sethvargo/go-retry"
)

// Chain is the ledger surface the mint workflow and the reconciler use.
// *sui.Client satisfies it.
type Chain interface {
	GetCoins(ctx context.Context, owner, coinType string) ([]sui.Coin, error)
	MoveCall(ctx context.Context, mc sui.MoveCall) (*sui.TransactionBytes, error)
	ExecuteTransactionBlock(ctx context.Context, txBytes []byte, signatures []string) (*sui.TransactionBlock, error)
	GetTransactionBlock(ctx context.Context, digest string) (*sui.TransactionBlock, error)
	GetObject(ctx context.Context, id string) (*sui.ObjectRef, error)
}

// MintResult describes a mint request that reached the ledger. When Pending
// is set the transaction was submitted but not confirmed in time; the
// reconciler will record it.
type MintResult struct {
	CertID      int64
	Digest      string
	VerifyToken string
	Pending     bool
}

type MintOptions struct {
	PackageID       string
	Module          string
	Function        string
	FactoryObject   string
	GasBudget       uint64
	CredentialTitle string

	FundingPollInterval time.Duration
	FundingPollAttempts uint64
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration

	TokenSecret    []byte
	VerifyTokenTTL time.Duration
}

// MintOptionsFromConfig copies the mint related settings out of cfg.
func MintOptionsFromConfig(cfg *config.Config) MintOptions {
	return MintOptions{
		PackageID:           cfg.SuiPackageID,
		Module:              cfg.SuiModule,
		Function:            cfg.SuiFunction,
		FactoryObject:       cfg.SuiFactoryObject,
		GasBudget:           cfg.SuiGasBudget,
		CredentialTitle:     cfg.CredentialTitle,
		FundingPollInterval: cfg.FundingPollInterval,
		FundingPollAttempts: cfg.FundingPollAttempts,
		ConfirmTimeout:      cfg.ConfirmTimeout,
		ConfirmPollInterval: cfg.ConfirmPollInterval,
		TokenSecret:         []byte(cfg.SecretKey),
		VerifyTokenTTL:      cfg.VerifyTokenTTL,
	}
}

type MintService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	chain       Chain
	signer      *sui.Keypair
	opts        MintOptions
	metrics     *metrics.Metrics
	log         logging.Logger
	now         func() time.Time
}

func NewMintService(db *sql.DB, m repomanager.RepositoryManager, chain Chain, signer *sui.Keypair,
	opts MintOptions, met *metrics.Metrics, log logging.Logger) *MintService {
	return &MintService{
		db:          db,
		repomanager: m,
		chain:       chain,
		signer:      signer,
		opts:        opts,
		metrics:     met,
		log:         log.With("module", "mint"),
		now:         time.Now,
	}
}

var errNoCoins = errors.New("no coins")

// Mint records certificate certID on the ledger on behalf of student.
//
// The certificate moves new|failed -> pending -> submitted -> minted. Any
// failure before submission returns it to failed so the student can retry.
// Once the digest is stored the row stays submitted until the transaction
// is confirmed, here or by the reconciler.
func (s *MintService) Mint(ctx context.Context, certID int64, student *models.Identity) (*MintResult, error) {
	if student == nil || student.Role != common.RoleStudent {
		return nil, common.ErrorForbidden
	}

	mc, err := s.repomanager.Certs(s.db).ResolveMintContext(ctx, certID, common.NormalizeEmail(student.Email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		s.log.Error(ctx, "resolve certificate failed", "cert_id", certID, "error", err)
		return nil, common.ErrorInternal
	}

	if mc.CertHash != nil {
		s.metrics.Mints.WithLabelValues(metrics.MintRejected).Inc()
		return nil, common.ErrAlreadyMinted
	}
	if mc.Status == models.CertPending || mc.Status == models.CertSubmitted {
		s.metrics.Mints.WithLabelValues(metrics.MintRejected).Inc()
		return nil, common.ErrMintInProgress
	}

	repo := s.repomanager.Certs(s.db)
	claimed, err := repo.Claim(ctx, certID)
	if err != nil {
		s.log.Error(ctx, "claim certificate failed", "cert_id", certID, "error", err)
		return nil, common.ErrorInternal
	}
	if !claimed {
		s.metrics.Mints.WithLabelValues(metrics.MintRejected).Inc()
		return nil, common.ErrMintInProgress
	}

	// The claim is held now; a client disconnect must not strand it in pending.
	ctx = context.WithoutCancel(ctx)
	started := s.now()
	log := s.log.With("cert_id", certID)

	tx, err := s.prepare(ctx, mc)
	if err != nil {
		s.fail(ctx, repo, log, certID, err)
		return nil, err
	}
	digest, txBytes := tx.digest, tx.bytes

	if err := repo.MarkSubmitted(ctx, certID, digest, tx.gasID, tx.gasVersion); err != nil {
		s.fail(ctx, repo, log, certID, err)
		return nil, common.ErrorInternal
	}
	log.Info(ctx, "transaction submitted", "digest", digest)

	tb, err := s.chain.ExecuteTransactionBlock(ctx, txBytes, []string{s.signer.SignTransaction(txBytes)})
	if err != nil {
		log.Warn(ctx, "execute failed, waiting for confirmation", "digest", digest, "error", err)
	} else if tb.Effects != nil && !tb.Succeeded() {
		return nil, s.executionFailed(ctx, repo, log, certID, tb)
	}

	tb, err = s.awaitConfirmation(ctx, digest)
	if err != nil {
		log.Warn(ctx, "transaction not confirmed", "digest", digest, "error", err)
		s.metrics.Mints.WithLabelValues(metrics.MintSubmitted).Inc()
		return &MintResult{CertID: certID, Digest: digest, Pending: true}, common.ErrTxNotConfirmed
	}
	if !tb.Succeeded() {
		return nil, s.executionFailed(ctx, repo, log, certID, tb)
	}

	if err := repo.MarkMinted(ctx, certID, digest, s.now()); err != nil && !errors.Is(err, common.ErrAlreadyMinted) {
		log.Error(ctx, "record minted certificate failed", "digest", digest, "error", err)
		return &MintResult{CertID: certID, Digest: digest, Pending: true}, common.ErrorInternal
	}

	s.metrics.Mints.WithLabelValues(metrics.MintMinted).Inc()
	s.metrics.MintDuration.Observe(s.now().Sub(started).Seconds())
	log.Info(ctx, "certificate minted", "digest", digest)

	token, err := auth.GenerateCertToken(certID, digest, s.opts.TokenSecret, s.opts.VerifyTokenTTL)
	if err != nil {
		log.Error(ctx, "verify token signing failed", "error", err)
	}
	return &MintResult{CertID: certID, Digest: digest, VerifyToken: token}, nil
}

type preparedTx struct {
	digest     string
	bytes      []byte
	gasID      string
	gasVersion string
}

// prepare derives the student's address, finds a gas coin for the platform
// signer and has the fullnode build the mint call.
func (s *MintService) prepare(ctx context.Context, mc *models.MintContext) (*preparedTx, error) {
	studentKey, err := sui.ParseSecretKey(mc.StudentKey)
	if err != nil {
		return nil, fmt.Errorf("%w: student key: %v", common.ErrorInternal, err)
	}

	gas, err := s.awaitFunding(ctx)
	if err != nil {
		return nil, err
	}

	// created_at comes from the database clock; never date a credential
	// before its course.
	issued := s.now().UTC()
	if issued.Before(mc.CourseCreatedAt) {
		issued = mc.CourseCreatedAt.UTC()
	}
	args := []any{}
	if s.opts.FactoryObject != "" {
		args = append(args, s.opts.FactoryObject)
	}
	args = append(args,
		mc.StudentEmail,
		studentKey.Address(),
		mc.StudentName,
		mc.IssuerName,
		s.opts.CredentialTitle,
		mc.CourseImage,
		issued.Format(time.DateOnly),
		strconv.FormatInt(timex.AddCalendarYear(issued).UnixMilli(), 10),
	)

	built, err := s.chain.MoveCall(ctx, sui.MoveCall{
		Signer:    s.signer.Address(),
		PackageID: s.opts.PackageID,
		Module:    s.opts.Module,
		Function:  s.opts.Function,
		Arguments: args,
		Gas:       gas.CoinObjectID,
		GasBudget: s.opts.GasBudget,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: build transaction: %v", common.ErrorInternal, err)
	}

	tx := &preparedTx{
		digest:     sui.TransactionDigest(built.Bytes),
		bytes:      built.Bytes,
		gasID:      gas.CoinObjectID,
		gasVersion: gas.Version,
	}
	// The node pins the coin version it saw when building, which may be newer
	// than the listing.
	if len(built.Gas) > 0 {
		tx.gasID, tx.gasVersion = built.Gas[0].ObjectID, string(built.Gas[0].Version)
	}
	return tx, nil
}

// awaitFunding polls for a gas coin owned by the signer at a fixed interval.
func (s *MintService) awaitFunding(ctx context.Context) (sui.Coin, error) {
	attempts := s.opts.FundingPollAttempts
	if attempts == 0 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(attempts-1, retry.NewConstant(s.opts.FundingPollInterval))

	var gas sui.Coin
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		coins, err := s.chain.GetCoins(ctx, s.signer.Address(), sui.SuiCoinType)
		if err != nil {
			return retry.RetryableError(err)
		}
		if len(coins) == 0 {
			return retry.RetryableError(errNoCoins)
		}
		gas = pickGasCoin(coins)
		return nil
	})
	if err != nil {
		if errors.Is(err, errNoCoins) {
			return sui.Coin{}, common.ErrNoFunding
		}
		return sui.Coin{}, fmt.Errorf("%w: coin lookup: %v", common.ErrNoFunding, err)
	}
	return gas, nil
}

// pickGasCoin prefers the coin with the largest balance.
func pickGasCoin(coins []sui.Coin) sui.Coin {
	best, bestBal := coins[0], uint64(0)
	for _, c := range coins {
		bal, err := strconv.ParseUint(c.Balance, 10, 64)
		if err == nil && bal > bestBal {
			best, bestBal = c, bal
		}
	}
	return best
}

// awaitConfirmation polls for the executed transaction until it is visible
// or ConfirmTimeout elapses.
func (s *MintService) awaitConfirmation(ctx context.Context, digest string) (*sui.TransactionBlock, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ConfirmTimeout)
	defer cancel()

	var tb *sui.TransactionBlock
	err := retry.Do(ctx, retry.NewConstant(s.opts.ConfirmPollInterval), func(ctx context.Context) error {
		got, err := s.chain.GetTransactionBlock(ctx, digest)
		if err != nil {
			return retry.RetryableError(err)
		}
		if got.Effects == nil {
			return retry.RetryableError(errors.New("effects not available yet"))
		}
		tb = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tb, nil
}

func (s *MintService) executionFailed(ctx context.Context, repo certs.Repository, log logging.Logger, certID int64, tb *sui.TransactionBlock) error {
	err := fmt.Errorf("%w: %s", common.ErrTxExecutionFail, tb.Failure())
	s.fail(ctx, repo, log, certID, err)
	return err
}

func (s *MintService) fail(ctx context.Context, repo certs.Repository, log logging.Logger, certID int64, cause error) {
	s.metrics.Mints.WithLabelValues(metrics.MintFailed).Inc()
	log.Warn(ctx, "mint failed", "error", cause)
	if err := repo.MarkFailed(ctx, certID, cause.Error()); err != nil {
		log.Error(ctx, "mark certificate failed", "error", err)
	}
}
