package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/educhain/internal/logging"
	"github.com/dmitrijs2005/educhain/internal/server/metrics"
	"github.com/dmitrijs2005/educhain/internal/server/models"
	"github.com/dmitrijs2005/educhain/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/educhain/internal/server/sui"
)

// reconcileBatch bounds how many submitted certificates one pass inspects.
const reconcileBatch = 100

// Reconciler resolves certificates left in submitted, e.g. when the server
// stopped between submission and confirmation.
type Reconciler struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	chain       Chain
	interval    time.Duration
	grace       time.Duration
	metrics     *metrics.Metrics
	log         logging.Logger
	now         func() time.Time
}

func NewReconciler(db *sql.DB, m repomanager.RepositoryManager, chain Chain, interval, grace time.Duration,
	met *metrics.Metrics, log logging.Logger) *Reconciler {
	return &Reconciler{
		db:          db,
		repomanager: m,
		chain:       chain,
		interval:    interval,
		grace:       grace,
		metrics:     met,
		log:         log.With("module", "reconciler"),
		now:         time.Now,
	}
}

// Run reconciles once immediately and then every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Info(ctx, "reconciler started", "interval", r.interval.String(), "grace", r.grace.String())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.log.Error(ctx, "reconcile pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.log.Info(context.Background(), "reconciler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce inspects submitted certificates and returns how many changed state.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	repo := r.repomanager.Certs(r.db)

	pending, err := repo.ListSubmitted(ctx, reconcileBatch)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, c := range pending {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		log := r.log.With("cert_id", c.ID)

		if c.TxDigest == nil || *c.TxDigest == "" {
			if err := repo.MarkFailed(ctx, c.ID, "submitted without digest"); err != nil {
				log.Error(ctx, "mark failed", "error", err)
				continue
			}
			r.count("failed")
			resolved++
			continue
		}
		digest := *c.TxDigest

		tb, err := r.chain.GetTransactionBlock(ctx, digest)
		if errors.Is(err, sui.ErrTransactionNotFound) && r.now().Sub(c.UpdatedAt) >= r.grace {
			spent, gasErr := r.gasSpent(ctx, c)
			if gasErr != nil {
				log.Warn(ctx, "gas coin lookup failed", "digest", digest, "error", gasErr)
				continue
			}
			if !spent {
				log.Debug(ctx, "transaction not seen but still executable", "digest", digest)
				continue
			}
			// The gas coin moved on. Either this transaction moved it or it can
			// never execute; look once more to tell which.
			tb, err = r.chain.GetTransactionBlock(ctx, digest)
		}

		switch {
		case errors.Is(err, sui.ErrTransactionNotFound):
			if r.now().Sub(c.UpdatedAt) < r.grace {
				continue
			}
			if err := repo.MarkFailed(ctx, c.ID, "transaction not found on ledger"); err != nil {
				log.Error(ctx, "mark failed", "error", err)
				continue
			}
			log.Warn(ctx, "submitted transaction never landed", "digest", digest)
			r.count("expired")
			resolved++
		case err != nil:
			log.Warn(ctx, "transaction lookup failed", "digest", digest, "error", err)
		case tb.Effects == nil:
			// not executed yet
		case tb.Succeeded():
			if err := repo.MarkMinted(ctx, c.ID, digest, r.now()); err != nil {
				log.Error(ctx, "record minted certificate failed", "error", err)
				continue
			}
			log.Info(ctx, "certificate minted", "digest", digest)
			r.count("minted")
			resolved++
		default:
			if err := repo.MarkFailed(ctx, c.ID, tb.Failure()); err != nil {
				log.Error(ctx, "mark failed", "error", err)
				continue
			}
			log.Warn(ctx, "transaction failed on ledger", "digest", digest, "reason", tb.Failure())
			r.count("failed")
			resolved++
		}
	}
	return resolved, nil
}

// gasSpent reports whether the gas coin recorded for c is no longer at the
// version the transaction spends, which means the transaction cannot execute
// anymore unless it already has. Rows without a recorded coin count as spent.
func (r *Reconciler) gasSpent(ctx context.Context, c *models.Cert) (bool, error) {
	if c.GasObjectID == nil || c.GasVersion == nil {
		return true, nil
	}
	obj, err := r.chain.GetObject(ctx, *c.GasObjectID)
	if errors.Is(err, sui.ErrObjectNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return string(obj.Version) != *c.GasVersion, nil
}

func (r *Reconciler) count(outcome string) {
	r.metrics.Reconciled.WithLabelValues(outcome).Inc()
}
