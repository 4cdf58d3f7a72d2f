package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/educhain/internal/logging"
	"github.com/dmitrijs2005/educhain/internal/server/metrics"
	"github.com/dmitrijs2005/educhain/internal/server/models"
	"github.com/dmitrijs2005/educhain/internal/server/sui"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(chain *fakeChain) (*Reconciler, *fakeRepoManager, *metrics.Metrics) {
	rm := newFakeRepoManager()
	met := metrics.New()
	r := NewReconciler(nil, rm, chain, time.Minute, 10*time.Minute, met, logging.Nop{})
	return r, rm, met
}

func submitted(id int64, digest *string, age time.Duration) *models.Cert {
	return &models.Cert{ID: id, Status: models.CertSubmitted, TxDigest: digest, UpdatedAt: time.Now().Add(-age)}
}

func TestReconciler_RecordsConfirmedTransaction(t *testing.T) {
	r, rm, met := newTestReconciler(&fakeChain{})
	rm.ce.add(submitted(1, ptr("D1"), time.Minute), nil)

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c := rm.ce.get(1)
	assert.Equal(t, models.CertMinted, c.Status)
	require.NotNil(t, c.CertHash)
	assert.Equal(t, "D1", *c.CertHash)
	assert.NotNil(t, c.MintedAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(met.Reconciled.WithLabelValues("minted")))
}

func TestReconciler_FailedEffects(t *testing.T) {
	chain := &fakeChain{getResults: []getResult{{tb: failure("D1", "MoveAbort")}}}
	r, rm, _ := newTestReconciler(chain)
	rm.ce.add(submitted(1, ptr("D1"), time.Minute), nil)

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c := rm.ce.get(1)
	assert.Equal(t, models.CertFailed, c.Status)
	require.NotNil(t, c.LastError)
	assert.Contains(t, *c.LastError, "MoveAbort")
	assert.Nil(t, c.CertHash)
}

func TestReconciler_NotFoundRespectsGrace(t *testing.T) {
	chain := &fakeChain{getResults: []getResult{notFound}}
	r, rm, met := newTestReconciler(chain)
	rm.ce.add(submitted(1, ptr("young"), time.Minute), nil)
	rm.ce.add(submitted(2, ptr("old"), time.Hour), nil)

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, models.CertSubmitted, rm.ce.get(1).Status)
	assert.Equal(t, models.CertFailed, rm.ce.get(2).Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(met.Reconciled.WithLabelValues("expired")))
}

func submittedWithGas(id int64, digest string, age time.Duration, version string) *models.Cert {
	c := submitted(id, ptr(digest), age)
	c.GasObjectID = ptr("0xgas")
	c.GasVersion = ptr(version)
	return c
}

func TestReconciler_KeepsRowWhileGasCoinUnspent(t *testing.T) {
	chain := &fakeChain{getResults: []getResult{notFound}, objects: map[string]string{"0xgas": "7"}}
	r, rm, _ := newTestReconciler(chain)
	rm.ce.add(submittedWithGas(1, "D1", time.Hour, "7"), nil)

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, models.CertSubmitted, rm.ce.get(1).Status)
	assert.Equal(t, 1, chain.objectCalls)

	// No retry while the first transaction can still execute.
	ok, err := rm.ce.Claim(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReconciler_FailsOnceGasCoinMovedOn(t *testing.T) {
	for name, objects := range map[string]map[string]string{
		"version advanced": {"0xgas": "8"},
		"coin deleted":     {},
	} {
		t.Run(name, func(t *testing.T) {
			chain := &fakeChain{getResults: []getResult{notFound}, objects: objects}
			r, rm, met := newTestReconciler(chain)
			rm.ce.add(submittedWithGas(1, "D1", time.Hour, "7"), nil)

			n, err := r.RunOnce(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			assert.Equal(t, models.CertFailed, rm.ce.get(1).Status)
			assert.Equal(t, 2, chain.getCalls)
			assert.Equal(t, 1.0, testutil.ToFloat64(met.Reconciled.WithLabelValues("expired")))
		})
	}
}

func TestReconciler_GasMovedByTheTransactionItself(t *testing.T) {
	chain := &fakeChain{
		getResults: []getResult{notFound, {tb: success("D1")}},
		objects:    map[string]string{"0xgas": "8"},
	}
	r, rm, _ := newTestReconciler(chain)
	rm.ce.add(submittedWithGas(1, "D1", time.Hour, "7"), nil)

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	c := rm.ce.get(1)
	assert.Equal(t, models.CertMinted, c.Status)
	require.NotNil(t, c.CertHash)
	assert.Equal(t, "D1", *c.CertHash)
}

func TestReconciler_GasLookupErrorLeavesRow(t *testing.T) {
	chain := &fakeChain{getResults: []getResult{notFound}, objectErr: errBoom{}}
	r, rm, _ := newTestReconciler(chain)
	rm.ce.add(submittedWithGas(1, "D1", time.Hour, "7"), nil)

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, models.CertSubmitted, rm.ce.get(1).Status)
}

func TestReconciler_YoungRowSkipsGasLookup(t *testing.T) {
	chain := &fakeChain{getResults: []getResult{notFound}, objects: map[string]string{"0xgas": "8"}}
	r, rm, _ := newTestReconciler(chain)
	rm.ce.add(submittedWithGas(1, "D1", time.Minute, "7"), nil)

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, chain.objectCalls)
}

func TestReconciler_LeavesUnexecutedAndErroredAlone(t *testing.T) {
	chain := &fakeChain{getResults: []getResult{{tb: nil, err: errBoom{}}}}
	r, rm, _ := newTestReconciler(chain)
	rm.ce.add(submitted(1, ptr("D1"), time.Hour), nil)

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, models.CertSubmitted, rm.ce.get(1).Status)

	chain.getResults = []getResult{{tb: &sui.TransactionBlock{Digest: "D1"}}}
	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, models.CertSubmitted, rm.ce.get(1).Status)
}

func TestReconciler_MissingDigestFails(t *testing.T) {
	chain := &fakeChain{}
	r, rm, _ := newTestReconciler(chain)
	rm.ce.add(submitted(1, nil, 0), nil)

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.CertFailed, rm.ce.get(1).Status)
	assert.Zero(t, chain.getCalls)
}

func TestReconciler_IgnoresOtherStatuses(t *testing.T) {
	chain := &fakeChain{}
	r, rm, _ := newTestReconciler(chain)
	rm.ce.add(&models.Cert{ID: 1, Status: models.CertPending}, nil)
	rm.ce.add(&models.Cert{ID: 2, Status: models.CertNew}, nil)

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, chain.getCalls)
}

func TestReconciler_ListError(t *testing.T) {
	r, rm, _ := newTestReconciler(&fakeChain{})
	rm.ce.listErr = errBoom{}

	_, err := r.RunOnce(context.Background())
	require.Error(t, err)
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	r, rm, _ := newTestReconciler(&fakeChain{})
	rm.ce.add(submitted(1, ptr("D1"), 0), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return rm.ce.get(1).Status == models.CertMinted }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
