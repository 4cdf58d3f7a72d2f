package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/educhain/internal/common"
	"github.com/dmitrijs2005/educhain/internal/dbx"
	"github.com/dmitrijs2005/educhain/internal/server/models"
	"github.com/dmitrijs2005/educhain/internal/server/repositories/certs"
	"github.com/dmitrijs2005/educhain/internal/server/repositories/courses"
	"github.com/dmitrijs2005/educhain/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/educhain/internal/server/repositories/users"
	"github.com/dmitrijs2005/educhain/internal/server/sui"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// --- users ---

type fakeUsersRepo struct {
	mu        sync.Mutex
	byEmail   map[string]*models.User
	nextID    int64
	existsErr error
	createErr error
	getErr    error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byEmail: map[string]*models.User{}}
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.byEmail[u.Email]; ok {
		return nil, common.ErrorAlreadyExists
	}
	f.nextID++
	u.ID = f.nextID
	u.CreatedAt = time.Now()
	f.byEmail[u.Email] = u
	return u, nil
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (f *fakeUsersRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.byEmail[email]
	return ok, nil
}

// --- sessions ---

type fakeSession struct {
	userID  int64
	expires time.Time
}

type fakeSessionsRepo struct {
	mu        sync.Mutex
	rows      map[string]fakeSession
	users     *fakeUsersRepo
	createErr error
	findErr   error
}

func (f *fakeSessionsRepo) Create(ctx context.Context, id string, userID int64, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.rows[id] = fakeSession{userID: userID, expires: expiresAt}
	return nil
}

func (f *fakeSessionsRepo) FindIdentity(ctx context.Context, id string, now time.Time) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	s, ok := f.rows[id]
	if !ok || !s.expires.After(now) {
		return nil, common.ErrorNotFound
	}
	for _, u := range f.users.byEmail {
		if u.ID == s.userID {
			return &models.Identity{ID: u.ID, Email: u.Email, Role: u.Role}, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeSessionsRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

// --- courses ---

type fakeCoursesRepo struct {
	mu        sync.Mutex
	rows      []*models.Course
	existsErr error
	createErr error
	students  map[string][]*models.StudentCourse
}

func (f *fakeCoursesRepo) Create(ctx context.Context, c *models.Course) (*models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	c.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, c)
	return c, nil
}

func (f *fakeCoursesRepo) ExistsByName(ctx context.Context, issuerID int64, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	for _, c := range f.rows {
		if c.IssuerID == issuerID && c.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCoursesRepo) ListByIssuer(ctx context.Context, issuerID int64) ([]*models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Course
	for _, c := range f.rows {
		if c.IssuerID == issuerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCoursesRepo) GetForIssuer(ctx context.Context, courseID, issuerID int64) (*models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.rows {
		if c.ID == courseID && c.IssuerID == issuerID {
			return c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeCoursesRepo) ListForStudent(ctx context.Context, email string) ([]*models.StudentCourse, error) {
	return f.students[email], nil
}

func (f *fakeCoursesRepo) GetForStudent(ctx context.Context, courseID int64, email string) (*models.StudentCourse, error) {
	for _, sc := range f.students[email] {
		if sc.ID == courseID {
			return sc, nil
		}
	}
	return nil, common.ErrorNotFound
}

// --- certs ---

// fakeCertsRepo enforces the same status guards as the SQL implementation.
type fakeCertsRepo struct {
	mu       sync.Mutex
	rows     map[int64]*models.Cert
	contexts map[int64]*models.MintContext
	views    map[int64]*models.CertView
	nextID   int64

	createErr    error
	resolveErr   error
	claimErr     error
	submitErr    error
	listErr      error
	minted       int
	createdEmail []string
}

func newFakeCertsRepo() *fakeCertsRepo {
	return &fakeCertsRepo{
		rows:     map[int64]*models.Cert{},
		contexts: map[int64]*models.MintContext{},
		views:    map[int64]*models.CertView{},
	}
}

func (f *fakeCertsRepo) add(c *models.Cert, mc *models.MintContext) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	f.rows[c.ID] = c
	if mc != nil {
		f.contexts[c.ID] = mc
	}
}

func (f *fakeCertsRepo) get(id int64) models.Cert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.rows[id]
}

func (f *fakeCertsRepo) CreateForCourse(ctx context.Context, courseID int64, emails []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, e := range emails {
		f.nextID++
		f.rows[f.nextID] = &models.Cert{ID: f.nextID, CourseID: courseID, Email: e, Status: models.CertNew}
		f.createdEmail = append(f.createdEmail, e)
	}
	return nil
}

func (f *fakeCertsRepo) ListByCourse(ctx context.Context, courseID int64) ([]*models.Cert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Cert
	for _, c := range f.rows {
		if c.CourseID == courseID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCertsRepo) ResolveMintContext(ctx context.Context, certID int64, email string) (*models.MintContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	c, ok := f.rows[certID]
	mc, ok2 := f.contexts[certID]
	if !ok || !ok2 || c.Email != email {
		return nil, common.ErrorNotFound
	}
	out := *mc
	out.CertID = c.ID
	out.Status = c.Status
	out.CertHash = c.CertHash
	return &out, nil
}

func (f *fakeCertsRepo) Claim(ctx context.Context, certID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return false, f.claimErr
	}
	c, ok := f.rows[certID]
	if !ok || c.CertHash != nil || (c.Status != models.CertNew && c.Status != models.CertFailed) {
		return false, nil
	}
	c.Status = models.CertPending
	c.LastError = nil
	c.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeCertsRepo) MarkSubmitted(ctx context.Context, certID int64, digest, gasObjectID, gasVersion string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	c, ok := f.rows[certID]
	if !ok || c.Status != models.CertPending {
		return common.ErrorNotFound
	}
	c.Status = models.CertSubmitted
	c.TxDigest = &digest
	c.GasObjectID = &gasObjectID
	c.GasVersion = &gasVersion
	return nil
}

func (f *fakeCertsRepo) MarkMinted(ctx context.Context, certID int64, digest string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[certID]
	if !ok || c.CertHash != nil {
		return common.ErrAlreadyMinted
	}
	c.Status = models.CertMinted
	c.CertHash = &digest
	c.TxDigest = &digest
	c.MintedAt = &at
	f.minted++
	return nil
}

func (f *fakeCertsRepo) MarkFailed(ctx context.Context, certID int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[certID]
	if !ok || (c.Status != models.CertPending && c.Status != models.CertSubmitted) {
		return common.ErrorNotFound
	}
	c.Status = models.CertFailed
	c.LastError = &reason
	return nil
}

func (f *fakeCertsRepo) ListSubmitted(ctx context.Context, limit int) ([]*models.Cert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.Cert
	for _, c := range f.rows {
		if c.Status == models.CertSubmitted {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeCertsRepo) GetView(ctx context.Context, certID int64) (*models.CertView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.views[certID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return v, nil
}

func (f *fakeCertsRepo) GetViewByHash(ctx context.Context, hash string) (*models.CertView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.views {
		if v.CertHash == hash {
			return v, nil
		}
	}
	return nil, common.ErrorNotFound
}

// --- manager ---

type fakeRepoManager struct {
	u  *fakeUsersRepo
	s  *fakeSessionsRepo
	co *fakeCoursesRepo
	ce *fakeCertsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	u := newFakeUsersRepo()
	return &fakeRepoManager{
		u:  u,
		s:  &fakeSessionsRepo{rows: map[string]fakeSession{}, users: u},
		co: &fakeCoursesRepo{students: map[string][]*models.StudentCourse{}},
		ce: newFakeCertsRepo(),
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository             { return m.u }
func (m *fakeRepoManager) Sessions(dbx.DBTX) sessions.Repository       { return m.s }
func (m *fakeRepoManager) Courses(dbx.DBTX) courses.Repository         { return m.co }
func (m *fakeRepoManager) Certs(dbx.DBTX) certs.Repository             { return m.ce }

// --- chain ---

type fakeChain struct {
	mu sync.Mutex

	// coinsAfter is the number of empty GetCoins answers before a coin shows up;
	// negative means never.
	coinsAfter int
	coinsErr   error
	coinCalls  int

	txBytes   []byte
	builtGas  []sui.ObjectRef
	moveErr   error
	moveCalls []sui.MoveCall

	execResult *sui.TransactionBlock
	execErr    error
	execCalls  int
	signatures []string

	// getResults are returned in order; the last one repeats.
	getResults []getResult
	getCalls   int

	// objects maps object ids to their current version; absent ids are gone.
	objects     map[string]string
	objectErr   error
	objectCalls int
}

type getResult struct {
	tb  *sui.TransactionBlock
	err error
}

func success(digest string) *sui.TransactionBlock {
	return &sui.TransactionBlock{Digest: digest, Effects: &sui.TransactionEffects{Status: sui.ExecutionStatus{Status: "success"}}}
}

func failure(digest, reason string) *sui.TransactionBlock {
	return &sui.TransactionBlock{Digest: digest, Effects: &sui.TransactionEffects{Status: sui.ExecutionStatus{Status: "failure", Error: reason}}}
}

var notFound = getResult{err: sui.ErrTransactionNotFound}

func (f *fakeChain) GetCoins(ctx context.Context, owner, coinType string) ([]sui.Coin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coinCalls++
	if f.coinsErr != nil {
		return nil, f.coinsErr
	}
	if f.coinsAfter < 0 || f.coinCalls <= f.coinsAfter {
		return nil, nil
	}
	return []sui.Coin{{CoinObjectID: "0xsmall", Version: "3", Balance: "10"}, {CoinObjectID: "0xgas", Version: "7", Balance: "900000000"}}, nil
}

func (f *fakeChain) MoveCall(ctx context.Context, mc sui.MoveCall) (*sui.TransactionBytes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moveCalls = append(f.moveCalls, mc)
	if f.moveErr != nil {
		return nil, f.moveErr
	}
	return &sui.TransactionBytes{Bytes: f.txBytes, Gas: f.builtGas}, nil
}

func (f *fakeChain) ExecuteTransactionBlock(ctx context.Context, txBytes []byte, sigs []string) (*sui.TransactionBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execCalls++
	f.signatures = append(f.signatures, sigs...)
	if f.execErr != nil {
		return nil, f.execErr
	}
	if f.execResult != nil {
		return f.execResult, nil
	}
	return &sui.TransactionBlock{Digest: sui.TransactionDigest(txBytes)}, nil
}

func (f *fakeChain) GetTransactionBlock(ctx context.Context, digest string) (*sui.TransactionBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if len(f.getResults) == 0 {
		return success(digest), nil
	}
	i := f.getCalls - 1
	if i >= len(f.getResults) {
		i = len(f.getResults) - 1
	}
	r := f.getResults[i]
	return r.tb, r.err
}

func (f *fakeChain) GetObject(ctx context.Context, id string) (*sui.ObjectRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objectCalls++
	if f.objectErr != nil {
		return nil, f.objectErr
	}
	v, ok := f.objects[id]
	if !ok {
		return nil, sui.ErrObjectNotFound
	}
	return &sui.ObjectRef{ObjectID: id, Version: sui.SequenceNumber(v)}, nil
}

func (f *fakeChain) moveCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.moveCalls)
}

func isOneOf(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func ptr[T any](v T) *T { return &v }
