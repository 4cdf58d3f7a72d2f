package web

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/educhain/internal/common"
	"github.com/dmitrijs2005/educhain/internal/logging"
	"github.com/dmitrijs2005/educhain/internal/server/auth"
	"github.com/dmitrijs2005/educhain/internal/server/metrics"
	"github.com/dmitrijs2005/educhain/internal/server/models"
	"github.com/dmitrijs2005/educhain/internal/server/services"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	mu sync.Mutex

	sessions     map[string]*models.Identity
	resolveErr   error
	resolveCalls int

	signupErr   error
	signups     []services.SignupInput
	loginResult *services.LoginResult
	loginErr    error
	loggedOut   []string
}

func (f *fakeUsers) Signup(ctx context.Context, in services.SignupInput) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signups = append(f.signups, in)
	if f.signupErr != nil {
		return nil, f.signupErr
	}
	return &models.User{ID: int64(len(f.signups)), Email: in.Email}, nil
}

func (f *fakeUsers) Login(ctx context.Context, email, password string) (*services.LoginResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.loginResult, nil
}

func (f *fakeUsers) Logout(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = append(f.loggedOut, token)
	return nil
}

func (f *fakeUsers) ResolveSession(ctx context.Context, token string) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveCalls++
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	ident, ok := f.sessions[token]
	if !ok {
		return nil, common.ErrorUnauthorized
	}
	return ident, nil
}

type fakeCourses struct {
	created   []services.CreateCourseInput
	createErr error

	issuerCourses  []*models.Course
	issuerCourse   *services.IssuerCourse
	studentCourses []*models.StudentCourse
	studentCourse  *models.StudentCourse
	lookupErr      error
	panicOnList    bool
}

func (f *fakeCourses) Create(ctx context.Context, in services.CreateCourseInput) (*models.Course, error) {
	f.created = append(f.created, in)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &models.Course{ID: 42, Name: in.Name, IssuerID: in.IssuerID}, nil
}

func (f *fakeCourses) ListForIssuer(ctx context.Context, issuerID int64) ([]*models.Course, error) {
	if f.panicOnList {
		panic("boom")
	}
	return f.issuerCourses, f.lookupErr
}

func (f *fakeCourses) GetForIssuer(ctx context.Context, courseID, issuerID int64) (*services.IssuerCourse, error) {
	if f.issuerCourse == nil || f.issuerCourse.Course.ID != courseID || f.issuerCourse.Course.IssuerID != issuerID {
		return nil, common.ErrorNotFound
	}
	return f.issuerCourse, nil
}

func (f *fakeCourses) ListForStudent(ctx context.Context, email string) ([]*models.StudentCourse, error) {
	return f.studentCourses, f.lookupErr
}

func (f *fakeCourses) GetForStudent(ctx context.Context, courseID int64, email string) (*models.StudentCourse, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if f.studentCourse == nil || f.studentCourse.ID != courseID {
		return nil, common.ErrorNotFound
	}
	return f.studentCourse, nil
}

type fakeMints struct {
	result *services.MintResult
	err    error
	calls  []int64
	caller *models.Identity
}

func (f *fakeMints) Mint(ctx context.Context, certID int64, student *models.Identity) (*services.MintResult, error) {
	f.calls = append(f.calls, certID)
	f.caller = student
	return f.result, f.err
}

type fakeCerts struct {
	byToken  map[string]*models.CertView
	byDigest map[string]*models.CertView
}

func (f *fakeCerts) ViewByToken(ctx context.Context, token string) (*models.CertView, error) {
	v, ok := f.byToken[token]
	if !ok {
		return nil, common.ErrInvalidToken
	}
	return v, nil
}

func (f *fakeCerts) ViewByDigest(ctx context.Context, digest string) (*models.CertView, error) {
	v, ok := f.byDigest[digest]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return v, nil
}

type savedUpload struct {
	name, contentType string
	data              []byte
}

type fakeStore struct {
	saved []savedUpload
	err   error
}

func (f *fakeStore) Save(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.saved = append(f.saved, savedUpload{name: name, contentType: contentType, data: b})
	return "/static/uploads/1_" + name, nil
}

// --- harness ---

var (
	issuerIdent  = &models.Identity{ID: 1, Email: "issuer@x.com", Role: common.RoleIssuer}
	studentIdent = &models.Identity{ID: 2, Email: "student@x.com", Role: common.RoleStudent}
)

const (
	issuerToken  = "issuer-token"
	studentToken = "student-token"
)

type harness struct {
	srv     *Server
	codec   *auth.CookieCodec
	users   *fakeUsers
	courses *fakeCourses
	mints   *fakeMints
	certs   *fakeCerts
	store   *fakeStore
	metrics *metrics.Metrics
	pingErr error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		codec: auth.NewCookieCodec([]byte("0123456789abcdef0123456789abcdef"), nil, time.Hour),
		users: &fakeUsers{sessions: map[string]*models.Identity{
			issuerToken:  issuerIdent,
			studentToken: studentIdent,
		}},
		courses: &fakeCourses{},
		mints:   &fakeMints{},
		certs:   &fakeCerts{},
		store:   &fakeStore{},
		metrics: metrics.New(),
	}
	srv, err := NewServer(Options{Address: "127.0.0.1:0", SessionTTL: time.Hour}, Deps{
		Users:   h.users,
		Courses: h.courses,
		Mints:   h.mints,
		Certs:   h.certs,
		Uploads: h.store,
		Cookies: h.codec,
		Metrics: h.metrics,
		Ping:    func(context.Context) error { return h.pingErr },
	}, logging.Nop{})
	require.NoError(t, err)
	h.srv = srv
	return h
}

func (h *harness) cookie(t *testing.T, token string) *http.Cookie {
	t.Helper()
	v, err := h.codec.Encode(token)
	require.NoError(t, err)
	return &http.Cookie{Name: common.SessionCookieName, Value: v}
}

func (h *harness) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		v, _ := h.codec.Encode(token)
		req.AddCookie(&http.Cookie{Name: common.SessionCookieName, Value: v})
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (h *harness) get(path, token string) *httptest.ResponseRecorder {
	return h.do(httptest.NewRequest(http.MethodGet, path, nil), token)
}

func (h *harness) postForm(path string, form url.Values, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req, token)
}

func (h *harness) postJSON(path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return h.do(req, token)
}
