// Package web is the HTTP surface of EduChain: server rendered pages for
// issuers and students, the session authenticator and the JSON variants
// of the form endpoints.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/educhain/internal/logging"
	"github.com/dmitrijs2005/educhain/internal/server/auth"
	"github.com/dmitrijs2005/educhain/internal/server/metrics"
	"github.com/dmitrijs2005/educhain/internal/server/uploads"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

const shutdownTimeout = 5 * time.Second

type Options struct {
	Address      string
	StaticDir    string
	CookieSecure bool
	SessionTTL   time.Duration
	CORSOrigins  []string
	// Exclusions are path rules served without a session; nil means
	// DefaultExclusions.
	Exclusions []string
	// MaxUploadBytes caps a course creation body; zero disables the cap.
	MaxUploadBytes int64
}

type Deps struct {
	Users   UserService
	Courses CourseService
	Mints   MintService
	Certs   CertService
	Uploads uploads.Store
	Cookies *auth.CookieCodec
	Metrics *metrics.Metrics
	// Ping backs /healthz when set.
	Ping func(ctx context.Context) error
}

type Server struct {
	opts       Options
	deps       Deps
	logger     logging.Logger
	exclusions Rules
	router     *gin.Engine
}

func NewServer(opts Options, deps Deps, l logging.Logger) (*Server, error) {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	excl := opts.Exclusions
	if excl == nil {
		excl = DefaultExclusions
	}

	s := &Server{
		opts:       opts,
		deps:       deps,
		logger:     l.With("module", "web"),
		exclusions: ParseRules(excl...),
	}

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s.router = s.routes(tmpl)
	return s, nil
}

func (s *Server) routes(tmpl *template.Template) *gin.Engine {
	r := gin.New()
	r.SetHTMLTemplate(tmpl)

	r.Use(s.requestID(), s.recovery(), s.requestLogger(), s.observe())
	if len(s.opts.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.opts.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(s.sessionAuth())

	if s.opts.StaticDir != "" {
		r.Static("/static", s.opts.StaticDir)
	}
	r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	r.GET("/healthz", s.healthz)

	r.GET("/", s.index)
	r.GET("/cert-viewer", s.certViewer)

	a := r.Group("/auth")
	a.GET("/signin", s.signinPage)
	a.GET("/signup", s.signupPage)
	a.POST("/login", s.login)
	a.POST("/signup", s.signup)
	a.POST("/logout", s.logout)

	d := r.Group("/dashboard")

	issuer := d.Group("/issuer", s.requireRole(roleIssuer))
	issuer.GET("", s.issuerDashboard)
	issuer.GET("/courses/new", s.newCoursePage)
	issuer.GET("/courses/:id", s.issuerCourse)

	student := d.Group("/student", s.requireRole(roleStudent))
	student.GET("", s.studentDashboard)
	student.GET("/courses/:id", s.studentCourse)

	d.POST("/courses/new", s.requireRole(roleIssuer), s.createCourse)
	r.POST("/mint-cert", s.requireRole(roleStudent), s.mintCert)

	return r
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping HTTP server...")
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			s.logger.Error(context.Background(), "shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) healthz(c *gin.Context) {
	if s.deps.Ping != nil {
		if err := s.deps.Ping(c.Request.Context()); err != nil {
			s.logger.Warn(c.Request.Context(), "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
