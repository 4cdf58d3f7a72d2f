// Package server initializes and runs the EduChain server: it opens the
// database, applies migrations, builds the services and runs the HTTP
// server and the mint reconciler until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/educhain/internal/logging"
	"github.com/dmitrijs2005/educhain/internal/server/auth"
	"github.com/dmitrijs2005/educhain/internal/server/config"
	"github.com/dmitrijs2005/educhain/internal/server/metrics"
	"github.com/dmitrijs2005/educhain/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/educhain/internal/server/services"
	"github.com/dmitrijs2005/educhain/internal/server/sui"
	"github.com/dmitrijs2005/educhain/internal/server/uploads"
	"github.com/dmitrijs2005/educhain/internal/server/web"
	"github.com/gin-gonic/gin"
)

// maxUploadBytes caps a course creation request.
const maxUploadBytes = 20 << 20

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	web        *web.Server
	reconciler *services.Reconciler
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.LogLevel, c.LogFormat)
	ctx := context.Background()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := newUploadStore(ctx, c)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("upload store error: %w", err)
	}

	signer, err := platformSigner(c.SuiSecretKey)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sui signer error: %w", err)
	}
	if c.SuiSecretKey == "" {
		logger.Warn(ctx, "no platform key configured, using an ephemeral one; fund it before minting", "address", signer.Address())
	}

	met := metrics.New()
	chain := sui.NewClient(c.SuiRPCURL, c.SuiRequestTimeout)

	us := services.NewUserService(db, rm, c, logger)
	cs := services.NewCourseService(db, rm, logger)
	ms := services.NewMintService(db, rm, chain, signer, services.MintOptionsFromConfig(c), met, logger)
	vs := services.NewCertService(db, rm, []byte(c.SecretKey), logger)
	rec := services.NewReconciler(db, rm, chain, c.ReconcileInterval, c.ReconcileGrace, met, logger)

	if !strings.EqualFold(c.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	ws, err := web.NewServer(web.Options{
		Address:        c.ListenAddr,
		StaticDir:      c.StaticDir,
		CookieSecure:   c.CookieSecure,
		SessionTTL:     c.SessionTTL,
		CORSOrigins:    c.CORSOrigins,
		MaxUploadBytes: maxUploadBytes,
	}, web.Deps{
		Users:   us,
		Courses: cs,
		Mints:   ms,
		Certs:   vs,
		Uploads: store,
		Cookies: auth.NewCookieCodec([]byte(c.SessionHashKey), []byte(c.SessionBlockKey), c.SessionTTL),
		Metrics: met,
		Ping:    db.PingContext,
	}, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("web init error: %w", err)
	}

	return &App{config: c, logger: logger, db: db, web: ws, reconciler: rec}, nil
}

func newUploadStore(ctx context.Context, c *config.Config) (uploads.Store, error) {
	if c.UploadBackend != config.UploadBackendS3 {
		return uploads.NewLocalStore(c.UploadDir, c.UploadURLPrefix)
	}

	s3cfg := uploads.S3Config{
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		KeyPrefix:    "courses/",
		URLPrefix:    strings.TrimRight(c.S3BaseEndpoint, "/") + "/" + c.S3Bucket,
	}
	client, err := uploads.NewS3Client(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return uploads.NewS3Store(client, s3cfg), nil
}

func platformSigner(secret string) (*sui.Keypair, error) {
	if secret == "" {
		return sui.GenerateKeypair()
	}
	return sui.ParseSecretKey(secret)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startWebServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.web.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server failed", "error", err)
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startWebServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.reconciler.Run(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close failed", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
