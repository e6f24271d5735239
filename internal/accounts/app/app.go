package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/accounts/internal/accounts/http"
	"github.com/aussiebroadwan/accounts/internal/accounts/mail"
	"github.com/aussiebroadwan/accounts/internal/accounts/service"
	"github.com/aussiebroadwan/accounts/internal/accounts/store"
	"github.com/aussiebroadwan/accounts/internal/accounts/store/drivers/postgres"
	"github.com/aussiebroadwan/accounts/internal/accounts/store/drivers/sqlite"
	"github.com/aussiebroadwan/accounts/pkg/cryptox"
	"github.com/aussiebroadwan/accounts/pkg/jwtx"
	"github.com/aussiebroadwan/accounts/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

// Application holds the accounts service and everything it depends on.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db     store.Store
	hasher *cryptox.PasswordHasher
	codec  *jwtx.Codec
	mailer mail.Mailer
	outbox *mail.AsyncMailer

	authService *service.AuthService
	userService *service.UserService

	server *http.Server
	router *httpapi.Router
}

// NewLogger builds the service logger from cfg.
func NewLogger(cfg Config) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: "accounts",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
}

// New opens the database, applies migrations and wires services and HTTP.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Application, error) {
	app := &Application{cfg: cfg, logger: logger}

	db, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.logger.Info("database migrations applied", "driver", cfg.DatabaseDriver)

	if err := app.initSecurity(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := app.initMailer(); err != nil {
		_ = db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// OpenStore connects to the configured database without migrating it.
func OpenStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case DriverPostgres:
		db, err := postgres.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return db, nil
	case DriverSQLite:
		db, err := sqlite.NewStore(sqlite.DSN(cfg.DatabaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("%w: unknown DATABASE_DRIVER %q", ErrInvalidConfig, cfg.DatabaseDriver)
	}
}

func (app *Application) initSecurity() error {
	pepper, err := cryptox.LoadOrGeneratePepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	app.hasher = cryptox.NewPasswordHasher(cryptox.HasherConfig{Pepper: pepper})

	secret := app.cfg.SecretKey
	if secret == "" {
		secret, err = cryptox.GenerateToken(cryptox.TokenSize512)
		if err != nil {
			return fmt.Errorf("failed to generate secret key: %w", err)
		}
		app.logger.Warn("SECRET_KEY not set, using an ephemeral key; tokens will not survive a restart")
	}

	app.codec, err = jwtx.NewCodec(jwtx.CodecConfig{
		Secret: []byte(secret),
		Issuer: app.cfg.TokenIssuer,
		Leeway: app.cfg.TokenLeeway,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token codec: %w", err)
	}
	return nil
}

func (app *Application) initMailer() error {
	if !app.cfg.SendEmails {
		app.mailer = mail.LogMailer{}
		app.logger.Info("email delivery disabled, messages are logged")
		return nil
	}

	m, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:      app.cfg.SMTP.Host,
		Port:      app.cfg.SMTP.Port,
		User:      app.cfg.SMTP.User,
		Password:  app.cfg.SMTP.Password,
		TLS:       app.cfg.SMTP.TLS,
		FromName:  app.cfg.EmailsFrom.Name,
		FromEmail: app.cfg.EmailsFrom.Email,
		Timeout:   app.cfg.SMTP.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize mailer: %w", err)
	}
	// Delivery runs off the request path so recovery responses take the
	// same time whether or not the address has an account.
	app.outbox = mail.NewAsyncMailer(m, app.cfg.SMTP.Timeout)
	app.mailer = app.outbox
	return nil
}

func (app *Application) initServices() {
	app.authService = service.NewAuthService(app.db.Users(), app.hasher, app.codec, app.mailer, service.AuthConfig{
		AccessTokenTTL: app.cfg.AccessTokenTTL,
		ResetTokenTTL:  app.cfg.ResetTokenTTL,
		ProjectName:    app.cfg.ProjectName,
		ServerHost:     app.cfg.ServerHost,
	})
	app.userService = service.NewUserService(app.db, app.hasher, app.mailer, service.UserConfig{
		OpenSignUp:  app.cfg.OpenSignUp,
		ProjectName: app.cfg.ProjectName,
		ServerHost:  app.cfg.ServerHost,
	})
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.db, app.authService, app.userService, httpapi.RouterConfig{
		BuildVersion: BuildVersion,
		RateLimits:   app.cfg.RateLimits,
		CORSOrigins:  app.cfg.CORSOrigins,
	}, app.logger)
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Handler exposes the routed HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// SeedSuperuser creates the configured first superuser if it is missing.
// It does nothing when FIRST_SUPERUSER_EMAIL is unset.
func (app *Application) SeedSuperuser(ctx context.Context) error {
	seed := app.cfg.FirstSuperuser
	if seed.Email == "" {
		return nil
	}

	u, created, err := app.userService.EnsureSuperuser(ctx, service.SuperuserSeed{
		Email:     seed.Email,
		Password:  seed.Password,
		FirstName: seed.FirstName,
		LastName:  seed.LastName,
	})
	if err != nil {
		return fmt.Errorf("failed to seed superuser: %w", err)
	}
	if created {
		app.logger.Info("first superuser created", "user_id", u.ID)
	}
	return nil
}

// Run serves HTTP until ctx is cancelled, a shutdown signal arrives or the
// server fails.
func (app *Application) Run(ctx context.Context) error {
	if err := app.SeedSuperuser(ctx); err != nil {
		return err
	}

	app.logger.Info("accounts service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.db.Close()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
	case <-ctx.Done():
		app.logger.Info("context cancelled")
	}

	if err := app.Shutdown(); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes the database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down accounts service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.drainMail()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("accounts service stopped")
	return nil
}

// Close releases the database without touching the HTTP server. Used by
// one-shot commands.
func (app *Application) Close() error {
	app.drainMail()
	return app.db.Close()
}

// drainMail waits for queued emails to be handed to the SMTP server.
func (app *Application) drainMail() {
	if app.outbox != nil {
		app.outbox.Wait()
	}
}
