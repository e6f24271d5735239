package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/accounts/pkg/httpx"
	"github.com/caarlos0/env/v11"
)

// Database drivers accepted in DATABASE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var ErrInvalidConfig = errors.New("app: invalid config")

type Config struct {
	Env                 string        `env:"ENV"                   envDefault:"dev"`
	LogLevel            string        `env:"LOG_LEVEL"             envDefault:"info"`
	LogFormat           string        `env:"LOG_FORMAT"            envDefault:"json"`
	Port                int           `env:"PORT"                  envDefault:"8080"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`

	ProjectName string `env:"PROJECT_NAME" envDefault:"Accounts"`
	// ServerHost is the public base URL used in email links.
	ServerHost string `env:"SERVER_HOST" envDefault:"http://localhost:8080"`

	// SecretKey signs access and reset tokens. Empty generates a key that
	// lives only as long as the process.
	SecretKey      string        `env:"SECRET_KEY"`
	TokenIssuer    string        `env:"TOKEN_ISSUER"     envDefault:"accounts"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"192h"`
	ResetTokenTTL  time.Duration `env:"RESET_TOKEN_TTL"  envDefault:"3h"`
	PepperFile     string        `env:"PEPPER_FILE"      envDefault:"pepper"`

	// TokenLeeway tolerates clock skew on exp and nbf. Zero rejects an
	// expired token immediately.
	TokenLeeway time.Duration `env:"TOKEN_LEEWAY" envDefault:"0s"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	// DatabaseURL is a file path for sqlite and a connection URL for postgres.
	DatabaseURL string `env:"DATABASE_URL" envDefault:"accounts.db"`

	CORSOrigins []string `env:"BACKEND_CORS_ORIGINS" envSeparator:","`
	OpenSignUp  bool     `env:"USERS_OPEN_SIGN_UP"`

	FirstSuperuser SuperuserConfig `envPrefix:"FIRST_SUPERUSER_"`

	SendEmails bool       `env:"SEND_EMAILS"`
	SMTP       SMTPConfig `envPrefix:"SMTP_"`
	EmailsFrom EmailFrom  `envPrefix:"EMAILS_FROM_"`

	RateLimits httpx.RateLimits `envPrefix:"RATELIMIT_"`
}

type SuperuserConfig struct {
	Email     string `env:"EMAIL"`
	Password  string `env:"PASSWORD"`
	FirstName string `env:"FIRST_NAME"`
	LastName  string `env:"LAST_NAME"`
}

type SMTPConfig struct {
	Host     string        `env:"HOST"`
	Port     int           `env:"PORT"     envDefault:"587"`
	User     string        `env:"USER"`
	Password string        `env:"PASSWORD"`
	TLS      bool          `env:"TLS"      envDefault:"true"`
	Timeout  time.Duration `env:"TIMEOUT"  envDefault:"10s"`
}

type EmailFrom struct {
	Name  string `env:"NAME"`
	Email string `env:"EMAIL"`
}

// LoadConfig reads Config from the process environment.
func LoadConfig() (Config, error) {
	return parseConfig(env.Options{})
}

func parseConfig(opts env.Options) (Config, error) {
	// Seeded so that unset rate limit variables keep the production profiles.
	cfg := Config{RateLimits: httpx.DefaultRateLimits()}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the application cannot start with.
func (c Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: unknown DATABASE_DRIVER %q", ErrInvalidConfig, c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: PORT %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.AccessTokenTTL <= 0 || c.ResetTokenTTL <= 0 {
		return fmt.Errorf("%w: token lifetimes must be positive", ErrInvalidConfig)
	}
	if c.TokenLeeway < 0 {
		return fmt.Errorf("%w: TOKEN_LEEWAY must not be negative", ErrInvalidConfig)
	}
	if c.SendEmails && (c.SMTP.Host == "" || c.EmailsFrom.Email == "") {
		return fmt.Errorf("%w: SEND_EMAILS needs SMTP_HOST and EMAILS_FROM_EMAIL", ErrInvalidConfig)
	}
	if (c.FirstSuperuser.Email == "") != (c.FirstSuperuser.Password == "") {
		return fmt.Errorf("%w: FIRST_SUPERUSER_EMAIL and FIRST_SUPERUSER_PASSWORD go together", ErrInvalidConfig)
	}
	return nil
}
