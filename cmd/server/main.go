package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	accounts "github.com/goliatone/go-accounts"
)

type appConfig struct {
	HTTPAddr     string `env:"HTTP_ADDR" env-default:":8080"`
	DatabaseDSN  string `env:"DATABASE_DSN" env-default:"file:accounts.db?cache=shared&mode=rwc"`
	SigningKey   string `env:"SIGNING_KEY" env-required:"true"`
	AccessTTL    string `env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTTL   string `env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	Issuer       string `env:"TOKEN_ISSUER" env-default:"accounts"`
	Audience     string `env:"TOKEN_AUDIENCE" env-default:"accounts"`
	Domain       string `env:"FRONTEND_DOMAIN" env-default:"http://localhost:8080"`
	TemplatesDir string `env:"TEMPLATES_DIR" env-default:"templates"`
	RedisAddr    string `env:"REDIS_ADDR"`
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" env-default:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	EmailFrom    string `env:"EMAIL_FROM" env-default:"no-reply@localhost"`

	accessTTL  time.Duration
	refreshTTL time.Duration
}

func (c *appConfig) GetSigningKey() string             { return c.SigningKey }
func (c *appConfig) GetAccessTokenTTL() time.Duration  { return c.accessTTL }
func (c *appConfig) GetRefreshTokenTTL() time.Duration { return c.refreshTTL }
func (c *appConfig) GetIssuer() string                 { return c.Issuer }
func (c *appConfig) GetAudience() []string             { return strings.Split(c.Audience, ",") }
func (c *appConfig) GetFrontendDomain() string         { return c.Domain }
func (c *appConfig) GetEmailFrom() string              { return c.EmailFrom }

func loadConfig() (*appConfig, error) {
	cfg := &appConfig{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read configuration")
	}

	var err error
	if cfg.accessTTL, err = time.ParseDuration(cfg.AccessTTL); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid ACCESS_TOKEN_TTL")
	}

	if cfg.refreshTTL, err = time.ParseDuration(cfg.RefreshTTL); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid REFRESH_TOKEN_TTL")
	}

	return cfg, nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Info),
		glog.WithName("accounts"),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)
	logger := lgr.GetLogger("server")

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DatabaseDSN)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open database")
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()

	ctx := context.Background()

	if _, err := db.NewCreateTable().
		Model((*accounts.User)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create users table")
	}

	repo := accounts.NewRepositoryManager(db)
	repo.MustValidate()

	var blacklist accounts.TokenBlacklist
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to connect to redis")
		}
		blacklist = accounts.NewRedisBlacklist(client)
		logger.Info("refresh token blacklist backed by redis", "addr", cfg.RedisAddr)
	} else {
		blacklist = accounts.NewMemoryBlacklist()
		logger.Warn("no REDIS_ADDR configured, using in memory blacklist")
	}

	var mailer accounts.Mailer
	if cfg.SMTPHost != "" {
		mailer, err = accounts.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.EmailFrom)
		if err != nil {
			return err
		}
	} else {
		mailer = accounts.LogMailer{Logger: lgr.GetLogger("mail")}
		logger.Warn("no SMTP_HOST configured, mail goes to the log")
	}

	dispatcher := accounts.NewMailDispatcher(mailer,
		accounts.WithMailDispatcherLogger(lgr.GetLogger("mail")),
	)
	defer dispatcher.Close()

	verifier := accounts.NewVerifier([]byte(cfg.SigningKey),
		accounts.WithVerifierLogger(lgr.GetLogger("verifier")),
	)

	notifier := accounts.NewAccountNotifier(verifier, dispatcher, cfg, cfg.TemplatesDir).
		WithLogger(lgr.GetLogger("notifier"))
	if err := notifier.Load(); err != nil {
		return err
	}

	provider := accounts.NewUserProvider(accounts.TrackerFromUsers(repo.Users())).
		WithLogger(lgr.GetLogger("provider"))

	auther := accounts.NewAuthenticator(provider, cfg).
		WithLogger(lgr.GetLogger("auth")).
		WithTokenBlacklist(blacklist)

	registry := prometheus.NewRegistry()
	metrics := accounts.NewCollector(registry)

	controller := accounts.NewAccountsController(
		accounts.WithControllerLogger(lgr.GetLogger("http")),
		accounts.WithControllerRepo(repo),
		accounts.WithControllerAuther(auther),
		accounts.WithControllerVerifier(verifier),
		accounts.WithControllerNotifier(notifier),
		accounts.WithControllerMetrics(metrics),
	)

	app := fiber.New(fiber.Config{
		AppName:      "accounts",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})

	accounts.RegisterRoutes(app, controller)
	app.Get("/metrics", adaptor.HTTPHandler(accounts.MetricsHandler(registry)))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		errCh <- app.Listen(cfg.HTTPAddr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "server shutdown failed")
	}

	return nil
}
