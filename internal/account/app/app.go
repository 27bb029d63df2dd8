package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	httpapi "github.com/aussiebroadwan/accounts/internal/account/http"
	"github.com/aussiebroadwan/accounts/internal/account/notify"
	"github.com/aussiebroadwan/accounts/internal/account/service"
	"github.com/aussiebroadwan/accounts/internal/account/store"
	"github.com/aussiebroadwan/accounts/internal/account/store/drivers/redis"
	"github.com/aussiebroadwan/accounts/internal/account/store/drivers/sqlite"
	"github.com/aussiebroadwan/accounts/pkg/cryptox"
	"github.com/aussiebroadwan/accounts/pkg/jwtx"
	"github.com/aussiebroadwan/accounts/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application owns the account service and everything it depends on.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      *sqlite.Store
	pending store.PendingLogins
	redis   *goredis.Client
	signer  *jwtx.HMAC
	amqp    *notify.AMQPNotifier

	// Services
	accountService      *service.AccountService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "accounts",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initPendingLogins(); err != nil {
		_ = app.closeStores()
		return nil, err
	}
	if err := app.initSigner(); err != nil {
		_ = app.closeStores()
		return nil, err
	}

	app.initServices()

	if err := app.seedAdmin(); err != nil {
		_ = app.closeStores()
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("account service starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down account service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	if app.amqp != nil {
		if err := app.amqp.Close(); err != nil {
			app.logger.Error("error closing notification channel", "error", err)
		}
	}

	if err := app.closeStores(); err != nil {
		return err
	}

	app.logger.Info("account service stopped")
	return nil
}

// closeStores closes Redis, when in use, and then the database.
func (app *Application) closeStores() error {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		app.cfg.DatabaseFile,
	)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initPendingLogins picks where challenged sign-ins wait for their second
// factor. Redis lets several instances share them.
func (app *Application) initPendingLogins() error {
	if app.cfg.PendingBackend != PendingBackendRedis {
		app.pending = app.db.PendingLogins()
		return nil
	}

	client, err := redis.NewClient(context.Background(), redis.Config{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
		TLS:      app.cfg.RedisTLS,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.redis = client
	app.pending = redis.NewPendingLogins(client, redis.DefaultKeyPrefix)

	app.logger.Info("pending logins stored in redis", "addr", app.cfg.RedisAddr)
	return nil
}

// initSigner loads the token signing key, generating it on first start.
// Replacing the key file signs everyone out and voids mailed links.
func (app *Application) initSigner() error {
	key, err := cryptox.LoadOrGenerateSecret(app.cfg.SigningKeyFile, jwtx.MinKeySize)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}

	signer, err := jwtx.NewHMAC([]byte(key), app.cfg.Issuer)
	if err != nil {
		return fmt.Errorf("failed to create token signer: %w", err)
	}
	app.signer = signer
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	tokens := service.NewTokenService(app.signer, app.cfg.TokenTTLs)
	engine := service.NewTOTPEngine(app.db, app.cfg.TOTPIssuer, app.cfg.TOTPSkew)
	signIn := service.NewSignInService(
		app.db,
		app.pending,
		tokens,
		engine,
		service.LockoutPolicy{
			Threshold: app.cfg.LockoutThreshold,
			Duration:  app.cfg.LockoutDuration,
		},
		app.cfg.PendingLoginTTL,
	)

	app.accountService = service.NewAccountService(
		app.db,
		signIn,
		app.initNotifier(),
		service.DefaultPasswordPolicy,
	)

	app.housekeepingService = service.NewHousekeepingService(
		app.pending,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initNotifier always logs outgoing mail. When enabled, events are also
// published to RabbitMQ for a mailer to deliver. A broker that cannot be
// reached at startup is logged and skipped.
func (app *Application) initNotifier() service.Notifier {
	notifiers := notify.Multi{notify.NewLogNotifier(app.logger)}

	amqpCfg, err := notify.LoadAMQPConfig()
	if err != nil {
		app.logger.Error("invalid notification broker config", "error", err)
		return notifiers
	}
	if !amqpCfg.Enabled {
		return notifiers
	}

	publisher, err := notify.DialAMQP(amqpCfg, app.logger)
	if err != nil {
		app.logger.Error("notification broker unavailable", "error", err)
		return notifiers
	}
	app.amqp = publisher
	app.logger.Info("publishing notifications", "queue", amqpCfg.Queue)

	return append(notifiers, publisher)
}

// seedAdmin creates the configured admin account on first start. Without
// ADMIN_PASSWORD a random one is generated and logged once.
func (app *Application) seedAdmin() error {
	ctx, cancel := context.WithTimeout(slogx.WithContext(context.Background(), app.logger), 10*time.Second)
	defer cancel()

	password := app.cfg.AdminPassword
	generated := password == "" && app.cfg.AdminEmail != ""
	if generated {
		var err error
		if password, err = cryptox.GeneratePassword(); err != nil {
			return fmt.Errorf("failed to generate admin password: %w", err)
		}
	}

	created, err := app.accountService.SeedAdmin(ctx, app.cfg.AdminEmail, password)
	if err != nil {
		return fmt.Errorf("failed to seed admin: %w", err)
	}
	if !created {
		return nil
	}

	if generated {
		app.logger.Warn("admin account created with generated password",
			"email", app.cfg.AdminEmail,
			"password", password,
		)
	} else {
		app.logger.Info("admin account created", "email", app.cfg.AdminEmail)
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	if app.cfg.LinksFromRequestHost() {
		app.logger.Warn("ACCOUNTS_BASE_URL is not set; mailed links use the request Host header")
	}

	router := httpapi.NewRouter(
		app.accountService,
		app.db,
		app.pending,
		app.cfg.BaseURL,
		BuildVersion,
		app.logger,
	)
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
