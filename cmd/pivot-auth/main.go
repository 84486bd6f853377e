package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	auth "github.com/pivot-market/pivot-auth"
	"github.com/pivot-market/pivot-auth/activitymap"
	"github.com/pivot-market/pivot-auth/observability"
	"github.com/pivot-market/pivot-auth/redislock"
	"github.com/pivot-market/pivot-auth/repository"
)

type serverOptions struct {
	Addr          string
	LogLevel      string
	DBDriver      string
	DBDSN         string
	RedisAddr     string
	AdminEmail    string
	AdminUsername string
	AdminPassword string
	Debug         bool
}

func loadServerOptions() serverOptions {
	return serverOptions{
		Addr:          envOr("HTTP_ADDR", ":8080"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		DBDriver:      envOr("DB_DRIVER", repository.DriverSQLite),
		DBDSN:         envOr("DB_DSN", "file:pivot-auth.db"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminUsername: envOr("ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		Debug:         strings.EqualFold(os.Getenv("AUTH_DEBUG"), "true"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// loads .env before the server options are read
	opts, err := auth.LoadOptions()
	if err != nil {
		log.Fatalf("failed to load auth config: %v", err)
	}
	srv := loadServerOptions()

	logger, err := observability.NewLogger(srv.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, srv, logger); err != nil {
		logger.Fatal("pivot-auth stopped", zap.Error(err))
	}
}

func run(ctx context.Context, opts auth.Options, srv serverOptions, logger *zap.Logger) error {
	authLogger := auth.NewZapLogger(logger)

	keys, err := auth.LoadKeyMaterial(opts)
	if err != nil {
		return fmt.Errorf("load key material: %w", err)
	}

	db, err := repository.Open(srv.DBDriver, srv.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if err := bootstrapAdmin(ctx, db, srv, logger); err != nil {
		return err
	}

	users := repository.NewPlatformUsers(db)
	admins := repository.NewAdministrators(db)

	// administrators win when a username exists in both tables
	verifier := auth.NewCredentialVerifier(auth.BcryptAuthenticator{}, authLogger, admins, users)

	tokens, err := auth.NewTokenService(keys, opts, authLogger)
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}

	var locker auth.IdentityLocker = auth.NewMemoryLocker()
	if srv.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: srv.RedisAddr})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("unable to reach redis, using in process sign in lock", zap.Error(err))
		} else {
			locker = redislock.New(client, redislock.WithLogger(authLogger))
			logger.Info("connected to redis")
		}
	}

	var validator auth.TokenValidator = tokens
	if url := opts.GetJWKSURL(); url != "" {
		remote, err := auth.NewRemoteValidator(url, opts, authLogger)
		if err != nil {
			return fmt.Errorf("remote jwks: %w", err)
		}
		defer remote.Close()
		validator = auth.NewMultiTokenValidator(tokens, remote)
	}

	ns := auth.NewCookieNamespace(opts.GetCookiePrefix())
	resolver := auth.NewRoleResolver(verifier, tokens, ns,
		auth.WithAccountTypeAssigner(users),
		auth.WithIdentityLocker(locker),
		auth.WithActivitySink(activitymap.ZapSink(logger)),
		auth.WithResolverLogger(authLogger),
	)
	sessions := auth.NewSessionIssuer(ns, opts, authLogger)
	guards := auth.NewGuards(validator, ns, sessions, opts, authLogger)

	controller := auth.NewAuthController(resolver, sessions, guards,
		auth.WithControllerLogger(authLogger),
		auth.WithControllerConfig(opts),
		auth.WithKeyMaterial(keys),
		auth.WithVerificationMailer(auth.LogVerificationMailer{Logger: authLogger}),
		auth.WithDebug(srv.Debug),
	)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})
	app.Use(observability.RequestLogger(logger))

	auth.RegisterAuthRoutes(app, controller)
	registerAreas(app, guards)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr))
		return app.Listen(srv.Addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(5 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// registerAreas mounts placeholder landing pages behind each role guard
func registerAreas(app *fiber.App, guards *auth.Guards) {
	area := func(c *fiber.Ctx) error {
		claims, ok := auth.ClaimsFromFiber(c)
		if !ok {
			return fiber.ErrUnauthorized
		}
		return c.JSON(fiber.Map{
			"username": claims.Username,
			"account":  claims.AccountType(),
			"path":     c.Path(),
		})
	}

	app.Get("/:username/dashboard", guards.Require(auth.AccountFreelancer), area)
	app.Get("/:username/account", guards.Require(auth.AccountClient), area)
	app.Get("/admin", guards.Require(auth.AccountAdmin), area)
}

func bootstrapAdmin(ctx context.Context, db bun.IDB, srv serverOptions, logger *zap.Logger) error {
	if srv.AdminEmail == "" || srv.AdminPassword == "" {
		return nil
	}

	hash, err := auth.HashPassword(srv.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := &repository.Administrator{
		Username:     srv.AdminUsername,
		Email:        srv.AdminEmail,
		PasswordHash: hash,
	}
	// stable ID so restarts update the same row
	if id, err := hashid.NewUUID(strings.ToLower(srv.AdminEmail)); err == nil {
		admin.ID = id
	}

	if _, err := repository.NewAdministrators(db).Upsert(ctx, admin); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	logger.Info("administrator ready", zap.String("username", admin.Username))
	return nil
}
