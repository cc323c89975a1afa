package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/corvidsec/identity/internal/abac"
	"github.com/corvidsec/identity/internal/api"
	apiMiddleware "github.com/corvidsec/identity/internal/api/middleware"
	"github.com/corvidsec/identity/internal/audit"
	"github.com/corvidsec/identity/internal/auth"
	"github.com/corvidsec/identity/internal/authz"
	"github.com/corvidsec/identity/internal/config"
	"github.com/corvidsec/identity/internal/crypto"
	"github.com/corvidsec/identity/internal/metrics"
	"github.com/corvidsec/identity/internal/notify"
	"github.com/corvidsec/identity/internal/oauth"
	"github.com/corvidsec/identity/internal/storage"
	"github.com/corvidsec/identity/internal/storage/postgres"
	redisstore "github.com/corvidsec/identity/internal/storage/redis"
	"github.com/corvidsec/identity/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	// Local overrides first, shared defaults second; both files are optional.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.Setup(cfg.Env, "identity-api")

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Env,
			TracesSampleRate: 0.1,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if err := apiMiddleware.ValidateOrigins(cfg.CORS.AllowedOrigins); err != nil {
		return fmt.Errorf("invalid CORS configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := storage.NewPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := storage.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	users := postgres.NewUserStore(pool)
	principals := postgres.NewPrincipalStore(pool)
	serviceCreds := postgres.NewServiceCredentialStore(pool)
	servicePerms := postgres.NewServicePermissionStore(pool)
	refreshTokens := postgres.NewRefreshTokenStore(pool)
	roles := postgres.NewRoleStore(pool)
	catalog := postgres.NewPermissionCatalog(pool)
	groups := postgres.NewGroupStore(pool)
	memberships := postgres.NewGroupMembershipStore(pool)
	assignments := postgres.NewRoleAssignmentStore(pool)
	groupRoles := postgres.NewGroupRoleAssignmentStore(pool)
	policies := postgres.NewPolicyStore(pool)
	resetAttempts := redisstore.NewResetAttemptStore(redisClient)

	resolver := authz.NewResolver(roles, assignments, memberships, groupRoles)
	engine := abac.NewEngine(policies)

	// The audit trail feeds the JSON event stream and the security counters
	// in one pass.
	auditLog := metrics.AuditObserver{Next: audit.NewJSONLogger()}

	var sealer crypto.Sealer = crypto.NoopSealer{}
	if cfg.TOTP.SecretKey != "" {
		sealer, err = crypto.NewAESGCMSealer(cfg.TOTP.SecretKey)
		if err != nil {
			return fmt.Errorf("init totp sealer: %w", err)
		}
	} else if cfg.IsProduction() {
		log.Warn("MFA_SECRET_KEY not set; TOTP secrets will be stored unsealed")
	}

	var mailer notify.EmailSender
	if cfg.SMTP.Host != "" {
		mailer, err = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:       cfg.SMTP.Host,
			Port:       cfg.SMTP.Port,
			User:       cfg.SMTP.User,
			Password:   cfg.SMTP.Password,
			From:       cfg.SMTP.From,
			TLSMode:    cfg.SMTP.TLSMode,
			AppBaseURL: cfg.AppBaseURL,
		})
		if err != nil {
			return err
		}
	} else {
		if cfg.IsProduction() {
			return errors.New("SMTP_HOST is required in production")
		}
		mailer = &notify.DevMailer{Logger: log, AppBaseURL: cfg.AppBaseURL}
	}

	providers := make([]oauth.Provider, 0, len(cfg.OAuth.Providers))
	for _, name := range cfg.OAuth.Providers {
		pc, err := cfg.OAuth.Provider(name)
		if err != nil {
			return err
		}
		provider, err := oauth.NewOIDCProvider(ctx, pc.Name, pc.Issuer, pc.ClientID)
		if err != nil {
			return fmt.Errorf("init oauth provider %q: %w", name, err)
		}
		providers = append(providers, provider)
		log.Info("oauth provider registered", "provider", pc.Name, "issuer", pc.Issuer)
	}

	codec := auth.NewJWTCodec(auth.TokenConfig{
		Secret:     cfg.Token.Secret,
		Issuer:     cfg.Token.Issuer,
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
		PreAuthTTL: cfg.Token.PreAuthTTL,
		ServiceTTL: cfg.Token.ServiceTTL,
	})

	service := auth.NewService(auth.Config{
		RefreshTokenTTL:    cfg.Token.RefreshTTL,
		ResetTokenTTL:      cfg.Reset.TokenTTL,
		ResetMaxAttempts:   cfg.Reset.MaxAttempts,
		ResetAttemptWindow: cfg.Reset.AttemptWindow,
	}, auth.Deps{
		Users:         users,
		Principals:    principals,
		ServiceCreds:  serviceCreds,
		ServicePerms:  servicePerms,
		RefreshTokens: refreshTokens,
		ResetAttempts: resetAttempts,
		Catalog:       catalog,
		Resolver:      resolver,
		Hasher: auth.NewArgon2Hasher(auth.Argon2Params{
			MemoryKiB:   cfg.Argon2.MemoryKiB,
			Iterations:  cfg.Argon2.Iterations,
			Parallelism: cfg.Argon2.Parallelism,
		}),
		Codec:     codec,
		TOTP:      auth.NewTOTPService(cfg.TOTP.Issuer, sealer),
		Sealer:    sealer,
		Providers: oauth.NewRegistry(providers...),
		Mail:      mailer,
		Audit:     auditLog,
	})

	server := api.NewServer(api.Options{
		Auth: service,
		RBAC: api.RBACDeps{
			Roles:       roles,
			Permissions: catalog,
			Groups:      groups,
			Memberships: memberships,
			Assignments: assignments,
			GroupRoles:  groupRoles,
			Resolver:    resolver,
			Audit:       auditLog,
		},
		Policies:       policies,
		Engine:         engine,
		Audit:          auditLog,
		Pool:           pool,
		Redis:          redisClient,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		CORSOrigins:    cfg.CORS.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("identity service listening", "addr", cfg.Addr(), "env", cfg.Env)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}
