package app

import (
	"crypto"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/carecoord/authcore/internal/auth"
	"github.com/carecoord/authcore/internal/identity"
	"github.com/carecoord/authcore/internal/observability"
	"github.com/carecoord/authcore/internal/ratelimit"
	"github.com/carecoord/authcore/internal/rbac"
	"github.com/carecoord/authcore/internal/revocation"
	"github.com/carecoord/authcore/internal/session"
	"github.com/carecoord/authcore/internal/token"
	"github.com/carecoord/authcore/internal/users"
)

// Dependencies are the external resources the API is assembled from. A nil
// Pool keeps identities and sessions in memory and a nil Redis keeps the
// denylist and rate-limit counters in memory; both are for tests and local
// experiments only.
type Dependencies struct {
	Logger      *slog.Logger
	Metrics     *observability.Metrics
	Pool        *pgxpool.Pool
	Redis       redis.UniversalClient
	Signer      crypto.Signer
	Permissions *rbac.PermissionMap
	Now         func() time.Time
}

// API is the assembled HTTP surface plus the services other processes reuse.
type API struct {
	Handler    http.Handler
	Identities *identity.Service
	Sessions   *session.Registry
	Issuer     *token.Issuer
}

// Build wires every component from cfg and deps.
func Build(cfg *Config, deps Dependencies) (*API, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if deps.Signer == nil {
		return nil, errors.New("app: signing key is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	permissions := deps.Permissions
	if permissions == nil {
		var err error
		if permissions, err = LoadPermissions(cfg); err != nil {
			return nil, err
		}
	}

	var tokenOpts []token.Option
	if deps.Now != nil {
		tokenOpts = append(tokenOpts, token.WithClock(deps.Now))
	}
	issuer, err := token.NewIssuer(token.Config{
		Algorithm:  cfg.JWTAlgorithm,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}, deps.Signer, tokenOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: token issuer: %w", err)
	}

	var (
		identityRepo identity.Repository
		sessionRepo  session.Repository
		denyStore    revocation.Store
	)
	if deps.Pool != nil {
		identityRepo = identity.NewRepository(deps.Pool)
		sessionRepo = session.NewRepository(deps.Pool)
	} else {
		logger.Warn("no database pool configured, using in-memory identity and session stores")
		identityRepo = identity.NewMemoryRepository()
		sessionRepo = session.NewMemoryRepository()
	}
	if deps.Redis != nil {
		denyStore = revocation.NewRedisStore(deps.Redis)
	} else {
		logger.Warn("no cache configured, using in-memory revocation store")
		denyStore = revocation.NewMemoryStore()
	}

	identities, err := identity.NewService(identityRepo, permissions, identity.Config{
		BcryptCost:   cfg.BcryptCost,
		AllowedRoles: cfg.RegisterAllowedRoles,
		StoreTimeout: cfg.StoreTimeout,
		Now:          deps.Now,
	})
	if err != nil {
		return nil, err
	}
	ledger := revocation.NewLedger(denyStore, cfg.CacheTimeout, revocation.WithClock(deps.Now))
	registry := session.NewRegistry(sessionRepo, issuer, ledger, session.Config{
		AccessTTL:    cfg.AccessTokenTTL,
		StoreTimeout: cfg.StoreTimeout,
		Logger:       logger,
		Now:          deps.Now,
	})

	var events auth.EventRecorder
	var decisions rbac.DecisionRecorder
	if deps.Metrics != nil {
		events = deps.Metrics
		decisions = deps.Metrics
	}
	engine := rbac.NewEngine(permissions, logger, decisions)
	limiter := ratelimit.New(deps.Redis, cfg.CacheTimeout, logger)

	service := auth.NewService(auth.Deps{
		Identities:  identities,
		Sessions:    registry,
		Issuer:      issuer,
		Ledger:      ledger,
		Permissions: permissions,
		Events:      events,
		Logger:      logger,
		Now:         deps.Now,
	})
	authHandler := auth.NewHandler(logger, service, engine, limiter, auth.Limits{
		Register: ratelimit.Rule{Name: "register", Limit: cfg.RegisterRateLimit, Window: time.Hour},
		Login:    ratelimit.Rule{Name: "login", Limit: cfg.LoginRateLimit, Window: time.Hour},
		Refresh:  ratelimit.Rule{Name: "refresh", Limit: cfg.RefreshRateLimit, Window: time.Hour},
	})
	usersHandler := users.NewHandler(logger, users.NewService(identities, permissions), engine)

	handler := NewRouter(RouterParams{
		Logger:        logger,
		Config:        cfg,
		Limiter:       limiter,
		Authenticator: auth.NewAuthenticator(issuer, ledger, logger),
		AuthHandler:   authHandler,
		UsersHandler:  usersHandler,
		RolesHandler:  rbac.NewRolesHandler(permissions, engine),
		Metrics:       deps.Metrics,
	})
	return &API{Handler: handler, Identities: identities, Sessions: registry, Issuer: issuer}, nil
}

// LoadPermissions returns the policy file named by RBAC_POLICY_FILE, or the
// embedded default.
func LoadPermissions(cfg *Config) (*rbac.PermissionMap, error) {
	if cfg != nil && cfg.RBACPolicyFile != "" {
		return rbac.LoadPermissionFile(cfg.RBACPolicyFile)
	}
	return rbac.DefaultPermissionMap()
}
