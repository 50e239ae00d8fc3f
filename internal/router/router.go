package router

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "project-tracker/docs"
	"project-tracker/internal/adapters/capabilities/platform"
	"project-tracker/internal/adapters/securityevents/redisprobe"
	mem "project-tracker/internal/adapters/storage/memory"
	pg "project-tracker/internal/adapters/storage/postgres"
	"project-tracker/internal/domain/authz"
	"project-tracker/internal/domain/authz/rls"
	"project-tracker/internal/domain/memberships"
	"project-tracker/internal/domain/records"
	"project-tracker/internal/middleware"
	"project-tracker/internal/platform/logger"
	"project-tracker/internal/ports/auth"
	"project-tracker/internal/ports/capabilities"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si viene, usa Postgres. Si no, in-memory.
	DB *sql.DB

	// Opcional: sin redis no hay detector de sondeo entre tenants.
	Redis          redis.Cmdable
	ProbeThreshold int64
	ProbeWindow    time.Duration

	Logger logger.Logger

	// Capabilities de plataforma; si es nil se usa solo la allow-list.
	Capabilities     capabilities.Resolver
	PlatformAdminIDs []string

	// Policy por defecto authz.Default().
	Policy *authz.Policy

	RateLimitPerMinute int
	SSLRedirect        bool
}

func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	policy := opts.Policy
	if policy == nil {
		policy = authz.Default()
	}
	storage := rls.MustCompile(policy)

	observers := []authz.Observer{authz.NewLogObserver(log)}
	if opts.Redis != nil {
		observers = append(observers, redisprobe.New(opts.Redis, log, redisprobe.Options{
			Threshold: opts.ProbeThreshold,
			Window:    opts.ProbeWindow,
		}))
	}
	engine := authz.NewEngine(policy, observers...)

	var (
		membershipRepo memberships.Repository
		recordRepo     records.Repository
	)
	if opts.DB != nil {
		membershipRepo = pg.NewMembershipsRepo(opts.DB)
		recordRepo = pg.NewRecordsRepo(opts.DB, storage)
	} else {
		membershipRepo = mem.NewMembershipRepo()
		recordRepo = mem.NewRecordRepo(storage)
	}

	caps := opts.Capabilities
	if caps == nil {
		caps = platform.NewResolver(nil, opts.PlatformAdminIDs)
	}

	// Services por módulo
	membershipsSvc := memberships.NewService(membershipRepo, engine, caps)
	recordsSvc := records.NewService(recordRepo, engine)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	// AuthContext antes del logger para que la línea lleve user_id.
	r.Use(middleware.AuthContext(opts.AuthVerifier))
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Recover(log))

	r.Group(func(dr chi.Router) {
		dr.Use(middleware.Security(middleware.SecurityOptions{AllowDocs: true, SSLRedirect: opts.SSLRedirect}, log)...)
		dr.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	})

	r.Group(func(api chi.Router) {
		api.Use(middleware.Security(middleware.SecurityOptions{
			RequestsPerMinute: opts.RateLimitPerMinute,
			SSLRedirect:       opts.SSLRedirect,
		}, log)...)

		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		authz.RegisterRoutes(api, engine.Matrix())

		api.Group(func(ar chi.Router) {
			ar.Use(middleware.RequireUser)
			memberships.RegisterRoutes(ar, membershipsSvc)

			// Todo lo que cuelga de un tenant resuelve el actor (rol) en cada request.
			ar.Route("/tenants/{tenantID}", func(tr chi.Router) {
				tr.Use(middleware.TenantActor(membershipsSvc, log))
				memberships.RegisterTenantRoutes(tr, membershipsSvc)
				records.RegisterRoutes(tr, recordsSvc)
			})
		})
	})

	return r
}
