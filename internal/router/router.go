package router

import (
	"database/sql"
	"net/http"
	"os"
	"time"

	_ "funding-share-gateway/docs"
	"funding-share-gateway/internal/adapters/applications/core"
	"funding-share-gateway/internal/adapters/auth/atlas"
	mem "funding-share-gateway/internal/adapters/storage/memory"
	pg "funding-share-gateway/internal/adapters/storage/postgres"
	"funding-share-gateway/internal/domain/applications"
	"funding-share-gateway/internal/domain/audit"
	"funding-share-gateway/internal/domain/grants"
	"funding-share-gateway/internal/domain/share"
	"funding-share-gateway/internal/middleware"
	"funding-share-gateway/internal/platform/logger"
	"funding-share-gateway/internal/ports/auth"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si viene, usa Postgres para grants + access log. Si no,
	// intenta DB_DSN por env; sin nada, in-memory.
	DB *sql.DB

	// Opcional: overrides de repos (tests siembran estado acá).
	Grants grants.Repository
	Audit  audit.Repository
	Apps   applications.Repository

	Logger logger.Logger
}

func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	// Orden: RealIP antes de ActorContext para que el audit trail registre
	// la IP real detrás del proxy.
	r.Use(middleware.ActorContext)

	verifier := opts.AuthVerifier
	if verifier == nil {
		// Sin verifier explícito, intenta atlas por env (para dev/handoff).
		if baseURL := os.Getenv("ATLAS_BASE_URL"); baseURL != "" {
			if client, err := atlas.NewClient(atlas.Config{
				BaseURL: baseURL,
				APIKey:  os.Getenv("ATLAS_API_KEY"),
			}); err == nil && client.IsConfigured() {
				verifier = atlas.NewVerifier(client)
			}
		}
	}
	r.Use(middleware.AuthContext(verifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/swagger/*", httpSwagger.Handler())

	log := opts.Logger
	if log == nil {
		log = logger.NewFromEnv()
	}

	grantsRepo := opts.Grants
	auditRepo := opts.Audit

	// Si no te pasan DB explícita, intenta por env (para dev/handoff)
	db := opts.DB
	if db == nil && (grantsRepo == nil || auditRepo == nil) {
		if dsn := os.Getenv("DB_DSN"); dsn != "" {
			opened, err := pg.Open(dsn)
			if err == nil {
				db = opened
			} else {
				log.Warn("postgres unavailable, falling back to memory", map[string]any{
					"error": err.Error(),
				})
			}
		}
	}

	if grantsRepo == nil {
		if db != nil {
			grantsRepo = pg.NewGrantsRepo(db)
		} else {
			grantsRepo = mem.NewGrantsRepo()
		}
	}
	if auditRepo == nil {
		if db != nil {
			auditRepo = pg.NewAuditRepo(db)
		} else {
			auditRepo = mem.NewAuditRepo()
		}
	}

	appsRepo := opts.Apps
	if appsRepo == nil {
		if baseURL := os.Getenv("CORE_BASE_URL"); baseURL != "" {
			if repo, err := core.NewRepo(baseURL, 10*time.Second); err == nil {
				appsRepo = repo
			}
		}
	}
	if appsRepo == nil {
		appsRepo = mem.NewApplicationsRepo()
	}

	// Services por módulo
	auditSvc := audit.NewService(auditRepo, log)
	grantsSvc := grants.NewService(grantsRepo, auditSvc)
	appsSvc := applications.NewService(appsRepo)

	// Rutas: superficie pública (token) + superficie de owner (claims)
	share.RegisterRoutes(r, grantsSvc, appsSvc)
	grants.RegisterRoutes(r, grantsSvc, appsSvc)

	return r
}
