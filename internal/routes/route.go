package routes

import (
	"net/http"
	"time"

	"vergeside/internal/auth"
	"vergeside/internal/config"
	"vergeside/internal/handlers"
	"vergeside/internal/kml"
	"vergeside/internal/logger"
	"vergeside/internal/metrics"
	mdlwr "vergeside/internal/middleware"
	"vergeside/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// NewRouter wires the document, lookup and admin endpoints. rc may be nil
// when the redis tier is disabled.
func NewRouter(db *bun.DB, rc *redis.Client, cfg *config.Config, logr *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Cache", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	scheme := kml.DefaultColorScheme()
	if len(cfg.WeekColors) > 0 {
		custom, err := kml.NewColorScheme(cfg.WeekColors)
		if err != nil {
			logr.Fatal("invalid WEEK_COLORS", zap.Error(err))
		}
		scheme = custom
	}

	source := services.NewAreaDataSource(db, cfg.FetchTimeout)
	guarded := services.NewBreakingDataSource(source, cfg.BreakerFailures, cfg.BreakerCooldown, logr.Logger)
	pgStore := services.NewKMLCacheStore(db, logr.Logger)

	var (
		store   services.CacheStore = pgStore
		flusher handlers.Flusher
	)
	if rc != nil {
		layered := services.NewLayeredCacheStore(services.NewRedisCacheStore(rc, cfg.CacheTTL), pgStore, logr.Logger)
		store, flusher = layered, layered
	}

	assembler := kml.NewAssembler(guarded, scheme, cfg.CivilLocation, logr.Logger)
	kmlSvc := services.NewKMLService(store, assembler, cfg.CivilLocation, cfg.CacheTTL, logr.Logger)

	var verifier *auth.Verifier
	if cfg.JWTPublicKeyPath != "" {
		v, err := auth.NewVerifier(cfg.JWTPublicKeyPath, cfg.JWTIssuer)
		if err != nil {
			logr.Fatal("failed to init jwt verifier", zap.Error(err))
		}
		verifier = v
	}
	adminMW := mdlwr.NewAdminAuth(verifier, cfg.AdminUsername, cfg.AdminPasswordHash, logr.Logger)
	if !adminMW.Enabled() {
		logr.Warn("admin endpoints have no credentials configured and will reject every request")
	}

	kmlHandler := handlers.NewKMLHandler(kmlSvc, logr.Logger)
	councilHandler := handlers.NewCouncilHandler(source, logr.Logger)
	adminHandler := handlers.NewCacheAdminHandler(pgStore, kmlSvc, flusher, logr.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	limit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimitPerMinute > 0 {
		limit = httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(limit).Get("/kml", kmlHandler.GetKML)
		r.Get("/councils", councilHandler.ListCouncils)

		r.Route("/areas", func(r chi.Router) {
			r.Get("/", councilHandler.ListAreas)
			r.With(limit).Get("/geojson", kmlHandler.GetAreasGeoJSON)
		})

		r.Route("/admin/kml-cache", func(r chi.Router) {
			r.Use(adminMW.RequireAdmin)
			r.Get("/status", adminHandler.Status)
			r.Get("/last-reset", adminHandler.LastReset)
			r.Post("/clear", adminHandler.Clear)
			r.Post("/recreate", adminHandler.Recreate)
			r.Post("/invalidate", adminHandler.Invalidate)
		})
	})

	return r
}
