package router

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"presentation-api/internal/config"
	"presentation-api/internal/handler"
	"presentation-api/internal/middleware"
)

type healthChecker interface {
	Health(ctx context.Context) error
}

func New(
	cfg *config.Config,
	health healthChecker,
	authMiddleware *middleware.AuthMiddleware,
	ownershipMiddleware *middleware.OwnershipMiddleware,
	authHandler *handler.AuthHandler,
	presentationHandler *handler.PresentationHandler,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", healthHandler(health))

	r.Get("/uploads/*", uploadsHandler(cfg.UploadRoot))

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", authHandler.Register)
			auth.Post("/login", authHandler.Login)
			auth.With(authMiddleware.RequireValidToken).Post("/logout", authHandler.Logout)
			auth.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
		})

		api.Route("/presentations", func(pr chi.Router) {
			pr.Use(authMiddleware.RequireAuth)

			pr.Post("/", presentationHandler.Create)
			pr.Get("/", presentationHandler.List)

			pr.Route("/{id}", func(one chi.Router) {
				one.Use(ownershipMiddleware.RequireOwner)

				one.Get("/", presentationHandler.Get)
				one.Put("/", presentationHandler.Update)
				one.Get("/thumbnail", presentationHandler.Thumbnail)
			})
		})
	})

	return r
}

func healthHandler(health healthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := health.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// uploadsHandler serves stored attachments directly. The archives subtree
// holds superseded files and is never exposed; directories are not listed.
func uploadsHandler(uploadRoot string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rel := strings.TrimPrefix(r.URL.Path, "/uploads/")
		rel = path.Clean("/" + rel)[1:]

		if rel == "" || rel == "." || strings.HasPrefix(rel, "archives/") || rel == "archives" {
			http.NotFound(w, r)
			return
		}

		abs := filepath.Join(uploadRoot, filepath.FromSlash(rel))
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Cache-Control", "private, max-age=3600")
		http.ServeFile(w, r, abs)
	}
}
