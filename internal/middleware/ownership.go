package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"presentation-api/internal/model"
)

type presentationLoader interface {
	FindByID(ctx context.Context, id string) (model.Presentation, error)
}

const presentationContextKey contextKey = "presentation"

type OwnershipMiddleware struct {
	presentations presentationLoader
}

func NewOwnershipMiddleware(presentations presentationLoader) *OwnershipMiddleware {
	return &OwnershipMiddleware{presentations: presentations}
}

// RequireOwner loads the presentation addressed by the route and confirms the
// authenticated subject owns it. Non-owners get 403, not 404: existence is
// deliberately not hidden. The loaded document is attached to the context so
// downstream handlers do not fetch it again.
func (m *OwnershipMiddleware) RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeReject(w, "UNAUTHORIZED", "authentication required", http.StatusUnauthorized)
			return
		}

		id := chi.URLParam(r, "id")
		if _, err := uuid.Parse(id); err != nil {
			writeReject(w, "BAD_REQUEST", "invalid presentation id", http.StatusBadRequest)
			return
		}

		presentation, err := m.presentations.FindByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, model.ErrPresentationNotFound) {
				writeReject(w, "NOT_FOUND", "presentation not found", http.StatusNotFound)
				return
			}
			writeReject(w, "INTERNAL_ERROR", "unexpected server error", http.StatusInternalServerError)
			return
		}

		if presentation.OwnerID != claims.Subject {
			writeReject(w, "FORBIDDEN", "you do not own this presentation", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPresentation(r.Context(), presentation)))
	})
}

func WithPresentation(ctx context.Context, presentation model.Presentation) context.Context {
	return context.WithValue(ctx, presentationContextKey, presentation)
}

func PresentationFromContext(ctx context.Context) (model.Presentation, bool) {
	presentation, ok := ctx.Value(presentationContextKey).(model.Presentation)
	return presentation, ok
}
