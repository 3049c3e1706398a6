package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "frontdesk/pkg/domain"
	"frontdesk/pkg/requestcontext"
)

// JWTValidator validates a bearer token into actor claims.
type JWTValidator interface {
	ValidateToken(tokenString string) (*ActorClaims, error)
}

// ActorClaims is the authenticated actor carried by a token.
type ActorClaims struct {
	StaffID       id.StaffID
	CondominiumID id.CondominiumID
	Role          string
	Name          string
	// Unit binds a resident to one unit.
	Unit string
	JTI  string
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth rejects requests without a valid bearer token and puts the
// actor into the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithActor(ctx, claims.StaffID, claims.CondominiumID, claims.Role, claims.Name)
			if claims.Unit != "" {
				ctx = requestcontext.WithUnit(ctx, claims.Unit)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
