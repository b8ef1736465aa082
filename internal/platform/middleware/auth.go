package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "attestor/pkg/domain"
	"attestor/pkg/requestcontext"
)

// CallerClaims are the claims the upstream auth layer puts in its tokens.
// Attestor does not issue sessions; it only verifies what the auth layer
// signed and lifts caller id + tier into the request context.
type CallerClaims struct {
	Tier string `json:"tier"`
	jwt.RegisteredClaims
}

// JWTValidator verifies bearer tokens from the upstream auth layer.
type JWTValidator struct {
	signingKey []byte
}

// NewJWTValidator creates a validator for HMAC-signed caller tokens.
func NewJWTValidator(signingKey string) *JWTValidator {
	return &JWTValidator{signingKey: []byte(signingKey)}
}

// ValidateToken parses and verifies a token, returning the caller identity.
func (v *JWTValidator) ValidateToken(tokenString string) (id.MemberID, id.Tier, error) {
	claims := &CallerClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.signingKey, nil
	})
	if err != nil {
		return id.MemberID{}, "", err
	}
	if !token.Valid {
		return id.MemberID{}, "", jwt.ErrTokenUnverifiable
	}
	memberID, err := id.ParseMemberID(claims.Subject)
	if err != nil {
		return id.MemberID{}, "", err
	}
	tier, err := id.ParseTier(claims.Tier)
	if err != nil {
		return id.MemberID{}, "", err
	}
	return memberID, tier, nil
}

// RequireAuth rejects requests without a valid bearer token and injects the
// authenticated caller into the request context.
func RequireAuth(validator *JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized - missing bearer token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "missing or invalid Authorization header")
				return
			}

			memberID, tier, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, memberID, tier)))
		})
	}
}

// OptionalAuth injects the caller when a valid bearer token is present and
// passes the request through anonymously otherwise. Used on endpoints whose
// visibility depends on the circuit's access mode, not on authentication.
func OptionalAuth(validator *JWTValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				if memberID, tier, err := validator.ValidateToken(token); err == nil {
					r = r.WithContext(requestcontext.WithCaller(r.Context(), memberID, tier))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
