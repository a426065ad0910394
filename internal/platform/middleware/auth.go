// Package middleware contains HTTP middleware shared by all routes: bearer
// token authentication, request correlation IDs, request-time pinning and
// tracing. Identity issuance itself is an external collaborator; this layer
// only validates and consumes its tokens.
package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "aidpool/pkg/domain"
	dErrors "aidpool/pkg/domain-errors"
	"aidpool/pkg/platform/httputil"
	"aidpool/pkg/requestcontext"
)

// Claims are the token claims the identity collaborator asserts about an
// actor. The core trusts them for authorization decisions only.
type Claims struct {
	Role                string `json:"role"`
	University          string `json:"university"`
	Approved            bool   `json:"approved"`
	VerifiedBeneficiary bool   `json:"beneficiary_verified"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer tokens and injects the actor into context.
type Authenticator struct {
	signingKey []byte
}

func NewAuthenticator(signingKey string) *Authenticator {
	return &Authenticator{signingKey: []byte(signingKey)}
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
			return
		}

		actor, err := a.parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(r.Context(), actor)))
	})
}

func (a *Authenticator) parse(token string) (requestcontext.Actor, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		return requestcontext.Actor{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}

	actorID, err := id.ParseActorID(claims.Subject)
	if err != nil {
		return requestcontext.Actor{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token subject")
	}
	role, err := id.ParseRole(claims.Role)
	if err != nil {
		return requestcontext.Actor{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token role")
	}

	return requestcontext.Actor{
		ID:                  actorID,
		Role:                role,
		University:          id.University(claims.University),
		Approved:            claims.Approved,
		VerifiedBeneficiary: claims.VerifiedBeneficiary,
	}, nil
}

// RequireRole rejects actors whose role is not in the allowed set.
func RequireRole(roles ...id.Role) func(http.Handler) http.Handler {
	allowed := make(map[id.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := requestcontext.ActorFrom(r.Context())
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
				return
			}
			if _, ok := allowed[actor.Role]; !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "role not permitted"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
