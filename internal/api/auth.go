package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/doctor-availability-scheduling/internal/scheduling"
)

const identityKey contextKey = "identity"

var errMissingCredentials = errors.New("missing credentials")

// Claims is the token shape issued by the auth service: sub is the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator turns a request into a scheduling.Identity. Tokens are
// verified as HS256 with the shared secret. When no secret is configured and
// dev headers are allowed, X-User-ID and X-User-Role are trusted instead.
type Authenticator struct {
	secret     []byte
	devHeaders bool
}

func NewAuthenticator(secret string, allowDevHeaders bool) *Authenticator {
	return &Authenticator{
		secret:     []byte(secret),
		devHeaders: allowDevHeaders && secret == "",
	}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.identify(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) identify(r *http.Request) (scheduling.Identity, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return scheduling.Identity{}, errors.New("authorization header must be a bearer token")
		}
		return a.parseToken(token)
	}

	if a.devHeaders && r.Header.Get("X-User-ID") != "" {
		return identityFromStrings(r.Header.Get("X-User-ID"), r.Header.Get("X-User-Role"))
	}
	return scheduling.Identity{}, errMissingCredentials
}

func (a *Authenticator) parseToken(raw string) (scheduling.Identity, error) {
	if len(a.secret) == 0 {
		return scheduling.Identity{}, errors.New("token authentication is not configured")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return scheduling.Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	return identityFromStrings(claims.Subject, claims.Role)
}

func identityFromStrings(sub, role string) (scheduling.Identity, error) {
	userID, err := uuid.Parse(sub)
	if err != nil {
		return scheduling.Identity{}, errors.New("subject must be a UUID")
	}
	r, ok := scheduling.ParseRole(role)
	if !ok {
		return scheduling.Identity{}, fmt.Errorf("unknown role %q", role)
	}
	return scheduling.Identity{UserID: userID, Role: r}, nil
}

// IssueToken signs an HS256 token for the identity. The API never issues
// tokens itself; this exists for tooling such as the simulator.
func IssueToken(secret string, id scheduling.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// IdentityFrom returns the caller identity stored by the auth middleware.
func IdentityFrom(ctx context.Context) (scheduling.Identity, bool) {
	id, ok := ctx.Value(identityKey).(scheduling.Identity)
	return id, ok
}
