package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Roles, highest first
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleViewer     = "viewer"
)

type Claims struct {
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Role   string   `json:"role"`
	Groups []string `json:"groups"`
	jwt.RegisteredClaims
}

type contextKey string

const UserContextKey contextKey = "user"

// Options selects how tokens are verified. With an IssuerURL, tokens must
// be signed by a key from the issuer's JWKS; otherwise they must be HS256
// tokens signed with Secret.
type Options struct {
	SkipAuth  bool
	Secret    string
	IssuerURL string
}

// Authenticator validates bearer tokens and stores the claims in the
// request context
type Authenticator struct {
	opts   Options
	logger zerolog.Logger

	jwksOnce sync.Once
	jwks     keyfunc.Keyfunc
	jwksErr  error
}

// New creates an Authenticator
func New(opts Options, logger zerolog.Logger) (*Authenticator, error) {
	if !opts.SkipAuth && opts.Secret == "" && opts.IssuerURL == "" {
		return nil, errors.New("auth needs JWT_SECRET or OIDC_ISSUER unless SKIP_AUTH is set")
	}
	return &Authenticator{opts: opts, logger: logger}, nil
}

// keyfunc fetches the issuer's JWKS once (Keycloak URL layout)
func (a *Authenticator) keyfunc() (jwt.Keyfunc, error) {
	a.jwksOnce.Do(func() {
		jwksURL := strings.TrimSuffix(a.opts.IssuerURL, "/") + "/protocol/openid-connect/certs"
		a.logger.Info().Str("url", jwksURL).Msg("fetching JWKS")

		a.jwks, a.jwksErr = keyfunc.NewDefault([]string{jwksURL})
		if a.jwksErr != nil {
			a.jwksErr = fmt.Errorf("failed to create keyfunc: %w", a.jwksErr)
		}
	})
	if a.jwksErr != nil {
		return nil, a.jwksErr
	}
	return a.jwks.Keyfunc, nil
}

// Middleware rejects requests without a valid token
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.opts.SkipAuth {
			ctx := context.WithValue(r.Context(), UserContextKey, &Claims{
				Email: "dev@switchboard.local",
				Name:  "Dev User",
				Role:  RoleAdmin,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		// Extract token from Authorization header or query parameter
		tokenString := extractToken(r)
		if tokenString == "" {
			a.logger.Debug().Str("path", r.URL.Path).Msg("missing authorization token")
			http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
			return
		}

		claims, err := a.ValidateToken(tokenString)
		if err != nil {
			a.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("token validation failed")
			http.Error(w, fmt.Sprintf("Unauthorized: %v", err), http.StatusUnauthorized)
			return
		}

		a.logger.Debug().Str("email", claims.Email).Str("role", claims.Role).Msg("user authenticated")

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin only lets admins through. It must run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetUserFromContext(r.Context())
		if !ok || !HasRole(claims, RoleAdmin) {
			http.Error(w, "Forbidden: admin role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractToken gets the token from Authorization header or query parameter
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString != authHeader {
			return tokenString
		}
	}

	// Browsers cannot set headers on WebSocket connections
	return r.URL.Query().Get("token")
}

// ValidateToken verifies the signature and expiry of a token and extracts
// its claims
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	var (
		kf      jwt.Keyfunc
		methods []string
	)
	if a.opts.IssuerURL != "" {
		var err error
		if kf, err = a.keyfunc(); err != nil {
			return nil, err
		}
		methods = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}
	} else {
		secret := []byte(a.opts.Secret)
		kf = func(*jwt.Token) (interface{}, error) { return secret, nil }
		methods = []string{"HS256"}
	}

	token, err := jwt.Parse(tokenString, kf, jwt.WithValidMethods(methods), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	claims := &Claims{
		Role:   extractRoleFromMapClaims(mapClaims),
		Groups: extractGroupsFromMapClaims(mapClaims),
	}
	if email, ok := mapClaims["email"].(string); ok {
		claims.Email = email
	}
	if name, ok := mapClaims["name"].(string); ok {
		claims.Name = name
	} else if preferredUsername, ok := mapClaims["preferred_username"].(string); ok {
		claims.Name = preferredUsername
	}
	if sub, err := mapClaims.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil {
		claims.ExpiresAt = exp
	}

	return claims, nil
}

// extractRoleFromMapClaims extracts role from various possible token claim locations
func extractRoleFromMapClaims(mapClaims jwt.MapClaims) string {
	roles := []string{RoleAdmin, RoleSupervisor, RoleViewer}

	// Plain "role" claim, as issued with a shared secret
	if role, ok := mapClaims["role"].(string); ok {
		for _, known := range roles {
			if role == known {
				return role
			}
		}
	}

	// Check realm_access.roles (Keycloak)
	if realmAccess, ok := mapClaims["realm_access"].(map[string]interface{}); ok {
		if granted, ok := realmAccess["roles"].([]interface{}); ok {
			for _, priority := range roles {
				for _, role := range granted {
					if roleStr, ok := role.(string); ok && roleStr == priority {
						return roleStr
					}
				}
			}
		}
	}

	// Check cognito:groups (AWS Cognito)
	if cognitoGroups, ok := mapClaims["cognito:groups"].([]interface{}); ok {
		for _, group := range cognitoGroups {
			if groupStr, ok := group.(string); ok {
				if strings.Contains(groupStr, RoleAdmin) {
					return RoleAdmin
				}
				if strings.Contains(groupStr, RoleSupervisor) {
					return RoleSupervisor
				}
			}
		}
	}

	return RoleViewer // default role
}

// extractGroupsFromMapClaims extracts groups from token claims
func extractGroupsFromMapClaims(mapClaims jwt.MapClaims) []string {
	var groups []string
	for _, key := range []string{"groups", "cognito:groups"} {
		if claim, ok := mapClaims[key].([]interface{}); ok {
			for _, group := range claim {
				if groupStr, ok := group.(string); ok {
					groups = append(groups, groupStr)
				}
			}
		}
	}
	return groups
}

// GetUserFromContext retrieves user claims from request context
func GetUserFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*Claims)
	return claims, ok
}

// HasRole checks if user has specific role
func HasRole(claims *Claims, role string) bool {
	return claims != nil && claims.Role == role
}

// InGroup checks if user is in specific group
func InGroup(claims *Claims, group string) bool {
	for _, g := range claims.Groups {
		if g == group {
			return true
		}
	}
	return false
}
