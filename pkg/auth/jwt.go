package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/antibyte/c64mcp/pkg/configuration"
	"github.com/antibyte/c64mcp/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Default values - actual values are loaded from configuration
	defaultJWTSecret       = "fallback_secret_change_in_production"
	defaultTokenExpiration = 24 * time.Hour
	defaultIssuer          = "c64mcp"

	// TokenCookie is the cookie the token endpoint sets
	TokenCookie = "c64mcp_token"
)

// getJWTSecret retrieves the JWT secret. C64MCP_JWT_SECRET is already
// folded into the configuration.
func getJWTSecret() string {
	secret := configuration.GetString("JWT", "secret_key", defaultJWTSecret)
	if secret == defaultJWTSecret || secret == "ENVIRONMENT_VARIABLE_NOT_SET_FALLBACK" || secret == "" {
		logger.SecurityWarn("Using fallback JWT secret - set C64MCP_JWT_SECRET for production!")
		return defaultJWTSecret
	}
	return secret
}

// getTokenExpiration retrieves the token lifetime from configuration
func getTokenExpiration() time.Duration {
	hours := configuration.GetInt("Auth", "token_expiration_hours", 24)
	if hours <= 0 {
		return defaultTokenExpiration
	}
	return time.Duration(hours) * time.Hour
}

// TokenRequired reports whether the HTTP endpoints demand a token
func TokenRequired() bool {
	return configuration.GetBool("Auth", "require_token", false)
}

// ClientClaims are the claims of a token issued to an MCP client
type ClientClaims struct {
	SessionID string `json:"sid"`
	Client    string `json:"client,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken issues a signed token for a client session
func GenerateToken(sessionID, client string) (string, time.Time, error) {
	secretKey := getJWTSecret()
	now := time.Now()
	expires := now.Add(getTokenExpiration())

	claims := ClientClaims{
		SessionID: sessionID,
		Client:    client,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    configuration.GetString("JWT", "issuer", defaultIssuer),
			Subject:   "mcp-client",
			ID:        sessionID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token could not be signed: %w", err)
	}
	logger.AuthInfo("Token generated for session %s (client %q)", sessionID, client)
	return signedToken, expires, nil
}

// ValidateToken parses and verifies a token
func ValidateToken(tokenString string) (*ClientClaims, error) {
	secretKey := getJWTSecret()

	token, err := jwt.ParseWithClaims(
		tokenString,
		&ClientClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing algorithm: %v", token.Header["alg"])
			}
			return []byte(secretKey), nil
		},
		jwt.WithIssuer(configuration.GetString("JWT", "issuer", defaultIssuer)),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token parsing failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*ClientClaims)
	if !ok {
		return nil, fmt.Errorf("could not extract token claims")
	}
	return claims, nil
}

// ExtractTokenFromRequest reads the token from the Authorization header,
// the token cookie or the token query parameter, in that order
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" { // Format: "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1], nil
		}
		return "", fmt.Errorf("invalid authorization header format")
	}

	if cookie, err := r.Cookie(TokenCookie); err == nil {
		return cookie.Value, nil
	}

	// browsers cannot set headers on websocket upgrades
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}

	return "", fmt.Errorf("no token found in request")
}

// RequireToken rejects requests without a valid token. When tokens are not
// required by configuration the handler is returned unchanged.
func RequireToken(next http.Handler) http.Handler {
	if !TokenRequired() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS preflight carries no credentials
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		tokenString, err := ExtractTokenFromRequest(r)
		if err != nil {
			logger.AuthWarn("No token in request from %s: %v", getClientIP(r), err)
			http.Error(w, "Unauthorized: token missing", http.StatusUnauthorized)
			return
		}

		claims, err := ValidateToken(tokenString)
		if err != nil {
			logger.SecurityWarn("Invalid token from %s: %v", getClientIP(r), err)
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		logger.AuthDebug("Token accepted for session %s", claims.SessionID)
		next.ServeHTTP(w, r.WithContext(AddClaimsToContext(r.Context(), claims)))
	})
}
