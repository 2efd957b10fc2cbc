package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/antibyte/c64mcp/pkg/configuration"
	"github.com/antibyte/c64mcp/pkg/logger"
)

var ErrNoPasswordConfigured = errors.New("no password hash configured")

// TokenRequest is the body of POST /api/auth/token
type TokenRequest struct {
	Password string `json:"password"`
	Client   string `json:"client,omitempty"`
}

// TokenResponse is the answer of the token endpoint
type TokenResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	Message   string    `json:"message"`
}

// HashPassword returns the bcrypt hash to put into [Auth] password_hash
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares password against the configured hash
func CheckPassword(password string) error {
	hash := configuration.GetString("Auth", "password_hash", "")
	if hash == "" {
		return ErrNoPasswordConfigured
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func generateSessionID() string {
	return uuid.New().String()
}

// HandleToken exchanges the configured password for a JWT
func HandleToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		logger.AuthWarn("Invalid method for token request: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		logger.AuthWarn("Invalid JSON in token request: %v", err)
		respondWithError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := CheckPassword(req.Password); err != nil {
		if errors.Is(err, ErrNoPasswordConfigured) {
			logger.AuthError("Token requested but no password_hash is configured")
			respondWithError(w, "Token issuance is not configured", http.StatusServiceUnavailable)
			return
		}
		logger.SecurityWarn("Failed token request from %s", getClientIP(r))
		respondWithError(w, "Invalid password", http.StatusUnauthorized)
		return
	}

	sessionID := generateSessionID()
	token, expires, err := GenerateToken(sessionID, req.Client)
	if err != nil {
		logger.AuthError("Failed to generate token for session %s: %v", sessionID, err)
		respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	logger.SecurityInfo("Token issued to %s for session %s", getClientIP(r), sessionID)
	json.NewEncoder(w).Encode(TokenResponse{
		Success:   true,
		Token:     token,
		SessionID: sessionID,
		ExpiresAt: expires,
		Message:   "Token issued",
	})
}

func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(TokenResponse{
		Success: false,
		Message: message,
	})
}

// getClientIP prefers proxy headers over the socket address
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
