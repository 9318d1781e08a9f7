package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cypherstack/bumpwallet/internal/logger"
	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/viper"
)

var jwtKey []byte

// Claims is the JWT payload issued by the auth endpoint.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// LoggingMiddleware logs information about each request
func LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	}
}

// JSONContentTypeMiddleware ensures that requests have the correct content type
func JSONContentTypeMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			contentType := r.Header.Get("Content-Type")
			if !strings.Contains(contentType, "application/json") {
				http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
				return
			}
		}
		next.ServeHTTP(w, r)
	}
}

// ErrorMiddleware wraps the handler and catches any panics, returning them as 500 errors
func ErrorMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic occurred", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	}
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := context.WithValue(r.Context(), contextKey("requestID"), requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func generateRequestID() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return fmt.Sprintf("%d-%x", time.Now().Unix(), buf)
}

// ApplyMiddleware applies a list of middleware to a handler
func ApplyMiddleware(h http.HandlerFunc, middleware ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	for _, m := range middleware {
		h = m(h)
	}
	return h
}

func GenerateJWTKey() ([]byte, error) {
	key := make([]byte, 32) // 256 bits
	_, err := rand.Read(key)
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT key: %v", err)
	}
	return key, nil
}

func SaveJWTKey(key []byte, walletName string) error {
	encodedKey := base64.StdEncoding.EncodeToString(key)
	keyPath := filepath.Join(viper.GetString("jwt_keys_dir"), walletName, "jwt_key")

	err := os.WriteFile(keyPath, []byte(encodedKey), 0600)
	if err != nil {
		return fmt.Errorf("failed to save JWT key: %v", err)
	}
	return nil
}

func LoadJWTKey(walletName string) ([]byte, error) {
	keyPath := filepath.Join(viper.GetString("jwt_keys_dir"), walletName, "jwt_key")

	encodedKey, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT key: %v", err)
	}

	key, err := base64.StdEncoding.DecodeString(string(encodedKey))
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWT key: %v", err)
	}
	return key, nil
}

func GetJWTKey() []byte {
	return jwtKey
}

// EnsureJWTKey generates a fresh signing key for this wallet on every start
// and persists it, invalidating tokens from previous runs.
func EnsureJWTKey(walletName string) error {
	walletDir := filepath.Join(viper.GetString("jwt_keys_dir"), walletName)
	if _, dirErr := os.Stat(walletDir); os.IsNotExist(dirErr) {
		if err := os.MkdirAll(walletDir, 0700); err != nil {
			return fmt.Errorf("failed to create directory for JWT key: %v", err)
		}
	}

	newKey, err := GenerateJWTKey()
	if err != nil {
		return fmt.Errorf("failed to generate new JWT key: %v", err)
	}

	if err := SaveJWTKey(newKey, walletName); err != nil {
		return fmt.Errorf("failed to save new JWT key: %v", err)
	}

	jwtKey = newKey
	logger.Info("JWT key initialized for wallet:", walletName)
	return nil
}

// GenerateJWT issues a signed token valid for 24 hours.
func GenerateJWT(userID string) (string, error) {
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(GetJWTKey())
}
