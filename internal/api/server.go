package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	walletnode "github.com/cypherstack/bumpwallet/internal/wallet"
	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/viper"
)

func NewAPI(node *walletnode.Node, backend *walletnode.Backend) *API {
	return &API{
		Node:    node,
		Backend: backend,
	}
}

func (a *API) CORSMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		allowedOrigin := viper.GetString("allowed_origin")
		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	}
}

func (a *API) JWTMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized: Authorization header missing", http.StatusUnauthorized)
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "Unauthorized: Invalid token format", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return GetJWTKey(), nil
		})

		if err != nil {
			if validationErr, ok := err.(*jwt.ValidationError); ok {
				if validationErr.Errors == jwt.ValidationErrorExpired {
					http.Error(w, "Token expired", http.StatusUnauthorized)
					return
				}
			}
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}

		if !token.Valid {
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	}
}

// Serve registers the routes and runs the HTTP server until it fails.
func (a *API) Serve() error {
	open := func(h http.HandlerFunc) http.HandlerFunc {
		return a.CORSMiddleware(ApplyMiddleware(h,
			ErrorMiddleware, RequestIDMiddleware, LoggingMiddleware))
	}
	protected := func(h http.HandlerFunc) http.HandlerFunc {
		return open(a.JWTMiddleware(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth", open(JSONContentTypeMiddleware(a.HandleAuth)))
	mux.HandleFunc("/bumpfee", protected(JSONContentTypeMiddleware(a.HandleBumpFee)))
	mux.HandleFunc("/canbump", protected(a.HandleCanBump))
	mux.HandleFunc("/replacements", protected(a.HandleReplacementChain))
	mux.HandleFunc("/fees", open(a.HandleFeeRecommendation))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", viper.GetInt("api_port")),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if viper.GetBool("use_https") {
		return server.ListenAndServeTLS(viper.GetString("cert_file"),
			viper.GetString("key_file"))
	}
	return server.ListenAndServe()
}
