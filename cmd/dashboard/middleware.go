package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, log *zap.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to write response", zap.Error(err))
	}
}

// errorBody is the JSON error shape shared by every endpoint.
type errorBody struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, log *zap.Logger, status int, message string) {
	writeJSON(w, log, status, errorBody{Error: message})
}

// allowMethods rejects requests whose method is not listed with 405.
func allowMethods(log *zap.Logger, next http.HandlerFunc, methods ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, m := range methods {
			if r.Method == m {
				next(w, r)
				return
			}
		}
		w.Header().Set("Allow", strings.Join(methods, ", "))
		writeError(w, log, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// withCORS answers preflight requests and sets the CORS headers the browser app needs.
// An empty origin list or "*" allows any origin.
func withCORS(origins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowedHeaders: []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type", "X-MBX-APIKEY"},
	})
	return c.Handler
}

// queryToken lets websocket clients, which cannot set headers, pass the bearer token as ?access_token=.
func queryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if token := r.URL.Query().Get("access_token"); token != "" {
				r = r.Clone(r.Context())
				r.Header.Set("Authorization", "Bearer "+token)
			}
		}
		next.ServeHTTP(w, r)
	})
}
