// Package httpapi is the exposition handler's HTTP chassis: routing,
// optional Basic-Auth, and optional TLS around the single /metrics
// route. spec.md declares this chassis an external collaborator; the
// routing style (Go 1.22+ method-pattern ServeMux, middleware wrapping
// the mux) follows _examples/playok-only1mon/internal/api/router.go.
package httpapi

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/droxporter/droxporter/internal/config"
	"github.com/droxporter/droxporter/internal/store"
)

// Renderer is the subset of *store.Store the handler needs.
type Renderer interface {
	Render() ([]byte, error)
}

var _ Renderer = (*store.Store)(nil)

// NewHandler builds the /metrics route, wrapped in Basic-Auth
// middleware when cfg.Auth.Enabled.
func NewHandler(s Renderer, cfg config.EndpointConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", metricsHandler(s))

	var handler http.Handler = mux
	if cfg.Auth.Enabled {
		handler = basicAuth(cfg.Auth, handler)
	}
	return handler
}

func metricsHandler(s Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := s.Render()
		if err != nil {
			http.Error(w, "internal error rendering metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", store.ContentType)
		w.Write(body)
	}
}

// basicAuth enforces HTTP Basic authentication against a single
// configured login/password pair, matching §6's 401 contract.
func basicAuth(cfg config.AuthConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		login, password, ok := r.BasicAuth()
		if !ok || !credentialsMatch(login, password, cfg) {
			w.Header().Set("WWW-Authenticate", `Basic realm="droxporter"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func credentialsMatch(login, password string, cfg config.AuthConfig) bool {
	loginOK := subtle.ConstantTimeCompare([]byte(login), []byte(cfg.Login)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(cfg.Password)) == 1
	return loginOK && passwordOK
}

// ListenAndServe starts the HTTP(S) server, blocking until it returns
// an error (including http.ErrServerClosed on graceful shutdown).
func ListenAndServe(srv *http.Server, cfg config.EndpointConfig) error {
	if cfg.SSL.Enabled {
		return srv.ListenAndServeTLS(cfg.SSL.RootCertPath, cfg.SSL.KeyPath)
	}
	return srv.ListenAndServe()
}

// Addr formats the listener address from host/port config.
func Addr(cfg config.EndpointConfig) string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}
