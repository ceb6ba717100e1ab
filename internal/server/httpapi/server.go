// Package httpapi implements the reference sync server's HTTP surface —
// the exact five endpoints internal/client/transport/http.Client calls
// (spec §6) — replacing the teacher's grpc package (SPEC_FULL.md §14:
// "the grpc transport is replaced by a net/http JSON handler").
// Grounded on go-chi/chi/v5 the way other pack repos wire it
// (_examples/Prudhvinik1-EdgeSync/cmd/server/main.go), with request
// auth handled by requireAuth rather than the teacher's gRPC
// accessTokenInterceptor.
package httpapi

import (
	"net/http"

	"github.com/eidolon-labs/notesync/internal/logging"
	"github.com/eidolon-labs/notesync/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wires the auth and sync services to their HTTP routes.
type Server struct {
	log         logging.Logger
	authService *services.AuthService
	syncService *services.SyncService
	jwtSecret   []byte
	router      chi.Router
}

func NewServer(log logging.Logger, authService *services.AuthService, syncService *services.SyncService, jwtSecret []byte) *Server {
	s := &Server{
		log:         log,
		authService: authService,
		syncService: syncService,
		jwtSecret:   jwtSecret,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/v1/register", s.handleRegister)
	r.Post("/v1/auth/params", s.handleKeyParams)
	r.Post("/v1/auth/sign-in", s.handleSignIn)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/v1/auth/change-password", s.handleChangePassword)
		r.Post("/v1/sync", s.handleSync)
	})

	return r
}
