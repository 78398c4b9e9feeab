// SPDX-License-Identifier: Apache-2.0

// Package httpapi implements the observable HTTP/JSON shape of spec.md §6
// over the repository manager and query engine — a thin illustrative
// surface, not a hardened production gateway: authorization and quota
// enforcement are represented by the Authorizer/Limiter interfaces below
// and left for a deployment to supply.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dogmahq/dogma/modules/dogma/repository"
)

// Authorizer decides whether the caller behind r may perform action on
// project/repo. A nil Authorizer passed to NewServer permits everything —
// suitable for local development and the test suite, never for production
// (spec.md's Non-goals place authentication and authorization out of this
// repository's scope; this interface is the seam a deployment wires its own
// implementation into).
type Authorizer interface {
	Authorize(r *http.Request, project, repo, action string) error
}

// Limiter decides whether the caller behind r has quota remaining. A nil
// Limiter permits everything, for the same reason as Authorizer.
type Limiter interface {
	Allow(r *http.Request, project, repo string) error
}

// Server wires the repository manager onto spec.md §6's HTTP routes.
type Server struct {
	manager *repository.Manager
	authz   Authorizer
	limiter Limiter
	srv     *http.Server
	router  *mux.Router

	defaultWatchTimeout time.Duration
	maxWatchTimeout     time.Duration
}

// Options configures a Server; Authorizer/Limiter default to permit-all,
// and the two watch timeouts default to the same bounds internal/config
// defaults to.
type Options struct {
	Listen              string
	Authorizer          Authorizer
	Limiter             Limiter
	DefaultWatchTimeout time.Duration
	MaxWatchTimeout     time.Duration
}

func NewServer(manager *repository.Manager, opts Options) *Server {
	defaultTimeout := opts.DefaultWatchTimeout
	if defaultTimeout == 0 {
		defaultTimeout = 60 * time.Second
	}
	maxTimeout := opts.MaxWatchTimeout
	if maxTimeout == 0 {
		maxTimeout = 10 * time.Minute
	}
	s := &Server{
		manager:             manager,
		authz:               opts.Authorizer,
		limiter:             opts.Limiter,
		defaultWatchTimeout: defaultTimeout,
		maxWatchTimeout:     maxTimeout,
	}
	s.srv = &http.Server{Addr: opts.Listen, Handler: s}
	s.router = s.newRouter()
	return s
}

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter().UseEncodedPath()

	r.HandleFunc("/projects", s.createProject).Methods(http.MethodPost)
	r.HandleFunc("/projects/{project}", s.deleteProject).Methods(http.MethodDelete)
	r.HandleFunc("/projects/{project}", s.patchProject).Methods(http.MethodPatch)

	r.HandleFunc("/projects/{project}/repos", s.listRepos).Methods(http.MethodGet)
	r.HandleFunc("/projects/{project}/repos", s.createRepo).Methods(http.MethodPost)
	r.HandleFunc("/projects/{project}/repos/{repo}", s.deleteRepo).Methods(http.MethodDelete)
	r.HandleFunc("/projects/{project}/repos/{repo}", s.patchRepo).Methods(http.MethodPatch)

	r.HandleFunc("/projects/{project}/repos/{repo}/revision/{rev}", s.normalizeRevision).Methods(http.MethodGet)
	r.HandleFunc("/projects/{project}/repos/{repo}/list/{pattern:.*}", s.listFiles).Methods(http.MethodGet)
	r.HandleFunc("/projects/{project}/repos/{repo}/contents/{path:.*}", s.getFile).Methods(http.MethodGet)
	r.HandleFunc("/projects/{project}/repos/{repo}/merge", s.merge).Methods(http.MethodGet)
	r.HandleFunc("/projects/{project}/repos/{repo}/commits/{from}", s.history).Methods(http.MethodGet)
	r.HandleFunc("/projects/{project}/repos/{repo}/compare", s.compare).Methods(http.MethodGet)
	r.HandleFunc("/projects/{project}/repos/{repo}/preview", s.preview).Methods(http.MethodPost)
	r.HandleFunc("/projects/{project}/repos/{repo}/contents", s.commit).Methods(http.MethodPost)

	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	s.router.ServeHTTP(rw, r)
	logrus.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": rw.status,
		"spent":  time.Since(started),
	}).Info("dogma: request handled")
}

func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// authorize runs the configured Authorizer, if any, treating an unconfigured
// Authorizer as permit-all.
func (s *Server) authorize(r *http.Request, project, repo, action string) error {
	if s.authz == nil {
		return nil
	}
	return s.authz.Authorize(r, project, repo, action)
}

func (s *Server) checkQuota(r *http.Request, project, repo string) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Allow(r, project, repo)
}
