// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/dogmahq/dogma/dogmaerr"
	"github.com/dogmahq/dogma/modules/dogma/cache"
	"github.com/dogmahq/dogma/modules/dogma/commit"
	"github.com/dogmahq/dogma/modules/dogma/object"
	"github.com/dogmahq/dogma/modules/dogma/query"
	"github.com/dogmahq/dogma/modules/dogma/repository"
	"github.com/dogmahq/dogma/modules/plumbing"
	"github.com/dogmahq/dogma/modules/wildmatch"
)

// openRepo resolves {project}/{repo} from the route and enforces
// authorization/quota before returning the handle.
func (s *Server) openRepo(w http.ResponseWriter, r *http.Request, action string) (*repository.Repository, bool) {
	vars := mux.Vars(r)
	project, repo := vars["project"], vars["repo"]
	if err := s.authorize(r, project, repo, action); err != nil {
		writeError(w, err)
		return nil, false
	}
	if err := s.checkQuota(r, project, repo); err != nil {
		writeError(w, err)
		return nil, false
	}
	rr, err := s.manager.Get(project, repo)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return rr, true
}

// queryRevision reads the "revision" query parameter, defaulting to HEAD
// (-1) when absent.
func queryRevision(r *http.Request) (plumbing.Revision, error) {
	raw := r.URL.Query().Get("revision")
	if raw == "" {
		return plumbing.Head, nil
	}
	return plumbing.ParseRevision(raw)
}

// normalizeRevision handles GET /projects/{p}/repos/{r}/revision/{rev}.
func (s *Server) normalizeRevision(w http.ResponseWriter, r *http.Request) {
	rr, ok := s.openRepo(w, r, "repo:read")
	if !ok {
		return
	}
	rev, err := plumbing.ParseRevision(mux.Vars(r)["rev"])
	if err != nil {
		writeError(w, dogmaerr.New(dogmaerr.RevisionNotFound, "%v", err))
		return
	}
	abs, err := normalize(rr, rev)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int32{"revision": int32(abs)})
}

func normalize(rr *repository.Repository, rev plumbing.Revision) (plumbing.Revision, error) {
	head := rr.Query().Head()
	abs, err := rev.Normalize(head)
	if err != nil {
		return 0, dogmaerr.New(dogmaerr.RevisionNotFound, "%v", err)
	}
	return abs, nil
}

// listFiles handles GET /projects/{p}/repos/{r}/list/{pattern}.
func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	rr, ok := s.openRepo(w, r, "repo:read")
	if !ok {
		return
	}
	rev, err := queryRevision(r)
	if err != nil {
		writeError(w, dogmaerr.New(dogmaerr.RevisionNotFound, "%v", err))
		return
	}
	pattern := "/" + strings.TrimPrefix(mux.Vars(r)["pattern"], "/")
	key := cache.Key{Operation: "listFiles", Revision: rev, Fingerprint: pattern}
	result, err := rr.Cache().GetOrBuild(r.Context(), key, func() (any, error) {
		return rr.Query().ListFiles(rev, wildmatch.Compile(pattern))
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// getFile handles GET /projects/{p}/repos/{r}/contents/{path}?jsonpath=. A
// request carrying If-None-Match is treated as spec.md §6's long-poll form:
// it parks on the watch manager until a revision past the given ETag
// changes the path, then serves the fresh content; a client that has
// already seen the result gets a 304 rather than parking forever, it just
// times out and is expected to retry.
func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	rr, ok := s.openRepo(w, r, "repo:read")
	if !ok {
		return
	}
	path := "/" + strings.TrimPrefix(mux.Vars(r)["path"], "/")
	exprs := r.URL.Query()["jsonpath"]
	q := query.Query{Path: path, Exprs: exprs}

	if etag := r.Header.Get("If-None-Match"); etag != "" {
		lastKnown, err := plumbing.ParseRevision(etag)
		if err != nil {
			writeError(w, dogmaerr.New(dogmaerr.RevisionNotFound, "malformed If-None-Match: %v", err))
			return
		}
		result, err := rr.Watch(r.Context(), lastKnown, wildmatch.Compile(path), s.watchDeadline(r))
		if err != nil {
			writeError(w, err)
			return
		}
		if result.Timeout {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		entry, err := rr.Query().GetFile(result.Revision, q)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("ETag", result.Revision.String())
		writeJSON(w, http.StatusOK, entry)
		return
	}

	rev, err := queryRevision(r)
	if err != nil {
		writeError(w, dogmaerr.New(dogmaerr.RevisionNotFound, "%v", err))
		return
	}
	key := cache.Key{Operation: "getFile", Revision: rev, Fingerprint: cache.Fingerprint(append([]string{path}, exprs...)...)}
	result, err := rr.Cache().GetOrBuild(r.Context(), key, func() (any, error) {
		return rr.Query().GetFile(rev, q)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("ETag", rev.String())
	writeJSON(w, http.StatusOK, result)
}

// merge handles GET /projects/{p}/repos/{r}/merge?path=&optional_path=&jsonpath=.
func (s *Server) merge(w http.ResponseWriter, r *http.Request) {
	rr, ok := s.openRepo(w, r, "repo:read")
	if !ok {
		return
	}
	rev, err := queryRevision(r)
	if err != nil {
		writeError(w, dogmaerr.New(dogmaerr.RevisionNotFound, "%v", err))
		return
	}
	q := r.URL.Query()
	var sources []query.MergeSource
	for _, p := range q["path"] {
		sources = append(sources, query.MergeSource{Path: p})
	}
	for _, p := range q["optional_path"] {
		sources = append(sources, query.MergeSource{Path: p, Optional: true})
	}
	mq := query.MergeQuery{Sources: sources, Exprs: q["jsonpath"]}

	fp := cache.Fingerprint(append(append(append([]string{}, q["path"]...), q["optional_path"]...), q["jsonpath"]...)...)
	key := cache.Key{Operation: "merge", Revision: rev, Fingerprint: fp}
	result, err := rr.Cache().GetOrBuild(r.Context(), key, func() (any, error) {
		return rr.Query().Merge(rev, mq)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// history handles GET /projects/{p}/repos/{r}/commits/{from}?to=&path=.
func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	rr, ok := s.openRepo(w, r, "repo:read")
	if !ok {
		return
	}
	from, err := plumbing.ParseRevision(mux.Vars(r)["from"])
	if err != nil {
		writeError(w, dogmaerr.New(dogmaerr.RevisionNotFound, "%v", err))
		return
	}
	to := plumbing.Head
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = plumbing.ParseRevision(raw); err != nil {
			writeError(w, dogmaerr.New(dogmaerr.RevisionNotFound, "%v", err))
			return
		}
	}
	pattern := r.URL.Query().Get("path")
	if pattern == "" {
		pattern = "/**"
	}

	key := cache.Key{Operation: "history", Revision: to, Fingerprint: cache.Fingerprint(from.String(), pattern)}
	result, err := rr.Cache().GetOrBuild(r.Context(), key, func() (any, error) {
		return rr.Query().History(from, to, wildmatch.Compile(pattern))
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// compare handles GET /projects/{p}/repos/{r}/compare?from=&to=&(path|pathPattern)=.
func (s *Server) compare(w http.ResponseWriter, r *http.Request) {
	rr, ok := s.openRepo(w, r, "repo:read")
	if !ok {
		return
	}
	q := r.URL.Query()
	from, err := plumbing.ParseRevision(q.Get("from"))
	if err != nil {
		writeError(w, dogmaerr.New(dogmaerr.RevisionNotFound, "%v", err))
		return
	}
	to, err := plumbing.ParseRevision(q.Get("to"))
	if err != nil {
		writeError(w, dogmaerr.New(dogmaerr.RevisionNotFound, "%v", err))
		return
	}

	if path := q.Get("path"); path != "" {
		key := cache.Key{Operation: "diff", Revision: to, Fingerprint: cache.Fingerprint(from.String(), path)}
		result, err := rr.Cache().GetOrBuild(r.Context(), key, func() (any, error) {
			return rr.Query().Diff(from, to, query.Identity(path))
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	pattern := q.Get("pathPattern")
	if pattern == "" {
		pattern = "/**"
	}
	key := cache.Key{Operation: "diffs", Revision: to, Fingerprint: cache.Fingerprint(from.String(), pattern)}
	result, err := rr.Cache().GetOrBuild(r.Context(), key, func() (any, error) {
		return rr.Query().Diffs(from, to, wildmatch.Compile(pattern))
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// preview handles POST /projects/{p}/repos/{r}/preview?revision=.
func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	rr, ok := s.openRepo(w, r, "repo:read")
	if !ok {
		return
	}
	rev, err := queryRevision(r)
	if err != nil {
		writeError(w, dogmaerr.New(dogmaerr.RevisionNotFound, "%v", err))
		return
	}
	var edits []commit.Change
	if err := json.NewDecoder(r.Body).Decode(&edits); err != nil {
		writeError(w, dogmaerr.New(dogmaerr.Unknown, "malformed request body: %v", err))
		return
	}
	result, err := rr.Query().PreviewDiffs(rev, edits)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type commitMessage struct {
	Summary string `json:"summary"`
	Detail  string `json:"detail"`
	Markup  string `json:"markup"`
}

type commitRequest struct {
	CommitMessage commitMessage   `json:"commitMessage"`
	Changes       []commit.Change `json:"changes"`
	Author        struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"author"`
}

// commit handles POST /projects/{p}/repos/{r}/contents?revision=.
func (s *Server) commit(w http.ResponseWriter, r *http.Request) {
	rr, ok := s.openRepo(w, r, "repo:write")
	if !ok {
		return
	}
	rev, err := queryRevision(r)
	if err != nil {
		writeError(w, dogmaerr.New(dogmaerr.RevisionNotFound, "%v", err))
		return
	}
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dogmaerr.New(dogmaerr.Unknown, "malformed request body: %v", err))
		return
	}
	author := object.Author{Name: req.Author.Name, Email: req.Author.Email}
	markup := object.MarkupFromString(req.CommitMessage.Markup)

	result, err := rr.Commit(rev, author, req.CommitMessage.Summary, req.CommitMessage.Detail, markup, req.Changes, false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"revision":       int32(result.Revision),
		"appliedChanges": len(result.AppliedChanges),
	})
}

// watchDeadline parses the "Prefer: wait=<seconds>" header spec.md §6 uses
// for long-poll requests, bounded by the server's configured max timeout.
func (s *Server) watchDeadline(r *http.Request) time.Time {
	wait := s.defaultWatchTimeout
	if prefer := r.Header.Get("Prefer"); prefer != "" {
		if idx := strings.Index(prefer, "wait="); idx >= 0 {
			raw := strings.TrimSpace(prefer[idx+len("wait="):])
			if end := strings.IndexByte(raw, ';'); end >= 0 {
				raw = raw[:end]
			}
			if seconds, err := strconv.Atoi(raw); err == nil {
				wait = time.Duration(seconds) * time.Second
			}
		}
	}
	if wait > s.maxWatchTimeout {
		wait = s.maxWatchTimeout
	}
	return time.Now().Add(wait)
}
