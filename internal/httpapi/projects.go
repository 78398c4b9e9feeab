// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dogmahq/dogma/dogmaerr"
	"github.com/dogmahq/dogma/modules/dogma/object"
)

type createProjectRequest struct {
	Name string `json:"name"`
}

// createProject handles POST /projects.
func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dogmaerr.New(dogmaerr.Unknown, "malformed request body: %v", err))
		return
	}
	if err := s.authorize(r, req.Name, "", "project:create"); err != nil {
		writeError(w, err)
		return
	}
	if err := s.manager.CreateProject(req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": req.Name})
}

// deleteProject handles DELETE /projects/{p}.
func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	project := mux.Vars(r)["project"]
	if err := s.authorize(r, project, "", "project:delete"); err != nil {
		writeError(w, err)
		return
	}
	if err := s.manager.RemoveProject(project); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// jsonPatchOp is one element of the JSON Patch body spec.md §6 uses for
// project/repository unremove.
type jsonPatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value string `json:"value"`
}

// patchProject handles PATCH /projects/{p}. The only recognized patch is
// replacing /status with "active", which reverses a prior DELETE.
func (s *Server) patchProject(w http.ResponseWriter, r *http.Request) {
	project := mux.Vars(r)["project"]
	if err := s.authorize(r, project, "", "project:update"); err != nil {
		writeError(w, err)
		return
	}
	var ops []jsonPatchOp
	if err := json.NewDecoder(r.Body).Decode(&ops); err != nil {
		writeError(w, dogmaerr.New(dogmaerr.Unknown, "malformed request body: %v", err))
		return
	}
	if !isUnremovePatch(ops) {
		writeError(w, dogmaerr.New(dogmaerr.Unknown, "unsupported patch operation"))
		return
	}
	if err := s.manager.UnremoveProject(project); err != nil {
		writeError(w, err)
		return
	}
	state, err := s.manager.ProjectState(project)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": project, "status": string(state)})
}

func isUnremovePatch(ops []jsonPatchOp) bool {
	for _, op := range ops {
		if op.Op == "replace" && op.Path == "/status" && op.Value == "active" {
			return true
		}
	}
	return false
}

// listRepos handles GET /projects/{p}/repos.
func (s *Server) listRepos(w http.ResponseWriter, r *http.Request) {
	project := mux.Vars(r)["project"]
	if err := s.authorize(r, project, "", "repo:list"); err != nil {
		writeError(w, err)
		return
	}
	names, err := s.manager.List(project)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

type createRepoRequest struct {
	Name      string `json:"name"`
	Encrypted bool   `json:"encrypted"`
	Author    struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"author"`
}

// createRepo handles POST /projects/{p}/repos.
func (s *Server) createRepo(w http.ResponseWriter, r *http.Request) {
	project := mux.Vars(r)["project"]
	var req createRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dogmaerr.New(dogmaerr.Unknown, "malformed request body: %v", err))
		return
	}
	if err := s.authorize(r, project, req.Name, "repo:create"); err != nil {
		writeError(w, err)
		return
	}
	author := object.Author{Name: req.Author.Name, Email: req.Author.Email}
	repo, err := s.manager.Create(project, req.Name, author, req.Encrypted)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"project": project, "name": repo.Name})
}

// deleteRepo handles DELETE /projects/{p}/repos/{r}.
func (s *Server) deleteRepo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	project, repo := vars["project"], vars["repo"]
	if err := s.authorize(r, project, repo, "repo:delete"); err != nil {
		writeError(w, err)
		return
	}
	if err := s.manager.Remove(project, repo); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// patchRepo handles PATCH /projects/{p}/repos/{r}, the repository-level
// counterpart of patchProject.
func (s *Server) patchRepo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	project, repo := vars["project"], vars["repo"]
	if err := s.authorize(r, project, repo, "repo:update"); err != nil {
		writeError(w, err)
		return
	}
	var ops []jsonPatchOp
	if err := json.NewDecoder(r.Body).Decode(&ops); err != nil {
		writeError(w, dogmaerr.New(dogmaerr.Unknown, "malformed request body: %v", err))
		return
	}
	if !isUnremovePatch(ops) {
		writeError(w, dogmaerr.New(dogmaerr.Unknown, "unsupported patch operation"))
		return
	}
	if err := s.manager.Unremove(project, repo); err != nil {
		writeError(w, err)
		return
	}
	rr, err := s.manager.Get(project, repo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": repo, "status": string(rr.State())})
}
