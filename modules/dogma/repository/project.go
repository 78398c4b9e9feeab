// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/dogmahq/dogma/dogmaerr"
)

const projectMetaFileName = ".project.json"

// projectMeta is a project's own small sidecar file, mirroring meta's shape
// one level up — spec.md §6 gives projects the same active/removed status a
// repository has ("PATCH /projects/{p} ... value: active" to unremove).
type projectMeta struct {
	Name  string `json:"name"`
	State State  `json:"state"`
}

func (m *Manager) projectDir(project string) string {
	return filepath.Join(m.root, project)
}

func (m *Manager) projectMetaPath(project string) string {
	return filepath.Join(m.projectDir(project), projectMetaFileName)
}

func readProjectMeta(dir string) (projectMeta, error) {
	var pm projectMeta
	data, err := os.ReadFile(filepath.Join(dir, projectMetaFileName))
	if err != nil {
		return pm, err
	}
	if err := json.Unmarshal(data, &pm); err != nil {
		return pm, dogmaerr.Wrap(dogmaerr.StorageException, err, "decode project metadata")
	}
	return pm, nil
}

func writeProjectMeta(dir string, pm projectMeta) error {
	data, err := json.MarshalIndent(pm, "", "  ")
	if err != nil {
		return dogmaerr.Wrap(dogmaerr.StorageException, err, "encode project metadata")
	}
	if err := os.WriteFile(filepath.Join(dir, projectMetaFileName), data, 0o644); err != nil {
		return dogmaerr.Wrap(dogmaerr.StorageException, err, "write project metadata")
	}
	return nil
}

// CreateProject allocates project's directory and marks it ACTIVE.
func (m *Manager) CreateProject(project string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := m.projectDir(project)
	if _, err := os.Stat(m.projectMetaPath(project)); err == nil {
		return dogmaerr.ProjectExistsErr(project)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return dogmaerr.Wrap(dogmaerr.StorageException, err, "create project directory")
	}
	return writeProjectMeta(dir, projectMeta{Name: project, State: Active})
}

// ProjectState returns project's current ACTIVE/REMOVED status.
func (m *Manager) ProjectState(project string) (State, error) {
	pm, err := readProjectMeta(m.projectDir(project))
	if err != nil {
		if os.IsNotExist(err) {
			return "", dogmaerr.ProjectNotFoundErr(project)
		}
		return "", err
	}
	return pm.State, nil
}

// RemoveProject flags project REMOVED. Its repositories are left exactly as
// they are — only new repository creation under it is expected to be
// rejected by a caller that checks ProjectState first, mirroring how
// Repository.Commit checks State() rather than this package silently
// cascading the removal into every child repository.
func (m *Manager) RemoveProject(project string) error {
	return m.setProjectState(project, Removed)
}

// UnremoveProject reverses RemoveProject.
func (m *Manager) UnremoveProject(project string) error {
	return m.setProjectState(project, Active)
}

func (m *Manager) setProjectState(project string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := m.projectDir(project)
	pm, err := readProjectMeta(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return dogmaerr.ProjectNotFoundErr(project)
		}
		return err
	}
	pm.State = state
	return writeProjectMeta(dir, pm)
}

// ListProjects returns every created project's name, in sorted order.
func (m *Manager) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dogmaerr.Wrap(dogmaerr.StorageException, err, "list projects")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(m.projectMetaPath(e.Name())); err != nil {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
