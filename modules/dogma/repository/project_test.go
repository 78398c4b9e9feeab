// SPDX-License-Identifier: Apache-2.0

package repository_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dogmahq/dogma/dogmaerr"
	"github.com/dogmahq/dogma/modules/dogma/repository"
)

func TestCreateProjectAndListProjects(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateProject("team-a"))
	require.NoError(t, m.CreateProject("team-b"))

	names, err := m.ListProjects()
	require.NoError(t, err)
	require.Equal(t, []string{"team-a", "team-b"}, names)
}

func TestCreateProjectRejectsDuplicate(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateProject("team-a"))
	err := m.CreateProject("team-a")
	require.Error(t, err)
	require.True(t, dogmaerr.Is(err, dogmaerr.ProjectExists))
}

func TestCreateRepositoryRequiresExistingProject(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create("no-such-project", "config", testAuthor(), false)
	require.Error(t, err)
	require.True(t, dogmaerr.Is(err, dogmaerr.ProjectNotFound))
}

func TestRemoveAndUnremoveProject(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateProject("team-a"))
	require.NoError(t, m.RemoveProject("team-a"))

	state, err := m.ProjectState("team-a")
	require.NoError(t, err)
	require.Equal(t, repository.Removed, state)

	require.NoError(t, m.UnremoveProject("team-a"))
	state, err = m.ProjectState("team-a")
	require.NoError(t, err)
	require.Equal(t, repository.Active, state)
}

func TestProjectStateUnknownProjectIsNotFound(t *testing.T) {
	m := newTestManager(t)
	_, err := m.ProjectState("nope")
	require.Error(t, err)
	require.True(t, dogmaerr.Is(err, dogmaerr.ProjectNotFound))
}
