package core

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"repohub-backend-go/internal/access"
	"repohub-backend-go/internal/models"
)

func ptr[T any](v T) *T { return &v }

func TestCreateRepository(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	repo, err := env.repos.CreateRepository(ctx, owner, models.CreateRepositoryRequest{
		Name: "  My Demo Repo ", Description: "first",
	})
	require.NoError(t, err)
	assert.Equal(t, "My Demo Repo", repo.Name)
	assert.Equal(t, "my-demo-repo", repo.Slug)
	assert.Equal(t, "main", repo.DefaultBranch)
	assert.Equal(t, access.Owner, repo.Permission)
	assert.Len(t, repo.InviteCode, inviteCodeLength)
	assert.NotNil(t, repo.Collaborators)

	_, err = env.repos.CreateRepository(ctx, owner, models.CreateRepositoryRequest{Name: "my demo repo"})
	require.ErrorIs(t, err, ErrRepoExists)
	require.ErrorIs(t, err, ErrConflict)

	_, err = env.repos.CreateRepository(ctx, owner, models.CreateRepositoryRequest{Name: "   "})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.repos.CreateRepository(ctx, access.Requester{}, models.CreateRepositoryRequest{Name: "x"})
	require.ErrorIs(t, err, ErrUnauthenticated)

	// Another owner may reuse the name.
	_, err = env.repos.CreateRepository(ctx, outsider, models.CreateRepositoryRequest{Name: "My Demo Repo"})
	require.NoError(t, err)

	assert.Equal(t, []string{AuditRepoCreated, AuditRepoCreated}, env.auditTypes(t))
}

func TestConcurrentCreateSameName(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	const creators = 8
	results := make(chan error, creators)
	var g errgroup.Group
	for i := 0; i < creators; i++ {
		g.Go(func() error {
			_, err := env.repos.CreateRepository(ctx, owner, models.CreateRepositoryRequest{Name: "race"})
			results <- err
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(results)

	created := 0
	for err := range results {
		if err == nil {
			created++
			continue
		}
		require.ErrorIs(t, err, ErrRepoExists)
	}
	assert.Equal(t, 1, created)
}

func TestConcurrentMetadataUpdates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	repo := env.createRepo(t, "demo", false)

	submitted := map[string]bool{}
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		desc := fmt.Sprintf("description %d", i)
		submitted[desc] = true
		g.Go(func() error {
			_, err := env.repos.UpdateRepository(ctx, owner, repo.ID, models.UpdateRepositoryRequest{
				Name:        ptr("name " + desc),
				Description: ptr(desc),
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	got, err := env.repos.GetRepository(ctx, owner, repo.ID)
	require.NoError(t, err)
	assert.True(t, submitted[got.Description], got.Description)
	// Name and description always come from the same update.
	assert.Equal(t, "name "+got.Description, got.Name)
	assert.Equal(t, "demo", got.Slug)
}

func TestUpdateRepository(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	repo := env.createRepo(t, "demo", false)

	updated, err := env.repos.UpdateRepository(ctx, owner, repo.ID, models.UpdateRepositoryRequest{
		Private: ptr(true), RotateInviteCode: true,
	})
	require.NoError(t, err)
	assert.True(t, updated.Private)
	assert.NotEqual(t, repo.InviteCode, updated.InviteCode)

	stored, err := env.repos.GetRepository(ctx, owner, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.InviteCode, stored.InviteCode, "rotated code must be persisted")

	_, err = env.repos.UpdateRepository(ctx, owner, repo.ID, models.UpdateRepositoryRequest{Name: ptr("")})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.repos.UpdateRepository(ctx, outsider, repo.ID, models.UpdateRepositoryRequest{Private: ptr(false)})
	require.ErrorIs(t, err, ErrInsufficientPermission)
}

func TestDeleteRepository(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	repo := env.createRepo(t, "demo", false)

	require.ErrorIs(t, env.repos.DeleteRepository(ctx, outsider, repo.ID), ErrInsufficientPermission)
	require.NoError(t, env.repos.DeleteRepository(ctx, owner, repo.ID))

	_, err := env.repos.GetRepository(ctx, owner, repo.ID)
	require.ErrorIs(t, err, ErrRepoNotFound)
	_, err = os.Stat(env.layout.RepoDir(owner.UserID, "demo"))
	assert.True(t, os.IsNotExist(err))

	// The name is free again.
	env.createRepo(t, "demo", false)
	assert.Equal(t, []string{AuditRepoCreated, AuditRepoDeleted, AuditRepoCreated}, env.auditTypes(t))
}

func TestListRepositories(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createRepo(t, "alpha", false)
	env.createRepo(t, "beta", true)
	env.createRepo(t, "alphabet", false)
	_, err := env.repos.CreateRepository(ctx, outsider, models.CreateRepositoryRequest{Name: "bobs"})
	require.NoError(t, err)

	anon, err := env.repos.ListRepositories(ctx, models.ListRepositoriesParams{})
	require.NoError(t, err)
	assert.Equal(t, 3, anon.Total)
	for _, item := range anon.Items {
		assert.False(t, item.Private)
		assert.Empty(t, item.InviteCode)
		assert.Equal(t, access.Read, item.Permission)
	}

	mine, err := env.repos.ListRepositories(ctx, models.ListRepositoriesParams{OwnerID: owner.UserID, ViewerID: owner.UserID})
	require.NoError(t, err)
	assert.Equal(t, 3, mine.Total)

	search, err := env.repos.ListRepositories(ctx, models.ListRepositoriesParams{Search: "ALPHA", ViewerID: owner.UserID})
	require.NoError(t, err)
	assert.Equal(t, 2, search.Total)

	paged, err := env.repos.ListRepositories(ctx, models.ListRepositoriesParams{ViewerID: owner.UserID, Page: 2, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, paged.Total)
	assert.Len(t, paged.Items, 1)

	beyond, err := env.repos.ListRepositories(ctx, models.ListRepositoriesParams{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)
	assert.NotNil(t, beyond.Items)
}

func TestCollaborators(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	repo := env.createRepo(t, "team", true)

	_, err := env.repos.GetRepository(ctx, outsider, repo.ID)
	require.ErrorIs(t, err, ErrInsufficientPermission)

	_, err = env.repos.AddCollaborator(ctx, outsider, repo.ID, models.CollaboratorRequest{InviteCode: "wrong"})
	require.ErrorIs(t, err, ErrInvalidInviteCode)

	joined, err := env.repos.AddCollaborator(ctx, outsider, repo.ID, models.CollaboratorRequest{InviteCode: repo.InviteCode})
	require.NoError(t, err)
	assert.Equal(t, access.Write, joined.Permission)
	assert.Empty(t, joined.InviteCode)

	_, err = env.git.WriteFile(ctx, outsider, repo.ID, models.WriteFileRequest{
		Path: "bob.txt", Content: "hi", Branch: "main", Message: "from bob",
	})
	require.NoError(t, err)

	_, err = env.repos.AddCollaborator(ctx, outsider, repo.ID, models.CollaboratorRequest{UserID: "user-3"})
	require.ErrorIs(t, err, ErrInsufficientPermission)

	_, err = env.repos.AddCollaborator(ctx, owner, repo.ID, models.CollaboratorRequest{UserID: "user-3"})
	require.ErrorIs(t, err, ErrUserNotFound)

	_, _, err = env.users.GetOrCreate(ctx, "user-3", "carol@example.com", "Carol")
	require.NoError(t, err)
	added, err := env.repos.AddCollaborator(ctx, owner, repo.ID, models.CollaboratorRequest{UserID: "user-3"})
	require.NoError(t, err)
	require.Len(t, added.Collaborators, 2)
	c, ok := added.Collaborator("user-3")
	require.True(t, ok)
	assert.Equal(t, models.RoleRead, c.Role)

	// Adding again is a no-op.
	added, err = env.repos.AddCollaborator(ctx, owner, repo.ID, models.CollaboratorRequest{UserID: "user-3", Role: models.RoleWrite})
	require.NoError(t, err)
	assert.Len(t, added.Collaborators, 2)

	_, err = env.repos.AddCollaborator(ctx, owner, repo.ID, models.CollaboratorRequest{UserID: "user-3", Role: "admin"})
	require.ErrorIs(t, err, ErrValidation)

	removed, err := env.repos.RemoveCollaborator(ctx, owner, repo.ID, outsider.UserID)
	require.NoError(t, err)
	assert.Len(t, removed.Collaborators, 1)

	_, err = env.repos.RemoveCollaborator(ctx, owner, repo.ID, outsider.UserID)
	require.ErrorIs(t, err, ErrCollaboratorNotFound)

	_, err = env.repos.GetRepository(ctx, outsider, repo.ID)
	require.ErrorIs(t, err, ErrInsufficientPermission)

	assert.Equal(t, []string{
		AuditRepoCreated,
		AuditCollaboratorJoined,
		AuditFileWrite,
		AuditCollaboratorAdded,
		AuditCollaboratorAdded,
		AuditCollaboratorRemoved,
	}, env.auditTypes(t))
}

func TestCheckAccess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	repo := env.createRepo(t, "demo", false)

	d, err := env.repos.CheckAccess(ctx, access.Requester{}, repo.ID, access.Read, false)
	require.NoError(t, err)
	assert.Equal(t, access.Read, d.Effective)
	assert.Nil(t, d.Actor)

	_, err = env.repos.CheckAccess(ctx, access.Requester{}, repo.ID, access.Write, false)
	require.ErrorIs(t, err, ErrInsufficientPermission)

	_, err = env.repos.CheckAccess(ctx, access.Requester{}, repo.ID, access.Read, true)
	require.ErrorIs(t, err, ErrUnauthenticated)

	d, err = env.repos.CheckAccess(ctx, owner, repo.ID, access.Owner, true)
	require.NoError(t, err)
	assert.Equal(t, owner.UserID, d.Actor.AuditKey())

	_, err = env.repos.CheckAccess(ctx, owner, "missing", access.Read, false)
	require.ErrorIs(t, err, ErrRepoNotFound)
}
