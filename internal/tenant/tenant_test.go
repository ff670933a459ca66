package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-host/lattice-gateway/internal/auth"
)

type fakeMembers struct {
	members map[[2]int]bool // (projectID, userID)
	err     error
}

func (f *fakeMembers) IsMember(_ context.Context, projectID, userID int) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.members[[2]int{projectID, userID}], nil
}

func TestResolveImplicitBindingWins(t *testing.T) {
	r := NewResolver(&fakeMembers{})

	id, err := r.Resolve(context.Background(),
		auth.Result{Authorized: true, Method: auth.MethodAPIKey, ProjectID: 3},
		"99") // explicit ID is ignored when a binding exists
	require.NoError(t, err)
	assert.Equal(t, 3, id)
}

func TestResolveExplicitWithMembership(t *testing.T) {
	r := NewResolver(&fakeMembers{members: map[[2]int]bool{{7, 10}: true}})
	caller := auth.Result{Authorized: true, Method: auth.MethodSession, UserID: 10}

	id, err := r.Resolve(context.Background(), caller, "7")
	require.NoError(t, err)
	assert.Equal(t, 7, id)
}

func TestResolveMembershipDenied(t *testing.T) {
	r := NewResolver(&fakeMembers{})
	caller := auth.Result{Authorized: true, Method: auth.MethodSession, UserID: 10}

	_, err := r.Resolve(context.Background(), caller, "7")
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestResolveMissingTenant(t *testing.T) {
	r := NewResolver(&fakeMembers{})
	caller := auth.Result{Authorized: true, Method: auth.MethodSession, UserID: 10}

	for _, explicit := range []string{"", "abc", "0", "-4", "1.5"} {
		_, err := r.Resolve(context.Background(), caller, explicit)
		assert.ErrorIs(t, err, ErrMissingTenant, "explicit %q", explicit)
	}
}

func TestResolveAdminSkipsMembership(t *testing.T) {
	r := NewResolver(&fakeMembers{})
	caller := auth.Result{Authorized: true, Method: auth.MethodSession, IsAdmin: true}

	id, err := r.Resolve(context.Background(), caller, "12")
	require.NoError(t, err)
	assert.Equal(t, 12, id)

	// But even an admin needs an explicit project.
	_, err = r.Resolve(context.Background(), caller, "")
	assert.ErrorIs(t, err, ErrMissingTenant)
}

func TestResolveMembershipLookupError(t *testing.T) {
	boom := errors.New("db down")
	r := NewResolver(&fakeMembers{err: boom})
	caller := auth.Result{Authorized: true, Method: auth.MethodSession, UserID: 10}

	_, err := r.Resolve(context.Background(), caller, "7")
	assert.ErrorIs(t, err, boom)
}
