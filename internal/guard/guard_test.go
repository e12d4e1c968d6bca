package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoles map[string]bool

func (f fakeRoles) HasElevatedRole(_ context.Context, contextID, actorID string) (bool, error) {
	return f[contextID+"/"+actorID], nil
}

type failingRoles struct{}

func (failingRoles) HasElevatedRole(context.Context, string, string) (bool, error) {
	return false, errors.New("discord unavailable")
}

type fakeAdmins map[string]bool

func (f fakeAdmins) IsTournamentAdmin(_ context.Context, tournamentID, actorID string) (bool, error) {
	return f[tournamentID+"/"+actorID], nil
}

func TestCanStartEntry(t *testing.T) {
	ctx := context.Background()
	g := New(
		fakeRoles{"chan-1/mod": true},
		NewStaticAllowList([]string{"alice", " bob "}),
		fakeAdmins{"t-1/carol": true},
	)

	tests := []struct {
		name       string
		actor      string
		scope      Scope
		tournament string
		want       bool
	}{
		{"group elevated", "mod", Scope{ContextID: "chan-1", Kind: ScopeGroup}, "", true},
		{"group plain member", "alice", Scope{ContextID: "chan-1", Kind: ScopeGroup}, "", false},
		{"group elevated elsewhere", "mod", Scope{ContextID: "chan-2", Kind: ScopeGroup}, "", false},
		{"private allow-listed", "alice", Scope{ContextID: "dm", Kind: ScopePrivate}, "", true},
		{"private allow-listed trimmed", "bob", Scope{ContextID: "dm", Kind: ScopePrivate}, "", true},
		{"private tournament admin", "carol", Scope{ContextID: "dm", Kind: ScopePrivate}, "t-1", true},
		{"private admin of other tournament", "carol", Scope{ContextID: "dm", Kind: ScopePrivate}, "t-2", false},
		{"private admin without tournament", "carol", Scope{ContextID: "dm", Kind: ScopePrivate}, "", false},
		{"private stranger", "mallory", Scope{ContextID: "dm", Kind: ScopePrivate}, "t-1", false},
		{"empty actor", "", Scope{ContextID: "dm", Kind: ScopePrivate}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.CanStartEntry(ctx, tt.actor, tt.scope, tt.tournament)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanStartEntryRoleError(t *testing.T) {
	g := New(failingRoles{}, nil, nil)
	ok, err := g.CanStartEntry(context.Background(), "mod", Scope{ContextID: "c", Kind: ScopeGroup}, "")
	require.Error(t, err)
	assert.False(t, ok)
}

type errAllowList struct{}

func (errAllowList) IsAllowed(context.Context, string) (bool, error) {
	return false, errors.New("db down")
}

func TestAnyAllowList(t *testing.T) {
	ctx := context.Background()

	ok, err := AnyAllowList{errAllowList{}, NewStaticAllowList([]string{"alice"})}.IsAllowed(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = AnyAllowList{errAllowList{}, NewStaticAllowList(nil)}.IsAllowed(ctx, "alice")
	require.Error(t, err)
	assert.False(t, ok)
}
