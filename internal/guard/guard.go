package guard

import (
	"context"
	"fmt"
	"strings"
)

// ScopeKind tells whether a conversation is shared or one-to-one.
type ScopeKind int

const (
	ScopePrivate ScopeKind = iota
	ScopeGroup
)

// Scope identifies the conversation an action happens in.
type Scope struct {
	ContextID string
	Kind      ScopeKind
}

// RoleChecker asks the transport whether actor holds an elevated role in a
// group conversation.
type RoleChecker interface {
	HasElevatedRole(ctx context.Context, contextID, actorID string) (bool, error)
}

// AllowList reports whether actor may enter results from a private conversation.
type AllowList interface {
	IsAllowed(ctx context.Context, actorID string) (bool, error)
}

// TournamentAdmins reports whether actor administers a given tournament.
type TournamentAdmins interface {
	IsTournamentAdmin(ctx context.Context, tournamentID, actorID string) (bool, error)
}

type Guard struct {
	roles  RoleChecker
	allow  AllowList
	admins TournamentAdmins
}

func New(roles RoleChecker, allow AllowList, admins TournamentAdmins) *Guard {
	return &Guard{roles: roles, allow: allow, admins: admins}
}

// CanStartEntry decides whether actor may open a match-entry session in scope.
// It has no side effects.
func (g *Guard) CanStartEntry(ctx context.Context, actorID string, scope Scope, tournamentID string) (bool, error) {
	if actorID == "" {
		return false, nil
	}

	if scope.Kind == ScopeGroup {
		if g.roles == nil {
			return false, nil
		}
		ok, err := g.roles.HasElevatedRole(ctx, scope.ContextID, actorID)
		if err != nil {
			return false, fmt.Errorf("failed to check role: %w", err)
		}
		return ok, nil
	}

	if g.allow != nil {
		ok, err := g.allow.IsAllowed(ctx, actorID)
		if err != nil {
			return false, fmt.Errorf("failed to check allow-list: %w", err)
		}
		if ok {
			return true, nil
		}
	}

	if tournamentID != "" && g.admins != nil {
		ok, err := g.admins.IsTournamentAdmin(ctx, tournamentID, actorID)
		if err != nil {
			return false, fmt.Errorf("failed to check tournament admins: %w", err)
		}
		return ok, nil
	}

	return false, nil
}

// StaticAllowList is a fixed set of actor IDs, usually loaded from config.
type StaticAllowList map[string]struct{}

func NewStaticAllowList(ids []string) StaticAllowList {
	out := make(StaticAllowList, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}

func (s StaticAllowList) IsAllowed(_ context.Context, actorID string) (bool, error) {
	_, ok := s[actorID]
	return ok, nil
}

// AnyAllowList grants when any member list grants. Lookups stop at the first
// match; an error from a list is returned only if no later list grants.
type AnyAllowList []AllowList

func (lists AnyAllowList) IsAllowed(ctx context.Context, actorID string) (bool, error) {
	var firstErr error
	for _, l := range lists {
		ok, err := l.IsAllowed(ctx, actorID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, firstErr
}
