package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const elevatedPermissions = discordgo.PermissionAdministrator | discordgo.PermissionManageServer

type permissionsKey struct{}

// interactionPermissions are the permissions Discord resolved for the member
// that triggered an interaction, in the channel it was triggered in.
type interactionPermissions struct {
	channelID string
	userID    string
	perms     int64
}

func withPermissions(ctx context.Context, channelID, userID string, perms int64) context.Context {
	return context.WithValue(ctx, permissionsKey{}, interactionPermissions{channelID: channelID, userID: userID, perms: perms})
}

func permissionsFrom(ctx context.Context, channelID, userID string) (int64, bool) {
	p, ok := ctx.Value(permissionsKey{}).(interactionPermissions)
	if !ok || p.channelID != channelID || p.userID != userID {
		return 0, false
	}
	return p.perms, true
}

var errNoState = errors.New("no discord session to resolve permissions")

// RoleChecker treats Administrator and Manage Server as elevated roles.
type RoleChecker struct {
	session *discordgo.Session
}

func NewRoleChecker(session *discordgo.Session) *RoleChecker {
	return &RoleChecker{session: session}
}

func (r *RoleChecker) HasElevatedRole(ctx context.Context, channelID, userID string) (bool, error) {
	perms, ok := permissionsFrom(ctx, channelID, userID)
	if !ok {
		if r.session == nil {
			return false, errNoState
		}
		p, err := r.session.UserChannelPermissions(userID, channelID)
		if err != nil {
			return false, fmt.Errorf("failed to resolve channel permissions: %w", err)
		}
		perms = p
	}
	return perms&elevatedPermissions != 0, nil
}
