package commands

import (
	"github.com/bwmarrin/discordgo"
	"github.com/felipefinhane/poker-ranking/internal/guard"
)

// ActorID returns the invoking user, whether the interaction came from a
// guild channel or a DM.
func ActorID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// ScopeOf maps the interaction's channel to a guard scope. Guild channels are
// group conversations, DMs are private.
func ScopeOf(i *discordgo.Interaction) guard.Scope {
	kind := guard.ScopePrivate
	if i.GuildID != "" {
		kind = guard.ScopeGroup
	}
	return guard.Scope{ContextID: i.ChannelID, Kind: kind}
}

func stringOption(data discordgo.ApplicationCommandInteractionData, name string) string {
	for _, opt := range data.Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}
