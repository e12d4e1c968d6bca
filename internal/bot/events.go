package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/felipefinhane/poker-ranking/internal/commands"
	"github.com/felipefinhane/poker-ranking/internal/wizard"
	"go.uber.org/zap"
)

const msgRetryLater = "⚠️ Não foi possível concluir agora. Tente novamente em instantes."

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.handleInteraction(i)
}

func (b *Bot) handleInteraction(i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	if i.Member != nil && i.Member.User != nil {
		ctx = withPermissions(ctx, i.ChannelID, i.Member.User.ID, i.Member.Permissions)
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleApplicationCommand(ctx, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(ctx, i)
	}
}

func (b *Bot) handleApplicationCommand(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()

	switch data.Name {
	case commands.NewMatch:
		b.startEntry(ctx, i)
	case commands.Cancel:
		b.runWizard(ctx, i, wizard.Event{Kind: wizard.EventCancel})
	case commands.SetTournament:
		b.reply(i, commands.HandleSetTournament(ctx, i, b.env))
	case commands.Ranking:
		b.reply(i, commands.HandleRanking(b.env))
	case commands.Matches:
		b.reply(i, commands.HandleMatches(b.env))
	case commands.Help:
		b.reply(i, commands.HandleHelp(ctx, i, b.env))
	default:
		b.log.Warn("Unknown command", zap.String("name", data.Name))
	}
}

func (b *Bot) startEntry(ctx context.Context, i *discordgo.InteractionCreate) {
	tid, err := b.env.Chats.ChatTournament(ctx, i.ChannelID)
	if err != nil {
		b.log.Error("Failed to load chat tournament", zap.String("channel_id", i.ChannelID), zap.Error(err))
		b.reply(i, msgRetryLater)
		return
	}
	b.runWizard(ctx, i, wizard.Event{
		Kind:         wizard.EventStartEntry,
		Scope:        commands.ScopeOf(i.Interaction),
		TournamentID: tid,
	})
}

func (b *Bot) handleComponent(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()

	if wizard.IsLabelAction(data.CustomID) {
		b.ack(i)
		return
	}

	ev := wizard.ParseAction(data.CustomID)
	if i.Message != nil {
		ev.Message = wizard.MessageRef{ChannelID: i.ChannelID, MessageID: i.Message.ID}
	}
	b.runWizard(ctx, i, ev)
}

// runWizard hands ev to the engine on behalf of the interaction's user.
func (b *Bot) runWizard(ctx context.Context, i *discordgo.InteractionCreate, ev wizard.Event) {
	ev.ContextID = i.ChannelID
	ev.ActorID = commands.ActorID(i.Interaction)

	out := newResponder(b.client, i.Interaction)
	oc := b.engine.Handle(ctx, ev, out)

	b.log.Debug("Wizard event handled",
		zap.String("event", ev.Kind.String()),
		zap.String("channel_id", ev.ContextID),
		zap.String("actor_id", ev.ActorID),
		zap.String("state", string(oc.State)),
		zap.Error(oc.Err),
	)

	// Discord marks unanswered interactions as failed.
	if !out.acked && i.Type == discordgo.InteractionMessageComponent {
		b.ack(i)
	}
}

func (b *Bot) reply(i *discordgo.InteractionCreate, content string) {
	err := b.client.Respond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	})
	if err != nil {
		b.log.Warn("Failed to respond to interaction", zap.String("interaction_id", i.ID), zap.Error(err))
	}
}

func (b *Bot) ack(i *discordgo.InteractionCreate) {
	err := b.client.Respond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		b.log.Warn("Failed to acknowledge interaction", zap.String("interaction_id", i.ID), zap.Error(err))
	}
}
