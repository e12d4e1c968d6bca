package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/felipefinhane/poker-ranking/internal/commands"
	"github.com/felipefinhane/poker-ranking/internal/wizard"
	"go.uber.org/zap"
)

const handlerTimeout = 10 * time.Second

// Engine runs the match-entry wizard.
type Engine interface {
	Handle(ctx context.Context, ev wizard.Event, out wizard.Responder) wizard.Outcome
}

type Bot struct {
	session *discordgo.Session
	client  interactionClient
	engine  Engine
	env     *commands.Env
	log     *zap.Logger
}

func New(session *discordgo.Session, engine Engine, authz wizard.Authorizer, chats commands.ChatStore, frontendURL string, log *zap.Logger) *Bot {
	log = log.Named("bot")
	bot := &Bot{
		session: session,
		client:  sessionClient{s: session},
		engine:  engine,
		env: &commands.Env{
			Chats:       chats,
			Authz:       authz,
			FrontendURL: frontendURL,
			Log:         log,
		},
		log: log,
	}

	// Register event handlers
	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onInteractionCreate)

	// Guild state is needed to resolve channel permissions outside interactions.
	session.Identify.Intents = discordgo.IntentsGuilds

	return bot
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	b.log.Info("Discord bot is running")
	return nil
}

func (b *Bot) Stop() error {
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	b.log.Info("Connected", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))

	if err := b.registerCommands(s, event.User.ID); err != nil {
		b.log.Error("Failed to register application commands", zap.Error(err))
	}
}

// registerCommands replaces the global command set, so the commands work in
// every guild and in DMs.
func (b *Bot) registerCommands(s *discordgo.Session, appID string) error {
	cmds := commands.GetCommands()
	if _, err := s.ApplicationCommandBulkOverwrite(appID, "", cmds); err != nil {
		return err
	}
	b.log.Info("Registered application commands", zap.Int("count", len(cmds)))
	return nil
}
