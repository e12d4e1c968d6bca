package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/felipefinhane/poker-ranking/internal/db"
	"github.com/felipefinhane/poker-ranking/internal/wizard"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	msgSetUsage          = "Uso: /set_torneio <UUID-do-torneio>"
	msgTournamentUnknown = "Torneio não encontrado."
	msgSetForbidden      = "⛔ Você não tem permissão para alterar o torneio aqui."
	msgRetryLater        = "⚠️ Não foi possível concluir agora. Tente novamente em instantes."
	msgNoFrontend        = "Link público não configurado."
)

// ChatStore binds conversations to tournaments.
type ChatStore interface {
	ChatTournament(ctx context.Context, contextID string) (string, error)
	SetChatTournament(ctx context.Context, contextID, tournamentID string) error
}

// Env carries what the non-wizard commands need.
type Env struct {
	Chats       ChatStore
	Authz       wizard.Authorizer
	FrontendURL string
	Log         *zap.Logger
}

func HandleSetTournament(ctx context.Context, i *discordgo.InteractionCreate, env *Env) string {
	id := stringOption(i.ApplicationCommandData(), "id")
	if id == "" {
		return msgSetUsage
	}
	if _, err := uuid.Parse(id); err != nil {
		return msgSetUsage
	}

	actor := ActorID(i.Interaction)
	ok, err := env.Authz.CanStartEntry(ctx, actor, ScopeOf(i.Interaction), id)
	if err != nil {
		env.Log.Error("Failed to check permission",
			zap.String("actor_id", actor),
			zap.String("channel_id", i.ChannelID),
			zap.Error(err),
		)
		return msgRetryLater
	}
	if !ok {
		return msgSetForbidden
	}

	err = env.Chats.SetChatTournament(ctx, i.ChannelID, id)
	if errors.Is(err, db.ErrNotFound) {
		return msgTournamentUnknown
	}
	if err != nil {
		env.Log.Error("Failed to bind tournament",
			zap.String("channel_id", i.ChannelID),
			zap.String("tournament_id", id),
			zap.Error(err),
		)
		return msgRetryLater
	}

	env.Log.Info("Tournament bound",
		zap.String("channel_id", i.ChannelID),
		zap.String("tournament_id", id),
		zap.String("actor_id", actor),
	)
	return fmt.Sprintf("✅ Torneio definido: %s", id)
}

func HandleRanking(env *Env) string {
	if env.FrontendURL == "" {
		return msgNoFrontend
	}
	return fmt.Sprintf("🏆 Ranking: %s/", env.FrontendURL)
}

func HandleMatches(env *Env) string {
	if env.FrontendURL == "" {
		return msgNoFrontend
	}
	return fmt.Sprintf("🎲 Partidas: %s/matches", env.FrontendURL)
}

func HandleHelp(ctx context.Context, i *discordgo.InteractionCreate, env *Env) string {
	current := "(nenhum)"
	tid, err := env.Chats.ChatTournament(ctx, i.ChannelID)
	switch {
	case err != nil:
		env.Log.Warn("Failed to load chat tournament", zap.String("channel_id", i.ChannelID), zap.Error(err))
		current = "(indisponível)"
	case tid != "":
		current = tid
	}

	return "👋 Olá! Pronto para registrar partidas.\n" +
		"Torneio atual: " + current + "\n\n" +
		"Comandos:\n" +
		"/nova_partida – iniciar registro\n" +
		"/cancelar – cancelar registro em andamento\n" +
		"/set_torneio <UUID>\n" +
		"/ranking – link do ranking\n" +
		"/partidas – link das partidas"
}
