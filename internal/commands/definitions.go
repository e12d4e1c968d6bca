package commands

import "github.com/bwmarrin/discordgo"

const (
	NewMatch      = "nova_partida"
	Cancel        = "cancelar"
	SetTournament = "set_torneio"
	Ranking       = "ranking"
	Matches       = "partidas"
	Help          = "ajuda"
)

func GetCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:         NewMatch,
			Description:  "Inicia o registro de uma partida",
			DMPermission: boolPtr(true),
		},
		{
			Name:         Cancel,
			Description:  "Cancela o registro em andamento",
			DMPermission: boolPtr(true),
		},
		{
			Name:         SetTournament,
			Description:  "Define o torneio desta conversa",
			DMPermission: boolPtr(true),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "id",
					Description: "UUID do torneio",
					Required:    true,
				},
			},
		},
		{
			Name:         Ranking,
			Description:  "Link do ranking",
			DMPermission: boolPtr(true),
		},
		{
			Name:         Matches,
			Description:  "Link das partidas",
			DMPermission: boolPtr(true),
		},
		{
			Name:         Help,
			Description:  "Mostra o torneio atual e os comandos",
			DMPermission: boolPtr(true),
		},
	}
}

func boolPtr(b bool) *bool {
	return &b
}
