package bot

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"github.com/felipefinhane/poker-ranking/internal/wizard"
)

const (
	maxButtonsPerRow = 5
	maxRowsPerMsg    = 5
	maxLabelLen      = 80
)

// interactionClient is the part of the Discord REST API a responder uses.
type interactionClient interface {
	Respond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	Followup(i *discordgo.Interaction, params *discordgo.WebhookParams) error
}

type sessionClient struct {
	s *discordgo.Session
}

func (c sessionClient) Respond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	return c.s.InteractionRespond(i, resp)
}

func (c sessionClient) Followup(i *discordgo.Interaction, params *discordgo.WebhookParams) error {
	_, err := c.s.FollowupMessageCreate(i, true, params)
	return err
}

var errCannotClear = errors.New("only the pressed message can be cleared before the interaction is answered")

// interactionResponder renders wizard output for a single interaction. The
// first effect answers the interaction; everything after it is a follow-up.
type interactionResponder struct {
	client interactionClient
	i      *discordgo.Interaction
	acked  bool
}

func newResponder(client interactionClient, i *discordgo.Interaction) *interactionResponder {
	return &interactionResponder{client: client, i: i}
}

// pressed returns the message whose button triggered the interaction.
func (r *interactionResponder) pressed() wizard.MessageRef {
	if r.i.Type != discordgo.InteractionMessageComponent || r.i.Message == nil {
		return wizard.MessageRef{}
	}
	return wizard.MessageRef{ChannelID: r.i.ChannelID, MessageID: r.i.Message.ID}
}

func (r *interactionResponder) Prompt(_ context.Context, p wizard.Prompt) error {
	chunks := packRows(p.Rows)
	if len(chunks) == 0 {
		chunks = [][]discordgo.MessageComponent{nil}
	}

	inPlace := !r.acked && !p.Edit.IsZero() && p.Edit == r.pressed()
	if inPlace && len(chunks) > 1 {
		// A prompt spanning several messages is re-sent whole.
		if err := r.respond(discordgo.InteractionResponseUpdateMessage, r.i.Message.Content, []discordgo.MessageComponent{}); err != nil {
			return err
		}
		inPlace = false
	}

	for n, comps := range chunks {
		text := p.Text
		if n > 0 {
			text = "…"
		}
		if comps == nil {
			comps = []discordgo.MessageComponent{}
		}

		var err error
		switch {
		case n == 0 && inPlace:
			err = r.respond(discordgo.InteractionResponseUpdateMessage, text, comps)
		case !r.acked:
			err = r.respond(discordgo.InteractionResponseChannelMessageWithSource, text, comps)
		default:
			err = r.client.Followup(r.i, &discordgo.WebhookParams{Content: text, Components: comps})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *interactionResponder) Message(_ context.Context, text string) error {
	if !r.acked {
		return r.respond(discordgo.InteractionResponseChannelMessageWithSource, text, nil)
	}
	return r.client.Followup(r.i, &discordgo.WebhookParams{Content: text})
}

// ClearSelectable strips the buttons from the pressed message, keeping its text.
func (r *interactionResponder) ClearSelectable(_ context.Context, ref wizard.MessageRef) error {
	if r.acked || ref != r.pressed() {
		return errCannotClear
	}
	return r.respond(discordgo.InteractionResponseUpdateMessage, r.i.Message.Content, []discordgo.MessageComponent{})
}

func (r *interactionResponder) respond(typ discordgo.InteractionResponseType, text string, comps []discordgo.MessageComponent) error {
	err := r.client.Respond(r.i, &discordgo.InteractionResponse{
		Type: typ,
		Data: &discordgo.InteractionResponseData{
			Content:    text,
			Components: comps,
		},
	})
	if err == nil {
		r.acked = true
	}
	return err
}

// packRows turns prompt rows into action rows grouped per message. Runs of
// single-option rows share action rows; wider rows keep their own.
func packRows(rows [][]wizard.Choice) [][]discordgo.MessageComponent {
	var actionRows []discordgo.ActionsRow
	var pending []discordgo.MessageComponent

	flush := func() {
		if len(pending) > 0 {
			actionRows = append(actionRows, discordgo.ActionsRow{Components: pending})
			pending = nil
		}
	}

	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if len(row) == 1 {
			pending = append(pending, button(row[0]))
			if len(pending) == maxButtonsPerRow {
				flush()
			}
			continue
		}
		flush()
		for start := 0; start < len(row); start += maxButtonsPerRow {
			end := start + maxButtonsPerRow
			if end > len(row) {
				end = len(row)
			}
			var comps []discordgo.MessageComponent
			for _, opt := range row[start:end] {
				comps = append(comps, button(opt))
			}
			actionRows = append(actionRows, discordgo.ActionsRow{Components: comps})
		}
	}
	flush()

	var out [][]discordgo.MessageComponent
	for start := 0; start < len(actionRows); start += maxRowsPerMsg {
		end := start + maxRowsPerMsg
		if end > len(actionRows) {
			end = len(actionRows)
		}
		msg := make([]discordgo.MessageComponent, 0, end-start)
		for _, ar := range actionRows[start:end] {
			msg = append(msg, ar)
		}
		out = append(out, msg)
	}
	return out
}

func button(opt wizard.Choice) discordgo.Button {
	label := opt.Label
	if r := []rune(label); len(r) > maxLabelLen {
		label = string(r[:maxLabelLen-1]) + "…"
	}
	return discordgo.Button{
		Label:    label,
		Style:    buttonStyle(opt.Style),
		CustomID: opt.Action,
		Disabled: opt.Disabled,
	}
}

func buttonStyle(s wizard.ChoiceStyle) discordgo.ButtonStyle {
	switch s {
	case wizard.StylePrimary:
		return discordgo.PrimaryButton
	case wizard.StyleSuccess:
		return discordgo.SuccessButton
	case wizard.StyleDanger:
		return discordgo.DangerButton
	default:
		return discordgo.SecondaryButton
	}
}
