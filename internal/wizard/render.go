package wizard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/felipefinhane/poker-ranking/internal/alloc"
)

// ChoiceStyle hints how a transport should draw a choice.
type ChoiceStyle int

const (
	StyleDefault ChoiceStyle = iota
	StylePrimary
	StyleSuccess
	StyleDanger
)

// Choice is one selectable button of a prompt.
type Choice struct {
	Label    string
	Action   string
	Style    ChoiceStyle
	Disabled bool
}

// Prompt is a message with selectable options. Rows group choices that
// belong together; a transport may pack single-choice rows. When Edit is set
// the transport replaces that message instead of sending a new one.
type Prompt struct {
	Text string
	Rows [][]Choice
	Edit MessageRef
}

// Participant is a player that can be entered into a match.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// roster is the participant directory snapshot used by one step.
type roster struct {
	list  []Participant
	names map[string]string
}

func newRoster(list []Participant) roster {
	names := make(map[string]string, len(list))
	for _, p := range list {
		names[p.ID] = p.Name
	}
	return roster{list: list, names: names}
}

func (r roster) name(id string) string {
	if n, ok := r.names[id]; ok {
		return n
	}
	return "—"
}

func (r roster) has(id string) bool {
	_, ok := r.names[id]
	return ok
}

// byName orders ids the way the directory lists them; unknown ids go last.
func (r roster) byName(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.SliceStable(out, func(i, j int) bool {
		ni, oki := r.names[out[i]]
		nj, okj := r.names[out[j]]
		if oki != okj {
			return oki
		}
		if ni != nj {
			return ni < nj
		}
		return out[i] < out[j]
	})
	return out
}

func (e *Engine) renderPrompt(s *Session, r roster, note string) Prompt {
	var p Prompt
	switch s.State {
	case StateSelecting:
		p = selectionPrompt(s.Selecting, r)
	case StateOrdering:
		p = orderingPrompt(s.Ordering, r, e.opts.order)
	case StateAllocating:
		p = allocationPrompt(s.Allocating, r)
	case StateConfirming:
		p = confirmPrompt(s, r, e.opts.location)
	}
	if note != "" {
		p.Text = note + "\n\n" + p.Text
	}
	return p
}

func selectionPrompt(d *SelectingData, r roster) Prompt {
	rows := make([][]Choice, 0, len(r.list)+1)
	for _, p := range r.list {
		mark := "⬜"
		style := StyleDefault
		if d.Has(p.ID) {
			mark = "✅"
			style = StylePrimary
		}
		rows = append(rows, []Choice{{Label: mark + " " + p.Name, Action: ToggleAction(p.ID), Style: style}})
	}
	rows = append(rows, []Choice{{Label: "✅ Concluir seleção", Action: actionDoneSelect, Style: StyleSuccess}})

	text := fmt.Sprintf(
		"Selecione os participantes (toque para alternar). Depois clique em ✅ Concluir seleção.\nSelecionados: %d",
		len(d.Selected),
	)
	return Prompt{Text: text, Rows: rows}
}

func orderingPrompt(d *OrderingData, r roster, order Order) Prompt {
	pos := d.NextPosition(order)

	var b strings.Builder
	assigned := make([]int, 0, len(d.Positions))
	for p := range d.Positions {
		assigned = append(assigned, p)
	}
	sort.Ints(assigned)
	for _, p := range assigned {
		fmt.Fprintf(&b, "%dº  %s\n", p, r.name(d.Positions[p]))
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Quem ficou em **%dº**?", pos)

	var rows [][]Choice
	for _, id := range r.byName(d.Unassigned()) {
		rows = append(rows, []Choice{{Label: r.name(id), Action: PickAction(pos, id)}})
	}
	if len(d.Positions) > 0 {
		rows = append(rows, []Choice{{Label: "↺ Refazer ordem", Action: actionReorder, Style: StyleDanger}})
	}
	return Prompt{Text: b.String(), Rows: rows}
}

func allocationPrompt(d *AllocatingData, r roster) Prompt {
	n := len(d.Participants)
	remaining := alloc.RemainingPool(d.Credits, n)

	rows := make([][]Choice, 0, n+1)
	for _, pos := range sortedPositions(d.Positions) {
		id := d.Positions[pos]
		rows = append(rows, []Choice{
			{Label: "−", Action: CreditAction(id, -1)},
			{Label: fmt.Sprintf("%dº %s: %d", pos, r.name(id), d.Credits[id]), Action: labelAction(id), Disabled: true},
			{Label: "+", Action: CreditAction(id, 1)},
		})
	}
	rows = append(rows, []Choice{{Label: "✅ Concluir", Action: actionDoneCredits, Style: StyleSuccess}})

	text := fmt.Sprintf("Ajuste as *almas* (eliminações).\nAlmas disponíveis: %d de %d", remaining, n-1)
	return Prompt{Text: text, Rows: rows}
}

func confirmPrompt(s *Session, r roster, loc *time.Location) Prompt {
	d := s.Confirming
	var b strings.Builder
	fmt.Fprintf(&b, "Confira a partida:\nData: %s\n\n", s.OccurredAt.In(loc).Format("02/01/2006"))
	for _, row := range d.Rows() {
		fmt.Fprintf(&b, "%dº  %s  (almas: %d)\n", row.Position, r.name(row.ParticipantID), row.Credits)
	}
	b.WriteString("\nSalvar?")

	return Prompt{
		Text: b.String(),
		Rows: [][]Choice{
			{{Label: "✅ Confirmar", Action: actionConfirmSave, Style: StyleSuccess}},
			{{Label: "❌ Cancelar", Action: actionCancel, Style: StyleDanger}},
		},
	}
}

func sortedPositions(m map[int]string) []int {
	out := make([]int, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
