package wizard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/felipefinhane/poker-ranking/internal/alloc"
)

// State is the step a match-entry session is at. States only move forward.
type State string

const (
	StateSelecting  State = "selecting_participants"
	StateOrdering   State = "ordering_positions"
	StateAllocating State = "allocating_credits"
	StateConfirming State = "confirming"
)

// SelectingData is the payload while participants are being picked.
type SelectingData struct {
	Selected []string `json:"selected"`
}

// Toggle adds id when absent and removes it when present. Selected stays sorted.
func (d *SelectingData) Toggle(id string) {
	i := sort.SearchStrings(d.Selected, id)
	if i < len(d.Selected) && d.Selected[i] == id {
		d.Selected = append(d.Selected[:i], d.Selected[i+1:]...)
		return
	}
	d.Selected = append(d.Selected, "")
	copy(d.Selected[i+1:], d.Selected[i:])
	d.Selected[i] = id
}

func (d *SelectingData) Has(id string) bool {
	i := sort.SearchStrings(d.Selected, id)
	return i < len(d.Selected) && d.Selected[i] == id
}

// OrderingData is the payload while finishing positions are assigned.
// Participants is frozen.
type OrderingData struct {
	Participants []string       `json:"participants"`
	Positions    map[int]string `json:"positions"`
}

// NextPosition returns the position the next pick fills, or 0 once every
// position is taken.
func (d *OrderingData) NextPosition(order Order) int {
	n := len(d.Participants)
	if order == OrderDescending {
		for p := n; p >= 1; p-- {
			if _, ok := d.Positions[p]; !ok {
				return p
			}
		}
		return 0
	}
	for p := 1; p <= n; p++ {
		if _, ok := d.Positions[p]; !ok {
			return p
		}
	}
	return 0
}

func (d *OrderingData) isAssigned(id string) bool {
	for _, pid := range d.Positions {
		if pid == id {
			return true
		}
	}
	return false
}

// Unassigned returns the participants that have no position yet.
func (d *OrderingData) Unassigned() []string {
	var out []string
	for _, id := range d.Participants {
		if !d.isAssigned(id) {
			out = append(out, id)
		}
	}
	return out
}

// AllocatingData is the payload while elimination credits are adjusted.
// Positions is total over Participants.
type AllocatingData struct {
	Participants []string         `json:"participants"`
	Positions    map[int]string   `json:"positions"`
	Credits      alloc.Allocation `json:"credits"`
}

// ConfirmingData is the frozen result waiting for the final confirmation.
type ConfirmingData struct {
	Participants []string         `json:"participants"`
	Positions    map[int]string   `json:"positions"`
	Credits      alloc.Allocation `json:"credits"`

	// Committed is set when the match was stored but the session could not
	// be cleared. MatchID is the stored match, when the writer reported one.
	Committed bool   `json:"committed,omitempty"`
	MatchID   string `json:"match_id,omitempty"`
}

// Rows returns the match rows sorted ascending by position.
func (d *ConfirmingData) Rows() []alloc.Row {
	rows := make([]alloc.Row, 0, len(d.Positions))
	for pos, id := range d.Positions {
		rows = append(rows, alloc.Row{Position: pos, ParticipantID: id, Credits: d.Credits[id]})
	}
	alloc.SortRows(rows)
	return rows
}

// Session is one in-progress entry for a (context, actor) pair. Exactly one
// of the per-state payloads is set and it matches State.
type Session struct {
	ContextID    string    `json:"context_id"`
	ActorID      string    `json:"actor_id"`
	State        State     `json:"state"`
	TournamentID string    `json:"tournament_id"`
	OccurredAt   time.Time `json:"occurred_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Selecting  *SelectingData  `json:"selecting,omitempty"`
	Ordering   *OrderingData   `json:"ordering,omitempty"`
	Allocating *AllocatingData `json:"allocating,omitempty"`
	Confirming *ConfirmingData `json:"confirming,omitempty"`
}

// Validate checks that the payload matches the state.
func (s *Session) Validate() error {
	set := 0
	for _, ok := range []bool{s.Selecting != nil, s.Ordering != nil, s.Allocating != nil, s.Confirming != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("session %s/%s has %d payloads", s.ContextID, s.ActorID, set)
	}
	switch s.State {
	case StateSelecting:
		if s.Selecting != nil {
			return nil
		}
	case StateOrdering:
		if s.Ordering != nil {
			return nil
		}
	case StateAllocating:
		if s.Allocating != nil {
			return nil
		}
	case StateConfirming:
		if s.Confirming != nil {
			return nil
		}
	default:
		return fmt.Errorf("unknown state %q", s.State)
	}
	return fmt.Errorf("session %s/%s: payload does not match state %s", s.ContextID, s.ActorID, s.State)
}

// Clone returns a deep copy, so a transition can fail without touching the
// loaded session.
func (s *Session) Clone() *Session {
	c := *s
	if s.Selecting != nil {
		c.Selecting = &SelectingData{Selected: cloneStrings(s.Selecting.Selected)}
	}
	if s.Ordering != nil {
		c.Ordering = &OrderingData{
			Participants: cloneStrings(s.Ordering.Participants),
			Positions:    clonePositions(s.Ordering.Positions),
		}
	}
	if s.Allocating != nil {
		c.Allocating = &AllocatingData{
			Participants: cloneStrings(s.Allocating.Participants),
			Positions:    clonePositions(s.Allocating.Positions),
			Credits:      alloc.Clone(s.Allocating.Credits),
		}
	}
	if s.Confirming != nil {
		c.Confirming = &ConfirmingData{
			Participants: cloneStrings(s.Confirming.Participants),
			Positions:    clonePositions(s.Confirming.Positions),
			Credits:      alloc.Clone(s.Confirming.Credits),
			Committed:    s.Confirming.Committed,
			MatchID:      s.Confirming.MatchID,
		}
	}
	return &c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func clonePositions(in map[int]string) map[int]string {
	out := make(map[int]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Store persists at most one active session per (context, actor) pair.
// Load returns nil, nil when there is none. Save stamps UpdatedAt.
type Store interface {
	Load(ctx context.Context, contextID, actorID string) (*Session, error)
	Save(ctx context.Context, s *Session) (*Session, error)
	Clear(ctx context.Context, contextID, actorID string) error
}
