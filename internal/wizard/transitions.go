package wizard

import (
	"errors"
	"fmt"

	"github.com/felipefinhane/poker-ranking/internal/alloc"
	"go.uber.org/zap"
)

// transition mutates s, a copy of the loaded session, and reports the result.
type transition func(e *Engine, st *stepCtx, s *Session) Outcome

// transitions lists which events each state accepts. Cancel is accepted in
// every state and handled before the table is consulted.
var transitions = map[State]map[EventKind]transition{
	StateSelecting: {
		EventToggle:           toggleParticipant,
		EventConfirmSelection: confirmSelection,
	},
	StateOrdering: {
		EventPickPosition:  pickPosition,
		EventResetOrdering: resetOrdering,
	},
	StateAllocating: {
		EventAdjustCredit:      adjustCredit,
		EventConfirmAllocation: confirmAllocation,
	},
	StateConfirming: {
		EventConfirmSave: confirmSave,
	},
}

func toggleParticipant(e *Engine, st *stepCtx, s *Session) Outcome {
	id := st.ev.ParticipantID
	if !st.roster.has(id) {
		return e.reject(st, msgNotSelected, fmt.Errorf("%w: unknown participant %q", ErrValidation, id), true)
	}
	s.Selecting.Toggle(id)
	return e.advance(st, s)
}

func confirmSelection(e *Engine, st *stepCtx, s *Session) Outcome {
	selected := s.Selecting.Selected
	if len(selected) < 2 {
		return e.reject(st, msgMinSelection, fmt.Errorf("%w: %d participants selected", ErrValidation, len(selected)), true)
	}

	s.State = StateOrdering
	s.Ordering = &OrderingData{
		Participants: cloneStrings(selected),
		Positions:    make(map[int]string, len(selected)),
	}
	s.Selecting = nil
	return e.advance(st, s)
}

func pickPosition(e *Engine, st *stepCtx, s *Session) Outcome {
	d := s.Ordering
	pos, id := st.ev.Position, st.ev.ParticipantID

	if want := d.NextPosition(e.opts.order); pos != want {
		return e.reject(st, msgStaleAction, fmt.Errorf("%w: position %d, expected %d", ErrStateMismatch, pos, want), true)
	}
	if !contains(d.Participants, id) {
		return e.reject(st, msgNotSelected, fmt.Errorf("%w: %q not in match", ErrValidation, id), true)
	}
	if d.isAssigned(id) {
		return e.reject(st, msgStaleAction, fmt.Errorf("%w: %q already placed", ErrValidation, id), true)
	}

	d.Positions[pos] = id
	if d.NextPosition(e.opts.order) != 0 {
		return e.advance(st, s)
	}

	credits := make(alloc.Allocation, len(d.Participants))
	for _, pid := range d.Participants {
		credits[pid] = 0
	}
	s.State = StateAllocating
	s.Allocating = &AllocatingData{
		Participants: d.Participants,
		Positions:    d.Positions,
		Credits:      credits,
	}
	s.Ordering = nil
	return e.advance(st, s)
}

// resetOrdering is the one backward step: it drops every position picked so
// far and asks again from the first one.
func resetOrdering(e *Engine, st *stepCtx, s *Session) Outcome {
	s.Ordering.Positions = make(map[int]string, len(s.Ordering.Participants))
	return e.advance(st, s)
}

func adjustCredit(e *Engine, st *stepCtx, s *Session) Outcome {
	d := s.Allocating
	id := st.ev.ParticipantID
	if !contains(d.Participants, id) {
		return e.reject(st, msgNotSelected, fmt.Errorf("%w: %q not in match", ErrValidation, id), true)
	}

	var err error
	switch st.ev.Delta {
	case 1:
		err = alloc.Increment(d.Credits, id, len(d.Participants))
	case -1:
		err = alloc.Decrement(d.Credits, id)
	default:
		return e.reject(st, msgUnknownAction, fmt.Errorf("%w: delta %d", ErrValidation, st.ev.Delta), true)
	}
	if err != nil {
		return e.reject(st, err.Error(), err, true)
	}
	return e.advance(st, s)
}

func confirmAllocation(e *Engine, st *stepCtx, s *Session) Outcome {
	d := s.Allocating
	if e.opts.requireFullAllocation {
		if rem := alloc.RemainingPool(d.Credits, len(d.Participants)); rem > 0 {
			return e.reject(st, msgPoolRemaining, fmt.Errorf("%w: %d credits left", ErrValidation, rem), true)
		}
	}

	s.State = StateConfirming
	s.Confirming = &ConfirmingData{
		Participants: d.Participants,
		Positions:    d.Positions,
		Credits:      d.Credits,
	}
	s.Allocating = nil
	return e.advance(st, s)
}

// confirmSave hands the session to the committer. The committer clears the
// session on success; on failure the session stays at Confirming. Invalid
// rows are reported as such since retrying cannot fix them.
func confirmSave(e *Engine, st *stepCtx, s *Session) Outcome {
	res, err := e.committer.Commit(st.ctx, s)
	if err != nil {
		e.log.Error("Failed to commit match",
			zap.String("context_id", s.ContextID),
			zap.String("actor_id", s.ActorID),
			zap.String("tournament_id", s.TournamentID),
			zap.Error(err),
		)
		if errors.Is(err, ErrValidation) {
			return e.reject(st, msgInvalidMatch, err, true)
		}
		if !errors.Is(err, ErrStorage) {
			err = fmt.Errorf("%w: %v", ErrStorage, err)
		}
		return e.reject(st, msgSaveFailed, err, true)
	}

	e.clear(st.ctx, st.out, st.ev.Message)
	text := "✅ Partida registrada!"
	if res.Duplicate {
		text = "✅ Partida já registrada."
	}
	if res.MatchID != "" && e.opts.matchURL != nil {
		text += "\n🔗 " + e.opts.matchURL(res.MatchID)
	}
	e.send(st.ctx, st.out, text)
	return Outcome{Cleared: true, MatchID: res.MatchID, Duplicate: res.Duplicate}
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
