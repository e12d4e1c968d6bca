package wizard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/felipefinhane/poker-ranking/internal/guard"
)

type EventKind int

const (
	EventStartEntry EventKind = iota + 1
	EventToggle
	EventConfirmSelection
	EventPickPosition
	EventResetOrdering
	EventAdjustCredit
	EventConfirmAllocation
	EventConfirmSave
	EventCancel
	EventMalformed
)

func (k EventKind) String() string {
	switch k {
	case EventStartEntry:
		return "start_entry"
	case EventToggle:
		return "toggle"
	case EventConfirmSelection:
		return "confirm_selection"
	case EventPickPosition:
		return "pick_position"
	case EventResetOrdering:
		return "reset_ordering"
	case EventAdjustCredit:
		return "adjust_credit"
	case EventConfirmAllocation:
		return "confirm_allocation"
	case EventConfirmSave:
		return "confirm_save"
	case EventCancel:
		return "cancel"
	case EventMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// MessageRef points at a transport message that carries selectable options.
type MessageRef struct {
	ChannelID string
	MessageID string
}

func (r MessageRef) IsZero() bool { return r.MessageID == "" }

// Event is one inbound user action, already decoded from the transport.
type Event struct {
	Kind      EventKind
	ContextID string
	ActorID   string

	// StartEntry only.
	Scope        guard.Scope
	TournamentID string

	ParticipantID string
	Position      int
	Delta         int

	// Message is the message whose option was pressed, if any.
	Message MessageRef

	// Raw keeps the undecodable payload of a Malformed event.
	Raw string
}

// Action payloads carried by selectable options.
const (
	actionToggle      = "toggle"
	actionDoneSelect  = "done_select"
	actionPick        = "pick"
	actionReorder     = "reorder"
	actionCredit      = "credit"
	actionDoneCredits = "done_credits"
	actionConfirmSave = "confirm_save"
	actionCancel      = "cancel"
	actionLabel       = "label"

	actionSep = ":"
)

func ToggleAction(participantID string) string {
	return actionToggle + actionSep + participantID
}

func PickAction(position int, participantID string) string {
	return actionPick + actionSep + strconv.Itoa(position) + actionSep + participantID
}

func CreditAction(participantID string, delta int) string {
	sign := "+"
	if delta < 0 {
		sign = "-"
	}
	return actionCredit + actionSep + participantID + actionSep + sign
}

func labelAction(participantID string) string {
	return actionLabel + actionSep + participantID
}

// IsLabelAction reports whether data belongs to a display-only option.
func IsLabelAction(data string) bool {
	return strings.HasPrefix(data, actionLabel+actionSep)
}

// ParseAction decodes an option payload into an event carrying only the
// action fields. Anything it cannot decode becomes an EventMalformed.
func ParseAction(data string) Event {
	malformed := Event{Kind: EventMalformed, Raw: data}

	parts := strings.Split(data, actionSep)
	switch parts[0] {
	case actionDoneSelect, actionReorder, actionDoneCredits, actionConfirmSave, actionCancel:
		if len(parts) != 1 {
			return malformed
		}
	}

	switch parts[0] {
	case actionToggle:
		if len(parts) != 2 || parts[1] == "" {
			return malformed
		}
		return Event{Kind: EventToggle, ParticipantID: parts[1]}
	case actionDoneSelect:
		return Event{Kind: EventConfirmSelection}
	case actionPick:
		if len(parts) != 3 || parts[2] == "" {
			return malformed
		}
		pos, err := strconv.Atoi(parts[1])
		if err != nil || pos < 1 {
			return malformed
		}
		return Event{Kind: EventPickPosition, Position: pos, ParticipantID: parts[2]}
	case actionReorder:
		return Event{Kind: EventResetOrdering}
	case actionCredit:
		if len(parts) != 3 || parts[1] == "" {
			return malformed
		}
		switch parts[2] {
		case "+":
			return Event{Kind: EventAdjustCredit, ParticipantID: parts[1], Delta: 1}
		case "-":
			return Event{Kind: EventAdjustCredit, ParticipantID: parts[1], Delta: -1}
		}
		return malformed
	case actionDoneCredits:
		return Event{Kind: EventConfirmAllocation}
	case actionConfirmSave:
		return Event{Kind: EventConfirmSave}
	case actionCancel:
		return Event{Kind: EventCancel}
	}
	return malformed
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%s/%s)", e.Kind, e.ContextID, e.ActorID)
}
