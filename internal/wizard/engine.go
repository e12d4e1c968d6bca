// Package wizard implements the match-entry dialog: participant selection,
// finishing order, elimination credits and the final confirmation.
//
// Sessions live in a Store, never in process memory. Each inbound Event is
// handled start-to-finish under a per-(context, actor) lock, on a copy of
// the stored session that is saved whole only when the transition succeeds.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/felipefinhane/poker-ranking/internal/guard"
	"go.uber.org/zap"
)

// Order is the sequence positions are asked in.
type Order string

const (
	OrderAscending  Order = "asc"
	OrderDescending Order = "desc"
)

// ParseOrder accepts "asc" and "desc"; anything else is an error.
func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case OrderAscending, OrderDescending:
		return Order(s), nil
	case "":
		return OrderAscending, nil
	}
	return "", fmt.Errorf("invalid position order %q", s)
}

// Responder delivers the engine's outbound effects to the transport.
type Responder interface {
	Prompt(ctx context.Context, p Prompt) error
	Message(ctx context.Context, text string) error
	ClearSelectable(ctx context.Context, ref MessageRef) error
}

// Directory lists the participants that can be selected, ordered by name.
type Directory interface {
	ListParticipants(ctx context.Context) ([]Participant, error)
}

// Authorizer gates StartEntry.
type Authorizer interface {
	CanStartEntry(ctx context.Context, actorID string, scope guard.Scope, tournamentID string) (bool, error)
}

// CommitResult is what a successful (or already applied) commit produced.
type CommitResult struct {
	MatchID   string
	Duplicate bool
}

// Committer persists a confirmed session exactly once and clears it.
type Committer interface {
	Commit(ctx context.Context, s *Session) (CommitResult, error)
}

// Recorder receives one observation per handled event.
type Recorder interface {
	ObserveEvent(event, outcome string)
}

// Outcome reports how an event was handled. Err is one of the package
// sentinels (possibly wrapped) when the event was rejected or failed.
type Outcome struct {
	State     State
	Cleared   bool
	MatchID   string
	Duplicate bool
	Err       error
}

type options struct {
	order                 Order
	requireFullAllocation bool
	now                   func() time.Time
	location              *time.Location
	matchURL              func(matchID string) string
	recorder              Recorder
}

type Option func(*options)

func WithOrder(o Order) Option {
	return func(opts *options) {
		if o != "" {
			opts.order = o
		}
	}
}

// WithRequireFullAllocation makes ConfirmAllocation reject while credits
// remain in the pool.
func WithRequireFullAllocation(v bool) Option {
	return func(opts *options) { opts.requireFullAllocation = v }
}

func WithClock(now func() time.Time) Option {
	return func(opts *options) {
		if now != nil {
			opts.now = now
		}
	}
}

// WithLocation sets the zone dates are shown in.
func WithLocation(loc *time.Location) Option {
	return func(opts *options) {
		if loc != nil {
			opts.location = loc
		}
	}
}

// WithMatchURL sets how a stored match is linked in the success message.
func WithMatchURL(fn func(matchID string) string) Option {
	return func(opts *options) { opts.matchURL = fn }
}

func WithRecorder(r Recorder) Option {
	return func(opts *options) { opts.recorder = r }
}

type Engine struct {
	store     Store
	dir       Directory
	auth      Authorizer
	committer Committer
	log       *zap.Logger
	opts      options
	locks     *pairLocks
}

func New(store Store, dir Directory, auth Authorizer, committer Committer, log *zap.Logger, opts ...Option) *Engine {
	o := options{
		order:    OrderAscending,
		now:      time.Now,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:     store,
		dir:       dir,
		auth:      auth,
		committer: committer,
		log:       log.Named("wizard"),
		opts:      o,
		locks:     newPairLocks(),
	}
}

// Handle processes one event for its (context, actor) pair and renders the
// result through out.
func (e *Engine) Handle(ctx context.Context, ev Event, out Responder) Outcome {
	unlock := e.locks.lock(ev.ContextID, ev.ActorID)
	defer unlock()

	var oc Outcome
	switch ev.Kind {
	case EventStartEntry:
		oc = e.start(ctx, ev, out)
	case EventCancel:
		oc = e.cancel(ctx, ev, out)
	default:
		oc = e.step(ctx, ev, out)
	}

	if e.opts.recorder != nil {
		e.opts.recorder.ObserveEvent(ev.Kind.String(), outcomeLabel(oc.Err))
	}
	return oc
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrStorage):
		return "error"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNoActiveSession):
		return "no_session"
	default:
		return "rejected"
	}
}

const (
	msgNoSession     = "Sessão não encontrada. Use /nova_partida para iniciar."
	msgUnauthorized  = "⛔ Você não tem permissão para registrar partidas aqui."
	msgNoTournament  = "Defina o torneio com /set_torneio <UUID> antes."
	msgNoPlayers     = "Nenhum jogador cadastrado."
	msgRetryLater    = "⚠️ Não foi possível concluir agora. Tente novamente em instantes."
	msgCancelled     = "Operação cancelada."
	msgSaveFailed    = "❌ Erro ao salvar. Sua partida foi mantida, tente confirmar novamente."
	msgInvalidMatch  = "❌ Os dados desta partida são inválidos e não podem ser salvos. Use /cancelar e comece de novo."
	msgMinSelection  = "Selecione ao menos 2 participantes."
	msgStaleAction   = "Esse botão não vale mais para esta etapa."
	msgUnknownAction = "Ação não reconhecida."
	msgNotSelected   = "Esse jogador não faz parte da partida."
	msgPoolRemaining = "Distribua todas as almas antes de concluir."
)

func (e *Engine) start(ctx context.Context, ev Event, out Responder) Outcome {
	if ev.TournamentID == "" {
		e.send(ctx, out, msgNoTournament)
		return Outcome{Err: fmt.Errorf("%w: no tournament bound to context", ErrValidation)}
	}

	ok, err := e.auth.CanStartEntry(ctx, ev.ActorID, ev.Scope, ev.TournamentID)
	if err != nil {
		return e.unavailable(ctx, out, ev, "Failed to check permission", err)
	}
	if !ok {
		e.send(ctx, out, msgUnauthorized)
		return Outcome{Err: ErrUnauthorized}
	}

	list, err := e.dir.ListParticipants(ctx)
	if err != nil {
		return e.unavailable(ctx, out, ev, "Failed to list participants", err)
	}
	if len(list) == 0 {
		e.send(ctx, out, msgNoPlayers)
		return Outcome{Err: fmt.Errorf("%w: no participants", ErrValidation)}
	}

	s := &Session{
		ContextID:    ev.ContextID,
		ActorID:      ev.ActorID,
		State:        StateSelecting,
		TournamentID: ev.TournamentID,
		OccurredAt:   e.opts.now(),
		Selecting:    &SelectingData{},
	}
	saved, err := e.store.Save(ctx, s)
	if err != nil {
		return e.unavailable(ctx, out, ev, "Failed to save session", err)
	}

	e.prompt(ctx, out, e.renderPrompt(saved, newRoster(list), ""))
	return Outcome{State: saved.State}
}

func (e *Engine) cancel(ctx context.Context, ev Event, out Responder) Outcome {
	s, err := e.store.Load(ctx, ev.ContextID, ev.ActorID)
	if err != nil {
		return e.unavailable(ctx, out, ev, "Failed to load session", err)
	}
	if s == nil {
		e.send(ctx, out, msgNoSession)
		return Outcome{Err: ErrNoActiveSession}
	}
	if err := e.store.Clear(ctx, ev.ContextID, ev.ActorID); err != nil {
		return e.unavailable(ctx, out, ev, "Failed to clear session", err)
	}
	e.clear(ctx, out, ev.Message)
	e.send(ctx, out, msgCancelled)
	return Outcome{Cleared: true}
}

// step runs a follow-up event through the transition table.
func (e *Engine) step(ctx context.Context, ev Event, out Responder) Outcome {
	s, err := e.store.Load(ctx, ev.ContextID, ev.ActorID)
	if err != nil {
		return e.unavailable(ctx, out, ev, "Failed to load session", err)
	}
	if s == nil {
		e.send(ctx, out, msgNoSession)
		return Outcome{Err: ErrNoActiveSession}
	}
	if err := s.Validate(); err != nil {
		return e.unavailable(ctx, out, ev, "Stored session is inconsistent", err)
	}

	list, err := e.dir.ListParticipants(ctx)
	if err != nil {
		return e.unavailable(ctx, out, ev, "Failed to list participants", err)
	}
	st := &stepCtx{ctx: ctx, ev: ev, out: out, roster: newRoster(list), loaded: s}

	if ev.Kind == EventMalformed {
		return e.reject(st, msgUnknownAction, fmt.Errorf("%w: malformed action %q", ErrValidation, ev.Raw), true)
	}

	t, ok := transitions[s.State][ev.Kind]
	if !ok {
		return e.reject(st, msgStaleAction, fmt.Errorf("%w: %s in %s", ErrStateMismatch, ev.Kind, s.State), false)
	}
	return t(e, st, s.Clone())
}

type stepCtx struct {
	ctx    context.Context
	ev     Event
	out    Responder
	roster roster
	loaded *Session
}

// advance saves s and renders it. A changed state retires the pressed
// message and sends a fresh prompt; otherwise the prompt is edited in place.
func (e *Engine) advance(st *stepCtx, s *Session) Outcome {
	saved, err := e.store.Save(st.ctx, s)
	if err != nil {
		return e.unavailable(st.ctx, st.out, st.ev, "Failed to save session", err)
	}

	p := e.renderPrompt(saved, st.roster, "")
	if saved.State == st.loaded.State {
		p.Edit = st.ev.Message
	} else {
		e.clear(st.ctx, st.out, st.ev.Message)
	}
	e.prompt(st.ctx, st.out, p)
	return Outcome{State: saved.State}
}

// reject leaves the stored session untouched and re-renders its prompt with
// note. inPlace edits the pressed message; stale buttons get a new prompt.
func (e *Engine) reject(st *stepCtx, note string, err error, inPlace bool) Outcome {
	p := e.renderPrompt(st.loaded, st.roster, "⚠️ "+note)
	if inPlace {
		p.Edit = st.ev.Message
	}
	e.prompt(st.ctx, st.out, p)
	return Outcome{State: st.loaded.State, Err: err}
}

func (e *Engine) unavailable(ctx context.Context, out Responder, ev Event, msg string, err error) Outcome {
	e.log.Error(msg,
		zap.String("event", ev.Kind.String()),
		zap.String("context_id", ev.ContextID),
		zap.String("actor_id", ev.ActorID),
		zap.Error(err),
	)
	e.send(ctx, out, msgRetryLater)
	return Outcome{Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
}

func (e *Engine) send(ctx context.Context, out Responder, text string) {
	if err := out.Message(ctx, text); err != nil {
		e.log.Warn("Failed to send message", zap.Error(err))
	}
}

func (e *Engine) prompt(ctx context.Context, out Responder, p Prompt) {
	if err := out.Prompt(ctx, p); err != nil {
		e.log.Warn("Failed to send prompt", zap.Error(err))
	}
}

func (e *Engine) clear(ctx context.Context, out Responder, ref MessageRef) {
	if ref.IsZero() {
		return
	}
	if err := out.ClearSelectable(ctx, ref); err != nil {
		e.log.Warn("Failed to clear options", zap.String("message_id", ref.MessageID), zap.Error(err))
	}
}

// pairLocks serializes events of one (context, actor) pair. Entries are
// dropped once nobody holds or waits for them.
type pairLocks struct {
	mu sync.Mutex
	m  map[string]*pairLock
}

type pairLock struct {
	mu   sync.Mutex
	refs int
}

func newPairLocks() *pairLocks {
	return &pairLocks{m: make(map[string]*pairLock)}
}

func (l *pairLocks) lock(contextID, actorID string) func() {
	key := contextID + "\x00" + actorID

	l.mu.Lock()
	pl, ok := l.m[key]
	if !ok {
		pl = &pairLock{}
		l.m[key] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}

func (l *pairLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
