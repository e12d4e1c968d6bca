package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felipefinhane/poker-ranking/internal/alloc"
	"github.com/felipefinhane/poker-ranking/internal/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	m       map[string]*Session
	saveErr error
	saves   int
}

func newMemStore() *memStore { return &memStore{m: make(map[string]*Session)} }

func (s *memStore) Load(_ context.Context, contextID, actorID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.m[contextID+"/"+actorID]; ok {
		return v.Clone(), nil
	}
	return nil, nil
}

func (s *memStore) Save(_ context.Context, sess *Session) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	s.saves++
	c := sess.Clone()
	c.UpdatedAt = time.Now()
	s.m[sess.ContextID+"/"+sess.ActorID] = c
	return c.Clone(), nil
}

func (s *memStore) Clear(_ context.Context, contextID, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, contextID+"/"+actorID)
	return nil
}

func (s *memStore) get(contextID, actorID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[contextID+"/"+actorID]
}

type staticDir []Participant

func (d staticDir) ListParticipants(context.Context) ([]Participant, error) { return d, nil }

type authFunc func(actorID string, scope guard.Scope) (bool, error)

func (f authFunc) CanStartEntry(_ context.Context, actorID string, scope guard.Scope, _ string) (bool, error) {
	return f(actorID, scope)
}

func allowAll() Authorizer {
	return authFunc(func(string, guard.Scope) (bool, error) { return true, nil })
}

// fakeCommitter records committed rows and clears the session the way
// the real coordinator does.
type fakeCommitter struct {
	store   Store
	err     error
	commits [][]alloc.Row
}

func (c *fakeCommitter) Commit(ctx context.Context, s *Session) (CommitResult, error) {
	if c.err != nil {
		if errors.Is(c.err, ErrValidation) {
			return CommitResult{}, c.err
		}
		return CommitResult{}, fmt.Errorf("%w: %v", ErrStorage, c.err)
	}
	c.commits = append(c.commits, s.Confirming.Rows())
	if err := c.store.Clear(ctx, s.ContextID, s.ActorID); err != nil {
		return CommitResult{}, err
	}
	return CommitResult{MatchID: fmt.Sprintf("m%d", len(c.commits))}, nil
}

type recorder struct {
	prompts  []Prompt
	messages []string
	cleared  []MessageRef
}

func (r *recorder) Prompt(_ context.Context, p Prompt) error {
	r.prompts = append(r.prompts, p)
	return nil
}

func (r *recorder) Message(_ context.Context, text string) error {
	r.messages = append(r.messages, text)
	return nil
}

func (r *recorder) ClearSelectable(_ context.Context, ref MessageRef) error {
	r.cleared = append(r.cleared, ref)
	return nil
}

func (r *recorder) lastPrompt(t *testing.T) Prompt {
	t.Helper()
	require.NotEmpty(t, r.prompts)
	return r.prompts[len(r.prompts)-1]
}

func (r *recorder) lastMessage(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, r.messages)
	return r.messages[len(r.messages)-1]
}

var players = staticDir{
	{ID: "a", Name: "Ana"},
	{ID: "b", Name: "Bia"},
	{ID: "c", Name: "Caio"},
}

type harness struct {
	t         *testing.T
	store     *memStore
	committer *fakeCommitter
	engine    *Engine
	out       *recorder
	contextID string
	actorID   string
	msg       MessageRef
}

func newHarness(t *testing.T, opts ...Option) *harness {
	store := newMemStore()
	committer := &fakeCommitter{store: store}
	clock := func() time.Time { return time.Date(2024, 3, 9, 21, 0, 0, 0, time.UTC) }
	opts = append([]Option{WithClock(clock), WithLocation(time.UTC)}, opts...)
	return &harness{
		t:         t,
		store:     store,
		committer: committer,
		engine:    New(store, players, allowAll(), committer, nil, opts...),
		out:       &recorder{},
		contextID: "chan-1",
		actorID:   "user-1",
		msg:       MessageRef{ChannelID: "chan-1", MessageID: "msg-1"},
	}
}

func (h *harness) start() Outcome {
	return h.engine.Handle(context.Background(), Event{
		Kind:         EventStartEntry,
		ContextID:    h.contextID,
		ActorID:      h.actorID,
		Scope:        guard.Scope{ContextID: h.contextID, Kind: guard.ScopeGroup},
		TournamentID: "t-1",
	}, h.out)
}

func (h *harness) press(action string) Outcome {
	ev := ParseAction(action)
	ev.ContextID = h.contextID
	ev.ActorID = h.actorID
	ev.Message = h.msg
	return h.engine.Handle(context.Background(), ev, h.out)
}

func (h *harness) mustPress(action string) Outcome {
	h.t.Helper()
	oc := h.press(action)
	require.NoError(h.t, oc.Err, "action %s", action)
	return oc
}

func (h *harness) session() *Session {
	return h.store.get(h.contextID, h.actorID)
}

// toConfirming drives a three-player match to the confirmation step with Ana
// first and two credits.
func (h *harness) toConfirming() {
	h.t.Helper()
	require.NoError(h.t, h.start().Err)
	for _, id := range []string{"a", "b", "c"} {
		h.mustPress(ToggleAction(id))
	}
	h.mustPress("done_select")
	h.mustPress(PickAction(1, "a"))
	h.mustPress(PickAction(2, "b"))
	h.mustPress(PickAction(3, "c"))
	h.mustPress(CreditAction("a", 1))
	h.mustPress(CreditAction("a", 1))
	h.mustPress("done_credits")
	require.Equal(h.t, StateConfirming, h.session().State)
}

func TestEngine_FullFlow(t *testing.T) {
	h := newHarness(t)
	h.toConfirming()

	p := h.out.lastPrompt(t)
	assert.Contains(t, p.Text, "Data: 09/03/2024")
	assert.Contains(t, p.Text, "1º  Ana  (almas: 2)")
	assert.Contains(t, p.Text, "3º  Caio  (almas: 0)")

	oc := h.mustPress("confirm_save")
	assert.True(t, oc.Cleared)
	assert.Equal(t, "m1", oc.MatchID)
	assert.Nil(t, h.session())

	require.Len(t, h.committer.commits, 1)
	assert.Equal(t, []alloc.Row{
		{Position: 1, ParticipantID: "a", Credits: 2},
		{Position: 2, ParticipantID: "b", Credits: 0},
		{Position: 3, ParticipantID: "c", Credits: 0},
	}, h.committer.commits[0])
	assert.Equal(t, "✅ Partida registrada!", h.out.lastMessage(t))
}

func TestEngine_MatchURL(t *testing.T) {
	h := newHarness(t, WithMatchURL(func(id string) string { return "https://example.test/partidas/" + id }))
	h.toConfirming()
	h.mustPress("confirm_save")
	assert.Equal(t, "✅ Partida registrada!\n🔗 https://example.test/partidas/m1", h.out.lastMessage(t))
}

func TestEngine_StartRequiresTournament(t *testing.T) {
	h := newHarness(t)
	oc := h.engine.Handle(context.Background(), Event{Kind: EventStartEntry, ContextID: "c", ActorID: "u"}, h.out)
	assert.ErrorIs(t, oc.Err, ErrValidation)
	assert.Equal(t, msgNoTournament, h.out.lastMessage(t))
	assert.Nil(t, h.store.get("c", "u"))
}

func TestEngine_UnauthorizedStartCreatesNoSession(t *testing.T) {
	h := newHarness(t)
	h.engine = New(h.store, players, authFunc(func(string, guard.Scope) (bool, error) { return false, nil }), h.committer, nil)

	oc := h.start()
	assert.ErrorIs(t, oc.Err, ErrUnauthorized)
	assert.Nil(t, h.session())
	assert.Zero(t, h.store.saves)
	assert.Equal(t, msgUnauthorized, h.out.lastMessage(t))
}

func TestEngine_AuthorizerErrorIsUnavailable(t *testing.T) {
	h := newHarness(t)
	h.engine = New(h.store, players, authFunc(func(string, guard.Scope) (bool, error) {
		return false, errors.New("discord down")
	}), h.committer, nil)

	oc := h.start()
	assert.ErrorIs(t, oc.Err, ErrUnavailable)
	assert.Nil(t, h.session())
	assert.Equal(t, msgRetryLater, h.out.lastMessage(t))
}

func TestEngine_StartWithEmptyDirectory(t *testing.T) {
	h := newHarness(t)
	h.engine = New(h.store, staticDir{}, allowAll(), h.committer, nil)

	oc := h.start()
	assert.ErrorIs(t, oc.Err, ErrValidation)
	assert.Nil(t, h.session())
	assert.Equal(t, msgNoPlayers, h.out.lastMessage(t))
}

func TestEngine_StartReplacesExistingSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.start().Err)
	h.mustPress(ToggleAction("a"))
	h.mustPress(ToggleAction("b"))
	h.mustPress("done_select")
	require.Equal(t, StateOrdering, h.session().State)

	require.NoError(t, h.start().Err)
	s := h.session()
	assert.Equal(t, StateSelecting, s.State)
	assert.Empty(t, s.Selecting.Selected)
}

func TestEngine_ToggleTwiceIsIdentity(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.start().Err)

	h.mustPress(ToggleAction("b"))
	assert.Equal(t, []string{"b"}, h.session().Selecting.Selected)
	h.mustPress(ToggleAction("b"))
	assert.Empty(t, h.session().Selecting.Selected)

	p := h.out.lastPrompt(t)
	assert.Equal(t, h.msg, p.Edit)
	assert.Contains(t, p.Text, "Selecionados: 0")
}

func TestEngine_ToggleUnknownParticipant(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.start().Err)

	oc := h.press(ToggleAction("zz"))
	assert.ErrorIs(t, oc.Err, ErrValidation)
	assert.Empty(t, h.session().Selecting.Selected)
}

func TestEngine_ConfirmSelectionNeedsTwo(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.start().Err)
	h.mustPress(ToggleAction("a"))

	oc := h.press("done_select")
	assert.ErrorIs(t, oc.Err, ErrValidation)
	assert.Equal(t, StateSelecting, oc.State)
	assert.Equal(t, StateSelecting, h.session().State)

	p := h.out.lastPrompt(t)
	assert.True(t, strings.HasPrefix(p.Text, "⚠️ "+msgMinSelection))
	assert.Equal(t, h.msg, p.Edit)
}

func TestEngine_StateChangeRetiresPressedMessage(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.start().Err)
	h.mustPress(ToggleAction("a"))
	h.mustPress(ToggleAction("b"))
	h.mustPress("done_select")

	require.NotEmpty(t, h.out.cleared)
	assert.Equal(t, h.msg, h.out.cleared[len(h.out.cleared)-1])
	p := h.out.lastPrompt(t)
	assert.True(t, p.Edit.IsZero())
	assert.Contains(t, p.Text, "Quem ficou em **1º**?")
}

func TestEngine_OrderingIsBijection(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.start().Err)
	for _, id := range []string{"a", "b", "c"} {
		h.mustPress(ToggleAction(id))
	}
	h.mustPress("done_select")

	h.mustPress(PickAction(1, "b"))

	oc := h.press(PickAction(2, "b"))
	assert.ErrorIs(t, oc.Err, ErrValidation, "participant already placed")

	oc = h.press(PickAction(3, "a"))
	assert.ErrorIs(t, oc.Err, ErrStateMismatch, "position out of sequence")

	oc = h.press(PickAction(2, "zz"))
	assert.ErrorIs(t, oc.Err, ErrValidation, "participant not in match")

	s := h.session()
	assert.Equal(t, map[int]string{1: "b"}, s.Ordering.Positions)

	h.mustPress(PickAction(2, "c"))
	oc = h.mustPress(PickAction(3, "a"))
	assert.Equal(t, StateAllocating, oc.State)

	s = h.session()
	assert.Equal(t, map[int]string{1: "b", 2: "c", 3: "a"}, s.Allocating.Positions)
	assert.Equal(t, alloc.Allocation{"a": 0, "b": 0, "c": 0}, s.Allocating.Credits)
}

func TestEngine_ResetOrdering(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.start().Err)
	for _, id := range []string{"a", "b", "c"} {
		h.mustPress(ToggleAction(id))
	}
	h.mustPress("done_select")
	h.mustPress(PickAction(1, "c"))

	assert.Contains(t, h.out.lastPrompt(t).Text, "1º  Caio")

	h.mustPress("reorder")
	s := h.session()
	assert.Equal(t, StateOrdering, s.State)
	assert.Empty(t, s.Ordering.Positions)
	assert.Equal(t, []string{"a", "b", "c"}, s.Ordering.Participants)
}

func TestEngine_DescendingOrder(t *testing.T) {
	h := newHarness(t, WithOrder(OrderDescending))
	require.NoError(t, h.start().Err)
	h.mustPress(ToggleAction("a"))
	h.mustPress(ToggleAction("b"))
	h.mustPress("done_select")

	assert.Contains(t, h.out.lastPrompt(t).Text, "Quem ficou em **2º**?")
	oc := h.press(PickAction(1, "a"))
	assert.ErrorIs(t, oc.Err, ErrStateMismatch)

	h.mustPress(PickAction(2, "b"))
	oc = h.mustPress(PickAction(1, "a"))
	assert.Equal(t, StateAllocating, oc.State)
	assert.Equal(t, map[int]string{1: "a", 2: "b"}, h.session().Allocating.Positions)
}

func TestEngine_CreditPoolBound(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.start().Err)
	for _, id := range []string{"a", "b", "c"} {
		h.mustPress(ToggleAction(id))
	}
	h.mustPress("done_select")
	h.mustPress(PickAction(1, "a"))
	h.mustPress(PickAction(2, "b"))
	h.mustPress(PickAction(3, "c"))

	h.mustPress(CreditAction("b", 1))
	h.mustPress(CreditAction("c", 1))
	assert.Contains(t, h.out.lastPrompt(t).Text, "Almas disponíveis: 0 de 2")

	oc := h.press(CreditAction("a", 1))
	assert.ErrorIs(t, oc.Err, alloc.ErrPoolExhausted)
	assert.Equal(t, alloc.Allocation{"a": 0, "b": 1, "c": 1}, h.session().Allocating.Credits)

	oc = h.press(CreditAction("a", -1))
	assert.ErrorIs(t, oc.Err, alloc.ErrNonNegative)

	h.mustPress(CreditAction("b", -1))
	assert.Contains(t, h.out.lastPrompt(t).Text, "Almas disponíveis: 1 de 2")
}

func TestEngine_RequireFullAllocation(t *testing.T) {
	h := newHarness(t, WithRequireFullAllocation(true))
	require.NoError(t, h.start().Err)
	h.mustPress(ToggleAction("a"))
	h.mustPress(ToggleAction("b"))
	h.mustPress("done_select")
	h.mustPress(PickAction(1, "a"))
	h.mustPress(PickAction(2, "b"))

	oc := h.press("done_credits")
	assert.ErrorIs(t, oc.Err, ErrValidation)
	assert.Equal(t, StateAllocating, h.session().State)

	h.mustPress(CreditAction("a", 1))
	oc = h.mustPress("done_credits")
	assert.Equal(t, StateConfirming, oc.State)
}

func TestEngine_PickPositionWhileConfirming(t *testing.T) {
	h := newHarness(t)
	h.toConfirming()
	before := h.session()

	oc := h.press(PickAction(1, "a"))
	assert.ErrorIs(t, oc.Err, ErrStateMismatch)
	assert.Equal(t, StateConfirming, oc.State)
	assert.Equal(t, before, h.session())

	p := h.out.lastPrompt(t)
	assert.True(t, p.Edit.IsZero(), "stale option gets a fresh prompt")
	assert.Contains(t, p.Text, "Salvar?")
}

func TestEngine_MalformedAction(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.start().Err)

	oc := h.press("pick:x:a")
	assert.ErrorIs(t, oc.Err, ErrValidation)
	assert.Equal(t, StateSelecting, h.session().State)
	assert.True(t, strings.HasPrefix(h.out.lastPrompt(t).Text, "⚠️ "+msgUnknownAction))
}

func TestEngine_NoSession(t *testing.T) {
	h := newHarness(t)

	oc := h.press(ToggleAction("a"))
	assert.ErrorIs(t, oc.Err, ErrNoActiveSession)
	assert.Equal(t, msgNoSession, h.out.lastMessage(t))

	oc = h.press("cancel")
	assert.ErrorIs(t, oc.Err, ErrNoActiveSession)
}

func TestEngine_Cancel(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.start().Err)
	h.mustPress(ToggleAction("a"))

	oc := h.mustPress("cancel")
	assert.True(t, oc.Cleared)
	assert.Nil(t, h.session())
	assert.Equal(t, msgCancelled, h.out.lastMessage(t))
	assert.Contains(t, h.out.cleared, h.msg)
}

func TestEngine_CommitFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.toConfirming()
	h.committer.err = errors.New("connection reset")

	oc := h.press("confirm_save")
	assert.ErrorIs(t, oc.Err, ErrStorage)
	assert.Equal(t, StateConfirming, h.session().State)
	assert.True(t, strings.HasPrefix(h.out.lastPrompt(t).Text, "⚠️ "+msgSaveFailed))

	h.committer.err = nil
	oc = h.mustPress("confirm_save")
	assert.True(t, oc.Cleared)
	assert.Len(t, h.committer.commits, 1)
}

func TestEngine_CommitValidationErrorIsNotRetryable(t *testing.T) {
	h := newHarness(t)
	h.toConfirming()
	h.committer.err = fmt.Errorf("%w: position 2 repeated", ErrValidation)

	oc := h.press("confirm_save")
	assert.ErrorIs(t, oc.Err, ErrValidation)
	assert.NotErrorIs(t, oc.Err, ErrStorage)
	assert.Equal(t, StateConfirming, h.session().State)
	assert.True(t, strings.HasPrefix(h.out.lastPrompt(t).Text, "⚠️ "+msgInvalidMatch))
	assert.Empty(t, h.committer.commits)
}

func TestEngine_SaveFailureLeavesStoredSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.start().Err)
	h.store.saveErr = errors.New("store down")

	oc := h.press(ToggleAction("a"))
	assert.ErrorIs(t, oc.Err, ErrUnavailable)
	assert.Empty(t, h.session().Selecting.Selected)
	assert.Equal(t, msgRetryLater, h.out.lastMessage(t))
}

func TestEngine_SessionsAreIsolatedPerActor(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.start().Err)
	h.mustPress(ToggleAction("a"))

	other := *h
	other.actorID = "user-2"
	oc := other.press(ToggleAction("b"))
	assert.ErrorIs(t, oc.Err, ErrNoActiveSession)
	assert.Equal(t, []string{"a"}, h.session().Selecting.Selected)
}

type eventCounter struct {
	mu  sync.Mutex
	got map[string]int
}

func (c *eventCounter) ObserveEvent(event, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got[event+"/"+outcome]++
}

func TestEngine_RecordsOutcomes(t *testing.T) {
	rec := &eventCounter{got: make(map[string]int)}
	h := newHarness(t, WithRecorder(rec))
	require.NoError(t, h.start().Err)
	h.mustPress(ToggleAction("a"))
	h.press("done_select")
	h.press("confirm_save")

	assert.Equal(t, map[string]int{
		"start_entry/ok":             1,
		"toggle/ok":                  1,
		"confirm_selection/rejected": 1,
		"confirm_save/rejected":      1,
	}, rec.got)
}

func TestEngine_ConcurrentTogglesAreSerialized(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.start().Err)

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			ev := ParseAction(ToggleAction(id))
			ev.ContextID, ev.ActorID = h.contextID, h.actorID
			h.engine.Handle(context.Background(), ev, &recorder{})
		}(id)
	}
	wg.Wait()

	assert.Equal(t, []string{"a", "b", "c"}, h.session().Selecting.Selected)
	assert.Zero(t, h.engine.locks.size())
}

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder("")
	require.NoError(t, err)
	assert.Equal(t, OrderAscending, o)

	o, err = ParseOrder("desc")
	require.NoError(t, err)
	assert.Equal(t, OrderDescending, o)

	_, err = ParseOrder("random")
	assert.Error(t, err)
}
