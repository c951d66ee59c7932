package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/memory"
	"github.com/hupe1980/roundtable/session"
)

// scriptedActor replies from a fixed list, then repeats the last entry.
type scriptedActor struct {
	name    string
	desc    string
	replies []string
	calls   int
	err     error
}

func (a *scriptedActor) Name() string        { return a.name }
func (a *scriptedActor) Description() string { return a.desc }

func (a *scriptedActor) Respond(_ context.Context, _ string) (string, error) {
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	if len(a.replies) == 0 {
		return fmt.Sprintf("%s turn %d", a.name, a.calls), nil
	}
	i := a.calls - 1
	if i >= len(a.replies) {
		i = len(a.replies) - 1
	}
	return a.replies[i], nil
}

// scriptedClient answers routing questions from a queue.
type scriptedClient struct {
	answers []string
	calls   int
	err     error
}

func (c *scriptedClient) Chat(_ context.Context, _ []core.Message, _ float64, _ int) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	if len(c.answers) == 0 {
		return "", fmt.Errorf("no scripted answer left")
	}
	answer := c.answers[0]
	c.answers = c.answers[1:]
	return answer, nil
}

// noticeLog captures progress emissions in order.
type noticeLog struct {
	events []string
	status []core.StatusNotice
}

func (l *noticeLog) sink() core.ProgressSink {
	return core.SinkFuncs{
		OnSpeaker: func(n core.SpeakerNotice) {
			l.events = append(l.events, fmt.Sprintf("speaker:%d:%s", n.Turn, n.Speaker))
		},
		OnTurn: func(n core.TurnNotice) {
			l.events = append(l.events, fmt.Sprintf("turn:%d:%s", n.Turn, n.Sender))
		},
		OnStatus: func(n core.StatusNotice) {
			l.events = append(l.events, fmt.Sprintf("status:%s", n.Status))
			l.status = append(l.status, n)
		},
	}
}

func roster(names ...string) []core.Actor {
	actors := make([]core.Actor, len(names))
	for i, n := range names {
		actors[i] = &scriptedActor{name: n, desc: n + " specialist"}
	}
	return actors
}

func TestStartRoundRobinCyclesActors(t *testing.T) {
	store := session.NewInMemoryStore()
	o := New(func(opts *Options) { opts.SessionStore = store })

	sess, err := o.Start(context.Background(), "design the API", roster("alice", "bob", "carol"), core.ModeRoundRobin, 4)
	require.NoError(t, err)

	require.Len(t, sess.History, 4)
	senders := make([]string, 0, 4)
	for i, e := range sess.History {
		assert.Equal(t, i+1, e.Turn)
		senders = append(senders, e.Sender)
	}
	assert.Equal(t, []string{"alice", "bob", "carol", "alice"}, senders)
	assert.Equal(t, core.StatusCompleted, sess.Status)

	persisted, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.TurnCount, persisted.TurnCount)
	assert.Equal(t, core.StatusCompleted, persisted.Status)
}

func TestProgressEmissionOrder(t *testing.T) {
	log := &noticeLog{}
	o := New(func(opts *Options) { opts.Sink = log.sink() })

	_, err := o.Start(context.Background(), "ship it", roster("alice", "bob"), core.ModeRoundRobin, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"speaker:1:alice",
		"turn:1:alice",
		"speaker:2:bob",
		"turn:2:bob",
		"status:completed",
	}, log.events)
	require.Len(t, log.status, 1)
	assert.Equal(t, "turn budget exhausted", log.status[0].Reason)
}

func TestTurnNoticeBackReference(t *testing.T) {
	var turns []core.TurnNotice
	o := New(func(opts *Options) {
		opts.Sink = core.SinkFuncs{OnTurn: func(n core.TurnNotice) { turns = append(turns, n) }}
	})

	actors := []core.Actor{
		&scriptedActor{name: "alice", replies: []string{"the plan is threefold"}},
		&scriptedActor{name: "bob"},
	}
	_, err := o.Start(context.Background(), "plan", actors, core.ModeRoundRobin, 2)
	require.NoError(t, err)

	require.Len(t, turns, 2)
	assert.Empty(t, turns[0].RespondingTo)
	assert.Equal(t, "alice", turns[1].RespondingTo)
	assert.Equal(t, "the plan is threefold", turns[1].RespondingToSnippet)
	assert.Equal(t, "bob", turns[0].NextSpeaker)
}

func TestPersistedBeforeEmission(t *testing.T) {
	store := session.NewInMemoryStore()
	var observed []int
	o := New(func(opts *Options) {
		opts.SessionStore = store
		opts.Sink = core.SinkFuncs{OnTurn: func(n core.TurnNotice) {
			persisted, err := store.Get(context.Background(), n.SessionID)
			require.NoError(t, err)
			observed = append(observed, persisted.TurnCount)
		}}
	})

	_, err := o.Start(context.Background(), "verify ordering", roster("alice", "bob"), core.ModeRoundRobin, 3)
	require.NoError(t, err)

	// At each turn notice the store already holds that turn.
	assert.Equal(t, []int{1, 2, 3}, observed)
}

func TestSpeakerFailureErrorsSession(t *testing.T) {
	store := session.NewInMemoryStore()
	log := &noticeLog{}
	o := New(func(opts *Options) {
		opts.SessionStore = store
		opts.Sink = log.sink()
	})

	actors := []core.Actor{
		&scriptedActor{name: "alice"},
		&scriptedActor{name: "bob", err: fmt.Errorf("model unavailable")},
	}
	sess, err := o.Start(context.Background(), "try", actors, core.ModeRoundRobin, 5)
	require.NoError(t, err)

	assert.Equal(t, core.StatusErrored, sess.Status)
	require.Len(t, sess.History, 1, "partial transcript is retained")
	assert.Equal(t, "alice", sess.History[0].Sender)

	persisted, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusErrored, persisted.Status)
	require.NotEmpty(t, log.status)
	assert.Contains(t, log.status[len(log.status)-1].Reason, "model unavailable")
}

func TestEmptyResponseErrorsSession(t *testing.T) {
	o := New()

	actors := []core.Actor{&scriptedActor{name: "alice", replies: []string{"   \n"}}}
	sess, err := o.Start(context.Background(), "try", actors, core.ModeRoundRobin, 3)
	require.NoError(t, err)

	assert.Equal(t, core.StatusErrored, sess.Status)
	assert.Empty(t, sess.History)
}

func TestResumeContinuesNumbering(t *testing.T) {
	store := session.NewInMemoryStore()
	o := New(func(opts *Options) { opts.SessionStore = store })
	actors := roster("alice", "bob")

	first, err := o.Start(context.Background(), "long haul", actors, core.ModeRoundRobin, 2)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, first.Status)

	resumed, err := o.Resume(context.Background(), first.ID, actors, 3)
	require.NoError(t, err)

	require.Len(t, resumed.History, 5)
	assert.Equal(t, 3, resumed.History[2].Turn)
	assert.Equal(t, 5, resumed.History[4].Turn)
	assert.Equal(t, 5, resumed.TurnCount)
	// Round-robin continues from where the first run pointed.
	assert.Equal(t, "alice", resumed.History[2].Sender)
}

func TestResumeRejectsErroredSession(t *testing.T) {
	store := session.NewInMemoryStore()
	o := New(func(opts *Options) { opts.SessionStore = store })

	sess, err := o.Start(context.Background(), "try", []core.Actor{&scriptedActor{name: "alice", err: fmt.Errorf("down")}}, core.ModeRoundRobin, 2)
	require.NoError(t, err)
	require.Equal(t, core.StatusErrored, sess.Status)

	_, err = o.Resume(context.Background(), sess.ID, roster("alice"), 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be resumed")
}

func TestResumeUnknownSession(t *testing.T) {
	o := New()
	_, err := o.Resume(context.Background(), "nope", roster("alice"), 2)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestResumeRequiresMatchingRoster(t *testing.T) {
	store := session.NewInMemoryStore()
	o := New(func(opts *Options) { opts.SessionStore = store })

	sess, err := o.Start(context.Background(), "pairing", roster("alice", "bob"), core.ModeRoundRobin, 1)
	require.NoError(t, err)

	_, err = o.Resume(context.Background(), sess.ID, roster("alice"), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bob"`)
}

func TestStartValidation(t *testing.T) {
	o := New(func(opts *Options) { opts.RoutingClient = &scriptedClient{} })

	_, err := o.Start(context.Background(), "  ", roster("alice"), core.ModeRoundRobin, 3)
	assert.Error(t, err)

	_, err = o.Start(context.Background(), "x", roster("alice"), core.ModeIntelligent, 3)
	assert.Error(t, err, "intelligent mode needs two actors")

	_, err = o.Start(context.Background(), "x", roster("alice"), core.ModeRoundRobin, 0)
	assert.Error(t, err)

	_, err = o.Start(context.Background(), "x", roster("alice"), core.Mode("psychic"), 3)
	assert.Error(t, err)
}

func TestStartIntelligentRequiresRoutingClient(t *testing.T) {
	o := New()
	_, err := o.Start(context.Background(), "x", roster("alice", "bob"), core.ModeIntelligent, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "routing client")
}

func TestIntelligentRoutingFollowsAnswers(t *testing.T) {
	client := &scriptedClient{answers: []string{"bob", "alice", "END"}}
	o := New(func(opts *Options) { opts.RoutingClient = client })

	sess, err := o.Start(context.Background(), "triage the bug", roster("alice", "bob"), core.ModeIntelligent, 10)
	require.NoError(t, err)

	require.Len(t, sess.History, 2)
	assert.Equal(t, "bob", sess.History[0].Sender)
	assert.Equal(t, "alice", sess.History[1].Sender)
	assert.Equal(t, core.StatusCompleted, sess.Status)
	assert.Equal(t, 3, client.calls)
}

func TestIntelligentRoutingCurrentKeepsSpeaker(t *testing.T) {
	client := &scriptedClient{answers: []string{"alice", "current", "END"}}
	o := New(func(opts *Options) { opts.RoutingClient = client })

	sess, err := o.Start(context.Background(), "deep dive", roster("alice", "bob"), core.ModeIntelligent, 10)
	require.NoError(t, err)

	require.Len(t, sess.History, 2)
	assert.Equal(t, "alice", sess.History[0].Sender)
	assert.Equal(t, "alice", sess.History[1].Sender)
}

func TestIntelligentRoutingOutOfSetFallsBack(t *testing.T) {
	client := &scriptedClient{answers: []string{"alice", "mallory", "END"}}
	o := New(func(opts *Options) { opts.RoutingClient = client })

	sess, err := o.Start(context.Background(), "review", roster("alice", "bob"), core.ModeIntelligent, 10)
	require.NoError(t, err)

	require.Len(t, sess.History, 2)
	// Unknown name degrades to round-robin advancement after alice.
	assert.Equal(t, "bob", sess.History[1].Sender)
	assert.Equal(t, core.StatusCompleted, sess.Status)
}

func TestIntelligentRoutingStrictErrors(t *testing.T) {
	client := &scriptedClient{answers: []string{"alice", "mallory"}}
	o := New(func(opts *Options) {
		opts.RoutingClient = client
		opts.StrictRouting = true
	})

	sess, err := o.Start(context.Background(), "review", roster("alice", "bob"), core.ModeIntelligent, 10)
	require.NoError(t, err)

	assert.Equal(t, core.StatusErrored, sess.Status)
	require.Len(t, sess.History, 1, "the answered turn survives")
}

func TestIntelligentRoutingClientFailureFallsBack(t *testing.T) {
	client := &scriptedClient{err: fmt.Errorf("provider down")}
	o := New(func(opts *Options) { opts.RoutingClient = client })

	sess, err := o.Start(context.Background(), "keep going", roster("alice", "bob"), core.ModeIntelligent, 3)
	require.NoError(t, err)

	// First actor fallback, then round-robin advancement throughout.
	require.Len(t, sess.History, 3)
	assert.Equal(t, []string{"alice", "bob", "alice"}, []string{
		sess.History[0].Sender, sess.History[1].Sender, sess.History[2].Sender,
	})
	assert.Equal(t, core.StatusCompleted, sess.Status)
}

func TestIntelligentBudgetExhaustionCompletes(t *testing.T) {
	// No explicit end signal: the budget alone terminates the session.
	client := &scriptedClient{answers: []string{"planner", "writer", "planner", "reviewer", "writer"}}
	store := session.NewInMemoryStore()
	o := New(func(opts *Options) {
		opts.RoutingClient = client
		opts.SessionStore = store
	})

	actors := roster("planner", "writer", "reviewer")
	sess, err := o.Start(context.Background(), "plan a release", actors, core.ModeIntelligent, 4)
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, sess.Status)
	require.Len(t, sess.History, 4)
	names := map[string]bool{"planner": true, "writer": true, "reviewer": true}
	for _, e := range sess.History {
		assert.True(t, names[e.Sender], "sender %q is a configured actor", e.Sender)
	}
}

// recordingMemory captures RecordInput calls.
type recordingMemory struct {
	inputs []memory.RecordInput
}

func (m *recordingMemory) Record(_ context.Context, in memory.RecordInput) (string, error) {
	m.inputs = append(m.inputs, in)
	return core.NewID(), nil
}

func TestTurnsRecordedToMemory(t *testing.T) {
	rec := &recordingMemory{}
	o := New(func(opts *Options) { opts.Memory = rec })

	sess, err := o.Start(context.Background(), "capture", roster("alice", "bob"), core.ModeRoundRobin, 2)
	require.NoError(t, err)

	require.Len(t, rec.inputs, 2)
	for _, in := range rec.inputs {
		assert.Equal(t, core.KindAgentToAgent, in.Kind)
		assert.Equal(t, sess.ID, in.SessionID)
	}
	assert.Equal(t, "alice", rec.inputs[0].Actor)
	assert.Equal(t, "alice", rec.inputs[1].RelatedActor)
}

func TestRecordFailureDoesNotFailTurn(t *testing.T) {
	o := New(func(opts *Options) { opts.Memory = failingMemory{} })

	sess, err := o.Start(context.Background(), "resilient", roster("alice"), core.ModeRoundRobin, 2)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, sess.Status)
	assert.Len(t, sess.History, 2)
}

type failingMemory struct{}

func (failingMemory) Record(context.Context, memory.RecordInput) (string, error) {
	return "", fmt.Errorf("disk full")
}

func TestSuccessorCycles(t *testing.T) {
	order := []string{"a", "b", "c"}
	assert.Equal(t, "b", successor(order, "a"))
	assert.Equal(t, "a", successor(order, "c"))
	assert.Equal(t, "a", successor(order, "unknown"))
}

func TestBuildPromptWindow(t *testing.T) {
	sess := core.NewSession("s", "the objective", []string{"a", "b"}, core.ModeRoundRobin)
	for i := 1; i <= 8; i++ {
		sess.AppendTurn(core.TurnEntry{Turn: i, Sender: "a", Content: fmt.Sprintf("message %d", i)})
	}

	prompt := buildPrompt(sess, "b")
	assert.Contains(t, prompt, "the objective")
	assert.NotContains(t, prompt, "message 3", "only the trailing window is included")
	assert.Contains(t, prompt, "message 4")
	assert.Contains(t, prompt, "message 8")
	assert.Contains(t, prompt, "You are b")
}

func TestSnippetBounds(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	got := snippet(string(long))
	assert.Len(t, got, snippetLimit+3)
	assert.Equal(t, "short", snippet("short"))
}
