package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/memory"
	"github.com/hupe1980/roundtable/session"
)

// TurnRecorder persists conversation turns into long-term memory. The
// orchestrator treats recording as best effort; a failed record is logged
// and never fails the turn.
type TurnRecorder interface {
	Record(ctx context.Context, in memory.RecordInput) (string, error)
}

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// SessionStore persists session state after every turn.
	SessionStore session.Store
	// Memory records each produced turn. Nil disables recording.
	Memory TurnRecorder
	// Sink receives ordered progress notices.
	Sink core.ProgressSink
	// RoutingClient answers intelligent-mode routing questions. Required
	// for ModeIntelligent, ignored otherwise.
	RoutingClient core.InferenceClient
	// StrictRouting errors the session when an intelligent routing answer
	// names an actor outside the configured set, instead of silently
	// advancing round-robin.
	StrictRouting bool
	// Logger receives orchestration diagnostics.
	Logger logging.Logger
}

// Orchestrator runs sessions turn by turn: it selects speakers, builds
// bounded prompts, collects responses, persists state and emits progress.
// Public methods are safe for concurrent use across distinct sessions; a
// single session must only be driven by one run at a time.
type Orchestrator struct {
	sessions      session.Store
	memory        TurnRecorder
	sink          core.ProgressSink
	routingClient core.InferenceClient
	strictRouting bool
	logger        logging.Logger
}

// New constructs an Orchestrator with optional overrides.
func New(optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		SessionStore: session.NewInMemoryStore(),
		Sink:         core.NoopSink{},
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Orchestrator{
		sessions:      opts.SessionStore,
		memory:        opts.Memory,
		sink:          opts.Sink,
		routingClient: opts.RoutingClient,
		strictRouting: opts.StrictRouting,
		logger:        opts.Logger,
	}
}

// Start validates the parameters, creates and persists a new session and
// drives it for up to maxTurns turns. A speaker failure does not return an
// error; it is captured in the session's errored status with the partial
// transcript retained. Errors are reserved for invalid parameters and
// persistence failures.
func (o *Orchestrator) Start(ctx context.Context, objective string, actors []core.Actor, mode core.Mode, maxTurns int) (*core.Session, error) {
	names := actorNames(actors)
	if err := core.ValidateConversation(objective, names, mode, maxTurns); err != nil {
		return nil, err
	}
	if mode == core.ModeIntelligent && o.routingClient == nil {
		return nil, fmt.Errorf("mode %s requires a routing client", mode)
	}

	sess := core.NewSession(core.NewID(), strings.TrimSpace(objective), names, mode)
	rt := o.routerFor(mode)
	sess.NextActor = rt.initial(ctx, sess, actors)

	if err := o.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist new session: %w", err)
	}
	o.logger.Info("session started", "session_id", sess.ID, "mode", string(mode), "actors", len(actors), "max_turns", maxTurns)

	return o.run(ctx, sess, actors, rt, maxTurns)
}

// Resume reloads a persisted session and continues it for up to maxTurns
// additional turns. Turn numbering continues at the stored count plus one;
// the budget is fresh, so a session completed at budget exhaustion can be
// resumed. Errored sessions cannot.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string, actors []core.Actor, maxTurns int) (*core.Session, error) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == core.StatusErrored {
		return nil, fmt.Errorf("session %s ended in error and cannot be resumed", sessionID)
	}
	if maxTurns < 1 || maxTurns > core.MaxTurnBudget {
		return nil, fmt.Errorf("turn budget must be in [1,%d], got %d", core.MaxTurnBudget, maxTurns)
	}
	if sess.Mode == core.ModeIntelligent && o.routingClient == nil {
		return nil, fmt.Errorf("mode %s requires a routing client", sess.Mode)
	}

	byName := make(map[string]struct{}, len(actors))
	for _, a := range actors {
		byName[a.Name()] = struct{}{}
	}
	for _, name := range sess.Actors {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("session actor %q is not in the provided roster", name)
		}
	}

	rt := o.routerFor(sess.Mode)
	sess.Status = core.StatusActive
	if sess.NextActor == "" {
		sess.NextActor = rt.initial(ctx, sess, actors)
	}
	o.logger.Info("session resumed", "session_id", sess.ID, "turn_count", sess.TurnCount, "max_turns", maxTurns)

	return o.run(ctx, sess, actors, rt, maxTurns)
}

func (o *Orchestrator) routerFor(mode core.Mode) router {
	if mode == core.ModeIntelligent {
		return &intelligentRouter{client: o.routingClient, strict: o.strictRouting, logger: o.logger}
	}
	return roundRobinRouter{}
}

// run drives up to budget turns. Session state is persisted before any
// progress for the turn is emitted, so observers never see a turn the store
// could still lose.
func (o *Orchestrator) run(ctx context.Context, sess *core.Session, actors []core.Actor, rt router, budget int) (*core.Session, error) {
	roster := make(map[string]core.Actor, len(actors))
	for _, a := range actors {
		roster[a.Name()] = a
	}

	for used := 0; used < budget; used++ {
		turnNo := sess.TurnCount + 1
		speaker := sess.NextActor

		actor, ok := roster[speaker]
		if !ok {
			return o.fail(ctx, sess, turnNo, fmt.Sprintf("next speaker %q is not in the roster", speaker))
		}

		o.emitSpeaker(core.SpeakerNotice{SessionID: sess.ID, Turn: turnNo, Speaker: speaker})

		content, err := actor.Respond(ctx, buildPrompt(sess, speaker))
		if err != nil {
			return o.fail(ctx, sess, turnNo, fmt.Sprintf("speaker %s failed: %v", speaker, err))
		}
		if strings.TrimSpace(content) == "" {
			return o.fail(ctx, sess, turnNo, fmt.Sprintf("speaker %s returned an empty response", speaker))
		}

		respondingTo, respondingToContent := lastTurn(sess.History)
		next, done, err := rt.next(ctx, sess, actors, speaker, content)
		if err != nil {
			// The response itself was fine; keep it in the transcript.
			sess.AppendTurn(core.TurnEntry{
				Turn: turnNo, Sender: speaker, Content: content,
				Timestamp: time.Now().UTC(), RespondingTo: respondingTo,
			})
			return o.fail(ctx, sess, turnNo, fmt.Sprintf("routing after turn %d: %v", turnNo, err))
		}

		sess.AppendTurn(core.TurnEntry{
			Turn:         turnNo,
			Sender:       speaker,
			Content:      content,
			Timestamp:    time.Now().UTC(),
			NextActor:    next,
			RespondingTo: respondingTo,
		})

		lastTurnOfRun := used == budget-1
		if done || lastTurnOfRun {
			sess.Status = core.StatusCompleted
			sess.NextActor = next
		}

		// The turn exists in memory even if persistence fails; hand the
		// session back with the error so the caller can retry durably.
		if err := o.sessions.Save(ctx, sess); err != nil {
			return sess, fmt.Errorf("persist session after turn %d: %w", turnNo, err)
		}

		o.record(ctx, sess, turnNo, speaker, content, respondingTo)

		o.emitTurn(core.TurnNotice{
			SessionID:           sess.ID,
			Turn:                turnNo,
			Sender:              speaker,
			Content:             content,
			Timestamp:           sess.History[len(sess.History)-1].Timestamp,
			NextSpeaker:         next,
			RespondingTo:        respondingTo,
			RespondingToSnippet: snippet(respondingToContent),
		})

		if sess.Status == core.StatusCompleted {
			reason := "turn budget exhausted"
			if done {
				reason = "objective achieved"
			}
			o.emitStatus(core.StatusNotice{SessionID: sess.ID, Status: sess.Status, Turn: turnNo, Reason: reason})
			o.logger.Info("session completed", "session_id", sess.ID, "turns", sess.TurnCount, "reason", reason)
			return sess, nil
		}
	}
	return sess, nil
}

// fail marks the session errored, persists what it has and reports the
// transition. The partial transcript survives.
func (o *Orchestrator) fail(ctx context.Context, sess *core.Session, turnNo int, reason string) (*core.Session, error) {
	sess.Status = core.StatusErrored
	sess.Updated = time.Now().UTC()
	if err := o.sessions.Save(ctx, sess); err != nil {
		return sess, fmt.Errorf("persist errored session: %w", err)
	}
	o.logger.Error("session errored", "session_id", sess.ID, "turn", turnNo, "reason", reason)
	o.emitStatus(core.StatusNotice{SessionID: sess.ID, Status: core.StatusErrored, Turn: turnNo, Reason: reason})
	return sess, nil
}

// record stores the turn as an agent-to-agent interaction scoped to the
// session. Best effort.
func (o *Orchestrator) record(ctx context.Context, sess *core.Session, turnNo int, speaker, content, respondingTo string) {
	if o.memory == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{"turn": turnNo})
	_, err := o.memory.Record(ctx, memory.RecordInput{
		Actor:        speaker,
		Kind:         core.KindAgentToAgent,
		Content:      content,
		Metadata:     meta,
		RelatedActor: respondingTo,
		SessionID:    sess.ID,
	})
	if err != nil {
		o.logger.Warn("turn memory record failed", "session_id", sess.ID, "turn", turnNo, "error", err)
	}
}

// The emit helpers yield after each notice so sink goroutines waiting on
// channels get scheduled promptly between turns.

func (o *Orchestrator) emitSpeaker(n core.SpeakerNotice) {
	o.sink.SpeakerSelected(n)
	runtime.Gosched()
}

func (o *Orchestrator) emitTurn(n core.TurnNotice) {
	o.sink.TurnCompleted(n)
	runtime.Gosched()
}

func (o *Orchestrator) emitStatus(n core.StatusNotice) {
	o.sink.StatusChanged(n)
	runtime.Gosched()
}

func lastTurn(history []core.TurnEntry) (sender, content string) {
	if len(history) == 0 {
		return "", ""
	}
	last := history[len(history)-1]
	return last.Sender, last.Content
}

func actorNames(actors []core.Actor) []string {
	names := make([]string, len(actors))
	for i, a := range actors {
		names[i] = a.Name()
	}
	return names
}
