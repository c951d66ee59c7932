package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
)

const (
	routingTemperature = 0.3
	routingMaxTokens   = 50
	endSignal          = "END"
	currentSignal      = "current"
)

// router picks speakers. Implementations must be deterministic against the
// session state they are handed; any model interaction happens inside next.
type router interface {
	// initial picks the first speaker of a run.
	initial(ctx context.Context, sess *core.Session, roster []core.Actor) string
	// next picks the speaker following a completed turn. done=true signals
	// the objective is achieved and the session should complete.
	next(ctx context.Context, sess *core.Session, roster []core.Actor, lastSender, lastContent string) (name string, done bool, err error)
}

// roundRobinRouter cycles through the configured actor order unconditionally.
type roundRobinRouter struct{}

func (roundRobinRouter) initial(_ context.Context, sess *core.Session, _ []core.Actor) string {
	return sess.Actors[0]
}

func (roundRobinRouter) next(_ context.Context, sess *core.Session, _ []core.Actor, lastSender, _ string) (string, bool, error) {
	return successor(sess.Actors, lastSender), false, nil
}

// successor returns the cyclic follower of name in order; unknown names map
// to the first element.
func successor(order []string, name string) string {
	for i, a := range order {
		if a == name {
			return order[(i+1)%len(order)]
		}
	}
	return order[0]
}

// intelligentRouter asks the inference client who should speak next. Routing
// answers are one of: an actor name, "current" to keep the floor, or "END"
// when the objective is achieved. Unusable answers fall back to round-robin
// advancement unless strict mode is on, in which case they error the session.
type intelligentRouter struct {
	client core.InferenceClient
	strict bool
	logger logging.Logger
}

func (r *intelligentRouter) initial(ctx context.Context, sess *core.Session, roster []core.Actor) string {
	prompt := fmt.Sprintf(
		"You are coordinating a collaboration between specialists.\n\nObjective: %s\n\nSpecialists:\n%s\nWho should speak first? Reply with exactly one name from the list.",
		sess.Objective, describeRoster(roster))

	answer, err := r.ask(ctx, prompt)
	if err != nil {
		r.logger.Warn("initial routing call failed, using first actor", "error", err)
		return sess.Actors[0]
	}
	if name, ok := matchActor(answer, sess.Actors); ok {
		return name
	}
	r.logger.Warn("initial routing answer not in actor set, using first actor", "answer", answer)
	return sess.Actors[0]
}

func (r *intelligentRouter) next(ctx context.Context, sess *core.Session, roster []core.Actor, lastSender, lastContent string) (string, bool, error) {
	prompt := fmt.Sprintf(
		"You are coordinating a collaboration between specialists.\n\nObjective: %s\n\nSpecialists:\n%s\nRecent conversation:\n%s\n%s just said: %s\n\nWho should speak next? Reply with exactly one name from the list, %q to let %s continue, or %q if the objective is achieved.",
		sess.Objective, describeRoster(roster), historyWindow(sess.History),
		lastSender, snippet(lastContent), currentSignal, lastSender, endSignal)

	answer, err := r.ask(ctx, prompt)
	if err != nil {
		r.logger.Warn("routing call failed, advancing round-robin", "error", err)
		return successor(sess.Actors, lastSender), false, nil
	}

	cleaned := cleanAnswer(answer)
	switch {
	case strings.EqualFold(cleaned, endSignal):
		return "", true, nil
	case strings.EqualFold(cleaned, currentSignal):
		return lastSender, false, nil
	}
	if name, ok := matchActor(answer, sess.Actors); ok {
		return name, false, nil
	}
	if r.strict {
		return "", false, fmt.Errorf("routing answer %q does not name a configured actor", cleaned)
	}
	r.logger.Warn("routing answer not in actor set, advancing round-robin", "answer", cleaned)
	return successor(sess.Actors, lastSender), false, nil
}

func (r *intelligentRouter) ask(ctx context.Context, prompt string) (string, error) {
	messages := []core.Message{
		{Role: "system", Content: "You route turns in a multi-specialist collaboration. Answer with a single token."},
		{Role: "user", Content: prompt},
	}
	return r.client.Chat(ctx, messages, routingTemperature, routingMaxTokens)
}

func describeRoster(roster []core.Actor) string {
	var b strings.Builder
	for _, a := range roster {
		fmt.Fprintf(&b, "- %s: %s\n", a.Name(), a.Description())
	}
	return b.String()
}

// matchActor resolves a routing answer to a configured actor name. The
// answer is trimmed of quotes and punctuation and compared case-insensitively.
func matchActor(answer string, actors []string) (string, bool) {
	cleaned := cleanAnswer(answer)
	for _, a := range actors {
		if strings.EqualFold(cleaned, a) {
			return a, true
		}
	}
	return "", false
}

func cleanAnswer(answer string) string {
	return strings.Trim(strings.TrimSpace(answer), "\"'`.,:!")
}
