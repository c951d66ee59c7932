package toolcall

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
)

// Outcome is the uniform shape captured from an action execution.
type Outcome struct {
	Success bool
	Details map[string]any
	Error   string
}

// Result reports one extracted request: what was asked, whether it ran, and
// why not when it didn't. Results are ordered as the requests appear in the
// source text; one failure never blocks sibling requests.
type Result struct {
	Action  string         `json:"action"`
	Params  map[string]any `json:"params,omitempty"`
	Success bool           `json:"success"`
	Details map[string]any `json:"details,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Action is one side-effecting operation the engine can dispatch to.
type Action interface {
	Name() string
	Description() string
	// Schema exposes the action to tool-capable inference providers.
	Schema() core.ToolSchema
	Execute(ctx context.Context, params map[string]any) Outcome
}

// Options configure an Engine.
type Options struct {
	// Root is the workspace directory file actions operate under.
	Root string
	// Logger receives per-request diagnostics.
	Logger logging.Logger
}

// Engine locates, repairs, authorizes and executes action requests embedded
// in actor output. Safe for concurrent use once constructed; Register must
// not be called after the engine is shared.
type Engine struct {
	actions map[string]Action
	logger  logging.Logger
}

// NewEngine creates an Engine with the standard file and search actions
// rooted at the configured workspace directory.
func NewEngine(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Root:   "workspace",
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	e := &Engine{actions: map[string]Action{}, logger: opts.Logger}
	for _, a := range fileActions(opts.Root) {
		e.Register(a)
	}
	return e
}

// Register adds an action to the dispatch table, replacing any action with
// the same name.
func (e *Engine) Register(a Action) { e.actions[a.Name()] = a }

// Actions returns the registered actions sorted by name.
func (e *Engine) Actions() []Action {
	names := make([]string, 0, len(e.actions))
	for n := range e.actions {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]Action, len(names))
	for i, n := range names {
		out[i] = e.actions[n]
	}
	return out
}

// Allowed filters the registered actions down to an allow-list. A nil list
// allows every registered action; an empty non-nil list allows none.
func (e *Engine) Allowed(allowList []string) []Action {
	if allowList == nil {
		return e.Actions()
	}
	permitted := make(map[string]struct{}, len(allowList))
	for _, n := range allowList {
		permitted[n] = struct{}{}
	}
	var out []Action
	for _, a := range e.Actions() {
		if _, ok := permitted[a.Name()]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Execute scans text for action requests, executes the well-formed and
// authorized ones, and returns the annotated text plus one Result per
// request. It never returns an error: every malformation or denial degrades
// to a failed Result and an inline marker. Text outside matched regions is
// returned byte-for-byte unchanged.
func (e *Engine) Execute(ctx context.Context, text string, allowList []string) (string, []Result) {
	candidates := scan(text)
	if len(candidates) == 0 {
		return text, nil
	}

	var b strings.Builder
	results := make([]Result, 0, len(candidates))
	last := 0
	for _, c := range candidates {
		b.WriteString(text[last:c.start])
		res := e.handle(ctx, c, allowList)
		results = append(results, res)
		b.WriteString(marker(res))
		last = c.end
	}
	b.WriteString(text[last:])
	return b.String(), results
}

// ExecuteInvocation runs one structured invocation surfaced by a
// tool-capable provider through the same authorization and dispatch path as
// extracted requests. It never returns an error.
func (e *Engine) ExecuteInvocation(ctx context.Context, inv core.ToolInvocation, allowList []string) Result {
	payload := string(inv.Arguments)
	if payload == "" {
		payload = "{}"
	}
	params, err := parseParams(payload)
	if err != nil {
		return Result{Action: fallbackName(inv.Name), Success: false, Error: err.Error()}
	}
	return e.dispatch(ctx, inv.Name, params, allowList)
}

// Marker renders the inline annotation for a processed request, as spliced
// into annotated actor output.
func Marker(r Result) string { return marker(r) }

func (e *Engine) handle(ctx context.Context, c candidate, allowList []string) Result {
	name := c.action

	if c.truncated {
		return Result{Action: fallbackName(name), Success: false, Error: "unterminated parameter object"}
	}

	params, err := parseParams(c.payload)
	if err != nil {
		e.logger.Warn("action request parse failed", "action", fallbackName(name), "error", err)
		return Result{Action: fallbackName(name), Success: false, Error: err.Error()}
	}

	// Envelope form carries the action name inside the payload.
	if name == "" {
		n, _ := params["tool"].(string)
		if n == "" {
			return Result{Action: "unknown", Params: params, Success: false, Error: "missing action name"}
		}
		name = n
		if inner, ok := params["params"].(map[string]any); ok {
			params = inner
		} else {
			delete(params, "tool")
		}
	}

	return e.dispatch(ctx, name, params, allowList)
}

func (e *Engine) dispatch(ctx context.Context, name string, params map[string]any, allowList []string) Result {
	if !allowed(name, allowList) {
		e.logger.Info("action denied", "action", name)
		return Result{
			Action:  name,
			Params:  params,
			Success: false,
			Error:   fmt.Sprintf("access denied: action %q is not available for this actor (allowed: %s)", name, allowedList(allowList)),
		}
	}

	action, ok := e.actions[name]
	if !ok {
		return Result{Action: name, Params: params, Success: false, Error: fmt.Sprintf("unknown action %q", name)}
	}

	outcome := action.Execute(ctx, params)
	e.logger.Debug("action executed", "action", name, "success", outcome.Success)
	return Result{
		Action:  name,
		Params:  params,
		Success: outcome.Success,
		Details: outcome.Details,
		Error:   outcome.Error,
	}
}

// allowed reports whether name passes the allow-list. A nil list allows
// everything; an empty non-nil list allows nothing.
func allowed(name string, allowList []string) bool {
	if allowList == nil {
		return true
	}
	for _, n := range allowList {
		if n == name {
			return true
		}
	}
	return false
}

func allowedList(allowList []string) string {
	if len(allowList) == 0 {
		return "none"
	}
	return strings.Join(allowList, ", ")
}

func fallbackName(name string) string {
	if name == "" {
		return "unknown"
	}
	return name
}

// marker renders the concise inline replacement for a processed request.
func marker(r Result) string {
	if r.Success {
		if path, ok := r.Details["path"].(string); ok {
			return fmt.Sprintf("[Executed: %s - Success (%s)]", r.Action, path)
		}
		return fmt.Sprintf("[Executed: %s - Success]", r.Action)
	}
	return fmt.Sprintf("[Executed: %s - Error: %s]", r.Action, r.Error)
}
