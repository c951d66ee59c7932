package orchestrator

import (
	"fmt"
	"strings"

	"github.com/hupe1980/roundtable/core"
)

const (
	// promptWindowTurns bounds how many trailing turns enter a prompt.
	promptWindowTurns = 5
	// snippetLimit bounds per-turn content inside prompts and notices.
	snippetLimit = 200
)

// buildPrompt assembles the bounded prompt a speaker responds to: the
// objective plus a capped window of recent turns. Prompt size stays bounded
// regardless of conversation length.
func buildPrompt(sess *core.Session, speaker string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %s\n\n", sess.Objective)
	if len(sess.History) == 0 {
		b.WriteString("The conversation is just starting.\n")
	} else {
		b.WriteString("Recent conversation:\n")
		b.WriteString(historyWindow(sess.History))
	}
	fmt.Fprintf(&b, "\nYou are %s. Give your next contribution toward the objective.", speaker)
	return b.String()
}

// historyWindow renders the trailing turns as one line each, snippeted.
func historyWindow(history []core.TurnEntry) string {
	start := len(history) - promptWindowTurns
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	for _, e := range history[start:] {
		fmt.Fprintf(&b, "%s: %s\n", e.Sender, snippet(e.Content))
	}
	return b.String()
}

func snippet(content string) string {
	if len(content) <= snippetLimit {
		return content
	}
	return content[:snippetLimit] + "..."
}
