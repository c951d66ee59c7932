// Package messagebus routes direct agent-to-agent messages through the
// interaction store. A send writes a paired record: one row for the sender
// and one addressed row for the receiver, so either side's history shows
// the exchange.
package messagebus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/memory"
)

// Store is the slice of the interaction store the bus needs.
type Store interface {
	Record(ctx context.Context, in memory.RecordInput) (string, error)
	Query(ctx context.Context, f memory.QueryFilter) ([]core.Interaction, error)
}

// Roster names the actors eligible to receive messages.
type Roster interface {
	Names() []string
}

// Options configures the Bus.
type Options struct {
	// SessionID scopes every recorded message to one session; empty means
	// unscoped.
	SessionID string
	Logger    logging.Logger
}

// Bus delivers messages between named actors, persisting each exchange.
type Bus struct {
	store     Store
	roster    Roster
	sessionID string
	logger    logging.Logger
}

// New constructs a Bus over the given store and roster.
func New(store Store, roster Roster, optFns ...func(o *Options)) *Bus {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Bus{
		store:     store,
		roster:    roster,
		sessionID: opts.SessionID,
		logger:    opts.Logger,
	}
}

// Send delivers a message from sender to receiver. The receiver must be on
// the roster. Two interactions are recorded: the sender's outgoing message
// related to the receiver, and the receiver's incoming copy related to the
// sender.
func (b *Bus) Send(ctx context.Context, sender, receiver, content string, metadata map[string]any) error {
	if !b.knows(receiver) {
		return fmt.Errorf("unknown receiver %q", receiver)
	}

	var outMeta json.RawMessage
	if len(metadata) > 0 {
		var err error
		outMeta, err = core.EncodeMetadata(metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}
	if _, err := b.store.Record(ctx, memory.RecordInput{
		Actor:        sender,
		Kind:         core.KindAgentToAgent,
		Content:      content,
		Metadata:     outMeta,
		RelatedActor: receiver,
		SessionID:    b.sessionID,
	}); err != nil {
		return fmt.Errorf("record outgoing message: %w", err)
	}

	inbound := map[string]any{"sender": sender}
	for k, v := range metadata {
		inbound[k] = v
	}
	inMeta, err := core.EncodeMetadata(inbound)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if _, err := b.store.Record(ctx, memory.RecordInput{
		Actor:        receiver,
		Kind:         core.KindAgentToAgent,
		Content:      fmt.Sprintf("Message from %s: %s", sender, content),
		Metadata:     inMeta,
		RelatedActor: sender,
		SessionID:    b.sessionID,
	}); err != nil {
		return fmt.Errorf("record incoming message: %w", err)
	}

	b.logger.Debug("message delivered", "sender", sender, "receiver", receiver)
	return nil
}

// Broadcast sends content to every roster member except the sender and any
// excluded names. Individual delivery failures are logged and skipped; the
// count of successful deliveries is returned alongside the first failure.
func (b *Bus) Broadcast(ctx context.Context, sender, content string, exclude ...string) (int, error) {
	skip := map[string]bool{sender: true}
	for _, name := range exclude {
		skip[name] = true
	}

	sent := 0
	var firstErr error
	for _, name := range b.roster.Names() {
		if skip[name] {
			continue
		}
		if err := b.Send(ctx, sender, name, content, nil); err != nil {
			b.logger.Warn("broadcast delivery failed", "receiver", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}
	return sent, firstErr
}

// MessagesFor returns messages recorded for recipient, newest first,
// optionally restricted to one sender.
func (b *Bus) MessagesFor(ctx context.Context, recipient, from string, limit int) ([]core.Interaction, error) {
	return b.store.Query(ctx, memory.QueryFilter{
		Actor:        recipient,
		Kind:         core.KindAgentToAgent,
		RelatedActor: from,
		Session:      b.sessionScope(),
		Limit:        limit,
	})
}

func (b *Bus) knows(name string) bool {
	for _, n := range b.roster.Names() {
		if n == name {
			return true
		}
	}
	return false
}

func (b *Bus) sessionScope() memory.SessionFilter {
	if b.sessionID == "" {
		return memory.AnySession()
	}
	return memory.InSession(b.sessionID)
}
