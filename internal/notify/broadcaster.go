// Package notify fans integrity state transitions out to interested
// listeners. Delivery is fire-and-forget: a sink failure is logged and
// never unwinds the primary state change that triggered it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/custodia-legal/custodia/internal/messenger"
)

// Event is one integrity transition pushed to listeners.
type Event struct {
	WorkspaceID uuid.UUID      `json:"workspaceId"`
	Kind        string         `json:"kind"`
	Payload     map[string]any `json:"payload,omitempty"`
	At          time.Time      `json:"at"`
}

// Sink delivers events to one destination.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Name() string
}

// Broadcaster fans one event out to every registered sink.
type Broadcaster struct {
	sinks []Sink
}

// New creates a Broadcaster over the given sinks.
func New(sinks ...Sink) *Broadcaster {
	return &Broadcaster{sinks: sinks}
}

// Broadcast delivers the event to all sinks. Errors are logged per sink;
// the caller's state transition has already happened and must not fail.
func (b *Broadcaster) Broadcast(ctx context.Context, workspaceID uuid.UUID, kind string, payload map[string]any) {
	event := Event{
		WorkspaceID: workspaceID,
		Kind:        kind,
		Payload:     payload,
		At:          time.Now().UTC(),
	}

	for _, sink := range b.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			log.Warn().Err(err).Str("sink", sink.Name()).Str("kind", kind).
				Stringer("workspace_id", workspaceID).Msg("notify: sink delivery failed")
		}
	}
}

// PubSub is the subset of the redis store used by the pub/sub sink.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// PubSubSink publishes events on the workspace integrity channel.
type PubSubSink struct {
	pubsub  PubSub
	channel func(workspaceID uuid.UUID) string
}

// NewPubSubSink creates a PubSubSink. channel maps a workspace to its
// broadcast channel name.
func NewPubSubSink(pubsub PubSub, channel func(uuid.UUID) string) *PubSubSink {
	return &PubSubSink{pubsub: pubsub, channel: channel}
}

func (s *PubSubSink) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify.PubSubSink.Publish: marshal: %w", err)
	}

	if err := s.pubsub.Publish(ctx, s.channel(event.WorkspaceID), data); err != nil {
		return fmt.Errorf("notify.PubSubSink.Publish: %w", err)
	}

	return nil
}

func (s *PubSubSink) Name() string { return "pubsub" }

// MessengerSink pushes a human-readable line to a chat channel.
type MessengerSink struct {
	messenger messenger.Messenger
	channelID string
}

// NewMessengerSink creates a MessengerSink posting to channelID.
func NewMessengerSink(m messenger.Messenger, channelID string) *MessengerSink {
	return &MessengerSink{messenger: m, channelID: channelID}
}

func (s *MessengerSink) Publish(ctx context.Context, event Event) error {
	text := fmt.Sprintf("[%s] workspace %s: %s", event.At.Format(time.RFC3339), event.WorkspaceID, event.Kind)
	if reason, ok := event.Payload["reason"].(string); ok {
		text += " (" + reason + ")"
	}

	if err := s.messenger.SendMessage(ctx, s.channelID, text); err != nil {
		return fmt.Errorf("notify.MessengerSink.Publish: %w", err)
	}

	return nil
}

func (s *MessengerSink) Name() string { return s.messenger.Platform() }
