package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Subscriber is the subset of the redis store used by the Listener.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Listener consumes integrity events published on broadcast channels,
// typically by other daemon replicas, and hands each decoded event to a
// single handler.
type Listener struct {
	sub     Subscriber
	handler func(Event)
}

// NewListener creates a Listener delivering decoded events to handler.
func NewListener(sub Subscriber, handler func(Event)) *Listener {
	return &Listener{sub: sub, handler: handler}
}

// Listen subscribes to every channel and blocks until ctx is canceled.
// Malformed payloads are logged and skipped; a failed subscription aborts
// the whole call so the caller can decide whether to retry.
func (l *Listener) Listen(ctx context.Context, channels ...string) error {
	merged := make(chan []byte)

	for _, channel := range channels {
		stream, cleanup, err := l.sub.Subscribe(ctx, channel)
		if err != nil {
			return fmt.Errorf("notify.Listener.Listen: subscribe %s: %w", channel, err)
		}
		defer cleanup()

		go func() {
			for payload := range stream {
				select {
				case merged <- payload:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload := <-merged:
			var event Event
			if err := json.Unmarshal(payload, &event); err != nil {
				log.Warn().Err(err).Msg("notify: dropping malformed broadcast payload")
				continue
			}
			l.handler(event)
		}
	}
}
