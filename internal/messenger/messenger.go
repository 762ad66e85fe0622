package messenger

import "context"

// Messenger abstracts a chat platform used for integrity alerting.
// Implementations handle platform-specific API calls; the interface is
// platform-agnostic.
type Messenger interface {
	// SendMessage posts a text message to a channel.
	SendMessage(ctx context.Context, channelID, text string) error

	// Platform returns the messenger platform identifier (e.g. "slack").
	Platform() string
}
