package roster

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher emits roster change events on the feed channel. Account
// mutations publish after commit so every subscribed Synchronizer reloads
// its snapshot.
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher constructs a Publisher. An empty channel selects
// ChangeChannel.
func NewPublisher(client *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = ChangeChannel
	}
	return &Publisher{client: client, channel: channel}
}

// PublishChange signals that the account collection changed. The payload
// carries no data; subscribers reload the full snapshot from the store.
func (p *Publisher) PublishChange(ctx context.Context) error {
	if err := p.client.Publish(ctx, p.channel, "changed").Err(); err != nil {
		return fmt.Errorf("roster: publish change: %w", err)
	}
	return nil
}
