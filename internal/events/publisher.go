package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "site:events:" // site:events:{project_public_id}

const (
	TypeBuildStarted   = "build.started"
	TypeBuildCompleted = "build.completed"
	TypeBuildFailed    = "build.failed"
)

// Event is the payload fanned out to anyone watching a project's
// channel, typically a frontend waiting to refresh its preview.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ProjectID string    `json:"project_id"`
	Version   int       `json:"version,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher pushes build lifecycle events over Redis pub/sub.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) BuildStarted(ctx context.Context, publicID string) error {
	return p.publish(ctx, publicID, Event{
		Type:      TypeBuildStarted,
		ProjectID: publicID,
	})
}

func (p *Publisher) BuildCompleted(ctx context.Context, publicID string, version int) error {
	return p.publish(ctx, publicID, Event{
		Type:      TypeBuildCompleted,
		ProjectID: publicID,
		Version:   version,
	})
}

func (p *Publisher) BuildFailed(ctx context.Context, publicID, detail string) error {
	return p.publish(ctx, publicID, Event{
		Type:      TypeBuildFailed,
		ProjectID: publicID,
		Detail:    detail,
	})
}

func (p *Publisher) publish(ctx context.Context, publicID string, ev Event) error {
	ev.ID = uuid.NewString()
	ev.At = time.Now().UTC()

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, channelPrefix+publicID, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
