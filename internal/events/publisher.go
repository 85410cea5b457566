package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"deposit-governance/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// StreamGovernanceEvents is the Redis stream committed governance events are relayed to
const StreamGovernanceEvents = "governance.events"

// Publisher delivers committed outbox events to subscribers
type Publisher interface {
	Publish(ctx context.Context, event *models.GovernanceEvent) error
}

// NewRedisClient builds a client from a redis:// URL
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

// RedisPublisher appends events to a Redis stream
type RedisPublisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

func NewRedisPublisher(rdb *redis.Client, stream string, maxLen int64) *RedisPublisher {
	if stream == "" {
		stream = StreamGovernanceEvents
	}
	return &RedisPublisher{rdb: rdb, stream: stream, maxLen: maxLen}
}

// Publish appends one event to the stream
func (p *RedisPublisher) Publish(ctx context.Context, event *models.GovernanceEvent) error {
	values, err := StreamValues(event)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if _, err := p.rdb.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish event %d: %w", event.Sequence, err)
	}
	return nil
}

// Ping checks the connection
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// StreamValues flattens an outbox event into stream entry fields
func StreamValues(event *models.GovernanceEvent) (map[string]interface{}, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event payload: %w", err)
	}
	return map[string]interface{}{
		"id":          event.ID.String(),
		"sequence":    strconv.FormatInt(event.Sequence, 10),
		"type":        event.Type,
		"proposal_id": strconv.FormatUint(event.ProposalID, 10),
		"payload":     string(payload),
		"created_at":  event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

// LogPublisher writes events to the log. Used when no Redis is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event *models.GovernanceEvent) error {
	log.Info().
		Int64("sequence", event.Sequence).
		Str("type", event.Type).
		Uint64("proposal_id", event.ProposalID).
		Interface("payload", event.Payload).
		Msg("[Events] governance event")
	return nil
}
