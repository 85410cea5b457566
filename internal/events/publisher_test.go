package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"deposit-governance/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamValues(t *testing.T) {
	id := uuid.New()
	event := &models.GovernanceEvent{
		ID:         id,
		Sequence:   42,
		Type:       "DepositMade",
		ProposalID: 7,
		Payload:    models.JSONB{"depositor": "alice", "amount": "60"},
		CreatedAt:  time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	values, err := StreamValues(event)
	require.NoError(t, err)
	assert.Equal(t, id.String(), values["id"])
	assert.Equal(t, "42", values["sequence"])
	assert.Equal(t, "DepositMade", values["type"])
	assert.Equal(t, "7", values["proposal_id"])
	assert.Equal(t, "2026-01-01T12:00:00Z", values["created_at"])

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(values["payload"].(string)), &payload))
	assert.Equal(t, "alice", payload["depositor"])
	assert.Equal(t, "60", payload["amount"])
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient("http://not-redis")
	assert.Error(t, err)

	client, err := NewRedisClient("redis://localhost:6379/2")
	require.NoError(t, err)
	assert.Equal(t, 2, client.Options().DB)
	require.NoError(t, client.Close())
}

func TestNewRedisPublisherDefaultsStream(t *testing.T) {
	p := NewRedisPublisher(nil, "", 0)
	assert.Equal(t, StreamGovernanceEvents, p.stream)
}

func TestLogPublisher(t *testing.T) {
	var p Publisher = LogPublisher{}
	assert.NoError(t, p.Publish(context.Background(), &models.GovernanceEvent{Type: "ProposalCreated"}))
}
