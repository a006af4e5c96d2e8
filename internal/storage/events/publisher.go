package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/behzadon/podium/internal/domain"
)

const (
	Exchange = "podium"

	TypeVoteSubmitted = "vote.submitted"
	TypeShareVerified = "share.verified"
	TypeShareSkipped  = "share.skipped"
)

type Publisher interface {
	PublishVoteSubmitted(ctx context.Context, event domain.VoteSubmitted) error
	PublishShareCompleted(ctx context.Context, event domain.ShareCompleted) error
	Close() error
}

// envelope is the wire format shared by publisher and consumer.
type envelope struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func shareRoutingKey(status domain.ShareOutcomeStatus) string {
	if status == domain.ShareSkipped {
		return TypeShareSkipped
	}
	return TypeShareVerified
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

func encodeEvent(eventType string, at time.Time, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	body, err := json.Marshal(envelope{
		Type:      eventType,
		Timestamp: timestamp(at),
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return body, nil
}
