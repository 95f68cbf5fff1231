// Package queue abstracts the at-least-once message transport between
// pipeline stages. Messages are flat JSON; consumers must tolerate
// duplicates, reordering, and unknown fields.
package queue

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Topic routes a message to its stage handler.
type Topic string

const (
	TopicMasterData          Topic = "masterdata"
	TopicAssessment          Topic = "assessment"
	TopicCompetition         Topic = "competition"
	TopicMarketAnalysis      Topic = "market-analysis"
	TopicNews                Topic = "news"
	TopicCompetitionAnalysis Topic = "competition-analysis"
	TopicITStrategy          Topic = "it-strategy"
	TopicServiceMatching     Topic = "service-matching"
	TopicMeetingPrep         Topic = "meeting-prep"
	TopicIngest              Topic = "ingest"
	TopicBatchCheck          Topic = "batch-check"
)

// Topics lists every stage topic.
func Topics() []Topic {
	return []Topic{
		TopicMasterData,
		TopicAssessment,
		TopicCompetition,
		TopicMarketAnalysis,
		TopicNews,
		TopicCompetitionAnalysis,
		TopicITStrategy,
		TopicServiceMatching,
		TopicMeetingPrep,
		TopicIngest,
		TopicBatchCheck,
	}
}

// Message is one delivery. ReceiveCount starts at 1 and grows with each
// redelivery; dead-lettering past the receive ceiling is the transport's
// concern, not the consumer's.
type Message struct {
	Topic        Topic
	Body         json.RawMessage
	ReceiveCount int
}

// Decode unmarshals the message body, tolerating unknown fields.
func (m Message) Decode(v any) error {
	return eris.Wrapf(json.Unmarshal(m.Body, v), "queue: decode %s message", m.Topic)
}

// Publisher enqueues stage messages.
type Publisher interface {
	Publish(ctx context.Context, topic Topic, payload any) error
}

// Handler processes one delivery. A nil return acknowledges the message; an
// error leaves it for redelivery.
type Handler func(ctx context.Context, msg Message) error

// Consumer drives a handler with deliveries from one topic until the
// context is cancelled.
type Consumer interface {
	Consume(ctx context.Context, topic Topic, h Handler) error
}

// Marshal encodes a payload for publishing.
func Marshal(payload any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "queue: marshal payload")
	}
	return raw, nil
}
