package pipeline

import (
	"context"

	"github.com/sells-group/customer-intel/internal/model"
	"github.com/sells-group/customer-intel/internal/queue"
	"github.com/sells-group/customer-intel/internal/store"
)

// decode unmarshals a message body; malformed payloads are invalid input,
// not transport failures, so they never retry.
func decode(msg queue.Message, v any) error {
	if err := msg.Decode(v); err != nil {
		return &model.ValidationError{
			Subject: string(msg.Topic),
			Fields:  []model.FieldError{{Field: "body", Reason: "malformed JSON"}},
		}
	}
	return nil
}

// HandleMasterData is the pipeline entry stage: it resolves the base facts
// for a company and triggers its assessment.
func (p *Pipeline) HandleMasterData(ctx context.Context, msg queue.Message) error {
	var req model.ResearchRequest
	if err := decode(msg, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	_, _, err := resolve(ctx, p.store, store.CollectionMasterData, req.Domain,
		func(ctx context.Context) (*model.MasterData, map[string][]float32, error) {
			md, err := p.generateMasterData(ctx, req)
			return md, nil, err
		})
	if err != nil {
		return err
	}

	return p.queue.Publish(ctx, queue.TopicAssessment, req)
}
