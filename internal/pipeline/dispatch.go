package pipeline

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/customer-intel/internal/monitoring"
	"github.com/sells-group/customer-intel/internal/queue"
)

// IngestStage is the ingestion side of the pipeline, wired in separately so
// the research stages stay independent of the file-store client.
type IngestStage interface {
	HandleIngest(ctx context.Context, msg queue.Message) error
	HandleBatchCheck(ctx context.Context, msg queue.Message) error
}

// Routes maps every stage topic to its classified handler.
func (p *Pipeline) Routes(ing IngestStage) queue.Router {
	routes := map[queue.Topic]queue.Handler{
		queue.TopicMasterData:          p.HandleMasterData,
		queue.TopicAssessment:          p.HandleAssessment,
		queue.TopicCompetition:         p.HandleCompetition,
		queue.TopicMarketAnalysis:      p.HandleMarketAnalysis,
		queue.TopicNews:                p.HandleNews,
		queue.TopicCompetitionAnalysis: p.HandleCompetitionAnalysis,
		queue.TopicITStrategy:          p.HandleITStrategy,
		queue.TopicServiceMatching:     p.HandleServiceMatching,
		queue.TopicMeetingPrep:         p.HandleMeetingPrep,
	}
	if ing != nil {
		routes[queue.TopicIngest] = ing.HandleIngest
		routes[queue.TopicBatchCheck] = ing.HandleBatchCheck
	}
	for topic, h := range routes {
		routes[topic] = p.classified(h)
	}
	return func(topic queue.Topic) (queue.Handler, bool) {
		h, ok := routes[topic]
		return h, ok
	}
}

// classified wraps a handler with the error taxonomy: terminal errors are
// logged and acknowledged, retryable ones go back to the transport. A
// message on its final delivery gets reported before it dead-letters.
func (p *Pipeline) classified(h queue.Handler) queue.Handler {
	return func(ctx context.Context, msg queue.Message) error {
		err := h(ctx, msg)
		if err == nil {
			return nil
		}
		if shouldDrop(err) {
			zap.L().Warn("dropping message",
				zap.String("topic", string(msg.Topic)),
				zap.Error(err),
			)
			return nil
		}
		if max := p.cfg.MaxReceive; max > 0 && msg.ReceiveCount >= max {
			reportErr := p.reporter.Report(ctx, monitoring.Incident{
				Kind:    monitoring.IncidentStageDeadLettered,
				Subject: string(msg.Body),
				Stage:   string(msg.Topic),
				Message: err.Error(),
				Details: map[string]string{
					"receiveCount": strconv.Itoa(msg.ReceiveCount),
				},
			})
			if reportErr != nil {
				zap.L().Error("incident report failed", zap.Error(reportErr))
			}
		}
		return err
	}
}
