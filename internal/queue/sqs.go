package queue

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SQSAPI is the subset of the SQS client the transport uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQS is the production transport. Redelivery ceilings and dead-letter
// queues are configured on the queues themselves.
type SQS struct {
	client    SQSAPI
	queueURLs map[Topic]string
	waitTime  int32
}

// NewSQS builds the SQS transport from the ambient AWS config.
func NewSQS(ctx context.Context, region string, queueURLs map[string]string, waitTimeSecs int) (*SQS, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, eris.Wrap(err, "sqs: load aws config")
	}
	return NewSQSWithClient(sqs.NewFromConfig(awsCfg), queueURLs, waitTimeSecs), nil
}

// NewSQSWithClient wraps an existing client (tests inject a fake here).
func NewSQSWithClient(client SQSAPI, queueURLs map[string]string, waitTimeSecs int) *SQS {
	urls := make(map[Topic]string, len(queueURLs))
	for topic, url := range queueURLs {
		urls[Topic(topic)] = url
	}
	if waitTimeSecs <= 0 {
		waitTimeSecs = 20
	}
	return &SQS{client: client, queueURLs: urls, waitTime: int32(waitTimeSecs)}
}

func (s *SQS) url(topic Topic) (string, error) {
	url, ok := s.queueURLs[topic]
	if !ok {
		return "", eris.Errorf("sqs: no queue configured for topic %s", topic)
	}
	return url, nil
}

// Publish sends one message to the topic's queue.
func (s *SQS) Publish(ctx context.Context, topic Topic, payload any) error {
	url, err := s.url(topic)
	if err != nil {
		return err
	}
	raw, err := Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(string(raw)),
	})
	return eris.Wrapf(err, "sqs: send to %s", topic)
}

// Consume long-polls the topic's queue and processes each delivery in
// sequence. Acked messages are deleted; failed ones stay for redelivery
// until the queue's receive ceiling moves them to its dead-letter queue.
func (s *SQS) Consume(ctx context.Context, topic Topic, h Handler) error {
	url, err := s.url(topic)
	if err != nil {
		return err
	}
	log := zap.L().With(zap.String("topic", string(topic)))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(url),
			MaxNumberOfMessages:   10,
			WaitTimeSeconds:       s.waitTime,
			MessageAttributeNames: []string{"All"},
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("sqs: receive failed", zap.Error(err))
			continue
		}

		// Sequential processing bounds concurrent generation calls.
		for _, raw := range out.Messages {
			msg := Message{
				Topic:        topic,
				Body:         []byte(aws.ToString(raw.Body)),
				ReceiveCount: receiveCount(raw),
			}
			if err := h(ctx, msg); err != nil {
				log.Warn("sqs: handler failed, leaving message for redelivery",
					zap.Int("receive_count", msg.ReceiveCount),
					zap.Error(err),
				)
				continue
			}
			if _, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(url),
				ReceiptHandle: raw.ReceiptHandle,
			}); err != nil {
				// The message will come back; handlers are idempotent.
				log.Warn("sqs: delete failed", zap.Error(err))
			}
		}
	}
}

func receiveCount(msg types.Message) int {
	val, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
