package delivery

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/samvad-hq/samvad-news-mapper/internal/domain"
)

// sqsClient defines the minimal subset of the SQS client used by sqsSender.
type sqsClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// sqsSender delivers payloads to subscriber-configured SQS queues.
type sqsSender struct {
	client sqsClient
	log    Logger
}

func newSQSSender(client sqsClient, log Logger) *sqsSender {
	return &sqsSender{client: client, log: ensureLogger(log)}
}

func (s *sqsSender) Type() string { return domain.TransportSQS }

func (s *sqsSender) Send(ctx context.Context, sub domain.Subscriber, payload []byte) error {
	if sub.QueueURL == "" {
		return fmt.Errorf("subscriber %q has no queue url", sub.Name)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(sub.QueueURL),
		MessageBody: aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"subscriber": {
				DataType:    aws.String("String"),
				StringValue: aws.String(sub.Name),
			},
		},
	}

	if _, err := s.client.SendMessage(ctx, input); err != nil {
		s.log.ErrorObj("sqs delivery failed", "delivery_sqs_error", map[string]any{
			"subscriber": sub.Name,
			"error":      err.Error(),
		})
		return fmt.Errorf("send message to sqs: %w", err)
	}
	s.log.DebugObj("sqs delivered payload", "delivery_sqs", map[string]any{
		"subscriber": sub.Name,
	})
	return nil
}
