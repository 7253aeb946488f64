package delivery

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/samvad-hq/samvad-news-mapper/internal/domain"
)

// snsClient defines the minimal subset of the SNS client used by snsSender.
type snsClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// snsSender delivers payloads to subscriber-configured SNS topics.
type snsSender struct {
	client snsClient
	log    Logger
}

func newSNSSender(client snsClient, log Logger) *snsSender {
	return &snsSender{client: client, log: ensureLogger(log)}
}

func (s *snsSender) Type() string { return domain.TransportSNS }

func (s *snsSender) Send(ctx context.Context, sub domain.Subscriber, payload []byte) error {
	if sub.TopicARN == "" {
		return fmt.Errorf("subscriber %q has no topic arn", sub.Name)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(sub.TopicARN),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"subscriber": {
				DataType:    aws.String("String"),
				StringValue: aws.String(sub.Name),
			},
		},
	}

	if _, err := s.client.Publish(ctx, input); err != nil {
		s.log.ErrorObj("sns delivery failed", "delivery_sns_error", map[string]any{
			"subscriber": sub.Name,
			"error":      err.Error(),
		})
		return fmt.Errorf("publish to sns: %w", err)
	}
	s.log.DebugObj("sns delivered payload", "delivery_sns", map[string]any{
		"subscriber": sub.Name,
	})
	return nil
}
