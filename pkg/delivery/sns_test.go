package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/samvad-hq/samvad-news-mapper/internal/domain"
)

type fakeSNSClient struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNSClient) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSNSSenderSendSuccess(t *testing.T) {
	client := &fakeSNSClient{}
	sender := newSNSSender(client, nil)

	sub := domain.Subscriber{
		Name:     "broadcast",
		TopicARN: "arn:aws:sns:::mapper-updates",
	}
	if err := sender.Send(context.Background(), sub, []byte(`{"type":"update"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if client.input == nil {
		t.Fatalf("client was not called")
	}
	if got := aws.ToString(client.input.TopicArn); got != sub.TopicARN {
		t.Fatalf("TopicArn = %s", got)
	}
	if got := aws.ToString(client.input.Message); got != `{"type":"update"}` {
		t.Fatalf("Message = %s", got)
	}
	attr, ok := client.input.MessageAttributes["subscriber"]
	if !ok || aws.ToString(attr.StringValue) != "broadcast" {
		t.Fatalf("subscriber attribute missing or wrong: %#v", attr)
	}
}

func TestSNSSenderMissingTopicARN(t *testing.T) {
	sender := newSNSSender(&fakeSNSClient{}, nil)
	err := sender.Send(context.Background(), domain.Subscriber{Name: "broken"}, []byte(`{}`))
	if err == nil {
		t.Fatalf("expected error for missing topic arn")
	}
}

func TestSNSSenderSendError(t *testing.T) {
	client := &fakeSNSClient{err: errors.New("boom")}
	sender := newSNSSender(client, nil)

	sub := domain.Subscriber{Name: "broadcast", TopicARN: "arn:aws:sns:::t"}
	if err := sender.Send(context.Background(), sub, []byte(`{}`)); err == nil {
		t.Fatalf("expected error from Send")
	}
}
