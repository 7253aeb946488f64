package delivery

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"

	"github.com/samvad-hq/samvad-news-mapper/internal/domain"
)

func TestPubSubSenderPublishes(t *testing.T) {
	// Use the in-memory Pub/Sub emulator.
	server := pstest.NewServer()
	defer server.Close()
	defer os.Unsetenv("PUBSUB_EMULATOR_HOST")
	os.Setenv("PUBSUB_EMULATOR_HOST", server.Addr)

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if _, err := client.CreateTopic(ctx, "mapper-news"); err != nil {
		t.Fatalf("create topic: %v", err)
	}

	sender, err := newPubSubSender(ctx, "test-project", nil)
	if err != nil {
		t.Fatalf("newPubSubSender: %v", err)
	}

	sub := domain.Subscriber{Name: "warehouse", Topic: "mapper-news"}
	if err := sender.Send(ctx, sub, []byte(`{"type":"insert"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msgs := server.Messages()
	if len(msgs) != 1 {
		t.Fatalf("messages on topic = %d, want 1", len(msgs))
	}
	if string(msgs[0].Data) != `{"type":"insert"}` {
		t.Fatalf("message data = %s", msgs[0].Data)
	}
	if msgs[0].Attributes["subscriber"] != "warehouse" {
		t.Fatalf("subscriber attribute = %q", msgs[0].Attributes["subscriber"])
	}
}

func TestPubSubSenderMissingTopic(t *testing.T) {
	server := pstest.NewServer()
	defer server.Close()
	defer os.Unsetenv("PUBSUB_EMULATOR_HOST")
	os.Setenv("PUBSUB_EMULATOR_HOST", server.Addr)

	ctx := context.Background()
	sender, err := newPubSubSender(ctx, "test-project", nil)
	if err != nil {
		t.Fatalf("newPubSubSender: %v", err)
	}

	if err := sender.Send(ctx, domain.Subscriber{Name: "broken"}, []byte(`{}`)); err == nil {
		t.Fatalf("expected error for missing topic")
	}
}
