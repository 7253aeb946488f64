// Package delivery sends fan-out payloads to subscribers over their
// configured transport (HTTP webhook, SQS, SNS, or Pub/Sub).
package delivery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/samvad-hq/samvad-news-mapper/internal/domain"
)

// Sender delivers one payload to one subscriber.
type Sender interface {
	Type() string
	Send(ctx context.Context, sub domain.Subscriber, payload []byte) error
}

// Registry maps transport names to senders.
type Registry struct {
	mu      sync.RWMutex
	senders map[string]Sender
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]Sender)}
}

// Register associates a sender with a transport name.
func (r *Registry) Register(transport string, sender Sender) {
	if transport = strings.TrimSpace(strings.ToLower(transport)); transport == "" || sender == nil {
		return
	}
	r.mu.Lock()
	r.senders[transport] = sender
	r.mu.Unlock()
}

// SenderFor resolves the sender for a subscriber's transport. An empty
// transport means HTTP.
func (r *Registry) SenderFor(sub domain.Subscriber) (Sender, error) {
	transport := strings.ToLower(strings.TrimSpace(sub.Transport))
	if transport == "" {
		transport = domain.TransportHTTP
	}

	r.mu.RLock()
	sender := r.senders[transport]
	r.mu.RUnlock()

	if sender == nil {
		return nil, fmt.Errorf("no sender registered for transport %q", transport)
	}
	return sender, nil
}

// Options configures the default registry.
type Options struct {
	HTTPTimeout  time.Duration
	AWSRegion    string
	GCPProjectID string
	Log          Logger
}

// DefaultRegistry wires up the senders the configuration enables. The HTTP
// sender is always available; SQS/SNS need an AWS region and Pub/Sub a GCP
// project id.
func DefaultRegistry(ctx context.Context, opts Options) (*Registry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	log := ensureLogger(opts.Log)

	reg := NewRegistry()
	reg.Register(domain.TransportHTTP, newHTTPSender(opts.HTTPTimeout, log))

	if opts.AWSRegion != "" {
		awsConf, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(opts.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		reg.Register(domain.TransportSQS, newSQSSender(sqs.NewFromConfig(awsConf), log))
		reg.Register(domain.TransportSNS, newSNSSender(sns.NewFromConfig(awsConf), log))
	}

	if opts.GCPProjectID != "" {
		sender, err := newPubSubSender(ctx, opts.GCPProjectID, log)
		if err != nil {
			return nil, fmt.Errorf("init pubsub sender: %w", err)
		}
		reg.Register(domain.TransportPubSub, sender)
	}

	return reg, nil
}
