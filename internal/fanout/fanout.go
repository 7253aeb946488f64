// Package fanout delivers published and enhanced headline batches to every
// eligible subscriber, tallying per-subscriber outcomes without letting one
// failure stop the rest.
package fanout

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/samvad-hq/samvad-news-mapper/internal/domain"
	"github.com/samvad-hq/samvad-news-mapper/internal/logger"
	"github.com/samvad-hq/samvad-news-mapper/internal/metrics"
	"github.com/samvad-hq/samvad-news-mapper/internal/storage"
	"github.com/samvad-hq/samvad-news-mapper/pkg/delivery"
)

// Mode selects the payload variant and the subscriber set.
type Mode string

const (
	// ModeInsert announces freshly stored headlines to all active subscribers.
	ModeInsert Mode = "insert"
	// ModeUpdate announces enhancements to active client-type subscribers.
	ModeUpdate Mode = "update"
)

// Event is one batch to fan out.
type Event struct {
	Mode           Mode
	Headlines      []domain.Headline
	Entries        []domain.Enhancement
	SourceLanguage string
}

// Dispatcher fans events out across the subscriber registry.
type Dispatcher struct {
	store       *storage.Store
	senders     *delivery.Registry
	log         logger.Logger
	parallelism int
}

// NewDispatcher builds a dispatcher. Parallelism bounds concurrent
// deliveries; values below one fall back to sequential dispatch.
func NewDispatcher(store *storage.Store, senders *delivery.Registry, log logger.Logger, parallelism int) *Dispatcher {
	if log == nil {
		log = &logger.NopLogger{}
	}
	if parallelism < 1 {
		parallelism = 1
	}
	return &Dispatcher{store: store, senders: senders, log: log, parallelism: parallelism}
}

// Dispatch sends the event to every eligible subscriber, exactly one attempt
// each, and returns the success/failure tally. Delivery failures are counted
// and logged, never returned; the error covers subscriber lookup only.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) (domain.PublishStatus, error) {
	subs, err := d.store.ActiveSubscribers(evt.Mode == ModeUpdate)
	if err != nil {
		return domain.PublishStatus{}, err
	}
	if len(subs) == 0 {
		return domain.PublishStatus{}, nil
	}

	results := make([]error, len(subs))
	var group errgroup.Group
	group.SetLimit(d.parallelism)
	for i, sub := range subs {
		group.Go(func() error {
			results[i] = d.deliver(ctx, sub, evt)
			return nil
		})
	}
	_ = group.Wait()

	var status domain.PublishStatus
	for i, deliverErr := range results {
		if deliverErr == nil {
			status.Success++
			metrics.PublishAttempts.WithLabelValues(string(evt.Mode), "success").Inc()
			continue
		}
		status.Failure++
		metrics.PublishAttempts.WithLabelValues(string(evt.Mode), "failure").Inc()
		d.log.ErrorObj("subscriber delivery failed", "fanout_error", map[string]any{
			"subscriber": subs[i].Name,
			"address":    subs[i].Address() + "/" + subs[i].Endpoint,
			"error":      deliverErr.Error(),
			"status":     "Failed to publish",
		})
	}

	d.log.InfoObj("fan-out finished", "fanout_result", map[string]any{
		"mode":        string(evt.Mode),
		"subscribers": len(subs),
		"success":     status.Success,
		"failure":     status.Failure,
	})
	return status, nil
}

func (d *Dispatcher) deliver(ctx context.Context, sub domain.Subscriber, evt Event) error {
	payload, err := payloadFor(evt, sub)
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}
	sender, err := d.senders.SenderFor(sub)
	if err != nil {
		return err
	}
	return sender.Send(ctx, sub, payload)
}
