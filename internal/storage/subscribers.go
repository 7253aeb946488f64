package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/samvad-hq/samvad-news-mapper/internal/docstore"
	"github.com/samvad-hq/samvad-news-mapper/internal/domain"
)

// subscribersFile represents the structure of the subscribers configuration file.
type subscribersFile struct {
	Subscribers []domain.Subscriber `json:"subscribers" yaml:"subscribers"`
}

// LoadSubscribersFile reads subscriber definitions from a YAML/JSON file.
func LoadSubscribersFile(path string) ([]domain.Subscriber, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("subscribers file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open subscribers file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read subscribers file: %w", err)
	}

	parsed, err := parseSubscribersFile(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	subs := make([]domain.Subscriber, 0, len(parsed.Subscribers))
	seen := make(map[string]bool, len(parsed.Subscribers))
	for i := range parsed.Subscribers {
		sub := sanitizeSubscriber(parsed.Subscribers[i])
		if err := validateSubscriber(sub); err != nil {
			return nil, fmt.Errorf("subscribers[%d]: %w", i, err)
		}
		if seen[sub.Name] {
			return nil, fmt.Errorf("duplicate subscriber name %q", sub.Name)
		}
		seen[sub.Name] = true
		subs = append(subs, sub)
	}
	return subs, nil
}

// parseSubscribersFile attempts to decode the subscribers file content.
func parseSubscribersFile(data []byte, ext string) (subscribersFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var parsed subscribersFile
		if err := d.fn(data, &parsed); err == nil {
			return parsed, nil
		}
	}

	return subscribersFile{}, errors.New("subscribers file format not recognized (expected YAML or JSON)")
}

// sanitizeSubscriber trims and normalizes subscriber fields.
func sanitizeSubscriber(sub domain.Subscriber) domain.Subscriber {
	sub.Name = strings.TrimSpace(sub.Name)
	sub.Host = strings.TrimSpace(sub.Host)
	sub.Endpoint = strings.Trim(strings.TrimSpace(sub.Endpoint), "/")
	sub.Method = strings.ToUpper(strings.TrimSpace(sub.Method))
	if sub.Method == "" {
		sub.Method = "POST"
	}
	sub.Type = strings.ToLower(strings.TrimSpace(sub.Type))
	sub.Prod = strings.ToLower(strings.TrimSpace(sub.Prod))
	sub.Transport = strings.ToLower(strings.TrimSpace(sub.Transport))
	if sub.Transport == "" {
		sub.Transport = domain.TransportHTTP
	}
	sub.QueueURL = strings.TrimSpace(sub.QueueURL)
	sub.TopicARN = strings.TrimSpace(sub.TopicARN)
	sub.Topic = strings.TrimSpace(sub.Topic)
	return sub
}

// validateSubscriber checks that required fields are present per transport.
func validateSubscriber(sub domain.Subscriber) error {
	if sub.Name == "" {
		return errors.New("name is required")
	}
	switch sub.Transport {
	case domain.TransportHTTP:
		if sub.Host == "" {
			return fmt.Errorf("host is required for subscriber %q", sub.Name)
		}
		if sub.Endpoint == "" {
			return fmt.Errorf("endpoint is required for subscriber %q", sub.Name)
		}
		if sub.Prod != "production" && sub.Port <= 0 {
			return fmt.Errorf("port is required for non-production subscriber %q", sub.Name)
		}
	case domain.TransportSQS:
		if sub.QueueURL == "" {
			return fmt.Errorf("queueURL is required for subscriber %q", sub.Name)
		}
	case domain.TransportSNS:
		if sub.TopicARN == "" {
			return fmt.Errorf("topicARN is required for subscriber %q", sub.Name)
		}
	case domain.TransportPubSub:
		if sub.Topic == "" {
			return fmt.Errorf("topic is required for subscriber %q", sub.Name)
		}
	default:
		return fmt.Errorf("unsupported transport %q for subscriber %q", sub.Transport, sub.Name)
	}
	return nil
}

// SeedSubscribers replaces the subscriber registry with the given set. The
// registry is read-only afterwards; dispatch reads it per fan-out.
func (s *Store) SeedSubscribers(subs []domain.Subscriber) error {
	col := s.Subscribers()
	if _, err := col.DeleteMany(nil); err != nil {
		return fmt.Errorf("clear subscribers: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}
	vals := make([]any, len(subs))
	for i := range subs {
		vals[i] = subs[i]
	}
	if _, err := col.InsertMany(vals); err != nil {
		return fmt.Errorf("seed subscribers: %w", err)
	}
	return nil
}

// ActiveSubscribers returns active subscribers, optionally restricted to
// client-type ones (enhancement fan-out).
func (s *Store) ActiveSubscribers(clientOnly bool) ([]domain.Subscriber, error) {
	filter := docstore.Filter{docstore.Eq("active", true)}
	if clientOnly {
		filter = append(filter, docstore.Eq("type", domain.SubscriberTypeClient))
	}
	docs, err := s.Subscribers().Find(filter, docstore.FindOptions{Sort: "name"})
	if err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}
	return docstore.DecodeAll[domain.Subscriber](docs)
}
