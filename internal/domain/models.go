package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// Domain contains the core models shared across the mapper service.

// HeadlineSource describes the origin metadata embedded in a stored headline.
type HeadlineSource struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Category    string `json:"category,omitempty"`
	Language    string `json:"language,omitempty"`
	Country     string `json:"country,omitempty"`
}

// Headline is a stored news headline. Documents are schemaless on the wire:
// unknown JSON keys survive decode/encode round trips through Extra, so
// enrichment fields added after ingestion are never dropped.
type Headline struct {
	ID          string
	Source      HeadlineSource
	Author      string
	Title       string
	Description string
	URL         string
	URLToImage  string
	PublishedAt string
	Content     string
	Indexed     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Extra       map[string]json.RawMessage
}

// headlineJSON mirrors Headline's known fields for (un)marshalling.
type headlineJSON struct {
	ID          string         `json:"id,omitempty"`
	Source      HeadlineSource `json:"source"`
	Author      string         `json:"author,omitempty"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	URLToImage  string         `json:"urlToImage,omitempty"`
	PublishedAt string         `json:"publishedAt,omitempty"`
	Content     string         `json:"content,omitempty"`
	Indexed     bool           `json:"indexed"`
	CreatedAt   time.Time      `json:"createdAt,omitzero"`
	UpdatedAt   time.Time      `json:"updatedAt,omitzero"`
}

var headlineKnownKeys = map[string]bool{
	"id": true, "source": true, "author": true, "title": true,
	"description": true, "url": true, "urlToImage": true,
	"publishedAt": true, "content": true, "indexed": true,
	"createdAt": true, "updatedAt": true,
}

// MarshalJSON flattens Extra into the top-level object.
func (h Headline) MarshalJSON() ([]byte, error) {
	known := headlineJSON{
		ID:          h.ID,
		Source:      h.Source,
		Author:      h.Author,
		Title:       h.Title,
		Description: h.Description,
		URL:         h.URL,
		URLToImage:  h.URLToImage,
		PublishedAt: h.PublishedAt,
		Content:     h.Content,
		Indexed:     h.Indexed,
		CreatedAt:   h.CreatedAt,
		UpdatedAt:   h.UpdatedAt,
	}
	raw, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(h.Extra) == 0 {
		return raw, nil
	}

	merged := make(map[string]json.RawMessage, len(h.Extra)+len(headlineKnownKeys))
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	for k, v := range h.Extra {
		if headlineKnownKeys[k] {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON keeps unknown keys in Extra.
func (h *Headline) UnmarshalJSON(data []byte) error {
	var known headlineJSON
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	*h = Headline{
		ID:          known.ID,
		Source:      known.Source,
		Author:      known.Author,
		Title:       known.Title,
		Description: known.Description,
		URL:         known.URL,
		URLToImage:  known.URLToImage,
		PublishedAt: known.PublishedAt,
		Content:     known.Content,
		Indexed:     known.Indexed,
		CreatedAt:   known.CreatedAt,
		UpdatedAt:   known.UpdatedAt,
	}
	for k, v := range all {
		if headlineKnownKeys[k] {
			continue
		}
		if h.Extra == nil {
			h.Extra = make(map[string]json.RawMessage)
		}
		h.Extra[k] = v
	}
	return nil
}

// Source is a content origin in the rotation pool. Rotation always hands out
// the available source with the smallest sequence number.
type Source struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url,omitempty"`
	Category    string    `json:"category,omitempty"`
	Language    string    `json:"language,omitempty"`
	Country     string    `json:"country,omitempty"`
	SeqNum      int       `json:"seqNum"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// PublishedSource marks a source as currently being fetched. At most one
// marker exists per source id at a time.
type PublishedSource struct {
	ID        string    `json:"id,omitempty"`
	SourceID  string    `json:"sourceId"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// SourceUpdate is an append-only log entry recording a pool refresh. An entry
// created on the current calendar day satisfies the daily freshness gate.
type SourceUpdate struct {
	ID        string    `json:"id,omitempty"`
	Updated   bool      `json:"updated"`
	Amount    int       `json:"amount"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Subscriber delivery transports.
const (
	TransportHTTP   = "http"
	TransportSQS    = "sqs"
	TransportSNS    = "sns"
	TransportPubSub = "pubsub"
)

// SubscriberTypeClient marks subscribers that receive full headline payloads
// and enhancement updates.
const SubscriberTypeClient = "client"

// Subscriber is a registered downstream consumer of published batches.
type Subscriber struct {
	Name      string `json:"name" yaml:"name"`
	Host      string `json:"host" yaml:"host"`
	Port      int    `json:"port,omitempty" yaml:"port"`
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Method    string `json:"method" yaml:"method"`
	Active    bool   `json:"active" yaml:"active"`
	Type      string `json:"type,omitempty" yaml:"type"`
	Prod      string `json:"prod,omitempty" yaml:"prod"`
	Transport string `json:"transport,omitempty" yaml:"transport"`
	QueueURL  string `json:"queueURL,omitempty" yaml:"queueURL"`
	TopicARN  string `json:"topicARN,omitempty" yaml:"topicARN"`
	Topic     string `json:"topic,omitempty" yaml:"topic"`
}

// Address resolves the delivery host for HTTP subscribers: production
// subscribers are reached by host alone, everything else by host:port.
func (s Subscriber) Address() string {
	if s.Prod == "production" {
		return s.Host
	}
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// PublishStatus tallies per-subscriber delivery outcomes for one fan-out.
type PublishStatus struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// HeadlineBatch is the ingestion payload tied to a rotation source.
type HeadlineBatch struct {
	Source       *Source    `json:"source"`
	News         []Headline `json:"news"`
	TotalResults int        `json:"totalResults"`
}

// Enhancement is a partial-field update keyed by headline id. All keys except
// "id" and "title" are merged onto the stored document.
type Enhancement map[string]any

// ID returns the target headline id, if present.
func (e Enhancement) ID() string {
	id, _ := e["id"].(string)
	return id
}
