package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/samvad-hq/samvad-news-mapper/internal/domain"
)

const httpDefaultTimeout = 5 * time.Second

// httpSender posts payloads to subscriber webhooks. The subscriber host
// carries its scheme; production subscribers are addressed by host alone,
// everything else by host:port.
type httpSender struct {
	client *resty.Client
	log    Logger
}

func newHTTPSender(timeout time.Duration, log Logger) *httpSender {
	if timeout <= 0 {
		timeout = httpDefaultTimeout
	}
	client := resty.New()
	client.SetTimeout(timeout)
	return &httpSender{client: client, log: ensureLogger(log)}
}

func (h *httpSender) Type() string { return domain.TransportHTTP }

func (h *httpSender) Send(ctx context.Context, sub domain.Subscriber, payload []byte) error {
	target := fmt.Sprintf("%s/%s", sub.Address(), sub.Endpoint)

	req := h.client.R().
		SetContext(ctx).
		SetBody(json.RawMessage(payload)).
		SetHeader("Content-Type", "application/json")

	resp, err := req.Execute(sub.Method, target)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	if resp.IsError() {
		snippet := readBodySnippet(resp.Body())
		return fmt.Errorf("http response status %d: %s", resp.StatusCode(), snippet)
	}

	h.log.DebugObj("webhook delivered", "delivery_http", map[string]any{
		"subscriber": sub.Name,
		"target":     target,
	})
	return nil
}

func readBodySnippet(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if len(body) > 512 {
		body = body[:512]
	}
	return strings.TrimSpace(string(body))
}
