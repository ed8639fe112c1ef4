package eventconsumer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPTransport is the long-poll-over-HTTP binding spec.md §4.2 requires
// alongside a native streaming client, behind the same Transport
// interface. It polls a REST-ish event-store facade: PUT the subscription
// with its start position on Connect, GET .../events?waitMs=<pollTimeout>
// to fetch (the server tracks the cursor), POST .../ack and .../nak to
// settle.
// There is no teacher file doing this (the pack's streaming examples are
// all NATS/Kafka-native); it is grounded in the general resty/http.Client
// usage go-core/httpclient establishes (context-scoped requests, explicit
// timeouts, JSON bodies) applied to a polling shape instead of
// request/response.
type HTTPTransport struct {
	baseURL     string
	client      *http.Client
	pollTimeout time.Duration
	log         *zap.Logger

	subscriptionID string
	groupName      string
}

// NewHTTPTransport constructs a long-poll transport against baseURL.
func NewHTTPTransport(baseURL string, pollTimeout time.Duration, log *zap.Logger) *HTTPTransport {
	return &HTTPTransport{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: pollTimeout + 5*time.Second},
		pollTimeout: pollTimeout,
		log:         log,
	}
}

func (t *HTTPTransport) Connect(ctx context.Context, cfg Config, position uint64) error {
	t.subscriptionID = cfg.SubscriptionID
	t.groupName = cfg.GroupName

	url := fmt.Sprintf("%s/streams/%s/subscriptions/%s", t.baseURL, cfg.StreamName, cfg.GroupName)
	body, _ := json.Marshal(map[string]interface{}{"startPosition": position})
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("eventconsumer: http connect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("eventconsumer: http connect: unexpected status %d", resp.StatusCode)
	}
	return nil
}

type httpEventBatch struct {
	Events []struct {
		Position uint64          `json:"position"`
		Data     json.RawMessage `json:"data"`
	} `json:"events"`
}

func (t *HTTPTransport) Fetch(ctx context.Context) ([]RawMessage, error) {
	url := fmt.Sprintf("%s/streams/%s/subscriptions/%s/events?waitMs=%d",
		t.baseURL, t.subscriptionID, t.groupName, t.pollTimeout.Milliseconds())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("eventconsumer: http fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("eventconsumer: http fetch: unexpected status %d", resp.StatusCode)
	}

	var batch httpEventBatch
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("eventconsumer: http fetch: decode body: %w", err)
	}

	out := make([]RawMessage, 0, len(batch.Events))
	for _, e := range batch.Events {
		out = append(out, RawMessage{Position: e.Position, Data: e.Data})
	}
	return out, nil
}

func (t *HTTPTransport) Ack(ctx context.Context, position uint64) error {
	return t.settle(ctx, position, "ack", "")
}

func (t *HTTPTransport) Nak(ctx context.Context, position uint64, action NakAction) error {
	return t.settle(ctx, position, "nak", string(action))
}

func (t *HTTPTransport) settle(ctx context.Context, position uint64, verb, action string) error {
	url := fmt.Sprintf("%s/streams/%s/subscriptions/%s/%s", t.baseURL, t.subscriptionID, t.groupName, verb)
	body, _ := json.Marshal(map[string]interface{}{"position": position, "action": action})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("eventconsumer: http %s: %w", verb, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("eventconsumer: http %s: unexpected status %d", verb, resp.StatusCode)
	}
	return nil
}

func (t *HTTPTransport) Close() error { return nil }

var _ Transport = (*HTTPTransport)(nil)
