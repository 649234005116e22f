package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tbourn/go-campustrace-backend/internal/observability"
)

// DefaultExpoEndpoint is the Expo push service URL.
const DefaultExpoEndpoint = "https://exp.host/--/api/v2/push/send"

// PushMessage is one device-addressed push in the Expo message format.
type PushMessage struct {
	To        string            `json:"to"`
	Title     string            `json:"title,omitempty"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	ChannelID string            `json:"channelId,omitempty"`
	Priority  string            `json:"priority,omitempty"`
	Sound     string            `json:"sound,omitempty"`
}

// PushSender delivers push messages. dead lists tokens the service reported
// as no longer registered.
type PushSender interface {
	Send(ctx context.Context, msgs []PushMessage) (dead []string, err error)
}

// ExpoSender posts batches to the Expo push API.
type ExpoSender struct {
	Endpoint string
	Client   *http.Client
}

// NewExpoSender returns a sender for endpoint (DefaultExpoEndpoint when empty).
func NewExpoSender(endpoint string, timeout time.Duration) *ExpoSender {
	if endpoint == "" {
		endpoint = DefaultExpoEndpoint
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ExpoSender{Endpoint: endpoint, Client: &http.Client{Timeout: timeout}}
}

type expoTicket struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type expoResponse struct {
	Data []expoTicket `json:"data"`
}

// Send implements PushSender.
func (s *ExpoSender) Send(ctx context.Context, msgs []PushMessage) ([]string, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(msgs)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		observability.PushFailures.Inc()
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		observability.PushFailures.Inc()
		return nil, fmt.Errorf("expo push: status %d", resp.StatusCode)
	}

	var out expoResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("expo push: decode response: %w", err)
	}
	var dead []string
	var failed int
	for i, t := range out.Data {
		if t.Status == "ok" {
			continue
		}
		failed++
		if t.Details.Error == "DeviceNotRegistered" && i < len(msgs) {
			dead = append(dead, msgs[i].To)
		}
	}
	if failed > 0 {
		observability.PushFailures.Add(float64(failed))
		return dead, fmt.Errorf("expo push: %d of %d tickets failed", failed, len(msgs))
	}
	return dead, nil
}
