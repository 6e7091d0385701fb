package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lexwatch/tribsync/internal/config"
)

// HTTPGateway delivers messages through the WhatsApp template gateway.
type HTTPGateway struct {
	url      string
	token    string
	template string
	client   *http.Client
}

// NewHTTPGateway creates a gateway client from configuration.
func NewHTTPGateway(cfg config.Notifier) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPGateway{
		url:      cfg.GatewayURL,
		token:    cfg.Token,
		template: cfg.Template,
		client:   &http.Client{Timeout: timeout},
	}
}

type gatewayRequest struct {
	To        string   `json:"to"`
	Template  string   `json:"template"`
	Variables []string `json:"variables"`
}

type gatewayResponse struct {
	Error string `json:"error"`
}

// Send posts a templated message. The template receives four
// positional variables: case reference, source label, location, body.
func (g *HTTPGateway) Send(ctx context.Context, to string, msg Message) error {
	payload, err := json.Marshal(gatewayRequest{
		To:        to,
		Template:  g.template,
		Variables: []string{msg.CaseRef, msg.SourceLabel, msg.Location, msg.Body},
	})
	if err != nil {
		return fmt.Errorf("failed to encode gateway payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var gw gatewayResponse
	if json.Unmarshal(body, &gw) == nil && gw.Error != "" {
		return fmt.Errorf("gateway rejected message: %s (status %d)", gw.Error, resp.StatusCode)
	}
	return fmt.Errorf("gateway rejected message: status %d", resp.StatusCode)
}
