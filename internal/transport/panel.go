package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PanelConfig points at a hosting control-plane API capable of running a
// console command on the game server (spec §4.5 "panel — send a control
// -plane command to a hosting API"). The spec leaves the API's shape
// unspecified beyond "send a command"; this assumes the common
// game-hosting-panel convention of a bearer-tokened JSON POST.
type PanelConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // default 10s
}

// PanelClient issues console commands against a hosting panel. Plain
// net/http: no pack member imports a dedicated control-plane SDK, and the
// API itself is a generic bearer-tokened JSON endpoint, not a named
// third-party service with its own client library.
type PanelClient struct {
	cfg    PanelConfig
	client *http.Client
}

func NewPanelClient(cfg PanelConfig) *PanelClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &PanelClient{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Available probes the panel's health endpoint (spec §4.5 "auto probes
// panel availability first").
func (p *PanelClient) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	p.authorize(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}

// SendCommand POSTs a console command to the panel's command endpoint.
func (p *PanelClient) SendCommand(ctx context.Context, command string) error {
	body, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		return fmt.Errorf("panel: encoding command: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/command", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("panel: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("panel: sending command: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("panel: command rejected with status %d", resp.StatusCode)
	}
	return nil
}

func (p *PanelClient) authorize(req *http.Request) {
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
}
