// Package bridge talks to the sensorlink API the way the board firmware does.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/02loveslollipop/sensorlink/services/devicesim/internal/board"
)

// Client posts readings, polls commands and reports actuator states.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for the API at baseURL.
func New(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: client}
}

// PostReading sends one reading and reports whether the API stored it.
func (c *Client) PostReading(ctx context.Context, r board.Reading) (bool, error) {
	var resp struct {
		Persisted bool `json:"persisted"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/sensor-data", r, &resp); err != nil {
		return false, err
	}
	return resp.Persisted, nil
}

// PollCommand fetches and clears the pending action. ok is false when
// nothing is queued.
func (c *Client) PollCommand(ctx context.Context) (string, bool, error) {
	var resp struct {
		Command *string `json:"command"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/command", nil, &resp); err != nil {
		return "", false, err
	}
	if resp.Command == nil || *resp.Command == "" {
		return "", false, nil
	}
	return *resp.Command, true, nil
}

// Ack confirms that an actuator was switched.
func (c *Client) Ack(ctx context.Context, id string, on bool) error {
	body := map[string]any{"led": id, "state": on}
	return c.do(ctx, http.MethodPost, "/api/ack", body, nil)
}

// SyncStates reports every actuator, as the firmware does after boot.
func (c *Client) SyncStates(ctx context.Context, states map[string]bool) error {
	body := map[string]any{"states": states}
	return c.do(ctx, http.MethodPost, "/api/led-states", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("%s %s: unexpected status %s: %s", method, path, resp.Status, apiErr.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %s", method, path, resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
