// Package telemetry sends structured events to an external event-ingest
// endpoint as a GraphQL mutation. Sends are fire and forget: a shared
// http.Client with a fixed timeout, failures logged and swallowed, and
// a silent no-op when the endpoint is unconfigured.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

const defaultGraphQLEndpoint = "https://backboard.railway.app/graphql/internal"

const mutation = `mutation telemetrySend($input: TelemetrySendInput!) { telemetrySend(input: $input) }`

// Client posts telemetry events to the configured ingest endpoint.
type Client struct {
	http        *http.Client
	endpoint    string
	projectID   string
	environment string
	component   string
	logger      *log.Logger
}

// FromEnv builds a Client for component using Railway-style environment
// variables. The client works (and silently no-ops its sends) even when
// those variables are absent.
func FromEnv(component string, logger *log.Logger) *Client {
	return &Client{
		http:        &http.Client{Timeout: 5 * time.Second},
		endpoint:    envOrDefault("RAILWAY_GRAPHQL_ENDPOINT", defaultGraphQLEndpoint),
		projectID:   os.Getenv("RAILWAY_PROJECT_ID"),
		environment: os.Getenv("RAILWAY_ENVIRONMENT_ID"),
		component:   component,
		logger:      logger,
	}
}

func envOrDefault(name, def string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return def
}

// Send posts event in the background; errors are logged, never returned.
func (c *Client) Send(event Event) {
	eventType := event.EventType()
	message := event.Message()
	if c.logger != nil {
		c.logger.Info(message, "event", eventType)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.post(ctx, eventType, message); err != nil && c.logger != nil {
			c.logger.Warn("telemetry send failed", "event", eventType, "error", err)
		}
	}()
}

// SendSync posts event and blocks for the result.
func (c *Client) SendSync(event Event) error {
	eventType := event.EventType()
	message := event.Message()
	if c.logger != nil {
		c.logger.Info(message, "event", eventType)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.post(ctx, eventType, message)
}

func (c *Client) post(ctx context.Context, eventType, message string) error {
	payload := map[string]any{
		"query": mutation,
		"variables": map[string]any{
			"input": map[string]any{
				"command":       eventType,
				"error":         message,
				"stacktrace":    "",
				"projectId":     c.projectID,
				"environmentId": c.environment,
				"version":       c.component,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpStatusError{status: resp.StatusCode}
	}
	return nil
}

type httpStatusError struct{ status int }

func (e *httpStatusError) Error() string {
	return http.StatusText(e.status)
}
