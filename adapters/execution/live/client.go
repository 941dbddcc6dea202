package live

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"hypocycle/domain/core"
	"hypocycle/domain/spec"
	"hypocycle/domain/verdict"
	"hypocycle/internal/errors"
	"hypocycle/ports"
)

// Client talks to a lab automation system over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an instrument client. Timeouts come from the request
// context, so the http.Client carries none.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

var _ ports.InstrumentPort = (*Client)(nil)

// Measure submits one batch and waits for its measurements.
func (c *Client) Measure(ctx context.Context, specs []spec.SampleSpecification) (verdict.ResultSet, map[core.SampleID]string, error) {
	raw, err := json.Marshal(MeasurementRequest{SchemaVersion: spec.SchemaVersion, Samples: specs})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+MeasurementsPath, bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("instrument request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnprocessableEntity {
		var e ErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Field != "" {
			return nil, nil, core.NewSchemaViolation(e.Field, e.Expected, e.Got)
		}
		return nil, nil, core.NewSchemaViolation("schema_version", spec.SchemaVersion, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, errors.ExternalServiceError("instrument",
			fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var decoded MeasurementResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return verdict.ResultSet(decoded.Results), decoded.Errors, nil
}
