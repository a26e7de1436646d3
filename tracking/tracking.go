// Package tracking is a minimal experiment tracking client.  A run is
// created once, then named parameters and scalar metrics are posted to
// it.  Network failures propagate to the caller, a failed run record is
// treated as fatal rather than silently losing results.
package tracking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Experiment is one tracked evaluation run.
type Experiment struct {
	baseURL string
	apiKey  string
	key     string
	client  *http.Client
}

// createRequest is the run creation payload
type createRequest struct {
	Project string `json:"project"`
}

// createResponse carries the server assigned run key
type createResponse struct {
	Key string `json:"experimentKey"`
}

// metricRequest is the payload for a named scalar metric
type metricRequest struct {
	Name  string  `json:"metricName"`
	Value float64 `json:"metricValue"`
}

// parameterRequest is the payload for a named run parameter
type parameterRequest struct {
	Name  string `json:"parameterName"`
	Value any    `json:"parameterValue"`
}

// NewExperiment creates a run under the given project and returns a
// client bound to it
func NewExperiment(baseURL, apiKey, project string) (*Experiment, error) {

	e := &Experiment{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}

	var resp createResponse

	err := e.post("/api/experiments", createRequest{Project: project}, &resp)

	if err != nil {
		return nil, fmt.Errorf("error creating experiment: %w", err)
	}

	if resp.Key == "" {
		return nil, fmt.Errorf("experiment create response carried no key")
	}

	e.key = resp.Key

	return e, nil
}

// Key returns the server assigned run key
func (e *Experiment) Key() string {
	return e.key
}

// LogMetric records a named scalar metric against the run
func (e *Experiment) LogMetric(name string, value float64) error {

	err := e.post("/api/experiments/"+e.key+"/metrics",
		metricRequest{Name: name, Value: value}, nil)

	if err != nil {
		return fmt.Errorf("error logging metric %s: %w", name, err)
	}

	return nil
}

// LogParameter records a named run parameter
func (e *Experiment) LogParameter(name string, value any) error {

	err := e.post("/api/experiments/"+e.key+"/parameters",
		parameterRequest{Name: name, Value: value}, nil)

	if err != nil {
		return fmt.Errorf("error logging parameter %s: %w", name, err)
	}

	return nil
}

// LogParameters records a set of run parameters
func (e *Experiment) LogParameters(params map[string]any) error {

	for name, value := range params {
		if err := e.LogParameter(name, value); err != nil {
			return err
		}
	}

	return nil
}

// post sends a JSON payload and decodes the response into out when out
// is non-nil.  Any non 2xx status is an error
func (e *Experiment) post(path string, payload any, out any) error {

	body, err := json.Marshal(payload)

	if err != nil {
		return fmt.Errorf("error encoding request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, e.baseURL+path,
		bytes.NewReader(body))

	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", e.apiKey)

	resp, err := e.client.Do(req)

	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("error decoding response: %w", err)
		}
	}

	return nil
}
