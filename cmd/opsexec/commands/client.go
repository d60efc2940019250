package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/seetharamtessell/opsexec/config"
	"github.com/seetharamtessell/opsexec/engine"
)

// apiClient talks to a running serve daemon on localhost.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return &apiClient{
		base: fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		http: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *apiClient) get(path string, v any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return fmt.Errorf("cannot reach the opsexec daemon at %s (is 'opsexec serve' running?): %w", c.base, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.apiError(resp)
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *apiClient) post(path string) error {
	resp, err := c.http.Post(c.base+path, "application/json", nil)
	if err != nil {
		return fmt.Errorf("cannot reach the opsexec daemon at %s (is 'opsexec serve' running?): %w", c.base, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.apiError(resp)
	}
	return nil
}

func (c *apiClient) apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("%s", body.Error)
	}
	return fmt.Errorf("daemon returned %s", resp.Status)
}

func (c *apiClient) listExecutions() ([]engine.Summary, error) {
	var body struct {
		Executions []engine.Summary `json:"executions"`
	}
	if err := c.get("/api/executions", &body); err != nil {
		return nil, err
	}
	return body.Executions, nil
}

func (c *apiClient) readLogs(id string) (string, error) {
	resp, err := c.http.Get(c.base + "/api/executions/" + id + "/logs")
	if err != nil {
		return "", fmt.Errorf("cannot reach the opsexec daemon at %s (is 'opsexec serve' running?): %w", c.base, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", c.apiError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *apiClient) cancel(id string) error {
	return c.post("/api/executions/" + id + "/cancel")
}
