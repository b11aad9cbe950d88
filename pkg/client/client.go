// Package client is the Go client for the reportd HTTP API. It also
// implements poller.StatusFetcher, so callers can drive the adaptive
// polling protocol against a live server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/finreports/reportd/pkg/errcode"
	"github.com/finreports/reportd/pkg/models"
	"github.com/finreports/reportd/pkg/poller"
)

// Client manages communication with a reportd server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SubmitResponse is the reply to a job submission
type SubmitResponse struct {
	ID         string           `json:"id"`
	Status     models.JobStatus `json:"status"`
	PollingURL string           `json:"polling_url"`
}

// Submit submits a new report job
func (c *Client) Submit(ctx context.Context, req *models.JobRequest) (*SubmitResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/jobs", bytes.NewBuffer(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to submit job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, decodeError(resp)
	}

	var result SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// JobStatus retrieves the compact status document for a job
func (c *Client) JobStatus(ctx context.Context, jobID string) (*poller.Status, error) {
	var status poller.Status
	if err := c.getJSON(ctx, fmt.Sprintf("/jobs/%s/status", url.PathEscape(jobID)), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetJob retrieves a full job record
func (c *Client) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := c.getJSON(ctx, "/jobs/"+url.PathEscape(jobID), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs retrieves all jobs
func (c *Client) ListJobs(ctx context.Context) ([]*models.Job, error) {
	var result struct {
		Jobs []*models.Job `json:"jobs"`
	}
	if err := c.getJSON(ctx, "/jobs", &result); err != nil {
		return nil, err
	}
	return result.Jobs, nil
}

// JobFiles retrieves the output file list for a job
func (c *Client) JobFiles(ctx context.Context, jobID string) ([]models.OutputFile, error) {
	var result struct {
		Files []models.OutputFile `json:"files"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/jobs/%s/files", url.PathEscape(jobID)), &result); err != nil {
		return nil, err
	}
	return result.Files, nil
}

// Download fetches the content of one output file
func (c *Client) Download(ctx context.Context, jobID, filename string) ([]byte, error) {
	path := fmt.Sprintf("/jobs/%s/files/%s", url.PathEscape(jobID), url.PathEscape(filename))
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

// Cancel cancels a job
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, "DELETE", c.baseURL+"/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return decodeError(resp)
	}
	return nil
}

// ListReports retrieves the registered report ids
func (c *Client) ListReports(ctx context.Context) ([]string, error) {
	var result struct {
		Reports []string `json:"reports"`
	}
	if err := c.getJSON(ctx, "/reports", &result); err != nil {
		return nil, err
	}
	return result.Reports, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError converts a non-2xx response into a coded error when the
// body carries one
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var ce errcode.Error
	if err := json.Unmarshal(body, &ce); err == nil && ce.Code != "" {
		return &ce
	}
	return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
}
