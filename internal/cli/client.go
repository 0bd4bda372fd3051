package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/recruitq/internal/api/dto"
	"github.com/cuongbtq/recruitq/internal/jobs"
	"github.com/cuongbtq/recruitq/internal/queue"
)

// Client calls the recruitq HTTP API
type Client struct {
	baseURL string
	http    *http.Client
}

// APIError is a non-2xx answer from the API
type APIError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("api: %d %s: %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// ListResult is one page of jobs
type ListResult struct {
	Jobs       []*jobs.Job `json:"jobs"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// SubmitImport queues a candidate import
func (c *Client) SubmitImport(ctx context.Context, req *dto.CreateImportRequest) (*jobs.Job, error) {
	var job jobs.Job
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/imports", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// RefreshResearch queues a market research refresh. created is false when
// an unfinished refresh for the position was returned instead.
func (c *Client) RefreshResearch(ctx context.Context, positionID, userID string) (*jobs.Job, bool, error) {
	var job jobs.Job
	path := "/api/v1/positions/" + url.PathEscape(positionID) + "/market-research"
	status, err := c.do(ctx, http.MethodPost, path, dto.MarketResearchRequest{UserID: userID}, &job)
	if err != nil {
		return nil, false, err
	}
	return &job, status == http.StatusAccepted, nil
}

func (c *Client) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	var job jobs.Job
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) ListJobs(ctx context.Context, req dto.ListJobsRequest) (*ListResult, error) {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("user_id", req.UserID)
	set("job_type", req.JobType)
	set("status", req.Status)
	set("project_id", req.ProjectID)
	set("position_id", req.PositionID)
	set("cursor", req.Cursor)
	if req.PageSize > 0 {
		q.Set("page_size", fmt.Sprint(req.PageSize))
	}

	path := "/api/v1/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var res ListResult
	if _, err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) QueueStats(ctx context.Context) (*queue.Stats, error) {
	var stats queue.Stats
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/queue/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Wait polls a job until it reaches a terminal status
func (c *Client) Wait(ctx context.Context, id string, every time.Duration) (*jobs.Job, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var e dto.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			apiErr.Message, apiErr.Details = e.Error, e.Details
		}
		return resp.StatusCode, apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
