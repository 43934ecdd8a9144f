// Package intervals is a client for the Intervals time-tracking API. It is
// the task catalog and the time-entry sink.
package intervals

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
	"github.com/Veraticus/the-hours-must-flow/internal/service"
)

// DefaultBaseURL is the public Intervals API.
const DefaultBaseURL = "https://api.myintervals.com"

const pageSize = 100

// Client talks to the Intervals REST API.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	auth       string
	retry      service.RetryOptions
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithRetry sets the retry policy for every request.
func WithRetry(opts service.RetryOptions) Option {
	return func(c *Client) { c.retry = opts }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates an Intervals client. The API token is sent as basic
// auth with the password "X".
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: intervals api key", common.ErrMissingConfig)
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		baseURL:    DefaultBaseURL,
		auth:       "Basic " + base64.StdEncoding.EncodeToString([]byte(apiKey+":X")),
		retry:      service.DefaultRetryOptions(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// flexString accepts JSON strings, numbers and booleans; Intervals mixes them.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "null":
		*f = ""
		return nil
	case "true", "false":
		*f = flexString(data)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type apiTask struct {
	ID        flexString `json:"id"`
	Title     string     `json:"title"`
	Summary   string     `json:"summary"`
	Project   string     `json:"project"`
	ProjectID flexString `json:"projectid"`
	Module    string     `json:"module"`
	ModuleID  flexString `json:"moduleid"`
	Client    string     `json:"client"`
	ClientID  flexString `json:"clientid"`
	Status    string     `json:"status"`
	Priority  string     `json:"priority"`
}

type apiTime struct {
	ID          flexString `json:"id"`
	ProjectID   flexString `json:"projectid"`
	ModuleID    flexString `json:"moduleid"`
	TaskID      flexString `json:"taskid"`
	WorktypeID  flexString `json:"worktypeid"`
	PersonID    flexString `json:"personid"`
	Date        string     `json:"date"`
	Description string     `json:"description"`
	Time        flexString `json:"time"`
	Billable    flexString `json:"billable"`
}

func (t apiTime) toEntry() model.TimeEntry {
	hours, _ := strconv.ParseFloat(string(t.Time), 64)
	billable, _ := strconv.ParseBool(string(t.Billable))
	return model.TimeEntry{
		ID:          string(t.ID),
		ProjectID:   string(t.ProjectID),
		ModuleID:    string(t.ModuleID),
		TaskID:      string(t.TaskID),
		WorktypeID:  string(t.WorktypeID),
		PersonID:    string(t.PersonID),
		Date:        t.Date,
		Description: t.Description,
		Hours:       hours,
		Billable:    billable,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var raw json.RawMessage
	err := common.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return common.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Authorization", c.auth)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if err := statusError(resp, data); err != nil {
			return err
		}
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return common.Permanent(fmt.Errorf("failed to parse response: %w", err))
			}
		}
		raw = data
		return nil
	}, c.retry)
	return raw, err
}

func statusError(resp *http.Response, body []byte) error {
	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return common.RetryAfter(
			fmt.Errorf("intervals API error (status %d): %w", status, common.ErrRateLimit),
			common.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	case status >= 500:
		return fmt.Errorf("intervals API error (status %d): %s", status, string(body))
	default:
		return common.Permanent(fmt.Errorf("intervals API error (status %d): %s", status, string(body)))
	}
}

// FetchTasks lists every task, following pagination.
func (c *Client) FetchTasks(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	for offset := 0; ; offset += pageSize {
		var page struct {
			Task      []apiTask  `json:"task"`
			ListCount flexString `json:"listcount"`
		}
		path := fmt.Sprintf("/task/?limit=%d&offset=%d", pageSize, offset)
		if _, err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrTaskCatalogFailed, err)
		}
		for _, t := range page.Task {
			tasks = append(tasks, model.Task{
				ID:          string(t.ID),
				Title:       t.Title,
				Description: t.Summary,
				Project:     t.Project,
				ProjectID:   string(t.ProjectID),
				Module:      t.Module,
				ModuleID:    string(t.ModuleID),
				Client:      t.Client,
				ClientID:    string(t.ClientID),
				Status:      t.Status,
				Priority:    t.Priority,
			})
		}

		total, _ := strconv.Atoi(string(page.ListCount))
		if len(page.Task) < pageSize || (total > 0 && offset+len(page.Task) >= total) {
			break
		}
	}

	c.logger.Debug("Fetched task catalog", "count", len(tasks))
	return tasks, nil
}

// PostTimeEntry creates a time entry.
func (c *Client) PostTimeEntry(ctx context.Context, entry model.TimeEntry) (service.PostResult, error) {
	var resp struct {
		Time struct {
			ID       flexString `json:"id"`
			Created  string     `json:"datetime"`
			Modified string     `json:"datemodified"`
		} `json:"time"`
	}
	raw, err := c.do(ctx, http.MethodPost, "/time/", entry, &resp)
	if err != nil {
		return service.PostResult{}, fmt.Errorf("%w: %w", common.ErrTimeEntryRejected, err)
	}

	result := service.PostResult{ID: string(resp.Time.ID), Raw: raw}
	result.Created = parseTimestamp(resp.Time.Created)
	result.Updated = parseTimestamp(resp.Time.Modified)
	return result, nil
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ListTimeEntries lists the person's entries for the days in dateRange.
func (c *Client) ListTimeEntries(ctx context.Context, personID string, dateRange service.DateRange) ([]model.TimeEntry, error) {
	q := url.Values{}
	q.Set("personid", personID)
	q.Set("datebegin", dateRange.Start.Format(model.DateLayout))
	q.Set("dateend", dateRange.End.Format(model.DateLayout))
	q.Set("limit", strconv.Itoa(pageSize))

	var entries []model.TimeEntry
	for offset := 0; ; offset += pageSize {
		q.Set("offset", strconv.Itoa(offset))
		var page struct {
			Time []apiTime `json:"time"`
		}
		if _, err := c.do(ctx, http.MethodGet, "/time/?"+q.Encode(), nil, &page); err != nil {
			return nil, fmt.Errorf("failed to list time entries: %w", err)
		}
		for _, t := range page.Time {
			entries = append(entries, t.toEntry())
		}
		if len(page.Time) < pageSize {
			break
		}
	}
	return entries, nil
}

// Me returns the person id that owns the API token.
func (c *Client) Me(ctx context.Context) (string, error) {
	var resp struct {
		Me []struct {
			PersonID flexString `json:"personid"`
			ID       flexString `json:"id"`
		} `json:"me"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/me/", nil, &resp); err != nil {
		return "", fmt.Errorf("failed to look up current person: %w", err)
	}
	if len(resp.Me) == 0 {
		return "", fmt.Errorf("current person: %w", common.ErrNotFound)
	}
	if id := string(resp.Me[0].PersonID); id != "" {
		return id, nil
	}
	return string(resp.Me[0].ID), nil
}
