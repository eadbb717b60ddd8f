package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Dan9191/student-plans/internal/config"
	"github.com/Dan9191/student-plans/internal/models"
	"github.com/sirupsen/logrus"
)

const plansPath = "/api/student/plans/admin"

// APIError is a non-2xx answer of the admin backend
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("unexpected status code: %d", e.Status)
}

// Result is the acknowledgement of a write request
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type credentialsKey struct{}

// WithCredentials attaches the caller's cookies so they are forwarded to the backend
func WithCredentials(ctx context.Context, cookies []*http.Cookie) context.Context {
	return context.WithValue(ctx, credentialsKey{}, cookies)
}

func credentialsFrom(ctx context.Context) []*http.Cookie {
	cookies, _ := ctx.Value(credentialsKey{}).([]*http.Cookie)
	return cookies
}

// Client talks to the student plan admin REST backend
type Client struct {
	baseURL string
	client  *http.Client
	log     *logrus.Logger
}

// NewClient initializes a new backend client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BackendURL, "/"),
		client: &http.Client{
			Timeout: cfg.BackendTimeout,
		},
		log: log,
	}
}

// GetPlan fetches a single plan for the Edit and View forms
func (c *Client) GetPlan(ctx context.Context, id string) (models.Plan, error) {
	var envelope struct {
		Data models.Plan `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, plansPath+"/"+url.PathEscape(id), nil, nil, &envelope); err != nil {
		return models.Plan{}, err
	}
	return envelope.Data, nil
}

// CreatePlan submits a new plan
func (c *Client) CreatePlan(ctx context.Context, p models.Plan) (Result, error) {
	var res Result
	err := c.do(ctx, http.MethodPost, plansPath, nil, p, &res)
	return res, err
}

// UpdatePlan replaces an existing plan
func (c *Client) UpdatePlan(ctx context.Context, id string, p models.Plan) (Result, error) {
	var res Result
	err := c.do(ctx, http.MethodPut, plansPath+"/"+url.PathEscape(id), nil, p, &res)
	return res, err
}

// DeletePlan removes a plan
func (c *Client) DeletePlan(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, plansPath+"/"+url.PathEscape(id), nil, nil, nil)
}

// ListPlans returns one page of the plans table
func (c *Client) ListPlans(ctx context.Context, q models.PlanQuery) (models.PlanPage, error) {
	var page models.PlanPage
	if err := c.do(ctx, http.MethodGet, plansPath, q.Values(), nil, &page); err != nil {
		return models.PlanPage{}, err
	}
	if page.TotalPages < 1 {
		page.TotalPages = 1
	}
	return page, nil
}

// ListEnrollments returns the students enrolled in a plan
func (c *Client) ListEnrollments(ctx context.Context, planID string, q models.EnrollmentQuery) ([]models.Enrollment, error) {
	var envelope struct {
		Success bool                `json:"success"`
		Message string              `json:"message"`
		Data    []models.Enrollment `json:"data"`
	}
	path := plansPath + "/enrollments/" + url.PathEscape(planID)
	if err := c.do(ctx, http.MethodGet, path, q.Values(), nil, &envelope); err != nil {
		return nil, err
	}
	if !envelope.Success {
		return nil, fmt.Errorf("failed to list enrollments: %s", envelope.Message)
	}
	return envelope.Data, nil
}

// UpdateEnrollmentStatus moves an enrollment to a new status
func (c *Client) UpdateEnrollmentStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	var res Result
	path := plansPath + "/enrollments/" + url.PathEscape(id) + "/status"
	body := map[string]models.EnrollmentStatus{"status": status}
	if err := c.do(ctx, http.MethodPatch, path, nil, body, &res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("failed to update enrollment status: %s", res.Message)
	}
	return nil
}

// ListRequests returns the plan requests in the given review status
func (c *Client) ListRequests(ctx context.Context, status models.RequestStatus) ([]models.PlanRequest, error) {
	var envelope struct {
		Data []models.PlanRequest `json:"data"`
	}
	q := url.Values{"status": []string{string(status)}}
	if err := c.do(ctx, http.MethodGet, plansPath+"/requests", q, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

// UpdateRequestStatus approves or rejects a plan request
func (c *Client) UpdateRequestStatus(ctx context.Context, id string, status models.RequestStatus) (models.PlanRequest, error) {
	var envelope struct {
		Data models.PlanRequest `json:"data"`
	}
	body := map[string]models.RequestStatus{"status": status}
	if err := c.do(ctx, http.MethodPut, plansPath+"/requests/"+url.PathEscape(id), nil, body, &envelope); err != nil {
		return models.PlanRequest{}, err
	}
	return envelope.Data, nil
}

// do sends a JSON request and decodes the JSON answer into out when out is not nil
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range credentialsFrom(ctx) {
		req.AddCookie(cookie)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Errorf("%s %s failed: %v", method, path, err)
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	c.log.Debugf("%s %s -> %d: %s", method, path, resp.StatusCode, string(raw))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Message = payload.Message
		}
		c.log.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, apiErr.Message)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
