// Package hrapi is the client for the remote HR backend. The backend is
// the system of record; the kiosk only fetches and submits through it.
package hrapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kiosk/internal/attendance"
	"kiosk/internal/capture"
)

// APIError is a structured failure payload from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hr api: %d %s", e.StatusCode, e.Message)
}

// Client calls the HR REST API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client with a request timeout suited to photo uploads.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// MyAttendance fetches the caller's raw attendance events.
func (c *Client) MyAttendance(ctx context.Context, token string) ([]attendance.Event, error) {
	return c.fetchEvents(ctx, token, "/my/attendance")
}

// EmployeeAttendance fetches one employee's raw attendance events.
// Requires a manager or admin token.
func (c *Client) EmployeeAttendance(ctx context.Context, token, employeeID string) ([]attendance.Event, error) {
	return c.fetchEvents(ctx, token, "/admin/attendance/"+employeeID)
}

func (c *Client) fetchEvents(ctx context.Context, token, path string) ([]attendance.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hr api: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}
	var events []attendance.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("hr api: decode events: %w", err)
	}
	return events, nil
}

// CheckInWithPhoto submits a check-in with the captured still.
func (c *Client) CheckInWithPhoto(ctx context.Context, token string, frame capture.Frame) error {
	return c.postPhoto(ctx, token, "/attendance/checkin-photo", frame)
}

// CheckOutWithPhoto submits a check-out with the captured still.
func (c *Client) CheckOutWithPhoto(ctx context.Context, token string, frame capture.Frame) error {
	return c.postPhoto(ctx, token, "/attendance/checkout-photo", frame)
}

func (c *Client) postPhoto(ctx context.Context, token, path string, frame capture.Frame) error {
	body, _ := json.Marshal(map[string]string{"image": DataURL(frame)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("hr api: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Health reports whether the backend is reachable at all.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("hr api: unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return apiErr
}

// DataURL encodes a frame the way the backend expects photo payloads.
func DataURL(frame capture.Frame) string {
	mime := frame.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(frame.Data)
}

// PhotoSubmitter binds the client and a bearer token into the
// capture session's submit dependency.
func (c *Client) PhotoSubmitter(token string) capture.Submitter {
	return &photoSubmitter{client: c, token: token}
}

type photoSubmitter struct {
	client *Client
	token  string
}

func (p *photoSubmitter) Submit(ctx context.Context, action attendance.Kind, frame capture.Frame) error {
	switch action {
	case attendance.KindCheckin:
		return p.client.CheckInWithPhoto(ctx, p.token, frame)
	case attendance.KindCheckout:
		return p.client.CheckOutWithPhoto(ctx, p.token, frame)
	}
	return fmt.Errorf("hr api: no photo endpoint for action %q", action)
}
