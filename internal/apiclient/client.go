package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"vivaroom/internal/model"
	"vivaroom/internal/service"
	"vivaroom/internal/transport/rest/handler"
)

// APIError is a non-2xx response from the orchestrator server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// IsStale reports whether the server rejected a lifecycle call because the
// session had already advanced. Callers must re-fetch, not retry.
func IsStale(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == http.StatusConflict
}

// Client consumes the orchestrator's REST surface on behalf of one
// participant. Token is set after Login or Join.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// New creates a client against the given base URL (e.g. "http://host:8080").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SetToken installs the bearer token for subsequent calls.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Login authenticates the examiner and installs the returned token.
func (c *Client) Login(ctx context.Context, username, password string) (*model.LoginResponse, error) {
	var resp model.LoginResponse
	err := c.do(ctx, http.MethodPost, "/v1/auth/login", &model.LoginRequest{
		Username: username,
		Password: password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

// CreateSession schedules a viva (examiner only).
func (c *Client) CreateSession(ctx context.Context, req *handler.CreateSessionRequest) (*model.Session, error) {
	var session model.Session
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession fetches a session by id.
func (c *Client) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+id, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Join requests to join a session and installs the returned room token.
func (c *Client) Join(ctx context.Context, id, userID, name string) (*model.JoinResponse, error) {
	var resp model.JoinResponse
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+id+"/join", &handler.JoinRequest{
		UserID: userID,
		Name:   name,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.IsHost {
		// Hosts keep their examiner token; guests switch to the room token.
		c.token = resp.Token
	}
	return &resp, nil
}

// MyStatus polls the caller's admission status.
func (c *Client) MyStatus(ctx context.Context, id string) (model.ParticipantStatus, error) {
	var resp struct {
		Status model.ParticipantStatus `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+id+"/me", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// Participants polls the waiting-room roster (host only).
func (c *Client) Participants(ctx context.Context, id string) (*model.Roster, error) {
	var roster model.Roster
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+id+"/participants", nil, &roster); err != nil {
		return nil, err
	}
	return &roster, nil
}

// Admit admits one pending participant (host only).
func (c *Client) Admit(ctx context.Context, id, participantID string) error {
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+id+"/participants/"+participantID+"/admit", nil, nil)
}

// Reject rejects one pending participant (host only).
func (c *Client) Reject(ctx context.Context, id, participantID string) error {
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+id+"/participants/"+participantID+"/reject", nil, nil)
}

// AdmitAll admits every pending participant (host only).
func (c *Client) AdmitAll(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+id+"/participants/admit-all", nil, nil)
}

// Start starts the session (host only).
func (c *Client) Start(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+id+"/start", nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Complete completes the session with the examiner's result (host only).
func (c *Client) Complete(ctx context.Context, id string, req *service.CompleteRequest) (*model.Session, error) {
	var session model.Session
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+id+"/complete", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// MarkMissed cancels the session (host only).
func (c *Client) MarkMissed(ctx context.Context, id, reason string) error {
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+id+"/missed",
		&handler.MissedRequest{Reason: reason}, nil)
}

// UploadRecording sends the assembled artifact as a raw body.
func (c *Client) UploadRecording(ctx context.Context, id string, blob []byte, durationSeconds int, mimeType string) (*model.RecordingMeta, error) {
	url := fmt.Sprintf("%s/v1/sessions/%s/recording?durationSeconds=%d",
		c.baseURL, id, durationSeconds)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mimeType)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.ContentLength = int64(len(blob))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, decodeError(resp)
	}

	var meta model.RecordingMeta
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else if method == http.MethodPost {
		reader = bytes.NewReader([]byte("{}"))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode) + " " + strconv.Itoa(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: body.Error}
}
