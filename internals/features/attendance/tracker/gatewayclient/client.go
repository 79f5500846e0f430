// Package gatewayclient implements tracker.Gateway over the attendance REST API.
package gatewayclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"fieldforce_backend/internals/features/attendance/metrics"
	"fieldforce_backend/internals/features/attendance/sessions/dto"
	"fieldforce_backend/internals/features/attendance/tracker"
)

const defaultTimeout = 20 * time.Second

// envelope mirrors helpers.JsonOK / JsonError.
type envelope struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message"`
	ErrorCode string              `json:"error_code,omitempty"`
	Errors    map[string][]string `json:"errors,omitempty"`
	Data      json.RawMessage     `json:"data"`
}

// APIError is a non-2xx answer from the server. It wraps the matching tracker
// sentinel so the tracker can classify it.
type APIError struct {
	Status  int
	Message string
	Fields  map[string][]string
	kind    error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.kind }

func statusError(status int, env envelope) error {
	msg := env.Message
	if msg == "" {
		msg = fasthttp.StatusMessage(status)
	}
	e := &APIError{Status: status, Message: msg, Fields: env.Errors}
	switch status {
	case fiber.StatusNotFound:
		e.kind = tracker.ErrNotFound
	case fiber.StatusConflict:
		e.kind = tracker.ErrConflict
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		e.kind = tracker.ErrInvalid
	case fiber.StatusUnauthorized:
		e.kind = tracker.ErrUnauthenticated
	}
	return e
}

// Client talks to one server as one user. Token is the bearer access token.
type Client struct {
	BaseURL string
	Token   string
	UserID  uuid.UUID
	Timeout time.Duration
}

var _ tracker.Gateway = (*Client)(nil)

func New(baseURL, token string, userID uuid.UUID) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), Token: token, UserID: userID, Timeout: defaultTimeout}
}

/* ====================== transport ====================== */

func (c *Client) timeout(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t := c.Timeout
	if t <= 0 {
		t = defaultTimeout
	}
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < t {
			if left <= 0 {
				return 0, context.DeadlineExceeded
			}
			t = left
		}
	}
	return t, nil
}

func (c *Client) agent(method, path string) *fiber.Agent {
	a := fiber.AcquireAgent()
	req := a.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(c.BaseURL + path)
	if c.Token != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+c.Token)
	}
	a.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	return a
}

// do sends body (JSON-encoded when non-nil) and decodes the envelope's data into out.
// It returns the HTTP status on success.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	a := c.agent(method, path)
	if body != nil {
		raw, err := sonic.Marshal(body)
		if err != nil {
			fiber.ReleaseAgent(a)
			return 0, errors.Wrap(err, "encode request")
		}
		a.ContentType(fiber.MIMEApplicationJSON)
		a.Body(raw)
	}
	return c.send(ctx, a, method, path, out)
}

func (c *Client) send(ctx context.Context, a *fiber.Agent, method, path string, out interface{}) (int, error) {
	t, err := c.timeout(ctx)
	if err != nil {
		fiber.ReleaseAgent(a)
		return 0, err
	}
	a.Timeout(t)
	if err := a.Parse(); err != nil {
		fiber.ReleaseAgent(a)
		return 0, errors.Wrap(err, "build request")
	}

	status, resp, errs := a.Bytes()
	if len(errs) > 0 {
		err := errs[0]
		if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) {
			return 0, errors.Wrapf(tracker.ErrTimedOut, "%s %s", method, path)
		}
		return 0, errors.Wrapf(err, "%s %s", method, path)
	}

	var env envelope
	if len(resp) > 0 {
		if err := sonic.Unmarshal(resp, &env); err != nil {
			return status, errors.Wrapf(err, "%s %s: decode response (HTTP %d)", method, path, status)
		}
	}
	if status < 200 || status >= 300 {
		return status, statusError(status, env)
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := sonic.Unmarshal(env.Data, out); err != nil {
			return status, errors.Wrapf(err, "%s %s: decode data", method, path)
		}
	}
	return status, nil
}

func (c *Client) owner(userID uuid.UUID) error {
	if c.UserID != uuid.Nil && userID != c.UserID {
		return errors.Wrap(tracker.ErrNotFound, "user mismatch")
	}
	return nil
}

/* ====================== auth ====================== */

type LoginResult struct {
	Token     string
	UserID    uuid.UUID
	UserName  string
	ExpiresAt time.Time
}

// Login exchanges credentials for an access token and binds the client to it.
func (c *Client) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	c.Token = ""
	var data struct {
		AccessToken string    `json:"access_token"`
		ExpiresAt   time.Time `json:"expires_at"`
		User        struct {
			ID       uuid.UUID `json:"id"`
			UserName string    `json:"user_name"`
		} `json:"user"`
	}
	body := map[string]string{"identifier": identifier, "password": password}
	if _, err := c.do(ctx, fiber.MethodPost, "/api/auth/login", body, &data); err != nil {
		return nil, err
	}
	if data.AccessToken == "" {
		return nil, errors.New("login response carried no access token")
	}
	c.Token, c.UserID = data.AccessToken, data.User.ID
	return &LoginResult{Token: data.AccessToken, UserID: data.User.ID, UserName: data.User.UserName, ExpiresAt: data.ExpiresAt}, nil
}

// Me resolves the user the token belongs to.
func (c *Client) Me(ctx context.Context) (uuid.UUID, string, error) {
	var data struct {
		ID       uuid.UUID `json:"id"`
		UserName string    `json:"user_name"`
	}
	if _, err := c.do(ctx, fiber.MethodGet, "/api/auth/me", nil, &data); err != nil {
		return uuid.Nil, "", err
	}
	c.UserID = data.ID
	return data.ID, data.UserName, nil
}

/* ====================== tracker.Gateway ====================== */

func (c *Client) CreateSession(ctx context.Context, in tracker.NewSession) (uuid.UUID, error) {
	if err := c.owner(in.UserID); err != nil {
		return uuid.Nil, err
	}
	odo, at := in.Odometer, in.CheckInAt
	req := dto.CreateAttendanceSessionRequest{CheckInAt: &at, CheckInOdometer: &odo, CheckInPhotoURL: in.PhotoURL}
	var out dto.AttendanceSessionResponse
	if _, err := c.do(ctx, fiber.MethodPost, "/api/u/attendance/sessions", req, &out); err != nil {
		return uuid.Nil, err
	}
	return out.AttendanceSessionID, nil
}

func (c *Client) GetSession(ctx context.Context, sessionID uuid.UUID) (*tracker.Session, error) {
	var out dto.AttendanceSessionResponse
	if _, err := c.do(ctx, fiber.MethodGet, "/api/u/attendance/sessions/"+sessionID.String(), nil, &out); err != nil {
		return nil, err
	}
	s := out.ToTracker()
	return &s, nil
}

func (c *Client) UpdateSession(ctx context.Context, sessionID uuid.UUID, fields tracker.SessionUpdate) error {
	_, err := c.do(ctx, fiber.MethodPatch, "/api/u/attendance/sessions/"+sessionID.String(), dto.UpdateRequestFromTracker(fields), nil)
	return err
}

func (c *Client) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	_, err := c.do(ctx, fiber.MethodDelete, "/api/u/attendance/sessions/"+sessionID.String(), nil, nil)
	return err
}

func (c *Client) InsertLocationSample(ctx context.Context, s tracker.LocationSample) (*tracker.LocationSample, bool, error) {
	if err := c.owner(s.UserID); err != nil {
		return nil, false, err
	}
	var out dto.LocationSampleResponse
	status, err := c.do(ctx, fiber.MethodPost,
		"/api/u/attendance/sessions/"+s.SessionID.String()+"/samples", dto.SampleRequestFromTracker(s), &out)
	if err != nil {
		return nil, false, err
	}
	stored := out.ToTracker()
	return &stored, status == fiber.StatusOK || out.LocationSampleDuplicate, nil
}

func (c *Client) SetUserActive(ctx context.Context, userID uuid.UUID, active bool) error {
	if err := c.owner(userID); err != nil {
		return err
	}
	_, err := c.do(ctx, fiber.MethodPut, "/api/u/attendance/me/active", dto.SetActiveRequest{Active: &active}, nil)
	return err
}

func (c *Client) ListSessionsForDay(ctx context.Context, userID uuid.UUID, day time.Time) ([]tracker.Session, error) {
	if err := c.owner(userID); err != nil {
		return nil, err
	}
	q := url.Values{"date": {day.Format(dto.DateLayout)}}
	var out []dto.AttendanceSessionResponse
	if _, err := c.do(ctx, fiber.MethodGet, "/api/u/attendance/sessions?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	list := make([]tracker.Session, 0, len(out))
	for _, r := range out {
		list = append(list, r.ToTracker())
	}
	return list, nil
}

func (c *Client) UpsertDailySummary(ctx context.Context, s metrics.DailySummary) error {
	if err := c.owner(s.UserID); err != nil {
		return err
	}
	_, err := c.do(ctx, fiber.MethodPut,
		"/api/u/attendance/summaries/"+s.Date.Format(dto.DateLayout), dto.SummaryRequestFromMetrics(s), nil)
	return err
}

func (c *Client) GetOpenSession(ctx context.Context, userID uuid.UUID) (*tracker.Session, error) {
	if err := c.owner(userID); err != nil {
		return nil, err
	}
	var out *dto.AttendanceSessionResponse
	if _, err := c.do(ctx, fiber.MethodGet, "/api/u/attendance/sessions/open", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	s := out.ToTracker()
	return &s, nil
}

/* ====================== photos ====================== */

// UploadPhoto posts an image and returns the public URL to pass as a photo reference.
func (c *Client) UploadPhoto(ctx context.Context, filename string, data []byte) (string, error) {
	a := c.agent(fiber.MethodPost, "/api/u/attendance/photos")
	a.FileData(&fiber.FormFile{Fieldname: "photo", Name: filename, Content: data})
	a.MultipartForm(nil)

	var out struct {
		URL string `json:"url"`
	}
	if _, err := c.send(ctx, a, fiber.MethodPost, "/api/u/attendance/photos", &out); err != nil {
		return "", err
	}
	log.Printf("[INFO] photo uploaded: %s", out.URL)
	return out.URL, nil
}
