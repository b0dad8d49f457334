package remote

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

	"github.com/gofrs/uuid/v5"
	"golang.org/x/time/rate"

	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/model"
)

// HTTPError is a non-2xx response of the record store.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Is matches the sentinel for the response code or status.
func (e *HTTPError) Is(target error) bool {
	if s := errs.ParseKind(e.Code).Sentinel(); s != nil {
		return target == s
	}
	return target == statusSentinel(e.StatusCode)
}

func statusSentinel(code int) error {
	switch {
	case code == http.StatusNotFound:
		return errs.ErrNotFound
	case code == http.StatusForbidden:
		return errs.ErrForbidden
	case code == http.StatusUnauthorized:
		return errs.ErrUnauthorized
	case code == http.StatusGone:
		return errs.ErrGone
	case code == http.StatusUnprocessableEntity || code == http.StatusBadRequest:
		return errs.ErrValidation
	case code == http.StatusTooManyRequests:
		return errs.ErrRateLimited
	case code == http.StatusConflict:
		return errs.ErrConflict
	case code >= 500:
		return errs.ErrTransient
	}
	return nil
}

// rateLimitedTransport wraps an http.RoundTripper with client-side rate limiting.
type rateLimitedTransport struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.transport.RoundTrip(req)
}

// NewRateLimitedHTTPClient returns an http.Client sending at most perSecond requests per second.
func NewRateLimitedHTTPClient(perSecond float64, burst int) *http.Client {
	return &http.Client{Transport: &rateLimitedTransport{
		transport: http.DefaultTransport,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), burst),
	}}
}

// HTTPClient talks to the record store's JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a client for baseURL. A nil httpClient uses a rate-limited default.
func NewHTTPClient(baseURL, token string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = NewRateLimitedHTTPClient(10, 20)
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), token: token, httpClient: httpClient}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
}

func correlationID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return id.String()
}

func (c *HTTPClient) doJSON(ctx context.Context, method, requestPath string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Correlation-Id", correlationID())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransient, err)
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("%w: read body: %v", errs.ErrTransient, readErr)
	}

	var env envelope
	_ = json.Unmarshal(payload, &env)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Error}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", errs.ErrTransient, err)
	}
	return nil
}

func notePath(id uuid.UUID, suffix string) string {
	return "/v1/notes/" + url.PathEscape(id.String()) + suffix
}

func (c *HTTPClient) noteCall(ctx context.Context, method, path string, body any) (model.Note, error) {
	var n model.Note
	if err := c.doJSON(ctx, method, path, body, &n); err != nil {
		return model.Note{}, err
	}
	return n, nil
}

func (c *HTTPClient) GetNote(ctx context.Context, id uuid.UUID) (model.Note, error) {
	return c.noteCall(ctx, http.MethodGet, notePath(id, ""), nil)
}

func (c *HTTPClient) CreateNote(ctx context.Context, in model.NewNote) (model.Note, error) {
	return c.noteCall(ctx, http.MethodPost, "/v1/notes", in)
}

func (c *HTTPClient) PatchDraft(ctx context.Context, id uuid.UUID, p model.Patch) (model.Note, error) {
	return c.noteCall(ctx, http.MethodPatch, notePath(id, "/draft"), p)
}

func (c *HTTPClient) Amend(ctx context.Context, id uuid.UUID, p model.Patch) (model.Note, error) {
	return c.noteCall(ctx, http.MethodPatch, notePath(id, "/amend"), p)
}

func (c *HTTPClient) Finalize(ctx context.Context, id uuid.UUID) (model.Note, error) {
	return c.noteCall(ctx, http.MethodPost, notePath(id, "/finalize"), nil)
}

// DeleteRequest is the optional body of a soft delete.
type DeleteRequest struct {
	Reason *string `json:"reason,omitempty"`
}

func (c *HTTPClient) Delete(ctx context.Context, id uuid.UUID, reason *string) (model.Note, error) {
	return c.noteCall(ctx, http.MethodDelete, notePath(id, ""), DeleteRequest{Reason: reason})
}

func (c *HTTPClient) Restore(ctx context.Context, id uuid.UUID) (model.Note, error) {
	return c.noteCall(ctx, http.MethodPost, notePath(id, "/restore"), nil)
}

func (c *HTTPClient) Purge(ctx context.Context, id uuid.UUID) error {
	return c.doJSON(ctx, http.MethodDelete, notePath(id, "/permanent"), nil, nil)
}

func (c *HTTPClient) Versions(ctx context.Context, id uuid.UUID) ([]model.VersionSnapshot, error) {
	var out []model.VersionSnapshot
	if err := c.doJSON(ctx, http.MethodGet, notePath(id, "/versions"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
