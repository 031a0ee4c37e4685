package hsesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrTimeout is returned when the configured per-call timeout expires.
var ErrTimeout = errors.New("request timed out")

// TokenSource yields the bearer token of the current session, or "".
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// Client is a minimal HSE backend HTTP client. It never retries.
type Client struct {
	BaseURL    string
	Tokens     TokenSource
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
		Timeout:    timeout,
	}
}

// APIError wraps non-2xx responses. Message is taken from the JSON body when
// there is one.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) IsNotFound() bool      { return e.StatusCode == http.StatusNotFound }
func (e *APIError) IsUnauthorized() bool  { return e.StatusCode == http.StatusUnauthorized }
func (e *APIError) IsUnprocessable() bool { return e.StatusCode == http.StatusUnprocessableEntity }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// UploadFile is one part of a multipart upload.
type UploadFile struct {
	Field    string
	FileName string
	Data     []byte
}

// Download is a raw response body.
type Download struct {
	Data        []byte
	ContentType string
	FileName    string
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPatch, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, out)
}

// Upload posts files (and optional plain fields) as multipart/form-data. The
// content type, boundary included, comes from the multipart writer.
func (c *Client) Upload(ctx context.Context, path string, files []UploadFile, fields map[string]string, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	for _, f := range files {
		field := f.Field
		if field == "" {
			field = "files"
		}
		part, err := mw.CreateFormFile(field, f.FileName)
		if err != nil {
			return err
		}
		if _, err := part.Write(f.Data); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}
	return c.send(ctx, http.MethodPost, path, mw.FormDataContentType(), &buf, "application/json", func(resp *http.Response) error {
		return decodeInto(resp, out)
	})
}

// Download fetches a raw body (exported documents, files).
func (c *Client) Download(ctx context.Context, path string) (Download, error) {
	var d Download
	err := c.send(ctx, http.MethodGet, path, "", nil, "", func(resp *http.Response) error {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		d.Data = data
		d.ContentType = resp.Header.Get("Content-Type")
		if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
			d.FileName = params["filename"]
		}
		return nil
	})
	return d, err
}

// GetRaw fetches a non-JSON body such as text/html.
func (c *Client) GetRaw(ctx context.Context, path, accept string) ([]byte, error) {
	var data []byte
	err := c.send(ctx, http.MethodGet, path, "", nil, accept, func(resp *http.Response) error {
		b, err := io.ReadAll(resp.Body)
		data = b
		return err
	})
	return data, err
}

// PutRaw sends a non-JSON body such as text/html.
func (c *Client) PutRaw(ctx context.Context, path, contentType string, body []byte, out any) error {
	return c.send(ctx, http.MethodPut, path, contentType, bytes.NewReader(body), "application/json", func(resp *http.Response) error {
		return decodeInto(resp, out)
	})
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
	}
	return c.send(ctx, method, path, "application/json", reader, "application/json", func(resp *http.Response) error {
		return decodeInto(resp, out)
	})
}

func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader, accept string, handle func(*http.Response) error) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	callCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(callCtx, method, c.url(path), body)
	if err != nil {
		return err
	}
	if contentType != "" && body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.Tokens != nil {
		if tok := c.Tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s %s: %w after %s", method, path, ErrTimeout, c.Timeout)
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, b), Body: string(b)}
	}
	if err := handle(resp); err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s %s: %w after %s", method, path, ErrTimeout, c.Timeout)
		}
		return err
	}
	return nil
}

func decodeInto(resp *http.Response, out any) error {
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// errorMessage extracts a human message from common error body shapes:
// {"message"}, {"detail"}, {"error":"..."} and {"error":{"message"}}.
func errorMessage(status int, body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"message", "detail", "error"} {
			switch v := payload[key].(type) {
			case string:
				if v != "" {
					return v
				}
			case map[string]any:
				if msg, ok := v["message"].(string); ok && msg != "" {
					return msg
				}
			case []any:
				if len(v) > 0 {
					if first, ok := v[0].(map[string]any); ok {
						if msg, ok := first["msg"].(string); ok {
							return msg
						}
					}
				}
			}
		}
	}
	return fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
