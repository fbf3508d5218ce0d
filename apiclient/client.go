package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientRequestIDHeader = "client-request-id"

// RequestInterceptor runs before a request is sent. Returning an error
// abandons the request.
type RequestInterceptor func(req *http.Request) error

// ResponseInterceptor runs after a response is received and before it is
// returned to the caller. Returning an error replaces the response.
type ResponseInterceptor func(resp *http.Response) error

// StatusError is returned for non-2xx responses
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// Client is the HTTP transport used for Hours Tracker API calls. Interceptors
// run in registration order on every request made through it.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu                   sync.RWMutex
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) UseRequest(interceptor RequestInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestInterceptors = append(c.requestInterceptors, interceptor)
}

func (c *Client) UseResponse(interceptor ResponseInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseInterceptors = append(c.responseInterceptors, interceptor)
}

// Do sends req through the interceptor chain. When a response interceptor
// fails the response body is closed and only the error is returned.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.mu.RLock()
	requestInterceptors := append([]RequestInterceptor(nil), c.requestInterceptors...)
	responseInterceptors := append([]ResponseInterceptor(nil), c.responseInterceptors...)
	c.mu.RUnlock()

	if req.Header.Get(clientRequestIDHeader) == "" {
		req.Header.Set(clientRequestIDHeader, uuid.New().String())
	}

	for _, intercept := range requestInterceptors {
		if err := intercept(req); err != nil {
			return nil, err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[Client Do] %s %s: %w", req.Method, req.URL.Path, err)
	}

	for _, intercept := range responseInterceptors {
		if err := intercept(resp); err != nil {
			resp.Body.Close()
			return nil, err
		}
	}
	return resp, nil
}

// Get requests path relative to the base URL and decodes the JSON body into out
func (c *Client) Get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+strings.TrimLeft(path, "/"), nil)
	if err != nil {
		return fmt.Errorf("[Client Get] %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Debug().Int("status", resp.StatusCode).Str("path", req.URL.Path).Msg("[Client Get] non-success response")
		return &StatusError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("[Client Get] decoding %s: %w", req.URL.Path, err)
	}
	return nil
}
