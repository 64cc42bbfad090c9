// Package graphapi is the typed front of the social graph API: it resolves relative
// paths against the graph or legacy REST endpoint, attaches the access token, decodes
// the body into a variant.Value and raises remote errors as *APIError.
package graphapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/MrEthical07/goGraph/async"
	"github.com/MrEthical07/goGraph/transport"
	"github.com/MrEthical07/goGraph/variant"
)

const (
	// DefaultGraphURL serves every path not routed to the REST endpoint.
	DefaultGraphURL = "https://graph.example"
	// DefaultRESTURL serves paths starting with RESTPrefix.
	DefaultRESTURL = "https://api.example"
	// RESTPrefix selects the legacy REST endpoint.
	RESTPrefix = "method/"
)

// ErrAPI matches every *APIError.
var ErrAPI = errors.New("graph api error")

// APIError is an error reported by the remote API.
type APIError struct {
	Type       string
	Message    string
	Code       int64
	StatusCode int
}

func (e *APIError) Error() string {
	switch {
	case e.Type != "" && e.Code != 0:
		return fmt.Sprintf("graph api: %s (%d): %s", e.Type, e.Code, e.Message)
	case e.Type != "":
		return fmt.Sprintf("graph api: %s: %s", e.Type, e.Message)
	case e.Code != 0:
		return fmt.Sprintf("graph api: code %d: %s", e.Code, e.Message)
	default:
		return "graph api: " + e.Message
	}
}

// Is reports whether target is ErrAPI.
func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

// CheckError returns an *APIError when v carries either the graph error object
// ({"error":{"type","message"}}) or the legacy REST pair (error_code, error_msg).
func CheckError(v *variant.Value) error {
	if !v.IsDictionary() {
		return nil
	}

	if e := v.Get("error"); e.IsDictionary() {
		apiErr := &APIError{
			Type:    e.Get("type").String(),
			Message: e.Get("message").String(),
		}
		if code, err := e.Get("code").Integer(); err == nil {
			apiErr.Code = code
		}
		return apiErr
	}

	if v.Has("error_code") {
		apiErr := &APIError{Message: v.Get("error_msg").String()}
		if code, err := v.Get("error_code").Integer(); err == nil {
			apiErr.Code = code
		}
		return apiErr
	}

	return nil
}

// Option configures a Client.
type Option func(*Client)

// WithGraphURL overrides DefaultGraphURL.
func WithGraphURL(u string) Option {
	return func(c *Client) { c.graphURL = strings.TrimRight(u, "/") }
}

// WithRESTURL overrides DefaultRESTURL.
func WithRESTURL(u string) Option {
	return func(c *Client) { c.restURL = strings.TrimRight(u, "/") }
}

// Client issues graph API calls bound to one access token. It is safe for concurrent use.
type Client struct {
	transport   *transport.Transport
	accessToken string
	graphURL    string
	restURL     string
}

// New returns a client sending through t. accessToken may be empty for anonymous calls.
func New(t *transport.Transport, accessToken string, opts ...Option) (*Client, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil transport", transport.ErrInvalidArgument)
	}
	c := &Client{
		transport:   t,
		accessToken: accessToken,
		graphURL:    DefaultGraphURL,
		restURL:     DefaultRESTURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// AccessToken returns the bound token.
func (c *Client) AccessToken() string { return c.accessToken }

// Transport returns the underlying transport.
func (c *Client) Transport() *transport.Transport { return c.transport }

// Get calls path with GET.
func (c *Client) Get(ctx context.Context, path string, args map[string]string) (*variant.Value, error) {
	return c.Call(ctx, path, transport.GET, args)
}

// Post calls path with POST.
func (c *Client) Post(ctx context.Context, path string, args map[string]string) (*variant.Value, error) {
	return c.Call(ctx, path, transport.POST, args)
}

// Delete calls path with DELETE.
func (c *Client) Delete(ctx context.Context, path string, args map[string]string) (*variant.Value, error) {
	return c.Call(ctx, path, transport.DELETE, args)
}

// Call performs one API call. args is never modified.
func (c *Client) Call(ctx context.Context, path string, verb transport.Verb, args map[string]string) (*variant.Value, error) {
	u, params, err := c.resolve(path, args)
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Do(ctx, u, verb, params)
	if err != nil {
		return nil, err
	}
	return Decode(resp)
}

// BeginGet is the asynchronous form of Get.
func (c *Client) BeginGet(ctx context.Context, path string, args map[string]string, cb async.Callback[*variant.Value]) *async.Future[*variant.Value] {
	return c.BeginCall(ctx, path, transport.GET, args, cb)
}

// BeginPost is the asynchronous form of Post.
func (c *Client) BeginPost(ctx context.Context, path string, args map[string]string, cb async.Callback[*variant.Value]) *async.Future[*variant.Value] {
	return c.BeginCall(ctx, path, transport.POST, args, cb)
}

// BeginDelete is the asynchronous form of Delete.
func (c *Client) BeginDelete(ctx context.Context, path string, args map[string]string, cb async.Callback[*variant.Value]) *async.Future[*variant.Value] {
	return c.BeginCall(ctx, path, transport.DELETE, args, cb)
}

// BeginCall is the asynchronous form of Call. Decoding runs as a continuation of the
// exchange; its failures reach the transport sink before the future completes.
func (c *Client) BeginCall(ctx context.Context, path string, verb transport.Verb, args map[string]string, cb async.Callback[*variant.Value]) *async.Future[*variant.Value] {
	u, params, err := c.resolve(path, args)
	if err != nil {
		return async.Completed[*variant.Value](nil, err, cb)
	}
	exchange := c.transport.Begin(ctx, u, verb, params, nil)
	return async.Then(ctx, exchange, func(_ context.Context, resp *transport.Response) (*variant.Value, error) {
		return Decode(resp)
	}, cb, c.transport.Sink())
}

// Decode parses a response body and converts remote error shapes into *APIError.
func Decode(resp *transport.Response) (*variant.Value, error) {
	v, err := variant.Parse(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := CheckError(v); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			apiErr.StatusCode = resp.StatusCode
		}
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d without error object", transport.ErrUnexpectedResponse, resp.StatusCode)
	}
	return v, nil
}

func (c *Client) resolve(path string, args map[string]string) (string, map[string]string, error) {
	if path == "" {
		return "", nil, fmt.Errorf("%w: empty path", transport.ErrInvalidArgument)
	}

	params := make(map[string]string, len(args)+2)
	for k, v := range args {
		params[k] = v
	}
	if c.accessToken != "" {
		params["access_token"] = c.accessToken
	}

	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path, params, nil
	}

	rel := strings.TrimLeft(path, "/")
	if strings.HasPrefix(rel, RESTPrefix) {
		params["format"] = "json"
		return c.restURL + "/" + rel, params, nil
	}
	return c.graphURL + "/" + rel, params, nil
}
