// Package transport performs the raw HTTP exchanges behind every graph API call.
//
// Requests are synchronous through [Transport.Do] or asynchronous through
// [Transport.Begin]. Both paths share argument encoding and response classification:
// error statuses carrying a JSON body are handed back so callers can surface the remote
// error, while every other failure maps to one of the package sentinels.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goGraph/async"
	"golang.org/x/text/language"
)

// Verb is the HTTP method of a graph request.
type Verb string

const (
	GET    Verb = http.MethodGet
	POST   Verb = http.MethodPost
	DELETE Verb = http.MethodDelete
)

const (
	// DefaultTimeout bounds a whole exchange, body included.
	DefaultTimeout = 100 * time.Second
	// ChunkSize is the body read buffer size.
	ChunkSize = 4096
)

var (
	// ErrInvalidArgument is returned for empty URLs, unknown verbs and bad options.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTransport wraps network faults and non-JSON error statuses.
	ErrTransport = errors.New("transport error")
	// ErrTimeout is returned when the exchange exceeds its deadline.
	ErrTimeout = errors.New("operation timed out")
	// ErrUnexpectedResponse is returned when a response cannot be interpreted.
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// jsonMediaTypes are treated as carrying a parseable body even on error statuses.
var jsonMediaTypes = map[string]struct{}{
	"text/javascript":        {},
	"application/json":       {},
	"application/javascript": {},
}

// StatusError describes an error status whose body is not JSON.
type StatusError struct {
	StatusCode  int
	ContentType string
	Body        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: unexpected status %d (%s)", e.StatusCode, e.ContentType)
}

func (e *StatusError) Unwrap() error {
	return ErrTransport
}

// Response is a fully read HTTP response.
type Response struct {
	Body        string
	ContentType string
	StatusCode  int
}

// MediaType returns the lower-cased media type without parameters.
func (r *Response) MediaType() string {
	return MediaType(r.ContentType)
}

// IsJSON reports whether the body is declared as JSON.
func (r *Response) IsJSON() bool {
	_, ok := jsonMediaTypes[r.MediaType()]
	return ok
}

// MediaType strips parameters from a Content-Type header value.
func MediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// Observer is told about every finished exchange.
type Observer func(verb Verb, statusCode int, elapsed time.Duration, err error)

// Option configures a Transport.
type Option func(*Transport)

// WithTimeout overrides DefaultTimeout. Non-positive values are rejected by New.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) { t.timeout = d }
}

// WithProxy sets the proxy selector of the default client.
func WithProxy(proxy func(*http.Request) (*url.URL, error)) Option {
	return func(t *Transport) { t.proxy = proxy }
}

// WithLocale sets the Accept-Language tag.
func WithLocale(tag language.Tag) Option {
	return func(t *Transport) { t.locale = tag }
}

// WithHTTPClient replaces the default client. The proxy option is ignored then.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.client = c }
}

// WithLogger sets the logger used for request lifecycle records.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// WithSink sets the receiver of faults raised in asynchronous continuations.
func WithSink(sink func(error)) Option {
	return func(t *Transport) { t.sink = sink }
}

// WithObserver registers a per-exchange observer.
func WithObserver(o Observer) Option {
	return func(t *Transport) { t.observer = o }
}

// Transport sends graph requests. It is safe for concurrent use.
type Transport struct {
	client   *http.Client
	proxy    func(*http.Request) (*url.URL, error)
	timeout  time.Duration
	locale   language.Tag
	logger   *slog.Logger
	sink     func(error)
	observer Observer
}

// New builds a Transport.
func New(opts ...Option) (*Transport, error) {
	t := &Transport{
		timeout: DefaultTimeout,
		locale:  language.English,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}

	if t.timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be greater than zero", ErrInvalidArgument)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.client == nil {
		proxy := t.proxy
		if proxy == nil {
			proxy = http.ProxyFromEnvironment
		}
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.Proxy = proxy
		t.client = &http.Client{Transport: base}
	}

	return t, nil
}

// Timeout returns the per-exchange deadline.
func (t *Transport) Timeout() time.Duration { return t.timeout }

// Locale returns the Accept-Language tag.
func (t *Transport) Locale() language.Tag { return t.locale }

// Sink returns the receiver of asynchronous faults, possibly nil.
func (t *Transport) Sink() func(error) { return t.sink }

// AcceptLanguage returns the header value sent with every request.
func (t *Transport) AcceptLanguage() string {
	return strings.ToLower(t.locale.String())
}

// Do performs one exchange and reads the whole body.
func (t *Transport) Do(ctx context.Context, rawURL string, verb Verb, args map[string]string) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	resp, err := t.exchange(ctx, rawURL, verb, args)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if t.observer != nil {
		t.observer(verb, status, time.Since(start), err)
	}
	return resp, err
}

// Begin performs the exchange on a new goroutine. cb, when set, runs once with the
// completed future.
func (t *Transport) Begin(ctx context.Context, rawURL string, verb Verb, args map[string]string, cb async.Callback[*Response]) *async.Future[*Response] {
	return async.Go(ctx, func(ctx context.Context) (*Response, error) {
		return t.Do(ctx, rawURL, verb, args)
	}, cb, t.sink)
}

func (t *Transport) exchange(ctx context.Context, rawURL string, verb Verb, args map[string]string) (*Response, error) {
	req, err := t.newRequest(ctx, rawURL, verb, args)
	if err != nil {
		return nil, err
	}

	t.logger.DebugContext(ctx, "graph request", "verb", string(verb), "host", req.URL.Host, "path", req.URL.Path)

	httpResp, err := t.client.Do(req)
	if err != nil {
		return nil, classifyNetError(err)
	}
	defer httpResp.Body.Close()

	body, err := readChunks(httpResp.Body)
	if err != nil {
		return nil, classifyNetError(err)
	}

	resp := &Response{
		Body:        body,
		ContentType: httpResp.Header.Get("Content-Type"),
		StatusCode:  httpResp.StatusCode,
	}

	t.logger.DebugContext(ctx, "graph response", "verb", string(verb), "status", resp.StatusCode, "content_type", resp.ContentType, "bytes", len(body))

	return classify(resp)
}

func (t *Transport) newRequest(ctx context.Context, rawURL string, verb Verb, args map[string]string) (*http.Request, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty url", ErrInvalidArgument)
	}

	var (
		req *http.Request
		err error
	)
	switch verb {
	case GET, DELETE:
		req, err = http.NewRequestWithContext(ctx, string(verb), AppendQuery(rawURL, args), nil)
	case POST:
		req, err = http.NewRequestWithContext(ctx, string(verb), rawURL, strings.NewReader(EncodeArgs(args)))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	default:
		return nil, fmt.Errorf("%w: unsupported verb %q", ErrInvalidArgument, verb)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	req.Header.Set("Accept-Language", t.AcceptLanguage())
	return req, nil
}

// EncodeArgs renders args as sorted key=value pairs joined by "&".
func EncodeArgs(args map[string]string) string {
	if len(args) == 0 {
		return ""
	}
	values := make(url.Values, len(args))
	for k, v := range args {
		values.Set(k, v)
	}
	return values.Encode()
}

// AppendQuery appends encoded args to rawURL. rawURL is returned untouched when args is
// empty.
func AppendQuery(rawURL string, args map[string]string) string {
	q := EncodeArgs(args)
	if q == "" {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + q
}

func readChunks(r io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
		}
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
		if n == 0 {
			// zero-byte read ends the body
			return sb.String(), nil
		}
	}
}

func classify(resp *Response) (*Response, error) {
	if resp.StatusCode >= http.StatusBadRequest {
		if resp.IsJSON() {
			return resp, nil
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, ContentType: resp.ContentType, Body: resp.Body}
	}
	if resp.ContentType == "" {
		return nil, fmt.Errorf("%w: missing content type", ErrUnexpectedResponse)
	}
	return resp, nil
}

func classifyNetError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
