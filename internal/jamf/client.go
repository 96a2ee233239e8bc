package jamf

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/metal-toolbox/devicesync/internal/configuration"
	"github.com/metal-toolbox/devicesync/internal/metrics"
	"github.com/metal-toolbox/devicesync/internal/model"
)

const (
	pkgName = "internal/jamf"

	tokenPath        = "/api/v1/auth/token"
	oauthTokenPath   = "/api/oauth/token"
	lookupPathPrefix = "/JSSResource/mobiledevices/serialnumber/"
	devicePathPrefix = "/api/v2/mobile-devices/"

	mimeJSON = "application/json"
	mimeXML  = "application/xml"

	// response bodies are small device records, anything larger is not Jamf.
	maxBodyBytes = 8 << 20
)

// Client is a Jamf Pro API client for the token, mobile device lookup
// and mobile device patch endpoints.
type Client struct {
	baseURL string
	opts    *configuration.JamfOptions
	client  *retryablehttp.Client
	clock   Clock
}

// Option sets optional Client parameters.
type Option func(*Client)

// WithClock sets the clock used to stamp issued tokens.
func WithClock(clock Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithLogger sets the logger used by the retrying transport.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) {
		c.client.Logger = logger
	}
}

// WithRetryWait bounds the backoff between transport retries.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.client.RetryWaitMin = minWait
		c.client.RetryWaitMax = maxWait
	}
}

// New returns a Jamf client configured from opts.
func New(opts *configuration.JamfOptions, options ...Option) (*Client, error) {
	if opts == nil {
		return nil, errors.Wrap(ErrConfig, "no jamf options")
	}

	if opts.URL == "" {
		return nil, errors.Wrap(ErrConfig, "no jamf URL")
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.Logger = nil
	rc.CheckRetry = retryConnectionErrors
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.HTTPClient.Timeout = opts.RequestTimeout
	rc.HTTPClient.Transport = otelhttp.NewTransport(rc.HTTPClient.Transport)

	c := &Client{
		baseURL: strings.TrimRight(opts.URL, "/"),
		opts:    opts,
		client:  rc,
		clock:   RealClock(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

// retryConnectionErrors retries requests that got no response. Status codes
// are never retried, they are classified by the caller.
func retryConnectionErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil {
		return false, nil
	}

	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// NewSession returns a session that exchanges credentials with this client
// and renews the token per the configured threshold. The session is not open.
func (c *Client) NewSession() (*Session, error) {
	exchanger, err := c.Exchanger()
	if err != nil {
		return nil, err
	}

	return NewSession(exchanger, c.opts.RenewalThreshold, c.clock), nil
}

type request struct {
	kind    EndpointKind
	method  string
	path    string
	accept  string
	body    any
	session *Session

	// credentials are sent as basic auth instead of the session token.
	credentials *model.Credentials
}

type response struct {
	statusCode int
	body       []byte
	url        string
}

func (r *response) asError(method string, kind EndpointKind, err error) *ResponseError {
	return &ResponseError{
		Kind:       kind,
		Method:     method,
		URL:        r.url,
		StatusCode: r.statusCode,
		Err:        err,
	}
}

// do sends the request and reads the response body. A transport failure is
// returned as ErrRequest, status codes are left to the caller.
func (c *Client) do(ctx context.Context, r *request) (*response, error) {
	ctx, span := otel.Tracer(pkgName).Start(
		ctx,
		"jamf."+r.kind.String(),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	url := c.baseURL + r.path

	var body io.Reader = http.NoBody
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request body")
		}

		body = bytes.NewReader(b)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, r.method, url, body)
	if err != nil {
		return nil, errors.Wrap(ErrRequest, err.Error())
	}

	if r.accept != "" {
		req.Header.Set("Accept", r.accept)
	}

	if r.body != nil {
		req.Header.Set("Content-Type", mimeJSON+"; charset=utf-8")
	}

	if r.session != nil {
		if err := r.session.authorize(req.Request); err != nil {
			return nil, err
		}
	}

	if r.credentials != nil {
		req.SetBasicAuth(r.credentials.Username, r.credentials.Password)
	}

	start := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ObserveAPIRequest(r.kind.String(), 0, time.Since(start))
		span.SetStatus(codes.Error, err.Error())

		slog.Error("jamf request failed", "endpoint", r.kind.String(), "method", r.method, "url", url, "error", err)

		return nil, errors.Wrap(ErrRequest, err.Error())
	}
	defer resp.Body.Close()

	metrics.ObserveAPIRequest(r.kind.String(), resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(ErrRequest, "failed to read response body: "+err.Error())
	}

	slog.Debug("jamf response",
		"endpoint", r.kind.String(),
		"method", r.method,
		"url", url,
		"status", resp.StatusCode,
	)

	return &response{statusCode: resp.StatusCode, body: b, url: url}, nil
}

// classify turns a response into an error per Classify, nil on OK.
func classify(method string, kind EndpointKind, resp *response) error {
	outcome := Classify(resp.statusCode, kind)

	switch outcome {
	case OK:
		return nil
	case NotFoundSkip:
		return resp.asError(method, kind, ErrLookupNotFound)
	default:
		slog.Error("jamf returned an unexpected response",
			"endpoint", kind.String(),
			"method", method,
			"url", resp.url,
			"status", resp.statusCode,
		)

		if kind == EndpointAuth {
			return resp.asError(method, kind, ErrAuth)
		}

		return resp.asError(method, kind, ErrFatalResponse)
	}
}
