// Package razorpay is a minimal client for the Razorpay Orders API.
package razorpay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/pizza-delivery/internal/domain/payment"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.razorpay.com"

const maxErrorBody = 64 << 10

var _ payment.Gateway = (*Client)(nil)

// Config holds gateway credentials.
type Config struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Timeout   time.Duration
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("razorpay: status %d", e.StatusCode)
	}
	return fmt.Sprintf("razorpay: %s (%s, status %d)", e.Description, e.Code, e.StatusCode)
}

// Option configures a Client.
type Option func(*options)

type options struct {
	httpClient     *http.Client
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTracerProvider sets the tracer provider for outgoing requests.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider for outgoing requests.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// Client creates and fetches payment intents ("orders" in Razorpay terms).
type Client struct {
	http      *http.Client
	baseURL   string
	keyID     string
	keySecret string
}

// New creates a Client. Outgoing requests are instrumented with otelhttp
// unless a custom HTTP client is supplied.
func New(cfg Config, opts ...Option) *Client {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		var transportOpts []otelhttp.Option
		if o.tracerProvider != nil {
			transportOpts = append(transportOpts, otelhttp.WithTracerProvider(o.tracerProvider))
		}
		if o.meterProvider != nil {
			transportOpts = append(transportOpts, otelhttp.WithMeterProvider(o.meterProvider))
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport, transportOpts...),
			Timeout:   timeout,
		}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		http:      httpClient,
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
	}
}

// CreateIntent creates a gateway order for amount minor currency units.
func (c *Client) CreateIntent(ctx context.Context, amount int64, currency, receipt string) (*payment.Intent, error) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("amount", func(e *jx.Encoder) { e.Int64(amount) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(currency) })
		e.Field("receipt", func(e *jx.Encoder) { e.Str(receipt) })
	})
	return c.do(ctx, http.MethodPost, "/v1/orders", bytes.NewReader(e.Bytes()))
}

// FetchIntent returns the gateway order with the given id, including the
// amount it was created for.
func (c *Client) FetchIntent(ctx context.Context, id string) (*payment.Intent, error) {
	if id == "" {
		return nil, errors.New("empty order id")
	}
	return c.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(id), nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*payment.Intent, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}

	intent, err := decodeIntent(jx.Decode(resp.Body, 1024))
	if err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return intent, nil
}

func decodeIntent(d *jx.Decoder) (*payment.Intent, error) {
	var intent payment.Intent
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			intent.ID, err = d.Str()
		case "amount":
			intent.Amount, err = d.Int64()
		case "currency":
			intent.Currency, err = d.Str()
		case "receipt":
			if d.Next() == jx.Null {
				return d.Null()
			}
			intent.Receipt, err = d.Str()
		case "status":
			intent.Status, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if intent.ID == "" {
		return nil, errors.New("missing order id")
	}
	return &intent, nil
}

// decodeError reads {"error": {"code": ..., "description": ...}}.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return apiErr
	}
	_ = jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "error" || d.Next() != jx.Object {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "code":
				apiErr.Code, err = d.Str()
			case "description":
				apiErr.Description, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		})
	})
	return apiErr
}
