// Package planetsource fetches planet descriptors, with their precomputed
// orbit paths, from the remote planet API.
package planetsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/signalsfoundry/orrery/internal/observability"
	"github.com/signalsfoundry/orrery/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// DefaultEndpoint is the planet API queried when none is configured.
const DefaultEndpoint = "https://cosmicview-back.onrender.com/all/"

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 64 << 20

var (
	ErrUnexpectedStatus = errors.New("unexpected status from planet API")
	ErrMalformedPayload = errors.New("malformed planet payload")
)

// Source yields the planet descriptors for one session.
type Source interface {
	FetchPlanets(ctx context.Context) ([]model.PlanetDescriptor, error)
}

// Client is a Source backed by one HTTP GET against a fixed endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets an overall request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// NewClient builds a Client for endpoint, or DefaultEndpoint when empty.
func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{endpoint: endpoint, http: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL the client queries.
func (c *Client) Endpoint() string { return c.endpoint }

// payloadJSON is the wire shape of the planet API response.
type payloadJSON struct {
	Planets *[]model.PlanetDescriptor `json:"planets"`
}

// FetchPlanets performs the request and validates the payload. It does not
// retry.
func (c *Client) FetchPlanets(ctx context.Context) (planets []model.PlanetDescriptor, err error) {
	ctx, span := observability.StartFetchSpan(ctx, c.endpoint)
	defer func() { observability.EndSpan(span, err) }()

	planets, err = c.fetch(ctx, span)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(observability.AttrPlanets.Int(len(planets)))
	return planets, nil
}

func (c *Client) fetch(ctx context.Context, span trace.Span) ([]model.PlanetDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(observability.AttrStatusCode.Int(resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	return Decode(io.LimitReader(resp.Body, maxBodyBytes))
}

// Decode parses and validates a planet API document.
func Decode(r io.Reader) ([]model.PlanetDescriptor, error) {
	var payload payloadJSON
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if payload.Planets == nil {
		return nil, fmt.Errorf("%w: missing planets", ErrMalformedPayload)
	}

	planets := *payload.Planets
	for i, p := range planets {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: planet %d has no name", ErrMalformedPayload, i)
		}
		if !(p.Radius > 0) {
			return nil, fmt.Errorf("%w: planet %s has radius %v", ErrMalformedPayload, p.Name, p.Radius)
		}
	}
	return planets, nil
}
