package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/EcommerceGo/pkg/cartsync/domain"
	"github.com/utafrali/EcommerceGo/pkg/cartsync/identity"
	apperrors "github.com/utafrali/EcommerceGo/pkg/errors"
	"github.com/utafrali/EcommerceGo/pkg/httpclient"
	"github.com/utafrali/EcommerceGo/pkg/logger"
)

const serviceName = "cart"

// HTTPClient talks to the cart service REST API.
type HTTPClient struct {
	baseURL string
	doer    httpclient.Doer
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewHTTPClient returns a Client for the cart service at baseURL. doer is
// usually a retrying httpclient.Client wrapped in a circuit breaker.
func NewHTTPClient(baseURL string, doer httpclient.Doer, l *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		doer:    doer,
		logger:  logger.OrDefault(l),
		tracer:  otel.Tracer("github.com/utafrali/EcommerceGo/pkg/cartsync/remote"),
	}
}

// NewDefaultHTTPClient wires the retrying client and circuit breaker with
// default settings.
func NewDefaultHTTPClient(baseURL string, cfg httpclient.Config, l *slog.Logger) *HTTPClient {
	l = logger.OrDefault(l)
	cb := httpclient.NewCircuitBreakerClient(
		httpclient.New(cfg),
		httpclient.DefaultCircuitBreakerConfig("cartsync-remote"),
		l,
	)
	return NewHTTPClient(baseURL, cb, l)
}

func (c *HTTPClient) Fetch(ctx context.Context) (domain.Snapshot, error) {
	var env cartEnvelope
	if err := c.send(ctx, "fetch", http.MethodGet, "/api/v1/cart", nil, &env); err != nil {
		return nil, err
	}
	return env.Data.snapshot(), nil
}

func (c *HTTPClient) AddLine(ctx context.Context, line domain.Line) error {
	return c.send(ctx, "add_line", http.MethodPost, "/api/v1/cart/items", toItemDTO(line), nil)
}

func (c *HTTPClient) UpdateLine(ctx context.Context, key domain.Key, quantity int) error {
	return c.send(ctx, "update_line", http.MethodPut, itemPath(key), updateQuantityRequest{Quantity: quantity}, nil)
}

func (c *HTTPClient) RemoveLine(ctx context.Context, key domain.Key) error {
	return c.send(ctx, "remove_line", http.MethodDelete, itemPath(key), nil, nil)
}

func (c *HTTPClient) Clear(ctx context.Context) error {
	return c.send(ctx, "clear", http.MethodDelete, "/api/v1/cart", nil, nil)
}

func itemPath(key domain.Key) string {
	q := url.Values{}
	q.Set("size", key.Size)
	q.Set("color", key.Color)
	return "/api/v1/cart/items/" + url.PathEscape(key.ProductID) + "?" + q.Encode()
}

// send performs one request for the identity in ctx, decoding a 2xx body
// into out when out is non-nil.
func (c *HTTPClient) send(ctx context.Context, op, method, path string, in, out any) error {
	id, ok := identity.FromContext(ctx)
	if !ok || !id.Authenticated() {
		return apperrors.Unauthorized("remote cart call " + op + " requires an authenticated identity")
	}

	ctx, span := c.tracer.Start(ctx, "cartsync.remote."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPMethod(method),
			attribute.String("cart.user_id", id.UserID),
		),
	)
	defer span.End()

	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-User-ID", id.UserID)
	if id.Token != "" {
		req.Header.Set("Authorization", "Bearer "+id.Token)
	}
	if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
		req.Header.Set("X-Correlation-ID", cid)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("call cart service (%s): %w", op, err)
	}
	span.SetAttributes(semconv.HTTPStatusCode(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := httpclient.ParseResponseError(resp, serviceName)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}

	c.logger.DebugContext(ctx, "remote cart call completed",
		slog.String("op", op),
		slog.String("user_id", id.UserID),
		slog.Int("status", resp.StatusCode),
	)
	return nil
}
