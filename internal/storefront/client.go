package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/pos-checkout/internal/cart"
	"github.com/noah-isme/pos-checkout/internal/catalog"
	"github.com/noah-isme/pos-checkout/internal/obs"
	"github.com/noah-isme/pos-checkout/internal/pricing"
	"github.com/noah-isme/pos-checkout/internal/resilience"
)

const (
	productsPath = "/api/products"
	ordersPath   = "/api/orders"
	previewPath  = "/api/orders/preview"

	userAgent      = "pos-checkout/1.0"
	maxBodyBytes   = 4 << 20
	tracerName     = "storefront.Client"
	idempotencyKey = "Idempotency-Key"
)

// Operation names used for logs, metrics and breaker targets.
const (
	opFetchProducts = "fetch_products"
	opSubmitOrder   = "submit_order"
	opPreviewOrder  = "preview_order"
	opPing          = "ping"
)

// ErrPreviewUnsupported is returned when the storefront has no preview endpoint.
var ErrPreviewUnsupported = errors.New("storefront: order preview unsupported")

// Error is a failed storefront call. Message carries the upstream message when
// the response had one, otherwise "<METHOD> <path> 실패 (<status>)", or
// "주문 요청 실패 (<status>)" for order submission.
type Error struct {
	Method  string
	Path    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// OrderRequest is the finalized order sent to the storefront.
type OrderRequest struct {
	Items                  []cart.OrderLine `json:"items"`
	ApplyMembership        bool             `json:"applyMembership"`
	AcceptAddMore          map[string]bool  `json:"acceptAddMore,omitempty"`
	AcceptNonPromoPurchase *bool            `json:"acceptNonPromoPurchase,omitempty"`
}

// OrderResult is the storefront's answer to a submission. Summary is nil when
// the storefront only acknowledged the order.
type OrderResult struct {
	Summary *pricing.Summary
	OrderID string
}

// Config groups Client dependencies.
// Breakers, when set, replaces HTTP.Breaker with one breaker per operation.
type Config struct {
	BaseURL  string
	HTTP     resilience.HTTPClient
	Breakers *resilience.BreakerSet
	Logger   *zerolog.Logger
}

// Client talks to the storefront catalog and order endpoints.
type Client struct {
	baseURL  string
	http     resilience.HTTPClient
	breakers *resilience.BreakerSet
	logger   zerolog.Logger
}

// New constructs a storefront client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("storefront: base url is required")
	}
	if cfg.HTTP.Client == nil {
		return nil, errors.New("storefront: http client is required")
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Client{baseURL: base, http: cfg.HTTP, breakers: cfg.Breakers, logger: logger}, nil
}

// FetchProducts loads and normalizes the product list.
func (c *Client) FetchProducts(ctx context.Context) ([]catalog.Product, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Client.FetchProducts")
	defer span.End()

	body, err := c.call(ctx, opFetchProducts, c.http, http.MethodGet, productsPath, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	products, skipped, err := catalog.NormalizeReport(body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decode products: %w", err)
	}
	for _, sk := range skipped {
		c.logger.Warn().Err(sk.Err).Int("index", sk.Index).Msg("skipping undecodable product")
	}
	span.SetAttributes(attribute.Int("catalog.products", len(products)), attribute.Int("catalog.skipped", len(skipped)))
	return products, nil
}

// Ping checks that the catalog endpoint answers, with a single attempt.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, opPing, c.singleAttempt(), http.MethodGet, productsPath, nil, nil)
	return err
}

// SubmitOrder posts the finalized order once. An empty key is replaced by a
// generated one so retries by the caller can reuse the returned key.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest, key string) (OrderResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Client.SubmitOrder")
	defer span.End()

	if strings.TrimSpace(key) == "" {
		key = uuid.NewString()
	}
	span.SetAttributes(attribute.Int("order.lines", len(req.Items)), attribute.String("order.idempotency_key", key))
	headers := http.Header{}
	headers.Set(idempotencyKey, key)

	body, err := c.call(ctx, opSubmitOrder, c.singleAttempt(), http.MethodPost, ordersPath, req, headers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return OrderResult{}, err
	}
	summary, orderID := decodeOrderResponse(body)
	return OrderResult{Summary: summary, OrderID: orderID}, nil
}

// PreviewOrder asks the storefront to price req without side effects.
// ErrPreviewUnsupported is returned for a 404 or a response without a summary.
func (c *Client) PreviewOrder(ctx context.Context, req OrderRequest) (pricing.Summary, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Client.PreviewOrder")
	defer span.End()

	body, err := c.call(ctx, opPreviewOrder, c.singleAttempt(), http.MethodPost, previewPath, req, nil)
	if err != nil {
		var sfErr *Error
		if errors.As(err, &sfErr) && (sfErr.Status == http.StatusNotFound || sfErr.Status == http.StatusMethodNotAllowed) {
			return pricing.Summary{}, ErrPreviewUnsupported
		}
		span.RecordError(err)
		return pricing.Summary{}, err
	}
	summary, _ := decodeOrderResponse(body)
	if summary == nil {
		return pricing.Summary{}, ErrPreviewUnsupported
	}
	return *summary, nil
}

func (c *Client) singleAttempt() resilience.HTTPClient {
	cl := c.http
	cl.MaxAttempts = 1
	return cl
}

func (c *Client) call(ctx context.Context, op string, cl resilience.HTTPClient, method, path string, payload any, headers http.Header) ([]byte, error) {
	if c.breakers != nil {
		cl.Breaker = c.breakers.For(op)
	}
	start := time.Now()
	body, err := c.roundTrip(ctx, op, cl, method, path, payload, headers)
	result := "ok"
	if err != nil {
		result = "error"
		evt := c.logger.Warn().Err(err).Str("operation", op).Str("method", method).Str("path", path)
		var sfErr *Error
		if errors.As(err, &sfErr) {
			evt = evt.Int("status", sfErr.Status)
		}
		evt.Msg("storefront call failed")
	}
	if obs.UpstreamLatency != nil {
		obs.UpstreamLatency.WithLabelValues(op, result).Observe(obs.DurationMillis(time.Since(start)))
	}
	return body, err
}

func (c *Client) roundTrip(ctx context.Context, op string, cl resilience.HTTPClient, method, path string, payload any, headers http.Header) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := cl.Do(ctx, req)
	if err != nil {
		return nil, &Error{Method: method, Path: path, Message: failureText(op, method, path), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Method: method, Path: path, Status: resp.StatusCode, Message: fallbackMessage(op, method, path, resp.StatusCode), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := upstreamMessage(body)
		if msg == "" {
			msg = fallbackMessage(op, method, path, resp.StatusCode)
		}
		return nil, &Error{Method: method, Path: path, Status: resp.StatusCode, Message: msg}
	}
	return body, nil
}

func failureText(op, method, path string) string {
	if op == opSubmitOrder {
		return "주문 요청 실패"
	}
	return fmt.Sprintf("%s %s 실패", method, path)
}

func fallbackMessage(op, method, path string, status int) string {
	return fmt.Sprintf("%s (%d)", failureText(op, method, path), status)
}

func upstreamMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if len(bytes.TrimSpace(body)) == 0 || json.Unmarshal(body, &payload) != nil {
		return ""
	}
	if msg := strings.TrimSpace(payload.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(payload.Error.Message)
}

type wireSummary struct {
	OrderID                  json.RawMessage `json:"orderId"`
	TotalQuantity            *int            `json:"totalQuantity"`
	OriginalTotalAmount      *int64          `json:"originalTotalAmount"`
	PromotionDiscountAmount  *int64          `json:"promotionDiscountAmount"`
	MembershipDiscountAmount *int64          `json:"membershipDiscountAmount"`
	FinalTotalAmount         *int64          `json:"finalTotalAmount"`
}

// decodeOrderResponse extracts an authoritative summary from {"result": {...}}
// or a bare object. A body without finalTotalAmount is an acknowledgment.
func decodeOrderResponse(body []byte) (*pricing.Summary, string) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ""
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, ""
	}
	raw := body
	if len(envelope.Result) > 0 && !bytes.Equal(bytes.TrimSpace(envelope.Result), []byte("null")) {
		raw = envelope.Result
	}
	var ws wireSummary
	if err := json.Unmarshal(raw, &ws); err != nil {
		return nil, ""
	}
	orderID := strings.Trim(string(bytes.TrimSpace(ws.OrderID)), `"`)
	if orderID == "null" {
		orderID = ""
	}
	if ws.FinalTotalAmount == nil {
		return nil, orderID
	}
	s := pricing.Summary{FinalTotalAmount: *ws.FinalTotalAmount}
	if ws.TotalQuantity != nil {
		s.TotalQuantity = *ws.TotalQuantity
	}
	if ws.OriginalTotalAmount != nil {
		s.OriginalTotalAmount = *ws.OriginalTotalAmount
	}
	if ws.PromotionDiscountAmount != nil {
		s.PromotionDiscountAmount = *ws.PromotionDiscountAmount
	}
	if ws.MembershipDiscountAmount != nil {
		s.MembershipDiscountAmount = *ws.MembershipDiscountAmount
	}
	return &s, orderID
}
