// Package razorpay is a minimal REST client for the Razorpay orders,
// payments and subscriptions APIs.
package razorpay

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

	"github.com/PaulFidika/entitlekit/payments"
	"github.com/hashicorp/go-retryablehttp"
)

const DefaultBaseURL = "https://api.razorpay.com/v1"

const maxResponseBytes = 1 << 20

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("razorpay: %d %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("razorpay: unexpected status %d", e.StatusCode)
}

// Client talks to the provider with key-id/secret basic auth. GETs are retried
// on transient failures; creates are sent once.
type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *retryablehttp.Client
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			c.baseURL = u
		}
	}
}

// WithRetry sets the retry budget for status lookups.
func WithRetry(max int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.http.RetryMax = max
		c.http.RetryWaitMin = waitMin
		c.http.RetryWaitMax = waitMax
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http.HTTPClient = hc
		}
	}
}

func New(keyID, keySecret string, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	c := &Client{baseURL: DefaultBaseURL, keyID: keyID, keySecret: keySecret, http: rc}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ payments.Provider = (*Client)(nil)

func (c *Client) FetchSubscription(ctx context.Context, id string) (payments.Subscription, error) {
	var out payments.Subscription
	err := c.get(ctx, "/subscriptions/"+url.PathEscape(id), &out)
	return out, err
}

func (c *Client) FetchPayment(ctx context.Context, id string) (payments.Payment, error) {
	var out payments.Payment
	err := c.get(ctx, "/payments/"+url.PathEscape(id), &out)
	return out, err
}

func (c *Client) FetchOrder(ctx context.Context, id string) (payments.Order, error) {
	var out payments.Order
	err := c.get(ctx, "/orders/"+url.PathEscape(id), &out)
	return out, err
}

func (c *Client) FetchOrderPayments(ctx context.Context, orderID string) ([]payments.Payment, error) {
	var out struct {
		Count int                `json:"count"`
		Items []payments.Payment `json:"items"`
	}
	if err := c.get(ctx, "/orders/"+url.PathEscape(orderID)+"/payments", &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) CreateOrder(ctx context.Context, p payments.OrderParams) (payments.Order, error) {
	body := map[string]any{
		"amount":   p.Amount,
		"currency": p.Currency,
		"receipt":  p.Receipt,
		"notes":    p.Notes,
	}
	var out payments.Order
	err := c.create(ctx, "/orders", body, &out)
	return out, err
}

func (c *Client) CreateSubscription(ctx context.Context, p payments.SubscriptionParams) (payments.Subscription, error) {
	notify := 0
	if p.CustomerNotify {
		notify = 1
	}
	body := map[string]any{
		"plan_id":         p.PlanID,
		"total_count":     p.TotalCount,
		"customer_notify": notify,
		"notes":           p.Notes,
	}
	var out payments.Subscription
	err := c.create(ctx, "/subscriptions", body, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("razorpay: GET %s: %w", path, err)
	}
	return decodeResponse(resp, out)
}

func (c *Client) create(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("razorpay: POST %s: %w", path, err)
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("razorpay: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var env struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Description = env.Error.Description
		}
		return apiErr
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("razorpay: decode response: %w", err)
	}
	return nil
}
