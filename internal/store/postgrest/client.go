// Package postgrest implements store.Store against a hosted PostgREST endpoint such as
// Supabase's /rest/v1 API.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/plattr/internal/store"
)

const uniqueViolation = "23505"

// Config holds connection settings for the REST data service.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RetryFor bounds how long idempotent reads are retried.
	RetryFor time.Duration
}

// APIError is a non-2xx response from the data service.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("postgrest: status %d", e.Status)
	}
	return fmt.Sprintf("postgrest: status %d: %s", e.Status, e.Message)
}

// Client talks to the data service through a circuit breaker.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	cb       *gobreaker.CircuitBreaker
	retryFor time.Duration
	log      *zap.SugaredLogger
}

// New builds a Client. The breaker opens after five consecutive transport or 5xx failures.
func New(cfg Config, log *zap.SugaredLogger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	retryFor := cfg.RetryFor
	if retryFor <= 0 {
		retryFor = 5 * time.Second
	}

	st := gobreaker.Settings{
		Name:        "postgrest",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			return err == nil || (errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Infow("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/") + "/rest/v1/",
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
		cb:       gobreaker.NewCircuitBreaker(st),
		retryFor: retryFor,
		log:      log,
	}
}

func (c *Client) Select(ctx context.Context, table string, q store.Query, dest any) error {
	params, err := filterParams(q.Filter)
	if err != nil {
		return err
	}
	if q.Order != "" {
		if _, _, err := store.ParseOrder(q.Order); err != nil {
			return err
		}
		params.Set("order", q.Order)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}

	var body []byte
	op := func() error {
		b, err := c.do(ctx, http.MethodGet, table, params, nil)
		if err != nil {
			var apiErr *APIError
			if (errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError) ||
				errors.Is(err, gobreaker.ErrOpenState) {
				return backoff.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.retryFor
	notify := func(err error, wait time.Duration) {
		c.log.Warnw("select failed, retrying", "table", table, "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return err
	}

	return json.Unmarshal(body, dest)
}

func (c *Client) Insert(ctx context.Context, table string, row any) error {
	body, err := c.do(ctx, http.MethodPost, table, url.Values{}, row)
	if err != nil {
		return err
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return fmt.Errorf("postgrest: decode insert: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	return json.Unmarshal(rows[0], row)
}

func (c *Client) Update(ctx context.Context, table string, filter store.Filter, values map[string]any) (int64, error) {
	params, err := filterParams(filter)
	if err != nil {
		return 0, err
	}
	body, err := c.do(ctx, http.MethodPatch, table, params, values)
	if err != nil {
		return 0, err
	}
	return countRows(body)
}

func (c *Client) Delete(ctx context.Context, table string, filter store.Filter) (int64, error) {
	params, err := filterParams(filter)
	if err != nil {
		return 0, err
	}
	body, err := c.do(ctx, http.MethodDelete, table, params, nil)
	if err != nil {
		return 0, err
	}
	return countRows(body)
}

func (c *Client) do(ctx context.Context, method, table string, params url.Values, payload any) ([]byte, error) {
	if !store.ValidField(table) {
		return nil, fmt.Errorf("%w: %s", store.ErrUnknownTable, table)
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("postgrest: encode body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL + table
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	out, err := c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if method != http.MethodGet {
			req.Header.Set("Prefer", "return=representation")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{Status: resp.StatusCode}
			_ = json.Unmarshal(body, apiErr)
			return nil, apiErr
		}
		return body, nil
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusConflict || apiErr.Code == uniqueViolation) {
			return nil, fmt.Errorf("%w: %s: %v", store.ErrConflict, table, apiErr)
		}
		return nil, err
	}
	return out.([]byte), nil
}

func filterParams(filter store.Filter) (url.Values, error) {
	params := url.Values{}
	for field, value := range filter {
		if !store.ValidField(field) {
			return nil, fmt.Errorf("%w: field %q", store.ErrInvalidQuery, field)
		}
		params.Set(field, "eq."+formatValue(value))
	}
	return params, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func countRows(body []byte) (int64, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return 0, nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, fmt.Errorf("postgrest: decode rows: %w", err)
	}
	return int64(len(rows)), nil
}
