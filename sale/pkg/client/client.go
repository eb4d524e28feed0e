package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/stagesale/sale/pkg/saleerr"
	"github.com/malbeclabs/stagesale/sale/pkg/server"
	"github.com/malbeclabs/stagesale/utils/pkg/retry"
)

type Config struct {
	Logger  *slog.Logger
	BaseURL string
	// Caller is sent in the caller header of every request.
	Caller     solana.PublicKey
	HTTPClient *http.Client
	Retry      retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.BaseURL == "" {
		return errors.New("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   5,
			},
			Timeout: time.Minute,
		}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Client talks to the saled HTTP API. Reads are retried on any transient
// failure. Writes are retried only when the server is known not to have run
// them.
type Client struct {
	log     *slog.Logger
	cfg     Config
	baseURL string
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		log:     cfg.Logger,
		cfg:     cfg,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}, nil
}

// As returns a copy of the client that calls as who.
func (c *Client) As(who solana.PublicKey) *Client {
	cp := *c
	cp.cfg.Caller = who
	return &cp
}

// APIError is a non-2xx response. It unwraps to the saleerr kind marker the
// server reported, so errors.Is(err, saleerr.State) works across the wire.
type APIError struct {
	Status     int
	Kind       saleerr.Kind
	Code       string
	Op         string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%d %s: %s: %s", e.Status, e.Code, e.Op, e.Message)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) StatusCode() int {
	return e.Status
}

func (e *APIError) Unwrap() error {
	if e.Kind == saleerr.KindUnknown {
		return nil
	}
	return &saleerr.Error{Kind: e.Kind}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return retry.Do(ctx, c.cfg.Retry, func() error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	})
}

// send issues a state-changing request.
func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	cfg := c.cfg.Retry
	cfg.Retryable = notExecuted
	return retry.Do(ctx, cfg, func() error {
		return c.do(ctx, method, path, body, out)
	})
}

// notExecuted reports errors for which the server never ran the operation.
func notExecuted(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !c.cfg.Caller.IsZero() {
		req.Header.Set(server.CallerHeader, c.cfg.Caller.String())
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	apiErr := &APIError{Status: resp.StatusCode}

	var body server.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Code = body.Error
		apiErr.Op = body.Op
		apiErr.Message = body.Message
		apiErr.Kind = saleerr.ParseKind(body.Error)
		if body.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(body.RetryAfter) * time.Second
		}
	} else {
		apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.RetryAfter == 0 {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return apiErr
}
