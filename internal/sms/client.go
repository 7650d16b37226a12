// Package sms is a small Twilio REST client covering the Verify v2 API
// (send and check one-time codes) and Programmable Messaging (plain SMS for
// campaigns).
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/immo-leads/internal/pkg/httpretry"
)

const (
	defaultAPIBase    = "https://api.twilio.com/2010-04-01"
	defaultVerifyBase = "https://verify.twilio.com/v2"
)

// Verification statuses returned by Twilio Verify.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusCanceled = "canceled"
)

// Config holds Twilio credentials.
type Config struct {
	AccountSID       string
	AuthToken        string
	VerifyServiceSID string
	FromNumber       string
	Timeout          time.Duration
}

// Client calls the Twilio REST APIs.
type Client struct {
	cfg        Config
	http       httpretry.HTTPDoer
	apiBase    string
	verifyBase string
}

// NewClient creates a Twilio client with retries on 429/5xx.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		http:       httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 2),
		apiBase:    defaultAPIBase,
		verifyBase: defaultVerifyBase,
	}
}

// WithBaseURLs points the client at another host (tests, proxies).
func (c *Client) WithBaseURLs(apiBase, verifyBase string) *Client {
	c.apiBase = strings.TrimRight(apiBase, "/")
	c.verifyBase = strings.TrimRight(verifyBase, "/")
	return c
}

// WithHTTPClient replaces the transport.
func (c *Client) WithHTTPClient(doer httpretry.HTTPDoer) *Client {
	c.http = doer
	return c
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.AccountSID != "" && c.cfg.AuthToken != ""
}

// Verification is the subset of the Verify resource we use.
type Verification struct {
	SID     string `json:"sid"`
	To      string `json:"to"`
	Channel string `json:"channel"`
	Status  string `json:"status"`
	Valid   bool   `json:"valid"`
}

// Message is the subset of the Messages resource we use.
type Message struct {
	SID    string `json:"sid"`
	To     string `json:"to"`
	Status string `json:"status"`
}

// APIError is the error body Twilio returns on 4xx/5xx.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	MoreInfo   string `json:"more_info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio: %d %s (code %d)", e.HTTPStatus, e.Message, e.Code)
}

// NotFound reports a 404, which Verify returns for expired or already
// approved verifications.
func (e *APIError) NotFound() bool { return e.HTTPStatus == http.StatusNotFound }

// StartVerification sends a code to the number through the given channel
// ("sms" or "call").
func (c *Client) StartVerification(ctx context.Context, to, channel string) (*Verification, error) {
	if channel == "" {
		channel = "sms"
	}
	form := url.Values{"To": {to}, "Channel": {channel}, "Locale": {"fr"}}
	endpoint := fmt.Sprintf("%s/Services/%s/Verifications", c.verifyBase, c.cfg.VerifyServiceSID)

	var v Verification
	if err := c.post(ctx, endpoint, form, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// CheckVerification checks a code. The returned verification has Status
// "approved" on success.
func (c *Client) CheckVerification(ctx context.Context, to, code string) (*Verification, error) {
	form := url.Values{"To": {to}, "Code": {code}}
	endpoint := fmt.Sprintf("%s/Services/%s/VerificationCheck", c.verifyBase, c.cfg.VerifyServiceSID)

	var v Verification
	if err := c.post(ctx, endpoint, form, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SendSMS sends a plain text message from the configured number.
func (c *Client) SendSMS(ctx context.Context, to, body string) (*Message, error) {
	form := url.Values{"To": {to}, "From": {c.cfg.FromNumber}, "Body": {body}}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.apiBase, c.cfg.AccountSID)

	var m Message
	if err := c.post(ctx, endpoint, form, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("twilio: build request: %w", err)
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("twilio: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("twilio: read body: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("twilio: decode response: %w", err)
	}
	return nil
}
