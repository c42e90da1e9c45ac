package sessionapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgellow/stylefront/internal/ioutil"
	"github.com/dgellow/stylefront/internal/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds every backend call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

const (
	verifyPath = "/api/auth/verify"
	loginPath  = "/api/auth/login"
	logoutPath = "/api/auth/logout"

	tracerName   = "github.com/dgellow/stylefront/internal/sessionapi"
	maxBodyBytes = 64 << 10
)

// Outcomes reported to spans and the CallObserver.
const (
	OutcomeValid       = "valid"
	OutcomeInvalid     = "invalid"
	OutcomeSuccess     = "success"
	OutcomeNetwork     = "network"
	OutcomeServer      = "server"
	OutcomeMalformed   = "malformed"
	OutcomeLoggedOut   = "logged_out"
	OutcomeLogoutError = "logout_error"
)

// CallObserver receives one notification per finished backend call.
type CallObserver interface {
	ObserveCall(op, outcome string, elapsed time.Duration)
}

// Client talks to the backend session endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	tracer     trace.Tracer
	observer   CallObserver
}

var _ SessionClient = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Its Jar is replaced by
// WithJar; its Timeout is left alone.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTracerProvider uses tp instead of the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracer = tp.Tracer(tracerName)
	}
}

// WithCallObserver registers an observer for call outcomes and latency.
func WithCallObserver(o CallObserver) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing API base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("API base URL must be http or https, got %q", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("API base URL has no host: %q", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithJar returns a client that sends and stores cookies through jar. The
// copy shares the transport, timeout, tracer and observer with c.
func (c *Client) WithJar(jar http.CookieJar) *Client {
	hc := *c.httpClient
	hc.Jar = jar
	bound := *c
	bound.httpClient = &hc
	return &bound
}

// VerifySession asks the backend whether the current credentials identify a
// user. Every failure collapses to an invalid result.
func (c *Client) VerifySession(ctx context.Context) VerifyResult {
	ctx, span := c.tracer.Start(ctx, "sessionapi.verify", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	result, outcome := c.verify(ctx)
	c.finish(span, "verify", outcome, start)
	return result
}

func (c *Client) verify(ctx context.Context) (VerifyResult, string) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, verifyPath, nil)
	if err != nil {
		log.LogDebugWithFields("sessionapi", "Verify request failed", map[string]any{
			"error": err.Error(),
		})
		return VerifyResult{}, OutcomeNetwork
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadLimited(resp.Body, maxBodyBytes)
	if err != nil {
		return VerifyResult{}, OutcomeNetwork
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return VerifyResult{}, OutcomeInvalid
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		log.LogWarnWithFields("sessionapi", "Verify returned unexpected status", map[string]any{
			"status": resp.StatusCode,
		})
		return VerifyResult{}, OutcomeServer
	}

	var payload struct {
		Valid bool  `json:"valid"`
		User  *User `json:"user"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		log.LogWarnWithFields("sessionapi", "Verify body is not valid JSON", map[string]any{
			"error": err.Error(),
		})
		return VerifyResult{}, OutcomeMalformed
	}
	if !payload.Valid || !payload.User.identified() {
		return VerifyResult{}, OutcomeInvalid
	}
	return VerifyResult{Valid: true, User: payload.User}, OutcomeValid
}

// ExchangeSession trades a one-time session token for a backend session.
// On success the backend sets its session cookie in the client's jar.
func (c *Client) ExchangeSession(ctx context.Context, token string) ExchangeResult {
	ctx, span := c.tracer.Start(ctx, "sessionapi.exchange", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	result := c.exchange(ctx, token)
	outcome := OutcomeSuccess
	if !result.Success {
		outcome = string(result.Reason)
		span.SetAttributes(attribute.String("sessionapi.reason", string(result.Reason)))
	}
	c.finish(span, "exchange", outcome, start)
	return result
}

func (c *Client) exchange(ctx context.Context, token string) ExchangeResult {
	if strings.TrimSpace(token) == "" {
		return failure(ReasonInvalidToken, "session token is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody, err := json.Marshal(map[string]string{"session_id": token})
	if err != nil {
		return failure(ReasonServer, "")
	}

	resp, err := c.do(ctx, http.MethodPost, loginPath, reqBody)
	if err != nil {
		log.LogInfoWithFields("sessionapi", "Session exchange request failed", map[string]any{
			"error": err.Error(),
		})
		return failure(ReasonNetwork, "")
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadLimited(resp.Body, maxBodyBytes)
	if err != nil {
		return failure(ReasonNetwork, "")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := reasonForStatus(resp.StatusCode)
		log.LogInfoWithFields("sessionapi", "Session exchange rejected", map[string]any{
			"status": resp.StatusCode,
			"reason": string(reason),
		})
		return failure(reason, errorMessage(body))
	}

	user, err := decodeExchangeUser(body)
	if err != nil {
		log.LogWarnWithFields("sessionapi", "Session exchange body unusable", map[string]any{
			"error": err.Error(),
		})
		return failure(ReasonServer, "")
	}
	return ExchangeResult{Success: true, User: user}
}

// Logout asks the backend to end the session. The error is informational.
func (c *Client) Logout(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "sessionapi.logout", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	err := c.logout(ctx)
	outcome := OutcomeLoggedOut
	if err != nil {
		outcome = OutcomeLogoutError
		span.RecordError(err)
	}
	c.finish(span, "logout", outcome, start)
	return err
}

func (c *Client) logout(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, logoutPath, nil)
	if err != nil {
		return fmt.Errorf("logout request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("logout returned status %d: %s", resp.StatusCode, ioutil.Describe(resp.Body, 512))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

func (c *Client) finish(span trace.Span, op, outcome string, start time.Time) {
	elapsed := time.Since(start)
	span.SetAttributes(attribute.String("sessionapi.outcome", outcome))
	switch outcome {
	case OutcomeNetwork, OutcomeServer, OutcomeMalformed, OutcomeLogoutError:
		span.SetStatus(codes.Error, outcome)
	default:
		span.SetStatus(codes.Ok, "")
	}
	if c.observer != nil {
		c.observer.ObserveCall(op, outcome, elapsed)
	}
	log.LogTraceWithFields("sessionapi", "Call finished", map[string]any{
		"op":       op,
		"outcome":  outcome,
		"duration": elapsed.String(),
	})
}

func failure(reason FailureReason, message string) ExchangeResult {
	return ExchangeResult{Reason: reason, Message: message}
}

// reasonForStatus maps a non-2xx exchange status to a failure reason.
func reasonForStatus(status int) FailureReason {
	switch status {
	case http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusGone,
		http.StatusUnprocessableEntity:
		return ReasonInvalidToken
	default:
		return ReasonServer
	}
}

var errNoUser = errors.New("response carries no user")

// decodeExchangeUser accepts {"user": {...}} and, for older backends, the
// user object at the top level.
func decodeExchangeUser(body []byte) (*User, error) {
	var wrapped struct {
		User *User `json:"user"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decoding exchange response: %w", err)
	}
	if wrapped.User.identified() {
		return wrapped.User, nil
	}

	var flat User
	if err := json.Unmarshal(body, &flat); err == nil && flat.identified() {
		return &flat, nil
	}
	return nil, errNoUser
}

// errorMessage extracts a human readable message from an error body.
func errorMessage(body []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "message", "error"} {
		if s, ok := fields[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func (u *User) identified() bool {
	return u != nil && u.ID != ""
}
