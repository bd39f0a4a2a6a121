package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/erp/marketplace/internal/domain/integration"
	"github.com/erp/marketplace/internal/infrastructure/config"
	"github.com/erp/marketplace/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// maxResponseSize is the maximum allowed response size from a channel API (10MB)
const maxResponseSize = 10 * 1024 * 1024

const (
	defaultRequestTimeout = 30 * time.Second
	defaultRequestsPerSec = 5
)

// Endpoint is the resolved API configuration of one channel
type Endpoint struct {
	BaseURL        string
	AuthURL        string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	RedirectURL    string
	Scopes         []string
	AccountField   string
	EventField     string
	RequestsPerSec float64
	RequestTimeout time.Duration
}

// NewEndpoint merges configured settings over the definition's conventions
func NewEndpoint(def Definition, cfg config.ChannelEndpointConfig) Endpoint {
	ep := Endpoint{
		BaseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		AuthURL:        cfg.AuthURL,
		TokenURL:       cfg.TokenURL,
		ClientID:       cfg.ClientID,
		ClientSecret:   cfg.ClientSecret,
		RedirectURL:    cfg.RedirectURL,
		Scopes:         cfg.Scopes,
		AccountField:   def.AccountField,
		EventField:     def.EventField,
		RequestsPerSec: cfg.RequestsPerSec,
		RequestTimeout: cfg.RequestTimeout,
	}
	if cfg.AccountField != "" {
		ep.AccountField = cfg.AccountField
	}
	if cfg.EventField != "" {
		ep.EventField = cfg.EventField
	}
	if ep.AccountField == "" {
		ep.AccountField = "account_id"
	}
	if ep.EventField == "" {
		ep.EventField = "event_type"
	}
	if ep.RequestsPerSec <= 0 {
		ep.RequestsPerSec = defaultRequestsPerSec
	}
	if ep.RequestTimeout <= 0 {
		ep.RequestTimeout = defaultRequestTimeout
	}
	return ep
}

// ---------------------------------------------------------------------------
// Wire types of the channel gateway API
// ---------------------------------------------------------------------------

type accountResponse struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
}

type syncRequest struct {
	AccountID string     `json:"account_id,omitempty"`
	Direction string     `json:"direction"`
	Since     *time.Time `json:"since,omitempty"`
}

type syncResponse struct {
	EventType        string `json:"event_type"`
	RecordsProcessed int    `json:"records_processed"`
}

// ---------------------------------------------------------------------------
// httpConnector: behavior shared by both auth schemes
// ---------------------------------------------------------------------------

type httpConnector struct {
	slug     string
	endpoint Endpoint
	client   *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

func newHTTPConnector(slug string, endpoint Endpoint, logger *zap.Logger) *httpConnector {
	burst := int(endpoint.RequestsPerSec)
	if burst < 1 {
		burst = 1
	}
	return &httpConnector{
		slug:     slug,
		endpoint: endpoint,
		client:   &http.Client{Timeout: endpoint.RequestTimeout},
		limiter:  rate.NewLimiter(rate.Limit(endpoint.RequestsPerSec), burst),
		logger:   logger.Named("channel").With(zap.String("channel", slug)),
	}
}

// Slug implements integration.ChannelConnector
func (c *httpConnector) Slug() string {
	return c.slug
}

// ParseWebhook extracts the account and event type from a JSON payload
func (c *httpConnector) ParseWebhook(payload []byte) (*integration.WebhookEnvelope, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	var body map[string]any
	if err := decoder.Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrChannelInvalidResponse, err)
	}
	account := stringify(body[c.endpoint.AccountField])
	if account == "" {
		return nil, fmt.Errorf("%w: missing %s", integration.ErrChannelInvalidResponse, c.endpoint.AccountField)
	}
	return &integration.WebhookEnvelope{
		ExternalAccountID: account,
		EventType:         stringify(body[c.endpoint.EventField]),
	}, nil
}

// VerifySignature checks a hex HMAC-SHA256 of the payload, with or without a "sha256=" prefix
func (c *httpConnector) VerifySignature(payload []byte, signature, secret string) bool {
	return VerifyHMACSHA256(payload, signature, secret)
}

// VerifyHMACSHA256 compares signature against HMAC-SHA256(secret, payload) in constant time
func VerifyHMACSHA256(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	given, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(given, mac.Sum(nil))
}

// SignHMACSHA256 returns the hex signature a channel would send for payload
func SignHMACSHA256(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// sync runs one pass through the gateway's sync endpoint
func (c *httpConnector) sync(ctx context.Context, client *http.Client, header http.Header, req integration.SyncRequest) (*integration.SyncResult, error) {
	body := syncRequest{
		AccountID: req.Integration.ExternalAccountID,
		Direction: req.Direction.String(),
		Since:     req.Integration.LastSync,
	}
	var resp syncResponse
	if err := c.do(ctx, client, http.MethodPost, "/sync/"+req.Direction.String(), header, body, &resp); err != nil {
		return nil, err
	}
	if resp.RecordsProcessed < 0 {
		return nil, fmt.Errorf("%w: negative record count", integration.ErrChannelInvalidResponse)
	}
	return &integration.SyncResult{
		EventType:        resp.EventType,
		RecordsProcessed: resp.RecordsProcessed,
	}, nil
}

// account asks the gateway which account the credentials belong to
func (c *httpConnector) account(ctx context.Context, client *http.Client, header http.Header) (*integration.AccountInfo, error) {
	var resp accountResponse
	if err := c.do(ctx, client, http.MethodGet, "/account", header, nil, &resp); err != nil {
		return nil, err
	}
	return &integration.AccountInfo{ExternalAccountID: resp.AccountID, Name: resp.Name}, nil
}

// do sends one rate-limited request and maps HTTP failures onto the domain taxonomy
func (c *httpConnector) do(ctx context.Context, client *http.Client, method, path string, header http.Header, in, out any) (err error) {
	ctx, span := telemetry.StartClientSpan(ctx, "channel "+method+" "+path,
		telemetry.AttrChannel.String(c.slug),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	if c.endpoint.BaseURL == "" {
		return fmt.Errorf("%w: %s has no base_url configured", integration.ErrChannelRequestFailed, c.slug)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", integration.ErrChannelRateLimited, err)
	}

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", c.slug, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", c.slug, err)
	}
	for key, values := range header {
		req.Header[key] = values
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if isTokenError(err) {
			return fmt.Errorf("%w: %v", integration.ErrChannelAuthFailed, err)
		}
		return fmt.Errorf("%w: %v", integration.ErrChannelRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", integration.ErrChannelRequestFailed, err)
	}
	c.logger.Debug("Channel request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(started)),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", integration.ErrChannelAuthFailed, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d", integration.ErrChannelRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", integration.ErrChannelRequestFailed, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: HTTP %d", integration.ErrChannelInvalidResponse, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", integration.ErrChannelInvalidResponse, err)
	}
	return nil
}

// stringify renders JSON scalars used as identifiers
func stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(value)
	case json.Number:
		return value.String()
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		return ""
	}
}

// isTokenError reports whether err came from a failed OAuth token refresh
func isTokenError(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	return errors.As(err, &retrieveErr)
}
