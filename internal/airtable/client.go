// Package airtable implements the account record store client. It fetches
// pending account credentials from a configured view and writes back a
// single-field status update per account.
package airtable

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/AINomadD3v/ImapActivatorAgent/internal/activation"
	"github.com/AINomadD3v/ImapActivatorAgent/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultBaseURL = "https://api.airtable.com/v0"

// Field names in the accounts table.
const (
	fieldEmail    = "Email"
	fieldPassword = "Email Password"
)

// Status field values understood by the record store.
const (
	statusValuePending = "Off"
	statusValueEnabled = "On"
	statusValueError   = "Error"
)

// Client talks to the Airtable REST API. All calls go through a shared rate
// limiter so concurrent workers stay under the service's request cap.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        config.AirtableConfig
	baseURL    string
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at a different API root. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// NewClient validates the configuration and returns a ready client.
func NewClient(cfg config.AirtableConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing Airtable API key (set IMAPAGENT_AIRTABLE_API_KEY)")
	}
	if cfg.BaseID == "" || cfg.TableID == "" {
		return nil, fmt.Errorf("airtable base_id and table_id are required")
	}

	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		cfg:        cfg,
		baseURL:    defaultBaseURL,
		logger:     logger.Named("airtable"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type recordEnvelope struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

type listResponse struct {
	Records []recordEnvelope `json:"records"`
}

type updateRequest struct {
	Fields   map[string]string `json:"fields"`
	Typecast bool              `json:"typecast"`
}

// FetchPending retrieves up to maxRecords accounts whose status field is
// still "Off". Returns an empty slice, not an error, when none match.
// Records missing either credential are skipped with a warning.
func (c *Client) FetchPending(ctx context.Context, maxRecords int) ([]activation.AccountRecord, error) {
	c.logger.Info("Fetching pending accounts.",
		zap.Int("max_records", maxRecords),
		zap.String("view", c.cfg.View),
	)

	q := url.Values{}
	q.Set("view", c.cfg.View)
	q.Set("maxRecords", strconv.Itoa(maxRecords))
	q.Set("filterByFormula", fmt.Sprintf("({%s} = '%s')", c.cfg.StatusField, statusValuePending))
	q.Add("fields[]", fieldEmail)
	q.Add("fields[]", fieldPassword)

	endpoint := fmt.Sprintf("%s/%s/%s?%s", c.baseURL, c.cfg.BaseID, c.cfg.TableID, q.Encode())

	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending accounts: %w", err)
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode account list: %w", err)
	}

	accounts := make([]activation.AccountRecord, 0, len(resp.Records))
	for _, rec := range resp.Records {
		email := rec.Fields[fieldEmail]
		password := rec.Fields[fieldPassword]
		if email == "" || password == "" {
			c.logger.Warn("Skipping record with missing credentials.", zap.String("record_id", rec.ID))
			continue
		}
		accounts = append(accounts, activation.AccountRecord{
			Handle:   rec.ID,
			Email:    email,
			Password: password,
		})
	}

	c.logger.Info("Fetched account credentials.", zap.Int("count", len(accounts)))
	return accounts, nil
}

// Report updates the status field for one record: "On" when the protocols
// were enabled, "Error" otherwise. Called at most once per account per run.
func (c *Client) Report(ctx context.Context, handle string, status activation.Status) error {
	value := statusValueError
	if status == activation.StatusEnabled {
		value = statusValueEnabled
	}

	payload, err := json.Marshal(updateRequest{
		Fields:   map[string]string{c.cfg.StatusField: value},
		Typecast: true,
	})
	if err != nil {
		return fmt.Errorf("failed to encode status update: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/%s", c.baseURL, c.cfg.BaseID, c.cfg.TableID, url.PathEscape(handle))

	if _, err := c.do(ctx, http.MethodPatch, endpoint, payload); err != nil {
		return fmt.Errorf("failed to update record %s: %w", handle, err)
	}

	c.logger.Info("Updated record status.", zap.String("record_id", handle), zap.String("status", value))
	return nil
}

// do executes one rate-limited API request and returns the response body.
func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait canceled: %w", err)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("airtable API returned status %d: %s", resp.StatusCode, truncate(string(data), 256))
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
