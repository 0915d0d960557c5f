package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"decoration-mirror/models"
	"decoration-mirror/utils"
)

var (
	// ErrRateLimited is returned once the 429 retry budget is spent
	ErrRateLimited = errors.New("rate limit retry budget exhausted")
	// ErrMissingCredentials is returned when no bot token is configured
	ErrMissingCredentials = errors.New("remote client credentials missing")
)

const (
	defaultMemberPageSize   = 1000
	defaultRateLimitRetries = 3
	defaultRetryAfter       = time.Second
	maxRetryAfter           = time.Hour
	maxMemberPageBytes      = 32 << 20
)

// HTTPError is a non-2xx response from the platform API
type HTTPError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

// RemoteClientOptions configures DiscordClient
type RemoteClientOptions struct {
	APIBase          string
	Token            string
	PageSize         int
	RateLimitRetries int
	UserAgent        string
	HTTPClient       *http.Client
	Sleep            utils.SleepFunc
	Metrics          *Metrics
}

// DiscordClient lists guild members through the platform REST API
// Implements RemoteClientInterface
type DiscordClient struct {
	apiBase          string
	token            string
	pageSize         int
	rateLimitRetries int
	userAgent        string
	httpClient       *http.Client
	sleep            utils.SleepFunc
	metrics          *Metrics
}

// NewDiscordClient creates a new DiscordClient
func NewDiscordClient(opts RemoteClientOptions) *DiscordClient {
	apiBase := strings.TrimRight(strings.TrimSpace(opts.APIBase), "/")
	if apiBase == "" {
		apiBase = "https://discord.com/api/v10"
	}
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > defaultMemberPageSize {
		pageSize = defaultMemberPageSize
	}
	retries := opts.RateLimitRetries
	if retries <= 0 {
		retries = defaultRateLimitRetries
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = utils.SleepContext
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = "DiscordBot (decoration-mirror, 1.0)"
	}
	return &DiscordClient{
		apiBase:          apiBase,
		token:            strings.TrimSpace(opts.Token),
		pageSize:         pageSize,
		rateLimitRetries: retries,
		userAgent:        userAgent,
		httpClient:       httpClient,
		sleep:            sleep,
		metrics:          opts.Metrics,
	}
}

// Ensure DiscordClient implements RemoteClientInterface
var _ RemoteClientInterface = (*DiscordClient)(nil)

// ListMembers fetches one page of guild members.
// HTTP 429 suspends for the advertised retry-after and resubmits the same page;
// any other non-2xx fails immediately because a partial member list would undercount discovery.
func (c *DiscordClient) ListMembers(ctx context.Context, guildID string, after string) ([]models.Member, error) {
	if c.token == "" {
		return nil, ErrMissingCredentials
	}
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return nil, fmt.Errorf("guild id is required")
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.pageSize))
	if after != "" {
		q.Set("after", after)
	}
	endpoint := fmt.Sprintf("%s/guilds/%s/members?%s", c.apiBase, url.PathEscape(guildID), q.Encode())

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build members request: %w", err)
		}
		req.Header.Set("Authorization", "Bot "+c.token)
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to list members: %w", err)
		}
		payload, readErr := io.ReadAll(io.LimitReader(resp.Body, maxMemberPageBytes))
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("failed to read members response: %w", readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			var members []models.Member
			if err := json.Unmarshal(payload, &members); err != nil {
				return nil, fmt.Errorf("failed to decode members page: %w", err)
			}
			return members, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if attempt >= c.rateLimitRetries {
				return nil, fmt.Errorf("%w after %d retries (guild %s, after %q)", ErrRateLimited, attempt, guildID, after)
			}
			delay := retryAfter(resp.Header, payload)
			log.Printf("⏳ Rate limited listing members (guild %s, after %q), waiting %s (retry %d/%d)", guildID, after, delay, attempt+1, c.rateLimitRetries)
			c.metrics.observeRateLimitWait()
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		var errPayload struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payload, &errPayload)
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Code:       errPayload.Code,
			Message:    errPayload.Message,
		}
	}
}

// retryAfter reads the wait from the Retry-After header (seconds, possibly fractional)
// or the JSON body's retry_after field
func retryAfter(header http.Header, body []byte) time.Duration {
	if d, ok := parseSeconds(header.Get("Retry-After")); ok {
		return d
	}
	var payload struct {
		RetryAfter *float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.RetryAfter != nil {
		if d, ok := secondsToDuration(*payload.RetryAfter); ok {
			return d
		}
	}
	if d, ok := parseSeconds(header.Get("X-RateLimit-Reset-After")); ok {
		return d
	}
	return defaultRetryAfter
}

func parseSeconds(raw string) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		return secondsToDuration(seconds)
	}
	if ts, err := http.ParseTime(raw); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return min(delta, maxRetryAfter), true
		}
		return 0, true
	}
	return 0, false
}

// secondsToDuration converts a server-supplied wait, capped at maxRetryAfter
func secondsToDuration(seconds float64) (time.Duration, bool) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, false
	}
	if seconds >= maxRetryAfter.Seconds() {
		return maxRetryAfter, true
	}
	return time.Duration(seconds * float64(time.Second)), true
}
