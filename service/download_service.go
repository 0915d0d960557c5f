package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"decoration-mirror/utils"
)

const (
	defaultDownloadAttempts = 3
	defaultDownloadBackoff  = time.Second
	// MaxDownloadBytes caps a single asset body
	MaxDownloadBytes = 25 << 20
)

// errDownloadTooLarge marks a body over MaxDownloadBytes; it consumes an attempt like any transient fault
var errDownloadTooLarge = errors.New("download exceeds size limit")

// DownloadOptions configures DownloadService
type DownloadOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxBytes    int64
	HTTPClient  *http.Client
	Sleep       utils.SleepFunc
	Metrics     *Metrics
}

// DownloadResult describes one Download call
type DownloadResult struct {
	Data       []byte
	Attempts   int
	StatusCode int
	NotFound   bool
	LastError  error
}

// DownloadService fetches raw asset bytes from the CDN with bounded retries
// Implements DownloadServiceInterface
type DownloadService struct {
	maxAttempts int
	baseDelay   time.Duration
	maxBytes    int64
	httpClient  *http.Client
	sleep       utils.SleepFunc
	metrics     *Metrics
}

// NewDownloadService creates a new DownloadService instance
func NewDownloadService(opts DownloadOptions) *DownloadService {
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = defaultDownloadAttempts
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultDownloadBackoff
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = MaxDownloadBytes
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = utils.SleepContext
	}
	return &DownloadService{
		maxAttempts: attempts,
		baseDelay:   baseDelay,
		maxBytes:    maxBytes,
		httpClient:  httpClient,
		sleep:       sleep,
		metrics:     opts.Metrics,
	}
}

// Ensure DownloadService implements DownloadServiceInterface
var _ DownloadServiceInterface = (*DownloadService)(nil)

// Download returns the asset bytes, or nil when the asset is gone or retries ran out
func (ds *DownloadService) Download(ctx context.Context, rawURL string) ([]byte, error) {
	result, err := ds.DownloadWithResult(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

// DownloadWithResult is Download with the attempt accounting exposed.
// 404 is terminal after one request. Other failures back off base*2^n between attempts.
// Errors are returned only for malformed URLs and context cancellation.
func (ds *DownloadService) DownloadWithResult(ctx context.Context, rawURL string) (*DownloadResult, error) {
	if err := validateDownloadURL(rawURL); err != nil {
		return nil, err
	}

	result := &DownloadResult{}
	for attempt := 0; attempt < ds.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := ds.sleep(ctx, utils.Backoff(ds.baseDelay, attempt-1)); err != nil {
				return nil, err
			}
		}
		result.Attempts++

		data, status, err := ds.fetch(ctx, rawURL)
		result.StatusCode = status
		if err == nil {
			ds.metrics.observeDownload("ok")
			result.Data = data
			result.LastError = nil
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		result.LastError = err

		if status == http.StatusNotFound {
			ds.metrics.observeDownload("not_found")
			result.NotFound = true
			log.Printf("⏭️  Asset not found, not retrying: %s", rawURL)
			return result, nil
		}
		ds.metrics.observeDownload("error")
		log.Printf("⚠️  Download attempt %d/%d failed for %s: %v", attempt+1, ds.maxAttempts, rawURL, err)
	}

	log.Printf("❌ Giving up on %s after %d attempts", rawURL, result.Attempts)
	return result, nil
}

func (ds *DownloadService) fetch(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := ds.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, ds.maxBytes+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > ds.maxBytes {
		return nil, resp.StatusCode, fmt.Errorf("%w (%d bytes)", errDownloadTooLarge, ds.maxBytes)
	}
	return data, resp.StatusCode, nil
}

func validateDownloadURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("download url is empty")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse download url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported download url scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("download url %q has no host", rawURL)
	}
	return nil
}
