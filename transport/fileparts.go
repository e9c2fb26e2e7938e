// Package transport implements the HTTP clients toward the messaging
// platform: the part-transfer endpoints the upload engine drives, and the
// control-plane message API.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/mediarelay/mediarelay/upload"
)

// FilePartClient uploads file parts to the platform's transfer endpoints.
// It deliberately performs no retries: the upload engine owns the retry
// budget and the backoff schedule.
type FilePartClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     log.Logger
}

// NewFilePartClient creates a part-transfer client. A nil httpClient falls
// back to a client tuned for many short uploads to one host.
func NewFilePartClient(httpClient *http.Client, baseURL, token string, logger log.Logger) *FilePartClient {
	if httpClient == nil {
		httpClient = defaultPartHTTPClient()
	}
	return &FilePartClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      token,
		logger:     logger,
	}
}

func defaultPartHTTPClient() *http.Client {
	return &http.Client{
		// No client timeout: the upload attempt is bounded by the caller's context.
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     10 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}

type savePartRequest struct {
	FileID         int64  `json:"file_id"`
	FilePart       int    `json:"file_part"`
	FileTotalParts int    `json:"file_total_parts"`
	Bytes          []byte `json:"bytes"`
}

// SaveFilePart transfers one part via the small-file protocol.
func (c *FilePartClient) SaveFilePart(ctx context.Context, fileID int64, part, totalParts int, data []byte) error {
	return c.savePart(ctx, "upload.saveFilePart", savePartRequest{
		FileID:         fileID,
		FilePart:       part,
		FileTotalParts: totalParts,
		Bytes:          data,
	})
}

// SaveBigFilePart transfers one part via the big-file protocol.
func (c *FilePartClient) SaveBigFilePart(ctx context.Context, fileID int64, part, totalParts int, data []byte) error {
	return c.savePart(ctx, "upload.saveBigFilePart", savePartRequest{
		FileID:         fileID,
		FilePart:       part,
		FileTotalParts: totalParts,
		Bytes:          data,
	})
}

func (c *FilePartClient) savePart(ctx context.Context, method string, body savePartRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	return classifyStatus(resp, method)
}

// classifyStatus turns a non-2xx response into the engine's error taxonomy.
// 429 maps to the dedicated rate-limit kind so the scheduler can surface it
// on its own path instead of burning retry budget.
func classifyStatus(resp *http.Response, method string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &upload.RateLimitError{RetryAfter: parseRetryAfter(resp)}
	}

	errorBody := make([]byte, 1024)
	n, _ := io.ReadAtLeast(resp.Body, errorBody, 1)
	return fmt.Errorf("%s failed with status %d: %s", method, resp.StatusCode, string(errorBody[:n]))
}

// parseRetryAfter accepts both Retry-After forms: delta-seconds and HTTP-date.
func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}
