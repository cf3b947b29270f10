// SPDX-License-Identifier: Apache-2.0

package substrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"k8s.io/klog/v2"
)

// Client is the interface the reconciler allocates disks and folders
// through. A SQLiteFake implementation backs local development and tests.
type Client interface {
	ListDisks(ctx context.Context, zone string) ([]Disk, error)
	ListNodes(ctx context.Context) ([]Node, error)
	ListZones(ctx context.Context) ([]Zone, error)
	AllocateFolder(ctx context.Context, diskID, name string) (*Folder, error)
	ReleaseFolder(ctx context.Context, folderID string) error
}

// HTTPClient is a REST client for the cluster's storage-topology service.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	retryCount int
	authToken  string
}

// HTTPClientConfig configures an HTTPClient.
type HTTPClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	AuthToken  string
}

// NewHTTPClient creates a new storage-topology REST client.
func NewHTTPClient(config *HTTPClientConfig) *HTTPClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryCount == 0 {
		config.RetryCount = 3
	}

	return &HTTPClient{
		baseURL:    config.BaseURL,
		httpClient: &http.Client{Timeout: config.Timeout},
		retryCount: config.RetryCount,
		authToken:  config.AuthToken,
	}
}

func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body interface{}, query url.Values) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			klog.V(4).Infof("retrying substrate request (attempt %d/%d) after %v", attempt+1, c.retryCount+1, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.doRequestOnce(ctx, method, path, body, query)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if isNonRetryable(err) {
			break
		}
		klog.V(4).Infof("substrate request failed (attempt %d/%d): %v", attempt+1, c.retryCount+1, err)
	}

	return nil, fmt.Errorf("substrate request failed after %d attempts: %w", c.retryCount+1, lastErr)
}

func (c *HTTPClient) doRequestOnce(ctx context.Context, method, path string, body interface{}, query url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if query != nil {
		reqURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiResp struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(respBody, &apiResp); err == nil && apiResp.Error != "" {
			return nil, MapHTTPStatusToError(resp.StatusCode, apiResp.Error)
		}
		return nil, MapHTTPStatusToError(resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

func isNonRetryable(err error) bool {
	if apiErr, ok := err.(*APIError); ok {
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return apiErr.StatusCode != 408 && apiErr.StatusCode != 429
		}
	}
	switch err {
	case ErrDiskNotFound, ErrFolderNotFound, ErrNodeNotFound, ErrFolderExists:
		return true
	}
	return false
}

// ListDisks lists schedulable disks, optionally filtered by zone.
func (c *HTTPClient) ListDisks(ctx context.Context, zone string) ([]Disk, error) {
	var query url.Values
	if zone != "" {
		query = url.Values{"zone": []string{zone}}
	}
	respBody, err := c.doRequest(ctx, http.MethodGet, "/v1/disks", nil, query)
	if err != nil {
		return nil, err
	}

	var response struct {
		Data []Disk `json:"data"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal disks response: %w", err)
	}
	return response.Data, nil
}

// ListNodes lists all nodes known to the storage-topology service.
func (c *HTTPClient) ListNodes(ctx context.Context) ([]Node, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/v1/nodes", nil, nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Data []Node `json:"data"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes response: %w", err)
	}
	return response.Data, nil
}

// ListZones lists fault domains.
func (c *HTTPClient) ListZones(ctx context.Context) ([]Zone, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/v1/zones", nil, nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Data []Zone `json:"data"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal zones response: %w", err)
	}
	return response.Data, nil
}

// AllocateFolder reserves a new folder on the given disk (idempotent on name).
func (c *HTTPClient) AllocateFolder(ctx context.Context, diskID, name string) (*Folder, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/disks/%s/folders", diskID), map[string]string{"name": name}, nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Data Folder `json:"data"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal folder response: %w", err)
	}
	return &response.Data, nil
}

// ReleaseFolder releases a previously allocated folder (idempotent).
func (c *HTTPClient) ReleaseFolder(ctx context.Context, folderID string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/v1/folders/%s", folderID), nil, nil)
	if err != nil {
		if err == ErrFolderNotFound {
			return nil
		}
		return err
	}
	return nil
}
