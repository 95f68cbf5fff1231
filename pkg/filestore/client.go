// Package filestore talks to an OpenAI-compatible vector store API: file
// uploads, store management, and asynchronous file batches.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/customer-intel/internal/resilience"
)

const defaultBaseURL = "https://api.openai.com/v1"

// BatchStatus is the lifecycle state of a file batch.
type BatchStatus string

const (
	BatchInProgress BatchStatus = "in_progress"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
	BatchCancelled  BatchStatus = "cancelled"
)

// Client performs vector store operations.
type Client interface {
	// EnsureStore returns the store with the given name, creating it if absent.
	EnsureStore(ctx context.Context, name string) (*StoreInfo, error)
	// UploadFile uploads a document and returns its file ID.
	UploadFile(ctx context.Context, filename string, content []byte) (string, error)
	// CreateFileBatch attaches uploaded files to a store asynchronously.
	CreateFileBatch(ctx context.Context, storeID string, fileIDs []string) (*Batch, error)
	// GetFileBatch reports the current state of a file batch.
	GetFileBatch(ctx context.Context, storeID, batchID string) (*Batch, error)
}

// StoreInfo identifies a vector store.
type StoreInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Batch is an asynchronous file attachment job.
type Batch struct {
	ID         string      `json:"id"`
	Status     BatchStatus `json:"status"`
	FileCounts FileCounts  `json:"file_counts"`
}

// FileCounts tallies batch files by state.
type FileCounts struct {
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates a vector store API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) EnsureStore(ctx context.Context, name string) (*StoreInfo, error) {
	var list struct {
		Data []StoreInfo `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/vector_stores?limit=100", nil, "", &list); err != nil {
		return nil, eris.Wrap(err, "filestore: list stores")
	}
	for i := range list.Data {
		if list.Data[i].Name == name {
			return &list.Data[i], nil
		}
	}

	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, eris.Wrap(err, "filestore: marshal store request")
	}
	var created StoreInfo
	if err := c.do(ctx, http.MethodPost, "/vector_stores", body, "application/json", &created); err != nil {
		return nil, eris.Wrap(err, "filestore: create store")
	}
	return &created, nil
}

func (c *httpClient) UploadFile(ctx context.Context, filename string, content []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("purpose", "assistants"); err != nil {
		return "", eris.Wrap(err, "filestore: write purpose field")
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", eris.Wrap(err, "filestore: create form file")
	}
	if _, err := part.Write(content); err != nil {
		return "", eris.Wrap(err, "filestore: write file content")
	}
	if err := w.Close(); err != nil {
		return "", eris.Wrap(err, "filestore: close multipart writer")
	}

	var uploaded struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/files", buf.Bytes(), w.FormDataContentType(), &uploaded); err != nil {
		return "", eris.Wrapf(err, "filestore: upload %s", filename)
	}
	return uploaded.ID, nil
}

func (c *httpClient) CreateFileBatch(ctx context.Context, storeID string, fileIDs []string) (*Batch, error) {
	body, err := json.Marshal(map[string][]string{"file_ids": fileIDs})
	if err != nil {
		return nil, eris.Wrap(err, "filestore: marshal batch request")
	}

	path := fmt.Sprintf("/vector_stores/%s/file_batches", url.PathEscape(storeID))
	var batch Batch
	if err := c.do(ctx, http.MethodPost, path, body, "application/json", &batch); err != nil {
		return nil, eris.Wrapf(err, "filestore: create batch in %s", storeID)
	}
	return &batch, nil
}

func (c *httpClient) GetFileBatch(ctx context.Context, storeID, batchID string) (*Batch, error) {
	path := fmt.Sprintf("/vector_stores/%s/file_batches/%s",
		url.PathEscape(storeID), url.PathEscape(batchID))
	var batch Batch
	if err := c.do(ctx, http.MethodGet, path, nil, "", &batch); err != nil {
		return nil, eris.Wrapf(err, "filestore: get batch %s", batchID)
	}
	return &batch, nil
}

// do sends one API request, retrying transient failures, and decodes the
// JSON response into out.
func (c *httpClient) do(ctx context.Context, method, path string, body []byte, contentType string, out any) error {
	return resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return eris.Wrap(err, "create request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return resilience.NewTransientError(err, resp.StatusCode)
		}

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(err, resp.StatusCode)
			}
			return err
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return eris.Wrap(err, "unmarshal response")
		}
		return nil
	})
}
