package indexing

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

	"github.com/sirupsen/logrus"
)

// OperationState is the provider's view of one indexing job.
type OperationState struct {
	Done  bool
	Error string
}

// QueryHit is one retrieved passage from the provider's file-search index.
type QueryHit struct {
	DocumentKey string
	FileName    string
	Excerpt     string
	Page        *int
	Score       float64
}

// Provider is the external file-search service that indexes uploaded
// documents and serves retrieval queries against them.
type Provider interface {
	// StartIndexing uploads the file into the named store and returns the
	// provider's opaque operation name for polling.
	StartIndexing(ctx context.Context, store, documentKey, fileName string, contents io.Reader) (string, error)
	// GetOperation polls one long-running indexing job.
	GetOperation(ctx context.Context, operationName string) (OperationState, error)
	// Query retrieves the passages most relevant to the query text.
	Query(ctx context.Context, store, query string, limit int) ([]QueryHit, error)
	// Delete removes a document from the store's index.
	Delete(ctx context.Context, store, documentKey string) error
}

type startIndexingResponse struct {
	OperationName string `json:"operation_name"`
	Error         string `json:"error,omitempty"`
}

type operationResponse struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

type queryRequest struct {
	Store string `json:"store"`
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type queryResponse struct {
	Hits []struct {
		DocumentKey string  `json:"document_key"`
		FileName    string  `json:"file_name"`
		Excerpt     string  `json:"excerpt"`
		Page        *int    `json:"page,omitempty"`
		Score       float64 `json:"score"`
	} `json:"hits"`
	Error string `json:"error,omitempty"`
}

// fileSearchClient talks to the file-search provider's REST API.
type fileSearchClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logrus.Logger
}

// NewFileSearchProvider builds the REST client for the configured provider.
func NewFileSearchProvider(baseURL, apiKey string, logger *logrus.Logger) (Provider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("file search base URL is required")
	}
	return &fileSearchClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     logger,
	}, nil
}

func (c *fileSearchClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read provider response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

func (c *fileSearchClient) StartIndexing(ctx context.Context, store, documentKey, fileName string, contents io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("store", store); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if err := mw.WriteField("document_key", documentKey); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, contents); err != nil {
		return "", fmt.Errorf("copy file into form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finalize upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/documents:index", &buf)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var parsed startIndexingResponse
	if err := c.do(req, &parsed); err != nil {
		return "", err
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("provider rejected upload: %s", parsed.Error)
	}
	if parsed.OperationName == "" {
		return "", fmt.Errorf("provider returned no operation name")
	}

	c.logger.WithFields(logrus.Fields{
		"store":     store,
		"file_name": fileName,
		"operation": parsed.OperationName,
	}).Info("indexing started")
	return parsed.OperationName, nil
}

func (c *fileSearchClient) GetOperation(ctx context.Context, operationName string) (OperationState, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+"/v1/operations/"+url.PathEscape(operationName),
		nil,
	)
	if err != nil {
		return OperationState{}, fmt.Errorf("build operation request: %w", err)
	}

	var parsed operationResponse
	if err := c.do(req, &parsed); err != nil {
		return OperationState{}, err
	}
	return OperationState{Done: parsed.Done, Error: parsed.Error}, nil
}

func (c *fileSearchClient) Query(ctx context.Context, store, query string, limit int) ([]QueryHit, error) {
	payload, err := json.Marshal(queryRequest{Store: store, Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/documents:query", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var parsed queryResponse
	if err := c.do(req, &parsed); err != nil {
		return nil, err
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("provider query failed: %s", parsed.Error)
	}

	hits := make([]QueryHit, 0, len(parsed.Hits))
	for _, h := range parsed.Hits {
		hits = append(hits, QueryHit{
			DocumentKey: h.DocumentKey,
			FileName:    h.FileName,
			Excerpt:     h.Excerpt,
			Page:        h.Page,
			Score:       h.Score,
		})
	}
	return hits, nil
}

func (c *fileSearchClient) Delete(ctx context.Context, store, documentKey string) error {
	target := fmt.Sprintf("%s/v1/stores/%s/documents/%s", c.baseURL, url.PathEscape(store), url.PathEscape(documentKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	return c.do(req, nil)
}
