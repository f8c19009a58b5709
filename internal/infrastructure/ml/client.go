package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"TimelineWatch/internal/config"
	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/ports"
)

// Client talks to an external inference service that scores post batches.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.SentimentAnalyzer = (*Client)(nil)

// NewClient creates a reusable HTTP client. An empty inference URL is a ConfigurationError.
func NewClient(cfg config.MLConfig) (*Client, error) {
	endpoint := strings.TrimSuffix(strings.TrimSpace(cfg.InferenceURL), "/")
	if endpoint == "" {
		return nil, &domain.ConfigurationError{Field: "sentiment.ml.inferenceUrl", Reason: "inference url is required"}
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (c *Client) Name() string { return "ml" }

type analyzeRequest struct {
	Context string       `json:"context"`
	Posts   []postRecord `json:"posts"`
}

type postRecord struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

// Analyze sends the batch for scoring and topic detection.
func (c *Client) Analyze(ctx context.Context, posts []domain.Post, contextLabel string) (domain.SentimentReport, error) {
	if len(posts) == 0 {
		return domain.SentimentReport{}, fmt.Errorf("no posts to analyze")
	}

	payload := analyzeRequest{Context: contextLabel, Posts: make([]postRecord, 0, len(posts))}
	for _, p := range posts {
		payload.Posts = append(payload.Posts, postRecord{ID: p.ID, Author: p.Author, Text: p.Text})
	}

	var report domain.SentimentReport
	if err := c.post(ctx, "/analyze", payload, &report); err != nil {
		return domain.SentimentReport{}, err
	}
	if report.Sentiment == "" {
		return domain.SentimentReport{}, fmt.Errorf("inference service returned no sentiment")
	}
	report.Sentiment = strings.ToLower(report.Sentiment)
	report.Provider = c.Name()
	return report, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
