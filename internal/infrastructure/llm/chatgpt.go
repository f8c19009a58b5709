package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"TimelineWatch/internal/config"
	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/ports"
)

const (
	defaultModel   = openai.GPT4oMini
	defaultTimeout = 60 * time.Second
	// maxPostRunes caps each post inside the prompt.
	maxPostRunes = 280
)

// ChatGPTAnalyzer implements ports.SentimentAnalyzer backed by OpenAI-compatible APIs.
type ChatGPTAnalyzer struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

var _ ports.SentimentAnalyzer = (*ChatGPTAnalyzer)(nil)

// NewChatGPTAnalyzer builds an analyzer from configuration. A missing API key is a
// ConfigurationError so callers can degrade to a local analyzer.
func NewChatGPTAnalyzer(cfg config.ChatGPTConfig) (*ChatGPTAnalyzer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &domain.ConfigurationError{Field: "sentiment.chatgpt.apiKey", Reason: "api key is required"}
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &ChatGPTAnalyzer{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        model,
		systemPrompt: safePrompt(cfg.SystemPrompt),
	}, nil
}

func (c *ChatGPTAnalyzer) Name() string { return "chatgpt" }

// Analyze asks the model for a JSON sentiment report over posts.
func (c *ChatGPTAnalyzer) Analyze(ctx context.Context, posts []domain.Post, contextLabel string) (domain.SentimentReport, error) {
	if len(posts) == 0 {
		return domain.SentimentReport{}, fmt.Errorf("no posts to analyze")
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(posts, contextLabel)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return domain.SentimentReport{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.SentimentReport{}, fmt.Errorf("chat completion returned no choices")
	}

	report, err := ParseReport(resp.Choices[0].Message.Content)
	if err != nil {
		return domain.SentimentReport{}, err
	}
	report.Provider = c.Name()
	return report, nil
}

func buildPrompt(posts []domain.Post, contextLabel string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the overall sentiment about %q in these %d posts.\n", contextLabel, len(posts))
	b.WriteString(`Reply with JSON: {"sentiment":"positive|neutral|negative",` +
		`"sentimentBreakdown":{"positive":int,"neutral":int,"negative":int},` +
		`"insights":"short analysis","keyTopics":["..."]}. Percentages add up to 100.` + "\n\n")
	for i, p := range posts {
		text := []rune(strings.TrimSpace(p.Text))
		if len(text) > maxPostRunes {
			text = text[:maxPostRunes]
		}
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, p.Author, string(text))
	}
	return b.String()
}

// reply tolerates the alternative field names models tend to produce.
type reply struct {
	Sentiment          string                     `json:"sentiment"`
	SentimentBreakdown *domain.SentimentBreakdown `json:"sentimentBreakdown"`
	Breakdown          *domain.SentimentBreakdown `json:"breakdown"`
	Insights           string                     `json:"insights"`
	Analysis           string                     `json:"analysis"`
	KeyTopics          []string                   `json:"keyTopics"`
	KeyPhrases         []string                   `json:"keyPhrases"`
	Topics             []string                   `json:"topics"`
}

// ParseReport decodes a model answer, stripping Markdown code fences first.
func ParseReport(content string) (domain.SentimentReport, error) {
	var r reply
	if err := json.Unmarshal([]byte(stripFences(content)), &r); err != nil {
		return domain.SentimentReport{}, fmt.Errorf("decode sentiment reply: %w", err)
	}
	if r.Sentiment == "" {
		return domain.SentimentReport{}, fmt.Errorf("sentiment reply has no sentiment")
	}

	report := domain.SentimentReport{
		Sentiment: strings.ToLower(strings.TrimSpace(r.Sentiment)),
		Insights:  firstNonEmpty(r.Insights, r.Analysis),
	}
	switch {
	case r.SentimentBreakdown != nil:
		report.Breakdown = *r.SentimentBreakdown
	case r.Breakdown != nil:
		report.Breakdown = *r.Breakdown
	}
	for _, topics := range [][]string{r.KeyTopics, r.KeyPhrases, r.Topics} {
		if len(topics) > 0 {
			report.Topics = topics
			break
		}
	}
	return report, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You analyze the sentiment of social media posts and answer with JSON only."
	}
	return prompt
}
