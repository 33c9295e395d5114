// Package groq generates interview replies and post-interview evaluations
// through Groq's OpenAI-compatible chat completions API.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/intervox/intervox/pkg/errorsx"
	"github.com/intervox/intervox/pkg/llm"
	"github.com/intervox/intervox/pkg/logging"
	"github.com/intervox/intervox/pkg/resilience"
	"github.com/intervox/intervox/pkg/turns"
)

const completionsURL = "https://api.groq.com/openai/v1/chat/completions"

type Config struct {
	APIKey string
	Model  string
	// MaxTokens caps the reply length; spoken replies should stay short.
	MaxTokens   int
	Temperature float64
}

type Client struct {
	cfg    Config
	http   *http.Client
	retry  resilience.RetryPolicy
	logger *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "llama-3.3-70b-versatile"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 250
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		retry:  resilience.NewRetryPolicy(2, 200*time.Millisecond),
		logger: logging.NewComponentLogger(slog.Default(), "groq_llm"),
	}
}

func (c *Client) Name() string { return "groq" }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type requestBody struct {
	Model               string          `json:"model"`
	Messages            []message       `json:"messages"`
	Temperature         float64         `json:"temperature"`
	MaxCompletionTokens int             `json:"max_completion_tokens"`
	ResponseFormat      *responseFormat `json:"response_format,omitempty"`
}

type responseBody struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Reply generates the agent's next utterance from the conversation history.
func (c *Client) Reply(ctx context.Context, history []turns.Turn) (string, error) {
	return c.complete(ctx, toMessages(history), nil)
}

// Evaluate scores a finished transcript. JSON output mode is forced so the
// caller can parse the result.
func (c *Client) Evaluate(ctx context.Context, instructions, transcript string) (string, error) {
	messages := []message{
		{Role: "system", Content: instructions},
		{Role: "user", Content: transcript},
	}
	return c.complete(ctx, messages, &responseFormat{Type: "json_object"})
}

func (c *Client) complete(ctx context.Context, messages []message, format *responseFormat) (string, error) {
	body := requestBody{
		Model:               c.cfg.Model,
		Messages:            messages,
		Temperature:         c.cfg.Temperature,
		MaxCompletionTokens: c.cfg.MaxTokens,
		ResponseFormat:      format,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", errorsx.Wrap(fmt.Errorf("marshal request: %w", err), errorsx.ReasonLLMGenerate)
	}

	var content string
	err = c.retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, completionsURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			c.logger.Warn("non-OK completion status",
				slog.String("status", resp.Status),
				slog.String("body", string(raw)))
			return fmt.Errorf("completion status %s", resp.Status)
		}

		var parsed responseBody
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("completion returned no choices")
		}
		content = parsed.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
	}
	return content, nil
}

func toMessages(history []turns.Turn) []message {
	messages := make([]message, 0, len(history))
	for _, t := range history {
		messages = append(messages, message{Role: string(t.Speaker), Content: t.Text})
	}
	return messages
}

var (
	_ llm.Generator = (*Client)(nil)
	_ llm.Evaluator = (*Client)(nil)
)
