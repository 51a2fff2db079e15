package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/kirillm/ai-fund/pkg/utils"
)

// Client клиент OpenAI-совместимого chat completions API
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	logger  *utils.Logger
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
}

type ChatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewClient создает новый клиент оракула. callInterval задает минимальный
// интервал между вызовами, maxRetry - число HTTP-повторов на 429 и 5xx.
func NewClient(baseURL, apiKey string, timeout, callInterval time.Duration, maxRetry int) *Client {
	http := resty.New().
		SetBaseURL(normalizeBaseURL(baseURL)).
		SetTimeout(timeout).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(maxRetry).
		SetRetryWaitTime(2 * time.Second).
		SetRetryMaxWaitTime(30 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return false
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		})

	return &Client{
		http:    http,
		limiter: rate.NewLimiter(rate.Every(callInterval), 1),
		logger:  utils.NewLogger("oracle"),
	}
}

// normalizeBaseURL приводит URL к виду "https://host/v1":
// хвост /chat/completions и дубликат /v1 отбрасываются
func normalizeBaseURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	u = strings.TrimSuffix(u, "/chat/completions")
	u = strings.TrimRight(u, "/")
	if !strings.HasSuffix(u, "/v1") {
		u += "/v1"
	}
	return u
}

// Chat отправляет диалог оракулу и возвращает текст ответа
func (c *Client) Chat(ctx context.Context, model string, messages []Message, temperature float64) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	var chatResp ChatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(ChatRequest{
			Model:       model,
			Messages:    messages,
			Temperature: temperature,
		}).
		SetResult(&chatResp).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("oracle request failed: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("oracle API error: %s: %s", resp.Status(), resp.String())
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("oracle API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response from oracle")
	}

	content := chatResp.Choices[0].Message.Content
	c.logger.Debug("Oracle replied with %d bytes", len(content))
	return content, nil
}
