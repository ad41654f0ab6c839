package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stackit/internal/config"
)

// ErrLLMDisabled 未配置 LLM_BASE_URL / LLM_TOKEN
var ErrLLMDisabled = errors.New("llm is not configured")

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type ChatChoice struct {
	Message ChatMessage `json:"message"`
}

type ChatResponse struct {
	Choices []ChatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generator 生成回答的模型接口，测试中替换
type Generator interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
	Model() string
}

// LLMService OpenAI 兼容的 chat/completions 客户端
type LLMService struct {
	baseURL string
	token   string
	model   string
	client  *http.Client
}

func NewLLMService(cfg config.LLMConfig) *LLMService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LLMService{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *LLMService) Model() string {
	return s.model
}

func (s *LLMService) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	if s.baseURL == "" || s.token == "" {
		return "", ErrLLMDisabled
	}

	body, err := json.Marshal(ChatRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: 0.3,
		MaxTokens:   800,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call llm: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read llm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var chat ChatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if chat.Error != nil {
		return "", fmt.Errorf("llm error: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 || strings.TrimSpace(chat.Choices[0].Message.Content) == "" {
		return "", errors.New("llm returned empty answer")
	}
	return strings.TrimSpace(chat.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
