package summary

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/topicstream/topicstream/pkg/config"
)

// Provider identifies the chat completion dialect an endpoint speaks.
type Provider int

const (
	ProviderOpenAI Provider = iota
	ProviderMinimax
	ProviderAnthropic
)

// String returns the provider name.
func (p Provider) String() string {
	switch p {
	case ProviderMinimax:
		return "minimax"
	case ProviderAnthropic:
		return "anthropic"
	default:
		return "openai"
	}
}

// ClassifyProvider picks the dialect from the configured API URL. Hosts
// mentioning minimax or anthropic get their native protocols; everything
// else is treated as OpenAI-compatible.
func ClassifyProvider(apiURL string) Provider {
	lower := strings.ToLower(apiURL)
	switch {
	case strings.Contains(lower, "minimax"):
		return ProviderMinimax
	case strings.Contains(lower, "anthropic"):
		return ProviderAnthropic
	default:
		return ProviderOpenAI
	}
}

// RequestURL joins the configured base URL with the provider's completion
// path. A base that already names the path is used as is.
func (p Provider) RequestURL(apiURL string) string {
	base := strings.TrimRight(apiURL, "/")
	path := "/v1/chat/completions"
	switch p {
	case ProviderMinimax:
		path = "/v1/text/chatcompletion_v2"
	case ProviderAnthropic:
		path = "/v1/messages"
	}
	if strings.HasSuffix(base, path) {
		return base
	}
	return base + path
}

// SetHeaders applies the provider's authentication scheme.
func (p Provider) SetHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Content-Type", "application/json")
	switch p {
	case ProviderAnthropic:
		req.Header.Set("x-api-key", apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	default:
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

const minimaxSystemPrompt = "你是一个乐于助人的助手，请用简洁的中文总结论坛帖子的讨论内容。"

// BuildBody renders the request body for one prompt in the provider's
// dialect. MiniMax carries a fixed system message and token budget; the
// other two send the prompt as the sole user message.
func (p Provider) BuildBody(cfg config.AIConfig, prompt string) ([]byte, error) {
	req := chatRequest{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
	}
	switch p {
	case ProviderMinimax:
		req.Messages = []chatMessage{
			{Role: "system", Content: minimaxSystemPrompt},
			{Role: "user", Content: prompt},
		}
		req.MaxTokens = 1024
		if req.Temperature == 0 {
			req.Temperature = 0.9
		}
	default:
		req.Messages = []chatMessage{{Role: "user", Content: prompt}}
		req.MaxTokens = cfg.MaxTokens
		if req.MaxTokens == 0 {
			req.MaxTokens = 800
		}
	}
	return json.Marshal(req)
}

// Usage reports token consumption when the endpoint provides it.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Content string `json:"content"`
	} `json:"choices"`
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
		InputTokens      int `json:"input_tokens"`
		OutputTokens     int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Message  string `json:"message"`
	BaseResp *struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
}

// ExtractContent pulls the completion text and usage out of a response
// body using the provider's response shape.
func (p Provider) ExtractContent(body []byte) (string, *Usage, error) {
	var resp completionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", nil, fmt.Errorf("failed to decode completion response: %w", err)
	}

	var content string
	switch p {
	case ProviderMinimax:
		if len(resp.Choices) > 0 {
			content = resp.Choices[0].Message.Content
			if content == "" {
				content = resp.Choices[0].Content
			}
		}
	case ProviderAnthropic:
		if len(resp.Content) > 0 {
			content = resp.Content[0].Text
		}
	default:
		if len(resp.Choices) > 0 {
			content = resp.Choices[0].Message.Content
		}
	}
	if content != "" {
		return content, extractUsage(resp), nil
	}

	if msg := extractErrorMessage(resp); msg != "" {
		return "", nil, fmt.Errorf("completion API error: %s", msg)
	}
	return "", nil, fmt.Errorf("completion response contained no content")
}

func extractUsage(resp completionResponse) *Usage {
	if resp.Usage == nil {
		return nil
	}
	u := &Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	// Anthropic reports input/output instead.
	if u.PromptTokens == 0 && resp.Usage.InputTokens > 0 {
		u.PromptTokens = resp.Usage.InputTokens
		u.CompletionTokens = resp.Usage.OutputTokens
		u.TotalTokens = resp.Usage.InputTokens + resp.Usage.OutputTokens
	}
	return u
}

// ExtractError pulls a human-readable message out of an error response
// body, falling back to the raw status.
func ExtractError(body []byte, status string) error {
	var resp completionResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		if msg := extractErrorMessage(resp); msg != "" {
			return fmt.Errorf("completion API error: %s", msg)
		}
	}
	return fmt.Errorf("completion API error: %s", status)
}

func extractErrorMessage(resp completionResponse) string {
	if resp.Error != nil && resp.Error.Message != "" {
		return resp.Error.Message
	}
	if resp.Message != "" {
		return resp.Message
	}
	if resp.BaseResp != nil && resp.BaseResp.StatusCode != 0 {
		return resp.BaseResp.StatusMsg
	}
	return ""
}
