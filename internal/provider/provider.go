// Package provider speaks the wire formats of the supported LLM APIs:
// Anthropic Messages, OpenAI Chat Completions (and compatible endpoints),
// and Google Gemini GenerateContent. Text and image+text requests share
// the same client.
package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind selects the wire format for a provider endpoint.
type Kind int

const (
	KindAnthropic Kind = iota
	KindOpenAI
	KindGemini
)

func (k Kind) String() string {
	switch k {
	case KindAnthropic:
		return "anthropic"
	case KindOpenAI:
		return "openai"
	case KindGemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// Endpoint is a resolved provider: the wire format plus an optional
// base URL override. An empty BaseURL means the provider's default host.
type Endpoint struct {
	Kind    Kind
	BaseURL string
}

const (
	defaultAnthropicBase = "https://api.anthropic.com"
	defaultOpenAIBase    = "https://api.openai.com/v1"
	geminiBase           = "https://generativelanguage.googleapis.com/v1beta"

	anthropicVersion = "2023-06-01"

	// MaxImages caps the number of images per request.
	MaxImages = 5

	defaultMaxTokens = 4096
)

// openAICompatible maps provider names to their OpenAI-compatible base URLs.
var openAICompatible = map[string]string{
	"openrouter":   "https://openrouter.ai/api/v1",
	"together":     "https://api.together.xyz/v1",
	"together-ai":  "https://api.together.xyz/v1",
	"togetherai":   "https://api.together.xyz/v1",
	"groq":         "https://api.groq.com/openai/v1",
	"perplexity":   "https://api.perplexity.ai",
	"deepseek":     "https://api.deepseek.com/v1",
	"fireworks":    "https://api.fireworks.ai/inference/v1",
	"fireworks-ai": "https://api.fireworks.ai/inference/v1",
	"mistral":      "https://api.mistral.ai/v1",
	// Local inference servers, each on its default port.
	"ollama":   "http://localhost:11434/v1",
	"lmstudio": "http://localhost:1234/v1",
	"vllm":     "http://localhost:8000/v1",
	"localai":  "http://localhost:8080/v1",
}

// Classify maps a configured provider name to its endpoint. The second
// return is false for providers whose API format is unknown.
func Classify(name string) (Endpoint, bool) {
	n := strings.ToLower(name)
	switch {
	case n == "anthropic" || n == "claude":
		return Endpoint{Kind: KindAnthropic}, true
	case strings.HasPrefix(n, "anthropic-custom:"):
		return Endpoint{Kind: KindAnthropic, BaseURL: strings.TrimPrefix(n, "anthropic-custom:")}, true
	case n == "openai" || n == "gpt" || n == "chatgpt":
		return Endpoint{Kind: KindOpenAI}, true
	case strings.HasPrefix(n, "custom:"):
		return Endpoint{Kind: KindOpenAI, BaseURL: strings.TrimPrefix(n, "custom:")}, true
	case n == "gemini" || n == "google" || n == "google-ai":
		return Endpoint{Kind: KindGemini}, true
	}
	if base, ok := openAICompatible[n]; ok {
		return Endpoint{Kind: KindOpenAI, BaseURL: base}, true
	}
	return Endpoint{}, false
}

// Message is one turn of a text conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Image is one base64-encoded inline image.
type Image struct {
	Data string
	MIME string
}

// PairImages validates and zips parallel data/mime slices. Empty input,
// more than MaxImages entries, or mismatched lengths are rejected.
func PairImages(data, mimes []string) ([]Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("at least one image is required")
	}
	if len(data) > MaxImages {
		return nil, fmt.Errorf("too many images (%d, max %d)", len(data), MaxImages)
	}
	if len(data) != len(mimes) {
		return nil, fmt.Errorf("image data length (%d) != mime types length (%d)", len(data), len(mimes))
	}
	images := make([]Image, len(data))
	for i := range data {
		images[i] = Image{Data: data[i], MIME: mimes[i]}
	}
	return images, nil
}

// Request is a single completion call. Images may be empty for text-only
// requests; the last Message is the user turn images attach to.
type Request struct {
	Model     string
	Messages  []Message
	Images    []Image
	MaxTokens uint64
}

func (r Request) maxTokens() uint64 {
	if r.MaxTokens == 0 {
		return defaultMaxTokens
	}
	return r.MaxTokens
}

// Usage is the token accounting reported by the provider, zero when
// the provider omits it.
type Usage struct {
	InputTokens  uint64
	OutputTokens uint64
}

// Total returns input plus output tokens.
func (u Usage) Total() uint64 { return u.InputTokens + u.OutputTokens }

// Reply is the assistant's text plus usage accounting.
type Reply struct {
	Text  string
	Usage Usage
}

func buildAnthropicBody(req Request) ([]byte, error) {
	messages := make([]map[string]any, 0, len(req.Messages))
	for i, m := range req.Messages {
		if i == len(req.Messages)-1 && len(req.Images) > 0 {
			content := make([]map[string]any, 0, len(req.Images)+1)
			for _, img := range req.Images {
				content = append(content, map[string]any{
					"type": "image",
					"source": map[string]any{
						"type":       "base64",
						"media_type": img.MIME,
						"data":       img.Data,
					},
				})
			}
			content = append(content, map[string]any{"type": "text", "text": m.Content})
			messages = append(messages, map[string]any{"role": m.Role, "content": content})
			continue
		}
		messages = append(messages, map[string]any{"role": m.Role, "content": m.Content})
	}
	return json.Marshal(map[string]any{
		"model":      req.Model,
		"max_tokens": req.maxTokens(),
		"messages":   messages,
	})
}

func buildOpenAIBody(req Request) ([]byte, error) {
	messages := make([]map[string]any, 0, len(req.Messages))
	for i, m := range req.Messages {
		if i == len(req.Messages)-1 && len(req.Images) > 0 {
			content := make([]map[string]any, 0, len(req.Images)+1)
			for _, img := range req.Images {
				content = append(content, map[string]any{
					"type": "image_url",
					"image_url": map[string]any{
						"url":    fmt.Sprintf("data:%s;base64,%s", img.MIME, img.Data),
						"detail": "auto",
					},
				})
			}
			content = append(content, map[string]any{"type": "text", "text": m.Content})
			messages = append(messages, map[string]any{"role": m.Role, "content": content})
			continue
		}
		messages = append(messages, map[string]any{"role": m.Role, "content": m.Content})
	}
	return json.Marshal(map[string]any{
		"model":      req.Model,
		"max_tokens": req.maxTokens(),
		"messages":   messages,
	})
}

func buildGeminiBody(req Request) ([]byte, error) {
	contents := make([]map[string]any, 0, len(req.Messages))
	for i, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		parts := []map[string]any{}
		if i == len(req.Messages)-1 {
			for _, img := range req.Images {
				parts = append(parts, map[string]any{
					"inline_data": map[string]any{
						"mime_type": img.MIME,
						"data":      img.Data,
					},
				})
			}
		}
		parts = append(parts, map[string]any{"text": m.Content})
		contents = append(contents, map[string]any{"role": role, "parts": parts})
	}
	return json.Marshal(map[string]any{"contents": contents})
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  uint64 `json:"input_tokens"`
		OutputTokens uint64 `json:"output_tokens"`
	} `json:"usage"`
}

func parseAnthropicReply(body []byte) (Reply, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Reply{}, fmt.Errorf("decode anthropic response: %w", err)
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return Reply{
				Text: block.Text,
				Usage: Usage{
					InputTokens:  resp.Usage.InputTokens,
					OutputTokens: resp.Usage.OutputTokens,
				},
			}, nil
		}
	}
	return Reply{}, fmt.Errorf("anthropic response missing text content block")
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     uint64 `json:"prompt_tokens"`
		CompletionTokens uint64 `json:"completion_tokens"`
	} `json:"usage"`
}

func parseOpenAIReply(body []byte) (Reply, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Reply{}, fmt.Errorf("decode openai response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, fmt.Errorf("openai response missing choices[0].message.content")
	}
	return Reply{
		Text: resp.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     uint64 `json:"promptTokenCount"`
		CandidatesTokenCount uint64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func parseGeminiReply(body []byte) (Reply, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Reply{}, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return Reply{}, fmt.Errorf("gemini response missing candidates[0].content.parts[].text")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			return Reply{
				Text: part.Text,
				Usage: Usage{
					InputTokens:  resp.UsageMetadata.PromptTokenCount,
					OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
				},
			}, nil
		}
	}
	return Reply{}, fmt.Errorf("gemini response missing candidates[0].content.parts[].text")
}
